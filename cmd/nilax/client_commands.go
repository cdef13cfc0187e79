package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/mindwavedao/nila-exchange/client"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the nila-exchange service",
		Subcommands: []*cli.Command{
			createCommand(),
			statusCommand(),
			awaitCommand(),
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Record a purchase attempt",
		ArgsUsage: "SESSION_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Buyer name", Required: true},
			&cli.StringFlag{Name: "email", Usage: "Buyer email", Required: true},
			&cli.StringFlag{Name: "phone", Usage: "Buyer phone", Required: true},
			&cli.StringFlag{Name: "usd", Usage: "USD amount (e.g. 100.00)", Required: true},
			&cli.StringFlag{Name: "tokens", Usage: "Token amount (e.g. 100000)", Required: true},
			&cli.StringFlag{Name: "wallet", Usage: "Destination wallet address", Required: true},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: session id")
			}

			usdAmount, err := decimal.NewFromString(c.String("usd"))
			if err != nil {
				return fmt.Errorf("invalid --usd: %w", err)
			}
			tokenAmount, err := decimal.NewFromString(c.String("tokens"))
			if err != nil {
				return fmt.Errorf("invalid --tokens: %w", err)
			}

			cl := newAPIClient(c, 30*time.Second)
			txn, receipt, duplicate, err := cl.CreateTransaction(context.Background(), client.CreateTransactionRequest{
				SessionID:     c.Args().First(),
				Name:          c.String("name"),
				Email:         c.String("email"),
				Phone:         c.String("phone"),
				USDAmount:     usdAmount,
				TokenAmount:   tokenAmount,
				WalletAddress: c.String("wallet"),
			})
			if err != nil {
				return fmt.Errorf("failed to record transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]interface{}{
					"transaction": txn,
					"receipt":     receipt,
					"duplicate":   duplicate,
				})
			}

			if duplicate {
				fmt.Printf("⚠ Session already recorded; showing original record\n\n")
			}
			printTransaction(txn)
			if receipt != nil {
				fmt.Printf("\nStatus URL: %s\n", receipt.StatusURL)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Get the current state of a transaction",
		ArgsUsage: "SESSION_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: session id")
			}

			cl := newAPIClient(c, 30*time.Second)
			txn, err := cl.GetStatus(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(txn)
			}

			printTransaction(txn)
			return nil
		},
	}
}

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a transaction leaves the pending state",
		ArgsUsage: "SESSION_ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for settlement",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: 5 * time.Second,
				Usage: "Delay between status polls",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: session id")
			}

			sessionID := c.Args().First()
			timeout := c.Duration("timeout")
			jsonOutput := c.Bool("json")

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for session %s to settle (timeout %v)...\n", sessionID, timeout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			cl := newAPIClient(c, timeout+30*time.Second)
			txn, err := cl.AwaitSettlement(ctx, sessionID, c.Duration("poll-interval"))
			if err != nil {
				return fmt.Errorf("failed to await settlement: %w", err)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(txn, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal transaction: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printTransaction(txn)
			return nil
		},
	}
}

func newAPIClient(c *cli.Context, timeout time.Duration) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	httpClient := &http.Client{Timeout: timeout}
	return client.NewClient(c.String("server-url"), httpClient, logger)
}

func printTransaction(txn *client.Transaction) {
	fmt.Printf("Session ID:      %s\n", txn.SessionID)
	fmt.Printf("Status:          %s\n", txn.Status)
	fmt.Printf("Buyer:           %s <%s>\n", txn.Name, txn.Email)
	fmt.Printf("USD Amount:      $%s\n", txn.USDAmount.StringFixed(2))
	fmt.Printf("Token Amount:    %s NILA\n", txn.TokenAmount.StringFixed(8))
	fmt.Printf("Wallet:          %s\n", txn.WalletAddress)
	if txn.DepositStatus != nil {
		fmt.Printf("Deposit Status:  %s\n", *txn.DepositStatus)
	}
	if txn.WithdrawStatus != nil {
		fmt.Printf("Withdraw Status: %s\n", *txn.WithdrawStatus)
	}
	if txn.WithdrawTxID != nil {
		fmt.Printf("Withdraw Tx:     %s\n", *txn.WithdrawTxID)
	}
	fmt.Printf("Created:         %s\n", txn.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:         %s\n", txn.UpdatedAt.Format(time.RFC3339))
}
