package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mindwavedao/nila-exchange/service/db"
)

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List recorded transactions, newest first",
		Aliases: []string{"ls", "txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (pending, completed, failed)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Skip this many transactions",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			transactions, err := store.ListTransactions(context.Background(), db.ListTransactionsParams{
				Limit:  int32(c.Int("limit")),
				Offset: int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			// Filter by status if specified
			statusFilter := c.String("status")
			if statusFilter != "" {
				filtered := make([]*db.Transaction, 0)
				for _, txn := range transactions {
					if txn.Status == statusFilter {
						filtered = append(filtered, txn)
					}
				}
				transactions = filtered
			}

			if c.Bool("json") {
				return outputJSON(transactions)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSTATUS\tUSD\tTOKENS\tDEPOSIT\tWITHDRAW TX\tCREATED")
			for _, txn := range transactions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					txn.SessionID,
					txn.Status,
					txn.USDAmount.StringFixed(2),
					txn.TokenAmount.StringFixed(8),
					formatOptional(txn.DepositStatus),
					formatOptional(txn.WithdrawTxID),
					txn.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(transactions))
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Get transaction details",
		Aliases:   []string{"get"},
		ArgsUsage: "<session_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: session id")
			}

			sessionID := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txn, err := store.GetTransactionBySessionID(context.Background(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(txn)
			}

			// Pretty output
			fmt.Printf("Session ID:      %s\n", txn.SessionID)
			fmt.Printf("Status:          %s\n", txn.Status)
			fmt.Printf("Buyer:           %s <%s>\n", txn.Name, txn.Email)
			fmt.Printf("Phone:           %s\n", txn.Phone)
			fmt.Printf("USD Amount:      $%s\n", txn.USDAmount.StringFixed(2))
			fmt.Printf("Token Amount:    %s NILA\n", txn.TokenAmount.StringFixed(8))
			fmt.Printf("Wallet:          %s\n", txn.WalletAddress)
			fmt.Printf("Deposit Status:  %s\n", formatOptional(txn.DepositStatus))
			fmt.Printf("Withdraw Status: %s\n", formatOptional(txn.WithdrawStatus))
			fmt.Printf("Withdraw Tx:     %s\n", formatOptional(txn.WithdrawTxID))
			fmt.Printf("Created:         %s\n", txn.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:         %s\n", txn.UpdatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func countTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "count-transactions",
		Usage: "Count recorded transactions",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			count, err := store.CountTransactions(context.Background())
			if err != nil {
				return fmt.Errorf("failed to count transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]int64{"count": count})
			}

			fmt.Printf("%d\n", count)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply schema migrations",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}

			fmt.Println("✓ Schema up to date")
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.NewPool(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper function to format optional fields
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}
