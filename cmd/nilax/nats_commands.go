package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/mindwavedao/nila-exchange/service/nats"
)

// subscribeCommand streams transaction lifecycle events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to transaction lifecycle events",
		Description: `Subscribe to real-time transaction events published to NATS JetStream.

Events are published to nila.txn.created and nila.txn.updated. By default both
are streamed; use --type to narrow to one. Use --must-jq to filter events with
jq expressions evaluated against the event JSON (all must be truthy).

Example:
  nilax nats subscribe --type updated --must-jq '.status == "completed"'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Event type to stream (created or updated); empty streams both",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if eventType := c.String("type"); eventType != "" {
				if eventType != natspkg.EventTypeCreated && eventType != natspkg.EventTypeUpdated {
					return fmt.Errorf("invalid event type %q: must be created or updated", eventType)
				}
				subject = natspkg.SubjectForType(eventType)
			}

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamEvents(c.String("nats-url"), subject, filters, c.Bool("json"))
		},
	}
}

// smokeTestCommand verifies events flow end-to-end.
func smokeTestCommand() *cli.Command {
	return &cli.Command{
		Name:  "smoke-test",
		Usage: "Wait for a transaction event to verify the pipeline",
		Description: `Smoke test the event pipeline by:
1. Subscribing to the NATS transaction stream
2. Waiting for lifecycle events

Record a transaction (nilax client create) while this runs to generate one.

Example:
  nilax nats smoke-test --timeout 60s`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for events",
				Value: 30 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			timeout := c.Duration("timeout")
			jsonOutput := c.Bool("json")

			if !jsonOutput {
				fmt.Printf("🧪 Smoke test starting...\n")
				fmt.Printf("   NATS: %s\n", natsURL)
				fmt.Printf("   Timeout: %s\n\n", timeout)
			}

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: natspkg.StreamSubjects,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			msgChan := make(chan jetstream.Msg, 10)
			go func() {
				_, _ = cons.Consume(func(msg jetstream.Msg) {
					msgChan <- msg
				})
			}()

			received := 0
			for {
				select {
				case msg := <-msgChan:
					var event natspkg.TransactionEvent
					if err := json.Unmarshal(msg.Data(), &event); err != nil {
						fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
						msg.Ack()
						continue
					}

					received++

					if jsonOutput {
						data, _ := json.Marshal(event)
						fmt.Println(string(data))
					} else {
						printEvent(&event, received)
					}

					msg.Ack()

				case <-ctx.Done():
					if !jsonOutput {
						if received == 0 {
							fmt.Printf("⚠️  Timeout: No events received in %s\n", timeout)
							fmt.Printf("\nPossible issues:\n")
							fmt.Printf("  - Server may not be running\n")
							fmt.Printf("  - No transactions were recorded during the test window\n")
							fmt.Printf("  - NATS stream may not exist (check NATS logs)\n")
							return fmt.Errorf("smoke test failed: no events received")
						}
						fmt.Printf("✅ Smoke test passed: Received %d event(s)\n", received)
					}
					return nil
				}
			}
		},
	}
}

// streamEvents connects to NATS and streams events until interrupted.
func streamEvents(natsURL, subject string, filters []*gojq.Code, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		fmt.Printf("\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	received := 0
	consCtx, err := cons.Consume(func(msg jetstream.Msg) {
		var event natspkg.TransactionEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
			msg.Ack()
			return
		}

		if !eventMatchesFilters(msg.Data(), filters) {
			msg.Ack()
			return
		}

		received++
		if jsonOutput {
			data, _ := json.Marshal(event)
			fmt.Println(string(data))
		} else {
			printEvent(&event, received)
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consCtx.Stop()

	// Block until interrupted
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "\nReceived %d event(s)\n", received)
	}
	return nil
}

// compileJQFilters parses and compiles --must-jq expressions.
func compileJQFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return compiled, nil
}

// eventMatchesFilters reports whether the raw event JSON satisfies every
// compiled filter.
func eventMatchesFilters(raw []byte, filters []*gojq.Code) bool {
	if len(filters) == 0 {
		return true
	}

	var eventJSON interface{}
	if err := json.Unmarshal(raw, &eventJSON); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(eventJSON)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printEvent(event *natspkg.TransactionEvent, n int) {
	fmt.Printf("✅ Event received (#%d)\n", n)
	fmt.Printf("   Type: %s\n", event.Type)
	fmt.Printf("   Session: %s\n", event.SessionID)
	fmt.Printf("   Status: %s\n", event.Status)
	fmt.Printf("   USD: $%s\n", event.USDAmount)
	fmt.Printf("   Tokens: %s NILA\n", event.TokenAmount)
	if event.WithdrawTxID != nil {
		fmt.Printf("   Withdraw Tx: %s\n", *event.WithdrawTxID)
	}
	fmt.Printf("   Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
}
