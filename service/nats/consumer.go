package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler processes a single transaction event. A nil return acks the
// message; an error leaves it for redelivery.
type EventHandler func(ctx context.Context, event *TransactionEvent) error

// Consumer reads transaction events from the JetStream stream with a durable
// consumer, so the email worker can restart without losing its position.
type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cons   jetstream.Consumer
	logger *slog.Logger
}

// NewConsumer connects to NATS and creates (or resumes) a durable consumer
// filtered to the given subject, e.g. SubjectForType(EventTypeUpdated).
func NewConsumer(natsURL, durableName, filterSubject string, logger *slog.Logger) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(fmt.Sprintf("nila-exchange-%s", durableName)),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	logger.Info("NATS consumer initialized",
		"url", natsURL,
		"stream", StreamName,
		"durable", durableName,
		"subject", filterSubject,
	)

	return &Consumer{nc: nc, js: js, cons: cons, logger: logger}, nil
}

// Consume blocks, delivering events to the handler until ctx is cancelled.
// Messages that fail to decode are acked and dropped; a poison message must
// not wedge the stream.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	cc, err := c.cons.Consume(func(msg jetstream.Msg) {
		var event TransactionEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			c.logger.Error("failed to decode transaction event, dropping",
				"subject", msg.Subject(),
				"error", err,
			)
			_ = msg.Ack()
			return
		}

		if err := handler(ctx, &event); err != nil {
			c.logger.Error("event handler failed",
				"event_id", event.EventID,
				"session_id", event.SessionID,
				"error", err,
			)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	return nil
}

// Close closes the connection to NATS.
func (c *Consumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
		c.logger.Info("NATS consumer closed")
	}
	return nil
}
