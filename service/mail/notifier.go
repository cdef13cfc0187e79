package mail

import (
	"context"
	"log/slog"

	"github.com/mindwavedao/nila-exchange/service/lifecycle"
	"github.com/mindwavedao/nila-exchange/service/metrics"
	natspkg "github.com/mindwavedao/nila-exchange/service/nats"
)

// Notifier turns transaction events into confirmation emails. It implements
// the worker's event handler: one send attempt per event, failures logged
// and swallowed so the message is acked rather than redelivered forever.
type Notifier struct {
	sender  Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Metrics may be nil.
func NewNotifier(sender Sender, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, metrics: m, logger: logger}
}

// HandleTransactionEvent sends a purchase confirmation once a transaction
// reports both a completed status and a completed deposit. Everything else
// is ignored.
func (n *Notifier) HandleTransactionEvent(ctx context.Context, event *natspkg.TransactionEvent) error {
	if !shouldNotify(event) {
		n.logger.Debug("skipping event",
			"session_id", event.SessionID,
			"type", event.Type,
			"status", event.Status,
		)
		return nil
	}

	err := n.sender.SendPurchaseConfirmation(ctx, ConfirmationParams{
		To:          event.Email,
		Name:        event.Name,
		USDAmount:   event.USDAmount,
		TokenAmount: event.TokenAmount,
	})
	if err != nil {
		n.recordEmail(err)
		n.logger.Error("failed to send confirmation email",
			"session_id", event.SessionID,
			"error", err,
		)
		return nil
	}

	n.recordEmail(nil)
	n.logger.Info("confirmation email sent",
		"session_id", event.SessionID,
		"to", event.Email,
	)
	return nil
}

func shouldNotify(event *natspkg.TransactionEvent) bool {
	if event.Type != natspkg.EventTypeUpdated {
		return false
	}
	if event.Status != lifecycle.StatusCompleted {
		return false
	}
	return event.DepositStatus != nil && *event.DepositStatus == lifecycle.StatusCompleted
}

func (n *Notifier) recordEmail(err error) {
	if n.metrics != nil {
		n.metrics.RecordEmailSent(err)
	}
}
