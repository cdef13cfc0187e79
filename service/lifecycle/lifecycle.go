// Package lifecycle implements the transaction lifecycle state machine:
// idempotent creation once the payment processor allocates a session id,
// webhook-driven status transitions, and read-back for polling clients.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mindwavedao/nila-exchange/service/db"
	"github.com/mindwavedao/nila-exchange/service/metrics"
	natspkg "github.com/mindwavedao/nila-exchange/service/nats"
)

// Transaction statuses. The processor may report additional provider-defined
// values; they are stored verbatim.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Service orchestrates create/update/read operations against the store.
// It is the only component that mutates transaction state. Event publishing
// is fire-and-forget: a failed publish is logged and never rolls back the
// store mutation.
type Service struct {
	store     *db.Store
	publisher natspkg.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService creates a lifecycle service. The publisher and metrics may be
// nil, in which case events and measurements are skipped.
func NewService(store *db.Store, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// CreateParams contains the fields needed to record a purchase attempt.
// The session id is allocated by the payment processor, never by us.
type CreateParams struct {
	SessionID     string
	Name          string
	Email         string
	Phone         string
	USDAmount     decimal.Decimal
	TokenAmount   decimal.Decimal
	WalletAddress string

	// Timestamp is the client-reported creation time; zero means now.
	Timestamp time.Time
}

// UpdateParams contains the fields of a verified webhook update. Every
// mutable field is replaced on each update; there is no merging.
type UpdateParams struct {
	SessionID      string
	Status         string
	DepositStatus  *string
	WithdrawStatus *string
	WithdrawTxID   *string
	RawPayload     string
}

// RecordCreated persists a purchase attempt once its session id is known.
// A duplicate session id is treated as success: the existing record is
// returned unchanged and the second write is discarded. The boolean reports
// whether a new row was written.
//
// The USD amount is stored with 2 decimal places and the token amount with
// 8. The server trusts the client-submitted conversion; it is not re-derived
// here.
func (s *Service) RecordCreated(ctx context.Context, params CreateParams) (*db.Transaction, bool, error) {
	createdAt := params.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	start := time.Now()
	txn, err := s.store.CreateTransaction(ctx, db.CreateTransactionParams{
		SessionID:     params.SessionID,
		Name:          params.Name,
		Email:         params.Email,
		Phone:         params.Phone,
		USDAmount:     params.USDAmount.Round(2),
		TokenAmount:   params.TokenAmount.Round(8),
		WalletAddress: params.WalletAddress,
		CreatedAt:     createdAt,
	})
	s.recordDBQuery("create_transaction", start, err)

	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			existing, getErr := s.store.GetTransactionBySessionID(ctx, params.SessionID)
			if getErr != nil {
				return nil, false, fmt.Errorf("session %s exists but read-back failed: %w", params.SessionID, getErr)
			}
			s.recordCreated("duplicate")
			s.logger.Info("transaction already recorded",
				"session_id", params.SessionID,
			)
			return existing, false, nil
		}
		s.recordCreated("error")
		return nil, false, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.recordCreated("created")
	s.logger.Info("transaction recorded",
		"session_id", txn.SessionID,
		"usd_amount", txn.USDAmount.StringFixed(2),
		"token_amount", txn.TokenAmount.StringFixed(8),
	)

	s.publish(ctx, txn, natspkg.EventTypeCreated)
	return txn, true, nil
}

// ApplyWebhookUpdate overwrites the status fields of a transaction from a
// webhook the caller has already verified. A webhook referencing an unknown
// session returns db.ErrNotFound; that inconsistency is surfaced to the
// caller, never swallowed or upserted.
func (s *Service) ApplyWebhookUpdate(ctx context.Context, params UpdateParams) (*db.Transaction, error) {
	start := time.Now()
	txn, err := s.store.UpdateTransactionStatus(ctx, db.UpdateTransactionStatusParams{
		SessionID:      params.SessionID,
		Status:         params.Status,
		DepositStatus:  params.DepositStatus,
		WithdrawStatus: params.WithdrawStatus,
		WithdrawTxID:   params.WithdrawTxID,
		WebhookData:    params.RawPayload,
	})
	s.recordDBQuery("update_transaction_status", start, err)

	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.recordUpdated(params.Status, "not_found")
			s.logger.Error("webhook references unknown session",
				"session_id", params.SessionID,
				"status", params.Status,
			)
			return nil, err
		}
		s.recordUpdated(params.Status, "error")
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	s.recordUpdated(params.Status, "success")
	s.logger.Info("transaction status updated",
		"session_id", txn.SessionID,
		"status", txn.Status,
		"deposit_status", stringOrEmpty(txn.DepositStatus),
		"withdraw_status", stringOrEmpty(txn.WithdrawStatus),
	)

	s.publish(ctx, txn, natspkg.EventTypeUpdated)
	return txn, nil
}

// QueryStatus returns the current state of a transaction. Pure read;
// propagates db.ErrNotFound.
func (s *Service) QueryStatus(ctx context.Context, sessionID string) (*db.Transaction, error) {
	start := time.Now()
	txn, err := s.store.GetTransactionBySessionID(ctx, sessionID)
	s.recordDBQuery("get_transaction", start, err)
	return txn, err
}

// publish sends a lifecycle event. Failures are logged and dropped; the
// store is the source of truth and downstream consumers tolerate gaps.
func (s *Service) publish(ctx context.Context, txn *db.Transaction, eventType string) {
	if s.publisher == nil {
		return
	}

	event := natspkg.FromTransaction(txn, eventType)
	subject := natspkg.SubjectForType(eventType)

	start := time.Now()
	err := s.publisher.PublishTransactionEvent(ctx, event)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("failed to publish transaction event",
			"session_id", txn.SessionID,
			"type", eventType,
			"error", err,
		)
	}
}

func (s *Service) recordCreated(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTransactionCreated(outcome)
	}
}

func (s *Service) recordUpdated(status, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTransactionUpdated(status, outcome)
	}
}

func (s *Service) recordDBQuery(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, time.Since(start).Seconds(), err)
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
