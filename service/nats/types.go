package nats

import (
	"time"

	"github.com/google/uuid"

	"github.com/mindwavedao/nila-exchange/service/db"
)

// Event types published to the stream.
const (
	EventTypeCreated = "created"
	EventTypeUpdated = "updated"
)

// TransactionEvent represents a transaction lifecycle event published to
// NATS. Events are published to the subject "nila.txn.{type}" in JetStream.
// Downstream consumers (the email worker) act on these fire-and-forget;
// publish failures never roll back the store mutation that produced them.
type TransactionEvent struct {
	// Event metadata
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"` // "created" or "updated"
	PublishedAt time.Time `json:"published_at"`

	// Transaction identity and contact
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`

	// Amounts as fixed-point decimal strings (2dp USD, 8dp NILA)
	USDAmount   string `json:"usd_amount"`
	TokenAmount string `json:"token_amount"`

	WalletAddress string `json:"wallet_address"`

	// Status snapshot at publish time
	Status         string  `json:"status"`
	DepositStatus  *string `json:"deposit_status,omitempty"`
	WithdrawStatus *string `json:"withdraw_status,omitempty"`
	WithdrawTxID   *string `json:"withdraw_tx_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromTransaction converts a database transaction to a TransactionEvent for
// publishing.
func FromTransaction(txn *db.Transaction, eventType string) *TransactionEvent {
	return &TransactionEvent{
		EventID:        uuid.New().String(),
		Type:           eventType,
		PublishedAt:    time.Now().UTC(),
		SessionID:      txn.SessionID,
		Name:           txn.Name,
		Email:          txn.Email,
		USDAmount:      txn.USDAmount.StringFixed(2),
		TokenAmount:    txn.TokenAmount.StringFixed(8),
		WalletAddress:  txn.WalletAddress,
		Status:         txn.Status,
		DepositStatus:  txn.DepositStatus,
		WithdrawStatus: txn.WithdrawStatus,
		WithdrawTxID:   txn.WithdrawTxID,
		CreatedAt:      txn.CreatedAt,
		UpdatedAt:      txn.UpdatedAt,
	}
}
