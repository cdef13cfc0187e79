package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingSessionID is returned when a webhook body carries no session id.
var ErrMissingSessionID = errors.New("webhook payload missing session id")

// ErrMissingStatus is returned when a webhook body carries no data.status.
// The status column is NOT NULL, so an empty status would overwrite real
// state with nothing.
var ErrMissingStatus = errors.New("webhook payload missing status")

// Payload is the typed shape of an InstaXchange webhook delivery. The field
// casing inside invoiceData is the processor's, not ours.
type Payload struct {
	Data        Data        `json:"data"`
	InvoiceData InvoiceData `json:"invoiceData"`
}

// Data carries the session-level fields of a webhook delivery.
type Data struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// InvoiceData carries the per-leg settlement fields of a webhook delivery.
type InvoiceData struct {
	DepositTxStatus  string `json:"Deposit_tx_status"`
	WithdrawTxStatus string `json:"Withdraw_tx_status"`
	WithdrawTxID     string `json:"Withdraw_tx_ID"`
}

// ParsePayload decodes and validates a webhook body. Bodies that are not
// JSON objects or that lack data.sessionId or data.status are rejected here,
// at the boundary, before any lifecycle processing.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	if p.Data.SessionID == "" {
		return nil, ErrMissingSessionID
	}
	if p.Data.Status == "" {
		return nil, ErrMissingStatus
	}
	return &p, nil
}

// DepositStatus returns the deposit sub-status, or nil if the processor
// omitted it.
func (p *Payload) DepositStatus() *string {
	return optional(p.InvoiceData.DepositTxStatus)
}

// WithdrawStatus returns the withdraw sub-status, or nil if the processor
// omitted it.
func (p *Payload) WithdrawStatus() *string {
	return optional(p.InvoiceData.WithdrawTxStatus)
}

// WithdrawTxID returns the chain transaction id of the withdrawal, or nil if
// the withdrawal has not executed yet.
func (p *Payload) WithdrawTxID() *string {
	return optional(p.InvoiceData.WithdrawTxID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
