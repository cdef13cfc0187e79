package mail

import (
	"context"
	"sync"
)

// MockSender is a Sender for testing that records sent confirmations.
type MockSender struct {
	mu      sync.Mutex
	sent    []ConfirmationParams
	sendErr error
}

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// SendPurchaseConfirmation records the confirmation instead of sending it.
func (m *MockSender) SendPurchaseConfirmation(_ context.Context, params ConfirmationParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, params)
	return nil
}

// SetSendError configures the mock to return an error on send.
func (m *MockSender) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// GetSent returns a copy of all recorded confirmations.
func (m *MockSender) GetSent() []ConfirmationParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ConfirmationParams, len(m.sent))
	copy(out, m.sent)
	return out
}
