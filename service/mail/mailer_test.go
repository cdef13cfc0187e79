package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natspkg "github.com/mindwavedao/nila-exchange/service/nats"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRenderConfirmation(t *testing.T) {
	body, err := renderConfirmation(ConfirmationParams{
		To:          "a@x.com",
		Name:        "Ann",
		USDAmount:   "100.00",
		TokenAmount: "100000.00000000",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Hello Ann,")
	assert.Contains(t, body, "$100.00")
	assert.Contains(t, body, "100000.00000000 NILA")
}

func TestRenderConfirmation_EscapesHTML(t *testing.T) {
	body, err := renderConfirmation(ConfirmationParams{
		Name: `<script>alert("x")</script>`,
	})
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func completedEvent(sessionID string) *natspkg.TransactionEvent {
	completed := "completed"
	return &natspkg.TransactionEvent{
		Type:          natspkg.EventTypeUpdated,
		SessionID:     sessionID,
		Name:          "Ann",
		Email:         "a@x.com",
		USDAmount:     "100.00",
		TokenAmount:   "100000.00000000",
		Status:        "completed",
		DepositStatus: &completed,
	}
}

func TestNotifier_SendsOnCompletedDeposit(t *testing.T) {
	sender := NewMockSender()
	notifier := NewNotifier(sender, nil, testLogger())

	err := notifier.HandleTransactionEvent(context.Background(), completedEvent("nt-1"))
	require.NoError(t, err)

	sent := sender.GetSent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@x.com", sent[0].To)
	assert.Equal(t, "Ann", sent[0].Name)
	assert.Equal(t, "100.00", sent[0].USDAmount)
}

func TestNotifier_SkipsNonQualifyingEvents(t *testing.T) {
	pending := "pending"

	tests := []struct {
		name   string
		mutate func(*natspkg.TransactionEvent)
	}{
		{
			name:   "created event",
			mutate: func(e *natspkg.TransactionEvent) { e.Type = natspkg.EventTypeCreated },
		},
		{
			name:   "status not completed",
			mutate: func(e *natspkg.TransactionEvent) { e.Status = "failed" },
		},
		{
			name:   "deposit still pending",
			mutate: func(e *natspkg.TransactionEvent) { e.DepositStatus = &pending },
		},
		{
			name:   "deposit status missing",
			mutate: func(e *natspkg.TransactionEvent) { e.DepositStatus = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := NewMockSender()
			notifier := NewNotifier(sender, nil, testLogger())

			event := completedEvent("nt-skip")
			tt.mutate(event)

			require.NoError(t, notifier.HandleTransactionEvent(context.Background(), event))
			assert.Empty(t, sender.GetSent())
		})
	}
}

func TestNotifier_SendFailureIsSwallowed(t *testing.T) {
	sender := NewMockSender()
	sender.SetSendError(errors.New("smtp down"))
	notifier := NewNotifier(sender, nil, testLogger())

	// The handler acks regardless; redelivering won't fix a bad mailbox.
	err := notifier.HandleTransactionEvent(context.Background(), completedEvent("nt-fail"))
	require.NoError(t, err)
	assert.Empty(t, sender.GetSent())
}
