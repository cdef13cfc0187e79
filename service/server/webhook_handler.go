package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mindwavedao/nila-exchange/service/db"
	"github.com/mindwavedao/nila-exchange/service/lifecycle"
	"github.com/mindwavedao/nila-exchange/service/metrics"
	"github.com/mindwavedao/nila-exchange/service/webhook"
)

// handleInstaxchangeWebhook returns the webhook ingress handler. It is
// stateless: authenticate, normalize, hand off to the lifecycle service.
// POST /api/v1/webhooks/instaxchange
func handleInstaxchangeWebhook(svc *lifecycle.Service, verifier *webhook.Verifier, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Debug("failed to read webhook body", "error", err)
			writeError(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		// Audit log the full inbound payload before any other processing.
		logger.Info("webhook received",
			"remote_addr", r.RemoteAddr,
			"payload", string(body),
		)

		// Authenticate before any state mutation.
		claimed := r.Header.Get(webhook.SignatureHeader)
		if err := verifier.Verify(body, claimed); err != nil {
			if errors.Is(err, webhook.ErrUnauthorized) {
				recordVerification(m, "invalid")
				logger.Error("webhook verification failed", "remote_addr", r.RemoteAddr)
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			// Not a signature mismatch: the body could not be canonicalized.
			recordVerification(m, "invalid")
			logger.Debug("webhook body rejected", "error", err)
			writeError(w, "invalid webhook body", http.StatusBadRequest)
			return
		}
		if verifier.Enabled() {
			recordVerification(m, "valid")
		} else {
			recordVerification(m, "skipped")
		}

		payload, err := webhook.ParsePayload(body)
		if err != nil {
			if errors.Is(err, webhook.ErrMissingSessionID) {
				writeError(w, "missing session ID", http.StatusBadRequest)
				return
			}
			if errors.Is(err, webhook.ErrMissingStatus) {
				writeError(w, "missing status", http.StatusBadRequest)
				return
			}
			logger.Debug("failed to parse webhook payload", "error", err)
			writeError(w, "invalid webhook body", http.StatusBadRequest)
			return
		}

		txn, err := svc.ApplyWebhookUpdate(r.Context(), lifecycle.UpdateParams{
			SessionID:      payload.Data.SessionID,
			Status:         payload.Data.Status,
			DepositStatus:  payload.DepositStatus(),
			WithdrawStatus: payload.WithdrawStatus(),
			WithdrawTxID:   payload.WithdrawTxID(),
			RawPayload:     string(body),
		})
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "transaction not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to process webhook", "session_id", payload.Data.SessionID, "error", err)
			writeError(w, fmt.Sprintf("failed to process webhook: %v", err), http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"success":     true,
			"message":     "webhook processed successfully",
			"transaction": transactionToResponse(txn),
		}, http.StatusOK)
	})
}

func recordVerification(m *metrics.Metrics, outcome string) {
	if m != nil {
		m.RecordWebhookVerification(outcome)
	}
}
