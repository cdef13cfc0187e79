package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mindwavedao/nila-exchange/service/config"
	"github.com/mindwavedao/nila-exchange/service/db"
	"github.com/mindwavedao/nila-exchange/service/lifecycle"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for transaction payloads
	maxSessionIDLength = 255
	maxContactLength   = 255
	maxPhoneLength     = 50
	maxAddressLength   = 255
)

// createTransactionRequest mirrors the JSON the checkout widget posts once
// InstaXchange hands back a session id. Field names follow the widget's
// casing. Amounts are accepted as JSON strings or numbers.
type createTransactionRequest struct {
	SessionID     string      `json:"sessionId"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Phone         string      `json:"phone"`
	USDAmount     json.Number `json:"usdAmount"`
	TokenAmount   json.Number `json:"tokenAmount"`
	WalletAddress string      `json:"walletAddress"`
	Timestamp     string      `json:"timestamp"` // optional, RFC3339
}

// handleCreateTransaction returns a handler that records a purchase attempt.
// POST /api/v1/transactions
func handleCreateTransaction(svc *lifecycle.Service, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req createTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode create request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		params, err := validateCreateRequest(&req)
		if err != nil {
			logger.Debug("invalid create request", "session_id", req.SessionID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		txn, created, err := svc.RecordCreated(r.Context(), *params)
		if err != nil {
			logger.Error("failed to record transaction", "session_id", req.SessionID, "error", err)
			writeError(w, fmt.Sprintf("failed to save transaction: %v", err), http.StatusInternalServerError)
			return
		}

		resp := map[string]interface{}{
			"success":     true,
			"transaction": transactionToResponse(txn),
			"receipt":     buildReceipt(cfg.PublicBaseURL, txn.SessionID),
		}
		if !created {
			// Duplicate creation attempts resolve to the original record.
			resp["duplicate"] = true
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleTransactionStatus returns a handler that reads back transaction
// state for polling clients.
// GET /api/v1/transactions/status?sessionId=...
func handleTransactionStatus(svc *lifecycle.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			writeError(w, "sessionId query parameter is required", http.StatusBadRequest)
			return
		}

		txn, err := svc.QueryStatus(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "transaction not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to fetch transaction", "session_id", sessionID, "error", err)
			writeError(w, fmt.Sprintf("failed to fetch transaction: %v", err), http.StatusInternalServerError)
			return
		}

		logger.Debug("transaction status queried", "session_id", sessionID, "status", txn.Status)
		writeJSON(w, map[string]interface{}{
			"success":     true,
			"transaction": transactionToResponse(txn),
		}, http.StatusOK)
	})
}

// validateCreateRequest checks all fields at the boundary, before anything
// touches the store.
func validateCreateRequest(req *createTransactionRequest) (*lifecycle.CreateParams, error) {
	if err := validateSessionID(req.SessionID); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errorf("name is required")
	}
	if len(req.Name) > maxContactLength {
		return nil, errorf("name too long: maximum length is %d characters", maxContactLength)
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if req.Phone == "" {
		return nil, errorf("phone is required")
	}
	if len(req.Phone) > maxPhoneLength {
		return nil, errorf("phone too long: maximum length is %d characters", maxPhoneLength)
	}

	usdAmount, err := parseAmount("usdAmount", req.USDAmount)
	if err != nil {
		return nil, err
	}
	tokenAmount, err := parseAmount("tokenAmount", req.TokenAmount)
	if err != nil {
		return nil, err
	}

	if err := validateWalletAddress(req.WalletAddress); err != nil {
		return nil, err
	}

	var timestamp time.Time
	if req.Timestamp != "" {
		timestamp, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return nil, errorf("invalid timestamp: must be RFC3339 (e.g. '2025-01-02T15:04:05Z')")
		}
	}

	return &lifecycle.CreateParams{
		SessionID:     req.SessionID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		USDAmount:     usdAmount,
		TokenAmount:   tokenAmount,
		WalletAddress: req.WalletAddress,
		Timestamp:     timestamp,
	}, nil
}

// validateSessionID validates the processor-assigned session id.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errorf("sessionId is required")
	}

	if len(sessionID) > maxSessionIDLength {
		return errorf("sessionId too long: maximum length is %d characters", maxSessionIDLength)
	}

	// Check for null bytes and control characters
	for _, r := range sessionID {
		if r == 0 || unicode.IsControl(r) || unicode.IsSpace(r) {
			return errorf("invalid characters in sessionId")
		}
	}

	return nil
}

// validateEmail performs a shallow shape check; deliverability is the mail
// provider's problem.
func validateEmail(email string) error {
	if email == "" {
		return errorf("email is required")
	}
	if len(email) > maxContactLength {
		return errorf("email too long: maximum length is %d characters", maxContactLength)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return errorf("invalid email format")
	}
	return nil
}

// validateWalletAddress validates the destination address string.
func validateWalletAddress(address string) error {
	if address == "" {
		return errorf("walletAddress is required")
	}
	if len(address) > maxAddressLength {
		return errorf("walletAddress too long: maximum length is %d characters", maxAddressLength)
	}
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) || unicode.IsSpace(r) {
			return errorf("invalid characters in walletAddress")
		}
	}
	return nil
}

// parseAmount parses a fixed-point decimal amount and requires it to be
// strictly positive.
func parseAmount(field string, raw json.Number) (decimal.Decimal, error) {
	if raw.String() == "" {
		return decimal.Zero, errorf("%s is required", field)
	}
	amount, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, errorf("invalid %s: must be a decimal number", field)
	}
	if !amount.IsPositive() {
		return decimal.Zero, errorf("%s must be greater than zero", field)
	}
	return amount, nil
}

// transactionResponse is the JSON response format for a transaction.
// Casing follows the widget's conventions, not Go's.
type transactionResponse struct {
	SessionID      string    `json:"sessionId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	USDAmount      string    `json:"usdAmount"`
	TokenAmount    string    `json:"tokenAmount"`
	WalletAddress  string    `json:"walletAddress"`
	Status         string    `json:"status"`
	DepositStatus  *string   `json:"depositStatus,omitempty"`
	WithdrawStatus *string   `json:"withdrawStatus,omitempty"`
	WithdrawTxID   *string   `json:"withdrawTxId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// transactionToResponse converts a domain Transaction to a response format.
func transactionToResponse(t *db.Transaction) transactionResponse {
	return transactionResponse{
		SessionID:      t.SessionID,
		Name:           t.Name,
		Email:          t.Email,
		Phone:          t.Phone,
		USDAmount:      t.USDAmount.StringFixed(2),
		TokenAmount:    t.TokenAmount.StringFixed(8),
		WalletAddress:  t.WalletAddress,
		Status:         t.Status,
		DepositStatus:  t.DepositStatus,
		WithdrawStatus: t.WithdrawStatus,
		WithdrawTxID:   t.WithdrawTxID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
