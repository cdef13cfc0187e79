// Package client is the Go client for the nila-exchange transaction API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no transaction exists for a session id.
var ErrNotFound = errors.New("transaction not found")

// Transaction represents a token purchase tracked by the server.
type Transaction struct {
	SessionID      string
	Name           string
	Email          string
	Phone          string
	USDAmount      decimal.Decimal
	TokenAmount    decimal.Decimal
	WalletAddress  string
	Status         string // pending, completed, failed, or processor-defined
	DepositStatus  *string
	WithdrawStatus *string
	WithdrawTxID   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Receipt is the tracking information returned alongside a created
// transaction.
type Receipt struct {
	SessionID  string `json:"sessionId"`
	StatusURL  string `json:"statusUrl"`
	QRCodeData string `json:"qrCode,omitempty"`
}

// CreateTransactionRequest holds the fields submitted when recording a
// purchase. The session id comes from the payment processor's checkout
// session.
type CreateTransactionRequest struct {
	SessionID     string
	Name          string
	Email         string
	Phone         string
	USDAmount     decimal.Decimal
	TokenAmount   decimal.Decimal
	WalletAddress string
}

// Client is the HTTP client for the nila-exchange service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new transaction service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateTransaction records a purchase attempt on the server. Recording the
// same session id twice is not an error; the server returns the original
// record and the duplicate flag is set.
func (c *Client) CreateTransaction(ctx context.Context, txn CreateTransactionRequest) (*Transaction, *Receipt, bool, error) {
	reqBody := map[string]interface{}{
		"sessionId":     txn.SessionID,
		"name":          txn.Name,
		"email":         txn.Email,
		"phone":         txn.Phone,
		"usdAmount":     txn.USDAmount.StringFixed(2),
		"tokenAmount":   txn.TokenAmount.StringFixed(8),
		"walletAddress": txn.WalletAddress,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, false, c.parseErrorResponse(resp)
	}

	var response struct {
		Transaction transactionResponse `json:"transaction"`
		Receipt     *Receipt            `json:"receipt"`
		Duplicate   bool                `json:"duplicate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, nil, false, fmt.Errorf("failed to decode response: %w", err)
	}

	parsed, err := responseToTransaction(&response.Transaction)
	if err != nil {
		return nil, nil, false, err
	}

	c.logger.Debug("transaction recorded",
		"session_id", txn.SessionID, "duplicate", response.Duplicate)
	return parsed, response.Receipt, response.Duplicate, nil
}

// GetStatus retrieves the current state of a transaction.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (*Transaction, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/status?sessionId=%s", c.baseURL, url.QueryEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Transaction transactionResponse `json:"transaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return responseToTransaction(&response.Transaction)
}

// AwaitSettlement polls the status endpoint until the transaction leaves the
// pending state or the context is done.
func (c *Client) AwaitSettlement(ctx context.Context, sessionID string, pollInterval time.Duration) (*Transaction, error) {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		txn, err := c.GetStatus(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if txn.Status != "pending" {
			c.logger.Debug("transaction settled",
				"session_id", sessionID, "status", txn.Status)
			return txn, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// transactionResponse is the API response format for a transaction. Amounts
// arrive as fixed-point decimal strings.
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

// responseToTransaction converts an API response to a domain Transaction.
func responseToTransaction(resp *transactionResponse) (*Transaction, error) {
	usdAmount, err := decimal.NewFromString(resp.USDAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid usdAmount %q: %w", resp.USDAmount, err)
	}
	tokenAmount, err := decimal.NewFromString(resp.TokenAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid tokenAmount %q: %w", resp.TokenAmount, err)
	}

	return &Transaction{
		SessionID:      resp.SessionID,
		Name:           resp.Name,
		Email:          resp.Email,
		Phone:          resp.Phone,
		USDAmount:      usdAmount,
		TokenAmount:    tokenAmount,
		WalletAddress:  resp.WalletAddress,
		Status:         resp.Status,
		DepositStatus:  resp.DepositStatus,
		WithdrawStatus: resp.WithdrawStatus,
		WithdrawTxID:   resp.WithdrawTxID,
		CreatedAt:      resp.CreatedAt,
		UpdatedAt:      resp.UpdatedAt,
	}, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
