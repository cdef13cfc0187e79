package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreateRequest() CreateTransactionRequest {
	return CreateTransactionRequest{
		SessionID:     "sess-1",
		Name:          "Ann",
		Email:         "a@x.com",
		Phone:         "555",
		USDAmount:     decimal.RequireFromString("100"),
		TokenAmount:   decimal.RequireFromString("100000"),
		WalletAddress: "0x6B992443ead5c751df1dDBBd35DD1E7b3f319B36",
	}
}

func transactionJSON(status string) map[string]interface{} {
	return map[string]interface{}{
		"sessionId":     "sess-1",
		"name":          "Ann",
		"email":         "a@x.com",
		"phone":         "555",
		"usdAmount":     "100.00",
		"tokenAmount":   "100000.00000000",
		"walletAddress": "0x6B992443ead5c751df1dDBBd35DD1E7b3f319B36",
		"status":        status,
		"createdAt":     time.Now().UTC(),
		"updatedAt":     time.Now().UTC(),
	}
}

func TestCreateTransaction_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)

		assert.Equal(t, "sess-1", body["sessionId"])
		assert.Equal(t, "100.00", body["usdAmount"])
		assert.Equal(t, "100000.00000000", body["tokenAmount"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"transaction": transactionJSON("pending"),
			"receipt": map[string]interface{}{
				"sessionId": "sess-1",
				"statusUrl": "http://localhost:8080/api/v1/transactions/status?sessionId=sess-1",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	txn, receipt, duplicate, err := client.CreateTransaction(context.Background(), testCreateRequest())
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, "pending", txn.Status)
	assert.True(t, txn.USDAmount.Equal(decimal.RequireFromString("100")))
	require.NotNil(t, receipt)
	assert.Contains(t, receipt.StatusURL, "sessionId=sess-1")
}

func TestCreateTransaction_Duplicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"transaction": transactionJSON("pending"),
			"duplicate":   true,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	txn, _, duplicate, err := client.CreateTransaction(context.Background(), testCreateRequest())
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, "sess-1", txn.SessionID)
}

func TestCreateTransaction_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "email is required",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, _, _, err := client.CreateTransaction(context.Background(), testCreateRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email is required")
}

func TestGetStatus_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/transactions/status", r.URL.Path)
		assert.Equal(t, "sess-1", r.URL.Query().Get("sessionId"))

		txn := transactionJSON("completed")
		txn["depositStatus"] = "completed"
		txn["withdrawTxId"] = "0xdeadbeef"

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"transaction": txn,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	txn, err := client.GetStatus(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", txn.Status)
	require.NotNil(t, txn.DepositStatus)
	assert.Equal(t, "completed", *txn.DepositStatus)
	require.NotNil(t, txn.WithdrawTxID)
	assert.Equal(t, "0xdeadbeef", *txn.WithdrawTxID)
}

func TestGetStatus_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "transaction not found",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetStatus(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAwaitSettlement(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "pending"
		if calls.Add(1) >= 3 {
			status = "completed"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"transaction": transactionJSON(status),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	txn, err := client.AwaitSettlement(context.Background(), "sess-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "completed", txn.Status)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestAwaitSettlement_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"transaction": transactionJSON("pending"),
		})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, nil, nil)
	_, err := client.AwaitSettlement(ctx, "sess-1", 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
