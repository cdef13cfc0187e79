package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwavedao/nila-exchange/service/config"
	"github.com/mindwavedao/nila-exchange/service/db"
	"github.com/mindwavedao/nila-exchange/service/lifecycle"
	natspkg "github.com/mindwavedao/nila-exchange/service/nats"
	"github.com/mindwavedao/nila-exchange/service/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		PublicBaseURL: "http://localhost:8080",
	}
}

// setupTestService wires a lifecycle service against the test database with
// a mock publisher, so handler tests exercise the real store path.
func setupTestService(t *testing.T) (*lifecycle.Service, *db.TestStore, *natspkg.MockPublisher) {
	t.Helper()
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	t.Cleanup(func() { store.Cleanup(t) })

	publisher := natspkg.NewMockPublisher()
	svc := lifecycle.NewService(store.Store, publisher, nil, testLogger())
	return svc, store, publisher
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestCreateTransaction_PathologicalInput(t *testing.T) {
	svc, _, _ := setupTestService(t)
	handler := handleCreateTransaction(svc, testConfig(), testLogger())

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		checkError     func(t *testing.T, body string)
	}{
		{
			name:           "extremely large request body",
			body:           `{"sessionId":"` + strings.Repeat("A", 2*1024*1024) + `"}`, // 2MB
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "request body too large")
			},
		},
		{
			name:           "malformed JSON",
			body:           `{"sessionId":"sess-1","usdAmount":`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid request body")
			},
		},
		{
			name:           "empty JSON object",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "sessionId is required")
			},
		},
		{
			name:           "missing sessionId",
			body:           `{"name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "sessionId is required")
			},
		},
		{
			name:           "sessionId too long",
			body:           `{"sessionId":"` + strings.Repeat("A", 500) + `","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "sessionId too long")
			},
		},
		{
			name:           "sessionId with null bytes",
			body:           `{"sessionId":"sess\u0000-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid characters in sessionId")
			},
		},
		{
			name:           "missing name",
			body:           `{"sessionId":"sess-1","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "name is required")
			},
		},
		{
			name:           "missing email",
			body:           `{"sessionId":"sess-1","name":"Ann","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "email is required")
			},
		},
		{
			name:           "email without at sign",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"not-an-email","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid email format")
			},
		},
		{
			name:           "missing phone",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "phone is required")
			},
		},
		{
			name:           "missing usdAmount",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "usdAmount is required")
			},
		},
		{
			name:           "non-numeric usdAmount",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"lots","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid usdAmount")
			},
		},
		{
			name:           "negative usdAmount",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"-100","tokenAmount":"100000","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "usdAmount must be greater than zero")
			},
		},
		{
			name:           "zero tokenAmount",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"0","walletAddress":"0xabc"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "tokenAmount must be greater than zero")
			},
		},
		{
			name:           "missing walletAddress",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "walletAddress is required")
			},
		},
		{
			name:           "walletAddress with SQL injection attempt",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0x'; DROP TABLE transactions; --"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid characters in walletAddress")
			},
		},
		{
			name:           "invalid timestamp",
			body:           `{"sessionId":"sess-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc","timestamp":"yesterday"}`,
			expectedStatus: http.StatusBadRequest,
			checkError: func(t *testing.T, body string) {
				assert.Contains(t, body, "invalid timestamp")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.checkError != nil {
				tt.checkError(t, rr.Body.String())
			}
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	svc, store, publisher := setupTestService(t)
	handler := handleCreateTransaction(svc, testConfig(), testLogger())

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("records a pending transaction", func(t *testing.T) {
		rr := post(`{"sessionId":"h-create-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":100,"tokenAmount":"100000","walletAddress":"0x6B992443ead5c751df1dDBBd35DD1E7b3f319B36"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		body := decodeBody(t, rr)
		assert.Equal(t, true, body["success"])
		assert.Nil(t, body["duplicate"])

		txn := body["transaction"].(map[string]interface{})
		assert.Equal(t, "h-create-1", txn["sessionId"])
		assert.Equal(t, "pending", txn["status"])
		assert.Equal(t, "100.00", txn["usdAmount"])
		assert.Equal(t, "100000.00000000", txn["tokenAmount"])
		assert.Nil(t, txn["depositStatus"])

		receipt := body["receipt"].(map[string]interface{})
		assert.Equal(t, "h-create-1", receipt["sessionId"])
		assert.Equal(t, "http://localhost:8080/api/v1/transactions/status?sessionId=h-create-1", receipt["statusUrl"])
		assert.NotEmpty(t, receipt["qrCode"])

		assert.Equal(t, 1, len(publisher.GetPublishedEventsForSession("h-create-1")))
	})

	t.Run("duplicate session returns the original record", func(t *testing.T) {
		rr := post(`{"sessionId":"h-create-dup","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100.00","tokenAmount":"100000","walletAddress":"0xabc1"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		// Same session, different submitted fields; the original wins.
		rr = post(`{"sessionId":"h-create-dup","name":"Bob","email":"b@x.com","phone":"777","usdAmount":"999.00","tokenAmount":"5","walletAddress":"0xabc2"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		body := decodeBody(t, rr)
		assert.Equal(t, true, body["duplicate"])

		txn := body["transaction"].(map[string]interface{})
		assert.Equal(t, "Ann", txn["name"])
		assert.Equal(t, "100.00", txn["usdAmount"])
		assert.Equal(t, "0xabc1", txn["walletAddress"])

		// The stored row still holds the original fields.
		stored, err := store.GetTransactionBySessionID(context.Background(), "h-create-dup")
		require.NoError(t, err)
		assert.Equal(t, "Ann", stored.Name)
		assert.Equal(t, "100.00", stored.USDAmount.StringFixed(2))
	})

	t.Run("rejected request writes no row", func(t *testing.T) {
		rr := post(`{"sessionId":"h-create-rejected","name":"Ann","phone":"555","usdAmount":"100","tokenAmount":"100000","walletAddress":"0xabc"}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)

		_, err := store.GetTransactionBySessionID(context.Background(), "h-create-rejected")
		assert.ErrorIs(t, err, db.ErrNotFound)
	})
}

func TestTransactionStatus(t *testing.T) {
	svc, _, _ := setupTestService(t)
	create := handleCreateTransaction(svc, testConfig(), testLogger())
	status := handleTransactionStatus(svc, testLogger())

	get := func(target string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		status.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		return rr
	}

	t.Run("missing sessionId", func(t *testing.T) {
		rr := get("/api/v1/transactions/status")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "sessionId query parameter is required")
	})

	t.Run("unknown sessionId", func(t *testing.T) {
		rr := get("/api/v1/transactions/status?sessionId=h-status-missing")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "transaction not found")
	})

	t.Run("returns the full record", func(t *testing.T) {
		body := `{"sessionId":"h-status-1","name":"Ann","email":"a@x.com","phone":"555","usdAmount":"100.00","tokenAmount":"100000","walletAddress":"0x6B992443ead5c751df1dDBBd35DD1E7b3f319B36"}`
		rr := httptest.NewRecorder()
		create.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rr.Code)

		rr = get("/api/v1/transactions/status?sessionId=h-status-1")
		require.Equal(t, http.StatusOK, rr.Code)

		resp := decodeBody(t, rr)
		txn := resp["transaction"].(map[string]interface{})
		assert.Equal(t, "h-status-1", txn["sessionId"])
		assert.Equal(t, "pending", txn["status"])
		assert.Equal(t, "a@x.com", txn["email"])
		assert.NotEmpty(t, txn["createdAt"])
	})
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	svc, _, _ := setupTestService(t)
	s := New(":0", testConfig(), svc, webhook.NewVerifier(""), nil, testLogger())
	mux := s.routes()

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/v1/transactions"},
		{http.MethodPost, "/api/v1/transactions/status"},
		{http.MethodGet, "/api/v1/webhooks/instaxchange"},
		{http.MethodDelete, "/api/v1/webhooks/instaxchange"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		})
	}

	t.Run("health check", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
