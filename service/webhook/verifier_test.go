package webhook

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sign computes the signature the processor would attach for a given
// canonical string. Tests hand-write the canonical form so the sorting and
// escaping behavior of canonicalize is actually exercised.
func sign(canonical, secret string) string {
	sum := md5.Sum([]byte(canonical + ":" + secret))
	return hex.EncodeToString(sum[:])
}

func TestVerify(t *testing.T) {
	v := NewVerifier("test-secret")

	t.Run("accepts valid signature", func(t *testing.T) {
		body := []byte(`{"data":{"sessionId":"s1","status":"completed"}}`)
		claimed := sign(`{"data":{"sessionId":"s1","status":"completed"}}`, "test-secret")
		require.NoError(t, v.Verify(body, claimed))
	})

	t.Run("accepts processor field order with invoice data", func(t *testing.T) {
		// The processor delivers invoiceData fields in a non-alphabetical
		// order and signs the compact body with only the top-level keys
		// sorted. That exact wire body must verify against that signature.
		body := []byte(`{"data":{"sessionId":"s1","status":"completed"},"invoiceData":{"Deposit_tx_status":"completed","Withdraw_tx_status":"pending","Withdraw_tx_ID":"0xabc"}}`)
		require.NoError(t, v.Verify(body, sign(string(body), "test-secret")))
	})

	t.Run("top-level key order does not affect the signature", func(t *testing.T) {
		// Same document, top-level keys delivered out of order.
		body := []byte(`{"invoiceData":{"Deposit_tx_status":"completed","Withdraw_tx_status":"pending"},"data":{"sessionId":"s1","status":"completed"}}`)
		canonical := `{"data":{"sessionId":"s1","status":"completed"},"invoiceData":{"Deposit_tx_status":"completed","Withdraw_tx_status":"pending"}}`
		require.NoError(t, v.Verify(body, sign(canonical, "test-secret")))
	})

	t.Run("nested key order is preserved", func(t *testing.T) {
		// Reordering keys inside a nested object changes the signature.
		body := []byte(`{"data":{"status":"completed","sessionId":"s1"}}`)
		resorted := `{"data":{"sessionId":"s1","status":"completed"}}`
		require.ErrorIs(t, v.Verify(body, sign(resorted, "test-secret")), ErrUnauthorized)
		require.NoError(t, v.Verify(body, sign(string(body), "test-secret")))
	})

	t.Run("whitespace inside values is compacted", func(t *testing.T) {
		body := []byte(`{"data": {"sessionId": "s1", "status": "pending"}}`)
		canonical := `{"data":{"sessionId":"s1","status":"pending"}}`
		require.NoError(t, v.Verify(body, sign(canonical, "test-secret")))
	})

	t.Run("html characters are not escaped", func(t *testing.T) {
		body := []byte(`{"data":{"sessionId":"a<b>&c"}}`)
		canonical := `{"data":{"sessionId":"a<b>&c"}}`
		require.NoError(t, v.Verify(body, sign(canonical, "test-secret")))
	})

	t.Run("numbers keep their literal form", func(t *testing.T) {
		body := []byte(`{"amount":100.50,"count":3}`)
		canonical := `{"amount":100.50,"count":3}`
		require.NoError(t, v.Verify(body, sign(canonical, "test-secret")))
	})

	t.Run("rejects wrong signature", func(t *testing.T) {
		body := []byte(`{"data":{"sessionId":"s1"}}`)
		err := v.Verify(body, "deadbeefdeadbeefdeadbeefdeadbeef")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects signature computed with wrong secret", func(t *testing.T) {
		body := []byte(`{"data":{"sessionId":"s1"}}`)
		claimed := sign(`{"data":{"sessionId":"s1"}}`, "other-secret")
		err := v.Verify(body, claimed)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects empty claimed signature", func(t *testing.T) {
		body := []byte(`{"data":{"sessionId":"s1"}}`)
		err := v.Verify(body, "")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects non-object body", func(t *testing.T) {
		err := v.Verify([]byte(`[1,2,3]`), "anything")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		err := v.Verify([]byte(`{"data":`), "anything")
		require.Error(t, err)
	})
}

func TestVerifyDisabled(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())

	// With no secret configured, verification is a pass-through. config.Load
	// only allows this when ALLOW_UNSIGNED_WEBHOOKS is set explicitly.
	require.NoError(t, v.Verify([]byte(`{"data":{"sessionId":"s1"}}`), ""))
	require.NoError(t, v.Verify([]byte(`{"data":{"sessionId":"s1"}}`), "garbage"))
}

func TestParsePayload(t *testing.T) {
	t.Run("full payload", func(t *testing.T) {
		body := []byte(`{
			"data": {"sessionId": "s1", "status": "completed"},
			"invoiceData": {
				"Deposit_tx_status": "completed",
				"Withdraw_tx_status": "pending",
				"Withdraw_tx_ID": "0xabc123"
			}
		}`)

		p, err := ParsePayload(body)
		require.NoError(t, err)
		assert.Equal(t, "s1", p.Data.SessionID)
		assert.Equal(t, "completed", p.Data.Status)
		require.NotNil(t, p.DepositStatus())
		assert.Equal(t, "completed", *p.DepositStatus())
		require.NotNil(t, p.WithdrawStatus())
		assert.Equal(t, "pending", *p.WithdrawStatus())
		require.NotNil(t, p.WithdrawTxID())
		assert.Equal(t, "0xabc123", *p.WithdrawTxID())
	})

	t.Run("invoiceData absent", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"data":{"sessionId":"s1","status":"pending"}}`))
		require.NoError(t, err)
		assert.Nil(t, p.DepositStatus())
		assert.Nil(t, p.WithdrawStatus())
		assert.Nil(t, p.WithdrawTxID())
	})

	t.Run("missing session id", func(t *testing.T) {
		_, err := ParsePayload([]byte(`{"data":{"status":"completed"}}`))
		require.ErrorIs(t, err, ErrMissingSessionID)
	})

	t.Run("missing status", func(t *testing.T) {
		_, err := ParsePayload([]byte(`{"data":{"sessionId":"s1"}}`))
		require.ErrorIs(t, err, ErrMissingStatus)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := ParsePayload([]byte(`not json`))
		require.Error(t, err)
	})
}
