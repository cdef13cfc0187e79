package server

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReceipt(t *testing.T) {
	r := buildReceipt("http://localhost:8080/", "sess-1")

	assert.Equal(t, "sess-1", r.SessionID)
	assert.Equal(t, "http://localhost:8080/api/v1/transactions/status?sessionId=sess-1", r.StatusURL)

	// The QR payload is a valid PNG of the status URL.
	png, err := base64.StdEncoding.DecodeString(r.QRCodeData)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestBuildReceipt_EscapesSessionID(t *testing.T) {
	r := buildReceipt("https://buy.mindwavedao.com", "sess 1&2")
	assert.Equal(t, "https://buy.mindwavedao.com/api/v1/transactions/status?sessionId=sess+1%262", r.StatusURL)
}
