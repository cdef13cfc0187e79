package server

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Receipt points a buyer at the status of their purchase. The QR code lets
// them track a desktop checkout from a phone.
type Receipt struct {
	SessionID  string `json:"sessionId"`
	StatusURL  string `json:"statusUrl"`
	QRCodeData string `json:"qrCode,omitempty"` // Base64 encoded PNG
}

// buildReceipt creates the receipt embedded in a create-transaction response.
func buildReceipt(baseURL, sessionID string) Receipt {
	statusURL := fmt.Sprintf("%s/api/v1/transactions/status?sessionId=%s",
		strings.TrimRight(baseURL, "/"),
		url.QueryEscape(sessionID),
	)

	// QR code is optional - omit it rather than fail the receipt.
	qrCodeData, err := generateQRCode(statusURL)
	if err != nil {
		qrCodeData = ""
	}

	return Receipt{
		SessionID:  sessionID,
		StatusURL:  statusURL,
		QRCodeData: qrCodeData,
	}
}

// generateQRCode creates a QR code image from a URL and returns it as
// base64-encoded PNG.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	// Encode as PNG (256x256 pixels)
	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	// Return base64-encoded PNG for easy embedding in JSON/HTML
	return base64.StdEncoding.EncodeToString(png), nil
}
