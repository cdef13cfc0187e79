// Package mail sends purchase confirmation emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"

	"github.com/mindwavedao/nila-exchange/service/config"
)

const confirmationSubject = "Your NILA Token Transaction was Successful!"

// confirmationTemplate is the buyer-facing purchase confirmation.
var confirmationTemplate = template.Must(template.New("confirmation").Parse(`
<div style="font-family: Arial, sans-serif; line-height: 1.6;">
  <div style="text-align: center; padding: 20px;">
    <img src="https://buy.mindwavedao.com/mindwave-logo.webp" alt="MindWaveDAO Logo" style="width: 100px; height: auto;" />
  </div>
  <h2 style="text-align: center;">Transaction Successful!</h2>
  <p>Hello {{.Name}},</p>
  <p>Thank you for your purchase. Here are your transaction details:</p>
  <ul>
    <li><strong>USD Amount:</strong> ${{.USDAmount}}</li>
    <li><strong>NILA Tokens to be Received:</strong> {{.TokenAmount}} NILA</li>
  </ul>
  <p>Your NILA tokens will be sent to the designated wallet shortly.</p>
  <p>Thank you for your support!</p>
  <p><strong>The MindWaveDAO Team</strong></p>
</div>
`))

// ConfirmationParams holds the fields rendered into a confirmation email.
type ConfirmationParams struct {
	To          string
	Name        string
	USDAmount   string
	TokenAmount string
}

// Sender sends purchase confirmations. The worker depends on this interface
// so tests can substitute a mock.
type Sender interface {
	SendPurchaseConfirmation(ctx context.Context, params ConfirmationParams) error
}

// SMTPMailer sends confirmations through an SMTP relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer creates a mailer from the SMTP portion of the config.
// The caller should have validated it with cfg.ValidateSMTP first.
func NewSMTPMailer(cfg *config.Config) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPass),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.SMTPFrom}, nil
}

// SendPurchaseConfirmation renders and delivers the confirmation email.
// One attempt; retry policy belongs to the caller.
func (m *SMTPMailer) SendPurchaseConfirmation(ctx context.Context, params ConfirmationParams) error {
	body, err := renderConfirmation(params)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat("MindWaveDAO", m.from); err != nil {
		return fmt.Errorf("invalid from address %q: %w", m.from, err)
	}
	if err := msg.To(params.To); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", params.To, err)
	}
	msg.Subject(confirmationSubject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}

func renderConfirmation(params ConfirmationParams) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render confirmation email: %w", err)
	}
	return buf.String(), nil
}
