package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// Mailer отправляет письма через TransportInterface.
type Mailer struct {
	transport TransportInterface
	log       *slog.Logger
}

// NewMailer создаёт Mailer.
func NewMailer(transport TransportInterface, log *slog.Logger) *Mailer {
	return &Mailer{transport: transport, log: log}
}

// Send отправляет одно письмо. Соединение открывается на каждое письмо.
func (m *Mailer) Send(ctx context.Context, email models.Email) error {
	const op = "smtp.Send"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	from := m.transport.GetSMTPUser()
	msg := buildMessage(from, email)

	client, err := m.transport.Connect()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		m.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return fmt.Errorf("%s: mail from: %w", op, err)
	}
	if err := client.Rcpt(email.To); err != nil {
		m.log.Error("failed to set RCPT TO", slog.String("recipient", email.To), sl.Err(err))
		return fmt.Errorf("%s: rcpt to: %w", op, err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("%s: data: %w", op, err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("%s: write body: %w", op, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("%s: close data: %w", op, err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("%s: quit: %w", op, err)
	}

	m.log.Debug("email sent", slog.String("to", email.To), slog.String("tag", email.Tag))
	return nil
}

func buildMessage(from string, email models.Email) string {
	return strings.Join([]string{
		"From: " + from,
		"To: " + email.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", email.Subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		email.HTMLBody,
	}, "\r\n")
}
