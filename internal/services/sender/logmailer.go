package sender

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// LogMailer пишет письма в лог вместо отправки. Используется локально и в тестовых окружениях.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, email models.Email) error {
	m.log.Info("email (not sent)",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("tag", email.Tag),
		slog.String("body", email.TextBody),
	)
	return nil
}
