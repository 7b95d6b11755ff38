// Package sender запускает потребителей очередей уведомлений и отправляет письма.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
	"golang.org/x/text/language"

	"github.com/magabrotheeeer/finance-saas/internal/config"
	"github.com/magabrotheeeer/finance-saas/internal/lib/postmark"
	"github.com/magabrotheeeer/finance-saas/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/finance-saas/internal/services/sender"
)

// Почтовые провайдеры.
const (
	ProviderLog      = "log"
	ProviderSMTP     = "smtp"
	ProviderPostmark = "postmark"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// NewMailer выбирает способ доставки писем по cfg.EmailProvider.
func NewMailer(cfg *config.Config, logger *slog.Logger) (senderservice.Mailer, error) {
	switch cfg.EmailProvider {
	case ProviderSMTP:
		transport := smtp.NewTransport(smtp.Config{
			Host: cfg.SMTP.Host,
			Port: cfg.SMTP.Port,
			User: cfg.SMTP.User,
			Pass: cfg.SMTP.Pass,
		}, logger)
		return smtp.NewMailer(transport, logger), nil
	case ProviderPostmark:
		client, err := postmark.New(postmark.Config{
			ServerToken:  cfg.Postmark.ServerToken,
			AccountToken: cfg.Postmark.AccountToken,
			Sender:       cfg.Postmark.Sender,
			ReplyTo:      cfg.Postmark.ReplyTo,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderLog, "":
		return senderservice.NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	lang, err := language.Parse(cfg.EmailLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid email language %q: %w", cfg.EmailLanguage, err)
	}
	mailer, err := NewMailer(cfg, logger)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	logger.Info("email delivery configured",
		slog.String("provider", cfg.EmailProvider),
		slog.String("language", lang.String()),
	)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.New(mailer, lang, logger),
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	for _, q := range rabbitmq.GetNotificationQueues() {
		if err := rabbitmq.ConsumerMessage(ctx, a.ch, q.QueueName, a.senderService.Handle, a.logger); err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			a.close()
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
