// Package postmark отправляет транзакционные письма через API Postmark.
package postmark

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// Ошибки конфигурации и отправки.
var (
	ErrInvalidConfig = errors.New("invalid postmark config")
	ErrSendFailed    = errors.New("failed to send email")
)

// Config — токены Postmark и адреса отправителя.
type Config struct {
	ServerToken  string
	AccountToken string
	Sender       string
	ReplyTo      string
}

type emailSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Client отправляет письма через Postmark.
type Client struct {
	api emailSender
	cfg Config
}

// New проверяет конфигурацию и создаёт Client.
func New(cfg Config) (*Client, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: server token is required", ErrInvalidConfig)
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	return &Client{
		api: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		cfg: cfg,
	}, nil
}

// Send отправляет письмо. Ненулевой ErrorCode в ответе считается ошибкой.
func (c *Client) Send(ctx context.Context, email models.Email) error {
	const op = "postmark.Send"
	replyTo := c.cfg.ReplyTo
	if replyTo == "" {
		replyTo = c.cfg.Sender
	}
	resp, err := c.api.SendEmail(ctx, postmark.Email{
		From:       c.cfg.Sender,
		ReplyTo:    replyTo,
		To:         email.To,
		Subject:    email.Subject,
		Tag:        email.Tag,
		HTMLBody:   email.HTMLBody,
		TextBody:   email.TextBody,
		TrackOpens: true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrSendFailed, err))
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%s: %w: postmark error %d: %s", op, ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}
