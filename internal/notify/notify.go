// Package notify содержит реализации отправки уведомлений для прохода по подпискам.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// Queue публикует уведомления в exchange notifications с ключом маршрутизации routingKey;
// их забирает notification-sender.
type Queue struct {
	ch         rabbitmq.Publisher
	routingKey string
	now        func() time.Time
}

// NewQueue создаёт издателя уведомлений для очереди с ключом routingKey.
func NewQueue(ch rabbitmq.Publisher, routingKey string) *Queue {
	return &Queue{
		ch:         ch,
		routingKey: routingKey,
		now:        time.Now,
	}
}

// Send публикует уведомление.
func (q *Queue) Send(ctx context.Context, userID uuid.UUID, templateID string, params map[string]any) error {
	const op = "notify.Queue.Send"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := models.Notification{
		UserID:     userID,
		TemplateID: templateID,
		Params:     params,
		CreatedAt:  q.now().UTC(),
	}
	if err := rabbitmq.PublishMessage(q.ch, rabbitmq.ExchangeNotifications, q.routingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Log только пишет уведомление в журнал. Используется в локальном окружении.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, userID uuid.UUID, templateID string, params map[string]any) error {
	l.log.Info("notification",
		sl.UserID(userID),
		slog.String("template", templateID),
		slog.Any("params", params),
	)
	return nil
}
