package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
)

const prefetch = 10

// Handler обрабатывает тело сообщения. Ошибка приводит к nack с возвратом в очередь.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage запускает потребление очереди queueName.
// Одновременно обрабатывается не более prefetch сообщений.
// Функция не блокируется: чтение прекращается при отмене ctx или закрытии канала.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler Handler, log *slog.Logger) error {
	const op = "rabbitmq.ConsumerMessage"
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	go Dispatch(ctx, deliveries, handler, log)
	return nil
}

// Acknowledger — подтверждение доставки; реализуется amqp.Delivery.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Dispatch читает доставки до закрытия канала или отмены ctx.
func Dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler, log *slog.Logger) {
	sem := make(chan struct{}, prefetch)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handle(ctx, &d, d.Body, handler, log)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

func handle(ctx context.Context, ack Acknowledger, body []byte, handler Handler, log *slog.Logger) {
	if err := handler(ctx, body); err != nil {
		log.Error("failed to handle message, requeue", sl.Err(err))
		if nackErr := ack.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := ack.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
