package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
)

// ErrDiscard помечает сообщение, которое бессмысленно доставлять повторно.
// Такое сообщение подтверждается отказом без возврата в очередь.
var ErrDiscard = errors.New("discard message")

// Source часть *amqp.Channel, нужная для чтения очереди.
type Source interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Handler обработчик тела одного сообщения.
type Handler func(ctx context.Context, body []byte) error

// ConsumerMessage читает очередь queueName и обрабатывает сообщения не более
// чем workers одновременно. Успешно обработанное сообщение подтверждается,
// ошибка возвращает его в очередь, ErrDiscard отбрасывает. Возвращает
// управление после закрытия канала доставки или отмены ctx, дождавшись
// начатых обработчиков.
func ConsumerMessage(ctx context.Context, ch Source, queueName string, workers int, handler Handler, log *slog.Logger) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(sl.Op(op), slog.String("queue", queueName))
	sem := make(chan struct{}, max(workers, 1))
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				requeue(d, log)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				settle(d, handler(ctx, d.Body), log)
			}(d)
		case <-ctx.Done():
			return nil
		}
	}
}

func settle(d amqp.Delivery, err error, log *slog.Logger) {
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("failed to ack message", sl.Err(ackErr))
		}
	case errors.Is(err, ErrDiscard):
		log.Warn("message discarded", sl.Err(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
	default:
		log.Warn("message requeued", sl.Err(err))
		requeue(d, log)
	}
}

func requeue(d amqp.Delivery, log *slog.Logger) {
	if nackErr := d.Nack(false, true); nackErr != nil {
		log.Error("failed to nack message", sl.Err(nackErr))
	}
}
