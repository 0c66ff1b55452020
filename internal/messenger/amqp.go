package messenger

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/companion-gate/internal/lib/rabbitmq"
)

// AMQPSender публикует сообщения в обменник для внешнего отправителя.
type AMQPSender struct {
	ch         rabbitmq.Channel
	exchange   string
	routingKey string
}

// NewAMQPSender создает новый экземпляр AMQPSender.
func NewAMQPSender(ch rabbitmq.Channel, exchange, routingKey string) *AMQPSender {
	return &AMQPSender{ch: ch, exchange: exchange, routingKey: routingKey}
}

func (s *AMQPSender) Send(_ context.Context, msg Message) error {
	const op = "messenger.AMQPSender.Send"
	if msg.To == "" {
		return fmt.Errorf("%s: %w", op, ErrNoRecipient)
	}
	if err := rabbitmq.PublishMessage(s.ch, s.exchange, s.routingKey, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
