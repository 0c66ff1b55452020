// Package relay доставляет исходящие сообщения, опубликованные в очередь,
// через провайдера мессенджера.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/companion-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/messenger"
)

// RelayService разбирает сообщение из очереди и отправляет его.
type RelayService struct {
	sender messenger.Sender
	log    *slog.Logger
}

// NewRelayService создает новый экземпляр RelayService.
func NewRelayService(sender messenger.Sender, log *slog.Logger) *RelayService {
	return &RelayService{sender: sender, log: log}
}

// Deliver обрабатывает тело одного сообщения. Неразбираемые сообщения и
// отказы провайдера отбрасываются, временные сбои возвращаются для повтора.
func (s *RelayService) Deliver(ctx context.Context, body []byte) error {
	const op = "relay.Deliver"

	var msg messenger.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Op(op), sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
	}

	log := s.log.With(sl.Op(op), sl.User(msg.To), slog.String("kind", string(msg.Kind)))

	err := s.sender.Send(ctx, msg)
	switch {
	case err == nil:
		log.Info("message delivered")
		return nil
	case errors.Is(err, messenger.ErrUnavailable):
		log.Warn("provider unavailable, message will be retried", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	default:
		log.Error("message dropped", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrDiscard, err)
	}
}
