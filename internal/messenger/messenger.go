// Package messenger доставляет исходящие сообщения пользователю.
package messenger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
)

// Kind назначение исходящего сообщения.
type Kind string

const (
	KindReply    Kind = "reply"
	KindReminder Kind = "reminder"
)

// Message исходящее сообщение.
type Message struct {
	To   string `json:"to"`
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Sender отправляет сообщение через конкретный канал.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Drivers.
const (
	DriverTwilio   = "twilio"
	DriverRabbitMQ = "rabbitmq"
	DriverLog      = "log"
)

// LogSender только пишет сообщение в лог. Используется локально и в тестах.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender создает новый экземпляр LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("messenger.LogSender.Send: %w", ErrNoRecipient)
	}
	s.log.Info("outbound message",
		sl.User(msg.To),
		slog.String("kind", string(msg.Kind)),
		slog.Int("length", len(msg.Text)),
	)
	return nil
}
