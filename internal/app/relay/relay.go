// Package relay приложение, которое читает очередь исходящих сообщений и
// доставляет их через Twilio.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-gate/internal/config"
	"github.com/magabrotheeeer/companion-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/messenger"
	relayservice "github.com/magabrotheeeer/companion-gate/internal/services/relay"
)

// App представляет приложение доставки.
type App struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	workers int
	service *relayservice.RelayService
	logger  *slog.Logger
}

// New подключается к брокеру и объявляет очередь исходящих сообщений.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.relay.New"

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect RabbitMQ: %w", op, err)
	}

	queues := rabbitmq.OutboundQueues(cfg.Exchange, cfg.RoutingKey)
	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, queues)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: failed to setup RabbitMQ channel: %w", op, err)
	}
	if err := ch.Qos(max(cfg.RelayWorkers, 1), 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: failed to set prefetch: %w", op, err)
	}

	sender := messenger.NewTwilioSender(messenger.TwilioConfig{
		BaseURL:    cfg.TwilioBaseURL,
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioFrom,
	})

	return &App{
		conn:    conn,
		ch:      ch,
		queue:   queues[0].QueueName,
		workers: cfg.RelayWorkers,
		service: relayservice.NewRelayService(sender, logger),
		logger:  logger,
	}, nil
}

// Run читает очередь до отмены ctx, затем закрывает соединение.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("relay consuming", slog.String("queue", a.queue), slog.Int("workers", a.workers))
	err := rabbitmq.ConsumerMessage(ctx, a.ch, a.queue, a.workers, a.service.Deliver, a.logger)
	if err != nil {
		a.logger.Error("failed to consume outbound queue", sl.Err(err))
	}

	a.logger.Info("relay shutting down gracefully")
	if closeErr := a.ch.Close(); closeErr != nil {
		a.logger.Error("failed to close channel", sl.Err(closeErr))
	}
	if closeErr := a.conn.Close(); closeErr != nil {
		a.logger.Error("failed to close connection", sl.Err(closeErr))
	}
	return err
}
