// Package companion собирает зависимости сервиса и управляет его запуском
// и остановкой.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-gate/internal/config"
	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/lib/jwt"
	"github.com/magabrotheeeer/companion-gate/internal/lib/keymutex"
	"github.com/magabrotheeeer/companion-gate/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/messenger"
	"github.com/magabrotheeeer/companion-gate/internal/metrics"
	"github.com/magabrotheeeer/companion-gate/internal/models"
	"github.com/magabrotheeeer/companion-gate/internal/reply"
	companionservice "github.com/magabrotheeeer/companion-gate/internal/services/companion"
	"github.com/magabrotheeeer/companion-gate/internal/services/dailygate"
	"github.com/magabrotheeeer/companion-gate/internal/services/entitlement"
	schedulerservice "github.com/magabrotheeeer/companion-gate/internal/services/scheduler"
	"github.com/magabrotheeeer/companion-gate/internal/services/session"
	"github.com/magabrotheeeer/companion-gate/internal/storage"
	"github.com/magabrotheeeer/companion-gate/internal/storage/file"
	"github.com/magabrotheeeer/companion-gate/internal/storage/redisstore"
)

const shutdownTimeout = 15 * time.Second

// App сервис компаньона: HTTP-сервер, диспетчер сообщений и планировщик.
type App struct {
	server     *http.Server
	logger     *slog.Logger
	scheduler  *schedulerservice.SchedulerService
	dispatcher *companionservice.Dispatcher
	closers    []func() error
}

// New создает новый экземпляр приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.companion.New"

	app := &App{logger: logger}
	clk := clock.Real()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	backend, err := app.initBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hooks := []storage.Option{
		storage.WithSaveErrorHook(m.SaveErrorHook),
		storage.WithDropHook(m.DropHook),
	}
	trials, err := storage.Open[models.TrialRecord](ctx, backend, storage.FamilyTrials, clk, logger, hooks...)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	subs, err := storage.Open[models.SubscriptionRecord](ctx, backend, storage.FamilySubscriptions, clk, logger, hooks...)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	daily, err := storage.Open[models.DailySessionRecord](ctx, backend, storage.FamilyDailySessions, clk, logger, hooks...)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loc := cfg.Policy.Location()
	tracker := entitlement.NewTracker(trials, subs, entitlement.Policy{
		TrialDays:        cfg.TrialDays,
		SubscriptionDays: cfg.SubscriptionDays,
		Location:         loc,
	}, clk, logger)
	gate := dailygate.New(daily, loc, clk, logger)
	sessions := session.NewTracker(session.Thresholds{
		Soft:  cfg.SoftReminder,
		Final: cfg.FinalReminder,
		Hard:  cfg.HardLimit,
	}, cfg.HistorySize, clk, logger)

	replier := reply.New(reply.Config{
		BaseURL:     cfg.Reply.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Reply.Timeout,
	}, logger, m.ReplyFallbacks.Inc)

	sender, err := app.initSender(cfg, logger)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	locks := keymutex.New()
	service := companionservice.New(tracker, gate, sessions, replier, locks, m, logger)
	app.dispatcher = companionservice.NewDispatcher(service, sender, cfg.MaxInFlight, logger)
	app.scheduler = schedulerservice.NewSchedulerService(tracker, sessions, locks, sender, schedulerservice.Config{
		ReminderInterval: cfg.ReminderInterval,
		ReminderRetry:    cfg.ReminderRetry,
		CleanupInterval:  cfg.CleanupInterval,
		SessionStaleness: cfg.SessionStaleness,
		TrialRetention:   cfg.TrialRetention,
	}, m, clk, logger)

	if cfg.JWTSecretKey == "" {
		logger.Warn("admin jwt secret is empty, admin api will reject every token")
	}
	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Dispatcher: app.dispatcher,
		Service:    service,
		Tokens:     jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Registry:   registry,
		RateLimit:  cfg.RateLimit,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

func (a *App) initBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case "redis":
		backend, err := redisstore.InitServer(ctx, cfg.RedisConnection, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, backend.Close)
		a.logger.Info("storage backend initialized", slog.String("driver", "redis"), slog.String("address", cfg.AddressRedis))
		return backend, nil
	default:
		backend, err := file.New(cfg.Dir)
		if err != nil {
			return nil, err
		}
		a.logger.Info("storage backend initialized", slog.String("driver", "file"), slog.String("dir", cfg.Dir))
		return backend, nil
	}
}

func (a *App) initSender(cfg *config.Config, logger *slog.Logger) (messenger.Sender, error) {
	switch cfg.Messenger.Driver {
	case messenger.DriverTwilio:
		return messenger.NewTwilioSender(messenger.TwilioConfig{
			BaseURL:    cfg.TwilioBaseURL,
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
		}), nil
	case messenger.DriverRabbitMQ:
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, rabbitmq.OutboundQueues(cfg.Exchange, cfg.RoutingKey))
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		a.closers = append(a.closers, closeAMQP(ch, conn))
		return messenger.NewAMQPSender(ch, cfg.Exchange, cfg.RoutingKey), nil
	default:
		return messenger.NewLogSender(logger), nil
	}
}

func closeAMQP(ch *amqp.Channel, conn *amqp.Connection) func() error {
	return func() error {
		return errors.Join(ch.Close(), conn.Close())
	}
}

// Run запускает планировщик и HTTP-сервер и блокируется до отмены ctx.
// При остановке сервер перестает принимать запросы, затем дожидаются
// начатые сообщения и проходы планировщика.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
	}

	a.dispatcher.Close()
	a.scheduler.Stop()
	a.close()
	return runErr
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", sl.Err(err))
		}
	}
	a.closers = nil
}
