// Package scheduler выполняет фоновые проходы: напоминания об окончании
// подписки и очистку устаревшего состояния.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/messenger"
	"github.com/magabrotheeeer/companion-gate/internal/metrics"
)

// Entitlements операции над подписками и пробными периодами, нужные проходам.
type Entitlements interface {
	SubscriptionIDs() []string
	DueReminder(ctx context.Context, userID string) (threshold, daysLeft int, ok bool)
	MarkReminderSent(ctx context.Context, userID string, threshold int) error
	PrunableTrials(retention time.Duration) []string
	PruneTrial(ctx context.Context, userID string, retention time.Duration) bool
}

// Sessions хранилище активных разговоров.
type Sessions interface {
	Sweep(staleness time.Duration) []string
	Len() int
}

// Locker блокировка по пользователю.
type Locker interface {
	Lock(key string) (unlock func())
}

// Config интервалы проходов.
type Config struct {
	ReminderInterval time.Duration
	ReminderRetry    time.Duration
	CleanupInterval  time.Duration
	SessionStaleness time.Duration
	TrialRetention   time.Duration
}

// Имена проходов для логов и метрик.
const (
	SweepReminder = "reminder"
	SweepCleanup  = "cleanup"
)

var errPanic = errors.New("sweep panicked")

// SchedulerService запускает проходы в собственных горутинах.
type SchedulerService struct {
	entitlements Entitlements
	sessions     Sessions
	locks        Locker
	sender       messenger.Sender
	cfg          Config
	metrics      *metrics.Metrics
	clk          clock.Clock
	log          *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(
	entitlements Entitlements,
	sessions Sessions,
	locks Locker,
	sender messenger.Sender,
	cfg Config,
	m *metrics.Metrics,
	clk clock.Clock,
	log *slog.Logger,
) *SchedulerService {
	return &SchedulerService{
		entitlements: entitlements,
		sessions:     sessions,
		locks:        locks,
		sender:       sender,
		cfg:          cfg,
		metrics:      m,
		clk:          clk,
		log:          log,
	}
}

// Start запускает оба прохода. Первый запуск каждого прохода происходит сразу.
// Повторный вызов без Stop ничего не делает.
func (s *SchedulerService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.loop(ctx, SweepReminder, s.cfg.ReminderInterval, s.cfg.ReminderRetry, s.RunReminderSweep)
	go s.loop(ctx, SweepCleanup, s.cfg.CleanupInterval, s.cfg.CleanupInterval, s.RunCleanupSweep)
	s.log.Info("scheduler started",
		slog.Duration("reminder_interval", s.cfg.ReminderInterval),
		slog.Duration("cleanup_interval", s.cfg.CleanupInterval),
	)
}

// Stop останавливает проходы и ждет завершения текущих.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *SchedulerService) loop(ctx context.Context, name string, interval, retry time.Duration, run func(context.Context) error) {
	defer s.wg.Done()
	log := s.log.With(slog.String("sweep", name))

	for {
		wait := interval
		if err := s.runSafe(ctx, name, run); err != nil {
			log.Error("sweep failed, retrying sooner", sl.Err(err), slog.Duration("retry", retry))
			wait = retry
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(wait):
		}
	}
}

func (s *SchedulerService) runSafe(ctx context.Context, name string, run func(context.Context) error) (err error) {
	started := s.clk.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panic", slog.String("sweep", name), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
		s.metrics.SweepDuration.WithLabelValues(name).Observe(s.clk.Now().Sub(started).Seconds())
	}()
	return run(ctx)
}

// RunReminderSweep проходит по снимку подписок и отправляет положенные
// напоминания. Флаг ставится после попытки отправки независимо от ее
// результата: доставка не более одного раза. Ошибка означает, что флаг не
// удалось сохранить, и проход стоит повторить раньше обычного.
func (s *SchedulerService) RunReminderSweep(ctx context.Context) error {
	const op = "scheduler.RunReminderSweep"
	log := s.log.With(sl.Op(op))

	ids := s.entitlements.SubscriptionIDs()
	log.Info("starting reminder sweep", slog.Int("subscriptions", len(ids)))

	var sent, failedSaves int
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}
		ok, err := s.remind(ctx, id)
		if ok {
			sent++
		}
		if err != nil {
			failedSaves++
			log.Warn("failed to persist reminder flag", sl.User(id), sl.Err(err))
		}
	}

	log.Info("reminder sweep finished", slog.Int("sent", sent))
	if failedSaves > 0 {
		return fmt.Errorf("%s: %d reminder flags not persisted", op, failedSaves)
	}
	return nil
}

func (s *SchedulerService) remind(ctx context.Context, userID string) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	threshold, daysLeft, due := s.entitlements.DueReminder(ctx, userID)
	if !due {
		return false, nil
	}

	result := "sent"
	msg := messenger.Message{To: userID, Text: ReminderText(daysLeft), Kind: messenger.KindReminder}
	if err := s.sender.Send(ctx, msg); err != nil {
		result = "failed"
		s.log.Warn("failed to send reminder", sl.User(userID), slog.Int("threshold", threshold), sl.Err(err))
	}
	s.metrics.Reminders.WithLabelValues(strconv.Itoa(threshold), result).Inc()

	return true, s.entitlements.MarkReminderSent(ctx, userID, threshold)
}

// RunCleanupSweep удаляет устаревшие разговоры из памяти и давно
// закончившиеся пробные периоды без подписки.
func (s *SchedulerService) RunCleanupSweep(ctx context.Context) error {
	const op = "scheduler.RunCleanupSweep"
	log := s.log.With(sl.Op(op))

	reaped := s.sessions.Sweep(s.cfg.SessionStaleness)
	s.metrics.SessionsFinished.WithLabelValues("stale").Add(float64(len(reaped)))
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))

	pruned := 0
	if s.cfg.TrialRetention > 0 {
		for _, id := range s.entitlements.PrunableTrials(s.cfg.TrialRetention) {
			if ctx.Err() != nil {
				break
			}
			unlock := s.locks.Lock(id)
			// кандидат перепроверяется под блокировкой
			if s.entitlements.PruneTrial(ctx, id, s.cfg.TrialRetention) {
				pruned++
			}
			unlock()
		}
	}

	log.Info("cleanup sweep finished", slog.Int("sessions_reaped", len(reaped)), slog.Int("trials_pruned", pruned))
	return nil
}

// ReminderText текст напоминания об окончании подписки.
func ReminderText(daysLeft int) string {
	switch {
	case daysLeft <= 0:
		return "🌱 Tu suscripción a Alma vence hoy. Renueva para seguir conversando mañana."
	case daysLeft == 1:
		return "🌱 Tu suscripción a Alma vence mañana. Renueva para no perder tu espacio."
	default:
		return fmt.Sprintf("🌱 Tu suscripción a Alma vence en %d días. Renueva cuando quieras para continuar tu camino.", daysLeft)
	}
}
