// Package companion связывает проверки доступа, дневной лимит и сессию
// разговора в обработку одного входящего сообщения.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/metrics"
	"github.com/magabrotheeeer/companion-gate/internal/models"
	"github.com/magabrotheeeer/companion-gate/internal/reply"
	"github.com/magabrotheeeer/companion-gate/internal/services/crisis"
	"github.com/magabrotheeeer/companion-gate/internal/services/entitlement"
	"github.com/magabrotheeeer/companion-gate/internal/services/session"
)

// ErrEmptyUserID возвращается административными операциями без идентификатора.
var ErrEmptyUserID = errors.New("user id is empty")

// Entitlements пробный период и подписка.
type Entitlements interface {
	GetOrCreateTrial(ctx context.Context, userID string) models.TrialRecord
	CanChat(ctx context.Context, userID string) bool
	IsSubscriptionActive(ctx context.Context, userID string) bool
	DaysRemainingTrial(userID string) int
	ActivateSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error)
	Stats() entitlement.Stats
}

// DailyGate дневной лимит сессий.
type DailyGate interface {
	HasUsedSessionToday(userID string) bool
	RegisterSessionCompletion(ctx context.Context, userID string) (models.DailySessionRecord, error)
	TimeUntilNextReset() time.Duration
	IsToday(t time.Time) bool
	CompletedToday() int
}

// Sessions активные разговоры.
type Sessions interface {
	GetOrStart(userID string) (session.Snapshot, bool)
	Evaluate(userID string) (session.Evaluation, bool)
	RecordTurn(userID, inbound, outbound string)
	History(userID string) []session.Turn
	IncrementCrisis(userID string) (int, bool)
	End(userID string)
	Len() int
}

// Replier генератор ответов.
type Replier interface {
	Generate(ctx context.Context, req reply.Request) string
}

// Locker блокировка по пользователю.
type Locker interface {
	Lock(key string) (unlock func())
}

// Service обрабатывает входящие сообщения и административные операции.
type Service struct {
	entitlements Entitlements
	gate         DailyGate
	sessions     Sessions
	replier      Replier
	locks        Locker
	metrics      *metrics.Metrics
	log          *slog.Logger
}

// New создает новый экземпляр Service.
func New(
	entitlements Entitlements,
	gate DailyGate,
	sessions Sessions,
	replier Replier,
	locks Locker,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	return &Service{
		entitlements: entitlements,
		gate:         gate,
		sessions:     sessions,
		replier:      replier,
		locks:        locks,
		metrics:      m,
		log:          log,
	}
}

// HandleMessage возвращает ответ на сообщение пользователя. Ответ всегда
// непустой: любой внутренний сбой превращается в извинение.
func (s *Service) HandleMessage(ctx context.Context, userID, text string) (out string) {
	const op = "companion.HandleMessage"
	log := s.log.With(sl.Op(op), sl.User(userID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling message", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			s.metrics.Messages.WithLabelValues(metrics.OutcomeFailed).Inc()
			out = ApologyText
		}
	}()

	unlock := s.locks.Lock(userID)
	defer unlock()

	outcome, out := s.handle(ctx, log, userID, text)
	if strings.TrimSpace(out) == "" {
		outcome, out = metrics.OutcomeFailed, ApologyText
	}
	s.metrics.Messages.WithLabelValues(outcome).Inc()
	return out
}

func (s *Service) handle(ctx context.Context, log *slog.Logger, userID, text string) (string, string) {
	// кризис проверяется до любых ограничений доступа
	if crisis.Detect(text) {
		s.metrics.CrisisDetected.Inc()
		if n, ok := s.sessions.IncrementCrisis(userID); ok {
			log.Warn("crisis language detected", slog.Int("crisis_count", n))
		} else {
			log.Warn("crisis language detected outside of session")
		}
		return metrics.OutcomeCrisis, CrisisText
	}

	trial := s.entitlements.GetOrCreateTrial(ctx, userID)
	if !s.entitlements.CanChat(ctx, userID) {
		log.Info("access denied: no active trial or subscription")
		return metrics.OutcomeNoAccess, NoAccessText
	}

	if s.gate.HasUsedSessionToday(userID) {
		wait := s.gate.TimeUntilNextReset()
		log.Info("daily session already used", slog.Duration("until_reset", wait))
		return metrics.OutcomeDailyLimit, ComeBackText(wait)
	}

	snap, created := s.sessions.GetOrStart(userID)
	if !created && !s.gate.IsToday(snap.StartTime) {
		// сессия осталась с прошлого дня: прошлую дату задним числом не
		// записываем, сегодняшний день начинается с новой сессии
		log.Info("carried over session discarded",
			slog.String("session_id", snap.ID),
			slog.Time("session_start", snap.StartTime),
		)
		s.sessions.End(userID)
		s.metrics.SessionsFinished.WithLabelValues("day_rollover").Inc()
		_, created = s.sessions.GetOrStart(userID)
	}
	if created {
		s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	}
	ev, _ := s.sessions.Evaluate(userID)

	if ev.Phase == session.PhaseExpired {
		s.finish(ctx, log, userID, ev.Elapsed)
		return metrics.OutcomeExpired, SessionClosedText
	}

	answer := s.replier.Generate(ctx, reply.Request{
		UserMessage: text,
		History:     s.sessions.History(userID),
		Phase:       ev.Phase,
		Remaining:   ev.Remaining,
	})

	switch ev.Reminder {
	case session.ReminderSoft:
		answer += fmt.Sprintf(softNudge, minutesLeft(ev.Remaining))
	case session.ReminderFinal:
		answer += fmt.Sprintf(finalNudge, minutesLeft(ev.Remaining))
	}
	if created && !trial.IsSubscribed && !s.entitlements.IsSubscriptionActive(ctx, userID) {
		answer += fmt.Sprintf(trialNote, s.entitlements.DaysRemainingTrial(userID))
	}

	s.sessions.RecordTurn(userID, text, answer)
	return metrics.OutcomeReplied, answer
}

// finish закрывает сессию по жесткому лимиту. Дневная запись обновляется до
// удаления сессии из памяти.
func (s *Service) finish(ctx context.Context, log *slog.Logger, userID string, elapsed time.Duration) {
	rec, err := s.gate.RegisterSessionCompletion(ctx, userID)
	if err != nil {
		log.Warn("session completion kept in memory only", sl.Err(err))
	}
	s.sessions.End(userID)
	s.metrics.SessionsFinished.WithLabelValues("hard_limit").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	log.Info("session finished",
		slog.Duration("elapsed", elapsed),
		slog.String("last_session_date", rec.LastSessionDate),
		slog.Int("session_count", rec.SessionCount),
	)
}

// ActivateSubscription вручную активирует подписку пользователя. Ошибка
// сохранения не возвращается: подписка уже действует в памяти.
func (s *Service) ActivateSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	const op = "companion.ActivateSubscription"

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.SubscriptionRecord{}, fmt.Errorf("%s: %w", op, ErrEmptyUserID)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	rec, err := s.entitlements.ActivateSubscription(ctx, userID)
	if err != nil {
		s.log.Warn("subscription activated in memory only", sl.Op(op), sl.User(userID), sl.Err(err))
	}
	return rec, nil
}

// StatusReport агрегированное состояние сервиса.
type StatusReport struct {
	ActiveSessions int `json:"active_sessions"`
	entitlement.Stats
	DailySessionsToday int `json:"daily_sessions_today"`
}

// Status собирает статистику без изменения состояния.
func (s *Service) Status(_ context.Context) StatusReport {
	return StatusReport{
		ActiveSessions:     s.sessions.Len(),
		Stats:              s.entitlements.Stats(),
		DailySessionsToday: s.gate.CompletedToday(),
	}
}
