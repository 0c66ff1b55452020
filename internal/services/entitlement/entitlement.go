// Package entitlement отслеживает пробный период и платную подписку пользователя
// и решает, может ли он сейчас общаться.
//
// Методы, изменяющие записи, рассчитаны на то, что вызывающий держит
// блокировку пользователя (см. keymutex); сам Tracker блокирует только
// коллекции целиком.
package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/models"
)

// TrialStore коллекция пробных периодов.
type TrialStore interface {
	Get(id string) (models.TrialRecord, bool)
	Put(ctx context.Context, id string, rec models.TrialRecord) error
	Delete(ctx context.Context, ids ...string) error
	Snapshot() map[string]models.TrialRecord
}

// SubscriptionStore коллекция подписок.
type SubscriptionStore interface {
	Get(id string) (models.SubscriptionRecord, bool)
	Put(ctx context.Context, id string, rec models.SubscriptionRecord) error
	Snapshot() map[string]models.SubscriptionRecord
}

// Policy длительности периодов и часовой пояс календарных дней.
type Policy struct {
	TrialDays        int
	SubscriptionDays int
	Location         *time.Location
}

// Tracker реализует жизненный цикл пробного периода и подписки.
type Tracker struct {
	trials TrialStore
	subs   SubscriptionStore
	policy Policy
	clk    clock.Clock
	log    *slog.Logger
}

// NewTracker создает новый экземпляр Tracker.
func NewTracker(trials TrialStore, subs SubscriptionStore, policy Policy, clk clock.Clock, log *slog.Logger) *Tracker {
	if policy.Location == nil {
		policy.Location = time.Local
	}
	return &Tracker{
		trials: trials,
		subs:   subs,
		policy: policy,
		clk:    clk,
		log:    log,
	}
}

// GetOrCreateTrial возвращает пробный период пользователя, создавая его при
// первом обращении.
func (t *Tracker) GetOrCreateTrial(ctx context.Context, userID string) models.TrialRecord {
	if rec, ok := t.trials.Get(userID); ok {
		return rec
	}
	now := t.clk.Now().UTC()
	rec := models.TrialRecord{
		StartDate: now,
		EndDate:   now.AddDate(0, 0, t.policy.TrialDays),
	}
	if err := t.trials.Put(ctx, userID, rec); err != nil {
		t.log.Warn("trial created in memory only", sl.User(userID), sl.Err(err))
	}
	t.log.Info("trial started", sl.User(userID), slog.Time("end_date", rec.EndDate))
	return rec
}

// IsTrialActive сообщает, не закончился ли пробный период: сегодня <= дата окончания.
func (t *Tracker) IsTrialActive(userID string) bool {
	rec, ok := t.trials.Get(userID)
	if !ok {
		return false
	}
	return clock.DaysBetween(t.clk.Now(), rec.EndDate, t.policy.Location) >= 0
}

// DaysRemainingTrial возвращает число целых дней до окончания пробного периода.
func (t *Tracker) DaysRemainingTrial(userID string) int {
	rec, ok := t.trials.Get(userID)
	if !ok {
		return 0
	}
	return max(0, clock.DaysBetween(t.clk.Now(), rec.EndDate, t.policy.Location))
}

// ActivateSubscription создает или заменяет подписку: срок отсчитывается от
// текущего момента, продления не суммируются, флаги напоминаний сбрасываются.
// Возвращаемая ошибка означает только сбой сохранения: в памяти подписка уже
// активна и будет записана при следующей мутации.
func (t *Tracker) ActivateSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	now := t.clk.Now().UTC()
	rec := models.SubscriptionRecord{
		ActivatedAt:      now,
		ExpiresAt:        now.AddDate(0, 0, t.policy.SubscriptionDays),
		Status:           models.StatusActive,
		ActivatedByAdmin: true,
	}
	saveErr := t.subs.Put(ctx, userID, rec)

	trial := t.GetOrCreateTrial(ctx, userID)
	if !trial.IsSubscribed {
		trial.IsSubscribed = true
		if err := t.trials.Put(ctx, userID, trial); err != nil && saveErr == nil {
			saveErr = err
		}
	}

	t.log.Info("subscription activated", sl.User(userID), slog.Time("expires_at", rec.ExpiresAt))
	return rec, saveErr
}

// StatusAt вычисляет статус подписки на момент now без побочных эффектов.
// Истекшая подписка никогда не становится активной сама по себе.
func StatusAt(rec models.SubscriptionRecord, now time.Time, loc *time.Location) models.SubscriptionStatus {
	if rec.Status != models.StatusActive {
		return models.StatusExpired
	}
	if clock.DaysBetween(now, rec.ExpiresAt, loc) < 0 {
		return models.StatusExpired
	}
	return models.StatusActive
}

// Subscription возвращает подписку, предварительно согласовав ее статус.
func (t *Tracker) Subscription(ctx context.Context, userID string) (models.SubscriptionRecord, bool) {
	rec, ok := t.subs.Get(userID)
	if !ok {
		return models.SubscriptionRecord{}, false
	}
	return t.reconcile(ctx, userID, rec), true
}

// reconcile записывает переход active -> expired, если он уже наступил.
func (t *Tracker) reconcile(ctx context.Context, userID string, rec models.SubscriptionRecord) models.SubscriptionRecord {
	status := StatusAt(rec, t.clk.Now(), t.policy.Location)
	if status == rec.Status {
		return rec
	}
	rec.Status = status
	if err := t.subs.Put(ctx, userID, rec); err != nil {
		t.log.Warn("expired status kept in memory only", sl.User(userID), sl.Err(err))
	}
	t.log.Info("subscription expired", sl.User(userID), slog.Time("expires_at", rec.ExpiresAt))
	return rec
}

// IsSubscriptionActive сообщает, действует ли подписка. Отсутствие записи
// означает отсутствие подписки, а не ошибку.
func (t *Tracker) IsSubscriptionActive(ctx context.Context, userID string) bool {
	rec, ok := t.Subscription(ctx, userID)
	return ok && rec.Status == models.StatusActive
}

// DaysRemainingSubscription возвращает число целых дней до окончания подписки.
func (t *Tracker) DaysRemainingSubscription(ctx context.Context, userID string) int {
	rec, ok := t.Subscription(ctx, userID)
	if !ok || rec.Status != models.StatusActive {
		return 0
	}
	return max(0, clock.DaysBetween(t.clk.Now(), rec.ExpiresAt, t.policy.Location))
}

// CanChat: подписка проверяется первой и, если активна, пробный период не смотрится.
func (t *Tracker) CanChat(ctx context.Context, userID string) bool {
	if t.IsSubscriptionActive(ctx, userID) {
		return true
	}
	return t.IsTrialActive(userID)
}

// DueReminder возвращает порог напоминания, которое пора отправить для
// подписки пользователя. Берется самый близкий к сроку порог, если он еще
// не отправлялся.
func (t *Tracker) DueReminder(ctx context.Context, userID string) (threshold, daysLeft int, ok bool) {
	rec, found := t.Subscription(ctx, userID)
	if !found || rec.Status != models.StatusActive {
		return 0, 0, false
	}
	daysLeft = clock.DaysBetween(t.clk.Now(), rec.ExpiresAt, t.policy.Location)
	for i := len(models.ReminderThresholds) - 1; i >= 0; i-- {
		th := models.ReminderThresholds[i]
		if daysLeft > th {
			continue
		}
		if rec.ReminderSent(th) {
			return 0, daysLeft, false
		}
		return th, daysLeft, true
	}
	return 0, daysLeft, false
}

// MarkReminderSent отмечает порог threshold и все более ранние пороги как
// отправленные, чтобы пропущенные напоминания не догоняли более свежее.
func (t *Tracker) MarkReminderSent(ctx context.Context, userID string, threshold int) error {
	rec, ok := t.subs.Get(userID)
	if !ok {
		return nil
	}
	for _, th := range models.ReminderThresholds {
		if th >= threshold {
			rec.MarkReminderSent(th)
		}
	}
	return t.subs.Put(ctx, userID, rec)
}

// PruneTrial удаляет пробный период, закончившийся более retention назад,
// если у пользователя нет действующей подписки. Возвращает true при удалении.
func (t *Tracker) PruneTrial(ctx context.Context, userID string, retention time.Duration) bool {
	rec, ok := t.trials.Get(userID)
	if !ok || !t.trialPrunable(userID, rec, retention) {
		return false
	}
	if err := t.trials.Delete(ctx, userID); err != nil {
		t.log.Warn("trial pruned in memory only", sl.User(userID), sl.Err(err))
	}
	return true
}

// PrunableTrials возвращает кандидатов на удаление по снимку коллекции.
func (t *Tracker) PrunableTrials(retention time.Duration) []string {
	var ids []string
	for id, rec := range t.trials.Snapshot() {
		if t.trialPrunable(id, rec, retention) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *Tracker) trialPrunable(userID string, rec models.TrialRecord, retention time.Duration) bool {
	if t.clk.Now().Before(rec.EndDate.Add(retention)) {
		return false
	}
	if sub, ok := t.subs.Get(userID); ok && StatusAt(sub, t.clk.Now(), t.policy.Location) == models.StatusActive {
		return false
	}
	return true
}

// SubscriptionIDs возвращает идентификаторы всех пользователей с подпиской.
func (t *Tracker) SubscriptionIDs() []string {
	snap := t.subs.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	return ids
}

// Stats агрегированные счетчики для статуса сервиса.
type Stats struct {
	ActiveSubscriptions int `json:"active_subscriptions"`
	TotalSubscriptions  int `json:"total_subscriptions"`
	ActiveTrials        int `json:"active_trials"`
	TotalTrials         int `json:"total_trials"`
}

// Stats считает статистику по снимкам коллекций, ничего не записывая.
func (t *Tracker) Stats() Stats {
	now := t.clk.Now()
	var s Stats
	for _, rec := range t.subs.Snapshot() {
		s.TotalSubscriptions++
		if StatusAt(rec, now, t.policy.Location) == models.StatusActive {
			s.ActiveSubscriptions++
		}
	}
	for _, rec := range t.trials.Snapshot() {
		s.TotalTrials++
		if clock.DaysBetween(now, rec.EndDate, t.policy.Location) >= 0 {
			s.ActiveTrials++
		}
	}
	return s
}
