// Package dailygate ограничивает пользователя одной завершенной сессией
// в календарный день.
package dailygate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/models"
)

// Store коллекция записей о ежедневных сессиях.
type Store interface {
	Get(id string) (models.DailySessionRecord, bool)
	Put(ctx context.Context, id string, rec models.DailySessionRecord) error
	Snapshot() map[string]models.DailySessionRecord
}

// Gate сравнивает календарные даты, а не прошедшие часы: доступ
// возвращается в полночь, а не через 24 часа после начала сессии.
type Gate struct {
	store Store
	loc   *time.Location
	clk   clock.Clock
	log   *slog.Logger
}

// New создает новый экземпляр Gate.
func New(store Store, loc *time.Location, clk clock.Clock, log *slog.Logger) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{store: store, loc: loc, clk: clk, log: log}
}

func (g *Gate) today() string {
	return g.clk.Now().In(g.loc).Format(models.DateLayout)
}

// HasUsedSessionToday сообщает, была ли у пользователя завершенная сессия сегодня.
func (g *Gate) HasUsedSessionToday(userID string) bool {
	rec, ok := g.store.Get(userID)
	return ok && rec.LastSessionDate == g.today()
}

// RegisterSessionCompletion фиксирует завершение сессии сегодняшней датой и
// синхронно сохраняет запись до возврата.
func (g *Gate) RegisterSessionCompletion(ctx context.Context, userID string) (models.DailySessionRecord, error) {
	const op = "dailygate.RegisterSessionCompletion"

	now := g.clk.Now().UTC()
	rec, ok := g.store.Get(userID)
	if !ok {
		rec = models.DailySessionRecord{CreatedAt: now}
	}
	rec.LastSessionDate = g.today()
	rec.SessionCount++
	rec.UpdatedAt = now

	if err := g.store.Put(ctx, userID, rec); err != nil {
		return rec, fmt.Errorf("%s: %w", op, err)
	}
	g.log.Info("daily session completed", sl.User(userID), slog.Int("session_count", rec.SessionCount))
	return rec, nil
}

// IsToday сообщает, приходится ли t на текущий календарный день.
func (g *Gate) IsToday(t time.Time) bool {
	return clock.SameDay(t, g.clk.Now(), g.loc)
}

// TimeUntilNextReset возвращает время до локальной полуночи. Используется
// только для текста ответа пользователю.
func (g *Gate) TimeUntilNextReset() time.Duration {
	return clock.UntilMidnight(g.clk.Now(), g.loc)
}

// CompletedToday возвращает число пользователей, завершивших сессию сегодня.
func (g *Gate) CompletedToday() int {
	today := g.today()
	n := 0
	for _, rec := range g.store.Snapshot() {
		if rec.LastSessionDate == today {
			n++
		}
	}
	return n
}
