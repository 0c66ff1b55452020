// Package session хранит в памяти активные разговоры и вычисляет их фазу
// по времени, прошедшему с начала сессии.
//
// Фаза проверяется опросом на каждом входящем сообщении: жесткий лимит
// срабатывает только на следующем ходе пользователя, таймеров нет.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
)

// Phase временная фаза сессии.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseSoftReminder
	PhaseFinalReminder
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseSoftReminder:
		return "soft_reminder"
	case PhaseFinalReminder:
		return "final_reminder"
	case PhaseExpired:
		return "expired"
	}
	return "unknown"
}

// Reminder напоминание, которое нужно показать на текущем ходе.
type Reminder int

const (
	ReminderNone Reminder = iota
	ReminderSoft
	ReminderFinal
)

// Thresholds границы фаз, отсчитываются от начала сессии.
type Thresholds struct {
	Soft  time.Duration
	Final time.Duration
	Hard  time.Duration
}

// PhaseAt чистая функция: фаза для прошедшего времени elapsed.
func PhaseAt(elapsed time.Duration, th Thresholds) Phase {
	switch {
	case elapsed >= th.Hard:
		return PhaseExpired
	case elapsed >= th.Final:
		return PhaseFinalReminder
	case elapsed >= th.Soft:
		return PhaseSoftReminder
	default:
		return PhaseActive
	}
}

// Turn один обмен репликами.
type Turn struct {
	Inbound   string    `json:"inbound"`
	Outbound  string    `json:"outbound"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot копия состояния сессии для чтения вне блокировки.
type Snapshot struct {
	ID                string
	UserID            string
	StartTime         time.Time
	LastContact       time.Time
	SoftReminderSent  bool
	FinalReminderSent bool
	CrisisCount       int
	History           []Turn
}

// Evaluation результат проверки фазы на текущем ходе.
type Evaluation struct {
	Phase     Phase
	Elapsed   time.Duration
	Remaining time.Duration
	// Reminder не равен ReminderNone ровно один раз за сессию для каждого вида.
	Reminder Reminder
}

type conversation struct {
	mu sync.Mutex

	id                string
	userID            string
	startTime         time.Time
	lastContact       time.Time
	softReminderSent  bool
	finalReminderSent bool
	crisisCount       int
	history           []Turn

	// наибольшие наблюдавшиеся значения, чтобы фаза не откатывалась назад
	phase       Phase
	lastElapsed time.Duration
}

func (c *conversation) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:                c.id,
		UserID:            c.userID,
		StartTime:         c.startTime,
		LastContact:       c.lastContact,
		SoftReminderSent:  c.softReminderSent,
		FinalReminderSent: c.finalReminderSent,
		CrisisCount:       c.crisisCount,
		History:           append([]Turn(nil), c.history...),
	}
}

func (c *conversation) touch(now time.Time) Snapshot {
	c.mu.Lock()
	c.lastContact = now
	c.mu.Unlock()
	return c.snapshot()
}

// Tracker набор активных сессий. Сессии разных пользователей не делят
// общую блокировку; у каждой сессии свой мьютекс.
type Tracker struct {
	sessions    sync.Map // userID -> *conversation
	th          Thresholds
	historySize int
	clk         clock.Clock
	log         *slog.Logger
}

// NewTracker создает новый экземпляр Tracker.
func NewTracker(th Thresholds, historySize int, clk clock.Clock, log *slog.Logger) *Tracker {
	return &Tracker{
		th:          th,
		historySize: historySize,
		clk:         clk,
		log:         log,
	}
}

// Thresholds возвращает границы фаз.
func (t *Tracker) Thresholds() Thresholds { return t.th }

func (t *Tracker) load(userID string) (*conversation, bool) {
	v, ok := t.sessions.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*conversation), true
}

// GetOrStart возвращает сессию пользователя, начиная новую при отсутствии,
// и отмечает контакт.
func (t *Tracker) GetOrStart(userID string) (Snapshot, bool) {
	now := t.clk.Now()
	if c, ok := t.load(userID); ok {
		return c.touch(now), false
	}

	fresh := &conversation{
		id:          uuid.NewString(),
		userID:      userID,
		startTime:   now,
		lastContact: now,
	}
	v, loaded := t.sessions.LoadOrStore(userID, fresh)
	c := v.(*conversation)
	if loaded {
		return c.touch(now), false
	}
	t.log.Info("conversation session started", sl.User(userID), slog.String("session_id", c.id))
	return c.snapshot(), true
}

// Get возвращает снимок сессии.
func (t *Tracker) Get(userID string) (Snapshot, bool) {
	c, ok := t.load(userID)
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// Evaluate вычисляет фазу на текущий момент. Фаза и прошедшее время не
// убывают в пределах сессии; напоминание каждого вида выдается один раз,
// что обеспечивают флаги, а не только сравнение времени.
func (t *Tracker) Evaluate(userID string) (Evaluation, bool) {
	c, ok := t.load(userID)
	if !ok {
		return Evaluation{}, false
	}
	now := t.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := max(now.Sub(c.startTime), c.lastElapsed)
	c.lastElapsed = elapsed
	c.phase = max(c.phase, PhaseAt(elapsed, t.th))

	ev := Evaluation{
		Phase:     c.phase,
		Elapsed:   elapsed,
		Remaining: max(0, t.th.Hard-elapsed),
	}
	switch c.phase {
	case PhaseFinalReminder:
		if !c.finalReminderSent {
			c.finalReminderSent = true
			// мягкое напоминание уже неактуально
			c.softReminderSent = true
			ev.Reminder = ReminderFinal
		}
	case PhaseSoftReminder:
		if !c.softReminderSent {
			c.softReminderSent = true
			ev.Reminder = ReminderSoft
		}
	}
	return ev, true
}

// RecordTurn добавляет ход в историю, оставляя только последние historySize.
func (t *Tracker) RecordTurn(userID, inbound, outbound string) {
	c, ok := t.load(userID)
	if !ok {
		return
	}
	now := t.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Turn{Inbound: inbound, Outbound: outbound, Timestamp: now})
	if over := len(c.history) - t.historySize; over > 0 {
		c.history = append([]Turn(nil), c.history[over:]...)
	}
	c.lastContact = now
}

// History возвращает копию ограниченной истории.
func (t *Tracker) History(userID string) []Turn {
	c, ok := t.load(userID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.history...)
}

// IncrementCrisis увеличивает счетчик кризисных сообщений, если сессия есть.
func (t *Tracker) IncrementCrisis(userID string) (int, bool) {
	c, ok := t.load(userID)
	if !ok {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crisisCount++
	c.lastContact = t.clk.Now()
	return c.crisisCount, true
}

// End удаляет сессию.
func (t *Tracker) End(userID string) {
	if v, ok := t.sessions.LoadAndDelete(userID); ok {
		t.log.Info("conversation session ended", sl.User(userID), slog.String("session_id", v.(*conversation).id))
	}
}

// Sweep удаляет сессии без контакта дольше staleness и возвращает их владельцев.
func (t *Tracker) Sweep(staleness time.Duration) []string {
	cutoff := t.clk.Now().Add(-staleness)
	var reaped []string
	t.sessions.Range(func(key, value any) bool {
		c := value.(*conversation)
		c.mu.Lock()
		stale := c.lastContact.Before(cutoff)
		c.mu.Unlock()
		if stale && t.sessions.CompareAndDelete(key, value) {
			reaped = append(reaped, key.(string))
		}
		return true
	})
	return reaped
}

// Len возвращает число активных сессий.
func (t *Tracker) Len() int {
	n := 0
	t.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
