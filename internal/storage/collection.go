// Package storage реализует долговременное хранилище коллекций записей.
//
// Каждое семейство записей (пробные периоды, подписки, ежедневные сессии)
// хранится целиком под своим ключом: загрузка и сохранение всегда работают
// со всей коллекцией. Поврежденное содержимое переносится в резервную копию,
// а коллекция начинается с пустого состояния вместо падения процесса.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/companion-gate/internal/lib/clock"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
)

// Семейства записей.
const (
	FamilyTrials        = "trials"
	FamilySubscriptions = "subscriptions"
	FamilyDailySessions = "daily_sessions"
)

// QuarantineLayout формат метки времени в имени резервной копии.
const QuarantineLayout = "20060102T150405"

var (
	// ErrNotFound возвращается бэкендом, если коллекция еще ни разу не сохранялась.
	ErrNotFound = errors.New("collection not found")
	// ErrUnavailable оборачивает ошибки связи с сетевым бэкендом. Содержимое
	// при этом не читалось, поэтому в карантин оно не уходит.
	ErrUnavailable = errors.New("backend unavailable")
)

// Backend хранит сериализованные коллекции по ключу семейства.
type Backend interface {
	// Read возвращает содержимое коллекции, ErrNotFound или ошибку,
	// оборачивающую ErrUnavailable.
	Read(ctx context.Context, family string) ([]byte, error)
	// Write атомарно заменяет содержимое коллекции.
	Write(ctx context.Context, family string, data []byte) error
	// Quarantine переносит текущее содержимое в резервную копию с суффиксом
	// и возвращает ее расположение.
	Quarantine(ctx context.Context, family, suffix string) (string, error)
}

// Record запись коллекции, умеющая проверить собственную целостность.
type Record interface {
	Valid() bool
}

// Option настраивает Collection.
type Option func(*options)

type options struct {
	onSaveError func(family string)
	onDrop      func(family string)
}

// WithSaveErrorHook вызывается при каждой неудачной записи коллекции.
func WithSaveErrorHook(fn func(family string)) Option {
	return func(o *options) { o.onSaveError = fn }
}

// WithDropHook вызывается для каждой записи, отброшенной при загрузке.
func WithDropHook(fn func(family string)) Option {
	return func(o *options) { o.onDrop = fn }
}

// Collection потокобезопасная коллекция записей, полностью загруженная в память.
// Каждая мутация сразу сохраняет всю коллекцию в бэкенд.
type Collection[T Record] struct {
	family  string
	backend Backend
	clk     clock.Clock
	log     *slog.Logger
	opts    options

	mu      sync.RWMutex
	records map[string]T

	// saveMu упорядочивает записи, чтобы более старый снимок не перезаписал новый.
	saveMu sync.Mutex
}

// Open создает коллекцию и загружает ее содержимое из бэкенда.
func Open[T Record](ctx context.Context, backend Backend, family string, clk clock.Clock, log *slog.Logger, opts ...Option) (*Collection[T], error) {
	const op = "storage.Open"
	c := &Collection[T]{
		family:  family,
		backend: backend,
		clk:     clk,
		log:     log.With(slog.String("family", family)),
		records: make(map[string]T),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	if err := c.Load(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// Family возвращает имя семейства.
func (c *Collection[T]) Family() string { return c.family }

// Load перечитывает коллекцию из бэкенда. Нечитаемое или неразбираемое
// содержимое уходит в карантин, коллекция становится пустой. Отдельные
// битые записи отбрасываются, остальные загружаются. Недоступность бэкенда
// возвращается ошибкой, состояние в памяти при этом не меняется.
func (c *Collection[T]) Load(ctx context.Context) error {
	const op = "storage.Collection.Load"
	log := c.log.With(sl.Op(op))

	data, err := c.backend.Read(ctx, c.family)
	if errors.Is(err, ErrUnavailable) {
		log.Error("backend unavailable, collection not loaded", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	records := make(map[string]T)
	defer func() {
		c.mu.Lock()
		c.records = records
		c.mu.Unlock()
	}()

	if errors.Is(err, ErrNotFound) {
		log.Info("collection not found, starting empty")
		return nil
	}
	if err != nil {
		log.Warn("failed to read collection", sl.Err(err))
		c.quarantine(ctx, log)
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn("failed to parse collection", sl.Err(err))
		c.quarantine(ctx, log)
		return nil
	}

	for id, msg := range raw {
		var rec T
		if err := json.Unmarshal(msg, &rec); err != nil || !rec.Valid() {
			log.Warn("dropping malformed record", sl.User(id))
			if c.opts.onDrop != nil {
				c.opts.onDrop(c.family)
			}
			continue
		}
		records[id] = rec
	}
	log.Info("collection loaded", slog.Int("records", len(records)))
	return nil
}

func (c *Collection[T]) quarantine(ctx context.Context, log *slog.Logger) {
	suffix := c.clk.Now().UTC().Format(QuarantineLayout)
	location, err := c.backend.Quarantine(ctx, c.family, suffix)
	if err != nil {
		log.Warn("failed to quarantine collection", sl.Err(err))
		return
	}
	log.Warn("collection quarantined, starting empty", slog.String("backup", location))
}

// Get возвращает запись пользователя.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// Put сохраняет запись и записывает коллекцию. Запись в памяти обновляется
// даже при ошибке бэкенда: следующая мутация повторит сохранение.
func (c *Collection[T]) Put(ctx context.Context, id string, rec T) error {
	c.mu.Lock()
	c.records[id] = rec
	c.mu.Unlock()
	return c.Save(ctx)
}

// Delete удаляет записи и записывает коллекцию.
func (c *Collection[T]) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	for _, id := range ids {
		delete(c.records, id)
	}
	c.mu.Unlock()
	return c.Save(ctx)
}

// Snapshot возвращает копию коллекции. Итерация по снимку не держит блокировок.
func (c *Collection[T]) Snapshot() map[string]T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]T, len(c.records))
	for id, rec := range c.records {
		out[id] = rec
	}
	return out
}

// Len возвращает число записей.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Save записывает текущее состояние коллекции в бэкенд. Ошибка логируется
// и возвращается; вызывающие считают ее поводом повторить при следующей мутации.
func (c *Collection[T]) Save(ctx context.Context) error {
	const op = "storage.Collection.Save"

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	data, err := json.MarshalIndent(c.records, "", "  ")
	c.mu.RUnlock()
	if err == nil {
		err = c.backend.Write(ctx, c.family, data)
	}
	if err != nil {
		c.log.Warn("failed to save collection", sl.Op(op), sl.Err(err))
		if c.opts.onSaveError != nil {
			c.opts.onSaveError(c.family)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
