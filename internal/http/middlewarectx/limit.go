package middlewarectx

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"github.com/magabrotheeeer/companion-gate/internal/http/response"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware ограничивает общую частоту запросов через limiter.
func RateLimitMiddleware(limiter *rate.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("too many requests", slog.String("path", r.URL.Path))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// KeyFunc извлекает ключ ограничения из запроса. Пустой ключ не ограничивается.
type KeyFunc func(r *http.Request) string

// FormKey ключ по полю формы.
func FormKey(field string) KeyFunc {
	return func(r *http.Request) string {
		return r.FormValue(field)
	}
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter хранит отдельный limiter на каждый ключ. Записи, не
// использованные дольше idle, удаляются.
type KeyedLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*keyedEntry
	lastPrune time.Time
}

// NewKeyedLimiter создает новый экземпляр KeyedLimiter.
func NewKeyedLimiter(rps float64, burst int, idle time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		idle:    idle,
		now:     time.Now,
		entries: make(map[string]*keyedEntry),
	}
}

// Allow сообщает, можно ли пропустить запрос с ключом key сейчас.
func (k *KeyedLimiter) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastPrune) >= k.idle {
		for id, e := range k.entries {
			if now.Sub(e.lastSeen) >= k.idle {
				delete(k.entries, id)
			}
		}
		k.lastPrune = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len количество отслеживаемых ключей.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// PerKeyRateLimit ограничивает частоту запросов отдельно для каждого ключа.
func PerKeyRateLimit(limiter *KeyedLimiter, keyFn KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key != "" && !limiter.Allow(key) {
				log.Warn("too many requests from sender", sl.User(key))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
