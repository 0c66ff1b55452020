package companion

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/companion-gate/internal/config"
	"github.com/magabrotheeeer/companion-gate/internal/http/handlers/admin/activate"
	"github.com/magabrotheeeer/companion-gate/internal/http/handlers/admin/status"
	"github.com/magabrotheeeer/companion-gate/internal/http/handlers/health"
	"github.com/magabrotheeeer/companion-gate/internal/http/handlers/webhook"
	"github.com/magabrotheeeer/companion-gate/internal/http/middlewarectx"
)

// senderIdle через сколько простоя забывается лимитер отправителя.
const senderIdle = 30 * time.Minute

// AdminService административные операции.
type AdminService interface {
	activate.Service
	status.Service
}

// Deps зависимости маршрутов.
type Deps struct {
	Dispatcher webhook.Dispatcher
	Service    AdminService
	Tokens     middlewarectx.TokenParser
	Registry   prometheus.Gatherer
	RateLimit  config.RateLimit
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New().ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	senders := middlewarectx.NewKeyedLimiter(deps.RateLimit.PerUserRPS, deps.RateLimit.PerUserBurst, senderIdle)
	r.With(
		middlewarectx.PerKeyRateLimit(senders, middlewarectx.FormKey("From"), logger),
	).Post("/webhook", webhook.New(logger, deps.Dispatcher).ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(rate.NewLimiter(rate.Limit(deps.RateLimit.AdminRPS), max(deps.RateLimit.AdminBurst, 1)), logger))
		r.Use(middlewarectx.AdminJWT(deps.Tokens, logger))
		r.Post("/subscriptions", activate.New(logger, deps.Service).ServeHTTP)
		r.Get("/status", status.New(logger, deps.Service).ServeHTTP)
	})
}
