// Package status реализует административный HTTP-обработчик сводной
// статистики сервиса.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/companion-gate/internal/http/response"
	"github.com/magabrotheeeer/companion-gate/internal/services/companion"
)

// Service описывает интерфейс получения статистики.
type Service interface {
	Status(ctx context.Context) companion.StatusReport
}

// Handler отдает статистику по сессиям, подпискам и пробным периодам.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.status.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	report := h.service.Status(r.Context())
	log.Debug("status collected", slog.Any("report", report))
	render.JSON(w, r, response.StatusOKWithData(report))
}
