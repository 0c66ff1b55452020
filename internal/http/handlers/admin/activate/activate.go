// Package activate реализует административный HTTP-обработчик ручной
// активации подписки.
package activate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/companion-gate/internal/http/response"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
	"github.com/magabrotheeeer/companion-gate/internal/models"
)

// Service описывает интерфейс бизнес-логики активации подписки.
type Service interface {
	ActivateSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error)
}

// Request тело запроса активации.
type Request struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// Handler обрабатывает запросы на активацию подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP активирует подписку с текущего
// момента и возвращает сохраненную запись.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.activate.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		if errors.As(err, &validateErr) {
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}
		log.Error("failed to validate request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	rec, err := h.service.ActivateSubscription(r.Context(), req.UserID)
	if err != nil {
		log.Error("failed to activate subscription", sl.User(req.UserID), sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("could not activate subscription"))
		return
	}

	log.Info("subscription activated", sl.User(req.UserID), slog.Time("expires_at", rec.ExpiresAt))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription": rec,
	}))
}
