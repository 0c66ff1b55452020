// Package webhook реализует HTTP-обработчик входящих сообщений WhatsApp
// (форма Twilio). Ответ пользователю доставляется асинхронно.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/companion-gate/internal/http/response"
	"github.com/magabrotheeeer/companion-gate/internal/lib/sl"
)

// Dispatcher ставит сообщение в асинхронную обработку.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, text string) error
}

// Handler обрабатывает входящие сообщения.
type Handler struct {
	log        *slog.Logger
	dispatcher Dispatcher
	validate   *validator.Validate
}

type inbound struct {
	From string `validate:"required,max=64"`
	Body string
}

// New создает новый Handler с переданным логгером и диспетчером.
func New(log *slog.Logger, dispatcher Dispatcher) *Handler {
	return &Handler{
		log:        log,
		dispatcher: dispatcher,
		validate:   validator.New(),
	}
}

// ServeHTTP принимает форму с полями From и Body. Пустое сообщение
// подтверждается без обработки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if err := r.ParseForm(); err != nil {
		log.Error("failed to parse form", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to parse form"))
		return
	}

	msg := inbound{
		From: strings.TrimSpace(r.PostForm.Get("From")),
		Body: strings.TrimSpace(r.PostForm.Get("Body")),
	}

	if err := h.validate.Struct(msg); err != nil {
		var validateErr validator.ValidationErrors
		if errors.As(err, &validateErr) {
			log.Warn("invalid inbound message", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}
		log.Error("failed to validate inbound message", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	if msg.Body == "" {
		log.Debug("empty message ignored", sl.User(msg.From))
		render.PlainText(w, r, "OK")
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), msg.From, msg.Body); err != nil {
		log.Error("failed to dispatch message", sl.User(msg.From), sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("service unavailable"))
		return
	}

	log.Info("message accepted", sl.User(msg.From))
	render.PlainText(w, r, "OK")
}
