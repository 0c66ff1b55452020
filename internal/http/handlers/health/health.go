package health

import (
	"net/http"

	"github.com/go-chi/render"
)

// Handler проверка доступности сервиса.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "healthy",
		"service": "companion",
	})
}
