// Package logout реализует выход. Токены не хранятся на сервере, поэтому выход
// только проверяет токен; клиент удаляет его у себя.
package logout

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
)

// Authenticator определяет текущего пользователя запроса.
type Authenticator interface {
	Authenticate(r *http.Request) (*models.User, error)
}

// Handler обрабатывает выход.
type Handler struct {
	log   *slog.Logger
	guard Authenticator
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, g Authenticator) *Handler {
	return &Handler{log: log, guard: g}
}

// ServeHTTP godoc
// @Summary Выход
// @Tags Auth
// @Success 204 "Токен действителен"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /auth/jwt/logout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		slog.String("op", "handlers.auth.logout"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	user, err := h.guard.Authenticate(r)
	if err != nil {
		guard.Reject(w, r, log, err)
		return
	}
	log.Info("logout", slog.String("user_uid", user.UUID))
	w.WriteHeader(http.StatusNoContent)
}
