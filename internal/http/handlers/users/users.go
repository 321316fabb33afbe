// Package users содержит обработчики профиля текущего пользователя.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/response"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
)

// Authenticator определяет текущего пользователя запроса.
type Authenticator interface {
	Authenticate(r *http.Request) (*models.User, error)
}

// Updater меняет профиль пользователя.
type Updater interface {
	UpdateMe(ctx context.Context, user *models.User, email, newPassword *string) (*models.User, error)
}

// UpdateRequest изменяемые поля. Отсутствующее поле не меняется.
type UpdateRequest struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Password *string `json:"password,omitempty" validate:"omitempty"`
}

// GreetingResponse ответ GET /me.
type GreetingResponse struct {
	Message string `json:"message" example:"Hello user@example.com!"`
}

// MeHandler обрабатывает GET /users/me.
type MeHandler struct {
	log   *slog.Logger
	guard Authenticator
}

// NewMe создает новый экземпляр MeHandler.
func NewMe(log *slog.Logger, g Authenticator) *MeHandler {
	return &MeHandler{log: log, guard: g}
}

// ServeHTTP godoc
// @Summary Текущий пользователь
// @Tags Users
// @Produce  json
// @Success 200 {object} response.Response{data=models.UserRead}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /users/me [get]
// @Security BearerAuth
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		slog.String("op", "handlers.users.Me"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	user, err := h.guard.Authenticate(r)
	if err != nil {
		guard.Reject(w, r, log, err)
		return
	}
	render.JSON(w, r, response.StatusOKWithData(user.Read()))
}

// GreetingHandler обрабатывает GET /me.
type GreetingHandler struct {
	log   *slog.Logger
	guard Authenticator
}

// NewGreeting создает новый экземпляр GreetingHandler.
func NewGreeting(log *slog.Logger, g Authenticator) *GreetingHandler {
	return &GreetingHandler{log: log, guard: g}
}

// ServeHTTP godoc
// @Summary Приветствие текущего пользователя
// @Tags Users
// @Produce  json
// @Success 200 {object} GreetingResponse
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /me [get]
// @Security BearerAuth
func (h *GreetingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		slog.String("op", "handlers.users.Greeting"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	user, err := h.guard.Authenticate(r)
	if err != nil {
		guard.Reject(w, r, log, err)
		return
	}
	render.JSON(w, r, GreetingResponse{Message: fmt.Sprintf("Hello %s!", user.Email)})
}

// UpdateHandler обрабатывает PATCH /users/me.
type UpdateHandler struct {
	log      *slog.Logger
	guard    Authenticator
	service  Updater
	validate *validator.Validate
}

// NewUpdate создает новый экземпляр UpdateHandler.
func NewUpdate(log *slog.Logger, g Authenticator, service Updater) *UpdateHandler {
	return &UpdateHandler{log: log, guard: g, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Изменение профиля
// @Description Меняет email и/или пароль. Смена email снимает подтверждение.
// @Tags Users
// @Accept  json
// @Produce  json
// @Param request body UpdateRequest true "Новые значения"
// @Success 200 {object} response.Response{data=models.UserRead}
// @Failure 400 {object} response.ErrorResponse "Email занят или пароль слабый"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /users/me [patch]
// @Security BearerAuth
func (h *UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Update"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	user, err := h.guard.Authenticate(r)
	if err != nil {
		guard.Reject(w, r, log, err)
		return
	}

	var req UpdateRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgInvalidBody))
		return
	}
	if err = h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	updated, err := h.service.UpdateMe(r.Context(), user, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(response.MsgUpdateEmailConflict))
		case errors.Is(err, auth.ErrWeakPassword):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(response.MsgInvalidPassword))
		case errors.Is(err, auth.ErrUserNotFound):
			guard.Reject(w, r, log, guard.ErrUnauthenticated)
		default:
			log.Error("failed to update user", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error(response.MsgInternalError))
		}
		return
	}

	log.Info("user updated", slog.String("user_uid", updated.UUID))
	render.JSON(w, r, response.StatusOKWithData(updated.Read()))
}
