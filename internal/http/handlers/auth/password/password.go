// Package password содержит обработчики восстановления пароля.
package password

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/response"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
)

// ForgotRequest тело запроса письма для сброса.
type ForgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRequest тело запроса смены пароля по токену.
type ResetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Service описывает операции сброса пароля.
type Service interface {
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// ForgotHandler обрабатывает POST /auth/forgot-password.
type ForgotHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewForgot создает новый экземпляр ForgotHandler.
func NewForgot(log *slog.Logger, service Service) *ForgotHandler {
	return &ForgotHandler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Запрос сброса пароля
// @Description Всегда отвечает 202, существует аккаунт или нет.
// @Tags Auth
// @Accept  json
// @Param request body ForgotRequest true "Email"
// @Success 202 "Запрос принят"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/forgot-password [post]
func (h *ForgotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password.Forgot"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ForgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgInvalidBody))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	// ошибка хранилища не должна отличать существующий адрес от несуществующего
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		log.Error("failed to request password reset", sl.Err(err))
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResetHandler обрабатывает POST /auth/reset-password.
type ResetHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewReset создает новый экземпляр ResetHandler.
func NewReset(log *slog.Logger, service Service) *ResetHandler {
	return &ResetHandler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Смена пароля по токену
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body ResetRequest true "Токен и новый пароль"
// @Success 200 {object} response.Response "Пароль изменён"
// @Failure 400 {object} response.ErrorResponse "Токен недействителен или пароль слабый"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/reset-password [post]
func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password.Reset"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgInvalidBody))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := h.service.ResetPassword(r.Context(), req.Token, req.Password)
	switch {
	case err == nil:
		log.Info("password reset")
		render.JSON(w, r, response.StatusOKWithData(nil))
	case errors.Is(err, auth.ErrInvalidToken):
		log.Info("bad reset token", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgBadToken))
	case errors.Is(err, auth.ErrWeakPassword):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgInvalidPassword))
	default:
		log.Error("failed to reset password", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error(response.MsgInternalError))
	}
}
