// Package verify содержит обработчики подтверждения email: повторный запрос
// письма и подтверждение по токену.
package verify

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
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/auth"
)

// RequestTokenRequest тело запроса повторной отправки письма.
type RequestTokenRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyRequest тело запроса подтверждения.
type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// Service описывает операции подтверждения email.
type Service interface {
	RequestVerifyToken(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
}

// RequestTokenHandler обрабатывает POST /auth/request-verify-token.
type RequestTokenHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewRequestToken создает новый экземпляр RequestTokenHandler.
func NewRequestToken(log *slog.Logger, service Service) *RequestTokenHandler {
	return &RequestTokenHandler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Повторная отправка письма подтверждения
// @Description Ответ не зависит от того, существует ли аккаунт.
// @Tags Auth
// @Accept  json
// @Param request body RequestTokenRequest true "Email"
// @Success 202 "Запрос принят"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/request-verify-token [post]
func (h *RequestTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify.RequestToken"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req RequestTokenRequest
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

	if err := h.service.RequestVerifyToken(r.Context(), req.Email); err != nil {
		log.Error("failed to request verify token", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error(response.MsgInternalError))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// VerifyHandler обрабатывает POST /auth/verify.
type VerifyHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewVerify создает новый экземпляр VerifyHandler.
func NewVerify(log *slog.Logger, service Service) *VerifyHandler {
	return &VerifyHandler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP godoc
// @Summary Подтверждение email
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body VerifyRequest true "Токен из письма"
// @Success 200 {object} response.Response{data=models.UserRead} "Email подтверждён"
// @Failure 400 {object} response.ErrorResponse "Токен недействителен"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /auth/verify [post]
func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify.Verify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req VerifyRequest
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

	user, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			log.Info("bad verify token", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(response.MsgBadToken))
			return
		}
		log.Error("failed to verify email", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error(response.MsgInternalError))
		return
	}

	log.Info("email verified", slog.String("user_uid", user.UUID))
	render.JSON(w, r, response.StatusOKWithData(user.Read()))
}
