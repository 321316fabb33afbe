// Package checkout обрабатывает создание сессии оплаты подписки.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/guard"
	"github.com/magabrotheeeer/asterscholar-auth/internal/http/response"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	checkoutsvc "github.com/magabrotheeeer/asterscholar-auth/internal/services/checkout"
)

// Request тело запроса. product_id можно передать и в query-строке.
type Request struct {
	ProductID string `json:"product_id"`
}

// Authenticator определяет текущего пользователя запроса.
type Authenticator interface {
	Authenticate(r *http.Request) (*models.User, error)
}

// Service создаёт сессию оплаты у провайдера.
type Service interface {
	CreateCheckout(ctx context.Context, user *models.User, productID string) (*checkoutsvc.Result, error)
}

// Handler обрабатывает POST /payments/checkout.
type Handler struct {
	log     *slog.Logger
	guard   Authenticator
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, g Authenticator, service Service) *Handler {
	return &Handler{log: log, guard: g, service: service}
}

// ServeHTTP godoc
// @Summary Создать сессию оплаты
// @Description Создаёт сессию у платёжного провайдера и возвращает ссылку на оплату.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body Request false "Продукт"
// @Param product_id query string false "Продукт, если не передан в теле"
// @Success 200 {object} response.Response{data=checkoutsvc.Result} "Ссылка на оплату"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Некорректный продукт"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /payments/checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checkout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, err := h.guard.Authenticate(r)
	if err != nil {
		guard.Reject(w, r, log, err)
		return
	}

	var req Request
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgInvalidBody))
		return
	}
	if req.ProductID == "" {
		req.ProductID = r.URL.Query().Get("product_id")
	}

	res, err := h.service.CreateCheckout(r.Context(), user, req.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, checkoutsvc.ErrInvalidProduct):
			log.Info("invalid product", slog.String("product_id", req.ProductID))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(response.MsgInvalidProduct))
		case errors.Is(err, checkoutsvc.ErrProcessorUnavailable):
			log.Error("processor failed to create checkout", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.Error(response.MsgProcessorError))
		default:
			log.Error("failed to create checkout", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error(response.MsgInternalError))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(res))
}
