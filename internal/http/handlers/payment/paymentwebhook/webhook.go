// Package paymentwebhook принимает уведомления платёжного провайдера.
package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/asterscholar-auth/internal/http/response"
	"github.com/magabrotheeeer/asterscholar-auth/internal/lib/sl"
	"github.com/magabrotheeeer/asterscholar-auth/internal/models"
	"github.com/magabrotheeeer/asterscholar-auth/internal/services/webhook"
)

// MaxBodyBytes предельный размер тела уведомления.
const MaxBodyBytes = 1 << 20

// Service проверяет и применяет событие по сырому телу запроса.
type Service interface {
	Handle(ctx context.Context, h http.Header, body []byte) (*models.PaymentEvent, error)
}

// Ack ответ на принятое событие.
type Ack struct {
	EventID string              `json:"event_id"`
	Outcome models.EventOutcome `json:"outcome"`
}

// Handler обрабатывает POST /payments/webhook.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Уведомление платёжного провайдера
// @Description Подпись проверяется по сырому телу. Повторная доставка того же события подтверждается без изменений.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Success 200 {object} Ack "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Событие не разбирается"
// @Failure 401 {object} response.ErrorResponse "Подпись неверна"
// @Failure 409 {object} response.ErrorResponse "Событие уже обрабатывается"
// @Failure 500 {object} response.ErrorResponse "Временная ошибка, провайдер повторит доставку"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(response.MsgInvalidBody))
		return
	}

	ev, err := h.service.Handle(r.Context(), r.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			log.Warn("invalid or missing webhook signature")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Error(response.MsgInvalidSignature))
		case errors.Is(err, webhook.ErrMalformedEvent):
			log.Warn("malformed webhook event", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(response.MsgMalformedEvent))
		case errors.Is(err, webhook.ErrInFlight):
			log.Info("webhook event already in flight")
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error(response.MsgEventInFlight))
		default:
			log.Error("failed to process webhook event", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error(response.MsgInternalError))
		}
		return
	}

	render.JSON(w, r, Ack{EventID: ev.EventID, Outcome: ev.Outcome})
}
