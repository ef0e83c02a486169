// Package webhook принимает события Stripe.
//
// Подпись проверяется по сырому телу запроса. После успешной проверки ответ 200,
// кроме временных ошибок хранилища: на них 500, чтобы Stripe повторил доставку.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	"github.com/magabrotheeeer/vpn-access/internal/services/payment"
)

const bodyLimit = 1 << 20

// SignatureHeader заголовок подписи Stripe.
const SignatureHeader = "Stripe-Signature"

// Ack подтверждение получения.
type Ack struct {
	Received bool `json:"received" example:"true"`
}

// Service проверяет и применяет событие.
type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (payment.Result, error)
}

// Handler обрабатывает POST /payment/webhook.
type Handler struct {
	log     *slog.Logger
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
// @Summary Вебхук Stripe
// @Tags Payment
// @Accept  json
// @Produce  json
// @Param Stripe-Signature header string true "Подпись Stripe"
// @Success 200 {object} Ack
// @Failure 400 {object} response.ErrorResponse "Некорректное тело или подпись"
// @Failure 500 {object} response.ErrorResponse "Временная ошибка, Stripe повторит доставку"
// @Router /payment/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, bodyLimit))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("Invalid payload"))
		return
	}

	result, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSignature):
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid signature"))
		case errors.Is(err, models.ErrInvalidPayload):
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("Invalid payload"))
		default:
			log.Error("webhook processing failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to process webhook"))
		}
		return
	}

	log.Info("webhook acknowledged", slog.String("result", string(result)))
	render.JSON(w, r, Ack{Received: true})
}
