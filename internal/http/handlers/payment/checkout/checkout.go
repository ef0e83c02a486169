// Package checkout создаёт Stripe checkout-сессию для перехода на VIP.
package checkout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	"github.com/magabrotheeeer/vpn-access/internal/paymentprovider"
)

// Result ссылка на оплату.
type Result struct {
	CheckoutURL string `json:"checkout_url" example:"https://checkout.stripe.com/c/pay/cs_test_123"`
	SessionID   string `json:"session_id" example:"cs_test_123"`
}

// Service создаёт checkout-сессию.
type Service interface {
	CreateCheckoutSession(ctx context.Context, acc *models.Account) (*paymentprovider.Session, error)
}

// Handler обрабатывает POST /payment/create-checkout-session.
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
// @Summary Начать оплату VIP
// @Tags Payment
// @Produce  json
// @Security AccessToken
// @Success 200 {object} response.Response{data=Result}
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует, истёк или некорректен"
// @Failure 403 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /payment/create-checkout-session [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.checkout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	acc, ok := middlewarectx.AccountFromContext(r.Context())
	if !ok {
		log.Error("account missing in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	session, err := h.service.CreateCheckoutSession(r.Context(), acc)
	if err != nil {
		log.Error("checkout session failed", slog.Int64("account_id", acc.ID), sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("unable to start checkout"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(Result{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	}))
}
