// Package upgrade переводит аккаунт в VIP без оплаты.
// Маршрут работает только при trial.allow_self_upgrade.
package upgrade

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// Result ответ на апгрейд.
type Result struct {
	Message string         `json:"message" example:"Account upgraded to VIP"`
	User    models.Profile `json:"user"`
}

// Service выполняет апгрейд.
type Service interface {
	Upgrade(ctx context.Context, acc *models.Account) (*models.Account, error)
}

// Handler обрабатывает POST /user/upgrade.
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
// @Summary Ручной апгрейд до VIP
// @Description Повторный вызов для VIP-аккаунта возвращает 200.
// @Tags User
// @Produce  json
// @Security AccessToken
// @Success 200 {object} response.Response{data=Result}
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует, истёк или некорректен"
// @Failure 404 {object} response.ErrorResponse "Апгрейд выключен"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /user/upgrade [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.upgrade"

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

	updated, err := h.service.Upgrade(r.Context(), acc)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUpgradeDisabled):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("not found"))
		case errors.Is(err, models.ErrAccountNotFound):
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("token is invalid or user not found"))
		default:
			log.Error("upgrade failed", slog.Int64("account_id", acc.ID), sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(Result{
		Message: "Account upgraded to VIP",
		User:    updated.Profile(),
	}))
}
