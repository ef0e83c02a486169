// Package config отдаёт VPN-профиль аккаунта файлом.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	authservice "github.com/magabrotheeeer/vpn-access/internal/services/auth"
)

// Service возвращает профиль аккаунта.
type Service interface {
	VPNConfig(ctx context.Context, acc *models.Account) (*authservice.VPNConfig, error)
}

// Handler обрабатывает GET /user/config.
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
// @Summary Скачать VPN-профиль
// @Tags User
// @Produce  plain
// @Security AccessToken
// @Success 200 {file} file "WireGuard-конфигурация"
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует, истёк или некорректен"
// @Failure 404 {object} response.ErrorResponse "Профиль не выдан"
// @Failure 500 {object} response.ErrorResponse "Не удалось прочитать профиль"
// @Router /user/config [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.config"

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

	cfg, err := h.service.VPNConfig(r.Context(), acc)
	if err != nil {
		if errors.Is(err, models.ErrNoVPNProfile) {
			log.Info("no vpn profile", slog.Int64("account_id", acc.ID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("No VPN configuration found"))
			return
		}
		log.Error("failed to read vpn profile", slog.Int64("account_id", acc.ID), sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("Could not retrieve VPN configuration"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cfg.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(cfg.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(cfg.Content); err != nil {
		log.Error("failed to write vpn profile", sl.Err(err))
	}
}
