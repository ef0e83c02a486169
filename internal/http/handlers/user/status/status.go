// Package status отдаёт текущее состояние доступа аккаунта.
package status

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	authservice "github.com/magabrotheeeer/vpn-access/internal/services/auth"
)

// Result данные страницы статуса.
type Result struct {
	Email          string                  `json:"email" example:"user@example.com"`
	Tier           models.Tier             `json:"tier" example:"TRIAL"`
	IsVIP          bool                    `json:"is_vip"`
	State          models.EntitlementState `json:"state" example:"TRIAL_ACTIVE"`
	Plan           string                  `json:"plan" example:"Free Trial"`
	Status         string                  `json:"status" example:"Active"`
	TrialExpiresAt *time.Time              `json:"trial_expires_at"`
	// Учёт трафика не ведётся, поля заполняются заглушками.
	BandwidthUsed  string                  `json:"bandwidth_used" example:"not tracked"`
	BandwidthLimit string                  `json:"bandwidth_limit" example:"5 GB"`
}

const (
	bandwidthNotTracked = "not tracked"
	bandwidthLimitTrial = "5 GB"
	bandwidthLimitVIP   = "Unlimited"
)

func bandwidthLimit(isVIP bool) string {
	if isVIP {
		return bandwidthLimitVIP
	}
	return bandwidthLimitTrial
}

// Service вычисляет статус.
type Service interface {
	Status(acc *models.Account) authservice.Status
}

// Handler обрабатывает GET /user/status.
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
// @Summary Статус аккаунта
// @Description Уровень доступа по актуальным данным хранилища, а не по снимку в токене.
// @Tags User
// @Produce  json
// @Security AccessToken
// @Success 200 {object} response.Response{data=Result}
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует, истёк или некорректен"
// @Router /user/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.status"

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

	st := h.service.Status(acc)
	render.JSON(w, r, response.StatusOKWithData(Result{
		Email:          st.Profile.Email,
		Tier:           st.Profile.Tier,
		IsVIP:          st.Profile.IsVIP,
		State:          st.State,
		Plan:           st.Plan,
		Status:         st.Status,
		TrialExpiresAt: st.Profile.TrialExpiresAt,
		BandwidthUsed:  bandwidthNotTracked,
		BandwidthLimit: bandwidthLimit(st.Profile.IsVIP),
	}))
}
