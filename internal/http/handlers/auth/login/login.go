// Package login обрабатывает вход по почте и паролю.
//
// Истёкший пробный период блокирует вход даже при верном пароле: ответ 403.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	authservice "github.com/magabrotheeeer/vpn-access/internal/services/auth"
)

// Request учетные данные.
type Request struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Result ответ на успешный вход.
type Result struct {
	Message string         `json:"message" example:"Login successful"`
	Token   string         `json:"token"`
	User    models.Profile `json:"user"`
}

// Service выполняет вход.
type Service interface {
	Login(ctx context.Context, email, password string) (*authservice.LoginResult, error)
}

// Handler обрабатывает POST /auth/login.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Сервис аутентификации
	validate *validator.Validate // Валидатор входных данных
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход
// @Description Проверяет пароль и пробный период, возвращает сессионный токен на 24 часа.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} response.Response{data=Result}
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Пробный период истёк"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			log.Info("invalid credentials")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid email or password"))
		case errors.Is(err, models.ErrTrialExpired):
			log.Info("login denied, trial expired")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("Free trial has expired. Please upgrade to VIP."))
		default:
			log.Error("login failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("login success", slog.Int64("account_id", res.Profile.ID))
	render.JSON(w, r, response.StatusOKWithData(Result{
		Message: "Login successful",
		Token:   res.Token,
		User:    res.Profile,
	}))
}
