// Package register обрабатывает регистрацию аккаунта на пробном периоде.
package register

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
)

// Request входные данные для регистрации.
type Request struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// Result ответ на успешную регистрацию.
type Result struct {
	Message string         `json:"message" example:"User registered successfully"`
	User    models.Profile `json:"user"`
}

// Service регистрирует аккаунт.
type Service interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
}

// Handler обрабатывает POST /auth/register.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
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
// @Summary Регистрация
// @Description Создаёт аккаунт с пробным периодом на 7 дней и выдаёт VPN-профиль.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта и пароль"
// @Success 201 {object} response.Response{data=Result}
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 409 {object} response.ErrorResponse "Почта уже зарегистрирована"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /auth/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

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

	acc, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			log.Info("email already registered")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("user already exists"))
			return
		}
		log.Error("registration failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to register user"))
		return
	}

	log.Info("user registered", slog.Int64("account_id", acc.ID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(Result{
		Message: "User registered successfully",
		User:    acc.Profile(),
	}))
}
