// Package middlewarectx содержит HTTP middleware проверки сессионного токена.
//
// TokenMiddleware читает токен из настраиваемого заголовка, проверяет его через
// сервис аутентификации и кладёт в контекст актуальную запись аккаунта из хранилища.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vpn-access/internal/http/response"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// AccountKey ключ аккаунта в контексте.
const AccountKey Key = "account"

// DefaultTokenHeader заголовок с токеном по умолчанию.
const DefaultTokenHeader = "x-access-token"

// Service проверяет токен и возвращает актуальный аккаунт.
type Service interface {
	ValidateToken(ctx context.Context, token string) (*models.Account, error)
}

// TokenMiddleware возвращает middleware, пропускающий запрос только с валидным токеном.
// Все ошибки токена дают 401 с различимым сообщением.
func TokenMiddleware(authService Service, header string, log *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultTokenHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.TokenMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			acc, err := authService.ValidateToken(r.Context(), r.Header.Get(header))
			if err != nil {
				status, msg := tokenFailure(err)
				log.Warn("token rejected", slog.String("reason", msg), sl.Err(err))
				w.WriteHeader(status)
				render.JSON(w, r, response.Error(msg))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), acc)))
		})
	}
}

func tokenFailure(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrTokenMissing):
		return http.StatusUnauthorized, "token is missing"
	case errors.Is(err, models.ErrTokenExpired):
		return http.StatusUnauthorized, "token has expired"
	case errors.Is(err, models.ErrTokenInvalid):
		return http.StatusUnauthorized, "token is invalid"
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusUnauthorized, "token is invalid or user not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// AccountFromContext достаёт аккаунт, положенный TokenMiddleware.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	acc, ok := ctx.Value(AccountKey).(*models.Account)
	return acc, ok && acc != nil
}

// WithAccount кладёт аккаунт в контекст.
func WithAccount(ctx context.Context, acc *models.Account) context.Context {
	return context.WithValue(ctx, AccountKey, acc)
}
