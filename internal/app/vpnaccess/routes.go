// Package vpnaccess собирает HTTP API VPN-сервиса.
package vpnaccess

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	// Регистрация swagger-спецификации.
	_ "github.com/magabrotheeeer/vpn-access/docs"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/health"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/payment/checkout"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/payment/webhook"
	userconfig "github.com/magabrotheeeer/vpn-access/internal/http/handlers/user/config"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/user/status"
	"github.com/magabrotheeeer/vpn-access/internal/http/handlers/user/upgrade"
	"github.com/magabrotheeeer/vpn-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vpn-access/internal/metrics"
	authservice "github.com/magabrotheeeer/vpn-access/internal/services/auth"
	paymentservice "github.com/magabrotheeeer/vpn-access/internal/services/payment"
)

// Services зависимости маршрутов.
type Services struct {
	Auth           *authservice.AuthService
	Payment        *paymentservice.PaymentService
	Health         health.Checker
	TokenHeader    string
	AllowedOrigins []string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	tokenHeader := s.TokenHeader
	if tokenHeader == "" {
		tokenHeader = middlewarectx.DefaultTokenHeader
	}

	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		metrics.HTTPMiddleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", tokenHeader},
			ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.New(logger, s.Health).ServeHTTP)

		r.Post("/auth/register", register.New(logger, s.Auth).ServeHTTP)
		r.Post("/auth/login", login.New(logger, s.Auth).ServeHTTP)

		// Stripe подписывает тело, токена нет
		r.Post("/payment/webhook", webhook.New(logger, s.Payment).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.TokenMiddleware(s.Auth, tokenHeader, logger))
			r.Get("/user/status", status.New(logger, s.Auth).ServeHTTP)
			r.Get("/user/config", userconfig.New(logger, s.Auth).ServeHTTP)
			r.Post("/user/upgrade", upgrade.New(logger, s.Auth).ServeHTTP)
			r.Post("/payment/create-checkout-session", checkout.New(logger, s.Payment).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
