// Package main VPN Access API
//
// @title           VPN Access API
// @version         1.0
// @description     Регистрация, пробный период, выдача VPN-профиля и оплата VIP через Stripe.

// @host      localhost:5000
// @BasePath  /api

// @securityDefinitions.apikey AccessToken
// @in header
// @name x-access-token
// @description Сессионный токен из /auth/login.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/vpn-access/internal/app/vpnaccess"
	"github.com/magabrotheeeer/vpn-access/internal/config"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.New(cfg.Env, os.Stdout)

	logger.Info("starting vpn-access", slog.String("env", cfg.Env))
	logger.Debug("loaded config", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := vpnaccess.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("vpn-access stopped gracefully")
}
