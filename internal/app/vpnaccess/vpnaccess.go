package vpnaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-access/internal/cache"
	"github.com/magabrotheeeer/vpn-access/internal/config"
	"github.com/magabrotheeeer/vpn-access/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/migrations"
	"github.com/magabrotheeeer/vpn-access/internal/paymentprovider"
	"github.com/magabrotheeeer/vpn-access/internal/provisioning"
	authservice "github.com/magabrotheeeer/vpn-access/internal/services/auth"
	paymentservice "github.com/magabrotheeeer/vpn-access/internal/services/payment"
	"github.com/magabrotheeeer/vpn-access/internal/storage/repository"
)

// App HTTP API со всеми зависимостями.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилища, накатывает миграции и собирает роутер.
// Redis и RabbitMQ необязательны: без адреса дедупликация вебхуков и события апгрейда отключены.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.vpnaccess.New"
	a := &App{logger: logger}

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect storage: %w", op, err)
	}
	a.db = db
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var deduper paymentservice.Deduper
	if cfg.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: cache not initialized: %w", op, err)
		}
		a.cache = c
		deduper = c
	} else {
		logger.Warn("redis address is empty, webhook dedupe disabled")
	}

	var publisher paymentservice.Publisher
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: failed to connect RabbitMQ: %w", op, err)
		}
		a.conn = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEventQueues())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: failed to setup RabbitMQ channel: %w", op, err)
		}
		a.ch = ch
		publisher = rabbitmq.NewPublisher(ch)
	} else {
		logger.Warn("rabbitmq url is empty, upgrade events disabled")
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	profiles := provisioning.NewStub(cfg.ClientsDir, cfg.Endpoint, cfg.DNS)
	authService := authservice.NewAuthService(logger, db, jwtMaker, profiles, authservice.Settings{
		TrialDuration:    cfg.TrialDuration,
		AllowSelfUpgrade: cfg.AllowSelfUpgrade,
	})

	gateway := paymentprovider.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripePriceID, cfg.FrontendURL)
	paymentService := paymentservice.New(logger, gateway, db, deduper, publisher, cfg.WebhookDedupTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Auth:           authService,
		Payment:        paymentService,
		Health:         db,
		TokenHeader:    cfg.TokenHeader,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
