// Package sender собирает процесс, который отправляет письма по событиям из очередей.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-access/internal/config"
	"github.com/magabrotheeeer/vpn-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/vpn-access/internal/services/sender"
)

// App представляет приложение рассылки.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New создает новый экземпляр приложения рассылки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEventQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.NewSenderService(logger, transport, cfg.FrontendURL)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run читает обе очереди до отмены ctx и дожидается обработчиков.
func (a *App) Run(ctx context.Context) error {
	consumers := []struct {
		queue   string
		handler func(context.Context, []byte) error
	}{
		{queue: rabbitmq.QueueTrialExpiring, handler: a.senderService.SendTrialExpiring},
		{queue: rabbitmq.QueueAccountUpgraded, handler: a.senderService.SendAccountUpgraded},
	}

	var done []<-chan struct{}
	for _, c := range consumers {
		d, err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, c.queue, c.handler)
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", c.queue), sl.Err(err))
			a.close()
			return err
		}
		done = append(done, d)
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	for _, d := range done {
		<-d
	}
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
