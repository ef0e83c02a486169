// Package payment сверяет платежи Stripe с аккаунтами: создаёт checkout-сессии
// и применяет события вебхуков к уровню доступа.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/vpn-access/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/vpn-access/internal/lib/sl"
	"github.com/magabrotheeeer/vpn-access/internal/metrics"
	"github.com/magabrotheeeer/vpn-access/internal/models"
	"github.com/magabrotheeeer/vpn-access/internal/paymentprovider"
)

// Gateway платёжный провайдер.
type Gateway interface {
	CreateSession(ctx context.Context, req paymentprovider.SessionRequest) (*paymentprovider.Session, error)
	VerifyWebhook(payload []byte, sigHeader string) (*paymentprovider.Event, error)
}

// AccountRepository часть хранилища, нужная для сверки.
type AccountRepository interface {
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	ApplyUpgrade(ctx context.Context, id int64, up models.Upgrade) (*models.Account, bool, error)
}

// Deduper запоминает обработанные события.
type Deduper interface {
	Remember(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, key string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

const (
	// webhookInFlightTTL время жизни ключа, пока событие обрабатывается.
	// Если процесс упал до подтверждения, повторная доставка пройдёт после истечения.
	webhookInFlightTTL   = 5 * time.Minute
	dedupeReleaseTimeout = 3 * time.Second
)

// Publisher отправляет сообщения в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Result итог обработки вебхука для логов и метрик.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
	ResultNotFound  Result = "not_found"
	ResultLogged    Result = "logged"
)

// PaymentService сверяет события провайдера с хранилищем аккаунтов.
type PaymentService struct {
	log       *slog.Logger
	gateway   Gateway
	accounts  AccountRepository
	deduper   Deduper
	publisher Publisher
	dedupTTL  time.Duration
	now       func() time.Time
}

// New создает новый экземпляр PaymentService. deduper и publisher могут быть nil.
func New(log *slog.Logger, gateway Gateway, accounts AccountRepository, deduper Deduper,
	publisher Publisher, dedupTTL time.Duration) *PaymentService {
	return &PaymentService{
		log:       log,
		gateway:   gateway,
		accounts:  accounts,
		deduper:   deduper,
		publisher: publisher,
		dedupTTL:  dedupTTL,
		now:       time.Now,
	}
}

// CreateCheckoutSession создаёт hosted checkout для аккаунта.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, acc *models.Account) (*paymentprovider.Session, error) {
	const op = "services.payment.CreateCheckoutSession"
	session, err := s.gateway.CreateSession(ctx, paymentprovider.SessionRequest{
		AccountID: acc.ID,
		Email:     acc.Email,
	})
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		s.log.Error("failed to create checkout session",
			slog.String("op", op), slog.Int64("account_id", acc.ID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("checkout session created",
		slog.String("op", op), slog.Int64("account_id", acc.ID), slog.String("session_id", session.ID))
	return session, nil
}

// HandleWebhook проверяет подпись и применяет событие.
//
// Ошибка с models.ErrInvalidPayload или models.ErrInvalidSignature означает,
// что доставка отклонена. Любая другая ошибка временная: провайдер повторит доставку.
// Неизвестный аккаунт ошибкой не считается.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (Result, error) {
	const op = "services.payment.HandleWebhook"
	log := s.log.With(slog.String("op", op))

	event, err := s.gateway.VerifyWebhook(payload, sigHeader)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", metrics.OutcomeRejected).Inc()
		log.Warn("webhook rejected", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log = log.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))

	key := "webhook:" + event.ID
	claimed := false
	if s.deduper != nil {
		fresh, err := s.deduper.Remember(ctx, key, s.inFlightTTL())
		switch {
		case err != nil:
			log.Warn("webhook dedupe unavailable", sl.Err(err))
		case !fresh:
			metrics.WebhookEventsTotal.WithLabelValues(event.Type, metrics.OutcomeDuplicate).Inc()
			log.Info("duplicate webhook delivery skipped")
			return ResultDuplicate, nil
		default:
			claimed = true
		}
	}

	result, err := s.dispatch(ctx, log, event)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, metrics.OutcomeFailure).Inc()
		if claimed {
			s.releaseKey(ctx, log, key)
		}
		log.Error("failed to process webhook", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if claimed {
		s.confirmKey(ctx, log, key)
	}

	outcome := metrics.OutcomeSuccess
	if result != ResultApplied {
		outcome = metrics.OutcomeIgnored
	}
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, outcome).Inc()
	return result, nil
}

func (s *PaymentService) inFlightTTL() time.Duration {
	return min(webhookInFlightTTL, s.dedupTTL)
}

// confirmKey продлевает ключ на полный dedupTTL после успешной обработки.
// Контекст запроса к этому моменту может быть уже отменён.
func (s *PaymentService) confirmKey(ctx context.Context, log *slog.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupeReleaseTimeout)
	defer cancel()
	if err := s.deduper.Extend(ctx, key, s.dedupTTL); err != nil {
		log.Warn("failed to confirm webhook dedupe key", sl.Err(err))
	}
}

// releaseKey снимает ключ, чтобы повторная доставка провайдера была обработана.
func (s *PaymentService) releaseKey(ctx context.Context, log *slog.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupeReleaseTimeout)
	defer cancel()
	if err := s.deduper.Forget(ctx, key); err != nil {
		log.Warn("failed to release webhook dedupe key", sl.Err(err))
	}
}

func (s *PaymentService) dispatch(ctx context.Context, log *slog.Logger, event *paymentprovider.Event) (Result, error) {
	switch event.Type {
	case paymentprovider.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, log, event)
	case paymentprovider.EventInvoicePaymentSucceeded, paymentprovider.EventInvoicePaymentFailed:
		var inv paymentprovider.Invoice
		if err := json.Unmarshal(event.Raw, &inv); err != nil {
			log.Warn("failed to decode invoice", sl.Err(err))
			return ResultLogged, nil
		}
		log.Info("invoice event received",
			slog.String("invoice_id", inv.ID),
			slog.String("customer", inv.Customer),
			slog.String("subscription", inv.Subscription))
		return ResultLogged, nil
	case paymentprovider.EventSubscriptionDeleted:
		var sub paymentprovider.Subscription
		if err := json.Unmarshal(event.Raw, &sub); err != nil {
			log.Warn("failed to decode subscription", sl.Err(err))
			return ResultLogged, nil
		}
		// VIP не отзывается: политика отката пока не определена
		log.Info("subscription deleted",
			slog.String("subscription", sub.ID),
			slog.String("customer", sub.Customer),
			slog.String("status", sub.Status))
		return ResultLogged, nil
	default:
		log.Info("unhandled webhook event type")
		return ResultIgnored, nil
	}
}

func (s *PaymentService) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, event *paymentprovider.Event) (Result, error) {
	var session paymentprovider.CheckoutSession
	if err := json.Unmarshal(event.Raw, &session); err != nil {
		log.Warn("failed to decode checkout session", sl.Err(err))
		return ResultIgnored, nil
	}
	log = log.With(slog.String("client_reference_id", session.ClientReferenceID))

	accountID, err := strconv.ParseInt(strings.TrimSpace(session.ClientReferenceID), 10, 64)
	if err != nil || accountID <= 0 {
		log.Warn("checkout session has no valid account reference", slog.String("condition", "NotFound"))
		return ResultNotFound, nil
	}

	acc, changed, err := s.accounts.ApplyUpgrade(ctx, accountID, models.Upgrade{
		CustomerRef:     session.Customer,
		SubscriptionRef: session.Subscription,
	})
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			log.Warn("checkout session references unknown account", slog.String("condition", "NotFound"))
			return ResultNotFound, nil
		}
		return "", err
	}

	if !changed {
		log.Info("account already vip", slog.Int64("account_id", acc.ID))
		return ResultApplied, nil
	}
	metrics.UpgradesTotal.WithLabelValues("payment").Inc()
	log.Info("account upgraded to vip", slog.Int64("account_id", acc.ID), slog.String("source", "payment"))

	if s.publisher != nil {
		msg := models.AccountUpgradedMessage{
			AccountID:  acc.ID,
			Email:      acc.Email,
			EventID:    event.ID,
			UpgradedAt: s.now().UTC(),
		}
		if err := s.publisher.Publish(ctx, rabbitmq.RoutingKeyAccountUpgraded, msg); err != nil {
			log.Warn("failed to publish account upgraded message", sl.Err(err))
		}
	}
	return ResultApplied, nil
}
