// Package paymentprovider обёртка над Stripe: создание checkout-сессий
// и проверка подписи вебхуков.
package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/magabrotheeeer/vpn-access/internal/models"
)

// Типы событий Stripe, которые обрабатывает сервис.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
)

// SessionRequest параметры checkout-сессии для аккаунта.
type SessionRequest struct {
	AccountID int64
	Email     string
}

// Session созданная checkout-сессия.
type Session struct {
	ID  string
	URL string
}

// Event проверенное событие вебхука.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// CheckoutSession минимальное представление объекта checkout.session.
type CheckoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	CustomerEmail     string `json:"customer_email"`
}

// Invoice минимальное представление объекта invoice.
type Invoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// Subscription минимальное представление объекта subscription.
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// Stripe шлюз к Stripe API. Каждый шлюз держит свой клиент с ключом,
// глобальный stripe.Key не используется.
type Stripe struct {
	secretKey     string
	webhookSecret string
	priceID       string
	frontendURL   string

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripe создаёт клиент Stripe с ключом secretKey и возвращает шлюз.
func NewStripe(secretKey, webhookSecret, priceID, frontendURL string) *Stripe {
	secretKey = strings.TrimSpace(secretKey)
	api := stripeclient.New(secretKey, nil)
	return &Stripe{
		secretKey:             secretKey,
		webhookSecret:         strings.TrimSpace(webhookSecret),
		priceID:               strings.TrimSpace(priceID),
		frontendURL:           strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		createCheckoutSession: api.CheckoutSessions.New,
	}
}

// CreateSession создаёт сессию подписки на одну позицию настроенной цены.
// В client_reference_id кладётся id аккаунта.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	const op = "paymentprovider.CreateSession"
	if s.priceID == "" || s.secretKey == "" {
		return nil, fmt.Errorf("%s: %w: checkout is not configured", op, models.ErrProvider)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.successURL()),
		CancelURL:         stripe.String(s.cancelURL()),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.AccountID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	session, err := s.createCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrProvider, err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		return nil, fmt.Errorf("%s: %w: empty checkout url", op, models.ErrProvider)
	}
	return &Session{ID: session.ID, URL: session.URL}, nil
}

// VerifyWebhook проверяет подпись по сырому телу и разбирает событие.
func (s *Stripe) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	const op = "paymentprovider.VerifyWebhook"
	if strings.TrimSpace(sigHeader) == "" {
		return nil, fmt.Errorf("%s: %w: missing signature header", op, models.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%s: %w: %v", op, models.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, models.ErrInvalidPayload, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%s: %w: event id or type is empty", op, models.ErrInvalidPayload)
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}
	return &Event{ID: event.ID, Type: string(event.Type), Raw: raw}, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func (s *Stripe) successURL() string {
	// {CHECKOUT_SESSION_ID} подставляет Stripe, поэтому query собирается вручную
	return s.frontendURL + "/dashboard?payment_success=true&session_id={CHECKOUT_SESSION_ID}"
}

func (s *Stripe) cancelURL() string {
	q := url.Values{"payment_cancelled": {"true"}}
	return s.frontendURL + "/pricing?" + q.Encode()
}
