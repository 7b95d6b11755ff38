// Package stripepay создаёт Stripe Checkout Session для оплаты плана
// и проверяет подпись входящих webhook-событий.
package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Типы событий, которые обрабатывает сервис платежей.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

const metadataPaymentID = "payment_id"

// Ошибки клиента.
var (
	ErrNotConfigured    = errors.New("stripe is not configured")
	ErrInvalidSignature = errors.New("invalid stripe signature")
)

// Config — ключи Stripe и адреса возврата после оплаты.
type Config struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// CheckoutRequest описывает оплату одного платёжного перевода.
type CheckoutRequest struct {
	PaymentID     uuid.UUID
	CustomerEmail string
	PlanName      string
	Currency      string
	Amount        decimal.Decimal
}

// Checkout — созданная сессия оплаты.
type Checkout struct {
	SessionID string
	URL       string
}

// Event — проверенное событие webhook, сведённое к данным, нужным сервису.
type Event struct {
	ID        string
	Type      string
	SessionID string
	PaymentID uuid.UUID
	Paid      bool
}

// Client работает с Stripe API.
type Client struct {
	cfg                   Config
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// New создаёт Client и устанавливает глобальный ключ stripe-go.
func New(cfg Config) *Client {
	stripe.Key = strings.TrimSpace(cfg.APIKey)
	return &Client{
		cfg:                   cfg,
		createCheckoutSession: stripesession.New,
	}
}

// CreateCheckout создаёт разовую Checkout Session на сумму платежа.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	const op = "stripepay.CreateCheckout"
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	paymentID := req.PaymentID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(paymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(MinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.PlanName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{metadataPaymentID: paymentID},
	}
	params.Context = ctx

	session, err := c.createCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Checkout{SessionID: session.ID, URL: session.URL}, nil
}

// ParseWebhook проверяет подпись и разбирает событие.
// Для событий, не относящихся к Checkout Session, заполняются только ID и Type.
func (c *Client) ParseWebhook(payload []byte, sigHeader string) (*Event, error) {
	const op = "stripepay.ParseWebhook"
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventCheckoutCompleted && out.Type != EventCheckoutExpired {
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%s: decode checkout.session: %w", op, err)
	}
	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata[metadataPaymentID]
	}
	paymentID, err := uuid.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%s: checkout session %s has no payment reference: %w", op, session.ID, err)
	}
	out.SessionID = session.ID
	out.PaymentID = paymentID
	out.Paid = session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	return out, nil
}

// MinorUnits переводит сумму в минимальные единицы валюты (центы, сентимо).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
