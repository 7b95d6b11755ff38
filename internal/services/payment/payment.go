// Package payment ведёт платёжные транзакции: создание, оплату через Stripe Checkout,
// подтверждение ручной оплаты и её проверку администратором.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/lib/stripepay"
	"github.com/magabrotheeeer/finance-saas/internal/metrics"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/audit"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

var (
	// ErrNotFound — транзакции нет или она принадлежит другому пользователю.
	ErrNotFound = errors.New("payment not found")
	// ErrInvalidState — транзакция или подтверждение не в том состоянии для операции.
	ErrInvalidState = errors.New("payment is not in a reviewable state")
	// ErrReasonRequired — отклонение без причины.
	ErrReasonRequired = errors.New("rejection reason is required")
	// ErrUnknownPlan — план не найден или выключен.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrUnknownMethod — способ оплаты не найден или выключен.
	ErrUnknownMethod = errors.New("unknown payment method")
	// ErrNotManual — подтверждение возможно только для ручных способов оплаты.
	ErrNotManual = errors.New("payment method does not accept manual confirmation")
	// ErrReferenceRequired — подтверждение без номера операции.
	ErrReferenceRequired = errors.New("payment reference is required")
)

// Repository — хранилище платежей, планов и пользователей.
type Repository interface {
	GetPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListPaymentMethods(ctx context.Context, activeOnly bool) ([]*models.PaymentMethod, error)
	GetPaymentMethodByCode(ctx context.Context, code models.PaymentMethodCode) (*models.PaymentMethod, error)
	CreatePaymentTransaction(ctx context.Context, t *models.PaymentTransaction) (*models.PaymentTransaction, error)
	SetPaymentExternalRef(ctx context.Context, id uuid.UUID, ref string) error
	GetPaymentTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	ListUserPayments(ctx context.Context, userID uuid.UUID, page models.Page) ([]*models.PaymentTransaction, int64, error)
	ListPayments(ctx context.Context, status models.PaymentStatus, page models.Page) ([]*models.PaymentTransaction, int64, error)
	SubmitConfirmation(ctx context.Context, c *models.PaymentConfirmation) (*models.PaymentConfirmation, error)
	CancelPayment(ctx context.Context, userID, id uuid.UUID) error
	ApprovePayment(ctx context.Context, p models.ApprovePaymentParams) (*models.PaymentTransaction, error)
	RejectPayment(ctx context.Context, p models.RejectPaymentParams) (*models.PaymentTransaction, error)
	CompleteGatewayPayment(ctx context.Context, p models.ApprovePaymentParams) (*models.PaymentTransaction, bool, error)
	FailGatewayPayment(ctx context.Context, id uuid.UUID) (bool, error)
}

// Campaigns проверяет промокод и считает цену со скидкой.
type Campaigns interface {
	Validate(ctx context.Context, code string, planType models.PlanType) (*campaign.Quote, error)
}

// Gateway — платёжный шлюз (Stripe Checkout).
type Gateway interface {
	CreateCheckout(ctx context.Context, req stripepay.CheckoutRequest) (*stripepay.Checkout, error)
	ParseWebhook(payload []byte, sigHeader string) (*stripepay.Event, error)
}

// Notifier ставит уведомление пользователю в очередь.
type Notifier interface {
	Send(ctx context.Context, userID uuid.UUID, templateID string, params map[string]any) error
}

// Auditor пишет журнал действий.
type Auditor interface {
	Log(ctx context.Context, entry *models.AuditLog)
}

// InitiateRequest — выбор плана, способа оплаты и необязательного промокода.
type InitiateRequest struct {
	PlanType   models.PlanType          `json:"planType" validate:"required,oneof=basic premium enterprise"`
	MethodCode models.PaymentMethodCode `json:"methodCode" validate:"required"`
	CouponCode string                   `json:"couponCode,omitempty"`
}

// ConfirmRequest — данные ручной оплаты от пользователя.
type ConfirmRequest struct {
	TransactionID uuid.UUID `json:"transactionId" validate:"required"`
	Reference     string    `json:"reference" validate:"required"`
	ProofURL      string    `json:"proofUrl,omitempty" validate:"omitempty,url"`
	Notes         string    `json:"notes,omitempty"`
}

// Service — платёжная логика.
type Service struct {
	repo       Repository
	campaigns  Campaigns
	gateway    Gateway
	notifier   Notifier
	audit      Auditor
	log        *slog.Logger
	paidPeriod time.Duration
	now        func() time.Time
}

// New создаёт сервис. paidDays — длительность оплаченного периода; gateway может быть nil,
// тогда оплата через Stripe недоступна.
func New(repo Repository, campaigns Campaigns, gateway Gateway, notifier Notifier, auditor Auditor, paidDays int, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		campaigns:  campaigns,
		gateway:    gateway,
		notifier:   notifier,
		audit:      auditor,
		log:        log,
		paidPeriod: time.Duration(paidDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// Methods возвращает включённые способы оплаты с инструкциями.
func (s *Service) Methods(ctx context.Context) ([]*models.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, true)
}

// Initiate создаёт транзакцию в pending по цене плана со скидкой кампании.
// Промокод только проверяется: использование засчитывается при завершении оплаты.
// Для Stripe создаётся Checkout Session, её адрес возвращается в CheckoutURL.
func (s *Service) Initiate(ctx context.Context, userID uuid.UUID, req InitiateRequest) (*models.PaymentTransaction, error) {
	const op = "payment.Initiate"

	plan, err := s.repo.GetPlanByType(ctx, req.PlanType)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownPlan)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownPlan)
	}

	method, err := s.repo.GetPaymentMethodByCode(ctx, req.MethodCode)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownMethod)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !method.IsActive {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownMethod)
	}

	t := &models.PaymentTransaction{
		UserID:          userID,
		PlanID:          plan.ID,
		PaymentMethodID: method.ID,
		Amount:          plan.Price,
		Discount:        decimal.Zero,
		FinalAmount:     plan.Price,
		Currency:        plan.Currency,
	}
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		quote, err := s.campaigns.Validate(ctx, code, plan.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		t.CampaignID = &quote.Campaign.ID
		t.Discount = quote.Discount
		t.FinalAmount = quote.FinalAmount
	}

	created, err := s.repo.CreatePaymentTransaction(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if method.Kind == models.MethodKindGateway {
		if err := s.startCheckout(ctx, created, plan); err != nil {
			if _, failErr := s.repo.FailGatewayPayment(ctx, created.ID); failErr != nil {
				s.log.Error("failed to mark payment without checkout as failed",
					slog.String("payment_id", created.ID.String()),
					sl.Err(failErr),
				)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Info("payment initiated",
		slog.String("payment_id", created.ID.String()),
		sl.UserID(userID),
		slog.String("method", string(method.Code)),
		slog.String("amount", created.FinalAmount.String()),
	)
	s.audit.Log(ctx, audit.User(userID, "payment.initiate", "payment", created.ID.String()))
	return created, nil
}

func (s *Service) startCheckout(ctx context.Context, t *models.PaymentTransaction, plan *models.Plan) error {
	if s.gateway == nil {
		return stripepay.ErrNotConfigured
	}
	user, err := s.repo.GetUserByID(ctx, t.UserID)
	if err != nil {
		return err
	}
	checkout, err := s.gateway.CreateCheckout(ctx, stripepay.CheckoutRequest{
		PaymentID:     t.ID,
		CustomerEmail: user.Email,
		PlanName:      plan.Name,
		Currency:      t.Currency,
		Amount:        t.FinalAmount,
	})
	if err != nil {
		return err
	}
	if err := s.repo.SetPaymentExternalRef(ctx, t.ID, checkout.SessionID); err != nil {
		return err
	}
	t.ExternalRef = &checkout.SessionID
	t.CheckoutURL = checkout.URL
	return nil
}

// Confirm сохраняет подтверждение ручной оплаты и переводит транзакцию в processing.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, req ConfirmRequest) (*models.PaymentConfirmation, error) {
	const op = "payment.Confirm"
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrReferenceRequired)
	}

	t, err := s.repo.GetPaymentTransaction(ctx, req.TransactionID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && t.UserID != userID) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	method, err := s.repo.GetPaymentMethodByCode(ctx, t.MethodCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if method.Kind != models.MethodKindManual {
		return nil, fmt.Errorf("%s: %w", op, ErrNotManual)
	}

	c, err := s.repo.SubmitConfirmation(ctx, &models.PaymentConfirmation{
		TransactionID: req.TransactionID,
		UserID:        userID,
		Reference:     strings.TrimSpace(req.Reference),
		ProofURL:      req.ProofURL,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapStorageErr(err))
	}

	s.log.Info("payment confirmation submitted", slog.String("payment_id", req.TransactionID.String()), sl.UserID(userID))
	s.audit.Log(ctx, audit.User(userID, "payment.confirm", "payment", req.TransactionID.String()))
	return c, nil
}

// Cancel отменяет транзакцию пользователя в pending.
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) error {
	const op = "payment.Cancel"
	if err := s.repo.CancelPayment(ctx, userID, id); err != nil {
		return fmt.Errorf("%s: %w", op, mapStorageErr(err))
	}
	s.audit.Log(ctx, audit.User(userID, "payment.cancel", "payment", id.String()))
	return nil
}

// Approve одобряет ручную оплату: подписка пользователя становится active на оплаченный период,
// использование кампании засчитывается. Всё выполняется атомарно в хранилище.
func (s *Service) Approve(ctx context.Context, adminID, id uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "payment.Approve"
	now := s.now()
	paidUntil := now.Add(s.paidPeriod)

	t, err := s.repo.ApprovePayment(ctx, models.ApprovePaymentParams{
		TransactionID: id,
		AdminID:       &adminID,
		Now:           now,
		PaidUntil:     paidUntil,
	})
	if err != nil {
		metrics.RecordPaymentReview("manual", "error")
		return nil, fmt.Errorf("%s: %w", op, mapStorageErr(err))
	}

	metrics.RecordPaymentReview("manual", "approved")
	s.log.Info("payment approved",
		slog.String("payment_id", id.String()),
		slog.String("admin_id", adminID.String()),
		sl.UserID(t.UserID),
	)
	entry := audit.Admin(adminID, "payment.approve", "payment", id.String())
	entry.Metadata = map[string]any{"userId": t.UserID.String(), "amount": t.FinalAmount.String()}
	s.audit.Log(ctx, entry)
	s.notifyResult(ctx, t, models.NotifyPaymentApproved, map[string]any{"paidUntil": paidUntil.UTC().Format(time.RFC3339)})
	return t, nil
}

// Reject отклоняет ручную оплату с указанием причины. Подписка пользователя не меняется.
func (s *Service) Reject(ctx context.Context, adminID, id uuid.UUID, reason string) (*models.PaymentTransaction, error) {
	const op = "payment.Reject"
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrReasonRequired)
	}

	t, err := s.repo.RejectPayment(ctx, models.RejectPaymentParams{
		TransactionID: id,
		AdminID:       adminID,
		Reason:        reason,
		Now:           s.now(),
	})
	if err != nil {
		metrics.RecordPaymentReview("manual", "error")
		return nil, fmt.Errorf("%s: %w", op, mapStorageErr(err))
	}

	metrics.RecordPaymentReview("manual", "rejected")
	s.log.Info("payment rejected", slog.String("payment_id", id.String()), slog.String("admin_id", adminID.String()))
	entry := audit.Admin(adminID, "payment.reject", "payment", id.String())
	entry.Severity = models.SeverityWarning
	entry.Metadata = map[string]any{"reason": reason}
	s.audit.Log(ctx, entry)
	s.notifyResult(ctx, t, models.NotifyPaymentRejected, map[string]any{"reason": reason})
	return t, nil
}

// HandleStripeWebhook проверяет подпись события Stripe и применяет его.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "payment.HandleStripeWebhook"
	if s.gateway == nil {
		return fmt.Errorf("%s: %w", op, stripepay.ErrNotConfigured)
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.HandleStripeEvent(ctx, event)
}

// HandleStripeEvent применяет событие Checkout Session. Повторная доставка события безопасна.
func (s *Service) HandleStripeEvent(ctx context.Context, event *stripepay.Event) error {
	const op = "payment.HandleStripeEvent"
	log := s.log.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))

	switch event.Type {
	case stripepay.EventCheckoutCompleted:
		if !event.Paid {
			log.Info("checkout completed without payment, waiting for async result")
			return nil
		}
		now := s.now()
		paidUntil := now.Add(s.paidPeriod)
		t, applied, err := s.repo.CompleteGatewayPayment(ctx, models.ApprovePaymentParams{
			TransactionID: event.PaymentID,
			Now:           now,
			PaidUntil:     paidUntil,
		})
		if err != nil {
			metrics.RecordPaymentReview("stripe", "error")
			err = mapStorageErr(err)
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
				s.reportUnreconciled(ctx, log, event, err)
				return nil
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if !applied {
			log.Info("stripe payment already completed", slog.String("payment_id", event.PaymentID.String()))
			return nil
		}
		metrics.RecordPaymentReview("stripe", "approved")
		log.Info("stripe payment completed", slog.String("payment_id", t.ID.String()), sl.UserID(t.UserID))
		s.audit.Log(ctx, audit.System("payment.complete", "payment", t.ID.String()))
		s.notifyResult(ctx, t, models.NotifyPaymentApproved, map[string]any{"paidUntil": paidUntil.UTC().Format(time.RFC3339)})

	case stripepay.EventCheckoutExpired:
		failed, err := s.repo.FailGatewayPayment(ctx, event.PaymentID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if failed {
			metrics.RecordPaymentReview("stripe", "expired")
			s.audit.Log(ctx, audit.System("payment.expire", "payment", event.PaymentID.String()))
		}

	default:
		log.Debug("stripe event ignored")
	}
	return nil
}

// reportUnreconciled фиксирует оплату в Stripe, которую нельзя применить: транзакции нет
// или она уже отменена. Событие после этого подтверждается; возврат или сверку делает администратор
// по критической записи аудита.
func (s *Service) reportUnreconciled(ctx context.Context, log *slog.Logger, event *stripepay.Event, err error) {
	log.Warn("stripe payment cannot be applied, manual reconciliation required",
		slog.String("payment_id", event.PaymentID.String()),
		slog.String("session_id", event.SessionID),
		sl.Err(err),
	)
	entry := audit.System("payment.unreconciled", "payment", event.PaymentID.String())
	entry.Severity = models.SeverityCritical
	entry.Metadata = map[string]any{
		"eventId":   event.ID,
		"sessionId": event.SessionID,
		"reason":    err.Error(),
	}
	s.audit.Log(ctx, entry)
}

// Get возвращает транзакцию пользователя.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "payment.Get"
	t, err := s.repo.GetPaymentTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && t.UserID != userID) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// ListUser возвращает транзакции пользователя, новые первыми.
func (s *Service) ListUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	return s.repo.ListUserPayments(ctx, userID, page.Normalize())
}

// ListAdmin возвращает транзакции всех пользователей; пустой status означает любые.
func (s *Service) ListAdmin(ctx context.Context, status models.PaymentStatus, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	return s.repo.ListPayments(ctx, status, page.Normalize())
}

// notifyResult сообщает пользователю итог оплаты. Сбой очереди не отменяет уже применённый результат.
func (s *Service) notifyResult(ctx context.Context, t *models.PaymentTransaction, kind models.NotificationKind, extra map[string]any) {
	if s.notifier == nil || t.UserEmail == "" {
		return
	}
	params := map[string]any{
		"email":    t.UserEmail,
		"planType": string(t.PlanType),
		"amount":   t.FinalAmount.String(),
		"currency": t.Currency,
	}
	maps.Copy(params, extra)
	if err := s.notifier.Send(ctx, t.UserID, string(kind), params); err != nil {
		s.log.Error("failed to queue payment notification",
			slog.String("payment_id", t.ID.String()),
			slog.String("template", string(kind)),
			sl.Err(err),
		)
	}
}

func mapStorageErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrStateConflict):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	case errors.Is(err, storage.ErrUsageLimit):
		return campaign.ErrLimitReached
	}
	return err
}
