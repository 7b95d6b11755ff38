// Package campaign проверяет промокоды и управляет кампаниями в админке.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/audit"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

var (
	// ErrNotFound — кампании с таким кодом нет.
	ErrNotFound = errors.New("campaign not found")
	// ErrLimitReached — кампания исчерпала лимит использований.
	ErrLimitReached = errors.New("limit reached")
	// ErrInactive — кампания выключена.
	ErrInactive = errors.New("campaign is not active")
	// ErrOutsideWindow — текущий момент вне срока действия кампании.
	ErrOutsideWindow = errors.New("campaign is not valid at this time")
	// ErrNotApplicable — кампания не действует для выбранного плана.
	ErrNotApplicable = errors.New("campaign does not apply to this plan")
	// ErrAlreadyExists — код уже занят.
	ErrAlreadyExists = errors.New("campaign code already exists")
	// ErrInvalid — некорректные параметры кампании.
	ErrInvalid = errors.New("invalid campaign")
	// ErrUnknownPlan — план не найден.
	ErrUnknownPlan = errors.New("unknown plan")
)

// Repository — хранилище кампаний и планов.
type Repository interface {
	GetCampaignByCode(ctx context.Context, code string) (*models.Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*models.Campaign, error)
	CreateCampaign(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	DeleteCampaign(ctx context.Context, id uuid.UUID) error
	GetPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error)
}

// Auditor пишет журнал действий.
type Auditor interface {
	Log(ctx context.Context, entry *models.AuditLog)
}

// Quote — цена плана с учётом скидки кампании.
type Quote struct {
	Campaign    *models.Campaign `json:"campaign"`
	PlanType    models.PlanType  `json:"planType"`
	Price       decimal.Decimal  `json:"price"`
	Discount    decimal.Decimal  `json:"discount"`
	FinalAmount decimal.Decimal  `json:"finalAmount"`
	Currency    string           `json:"currency"`
}

// Input — поля кампании, которые задаёт администратор.
type Input struct {
	Code            string
	Name            string
	Description     string
	DiscountType    models.DiscountType
	DiscountValue   decimal.Decimal
	ValidFrom       time.Time
	ValidUntil      time.Time
	UsageLimit      *int
	ApplicablePlans []models.PlanType
	IsActive        bool
}

// Service — логика кампаний.
type Service struct {
	repo  Repository
	audit Auditor
	log   *slog.Logger
	now   func() time.Time
}

// New создаёт сервис кампаний; auditor получает записи о создании, изменении и удалении кампаний.
func New(repo Repository, auditor Auditor, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		audit: auditor,
		log:   log,
		now:   time.Now,
	}
}

// Check проверяет, что кампанию можно применить к плану в момент now.
func Check(c *models.Campaign, planType models.PlanType, now time.Time) error {
	switch {
	case !c.IsActive:
		return ErrInactive
	case now.Before(c.ValidFrom) || now.After(c.ValidUntil):
		return ErrOutsideWindow
	case !c.AppliesTo(planType):
		return ErrNotApplicable
	case c.Exhausted():
		return ErrLimitReached
	}
	return nil
}

// Validate проверяет промокод для плана и возвращает цену со скидкой.
// Использование кампании при этом не засчитывается: счётчик растёт только при завершении оплаты.
func (s *Service) Validate(ctx context.Context, code string, planType models.PlanType) (*Quote, error) {
	const op = "campaign.Validate"

	plan, err := s.repo.GetPlanByType(ctx, planType)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownPlan)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c, err := s.repo.GetCampaignByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := Check(c, planType, s.now()); err != nil {
		s.log.Info("campaign rejected", slog.String("code", c.Code), slog.String("reason", err.Error()))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	discount := c.Discount(plan.Price)
	return &Quote{
		Campaign:    c,
		PlanType:    plan.Type,
		Price:       plan.Price,
		Discount:    discount,
		FinalAmount: plan.Price.Sub(discount),
		Currency:    plan.Currency,
	}, nil
}

// List возвращает все кампании.
func (s *Service) List(ctx context.Context) ([]*models.Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: code and name are required", ErrInvalid)
	}
	switch in.DiscountType {
	case models.DiscountPercentage:
		if in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage discount above 100", ErrInvalid)
		}
	case models.DiscountFixed:
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalid, in.DiscountType)
	}
	if in.DiscountValue.IsNegative() {
		return fmt.Errorf("%w: negative discount", ErrInvalid)
	}
	if !in.ValidUntil.After(in.ValidFrom) {
		return fmt.Errorf("%w: validUntil must be after validFrom", ErrInvalid)
	}
	if in.UsageLimit != nil && *in.UsageLimit < 0 {
		return fmt.Errorf("%w: negative usage limit", ErrInvalid)
	}
	for _, p := range in.ApplicablePlans {
		switch p {
		case models.PlanBasic, models.PlanPremium, models.PlanEnterprise:
		default:
			return fmt.Errorf("%w: unknown plan %q", ErrInvalid, p)
		}
	}
	return nil
}

func (in Input) apply(c *models.Campaign) {
	c.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	c.Name = in.Name
	c.Description = in.Description
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.ValidFrom = in.ValidFrom
	c.ValidUntil = in.ValidUntil
	c.UsageLimit = in.UsageLimit
	c.ApplicablePlans = in.ApplicablePlans
	c.IsActive = in.IsActive
}

// Create создаёт кампанию.
func (s *Service) Create(ctx context.Context, adminID uuid.UUID, in Input) (*models.Campaign, error) {
	const op = "campaign.Create"
	if err := validateInput(in); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var c models.Campaign
	in.apply(&c)

	created, err := s.repo.CreateCampaign(ctx, &c)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("campaign created", slog.String("code", created.Code), slog.String("id", created.ID.String()))
	s.audit.Log(ctx, audit.Admin(adminID, "campaign.create", "campaign", created.ID.String()))
	return created, nil
}

// Update перезаписывает кампанию. Код кампании не меняется.
func (s *Service) Update(ctx context.Context, adminID, id uuid.UUID, in Input) (*models.Campaign, error) {
	const op = "campaign.Update"
	c, err := s.repo.GetCampaign(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	in.Code = c.Code
	if err := validateInput(in); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	in.apply(c)

	updated, err := s.repo.UpdateCampaign(ctx, c)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrStateConflict):
		return nil, fmt.Errorf("%s: %w: usage limit below current usage", op, ErrInvalid)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.audit.Log(ctx, audit.Admin(adminID, "campaign.update", "campaign", id.String()))
	return updated, nil
}

// Delete удаляет кампанию.
func (s *Service) Delete(ctx context.Context, adminID, id uuid.UUID) error {
	const op = "campaign.Delete"
	err := s.repo.DeleteCampaign(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	entry := audit.Admin(adminID, "campaign.delete", "campaign", id.String())
	entry.Severity = models.SeverityWarning
	s.audit.Log(ctx, entry)
	return nil
}
