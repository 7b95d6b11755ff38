// Package admin — операции административной панели: пользователи, тарифы,
// журнал аудита и сводная аналитика.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/period"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/audit"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

var (
	// ErrNotFound — пользователь или план не найдены.
	ErrNotFound = errors.New("not found")
	// ErrInvalid — некорректные изменения.
	ErrInvalid = errors.New("invalid input")
)

// Repository — хранилище, с которым работает админка.
type Repository interface {
	ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int64, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, p models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error)
	UpdatePlan(ctx context.Context, planType models.PlanType, u models.PlanUpdate) (*models.Plan, error)
	GetAnalytics(ctx context.Context, monthStart, now time.Time) (*models.Analytics, error)
}

// LimitsCache сбрасывает закешированные лимиты плана.
type LimitsCache interface {
	Invalidate(ctx context.Context, planType models.PlanType) error
}

// AuditLog — журнал аудита: запись и чтение.
type AuditLog interface {
	Log(ctx context.Context, entry *models.AuditLog)
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error)
}

// Service — логика админки.
type Service struct {
	repo   Repository
	limits LimitsCache
	audit  AuditLog
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time
}

// New создаёт сервис. loc — часовой пояс, в котором считается «текущий месяц» для выручки.
func New(repo Repository, limits LimitsCache, auditLog AuditLog, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:   repo,
		limits: limits,
		audit:  auditLog,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}
}

// ListUsers возвращает страницу пользователей по фильтру.
func (s *Service) ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int64, error) {
	const op = "admin.ListUsers"
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%s: %w: status %q", op, ErrInvalid, f.Status)
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Page = f.Page.Normalize()
	users, total, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return users, total, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "admin.GetUser"
	u, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func validatePatch(p models.UserPatch) error {
	if p.SubscriptionStatus != nil && !p.SubscriptionStatus.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalid, *p.SubscriptionStatus)
	}
	if p.PlanType != nil {
		switch *p.PlanType {
		case models.PlanBasic, models.PlanPremium, models.PlanEnterprise:
		default:
			return fmt.Errorf("%w: plan %q", ErrInvalid, *p.PlanType)
		}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalid)
	}
	return nil
}

// UpdateUser меняет статус подписки, план, конец пробного периода или имя пользователя.
func (s *Service) UpdateUser(ctx context.Context, adminID, id uuid.UUID, p models.UserPatch) (*models.User, error) {
	const op = "admin.UpdateUser"
	if err := validatePatch(p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := s.repo.UpdateUser(ctx, id, p)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	meta := map[string]any{}
	if p.SubscriptionStatus != nil {
		meta["subscriptionStatus"] = string(*p.SubscriptionStatus)
	}
	if p.PlanType != nil {
		meta["planType"] = string(*p.PlanType)
	}
	if p.TrialEndsAt != nil {
		meta["trialEndsAt"] = p.TrialEndsAt.UTC().Format(time.RFC3339)
	}
	entry := audit.Admin(adminID, "user.update", "user", id.String())
	entry.Metadata = meta
	s.audit.Log(ctx, entry)
	s.log.Info("user updated by admin", sl.UserID(id), slog.String("admin_id", adminID.String()))
	return u, nil
}

// DeleteUser удаляет пользователя со всеми данными.
func (s *Service) DeleteUser(ctx context.Context, adminID, id uuid.UUID) error {
	const op = "admin.DeleteUser"
	err := s.repo.DeleteUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	entry := audit.Admin(adminID, "user.delete", "user", id.String())
	entry.Severity = models.SeverityCritical
	s.audit.Log(ctx, entry)
	s.log.Warn("user deleted by admin", sl.UserID(id), slog.String("admin_id", adminID.String()))
	return nil
}

// ListPlans возвращает все планы, включая выключенные.
func (s *Service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	return s.repo.ListPlans(ctx, false)
}

// UpdatePlan меняет цену и лимиты плана и сбрасывает кеш лимитов.
func (s *Service) UpdatePlan(ctx context.Context, adminID uuid.UUID, planType models.PlanType, u models.PlanUpdate) (*models.Plan, error) {
	const op = "admin.UpdatePlan"
	if u.Price != nil && u.Price.IsNegative() {
		return nil, fmt.Errorf("%s: %w: negative price", op, ErrInvalid)
	}
	for _, v := range []*int{u.MaxAccounts, u.MaxTransactions} {
		if v != nil && *v < models.Unlimited {
			return nil, fmt.Errorf("%s: %w: limit below -1", op, ErrInvalid)
		}
	}

	p, err := s.repo.UpdatePlan(ctx, planType, u)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrStateConflict):
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.limits.Invalidate(ctx, planType); err != nil {
		// Устаревшие лимиты доживут до истечения TTL кеша.
		s.log.Warn("failed to invalidate plan limits cache", slog.String("plan", string(planType)), sl.Err(err))
	}

	entry := audit.Admin(adminID, "plan.update", "plan", string(planType))
	entry.Metadata = map[string]any{
		"price":           p.Price.String(),
		"maxAccounts":     p.MaxAccounts,
		"maxTransactions": p.MaxTransactions,
	}
	s.audit.Log(ctx, entry)
	return p, nil
}

// AuditLogs возвращает страницу журнала аудита.
func (s *Service) AuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error) {
	const op = "admin.AuditLogs"
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, fmt.Errorf("%s: %w: to is before from", op, ErrInvalid)
	}
	f.Page = f.Page.Normalize()
	logs, total, err := s.audit.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return logs, total, nil
}

// Analytics возвращает сводку для дашборда.
func (s *Service) Analytics(ctx context.Context) (*models.Analytics, error) {
	const op = "admin.Analytics"
	now := s.now()
	monthStart, _ := period.MonthBounds(now, s.loc)
	a, err := s.repo.GetAnalytics(ctx, monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}
