// Package entitlement решает, может ли пользователь создать ещё один ресурс
// в пределах лимитов своего тарифного плана.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/cache"
	"github.com/magabrotheeeer/finance-saas/internal/lib/period"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

// Resource — вид ограничиваемого ресурса.
type Resource string

// Ограничиваемые ресурсы.
const (
	ResourceAccount          Resource = "account"
	ResourceTransactionMonth Resource = "transaction_month"
)

var (
	// ErrUnknownPlan — для плана не настроены лимиты. Запрос отклоняется.
	ErrUnknownPlan = errors.New("plan limits are not configured")
	// ErrUnknownResource — запрошен неизвестный вид ресурса.
	ErrUnknownResource = errors.New("unknown resource")
)

// LimitStore читает лимиты планов из хранилища настроек.
type LimitStore interface {
	GetPlanLimits(ctx context.Context, planType models.PlanType) (*models.PlanLimits, error)
}

// UsageCounter считает текущее использование ресурсов.
type UsageCounter interface {
	CountAccounts(ctx context.Context, userID uuid.UUID) (int64, error)
	CountTransactionsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error)
}

// Cache описывает методы для кэширования лимитов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Decision — результат проверки. Limit = -1 означает отсутствие ограничения.
type Decision struct {
	Allowed bool  `json:"allowed"`
	Current int64 `json:"current"`
	Limit   int   `json:"limit"`
}

// Service — резолвер лимитов. Только читает данные.
type Service struct {
	limits LimitStore
	usage  UsageCounter
	cache  Cache
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// New создаёт резолвер. cache может быть nil, тогда лимиты всегда читаются из хранилища.
func New(limits LimitStore, usage UsageCounter, cache Cache, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		limits: limits,
		usage:  usage,
		cache:  cache,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

// Limits возвращает лимиты плана, сначала заглядывая в кеш.
func (s *Service) Limits(ctx context.Context, planType models.PlanType) (models.PlanLimits, error) {
	const op = "entitlement.Limits"
	key := cache.PlanLimitsKey(string(planType))

	if s.cache != nil {
		var cached models.PlanLimits
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read plan limits from cache", slog.String("key", key), sl.Err(err))
		}
		if found {
			return cached, nil
		}
	}

	limits, err := s.limits.GetPlanLimits(ctx, planType)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Error("plan limits are not configured", slog.String("plan", string(planType)))
		return models.PlanLimits{}, fmt.Errorf("%s: %s: %w", op, planType, ErrUnknownPlan)
	}
	if err != nil {
		return models.PlanLimits{}, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, limits, s.ttl); err != nil {
			s.log.Warn("failed to cache plan limits", slog.String("key", key), sl.Err(err))
		}
	}
	return *limits, nil
}

// Invalidate сбрасывает закешированные лимиты плана.
func (s *Service) Invalidate(ctx context.Context, planType models.PlanType) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, cache.PlanLimitsKey(string(planType)))
}

// Check решает, может ли пользователь создать ещё один ресурс.
// Операции месяца считаются по календарю часового пояса пользователя.
func (s *Service) Check(ctx context.Context, user *models.User, resource Resource) (Decision, error) {
	const op = "entitlement.Check"

	limits, err := s.Limits(ctx, user.PlanType)
	if err != nil {
		return Decision{}, err
	}

	var (
		limit   int
		current int64
	)
	switch resource {
	case ResourceAccount:
		limit = limits.MaxAccounts
		current, err = s.usage.CountAccounts(ctx, user.ID)
	case ResourceTransactionMonth:
		limit = limits.MaxTransactions
		from, to := period.MonthBounds(s.now(), user.Location())
		current, err = s.usage.CountTransactionsBetween(ctx, user.ID, from, to)
	default:
		return Decision{}, fmt.Errorf("%s: %q: %w", op, resource, ErrUnknownResource)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	return decide(current, limit), nil
}

// Usage возвращает обе проверки сразу, для дашборда пользователя.
func (s *Service) Usage(ctx context.Context, user *models.User) (*models.Usage, error) {
	accounts, err := s.Check(ctx, user, ResourceAccount)
	if err != nil {
		return nil, err
	}
	transactions, err := s.Check(ctx, user, ResourceTransactionMonth)
	if err != nil {
		return nil, err
	}
	return &models.Usage{
		PlanType:     user.PlanType,
		Accounts:     models.UsageValue{Current: accounts.Current, Limit: accounts.Limit, Allowed: accounts.Allowed},
		Transactions: models.UsageValue{Current: transactions.Current, Limit: transactions.Limit, Allowed: transactions.Allowed},
	}, nil
}

func decide(current int64, limit int) Decision {
	if limit == models.Unlimited {
		return Decision{Allowed: true, Current: current, Limit: limit}
	}
	return Decision{Allowed: limit >= 0 && current < int64(limit), Current: current, Limit: limit}
}
