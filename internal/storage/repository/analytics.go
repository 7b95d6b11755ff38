package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// GetAnalytics собирает сводку для дашборда. monthStart — начало текущего месяца, now — момент расчёта.
func (s *Storage) GetAnalytics(ctx context.Context, monthStart, now time.Time) (*models.Analytics, error) {
	const op = "storage.GetAnalytics"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	a := &models.Analytics{
		UsersByStatus: make(map[models.SubscriptionStatus]int64),
		UsersByPlan:   make(map[models.PlanType]int64),
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT subscription_status, plan_type, COUNT(*)
		FROM users GROUP BY subscription_status, plan_type`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var (
			status models.SubscriptionStatus
			plan   models.PlanType
			n      int64
		)
		if err := rows.Scan(&status, &plan, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.UsersByStatus[status] += n
		a.UsersByPlan[plan] += n
		a.TotalUsers += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.DB.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM users WHERE created_at >= $1),
			(SELECT COALESCE(SUM(final_amount), 0) FROM payment_transactions WHERE status = 'completed' AND completed_at >= $2),
			(SELECT COALESCE(SUM(final_amount), 0) FROM payment_transactions WHERE status = 'completed'),
			(SELECT COUNT(*) FROM payment_confirmations WHERE status = 'pending'),
			(SELECT COUNT(*) FROM campaigns WHERE is_active AND valid_from <= $3 AND valid_until >= $3)`,
		now.AddDate(0, 0, -30), monthStart, now).
		Scan(&a.NewUsersLast30Days, &a.RevenueThisMonth, &a.RevenueTotal, &a.PendingConfirmations, &a.ActiveCampaigns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.RevenueThisMonth = a.RevenueThisMonth.Round(2)
	a.RevenueTotal = a.RevenueTotal.Round(2)
	return a, nil
}
