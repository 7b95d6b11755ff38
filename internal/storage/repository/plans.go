package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

const planColumns = `id, type, name, price, currency, max_accounts, max_transactions, is_active, updated_at`

func scanPlan(row scanner) (*models.Plan, error) {
	var p models.Plan
	if err := row.Scan(&p.ID, &p.Type, &p.Name, &p.Price, &p.Currency, &p.MaxAccounts, &p.MaxTransactions,
		&p.IsActive, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans возвращает планы, упорядоченные по цене.
func (s *Storage) ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	const op = "storage.ListPlans"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY price, type`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var plans []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetPlanByType возвращает план по типу.
func (s *Storage) GetPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error) {
	const op = "storage.GetPlanByType"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	p, err := scanPlan(s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE type = $1`, string(planType)))
	if err != nil {
		return nil, notFound(op, err)
	}
	return p, nil
}

// GetPlanLimits читает лимиты плана из таблицы настроек.
func (s *Storage) GetPlanLimits(ctx context.Context, planType models.PlanType) (*models.PlanLimits, error) {
	const op = "storage.GetPlanLimits"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`,
		models.SettingPlanLimits(planType)).Scan(&raw)
	if err != nil {
		return nil, notFound(op, err)
	}
	var limits models.PlanLimits
	if err := json.Unmarshal(raw, &limits); err != nil {
		return nil, fmt.Errorf("%s: decode %s: %w", op, models.SettingPlanLimits(planType), err)
	}
	return &limits, nil
}

// UpdatePlan изменяет план и в той же транзакции переписывает лимиты в настройках.
func (s *Storage) UpdatePlan(ctx context.Context, planType models.PlanType, u models.PlanUpdate) (*models.Plan, error) {
	const op = "storage.UpdatePlan"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var updated *models.Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var price any
		if u.Price != nil {
			price = u.Price.String()
		}
		p, err := scanPlan(tx.QueryRowContext(ctx, `UPDATE plans SET
				name = COALESCE($2, name),
				price = COALESCE($3::numeric, price),
				max_accounts = COALESCE($4, max_accounts),
				max_transactions = COALESCE($5, max_transactions),
				is_active = COALESCE($6, is_active),
				updated_at = NOW()
			WHERE type = $1
			RETURNING `+planColumns,
			string(planType), u.Name, price, u.MaxAccounts, u.MaxTransactions, u.IsActive))
		if err != nil {
			return notFound(op, err)
		}

		limits, err := json.Marshal(p.Limits())
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			models.SettingPlanLimits(planType), string(limits))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		updated = p
		return nil
	})
	if err != nil {
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%s: invalid plan values: %w", op, storage.ErrStateConflict)
		}
		return nil, err
	}
	return updated, nil
}
