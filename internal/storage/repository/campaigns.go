package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

const campaignColumns = `id, code, name, description, discount_type, discount_value, valid_from, valid_until,
	usage_limit, usage_count, applicable_plans, is_active, created_at`

func scanCampaign(row scanner) (*models.Campaign, error) {
	var (
		c     models.Campaign
		plans []byte
	)
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.DiscountType, &c.DiscountValue,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount, &plans, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plans, &c.ApplicablePlans); err != nil {
		return nil, fmt.Errorf("decode applicable plans: %w", err)
	}
	return &c, nil
}

func encodePlans(plans []models.PlanType) (string, error) {
	if plans == nil {
		plans = []models.PlanType{}
	}
	b, err := json.Marshal(plans)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetCampaignByCode ищет кампанию по коду без учёта регистра.
func (s *Storage) GetCampaignByCode(ctx context.Context, code string) (*models.Campaign, error) {
	const op = "storage.GetCampaignByCode"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	c, err := scanCampaign(s.DB.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE code = $1`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		return nil, notFound(op, err)
	}
	return c, nil
}

// GetCampaign возвращает кампанию по идентификатору.
func (s *Storage) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	const op = "storage.GetCampaign"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	c, err := scanCampaign(s.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(op, err)
	}
	return c, nil
}

// ListCampaigns возвращает все кампании, новые первыми.
func (s *Storage) ListCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	const op = "storage.ListCampaigns"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// CreateCampaign сохраняет кампанию; код приводится к верхнему регистру.
func (s *Storage) CreateCampaign(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	const op = "storage.CreateCampaign"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	plans, err := encodePlans(c.ApplicablePlans)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	created, err := scanCampaign(s.DB.QueryRowContext(ctx, `INSERT INTO campaigns
		(code, name, description, discount_type, discount_value, valid_from, valid_until,
		 usage_limit, usage_count, applicable_plans, is_active)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
		RETURNING `+campaignColumns,
		strings.TrimSpace(c.Code), c.Name, c.Description, string(c.DiscountType), c.DiscountValue,
		c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UsageCount, plans, c.IsActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// UpdateCampaign перезаписывает изменяемые поля кампании. Счётчик использований не трогается;
// лимит ниже текущего счётчика даёт storage.ErrStateConflict.
func (s *Storage) UpdateCampaign(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	const op = "storage.UpdateCampaign"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	plans, err := encodePlans(c.ApplicablePlans)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	updated, err := scanCampaign(s.DB.QueryRowContext(ctx, `UPDATE campaigns SET
			name = $2, description = $3, discount_type = $4, discount_value = $5,
			valid_from = $6, valid_until = $7, usage_limit = $8, applicable_plans = $9::jsonb, is_active = $10
		WHERE id = $1
		RETURNING `+campaignColumns,
		c.ID, c.Name, c.Description, string(c.DiscountType), c.DiscountValue,
		c.ValidFrom, c.ValidUntil, c.UsageLimit, plans, c.IsActive))
	if err != nil {
		if isCheckViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
		}
		return nil, notFound(op, err)
	}
	return updated, nil
}

// DeleteCampaign удаляет кампанию. Ссылки из платежей обнуляются.
func (s *Storage) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeleteCampaign"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op)
}
