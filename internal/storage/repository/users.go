package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

const userColumns = `id, email, name, password_hash, timezone, subscription_status, plan_type,
	trial_ends_at, stripe_customer_id, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Timezone, &u.SubscriptionStatus,
		&u.PlanType, &u.TrialEndsAt, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser сохраняет нового пользователя. Занятый e-mail даёт storage.ErrAlreadyExists.
func (s *Storage) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	const op = "storage.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO users (email, name, password_hash, timezone, subscription_status, plan_type, trial_ends_at)
		VALUES (LOWER($1), $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns
	created, err := scanUser(s.DB.QueryRowContext(ctx, query,
		u.Email, u.Name, u.PasswordHash, u.Timezone, string(u.SubscriptionStatus), string(u.PlanType), u.TrialEndsAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Storage) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.GetUserByID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	u, err := scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по e-mail без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email))
	if err != nil {
		return nil, notFound(op, err)
	}
	return u, nil
}

// ListUsers возвращает страницу пользователей и общее число подходящих под фильтр.
func (s *Storage) ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int64, error) {
	const op = "storage.ListUsers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("subscription_status = $%d", len(args)))
	}
	if f.PlanType != "" {
		args = append(args, string(f.PlanType))
		where = append(where, fmt.Sprintf("plan_type = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		where = append(where, fmt.Sprintf("(email LIKE $%d OR LOWER(name) LIKE $%d)", len(args), len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	page := f.Page.Normalize()
	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, cond, len(args)-1, len(args))
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return users, total, nil
}

// UpdateUser применяет изменения администратора; nil-поля не меняются.
func (s *Storage) UpdateUser(ctx context.Context, id uuid.UUID, p models.UserPatch) (*models.User, error) {
	const op = "storage.UpdateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var status, plan *string
	if p.SubscriptionStatus != nil {
		v := string(*p.SubscriptionStatus)
		status = &v
	}
	if p.PlanType != nil {
		v := string(*p.PlanType)
		plan = &v
	}
	query := `UPDATE users SET
			name = COALESCE($2, name),
			subscription_status = COALESCE($3, subscription_status),
			plan_type = COALESCE($4, plan_type),
			trial_ends_at = COALESCE($5, trial_ends_at),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id, p.Name, status, plan, p.TrialEndsAt))
	if err != nil {
		return nil, notFound(op, err)
	}
	return u, nil
}

// DeleteUser удаляет пользователя вместе с его счетами, операциями и платежами.
func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeleteUser"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op)
}

// ListTrialingUsers возвращает всех пользователей в пробном периоде.
func (s *Storage) ListTrialingUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListTrialingUsers"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE subscription_status = $1 ORDER BY trial_ends_at`,
		string(models.StatusTrialing))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// ExpireTrial переводит пользователя в trial_expired, только если он всё ещё
// в пробном периоде и срок истёк к моменту now. Возвращает false, если строка не изменилась.
func (s *Storage) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const op = "storage.ExpireTrial"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE users
		SET subscription_status = $3, updated_at = $2
		WHERE id = $1 AND subscription_status = $4 AND trial_ends_at < $2`,
		id, now, string(models.StatusTrialExpired), string(models.StatusTrialing))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
