package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

const adminColumns = `id, email, name, password_hash, role, is_active, last_login_at, created_at`

func scanAdmin(row scanner) (*models.AdminUser, error) {
	var a models.AdminUser
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.IsActive, &a.LastLoginAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAdmin сохраняет администратора.
func (s *Storage) CreateAdmin(ctx context.Context, a *models.AdminUser) (*models.AdminUser, error) {
	const op = "storage.CreateAdmin"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	created, err := scanAdmin(s.DB.QueryRowContext(ctx, `INSERT INTO admin_users (email, name, password_hash, role, is_active)
		VALUES (LOWER($1), $2, $3, $4, $5)
		RETURNING `+adminColumns,
		a.Email, a.Name, a.PasswordHash, string(a.Role), a.IsActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetAdminByEmail возвращает администратора по e-mail.
func (s *Storage) GetAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	const op = "storage.GetAdminByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	a, err := scanAdmin(s.DB.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE email = LOWER($1)`, email))
	if err != nil {
		return nil, notFound(op, err)
	}
	return a, nil
}

// GetAdminByID возвращает администратора по идентификатору.
func (s *Storage) GetAdminByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	const op = "storage.GetAdminByID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	a, err := scanAdmin(s.DB.QueryRowContext(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(op, err)
	}
	return a, nil
}

// CountAdmins возвращает число администраторов.
func (s *Storage) CountAdmins(ctx context.Context) (int64, error) {
	const op = "storage.CountAdmins"
	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// TouchAdminLogin сохраняет время последнего входа.
func (s *Storage) TouchAdminLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "storage.TouchAdminLogin"
	res, err := s.DB.ExecContext(ctx, `UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op)
}
