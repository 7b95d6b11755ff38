package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession сохраняет или перезаписывает сессию.
func (s *Storage) CreateSession(ctx context.Context, sid string, data []byte, expiresAt time.Time) error {
	const op = "storage.CreateSession"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO sessions (sid, data, expires_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (sid) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
		sid, string(data), expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSession возвращает данные сессии. Отсутствие сессии не ошибка: found=false.
func (s *Storage) GetSession(ctx context.Context, sid string) (data []byte, expiresAt time.Time, found bool, err error) {
	const op = "storage.GetSession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, time.Time{}, false, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT data, expires_at FROM sessions WHERE sid = $1`, sid).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return data, expiresAt, true, nil
}

// DeleteSession удаляет сессию, если она есть.
func (s *Storage) DeleteSession(ctx context.Context, sid string) error {
	const op = "storage.DeleteSession"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE sid = $1`, sid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteExpiredSessions удаляет сессии, истёкшие к моменту now.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.DeleteExpiredSessions"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
