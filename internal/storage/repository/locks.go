package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

// TryAdvisoryLock берёт сессионную advisory-блокировку на отдельном соединении.
// Если блокировку держит другой процесс, возвращает storage.ErrLocked.
// Возвращённая функция снимает блокировку и отдаёт соединение в пул.
func (s *Storage) TryAdvisoryLock(ctx context.Context, key int64) (func(), error) {
	const op = "storage.TryAdvisoryLock"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !locked {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, storage.ErrLocked)
	}

	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
		_ = conn.Close()
	}, nil
}
