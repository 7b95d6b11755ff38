package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/finance-saas/internal/models"
)

const accountColumns = `id, user_id, name, type, currency, balance, created_at, updated_at`

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Currency, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

const transactionColumns = `id, user_id, account_id, kind, amount, category, description, occurred_at, created_at`

func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	if err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Kind, &t.Amount, &t.Category, &t.Description,
		&t.OccurredAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateAccount создаёт счёт пользователя с начальным балансом.
func (s *Storage) CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	const op = "storage.CreateAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	created, err := scanAccount(s.DB.QueryRowContext(ctx, `INSERT INTO accounts (user_id, name, type, currency, balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+accountColumns,
		a.UserID, a.Name, string(a.Type), a.Currency, a.Balance))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// ListAccounts возвращает счета пользователя.
func (s *Storage) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	const op = "storage.ListAccounts"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return accounts, nil
}

// GetAccount возвращает счёт, если он принадлежит пользователю.
func (s *Storage) GetAccount(ctx context.Context, userID, id uuid.UUID) (*models.Account, error) {
	const op = "storage.GetAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	a, err := scanAccount(s.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(op, err)
	}
	return a, nil
}

// UpdateAccount меняет название и вид счёта. Баланс меняется только операциями.
func (s *Storage) UpdateAccount(ctx context.Context, userID, id uuid.UUID, name string, typ models.AccountType) (*models.Account, error) {
	const op = "storage.UpdateAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	a, err := scanAccount(s.DB.QueryRowContext(ctx, `UPDATE accounts SET name = $3, type = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING `+accountColumns, id, userID, name, string(typ)))
	if err != nil {
		return nil, notFound(op, err)
	}
	return a, nil
}

// DeleteAccount удаляет счёт вместе с его операциями.
func (s *Storage) DeleteAccount(ctx context.Context, userID, id uuid.UUID) error {
	const op = "storage.DeleteAccount"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op)
}

// CountAccounts возвращает число счетов пользователя.
func (s *Storage) CountAccounts(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.CountAccounts"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// CountTransactionsBetween считает операции пользователя с occurred_at в [from, to).
func (s *Storage) CountTransactionsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	const op = "storage.CountTransactionsBetween"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3`, userID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func adjustBalance(ctx context.Context, tx *sql.Tx, userID, accountID uuid.UUID, delta decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = balance + $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, accountID, userID, delta)
	if err != nil {
		return err
	}
	return expectAffected(res, "storage.adjustBalance")
}

// CreateTransaction сохраняет операцию и в той же транзакции меняет баланс счёта.
// Чужой или несуществующий счёт даёт storage.ErrNotFound.
func (s *Storage) CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	const op = "storage.CreateTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var created *models.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := adjustBalance(ctx, tx, t.UserID, t.AccountID, t.BalanceDelta()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		c, err := scanTransaction(tx.QueryRowContext(ctx, `INSERT INTO transactions
			(user_id, account_id, kind, amount, category, description, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+transactionColumns,
			t.UserID, t.AccountID, string(t.Kind), t.Amount, t.Category, t.Description, t.OccurredAt))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetTransaction возвращает операцию пользователя.
func (s *Storage) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	const op = "storage.GetTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	t, err := scanTransaction(s.DB.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(op, err)
	}
	return t, nil
}

// UpdateTransaction заменяет операцию: откатывает её прежнее влияние на баланс и применяет новое.
func (s *Storage) UpdateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	const op = "storage.UpdateTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var updated *models.Transaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := scanTransaction(tx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
			WHERE id = $1 AND user_id = $2 FOR UPDATE`, t.ID, t.UserID))
		if err != nil {
			return notFound(op, err)
		}
		if err := adjustBalance(ctx, tx, old.UserID, old.AccountID, old.BalanceDelta().Neg()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := adjustBalance(ctx, tx, t.UserID, t.AccountID, t.BalanceDelta()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		u, err := scanTransaction(tx.QueryRowContext(ctx, `UPDATE transactions SET
				account_id = $3, kind = $4, amount = $5, category = $6, description = $7, occurred_at = $8
			WHERE id = $1 AND user_id = $2
			RETURNING `+transactionColumns,
			t.ID, t.UserID, t.AccountID, string(t.Kind), t.Amount, t.Category, t.Description, t.OccurredAt))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTransaction удаляет операцию и откатывает её влияние на баланс.
func (s *Storage) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	const op = "storage.DeleteTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := scanTransaction(tx.QueryRowContext(ctx, `DELETE FROM transactions
			WHERE id = $1 AND user_id = $2
			RETURNING `+transactionColumns, id, userID))
		if err != nil {
			return notFound(op, err)
		}
		if err := adjustBalance(ctx, tx, old.UserID, old.AccountID, old.BalanceDelta().Neg()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}

// ListTransactions возвращает страницу операций пользователя и их общее число.
func (s *Storage) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, int64, error) {
	const op = "storage.ListTransactions"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	args := []any{f.UserID}
	where := []string{"user_id = $1"}
	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	page := f.Page.Normalize()
	args = append(args, page.Limit, page.Offset)
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM transactions%s
		ORDER BY occurred_at DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return list, total, nil
}
