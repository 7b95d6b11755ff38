package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const paymentMethodColumns = `id, code, name, kind, instructions, is_active`

func scanPaymentMethod(row scanner) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	if err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Kind, &m.Instructions, &m.IsActive); err != nil {
		return nil, err
	}
	return &m, nil
}

const paymentSelect = `SELECT pt.id, pt.user_id, pt.plan_id, p.type, pt.payment_method_id, pm.code, pt.campaign_id,
		pt.amount, pt.discount, pt.final_amount, pt.currency, pt.status, pt.external_ref,
		pt.created_at, pt.updated_at, pt.completed_at, u.email
	FROM payment_transactions pt
	JOIN plans p ON p.id = pt.plan_id
	JOIN payment_methods pm ON pm.id = pt.payment_method_id
	JOIN users u ON u.id = pt.user_id`

func scanPayment(row scanner) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	err := row.Scan(&t.ID, &t.UserID, &t.PlanID, &t.PlanType, &t.PaymentMethodID, &t.MethodCode, &t.CampaignID,
		&t.Amount, &t.Discount, &t.FinalAmount, &t.Currency, &t.Status, &t.ExternalRef,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.UserEmail)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const confirmationColumns = `id, transaction_id, user_id, reference, proof_url, notes, status,
	verified_by, verified_at, rejection_reason, created_at`

func scanConfirmation(row scanner) (*models.PaymentConfirmation, error) {
	var c models.PaymentConfirmation
	err := row.Scan(&c.ID, &c.TransactionID, &c.UserID, &c.Reference, &c.ProofURL, &c.Notes, &c.Status,
		&c.VerifiedBy, &c.VerifiedAt, &c.RejectionReason, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// getConfirmation возвращает подтверждение транзакции или nil, если его ещё нет.
func getConfirmation(ctx context.Context, q rowQuerier, transactionID uuid.UUID) (*models.PaymentConfirmation, error) {
	c, err := scanConfirmation(q.QueryRowContext(ctx,
		`SELECT `+confirmationColumns+` FROM payment_confirmations WHERE transaction_id = $1`, transactionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListPaymentMethods возвращает справочник способов оплаты.
func (s *Storage) ListPaymentMethods(ctx context.Context, activeOnly bool) ([]*models.PaymentMethod, error) {
	const op = "storage.ListPaymentMethods"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + paymentMethodColumns + ` FROM payment_methods`
	if activeOnly {
		query += ` WHERE is_active`
	}
	rows, err := s.DB.QueryContext(ctx, query+` ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var methods []*models.PaymentMethod
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return methods, nil
}

// GetPaymentMethodByCode возвращает способ оплаты по коду.
func (s *Storage) GetPaymentMethodByCode(ctx context.Context, code models.PaymentMethodCode) (*models.PaymentMethod, error) {
	const op = "storage.GetPaymentMethodByCode"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	m, err := scanPaymentMethod(s.DB.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE code = $1`, string(code)))
	if err != nil {
		return nil, notFound(op, err)
	}
	return m, nil
}

// CreatePaymentTransaction сохраняет новую транзакцию в статусе pending.
func (s *Storage) CreatePaymentTransaction(ctx context.Context, t *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	const op = "storage.CreatePaymentTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx, `INSERT INTO payment_transactions
		(user_id, plan_id, payment_method_id, campaign_id, amount, discount, final_amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		t.UserID, t.PlanID, t.PaymentMethodID, t.CampaignID, t.Amount, t.Discount, t.FinalAmount, t.Currency,
		string(models.PaymentPending)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetPaymentTransaction(ctx, id)
}

// SetPaymentExternalRef сохраняет идентификатор сессии платёжного шлюза.
func (s *Storage) SetPaymentExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	const op = "storage.SetPaymentExternalRef"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE payment_transactions SET external_ref = $2, updated_at = NOW()
		WHERE id = $1`, id, ref)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op)
}

// GetPaymentTransaction возвращает транзакцию вместе с подтверждением, если оно есть.
func (s *Storage) GetPaymentTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	const op = "storage.GetPaymentTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	t, err := scanPayment(s.DB.QueryRowContext(ctx, paymentSelect+` WHERE pt.id = $1`, id))
	if err != nil {
		return nil, notFound(op, err)
	}
	if t.Confirmation, err = getConfirmation(ctx, s.DB, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (s *Storage) listPayments(ctx context.Context, op, cond string, args []any, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	var total int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_transactions pt`+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	page = page.Normalize()
	args = append(args, page.Limit, page.Offset)
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`%s%s ORDER BY pt.created_at DESC LIMIT $%d OFFSET $%d`,
		paymentSelect, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var list []*models.PaymentTransaction
	for rows.Next() {
		t, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, t := range list {
		if t.Confirmation, err = getConfirmation(ctx, s.DB, t.ID); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
	}
	return list, total, nil
}

// ListUserPayments возвращает транзакции пользователя, новые первыми.
func (s *Storage) ListUserPayments(ctx context.Context, userID uuid.UUID, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	const op = "storage.ListUserPayments"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}
	return s.listPayments(ctx, op, ` WHERE pt.user_id = $1`, []any{userID}, page)
}

// ListPayments возвращает транзакции всех пользователей. Пустой status означает любой статус.
func (s *Storage) ListPayments(ctx context.Context, status models.PaymentStatus, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	const op = "storage.ListPayments"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}
	if status == "" {
		return s.listPayments(ctx, op, "", nil, page)
	}
	return s.listPayments(ctx, op, ` WHERE pt.status = $1`, []any{string(status)}, page)
}

// lockPayment блокирует строку транзакции до конца транзакции БД и возвращает её статус.
func lockPayment(ctx context.Context, tx *sql.Tx, id uuid.UUID) (status models.PaymentStatus, userID uuid.UUID, campaignID *uuid.UUID, err error) {
	err = tx.QueryRowContext(ctx, `SELECT status, user_id, campaign_id FROM payment_transactions
		WHERE id = $1 FOR UPDATE`, id).Scan(&status, &userID, &campaignID)
	return status, userID, campaignID, err
}

func setPaymentStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.PaymentStatus, completedAt *time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE payment_transactions
		SET status = $2, completed_at = COALESCE($3, completed_at), updated_at = NOW()
		WHERE id = $1`, id, string(status), completedAt)
	return err
}

// activateSubscription переводит пользователя на оплаченный план.
func activateSubscription(ctx context.Context, tx *sql.Tx, paymentID, userID uuid.UUID, paidUntil time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET
			subscription_status = 'active',
			plan_type = (SELECT p.type FROM payment_transactions pt JOIN plans p ON p.id = pt.plan_id WHERE pt.id = $1),
			trial_ends_at = $3,
			updated_at = NOW()
		WHERE id = $2`, paymentID, userID, paidUntil)
	if err != nil {
		return err
	}
	return expectAffected(res, "storage.activateSubscription")
}

// consumeCampaign увеличивает счётчик использований, не выходя за лимит.
// Возвращает false, если лимит уже исчерпан.
func consumeCampaign(ctx context.Context, tx *sql.Tx, campaignID uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE campaigns SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`, campaignID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SubmitConfirmation сохраняет подтверждение ручной оплаты и переводит транзакцию в processing.
// Транзакция должна принадлежать пользователю и находиться в pending, иначе storage.ErrStateConflict.
func (s *Storage) SubmitConfirmation(ctx context.Context, c *models.PaymentConfirmation) (*models.PaymentConfirmation, error) {
	const op = "storage.SubmitConfirmation"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var created *models.PaymentConfirmation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		status, owner, _, err := lockPayment(ctx, tx, c.TransactionID)
		if err != nil {
			return notFound(op, err)
		}
		if owner != c.UserID {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		if status != models.PaymentPending {
			return fmt.Errorf("%s: status %s: %w", op, status, storage.ErrStateConflict)
		}
		created, err = scanConfirmation(tx.QueryRowContext(ctx, `INSERT INTO payment_confirmations
			(transaction_id, user_id, reference, proof_url, notes, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+confirmationColumns,
			c.TransactionID, c.UserID, c.Reference, c.ProofURL, c.Notes, string(models.ConfirmationPending)))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%s: %w", op, storage.ErrStateConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := setPaymentStatus(ctx, tx, c.TransactionID, models.PaymentProcessing, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CancelPayment отменяет транзакцию пользователя, пока она в pending.
func (s *Storage) CancelPayment(ctx context.Context, userID, id uuid.UUID) error {
	const op = "storage.CancelPayment"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		status, owner, _, err := lockPayment(ctx, tx, id)
		if err != nil {
			return notFound(op, err)
		}
		if owner != userID {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}
		if status != models.PaymentPending {
			return fmt.Errorf("%s: status %s: %w", op, status, storage.ErrStateConflict)
		}
		if err := setPaymentStatus(ctx, tx, id, models.PaymentCancelled, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
}

// lockPendingConfirmation блокирует подтверждение и проверяет, что оно ещё не рассмотрено.
func lockPendingConfirmation(ctx context.Context, tx *sql.Tx, op string, transactionID uuid.UUID) error {
	var status models.ConfirmationStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM payment_confirmations
		WHERE transaction_id = $1 FOR UPDATE`, transactionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: no confirmation: %w", op, storage.ErrStateConflict)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != models.ConfirmationPending {
		return fmt.Errorf("%s: confirmation %s: %w", op, status, storage.ErrStateConflict)
	}
	return nil
}

// ApprovePayment одобряет ручную оплату в одной транзакции БД: подтверждение, платёж,
// подписка пользователя и счётчик кампании меняются вместе или не меняются вовсе.
// Неподходящее состояние даёт storage.ErrStateConflict, исчерпанная кампания storage.ErrUsageLimit.
func (s *Storage) ApprovePayment(ctx context.Context, p models.ApprovePaymentParams) (*models.PaymentTransaction, error) {
	const op = "storage.ApprovePayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		status, userID, campaignID, err := lockPayment(ctx, tx, p.TransactionID)
		if err != nil {
			return notFound(op, err)
		}
		if status != models.PaymentProcessing {
			return fmt.Errorf("%s: status %s: %w", op, status, storage.ErrStateConflict)
		}
		if err := lockPendingConfirmation(ctx, tx, op, p.TransactionID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE payment_confirmations
			SET status = $2, verified_by = $3, verified_at = $4
			WHERE transaction_id = $1`,
			p.TransactionID, string(models.ConfirmationApproved), p.AdminID, p.Now); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := setPaymentStatus(ctx, tx, p.TransactionID, models.PaymentCompleted, &p.Now); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := activateSubscription(ctx, tx, p.TransactionID, userID, p.PaidUntil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if campaignID != nil {
			ok, err := consumeCampaign(ctx, tx, *campaignID)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if !ok {
				return fmt.Errorf("%s: %w", op, storage.ErrUsageLimit)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPaymentTransaction(ctx, p.TransactionID)
}

// RejectPayment отклоняет ручную оплату: подтверждение rejected с причиной, платёж failed.
// Подписка пользователя не меняется.
func (s *Storage) RejectPayment(ctx context.Context, p models.RejectPaymentParams) (*models.PaymentTransaction, error) {
	const op = "storage.RejectPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		status, _, _, err := lockPayment(ctx, tx, p.TransactionID)
		if err != nil {
			return notFound(op, err)
		}
		if status != models.PaymentProcessing {
			return fmt.Errorf("%s: status %s: %w", op, status, storage.ErrStateConflict)
		}
		if err := lockPendingConfirmation(ctx, tx, op, p.TransactionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE payment_confirmations
			SET status = $2, verified_by = $3, verified_at = $4, rejection_reason = $5
			WHERE transaction_id = $1`,
			p.TransactionID, string(models.ConfirmationRejected), p.AdminID, p.Now, p.Reason); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := setPaymentStatus(ctx, tx, p.TransactionID, models.PaymentFailed, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetPaymentTransaction(ctx, p.TransactionID)
}

// CompleteGatewayPayment завершает оплату через шлюз и активирует подписку.
// Повторный вызов для уже завершённой транзакции ничего не меняет и возвращает applied=false.
// Деньги к этому моменту списаны, поэтому исчерпанный лимит кампании не отменяет завершение:
// счётчик просто не увеличивается.
func (s *Storage) CompleteGatewayPayment(ctx context.Context, p models.ApprovePaymentParams) (t *models.PaymentTransaction, applied bool, err error) {
	const op = "storage.CompleteGatewayPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		status, userID, campaignID, err := lockPayment(ctx, tx, p.TransactionID)
		if err != nil {
			return notFound(op, err)
		}
		if status == models.PaymentCompleted {
			return nil
		}
		if status != models.PaymentPending {
			return fmt.Errorf("%s: status %s: %w", op, status, storage.ErrStateConflict)
		}
		if err := setPaymentStatus(ctx, tx, p.TransactionID, models.PaymentCompleted, &p.Now); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := activateSubscription(ctx, tx, p.TransactionID, userID, p.PaidUntil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if campaignID != nil {
			if _, err := consumeCampaign(ctx, tx, *campaignID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	t, err = s.GetPaymentTransaction(ctx, p.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return t, applied, nil
}

// FailGatewayPayment помечает неоплаченную сессию шлюза как failed.
// Возвращает false, если транзакция уже вышла из pending.
func (s *Storage) FailGatewayPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "storage.FailGatewayPayment"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE payment_transactions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`, id, string(models.PaymentFailed), string(models.PaymentPending))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
