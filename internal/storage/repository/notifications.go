package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// MarkTrialNotification ставит отметку об уведомлении kind для срока trialEndsAt.
// inserted=false означает, что уведомление уже отправлялось.
func (s *Storage) MarkTrialNotification(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, trialEndsAt time.Time) (inserted bool, err error) {
	const op = "storage.MarkTrialNotification"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO trial_notifications (user_id, kind, trial_ends_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, userID, string(kind), trialEndsAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// DeleteTrialNotification снимает отметку, чтобы следующий запуск повторил отправку.
func (s *Storage) DeleteTrialNotification(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, trialEndsAt time.Time) error {
	const op = "storage.DeleteTrialNotification"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM trial_notifications
		WHERE user_id = $1 AND kind = $2 AND trial_ends_at = $3`, userID, string(kind), trialEndsAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
