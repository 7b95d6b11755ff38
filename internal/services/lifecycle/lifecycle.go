// Package lifecycle реализует ежедневный проход по пробным подпискам:
// истёкшие пробные периоды переводятся в trial_expired, а пользователям,
// у которых срок подходит к концу, отправляются напоминания.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/period"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/metrics"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

// LockKey — ключ advisory-блокировки, не дающей двум проходам идти одновременно.
const LockKey int64 = 0x6c696665

// ErrAlreadyRunning — другой проход уже держит блокировку.
var ErrAlreadyRunning = errors.New("lifecycle run is already in progress")

// Repository — данные, с которыми работает проход.
type Repository interface {
	ListTrialingUsers(ctx context.Context) ([]*models.User, error)
	ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkTrialNotification(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, trialEndsAt time.Time) (bool, error)
	DeleteTrialNotification(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, trialEndsAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	TryAdvisoryLock(ctx context.Context, key int64) (func(), error)
}

// Notifier доставляет уведомление пользователю. Транспорт проходу не известен.
type Notifier interface {
	Send(ctx context.Context, userID uuid.UUID, templateID string, params map[string]any) error
}

// Config — настройки прохода.
type Config struct {
	// NotifyDays — за сколько дней до конца пробного периода напоминать: 3, 1 и 0 (в последний день).
	NotifyDays []int
	BillingURL string
}

// Result — итоги прохода.
type Result struct {
	Checked        int                             `json:"checked"`
	Expired        int                             `json:"expired"`
	Notified       map[models.NotificationKind]int `json:"notified"`
	Skipped        int                             `json:"skipped"`
	Failed         int                             `json:"failed"`
	SessionsPurged int64                           `json:"sessionsPurged"`
}

// TotalNotified возвращает число отправленных уведомлений всех видов.
func (r Result) TotalNotified() int {
	total := 0
	for _, n := range r.Notified {
		total += n
	}
	return total
}

// Service выполняет проход.
type Service struct {
	repo     Repository
	notifier Notifier
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт сервис жизненного цикла подписок.
func New(repo Repository, notifier Notifier, cfg Config, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Run выполняет один проход. Ошибка по одному пользователю не останавливает
// остальных: все такие ошибки собираются и возвращаются вместе в конце.
func (s *Service) Run(ctx context.Context) (Result, error) {
	const op = "lifecycle.Run"
	start := time.Now()
	res := Result{Notified: make(map[models.NotificationKind]int)}

	release, err := s.repo.TryAdvisoryLock(ctx, LockKey)
	if errors.Is(err, storage.ErrLocked) {
		return res, fmt.Errorf("%s: %w", op, ErrAlreadyRunning)
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	defer release()
	defer func() { metrics.RecordLifecycleRun(time.Since(start)) }()

	now := s.now()
	log := s.log.With(slog.String("op", op), slog.Time("now", now))

	users, err := s.repo.ListTrialingUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("lifecycle run started", slog.Int("trialing", len(users)))

	var errs []error
	for _, u := range users {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res.Checked++
		if err := s.processUser(ctx, u, now, &res); err != nil {
			res.Failed++
			log.Error("failed to process user", sl.UserID(u.ID), sl.Err(err))
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
		}
	}

	purged, err := s.repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		log.Error("failed to purge expired sessions", sl.Err(err))
		errs = append(errs, err)
	}
	res.SessionsPurged = purged

	log.Info("lifecycle run finished",
		slog.Int("checked", res.Checked),
		slog.Int("expired", res.Expired),
		slog.Int("notified", res.TotalNotified()),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int64("sessions_purged", res.SessionsPurged),
	)

	if len(errs) > 0 {
		return res, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}
	return res, nil
}

func (s *Service) processUser(ctx context.Context, u *models.User, now time.Time, res *Result) error {
	if u.TrialEndsAt.Before(now) {
		changed, err := s.repo.ExpireTrial(ctx, u.ID, now)
		if err != nil {
			return err
		}
		if !changed {
			// Статус успел измениться, например после одобрения оплаты.
			res.Skipped++
			return nil
		}
		res.Expired++
		metrics.RecordLifecycleTransition(string(models.StatusTrialExpired))
		return s.notify(ctx, u, models.NotifyTrialExpire, now, res)
	}

	var errs []error
	for _, kind := range s.dueReminders(u, now) {
		if err := s.notify(ctx, u, kind, now, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dueReminders возвращает напоминания, окно которых сейчас содержит конец пробного периода.
// Пороги проверяются независимо: за день до конца приходят и трёхдневное, и однодневное.
func (s *Service) dueReminders(u *models.User, now time.Time) []models.NotificationKind {
	left := u.TrialEndsAt.Sub(now)
	var kinds []models.NotificationKind
	for _, days := range s.cfg.NotifyDays {
		switch days {
		case 3:
			if left <= 72*time.Hour {
				kinds = append(kinds, models.NotifyTrial3Days)
			}
		case 1:
			if left <= 24*time.Hour {
				kinds = append(kinds, models.NotifyTrial1Day)
			}
		case 0:
			if period.SameDay(now, u.TrialEndsAt, u.Location()) {
				kinds = append(kinds, models.NotifyTrialToday)
			}
		}
	}
	return kinds
}

// notify отправляет уведомление не более одного раза на срок пробного периода.
// Отметка ставится до отправки и снимается при ошибке, чтобы следующий проход повторил попытку.
func (s *Service) notify(ctx context.Context, u *models.User, kind models.NotificationKind, now time.Time, res *Result) error {
	inserted, err := s.repo.MarkTrialNotification(ctx, u.ID, kind, u.TrialEndsAt)
	if err != nil {
		return err
	}
	if !inserted {
		res.Skipped++
		metrics.RecordLifecycleNotification(string(kind), "skipped")
		return nil
	}

	if err := s.notifier.Send(ctx, u.ID, string(kind), s.params(u, now)); err != nil {
		metrics.RecordLifecycleNotification(string(kind), "failed")
		if derr := s.repo.DeleteTrialNotification(ctx, u.ID, kind, u.TrialEndsAt); derr != nil {
			s.log.Error("failed to clear notification marker", sl.UserID(u.ID),
				slog.String("template", string(kind)), sl.Err(derr))
		}
		return fmt.Errorf("send %s: %w", kind, err)
	}

	res.Notified[kind]++
	metrics.RecordLifecycleNotification(string(kind), "sent")
	return nil
}

func (s *Service) params(u *models.User, now time.Time) map[string]any {
	daysLeft := int(u.TrialEndsAt.Sub(now).Hours() / 24)
	if daysLeft < 0 {
		daysLeft = 0
	}
	return map[string]any{
		"email":       u.Email,
		"name":        u.Name,
		"planType":    string(u.PlanType),
		"trialEndsAt": u.TrialEndsAt.In(u.Location()).Format(time.RFC3339),
		"daysLeft":    daysLeft,
		"billingUrl":  s.cfg.BillingURL,
	}
}
