package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListTrialingUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockRepository) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkTrialNotification(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, trialEndsAt time.Time) (bool, error) {
	args := m.Called(ctx, userID, kind, trialEndsAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteTrialNotification(ctx context.Context, userID uuid.UUID, kind models.NotificationKind, trialEndsAt time.Time) error {
	args := m.Called(ctx, userID, kind, trialEndsAt)
	return args.Error(0)
}

func (m *MockRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) TryAdvisoryLock(ctx context.Context, key int64) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, userID uuid.UUID, templateID string, params map[string]any) error {
	args := m.Called(ctx, userID, templateID, params)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var defaultConfig = Config{NotifyDays: []int{3, 1, 0}, BillingURL: "/billing"}

func newService(repo *MockRepository, n *MockNotifier, now time.Time) *Service {
	svc := New(repo, n, defaultConfig, newNoopLogger())
	svc.now = func() time.Time { return now }
	return svc
}

func trialUser(ends time.Time) *models.User {
	return &models.User{
		ID:                 uuid.New(),
		Email:              "ana@example.ao",
		Name:               "Ana",
		Timezone:           "Africa/Luanda",
		SubscriptionStatus: models.StatusTrialing,
		PlanType:           models.PlanBasic,
		TrialEndsAt:        ends,
	}
}

func expectLock(repo *MockRepository, released *bool) {
	repo.On("TryAdvisoryLock", mock.Anything, LockKey).Return(func() { *released = true }, nil).Once()
}

func TestService_Run_Reminders(t *testing.T) {
	// 08:00 UTC = 09:00 в Луанде.
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ends time.Time
		want []models.NotificationKind
	}{
		{
			name: "five days left",
			ends: now.Add(5 * 24 * time.Hour),
			want: nil,
		},
		{
			name: "three days left",
			ends: now.Add(72 * time.Hour),
			want: []models.NotificationKind{models.NotifyTrial3Days},
		},
		{
			name: "one day left gets both three-day and one-day",
			ends: now.Add(20 * time.Hour),
			want: []models.NotificationKind{models.NotifyTrial3Days, models.NotifyTrial1Day},
		},
		{
			name: "ends later today",
			ends: now.Add(5 * time.Hour),
			want: []models.NotificationKind{models.NotifyTrial3Days, models.NotifyTrial1Day, models.NotifyTrialToday},
		},
		{
			name: "ends exactly now is not expired yet",
			ends: now,
			want: []models.NotificationKind{models.NotifyTrial3Days, models.NotifyTrial1Day, models.NotifyTrialToday},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			n := new(MockNotifier)
			u := trialUser(tt.ends)
			released := false

			expectLock(repo, &released)
			repo.On("ListTrialingUsers", mock.Anything).Return([]*models.User{u}, nil).Once()
			for _, kind := range tt.want {
				repo.On("MarkTrialNotification", mock.Anything, u.ID, kind, tt.ends).Return(true, nil).Once()
				n.On("Send", mock.Anything, u.ID, string(kind), mock.MatchedBy(func(p map[string]any) bool {
					return p["email"] == u.Email && p["billingUrl"] == "/billing"
				})).Return(nil).Once()
			}
			repo.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(0), nil).Once()

			res, err := newService(repo, n, now).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), res.TotalNotified())
			assert.Equal(t, 0, res.Expired)
			assert.True(t, released)

			repo.AssertExpectations(t)
			n.AssertExpectations(t)
			repo.AssertNotCalled(t, "ExpireTrial", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_Run_ExpiresTrial(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	u := trialUser(created.AddDate(0, 0, 14))

	t.Run("run at T+15d expires and notifies", func(t *testing.T) {
		now := created.AddDate(0, 0, 15)
		repo := new(MockRepository)
		n := new(MockNotifier)
		released := false

		expectLock(repo, &released)
		repo.On("ListTrialingUsers", mock.Anything).Return([]*models.User{u}, nil).Once()
		repo.On("ExpireTrial", mock.Anything, u.ID, now).Return(true, nil).Once()
		repo.On("MarkTrialNotification", mock.Anything, u.ID, models.NotifyTrialExpire, u.TrialEndsAt).Return(true, nil).Once()
		n.On("Send", mock.Anything, u.ID, string(models.NotifyTrialExpire), mock.Anything).Return(nil).Once()
		repo.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(3), nil).Once()

		res, err := newService(repo, n, now).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Expired)
		assert.Equal(t, 1, res.Notified[models.NotifyTrialExpire])
		assert.EqualValues(t, 3, res.SessionsPurged)
		repo.AssertExpectations(t)
		n.AssertExpectations(t)
	})

	t.Run("run at T+16d finds nobody", func(t *testing.T) {
		now := created.AddDate(0, 0, 16)
		repo := new(MockRepository)
		n := new(MockNotifier)
		released := false

		expectLock(repo, &released)
		repo.On("ListTrialingUsers", mock.Anything).Return([]*models.User{}, nil).Once()
		repo.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(0), nil).Once()

		res, err := newService(repo, n, now).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Result{Notified: map[models.NotificationKind]int{}}, res)
		n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("concurrent activation wins", func(t *testing.T) {
		now := created.AddDate(0, 0, 15)
		repo := new(MockRepository)
		n := new(MockNotifier)
		released := false

		expectLock(repo, &released)
		repo.On("ListTrialingUsers", mock.Anything).Return([]*models.User{u}, nil).Once()
		repo.On("ExpireTrial", mock.Anything, u.ID, now).Return(false, nil).Once()
		repo.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(0), nil).Once()

		res, err := newService(repo, n, now).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Expired)
		assert.Equal(t, 1, res.Skipped)
		n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_Run_DedupesNotifications(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	u := trialUser(now.Add(60 * time.Hour))

	repo := new(MockRepository)
	n := new(MockNotifier)
	released := false

	expectLock(repo, &released)
	repo.On("ListTrialingUsers", mock.Anything).Return([]*models.User{u}, nil).Once()
	repo.On("MarkTrialNotification", mock.Anything, u.ID, models.NotifyTrial3Days, u.TrialEndsAt).Return(false, nil).Once()
	repo.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(0), nil).Once()

	res, err := newService(repo, n, now).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalNotified())
	assert.Equal(t, 1, res.Skipped)
	n.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Run_IsolatesFailures(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	broken := trialUser(now.Add(60 * time.Hour))
	bad := trialUser(now.Add(-time.Hour))
	healthy := trialUser(now.Add(60 * time.Hour))

	repo := new(MockRepository)
	n := new(MockNotifier)
	released := false

	expectLock(repo, &released)
	repo.On("ListTrialingUsers", mock.Anything).Return([]*models.User{broken, bad, healthy}, nil).Once()

	repo.On("MarkTrialNotification", mock.Anything, broken.ID, models.NotifyTrial3Days, broken.TrialEndsAt).Return(true, nil).Once()
	n.On("Send", mock.Anything, broken.ID, string(models.NotifyTrial3Days), mock.Anything).Return(errors.New("broker down")).Once()
	repo.On("DeleteTrialNotification", mock.Anything, broken.ID, models.NotifyTrial3Days, broken.TrialEndsAt).Return(nil).Once()

	repo.On("ExpireTrial", mock.Anything, bad.ID, now).Return(false, errors.New("deadlock detected")).Once()

	repo.On("MarkTrialNotification", mock.Anything, healthy.ID, models.NotifyTrial3Days, healthy.TrialEndsAt).Return(true, nil).Once()
	n.On("Send", mock.Anything, healthy.ID, string(models.NotifyTrial3Days), mock.Anything).Return(nil).Once()

	repo.On("DeleteExpiredSessions", mock.Anything, now).Return(int64(0), nil).Once()

	res, err := newService(repo, n, now).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Notified[models.NotifyTrial3Days])
	assert.True(t, released)

	repo.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestService_Run_LockHeld(t *testing.T) {
	repo := new(MockRepository)
	repo.On("TryAdvisoryLock", mock.Anything, LockKey).Return(nil, storage.ErrLocked).Once()

	_, err := newService(repo, new(MockNotifier), time.Now()).Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
	repo.AssertNotCalled(t, "ListTrialingUsers", mock.Anything)
}

func TestService_Run_ListFails(t *testing.T) {
	repo := new(MockRepository)
	released := false
	expectLock(repo, &released)
	repo.On("ListTrialingUsers", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	_, err := newService(repo, new(MockNotifier), time.Now()).Run(context.Background())
	require.Error(t, err)
	assert.True(t, released)
}
