package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/finance-saas/internal/migrations"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(dsn)
	require.NoError(t, err, "failed to create storage")
	t.Cleanup(func() { _ = s.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(s.DB, filepath.Join(root, "migrations")))
	return s
}

// TestDataFactory создаёт тестовые данные через публичные методы хранилища.
type TestDataFactory struct {
	storage *Storage
	seq     int
}

func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

func (f *TestDataFactory) CreateUser(t *testing.T, status models.SubscriptionStatus, trialEndsAt time.Time) *models.User {
	t.Helper()
	f.seq++
	u, err := f.storage.CreateUser(context.Background(), &models.User{
		Email:              fmt.Sprintf("user%d-%s@example.com", f.seq, uuid.NewString()[:8]),
		Name:               "Test User",
		PasswordHash:       "hash",
		Timezone:           "Africa/Luanda",
		SubscriptionStatus: status,
		PlanType:           models.PlanBasic,
		TrialEndsAt:        trialEndsAt,
	})
	require.NoError(t, err)
	return u
}

func (f *TestDataFactory) CreateAccount(t *testing.T, userID uuid.UUID, balance string) *models.Account {
	t.Helper()
	a, err := f.storage.CreateAccount(context.Background(), &models.Account{
		UserID:   userID,
		Name:     "Wallet",
		Type:     models.AccountCash,
		Currency: "AOA",
		Balance:  decimal.RequireFromString(balance),
	})
	require.NoError(t, err)
	return a
}

func (f *TestDataFactory) CreateCampaign(t *testing.T, limit *int, count int) *models.Campaign {
	t.Helper()
	f.seq++
	now := time.Now()
	c, err := f.storage.CreateCampaign(context.Background(), &models.Campaign{
		Code:          fmt.Sprintf("promo%d", f.seq),
		Name:          "Promo",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		ValidFrom:     now.Add(-24 * time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		UsageLimit:    limit,
		UsageCount:    count,
		IsActive:      true,
	})
	require.NoError(t, err)
	return c
}

// CreatePayment создаёт транзакцию pending на премиум-план.
func (f *TestDataFactory) CreatePayment(t *testing.T, userID uuid.UUID, method models.PaymentMethodCode, campaignID *uuid.UUID) *models.PaymentTransaction {
	t.Helper()
	ctx := context.Background()
	plan, err := f.storage.GetPlanByType(ctx, models.PlanPremium)
	require.NoError(t, err)
	m, err := f.storage.GetPaymentMethodByCode(ctx, method)
	require.NoError(t, err)

	p, err := f.storage.CreatePaymentTransaction(ctx, &models.PaymentTransaction{
		UserID:          userID,
		PlanID:          plan.ID,
		PaymentMethodID: m.ID,
		CampaignID:      campaignID,
		Amount:          plan.Price,
		Discount:        decimal.Zero,
		FinalAmount:     plan.Price,
		Currency:        plan.Currency,
	})
	require.NoError(t, err)
	return p
}

// CreateProcessingPayment создаёт ручную оплату с подтверждением, ожидающим проверки.
func (f *TestDataFactory) CreateProcessingPayment(t *testing.T, userID uuid.UUID, campaignID *uuid.UUID) *models.PaymentTransaction {
	t.Helper()
	p := f.CreatePayment(t, userID, models.MethodBankTransfer, campaignID)
	_, err := f.storage.SubmitConfirmation(context.Background(), &models.PaymentConfirmation{
		TransactionID: p.ID,
		UserID:        userID,
		Reference:     "REF-" + p.ID.String()[:8],
	})
	require.NoError(t, err)
	return p
}

func (f *TestDataFactory) CreateAdmin(t *testing.T) *models.AdminUser {
	t.Helper()
	f.seq++
	a, err := f.storage.CreateAdmin(context.Background(), &models.AdminUser{
		Email:        fmt.Sprintf("admin%d@example.com", f.seq),
		Name:         "Admin",
		PasswordHash: "hash",
		Role:         models.RoleAdmin,
		IsActive:     true,
	})
	require.NoError(t, err)
	return a
}

// TestVerification читает состояние напрямую из БД.
type TestVerification struct {
	storage *Storage
}

func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

func (v *TestVerification) UserStatus(t *testing.T, id uuid.UUID) (models.SubscriptionStatus, models.PlanType) {
	t.Helper()
	var (
		status models.SubscriptionStatus
		plan   models.PlanType
	)
	err := v.storage.DB.QueryRow(`SELECT subscription_status, plan_type FROM users WHERE id = $1`, id).Scan(&status, &plan)
	require.NoError(t, err)
	return status, plan
}

func (v *TestVerification) CampaignUsage(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, v.storage.DB.QueryRow(`SELECT usage_count FROM campaigns WHERE id = $1`, id).Scan(&n))
	return n
}

func (v *TestVerification) PaymentStatus(t *testing.T, id uuid.UUID) models.PaymentStatus {
	t.Helper()
	var status models.PaymentStatus
	require.NoError(t, v.storage.DB.QueryRow(`SELECT status FROM payment_transactions WHERE id = $1`, id).Scan(&status))
	return status
}

func (v *TestVerification) Balance(t *testing.T, accountID uuid.UUID) decimal.Decimal {
	t.Helper()
	var b decimal.Decimal
	require.NoError(t, v.storage.DB.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&b))
	return b
}

func intPtr(v int) *int {
	return &v
}
