package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

func TestStorage_ApprovePayment(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	v := NewTestVerification(s)
	ctx := context.Background()

	t.Run("approves once, second approval conflicts", func(t *testing.T) {
		u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))
		admin := f.CreateAdmin(t)
		c := f.CreateCampaign(t, intPtr(10), 0)
		p := f.CreateProcessingPayment(t, u.ID, &c.ID)
		now := time.Now().UTC()

		params := models.ApprovePaymentParams{
			TransactionID: p.ID,
			AdminID:       &admin.ID,
			Now:           now,
			PaidUntil:     now.AddDate(0, 0, 30),
		}
		got, err := s.ApprovePayment(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCompleted, got.Status)
		require.NotNil(t, got.Confirmation)
		assert.Equal(t, models.ConfirmationApproved, got.Confirmation.Status)
		require.NotNil(t, got.Confirmation.VerifiedBy)
		assert.Equal(t, admin.ID, *got.Confirmation.VerifiedBy)

		status, plan := v.UserStatus(t, u.ID)
		assert.Equal(t, models.StatusActive, status)
		assert.Equal(t, models.PlanPremium, plan)
		assert.Equal(t, 1, v.CampaignUsage(t, c.ID))

		_, err = s.ApprovePayment(ctx, params)
		require.ErrorIs(t, err, storage.ErrStateConflict)
		assert.Equal(t, 1, v.CampaignUsage(t, c.ID))
	})

	t.Run("campaign 9 of 10 becomes 10", func(t *testing.T) {
		u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))
		c := f.CreateCampaign(t, intPtr(10), 9)
		p := f.CreateProcessingPayment(t, u.ID, &c.ID)

		_, err := s.ApprovePayment(ctx, models.ApprovePaymentParams{
			TransactionID: p.ID, Now: time.Now(), PaidUntil: time.Now().AddDate(0, 0, 30),
		})
		require.NoError(t, err)
		assert.Equal(t, 10, v.CampaignUsage(t, c.ID))
	})

	t.Run("exhausted campaign rolls back everything", func(t *testing.T) {
		u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))
		c := f.CreateCampaign(t, intPtr(10), 10)
		p := f.CreateProcessingPayment(t, u.ID, &c.ID)

		_, err := s.ApprovePayment(ctx, models.ApprovePaymentParams{
			TransactionID: p.ID, Now: time.Now(), PaidUntil: time.Now().AddDate(0, 0, 30),
		})
		require.ErrorIs(t, err, storage.ErrUsageLimit)

		assert.Equal(t, models.PaymentProcessing, v.PaymentStatus(t, p.ID))
		status, plan := v.UserStatus(t, u.ID)
		assert.Equal(t, models.StatusTrialing, status)
		assert.Equal(t, models.PlanBasic, plan)
		assert.Equal(t, 10, v.CampaignUsage(t, c.ID))
	})

	t.Run("pending payment without confirmation", func(t *testing.T) {
		u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))
		p := f.CreatePayment(t, u.ID, models.MethodBankTransfer, nil)

		_, err := s.ApprovePayment(ctx, models.ApprovePaymentParams{TransactionID: p.ID, Now: time.Now()})
		require.ErrorIs(t, err, storage.ErrStateConflict)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := s.ApprovePayment(ctx, models.ApprovePaymentParams{TransactionID: uuid.New(), Now: time.Now()})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStorage_RejectPayment(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	v := NewTestVerification(s)
	ctx := context.Background()

	u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))
	admin := f.CreateAdmin(t)
	p := f.CreateProcessingPayment(t, u.ID, nil)

	got, err := s.RejectPayment(ctx, models.RejectPaymentParams{
		TransactionID: p.ID, AdminID: admin.ID, Reason: "proof unreadable", Now: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	require.NotNil(t, got.Confirmation)
	assert.Equal(t, models.ConfirmationRejected, got.Confirmation.Status)
	require.NotNil(t, got.Confirmation.RejectionReason)
	assert.Equal(t, "proof unreadable", *got.Confirmation.RejectionReason)

	status, _ := v.UserStatus(t, u.ID)
	assert.Equal(t, models.StatusTrialing, status)

	_, err = s.RejectPayment(ctx, models.RejectPaymentParams{
		TransactionID: p.ID, AdminID: admin.ID, Reason: "again", Now: time.Now(),
	})
	require.ErrorIs(t, err, storage.ErrStateConflict)
}

func TestStorage_SubmitConfirmationAndCancel(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	v := NewTestVerification(s)
	ctx := context.Background()

	u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))
	other := f.CreateUser(t, models.StatusTrialing, time.Now().Add(48*time.Hour))

	p := f.CreatePayment(t, u.ID, models.MethodMulticaixa, nil)
	conf := &models.PaymentConfirmation{TransactionID: p.ID, UserID: u.ID, Reference: "MCX-1"}

	_, err := s.SubmitConfirmation(ctx, &models.PaymentConfirmation{TransactionID: p.ID, UserID: other.ID, Reference: "x"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	created, err := s.SubmitConfirmation(ctx, conf)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmationPending, created.Status)
	assert.Equal(t, models.PaymentProcessing, v.PaymentStatus(t, p.ID))

	_, err = s.SubmitConfirmation(ctx, conf)
	require.ErrorIs(t, err, storage.ErrStateConflict)

	require.ErrorIs(t, s.CancelPayment(ctx, u.ID, p.ID), storage.ErrStateConflict)

	pending := f.CreatePayment(t, u.ID, models.MethodBankTransfer, nil)
	require.NoError(t, s.CancelPayment(ctx, u.ID, pending.ID))
	assert.Equal(t, models.PaymentCancelled, v.PaymentStatus(t, pending.ID))

	list, total, err := s.ListUserPayments(ctx, u.ID, models.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	processing, _, err := s.ListPayments(ctx, models.PaymentProcessing, models.Page{})
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, u.Email, processing[0].UserEmail)
	require.NotNil(t, processing[0].Confirmation)
	assert.Equal(t, "MCX-1", processing[0].Confirmation.Reference)
}

func TestStorage_GatewayPayment(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	v := NewTestVerification(s)
	ctx := context.Background()

	u := f.CreateUser(t, models.StatusTrialExpired, time.Now().Add(-48*time.Hour))
	c := f.CreateCampaign(t, intPtr(1), 1)
	p := f.CreatePayment(t, u.ID, models.MethodStripe, &c.ID)
	require.NoError(t, s.SetPaymentExternalRef(ctx, p.ID, "cs_test_1"))

	params := models.ApprovePaymentParams{TransactionID: p.ID, Now: time.Now(), PaidUntil: time.Now().AddDate(0, 0, 30)}
	got, applied, err := s.CompleteGatewayPayment(ctx, params)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.PaymentCompleted, got.Status)
	require.NotNil(t, got.ExternalRef)
	assert.Equal(t, "cs_test_1", *got.ExternalRef)
	assert.Equal(t, 1, v.CampaignUsage(t, c.ID))

	status, plan := v.UserStatus(t, u.ID)
	assert.Equal(t, models.StatusActive, status)
	assert.Equal(t, models.PlanPremium, plan)

	_, applied, err = s.CompleteGatewayPayment(ctx, params)
	require.NoError(t, err)
	assert.False(t, applied)

	expired := f.CreatePayment(t, u.ID, models.MethodStripe, nil)
	changed, err := s.FailGatewayPayment(ctx, expired.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.FailGatewayPayment(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStorage_ExpireTrial(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	v := NewTestVerification(s)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	expired := f.CreateUser(t, models.StatusTrialing, start.AddDate(0, 0, 14))
	fresh := f.CreateUser(t, models.StatusTrialing, start.AddDate(0, 0, 20))
	paid := f.CreateUser(t, models.StatusActive, start.AddDate(0, 0, 14))

	now := start.AddDate(0, 0, 15)

	tests := []struct {
		name string
		id   uuid.UUID
		want bool
	}{
		{name: "trial past end", id: expired.ID, want: true},
		{name: "second run is a no-op", id: expired.ID, want: false},
		{name: "trial still running", id: fresh.ID, want: false},
		{name: "active user untouched", id: paid.ID, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ExpireTrial(ctx, tt.id, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	status, _ := v.UserStatus(t, expired.ID)
	assert.Equal(t, models.StatusTrialExpired, status)
	status, _ = v.UserStatus(t, paid.ID)
	assert.Equal(t, models.StatusActive, status)

	trialing, err := s.ListTrialingUsers(ctx)
	require.NoError(t, err)
	require.Len(t, trialing, 1)
	assert.Equal(t, fresh.ID, trialing[0].ID)
}

func TestStorage_TransactionsAdjustBalance(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	v := NewTestVerification(s)
	ctx := context.Background()

	u := f.CreateUser(t, models.StatusActive, time.Now().AddDate(0, 0, 30))
	a := f.CreateAccount(t, u.ID, "100.00")
	b := f.CreateAccount(t, u.ID, "0")

	tr, err := s.CreateTransaction(ctx, &models.Transaction{
		UserID: u.ID, AccountID: a.ID, Kind: models.KindExpense,
		Amount: decimal.RequireFromString("30.50"), Category: "food", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("69.50").Equal(v.Balance(t, a.ID)))

	tr.AccountID = b.ID
	tr.Kind = models.KindIncome
	tr.Amount = decimal.NewFromInt(10)
	_, err = s.UpdateTransaction(ctx, tr)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(v.Balance(t, a.ID)))
	assert.True(t, decimal.NewFromInt(10).Equal(v.Balance(t, b.ID)))

	require.NoError(t, s.DeleteTransaction(ctx, u.ID, tr.ID))
	assert.True(t, decimal.Zero.Equal(v.Balance(t, b.ID)))
	require.ErrorIs(t, s.DeleteTransaction(ctx, u.ID, tr.ID), storage.ErrNotFound)

	stranger := f.CreateUser(t, models.StatusActive, time.Now().AddDate(0, 0, 30))
	_, err = s.CreateTransaction(ctx, &models.Transaction{
		UserID: stranger.ID, AccountID: a.ID, Kind: models.KindIncome,
		Amount: decimal.NewFromInt(1), OccurredAt: time.Now(),
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	n, err := s.CountAccounts(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStorage_CountTransactionsBetween(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	ctx := context.Background()

	u := f.CreateUser(t, models.StatusActive, time.Now().AddDate(0, 0, 30))
	a := f.CreateAccount(t, u.ID, "0")

	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{
		from.Add(-time.Second),
		from,
		from.Add(15 * 24 * time.Hour),
		to.Add(-time.Second),
		to,
	} {
		_, err := s.CreateTransaction(ctx, &models.Transaction{
			UserID: u.ID, AccountID: a.ID, Kind: models.KindIncome, Amount: decimal.NewFromInt(1), OccurredAt: at,
		})
		require.NoError(t, err)
	}

	n, err := s.CountTransactionsBetween(ctx, u.ID, from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	list, total, err := s.ListTransactions(ctx, models.TransactionFilter{UserID: u.ID, From: &from, Page: models.Page{Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, list, 2)
}

func TestStorage_TrialNotificationMarker(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	ctx := context.Background()

	ends := time.Now().Add(30 * time.Hour).UTC().Truncate(time.Microsecond)
	u := f.CreateUser(t, models.StatusTrialing, ends)

	inserted, err := s.MarkTrialNotification(ctx, u.ID, models.NotifyTrial3Days, ends)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.MarkTrialNotification(ctx, u.ID, models.NotifyTrial3Days, ends)
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.MarkTrialNotification(ctx, u.ID, models.NotifyTrial3Days, ends.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.True(t, inserted, "extended trial gets a fresh marker")

	require.NoError(t, s.DeleteTrialNotification(ctx, u.ID, models.NotifyTrial3Days, ends))
	inserted, err = s.MarkTrialNotification(ctx, u.ID, models.NotifyTrial3Days, ends)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestStorage_Sessions(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateSession(ctx, "live", []byte(`{"userId":"x"}`), now.Add(time.Hour)))
	require.NoError(t, s.CreateSession(ctx, "stale", []byte(`{}`), now.Add(-time.Hour)))

	data, expiresAt, found, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"userId":"x"}`, string(data))
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.DeleteSession(ctx, "live"))
	_, _, found, err = s.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStorage_AdvisoryLock(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	const key int64 = 42

	release, err := s.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)

	_, err = s.TryAdvisoryLock(ctx, key)
	require.ErrorIs(t, err, storage.ErrLocked)

	release()
	again, err := s.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	again()
}

func TestStorage_PlansAndCampaigns(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	ctx := context.Background()

	limits, err := s.GetPlanLimits(ctx, models.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, models.PlanLimits{MaxAccounts: 5, MaxTransactions: 100}, *limits)

	price := decimal.RequireFromString("5000.00")
	plan, err := s.UpdatePlan(ctx, models.PlanPremium, models.PlanUpdate{Price: &price, MaxAccounts: intPtr(20)})
	require.NoError(t, err)
	assert.True(t, price.Equal(plan.Price))

	limits, err = s.GetPlanLimits(ctx, models.PlanPremium)
	require.NoError(t, err)
	assert.Equal(t, 20, limits.MaxAccounts)
	assert.Equal(t, models.Unlimited, limits.MaxTransactions)

	_, err = s.GetPlanLimits(ctx, models.PlanType("gold"))
	require.ErrorIs(t, err, storage.ErrNotFound)

	c := f.CreateCampaign(t, intPtr(5), 3)
	c.ApplicablePlans = []models.PlanType{models.PlanPremium}
	got, err := s.GetCampaignByCode(ctx, " "+c.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Empty(t, got.ApplicablePlans)

	updated, err := s.UpdateCampaign(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []models.PlanType{models.PlanPremium}, updated.ApplicablePlans)
	assert.Equal(t, 3, updated.UsageCount)

	c.UsageLimit = intPtr(2)
	_, err = s.UpdateCampaign(ctx, c)
	require.ErrorIs(t, err, storage.ErrStateConflict)

	_, err = s.CreateCampaign(ctx, &models.Campaign{
		Code: c.Code, Name: "dup", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(1),
		ValidFrom: time.Now(), ValidUntil: time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	require.NoError(t, s.DeleteCampaign(ctx, c.ID))
	require.ErrorIs(t, s.DeleteCampaign(ctx, c.ID), storage.ErrNotFound)
}

func TestStorage_AuditAndAnalytics(t *testing.T) {
	s := setupTestStorage(t)
	f := NewTestDataFactory(s)
	ctx := context.Background()

	admin := f.CreateAdmin(t)
	for _, sev := range []models.Severity{models.SeverityInfo, models.SeverityWarning, models.SeverityWarning} {
		require.NoError(t, s.InsertAuditLog(ctx, &models.AuditLog{
			ActorType: models.ActorAdmin, ActorID: &admin.ID, Action: "payment.approve",
			Resource: "payment_transaction", Severity: sev, Metadata: map[string]any{"amount": "4500.00"},
		}))
	}

	logs, total, err := s.ListAuditLogs(ctx, models.AuditFilter{Severity: models.SeverityWarning})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, logs, 2)
	assert.Equal(t, "4500.00", logs[0].Metadata["amount"])

	u := f.CreateUser(t, models.StatusTrialing, time.Now().Add(time.Hour))
	f.CreateProcessingPayment(t, u.ID, nil)
	done := f.CreateProcessingPayment(t, u.ID, nil)
	_, err = s.ApprovePayment(ctx, models.ApprovePaymentParams{
		TransactionID: done.ID, Now: time.Now(), PaidUntil: time.Now().AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	now := time.Now()
	a, err := s.GetAnalytics(ctx, now.AddDate(0, 0, -1), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.TotalUsers)
	assert.EqualValues(t, 1, a.UsersByStatus[models.StatusActive])
	assert.EqualValues(t, 1, a.PendingConfirmations)
	assert.True(t, decimal.NewFromInt(4500).Equal(a.RevenueTotal))
	assert.True(t, a.RevenueThisMonth.Equal(a.RevenueTotal))
}
