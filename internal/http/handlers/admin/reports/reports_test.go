package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Analytics(ctx context.Context) (*models.Analytics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Analytics), args.Error(1)
}

func (m *ServiceMock) AuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.AuditLog), args.Get(1).(int64), args.Error(2)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_Analytics(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Analytics", mock.Anything).Return(&models.Analytics{
			TotalUsers:       12,
			RevenueThisMonth: decimal.NewFromInt(8000),
			UsersByStatus:    map[models.SubscriptionStatus]int64{models.StatusTrialing: 10, models.StatusActive: 2},
		}, nil).Once()

		rec := httptest.NewRecorder()
		New(newNoopLogger(), svc).Analytics(rec, httptest.NewRequest(http.MethodGet, "/api/admin/analytics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp response.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		data := resp.Data.(map[string]any)
		assert.EqualValues(t, 12, data["totalUsers"])
		assert.Equal(t, "8000", data["revenueThisMonth"])
	})

	t.Run("storage failure", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Analytics", mock.Anything).Return(nil, errors.New("db down")).Once()

		rec := httptest.NewRecorder()
		New(newNoopLogger(), svc).Analytics(rec, httptest.NewRequest(http.MethodGet, "/api/admin/analytics", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_AuditLogs(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      string
		setupMocks func(m *ServiceMock)
		wantStatus int
	}{
		{
			name:  "filters",
			query: "?actorType=admin&action=payment.approve&severity=warning&from=2025-03-01&limit=5",
			setupMocks: func(m *ServiceMock) {
				m.On("AuditLogs", mock.Anything, mock.MatchedBy(func(f models.AuditFilter) bool {
					return f.ActorType == models.ActorAdmin && f.Action == "payment.approve" &&
						f.Severity == models.SeverityWarning && f.From != nil && f.From.Equal(from) &&
						f.To == nil && f.Limit == 5
				})).Return([]*models.AuditLog{{Action: "payment.approve"}}, int64(1), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad date",
			query:      "?to=march",
			setupMocks: func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "reversed range",
			query: "?from=2025-03-02&to=2025-03-01",
			setupMocks: func(m *ServiceMock) {
				m.On("AuditLogs", mock.Anything, mock.Anything).
					Return(nil, int64(0), fmt.Errorf("admin.AuditLogs: %w: to is before from", admin.ErrInvalid)).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)

			rec := httptest.NewRecorder()
			New(newNoopLogger(), svc).AuditLogs(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit-logs"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}
