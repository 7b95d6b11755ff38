package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ListAdmin(ctx context.Context, status models.PaymentStatus, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	args := m.Called(ctx, status, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.PaymentTransaction), args.Get(1).(int64), args.Error(2)
}

func (m *ServiceMock) Approve(ctx context.Context, adminID, id uuid.UUID) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, adminID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *ServiceMock) Reject(ctx context.Context, adminID, id uuid.UUID, reason string) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, adminID, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(h *Handler, admin *models.AdminUser) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middlewarectx.WithAdmin(req.Context(), admin)))
		})
	})
	r.Get("/api/admin/payments", h.List)
	r.Post("/api/admin/payments/{id}/approve", h.Approve)
	r.Post("/api/admin/payments/{id}/reject", h.Reject)
	return r
}

func serve(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	var resp response.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestHandler_Approve(t *testing.T) {
	admin := &models.AdminUser{ID: uuid.New(), Role: models.RoleAdmin}
	id := uuid.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "approved", wantStatus: http.StatusOK},
		{
			name:       "second approval conflicts",
			err:        fmt.Errorf("payment.Approve: %w", payment.ErrInvalidState),
			wantStatus: http.StatusConflict,
			wantError:  payment.ErrInvalidState.Error(),
		},
		{
			name:       "campaign exhausted meanwhile",
			err:        fmt.Errorf("payment.Approve: %w", campaign.ErrLimitReached),
			wantStatus: http.StatusConflict,
			wantError:  "campaign limit reached",
		},
		{
			name:       "unknown payment",
			err:        fmt.Errorf("payment.Approve: %w", payment.ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.err != nil {
				svc.On("Approve", mock.Anything, admin.ID, id).Return(nil, tt.err).Once()
			} else {
				svc.On("Approve", mock.Anything, admin.ID, id).
					Return(&models.PaymentTransaction{ID: id, Status: models.PaymentCompleted}, nil).Once()
			}
			router := newRouter(New(newNoopLogger(), svc), admin)

			rec, resp := serve(t, router, http.MethodPost, "/api/admin/payments/"+id.String()+"/approve", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Reject(t *testing.T) {
	admin := &models.AdminUser{ID: uuid.New(), Role: models.RoleAdmin}
	id := uuid.New()

	t.Run("blank reason is refused before the service", func(t *testing.T) {
		for _, body := range []string{`{"reason":""}`, `{"reason":"   \t"}`, `{}`} {
			svc := new(ServiceMock)
			router := newRouter(New(newNoopLogger(), svc), admin)

			rec, resp := serve(t, router, http.MethodPost, "/api/admin/payments/"+id.String()+"/reject", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Equal(t, payment.ErrReasonRequired.Error(), resp.Error)
			svc.AssertNotCalled(t, "Reject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Reject", mock.Anything, admin.ID, id, "referência não encontrada").
			Return(&models.PaymentTransaction{ID: id, Status: models.PaymentFailed}, nil).Once()
		router := newRouter(New(newNoopLogger(), svc), admin)

		rec, _ := serve(t, router, http.MethodPost, "/api/admin/payments/"+id.String()+"/reject",
			`{"reason":"referência não encontrada"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

func TestHandler_List(t *testing.T) {
	admin := &models.AdminUser{ID: uuid.New()}

	t.Run("filtered by status", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("ListAdmin", mock.Anything, models.PaymentProcessing, models.Page{Limit: 50}).
			Return([]*models.PaymentTransaction{}, int64(0), nil).Once()
		router := newRouter(New(newNoopLogger(), svc), admin)

		rec, _ := serve(t, router, http.MethodGet, "/api/admin/payments?status=processing", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := new(ServiceMock)
		router := newRouter(New(newNoopLogger(), svc), admin)

		rec, _ := serve(t, router, http.MethodGet, "/api/admin/payments?status=paid", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
