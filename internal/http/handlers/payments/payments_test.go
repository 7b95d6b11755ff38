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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/stripepay"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Methods(ctx context.Context) ([]*models.PaymentMethod, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentMethod), args.Error(1)
}

func (m *ServiceMock) Initiate(ctx context.Context, userID uuid.UUID, req payment.InitiateRequest) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *ServiceMock) Confirm(ctx context.Context, userID uuid.UUID, req payment.ConfirmRequest) (*models.PaymentConfirmation, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentConfirmation), args.Error(1)
}

func (m *ServiceMock) Cancel(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *ServiceMock) Get(ctx context.Context, userID, id uuid.UUID) (*models.PaymentTransaction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentTransaction), args.Error(1)
}

func (m *ServiceMock) ListUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]*models.PaymentTransaction, int64, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.PaymentTransaction), args.Get(1).(int64), args.Error(2)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(h *Handler, user *models.User) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middlewarectx.WithUser(req.Context(), user)))
		})
	})
	r.Get("/api/payments", h.List)
	r.Get("/api/payments/methods", h.Methods)
	r.Post("/api/payments/initiate", h.Initiate)
	r.Post("/api/payments/confirm", h.Confirm)
	r.Get("/api/payments/{id}", h.Get)
	r.Post("/api/payments/{id}/cancel", h.Cancel)
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

func TestHandler_Initiate(t *testing.T) {
	user := &models.User{ID: uuid.New()}

	tests := []struct {
		name       string
		body       string
		setupMocks func(m *ServiceMock)
		wantStatus int
		wantError  string
	}{
		{
			name: "manual method",
			body: `{"planType":"premium","methodCode":"multicaixa_express","couponCode":"VERAO20"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("Initiate", mock.Anything, user.ID, payment.InitiateRequest{
					PlanType:   models.PlanPremium,
					MethodCode: models.MethodMulticaixa,
					CouponCode: "VERAO20",
				}).Return(&models.PaymentTransaction{
					ID:          uuid.New(),
					Status:      models.PaymentPending,
					FinalAmount: decimal.NewFromInt(4000),
				}, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "exhausted coupon",
			body: `{"planType":"premium","methodCode":"bank_transfer","couponCode":"VERAO20"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("Initiate", mock.Anything, user.ID, mock.Anything).
					Return(nil, fmt.Errorf("payment.Initiate: campaign.Validate: %w", campaign.ErrLimitReached)).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "limit reached",
		},
		{
			name: "stripe without keys",
			body: `{"planType":"basic","methodCode":"stripe"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("Initiate", mock.Anything, user.ID, mock.Anything).
					Return(nil, fmt.Errorf("payment.Initiate: %w", stripepay.ErrNotConfigured)).Once()
			},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "missing method",
			body:       `{"planType":"basic"}`,
			setupMocks: func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "field methodCode is a required field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			router := newRouter(New(newNoopLogger(), svc), user)

			rec, resp := serve(t, router, http.MethodPost, "/api/payments/initiate", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Confirm(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	txID := uuid.New()
	body := fmt.Sprintf(`{"transactionId":%q,"reference":"MCX-000123"}`, txID)

	t.Run("submitted", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Confirm", mock.Anything, user.ID, payment.ConfirmRequest{TransactionID: txID, Reference: "MCX-000123"}).
			Return(&models.PaymentConfirmation{ID: uuid.New(), TransactionID: txID, Status: models.ConfirmationPending}, nil).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		rec, _ := serve(t, router, http.MethodPost, "/api/payments/confirm", body)

		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("second confirmation conflicts", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Confirm", mock.Anything, user.ID, mock.Anything).
			Return(nil, fmt.Errorf("payment.Confirm: %w", payment.ErrInvalidState)).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		rec, _ := serve(t, router, http.MethodPost, "/api/payments/confirm", body)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("gateway payment cannot be confirmed manually", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Confirm", mock.Anything, user.ID, mock.Anything).
			Return(nil, fmt.Errorf("payment.Confirm: %w", payment.ErrNotManual)).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		rec, resp := serve(t, router, http.MethodPost, "/api/payments/confirm", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, payment.ErrNotManual.Error(), resp.Error)
	})
}

func TestHandler_CancelAndList(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	id := uuid.New()

	t.Run("cancel foreign payment", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Cancel", mock.Anything, user.ID, id).Return(fmt.Errorf("payment.Cancel: %w", payment.ErrNotFound)).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		rec, _ := serve(t, router, http.MethodPost, "/api/payments/"+id.String()+"/cancel", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("ListUser", mock.Anything, user.ID, models.Page{Limit: 20, Offset: 0}).
			Return([]*models.PaymentTransaction{{ID: id}}, int64(1), nil).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		rec, resp := serve(t, router, http.MethodGet, "/api/payments?limit=20", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		data, ok := resp.Data.(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 1, data["total"])
		svc.AssertExpectations(t)
	})
}
