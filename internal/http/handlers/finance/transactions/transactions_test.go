package transactions

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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/finance"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) CreateTransaction(ctx context.Context, userID uuid.UUID, in finance.TransactionInput) (*models.Transaction, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *ServiceMock) UpdateTransaction(ctx context.Context, userID, id uuid.UUID, in finance.TransactionInput) (*models.Transaction, error) {
	args := m.Called(ctx, userID, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *ServiceMock) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *ServiceMock) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Transaction), args.Get(1).(int64), args.Error(2)
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
	r.Get("/api/transactions", h.List)
	r.Post("/api/transactions", h.Create)
	r.Put("/api/transactions/{id}", h.Update)
	r.Delete("/api/transactions/{id}", h.Delete)
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

func TestHandler_List(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	accountID := uuid.New()
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      string
		setupMocks func(m *ServiceMock)
		wantStatus int
	}{
		{
			name:  "all filters",
			query: "?from=2025-03-01&to=2025-03-31T23:00:00Z&accountId=" + accountID.String() + "&limit=10&offset=20",
			setupMocks: func(m *ServiceMock) {
				m.On("ListTransactions", mock.Anything, mock.MatchedBy(func(f models.TransactionFilter) bool {
					return f.UserID == user.ID &&
						f.From != nil && f.From.Equal(from) &&
						f.To != nil && f.To.Equal(to) &&
						f.AccountID != nil && *f.AccountID == accountID &&
						f.Limit == 10 && f.Offset == 20
				})).Return([]*models.Transaction{{ID: uuid.New()}}, int64(21), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "default page",
			query: "",
			setupMocks: func(m *ServiceMock) {
				m.On("ListTransactions", mock.Anything, models.TransactionFilter{UserID: user.ID, Page: models.Page{Limit: 50}}).
					Return([]*models.Transaction{}, int64(0), nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad from",
			query:      "?from=yesterday",
			setupMocks: func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad account id",
			query:      "?accountId=7",
			setupMocks: func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "reversed range",
			query: "?from=2025-03-31&to=2025-03-01",
			setupMocks: func(m *ServiceMock) {
				m.On("ListTransactions", mock.Anything, mock.Anything).
					Return(nil, int64(0), fmt.Errorf("finance.ListTransactions: %w: to is before from", finance.ErrInvalid)).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			router := newRouter(New(newNoopLogger(), svc), user)

			rec, _ := serve(t, router, http.MethodGet, "/api/transactions"+tt.query, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Create(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	accountID := uuid.New()

	t.Run("created", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("CreateTransaction", mock.Anything, user.ID, mock.MatchedBy(func(in finance.TransactionInput) bool {
			return in.AccountID == accountID && in.Kind == models.KindExpense && in.Amount.String() == "1250.5"
		})).Return(&models.Transaction{ID: uuid.New(), AccountID: accountID}, nil).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		body := fmt.Sprintf(`{"accountId":%q,"kind":"expense","amount":"1250.50","category":"food"}`, accountID)
		rec, _ := serve(t, router, http.MethodPost, "/api/transactions", body)

		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("CreateTransaction", mock.Anything, user.ID, mock.Anything).
			Return(nil, fmt.Errorf("finance.CreateTransaction: %w: amount must be positive", finance.ErrInvalid)).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		body := fmt.Sprintf(`{"accountId":%q,"kind":"income","amount":"0"}`, accountID)
		rec, resp := serve(t, router, http.MethodPost, "/api/transactions", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid input: amount must be positive", resp.Error)
	})

	t.Run("missing account", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("CreateTransaction", mock.Anything, user.ID, mock.Anything).
			Return(nil, fmt.Errorf("finance.CreateTransaction: %w", finance.ErrNotFound)).Once()
		router := newRouter(New(newNoopLogger(), svc), user)

		body := fmt.Sprintf(`{"accountId":%q,"kind":"income","amount":"10"}`, accountID)
		rec, _ := serve(t, router, http.MethodPost, "/api/transactions", body)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
