package users

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
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.User), args.Get(1).(int64), args.Error(2)
}

func (m *ServiceMock) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *ServiceMock) UpdateUser(ctx context.Context, adminID, id uuid.UUID, p models.UserPatch) (*models.User, error) {
	args := m.Called(ctx, adminID, id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *ServiceMock) DeleteUser(ctx context.Context, adminID, id uuid.UUID) error {
	args := m.Called(ctx, adminID, id)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRouter(h *Handler, a *models.AdminUser) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middlewarectx.WithAdmin(req.Context(), a)))
		})
	})
	r.Get("/api/admin/users", h.List)
	r.Get("/api/admin/users/{id}", h.Get)
	r.Put("/api/admin/users/{id}", h.Update)
	r.Delete("/api/admin/users/{id}", h.Delete)
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
	a := &models.AdminUser{ID: uuid.New()}
	svc := new(ServiceMock)
	svc.On("ListUsers", mock.Anything, models.UserFilter{
		Status:   models.StatusTrialing,
		PlanType: models.PlanBasic,
		Search:   "ana",
		Page:     models.Page{Limit: 10, Offset: 10},
	}).Return([]*models.User{{ID: uuid.New()}}, int64(11), nil).Once()
	router := newRouter(New(newNoopLogger(), svc), a)

	rec, _ := serve(t, router, http.MethodGet, "/api/admin/users?status=trialing&plan=basic&search=ana&limit=10&offset=10", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Update(t *testing.T) {
	a := &models.AdminUser{ID: uuid.New(), Role: models.RoleSuperAdmin}
	id := uuid.New()

	tests := []struct {
		name       string
		body       string
		setupMocks func(m *ServiceMock)
		wantStatus int
	}{
		{
			name: "extend trial and upgrade",
			body: `{"planType":"premium","trialEndsAt":"2025-05-01T00:00:00Z"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("UpdateUser", mock.Anything, a.ID, id, mock.MatchedBy(func(p models.UserPatch) bool {
					return p.PlanType != nil && *p.PlanType == models.PlanPremium &&
						p.TrialEndsAt != nil && p.TrialEndsAt.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) &&
						p.SubscriptionStatus == nil && p.Name == nil
				})).Return(&models.User{ID: id, PlanType: models.PlanPremium}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown status",
			body:       `{"subscriptionStatus":"frozen"}`,
			setupMocks: func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing user",
			body: `{"subscriptionStatus":"active"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("UpdateUser", mock.Anything, a.ID, id, mock.Anything).
					Return(nil, fmt.Errorf("admin.UpdateUser: %w", admin.ErrNotFound)).Once()
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			router := newRouter(New(newNoopLogger(), svc), a)

			rec, _ := serve(t, router, http.MethodPut, "/api/admin/users/"+id.String(), tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Delete(t *testing.T) {
	a := &models.AdminUser{ID: uuid.New(), Role: models.RoleSuperAdmin}
	id := uuid.New()

	svc := new(ServiceMock)
	svc.On("DeleteUser", mock.Anything, a.ID, id).Return(nil).Once()
	router := newRouter(New(newNoopLogger(), svc), a)

	rec, resp := serve(t, router, http.MethodDelete, "/api/admin/users/"+id.String(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, response.StatusOK, resp.Status)
	svc.AssertExpectations(t)
}
