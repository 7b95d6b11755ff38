package adminauth

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

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/auth"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) AdminLogin(ctx context.Context, email, password, ip string) (*models.AdminUser, error) {
	args := m.Called(ctx, email, password, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminUser), args.Error(1)
}

type fakeSessions struct {
	data *session.Data
}

func (f *fakeSessions) Renew(_ http.ResponseWriter, _ *http.Request, mutate func(*session.Data)) error {
	if f.data == nil {
		f.data = &session.Data{}
	}
	mutate(f.data)
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandler_Login(t *testing.T) {
	admin := &models.AdminUser{ID: uuid.New(), Email: "ops@example.com", Name: "Ops", Role: models.RoleAdmin, IsActive: true}

	tests := []struct {
		name        string
		body        string
		setupMocks  func(m *ServiceMock)
		wantStatus  int
		wantSession bool
	}{
		{
			name: "signed in",
			body: `{"email":"ops@example.com","password":"s3cret-pass"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("AdminLogin", mock.Anything, "ops@example.com", "s3cret-pass", "203.0.113.7").Return(admin, nil).Once()
			},
			wantStatus:  http.StatusOK,
			wantSession: true,
		},
		{
			name: "wrong password",
			body: `{"email":"ops@example.com","password":"nope-nope"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("AdminLogin", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("auth.AdminLogin: %w", auth.ErrInvalidCredentials)).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing email",
			body:       `{"password":"s3cret-pass"}`,
			setupMocks: func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			sessions := &fakeSessions{}
			h := New(newNoopLogger(), svc, sessions)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/auth/login", bytes.NewBufferString(tt.body))
			req.RemoteAddr = "203.0.113.7:41000"
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantSession {
				require.NotNil(t, sessions.data)
				require.NotNil(t, sessions.data.AdminUserID)
				assert.Equal(t, admin.ID, *sessions.data.AdminUserID)
				assert.Equal(t, string(models.RoleAdmin), sessions.data.AdminUser.Role)
				assert.Nil(t, sessions.data.UserID)
			} else {
				assert.Nil(t, sessions.data)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_LogoutKeepsUserSession(t *testing.T) {
	userID := uuid.New()
	adminID := uuid.New()
	sessions := &fakeSessions{data: &session.Data{
		UserID:      &userID,
		AdminUserID: &adminID,
		AdminUser:   &session.AdminUser{ID: adminID},
	}}
	h := New(newNoopLogger(), new(ServiceMock), sessions)

	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/admin/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessions.data.AdminUserID)
	assert.Nil(t, sessions.data.AdminUser)
	require.NotNil(t, sessions.data.UserID)
	assert.Equal(t, userID, *sessions.data.UserID)
}

func TestHandler_Me(t *testing.T) {
	h := New(newNoopLogger(), new(ServiceMock), &fakeSessions{})

	t.Run("no admin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/admin/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "admin authentication required", decode(t, rec).Error)
	})

	t.Run("admin", func(t *testing.T) {
		admin := &models.AdminUser{ID: uuid.New(), Email: "ops@example.com", Role: models.RoleSupport}
		req := httptest.NewRequest(http.MethodGet, "/api/admin/auth/me", nil)
		req = req.WithContext(middlewarectx.WithAdmin(req.Context(), admin))
		rec := httptest.NewRecorder()
		h.Me(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, response.StatusOK, decode(t, rec).Status)
	})
}
