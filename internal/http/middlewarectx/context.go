// Package middlewarectx содержит HTTP middleware авторизации и ограничений,
// а также доступ к данным, которые они кладут в контекст запроса.
package middlewarectx

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/entitlement"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// User — ключ текущего пользователя (*models.User).
	User Key = "user"
	// Admin — ключ текущего администратора (*models.AdminUser).
	Admin Key = "admin"
)

// SessionLoader читает сессию запроса.
type SessionLoader interface {
	Load(r *http.Request) (*session.Data, string, error)
}

// Authenticator проверяет токены и загружает учётные записи.
type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
	CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CurrentAdmin(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
}

// EntitlementChecker решает, укладывается ли создание ресурса в лимиты плана.
type EntitlementChecker interface {
	Check(ctx context.Context, user *models.User, resource entitlement.Resource) (entitlement.Decision, error)
}

// WithUser кладёт пользователя в контекст.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, User, u)
}

// UserFrom возвращает пользователя, положенного AuthMiddleware.
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(User).(*models.User)
	return u, ok && u != nil
}

// WithAdmin кладёт администратора в контекст.
func WithAdmin(ctx context.Context, a *models.AdminUser) context.Context {
	return context.WithValue(ctx, Admin, a)
}

// AdminFrom возвращает администратора, положенного AdminMiddleware.
func AdminFrom(ctx context.Context) (*models.AdminUser, bool) {
	a, ok := ctx.Value(Admin).(*models.AdminUser)
	return a, ok && a != nil
}
