// Package audit пишет журнал действий пользователей, администраторов и системы.
package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// Repository сохраняет и читает записи журнала.
type Repository interface {
	InsertAuditLog(ctx context.Context, l *models.AuditLog) error
	ListAuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error)
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequest кладёт в контекст адрес клиента и User-Agent запроса.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: r.RemoteAddr, userAgent: r.UserAgent()})
}

// Middleware добавляет данные запроса в контекст для записей аудита.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequest(r.Context(), r)))
	})
}

// Service — журнал аудита. Ошибки записи только логируются.
type Service struct {
	repo Repository
	log  *slog.Logger
}

func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Log сохраняет запись. Сбой записи не прерывает бизнес-операцию.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) {
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		if entry.IP == "" {
			entry.IP = info.ip
		}
		if entry.UserAgent == "" {
			entry.UserAgent = info.userAgent
		}
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}
	// Запись не должна теряться, если клиент уже отключился.
	if err := s.repo.InsertAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error("failed to write audit log",
			slog.String("action", entry.Action),
			slog.String("resource", entry.Resource),
			sl.Err(err),
		)
	}
}

// List возвращает страницу журнала.
func (s *Service) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error) {
	return s.repo.ListAuditLogs(ctx, f)
}

// Admin — запись о действии администратора.
func Admin(adminID uuid.UUID, action, resource, resourceID string) *models.AuditLog {
	return &models.AuditLog{
		ActorType:  models.ActorAdmin,
		ActorID:    &adminID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Severity:   models.SeverityInfo,
	}
}

// User — запись о действии пользователя.
func User(userID uuid.UUID, action, resource, resourceID string) *models.AuditLog {
	return &models.AuditLog{
		ActorType:  models.ActorUser,
		ActorID:    &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Severity:   models.SeverityInfo,
	}
}

// System — запись о действии системы (webhook, фоновое задание).
func System(action, resource, resourceID string) *models.AuditLog {
	return &models.AuditLog{
		ActorType:  models.ActorSystem,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Severity:   models.SeverityInfo,
	}
}
