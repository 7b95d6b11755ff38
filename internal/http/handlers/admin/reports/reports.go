// Package reports отдаёт админке сводную аналитику и журнал аудита.
package reports

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
)

type Service interface {
	Analytics(ctx context.Context) (*models.Analytics, error)
	AuditLogs(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int64, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Analytics godoc
// @Summary Аналитика
// @Description Пользователи по статусам и планам, новые за 30 дней, выручка за месяц и всего, ожидающие проверки оплаты, активные кампании.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Response{data=models.Analytics}
// @Router /api/admin/analytics [get]
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.analytics"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	a, err := h.service.Analytics(r.Context())
	if err != nil {
		log.Error("failed to build analytics", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(a))
}

// AuditLogs godoc
// @Summary Журнал аудита
// @Tags Admin
// @Produce json
// @Param actorType query string false "Тип актора" Enums(user, admin, system)
// @Param action query string false "Действие, например payment.approve"
// @Param severity query string false "Важность" Enums(info, warning, critical)
// @Param from query string false "Начало периода"
// @Param to query string false "Конец периода"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=response.List}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/admin/audit-logs [get]
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.auditlogs"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	q := r.URL.Query()

	f := models.AuditFilter{
		ActorType: models.ActorType(q.Get("actorType")),
		Action:    q.Get("action"),
		Severity:  models.Severity(q.Get("severity")),
		Page:      request.Page(r),
	}
	var err error
	if f.From, err = request.Time(r, "from"); err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if f.To, err = request.Time(r, "to"); err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.service.AuditLogs(r.Context(), f)
	switch {
	case errors.Is(err, admin.ErrInvalid):
		response.Fail(w, r, http.StatusBadRequest, response.Detail(err, admin.ErrInvalid))
	case err != nil:
		log.Error("failed to list audit logs", sl.Err(err))
		response.Internal(w, r)
	default:
		response.Send(w, r, http.StatusOK, response.OK(response.List{
			Items:  items,
			Total:  total,
			Limit:  f.Limit,
			Offset: f.Offset,
		}))
	}
}
