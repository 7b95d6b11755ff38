// Package payments реализует проверку ручных оплат администратором.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
)

type Service interface {
	ListAdmin(ctx context.Context, status models.PaymentStatus, page models.Page) ([]*models.PaymentTransaction, int64, error)
	Approve(ctx context.Context, adminID, id uuid.UUID) (*models.PaymentTransaction, error)
	Reject(ctx context.Context, adminID, id uuid.UUID, reason string) (*models.PaymentTransaction, error)
}

// RejectRequest — причина отклонения, её увидит пользователь.
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: request.NewValidator()}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// List godoc
// @Summary Платежи пользователей
// @Tags Admin
// @Produce json
// @Param status query string false "Статус" Enums(pending, processing, completed, failed, cancelled)
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=response.List}
// @Router /api/admin/payments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.payments.list")

	status := models.PaymentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.PaymentPending, models.PaymentProcessing, models.PaymentCompleted,
		models.PaymentFailed, models.PaymentCancelled:
	default:
		response.Fail(w, r, http.StatusBadRequest, "invalid status")
		return
	}

	page := request.Page(r)
	items, total, err := h.service.ListAdmin(r.Context(), status, page)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(response.List{
		Items:  items,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}))
}

// Approve godoc
// @Summary Одобрение оплаты
// @Description Атомарно: платёж completed, подписка active на оплаченный период, использование кампании засчитано.
// @Tags Admin
// @Produce json
// @Param id path string true "ID платежа"
// @Success 200 {object} response.Response{data=models.PaymentTransaction}
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Платёж не ждёт проверки или лимит кампании исчерпан"
// @Router /api/admin/payments/{id}/approve [post]
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.payments.approve")
	admin, _ := middlewarectx.AdminFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.service.Approve(r.Context(), admin.ID, id)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(t))
}

// Reject godoc
// @Summary Отклонение оплаты
// @Description Причина обязательна. Подписка пользователя не меняется.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "ID платежа"
// @Param request body RejectRequest true "Причина"
// @Success 200 {object} response.Response{data=models.PaymentTransaction}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/admin/payments/{id}/reject [post]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.payments.reject")
	admin, _ := middlewarectx.AdminFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req RejectRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		response.Fail(w, r, http.StatusBadRequest, payment.ErrReasonRequired.Error())
		return
	}

	t, err := h.service.Reject(r.Context(), admin.ID, id, req.Reason)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(t))
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, payment.ErrNotFound.Error())
	case errors.Is(err, payment.ErrInvalidState):
		response.Fail(w, r, http.StatusConflict, payment.ErrInvalidState.Error())
	case errors.Is(err, campaign.ErrLimitReached):
		response.Fail(w, r, http.StatusConflict, "campaign "+campaign.ErrLimitReached.Error())
	case errors.Is(err, payment.ErrReasonRequired):
		response.Fail(w, r, http.StatusBadRequest, payment.ErrReasonRequired.Error())
	default:
		log.Error("payment review failed", sl.Err(err))
		response.Internal(w, r)
	}
}
