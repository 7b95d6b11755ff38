// Package users реализует управление пользователями в админке.
package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
)

type Service interface {
	ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int64, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, adminID, id uuid.UUID, p models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, adminID, id uuid.UUID) error
}

// UpdateRequest — изменения пользователя; отсутствующие поля не меняются.
type UpdateRequest struct {
	Name               *string                    `json:"name,omitempty" validate:"omitempty,max=100"`
	SubscriptionStatus *models.SubscriptionStatus `json:"subscriptionStatus,omitempty" validate:"omitempty,oneof=trialing active past_due canceled trial_expired"`
	PlanType           *models.PlanType           `json:"planType,omitempty" validate:"omitempty,oneof=basic premium enterprise"`
	TrialEndsAt        *time.Time                 `json:"trialEndsAt,omitempty"`
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
// @Summary Пользователи
// @Tags Admin
// @Produce json
// @Param status query string false "Статус подписки"
// @Param plan query string false "План"
// @Param search query string false "Поиск по email и имени"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=response.List}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/admin/users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.list")
	q := r.URL.Query()

	f := models.UserFilter{
		Status:   models.SubscriptionStatus(q.Get("status")),
		PlanType: models.PlanType(q.Get("plan")),
		Search:   q.Get("search"),
		Page:     request.Page(r),
	}
	items, total, err := h.service.ListUsers(r.Context(), f)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(response.List{
		Items:  items,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}))
}

// Get godoc
// @Summary Пользователь
// @Tags Admin
// @Produce json
// @Param id path string true "ID пользователя"
// @Success 200 {object} response.Response{data=models.User}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/users/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.get")

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(u))
}

// Update godoc
// @Summary Изменение пользователя
// @Description Статус подписки, план, конец пробного или оплаченного периода, имя.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "ID пользователя"
// @Param request body UpdateRequest true "Изменения"
// @Success 200 {object} response.Response{data=models.User}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/users/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.update")
	a, _ := middlewarectx.AdminFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req UpdateRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	u, err := h.service.UpdateUser(r.Context(), a.ID, id, models.UserPatch{
		Name:               req.Name,
		SubscriptionStatus: req.SubscriptionStatus,
		PlanType:           req.PlanType,
		TrialEndsAt:        req.TrialEndsAt,
	})
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(u))
}

// Delete godoc
// @Summary Удаление пользователя
// @Description Удаляет пользователя вместе со счетами, операциями и платежами.
// @Tags Admin
// @Produce json
// @Param id path string true "ID пользователя"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/users/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.admin.users.delete")
	a, _ := middlewarectx.AdminFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeleteUser(r.Context(), a.ID, id); err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, admin.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, admin.ErrInvalid):
		response.Fail(w, r, http.StatusBadRequest, response.Detail(err, admin.ErrInvalid))
	default:
		log.Error("user operation failed", sl.Err(err))
		response.Internal(w, r)
	}
}
