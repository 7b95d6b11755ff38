// Package plans реализует управление тарифными планами в админке.
package plans

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
)

type Service interface {
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	UpdatePlan(ctx context.Context, adminID uuid.UUID, planType models.PlanType, u models.PlanUpdate) (*models.Plan, error)
}

// UpdateRequest — новая цена и лимиты плана. -1 снимает лимит.
type UpdateRequest struct {
	Name            *string          `json:"name,omitempty" validate:"omitempty,max=100"`
	Price           *decimal.Decimal `json:"price,omitempty" swaggertype:"string" example:"5000"`
	MaxAccounts     *int             `json:"maxAccounts,omitempty" validate:"omitempty,min=-1"`
	MaxTransactions *int             `json:"maxTransactions,omitempty" validate:"omitempty,min=-1"`
	IsActive        *bool            `json:"isActive,omitempty"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: request.NewValidator()}
}

// List godoc
// @Summary Тарифные планы
// @Description Все планы, включая выключенные.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Plan}
// @Router /api/admin/plans [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.plans.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(plans))
}

// Update godoc
// @Summary Изменение плана
// @Description Цена и лимиты меняются вместе с настройками лимитов; кеш лимитов сбрасывается.
// @Tags Admin
// @Accept json
// @Produce json
// @Param type path string true "Тип плана" Enums(basic, premium, enterprise)
// @Param request body UpdateRequest true "Изменения"
// @Success 200 {object} response.Response{data=models.Plan}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/plans/{type} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.plans.update"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	a, _ := middlewarectx.AdminFrom(r.Context())

	planType := models.PlanType(chi.URLParam(r, "type"))
	var req UpdateRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	p, err := h.service.UpdatePlan(r.Context(), a.ID, planType, models.PlanUpdate{
		Name:            req.Name,
		Price:           req.Price,
		MaxAccounts:     req.MaxAccounts,
		MaxTransactions: req.MaxTransactions,
		IsActive:        req.IsActive,
	})
	switch {
	case errors.Is(err, admin.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, "plan not found")
	case errors.Is(err, admin.ErrInvalid):
		response.Fail(w, r, http.StatusBadRequest, response.Detail(err, admin.ErrInvalid))
	case err != nil:
		log.Error("failed to update plan", sl.Err(err))
		response.Internal(w, r)
	default:
		log.Info("plan updated", slog.String("plan", string(planType)))
		response.Send(w, r, http.StatusOK, response.OK(p))
	}
}
