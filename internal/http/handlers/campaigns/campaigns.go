// Package campaigns реализует проверку промокода пользователем и управление кампаниями в админке.
package campaigns

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
)

type Service interface {
	Validate(ctx context.Context, code string, planType models.PlanType) (*campaign.Quote, error)
	List(ctx context.Context) ([]*models.Campaign, error)
	Create(ctx context.Context, adminID uuid.UUID, in campaign.Input) (*models.Campaign, error)
	Update(ctx context.Context, adminID, id uuid.UUID, in campaign.Input) (*models.Campaign, error)
	Delete(ctx context.Context, adminID, id uuid.UUID) error
}

// ValidateRequest — промокод и план, к которому его применяют.
type ValidateRequest struct {
	Code     string          `json:"code" validate:"required,max=50"`
	PlanType models.PlanType `json:"planType" validate:"required,oneof=basic premium enterprise"`
}

// CampaignRequest — кампания в том виде, в каком её присылает админка.
// Если isActive не передан, кампания создаётся включённой.
type CampaignRequest struct {
	Code            string              `json:"code" validate:"required,max=50"`
	Name            string              `json:"name" validate:"required,max=120"`
	Description     string              `json:"description,omitempty" validate:"max=1000"`
	DiscountType    models.DiscountType `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue   decimal.Decimal     `json:"discountValue" swaggertype:"string" example:"20"`
	ValidFrom       time.Time           `json:"validFrom"`
	ValidUntil      time.Time           `json:"validUntil"`
	UsageLimit      *int                `json:"usageLimit,omitempty" validate:"omitempty,min=0"`
	ApplicablePlans []models.PlanType   `json:"applicablePlans,omitempty" validate:"dive,oneof=basic premium enterprise"`
	IsActive        *bool               `json:"isActive,omitempty"`
}

func (req CampaignRequest) input() campaign.Input {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return campaign.Input{
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		UsageLimit:      req.UsageLimit,
		ApplicablePlans: req.ApplicablePlans,
		IsActive:        active,
	}
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

// Validate godoc
// @Summary Проверка промокода
// @Description Возвращает цену плана со скидкой. Использование кампании не засчитывается.
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body ValidateRequest true "Промокод"
// @Success 200 {object} response.Response{data=campaign.Quote}
// @Failure 400 {object} response.ErrorResponse "Кампания неприменима"
// @Failure 404 {object} response.ErrorResponse
// @Router /api/campaigns/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.campaigns.validate")

	var req ValidateRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	quote, err := h.service.Validate(r.Context(), req.Code, req.PlanType)
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, campaign.ErrNotFound.Error())
	case errors.Is(err, campaign.ErrLimitReached):
		response.Fail(w, r, http.StatusBadRequest, campaign.ErrLimitReached.Error())
	case errors.Is(err, campaign.ErrInactive):
		response.Fail(w, r, http.StatusBadRequest, campaign.ErrInactive.Error())
	case errors.Is(err, campaign.ErrOutsideWindow):
		response.Fail(w, r, http.StatusBadRequest, campaign.ErrOutsideWindow.Error())
	case errors.Is(err, campaign.ErrNotApplicable):
		response.Fail(w, r, http.StatusBadRequest, campaign.ErrNotApplicable.Error())
	case errors.Is(err, campaign.ErrUnknownPlan):
		response.Fail(w, r, http.StatusBadRequest, campaign.ErrUnknownPlan.Error())
	case err != nil:
		log.Error("failed to validate campaign", sl.Err(err))
		response.Internal(w, r)
	default:
		response.Send(w, r, http.StatusOK, response.OK(quote))
	}
}

// List godoc
// @Summary Кампании
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Campaign}
// @Router /api/admin/campaigns [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.campaigns.list")

	list, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list campaigns", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(list))
}

// Create godoc
// @Summary Создание кампании
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body CampaignRequest true "Кампания"
// @Success 201 {object} response.Response{data=models.Campaign}
// @Failure 400 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Код уже занят"
// @Router /api/admin/campaigns [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.campaigns.create")
	admin, _ := middlewarectx.AdminFrom(r.Context())

	var req CampaignRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	c, err := h.service.Create(r.Context(), admin.ID, req.input())
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusCreated, response.OK(c))
}

// Update godoc
// @Summary Изменение кампании
// @Description Код кампании не меняется.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "ID кампании"
// @Param request body CampaignRequest true "Кампания"
// @Success 200 {object} response.Response{data=models.Campaign}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/campaigns/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.campaigns.update")
	admin, _ := middlewarectx.AdminFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req CampaignRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	c, err := h.service.Update(r.Context(), admin.ID, id, req.input())
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(c))
}

// Delete godoc
// @Summary Удаление кампании
// @Tags Admin
// @Produce json
// @Param id path string true "ID кампании"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /api/admin/campaigns/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.campaigns.delete")
	admin, _ := middlewarectx.AdminFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Delete(r.Context(), admin.ID, id); err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, campaign.ErrNotFound.Error())
	case errors.Is(err, campaign.ErrAlreadyExists):
		response.Fail(w, r, http.StatusConflict, campaign.ErrAlreadyExists.Error())
	case errors.Is(err, campaign.ErrInvalid):
		response.Fail(w, r, http.StatusBadRequest, response.Detail(err, campaign.ErrInvalid))
	default:
		log.Error("campaign operation failed", sl.Err(err))
		response.Internal(w, r)
	}
}
