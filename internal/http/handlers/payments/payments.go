// Package payments реализует оплату плана пользователем: выбор способа, подтверждение ручной оплаты,
// отмену и историю платежей.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/request"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/lib/stripepay"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
)

type Service interface {
	Methods(ctx context.Context) ([]*models.PaymentMethod, error)
	Initiate(ctx context.Context, userID uuid.UUID, req payment.InitiateRequest) (*models.PaymentTransaction, error)
	Confirm(ctx context.Context, userID uuid.UUID, req payment.ConfirmRequest) (*models.PaymentConfirmation, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) error
	Get(ctx context.Context, userID, id uuid.UUID) (*models.PaymentTransaction, error)
	ListUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]*models.PaymentTransaction, int64, error)
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

// Methods godoc
// @Summary Способы оплаты
// @Description Включённые способы оплаты с инструкциями для ручных.
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Response{data=[]models.PaymentMethod}
// @Router /api/payments/methods [get]
func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payments.methods")

	methods, err := h.service.Methods(r.Context())
	if err != nil {
		log.Error("failed to list payment methods", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(methods))
}

// Initiate godoc
// @Summary Начало оплаты
// @Description Создаёт платёж в статусе pending. Для Stripe в ответе есть checkoutUrl.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body payment.InitiateRequest true "План, способ оплаты, промокод"
// @Success 201 {object} response.Response{data=models.PaymentTransaction}
// @Failure 400 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse "Stripe не настроен"
// @Router /api/payments/initiate [post]
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payments.initiate")
	user, _ := middlewarectx.UserFrom(r.Context())

	var req payment.InitiateRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	t, err := h.service.Initiate(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	log.Info("payment initiated", slog.String("payment_id", t.ID.String()), sl.UserID(user.ID))
	response.Send(w, r, http.StatusCreated, response.OK(t))
}

// Confirm godoc
// @Summary Подтверждение ручной оплаты
// @Description Пользователь сообщает референс платежа; платёж переходит в processing и ждёт проверки.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body payment.ConfirmRequest true "Подтверждение"
// @Success 201 {object} response.Response{data=models.PaymentConfirmation}
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Платёж уже подтверждён"
// @Router /api/payments/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payments.confirm")
	user, _ := middlewarectx.UserFrom(r.Context())

	var req payment.ConfirmRequest
	if !request.Bind(w, r, h.validate, &req, log) {
		return
	}

	c, err := h.service.Confirm(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusCreated, response.OK(c))
}

// Cancel godoc
// @Summary Отмена платежа
// @Tags Payments
// @Produce json
// @Param id path string true "ID платежа"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /api/payments/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payments.cancel")
	user, _ := middlewarectx.UserFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.Cancel(r.Context(), user.ID, id); err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

// Get godoc
// @Summary Платёж пользователя
// @Tags Payments
// @Produce json
// @Param id path string true "ID платежа"
// @Success 200 {object} response.Response{data=models.PaymentTransaction}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/payments/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payments.get")
	user, _ := middlewarectx.UserFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.service.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(t))
}

// List godoc
// @Summary История платежей
// @Tags Payments
// @Produce json
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=response.List}
// @Router /api/payments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.payments.list")
	user, _ := middlewarectx.UserFrom(r.Context())

	page := request.Page(r)
	items, total, err := h.service.ListUser(r.Context(), user.ID, page)
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

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, payment.ErrNotFound.Error())
	case errors.Is(err, payment.ErrInvalidState):
		response.Fail(w, r, http.StatusConflict, payment.ErrInvalidState.Error())
	case errors.Is(err, payment.ErrUnknownPlan),
		errors.Is(err, payment.ErrUnknownMethod),
		errors.Is(err, payment.ErrNotManual),
		errors.Is(err, payment.ErrReferenceRequired):
		response.Fail(w, r, http.StatusBadRequest, clientMessage(err))
	case errors.Is(err, campaign.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, campaign.ErrNotFound.Error())
	case errors.Is(err, campaign.ErrLimitReached),
		errors.Is(err, campaign.ErrInactive),
		errors.Is(err, campaign.ErrOutsideWindow),
		errors.Is(err, campaign.ErrNotApplicable):
		response.Fail(w, r, http.StatusBadRequest, clientMessage(err))
	case errors.Is(err, stripepay.ErrNotConfigured):
		response.Fail(w, r, http.StatusServiceUnavailable, "card payments are temporarily unavailable")
	default:
		log.Error("payment operation failed", sl.Err(err))
		response.Internal(w, r)
	}
}

// clientMessage возвращает текст первой известной ошибки из цепочки.
func clientMessage(err error) string {
	for _, known := range []error{
		payment.ErrUnknownPlan,
		payment.ErrUnknownMethod,
		payment.ErrNotManual,
		payment.ErrReferenceRequired,
		campaign.ErrLimitReached,
		campaign.ErrInactive,
		campaign.ErrOutsideWindow,
		campaign.ErrNotApplicable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "invalid request"
}
