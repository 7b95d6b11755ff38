// Package transactions реализует CRUD операций по счетам текущего пользователя.
//
// Выборка поддерживает фильтры from/to (RFC3339 или 2006-01-02), accountId и постраничный вывод.
package transactions

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
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/finance"
)

type Service interface {
	CreateTransaction(ctx context.Context, userID uuid.UUID, in finance.TransactionInput) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, id uuid.UUID, in finance.TransactionInput) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error
	ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, int64, error)
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
// @Summary Операции пользователя
// @Tags Transactions
// @Produce json
// @Param from query string false "Начало периода"
// @Param to query string false "Конец периода"
// @Param accountId query string false "ID счёта"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=response.List}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/transactions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.transactions.list")
	user, _ := middlewarectx.UserFrom(r.Context())

	filter := models.TransactionFilter{UserID: user.ID, Page: request.Page(r)}
	var err error
	if filter.From, err = request.Time(r, "from"); err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if filter.To, err = request.Time(r, "to"); err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if raw := r.URL.Query().Get("accountId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(w, r, http.StatusBadRequest, "invalid accountId")
			return
		}
		filter.AccountID = &id
	}

	items, total, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(response.List{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}))
}

// Create godoc
// @Summary Создание операции
// @Description Баланс счёта меняется в той же транзакции БД. Проверяется месячный лимит операций плана.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param request body finance.TransactionInput true "Операция"
// @Success 201 {object} response.Response{data=models.Transaction}
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.Response "Лимит плана"
// @Failure 404 {object} response.ErrorResponse "Счёт не найден"
// @Router /api/transactions [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.transactions.create")
	user, _ := middlewarectx.UserFrom(r.Context())

	var in finance.TransactionInput
	if !request.Bind(w, r, h.validate, &in, log) {
		return
	}

	t, err := h.service.CreateTransaction(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusCreated, response.OK(t))
}

// Update godoc
// @Summary Изменение операции
// @Tags Transactions
// @Accept json
// @Produce json
// @Param id path string true "ID операции"
// @Param request body finance.TransactionInput true "Операция"
// @Success 200 {object} response.Response{data=models.Transaction}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/transactions/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.transactions.update")
	user, _ := middlewarectx.UserFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var in finance.TransactionInput
	if !request.Bind(w, r, h.validate, &in, log) {
		return
	}

	t, err := h.service.UpdateTransaction(r.Context(), user.ID, id, in)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(t))
}

// Delete godoc
// @Summary Удаление операции
// @Tags Transactions
// @Produce json
// @Param id path string true "ID операции"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /api/transactions/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.transactions.delete")
	user, _ := middlewarectx.UserFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), user.ID, id); err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, finance.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, "transaction or account not found")
	case errors.Is(err, finance.ErrInvalid):
		response.Fail(w, r, http.StatusBadRequest, response.Detail(err, finance.ErrInvalid))
	default:
		log.Error("transaction operation failed", sl.Err(err))
		response.Internal(w, r)
	}
}
