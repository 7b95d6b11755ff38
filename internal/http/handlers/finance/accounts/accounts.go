// Package accounts реализует CRUD счетов текущего пользователя.
package accounts

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
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
	CreateAccount(ctx context.Context, userID uuid.UUID, in finance.AccountInput) (*models.Account, error)
	UpdateAccount(ctx context.Context, userID, id uuid.UUID, in finance.AccountInput) (*models.Account, error)
	DeleteAccount(ctx context.Context, userID, id uuid.UUID) error
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
// @Summary Счета пользователя
// @Tags Accounts
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Account}
// @Router /api/accounts [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.accounts.list")
	user, _ := middlewarectx.UserFrom(r.Context())

	list, err := h.service.ListAccounts(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to list accounts", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(list))
}

// Create godoc
// @Summary Создание счёта
// @Description Проверяется лимит счетов плана; при превышении 403 с limit и current.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body finance.AccountInput true "Счёт"
// @Success 201 {object} response.Response{data=models.Account}
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.Response "Лимит плана"
// @Router /api/accounts [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.accounts.create")
	user, _ := middlewarectx.UserFrom(r.Context())

	var in finance.AccountInput
	if !request.Bind(w, r, h.validate, &in, log) {
		return
	}

	account, err := h.service.CreateAccount(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	log.Info("account created", slog.String("account_id", account.ID.String()))
	response.Send(w, r, http.StatusCreated, response.OK(account))
}

// Update godoc
// @Summary Изменение счёта
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "ID счёта"
// @Param request body finance.AccountInput true "Счёт"
// @Success 200 {object} response.Response{data=models.Account}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/accounts/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.accounts.update")
	user, _ := middlewarectx.UserFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var in finance.AccountInput
	if !request.Bind(w, r, h.validate, &in, log) {
		return
	}

	account, err := h.service.UpdateAccount(r.Context(), user.ID, id, in)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(account))
}

// Delete godoc
// @Summary Удаление счёта
// @Description Операции счёта удаляются вместе с ним.
// @Tags Accounts
// @Produce json
// @Param id path string true "ID счёта"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /api/accounts/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.accounts.delete")
	user, _ := middlewarectx.UserFrom(r.Context())

	id, err := request.UUIDParam(r, "id")
	if err != nil {
		response.Fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.DeleteAccount(r.Context(), user.ID, id); err != nil {
		writeError(w, r, log, err)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(nil))
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, finance.ErrNotFound):
		response.Fail(w, r, http.StatusNotFound, "account not found")
	case errors.Is(err, finance.ErrInvalid):
		response.Fail(w, r, http.StatusBadRequest, response.Detail(err, finance.ErrInvalid))
	default:
		log.Error("account operation failed", sl.Err(err))
		response.Internal(w, r)
	}
}
