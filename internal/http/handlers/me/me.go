// Package me отдаёт текущего пользователя и использование лимитов его плана.
package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/entitlement"
)

type UsageService interface {
	Usage(ctx context.Context, user *models.User) (*models.Usage, error)
}

type Handler struct {
	log   *slog.Logger
	usage UsageService
}

func New(log *slog.Logger, usage UsageService) *Handler {
	return &Handler{log: log, usage: usage}
}

// Get godoc
// @Summary Текущий пользователь
// @Tags Me
// @Produce json
// @Success 200 {object} response.Response{data=models.User}
// @Failure 401 {object} response.ErrorResponse
// @Router /api/me [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(user))
}

// Usage godoc
// @Summary Использование лимитов плана
// @Description Счета и операции текущего месяца (по часовому поясу пользователя) против лимитов плана. Лимит -1 означает «без ограничений».
// @Tags Me
// @Produce json
// @Success 200 {object} response.Response{data=models.Usage}
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse "Лимиты плана не настроены"
// @Router /api/me/usage [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.me.usage"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.Fail(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	usage, err := h.usage.Usage(r.Context(), user)
	if errors.Is(err, entitlement.ErrUnknownPlan) {
		log.Error("plan limits are not configured", slog.String("plan", string(user.PlanType)))
		response.Fail(w, r, http.StatusForbidden, "plan configuration error, contact support")
		return
	}
	if err != nil {
		log.Error("failed to compute usage", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(usage))
}
