// Package plans отдаёт пользователю список тарифных планов.
package plans

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

type Lister interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error)
}

type Handler struct {
	log    *slog.Logger
	lister Lister
}

func New(log *slog.Logger, lister Lister) *Handler {
	return &Handler{log: log, lister: lister}
}

// List godoc
// @Summary Тарифные планы
// @Description Только включённые планы, с ценой и лимитами.
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Plan}
// @Router /api/plans [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.plans.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	plans, err := h.lister.ListPlans(r.Context(), true)
	if err != nil {
		log.Error("failed to list plans", sl.Err(err))
		response.Internal(w, r)
		return
	}
	response.Send(w, r, http.StatusOK, response.OK(plans))
}
