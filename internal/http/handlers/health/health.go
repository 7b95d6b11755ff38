// Package health отдаёт состояние сервиса и его зависимостей.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
)

const checkTimeout = 2 * time.Second

// Check проверяет одну зависимость.
type Check func(ctx context.Context) error

type Handler struct {
	log    *slog.Logger
	checks map[string]Check
}

// New создаёт обработчик; checks — проверки по именам зависимостей ("postgres", "redis", ...).
func New(log *slog.Logger, checks map[string]Check) *Handler {
	return &Handler{log: log, checks: checks}
}

// ServeHTTP godoc
// @Summary Проверка состояния
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Error("health check failed", slog.String("op", op), slog.String("dependency", name), sl.Err(err))
			status[name] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "up"
	}
	response.Send(w, r, code, response.OK(status))
}
