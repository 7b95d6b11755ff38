package middlewarectx

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/models"
)

// RequireRole пропускает только администраторов с одной из ролей roles.
// Ставится после AdminMiddleware.
func RequireRole(log *slog.Logger, roles ...models.AdminRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := AdminFrom(r.Context())
			if !ok {
				response.Fail(w, r, http.StatusUnauthorized, "admin authentication required")
				return
			}
			if !slices.Contains(roles, admin.Role) {
				log.Warn("admin role not allowed",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("admin_id", admin.ID.String()),
					slog.String("role", string(admin.Role)),
					slog.String("path", r.URL.Path),
				)
				response.Fail(w, r, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
