package middlewarectx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/metrics"
	"github.com/magabrotheeeer/finance-saas/internal/services/entitlement"
)

// PlanLimitMiddleware отклоняет создание ресурса сверх лимита плана пользователя.
// Отказ отвечает 403 с текущим использованием и лимитом. Ставится после AuthMiddleware.
func PlanLimitMiddleware(checker EntitlementChecker, resource entitlement.Resource, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.PlanLimit"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("resource", string(resource)),
			)

			user, ok := UserFrom(r.Context())
			if !ok {
				response.Fail(w, r, http.StatusUnauthorized, "authentication required")
				return
			}

			decision, err := checker.Check(r.Context(), user, resource)
			if errors.Is(err, entitlement.ErrUnknownPlan) {
				log.Error("plan limits are not configured",
					sl.UserID(user.ID),
					slog.String("plan", string(user.PlanType)),
				)
				response.Send(w, r, http.StatusForbidden, response.Response{
					Status:          response.StatusError,
					Error:           "plan configuration error, contact support",
					UpgradeRequired: true,
				})
				return
			}
			if err != nil {
				log.Error("failed to check plan limit", sl.Err(err))
				response.Internal(w, r)
				return
			}

			if !decision.Allowed {
				metrics.RecordEntitlementDenial(string(user.PlanType), string(resource))
				log.Info("plan limit reached",
					sl.UserID(user.ID),
					slog.Int64("current", decision.Current),
					slog.Int("limit", decision.Limit),
				)
				response.Send(w, r, http.StatusForbidden, response.Response{
					Status:          response.StatusError,
					Error:           "plan limit reached",
					Limit:           &decision.Limit,
					Current:         &decision.Current,
					UpgradeRequired: true,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
