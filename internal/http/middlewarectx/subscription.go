package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/magabrotheeeer/finance-saas/internal/http/response"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
)

// BillingPath — страница, на которую отправляется пользователь без оплаченного доступа.
const BillingPath = "/billing"

// SubscriptionStatusMiddleware закрывает финансовые разделы для пользователей
// с истёкшим пробным периодом, просроченной или отменённой подпиской.
// Ставится после AuthMiddleware.
func SubscriptionStatusMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFrom(r.Context())
			if !ok {
				response.Fail(w, r, http.StatusUnauthorized, "authentication required")
				return
			}

			if user.SubscriptionStatus.Restricted() {
				log.Info("subscription inactive, access denied",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.UserID(user.ID),
					slog.String("status", string(user.SubscriptionStatus)),
				)
				response.Send(w, r, http.StatusForbidden, response.Response{
					Status:          response.StatusError,
					Error:           "subscription inactive, payment required",
					UpgradeRequired: true,
					RedirectTo:      BillingPath,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
