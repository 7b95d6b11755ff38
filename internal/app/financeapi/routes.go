// Package financeapi собирает HTTP API: пользовательские маршруты, платежи, админку и служебные эндпоинты.
package financeapi

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	// Регистрация swagger-описания.
	_ "github.com/magabrotheeeer/finance-saas/docs"
	"github.com/magabrotheeeer/finance-saas/internal/config"
	adminpayments "github.com/magabrotheeeer/finance-saas/internal/http/handlers/admin/payments"
	adminplans "github.com/magabrotheeeer/finance-saas/internal/http/handlers/admin/plans"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/admin/reports"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/admin/users"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/auth/adminauth"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/auth/userauth"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/campaigns"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/finance/accounts"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/finance/transactions"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/health"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/me"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/payments"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/paymentwebhook"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/plans"
	"github.com/magabrotheeeer/finance-saas/internal/http/middlewarectx"
	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/metrics"
	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
	"github.com/magabrotheeeer/finance-saas/internal/services/audit"
	"github.com/magabrotheeeer/finance-saas/internal/services/auth"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/services/entitlement"
	"github.com/magabrotheeeer/finance-saas/internal/services/finance"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
)

// Services — зависимости маршрутов.
type Services struct {
	Sessions    *session.Manager
	Auth        *auth.Service
	Entitlement *entitlement.Service
	Finance     *finance.Service
	Admin       *admin.Service
	Campaigns   *campaign.Service
	Payments    *payment.Service
	Plans       plans.Lister
	Health      map[string]health.Check
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, log *slog.Logger, cfg *config.Config, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.HTTPServer.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		metrics.Middleware,
		audit.Middleware,
	)

	requireUser := middlewarectx.AuthMiddleware(s.Sessions, s.Auth, log)
	requireAdmin := middlewarectx.AdminMiddleware(s.Sessions, s.Auth, log)
	managers := middlewarectx.RequireRole(log, models.RoleSuperAdmin, models.RoleAdmin)
	superAdmin := middlewarectx.RequireRole(log, models.RoleSuperAdmin)

	userAuth := userauth.New(log, s.Auth, s.Sessions)
	adminAuth := adminauth.New(log, s.Auth, s.Sessions)
	accountHandler := accounts.New(log, s.Finance)
	transactionHandler := transactions.New(log, s.Finance)
	paymentHandler := payments.New(log, s.Payments)
	campaignHandler := campaigns.New(log, s.Campaigns)
	userHandler := users.New(log, s.Admin)
	planHandler := adminplans.New(log, s.Admin)
	adminPaymentHandler := adminpayments.New(log, s.Payments)
	reportHandler := reports.New(log, s.Admin)
	meHandler := me.New(log, s.Entitlement)

	r.Route("/api", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(cfg.APIRateLimit.RPS, cfg.APIRateLimit.Burst, log))

		// Открытые конечные точки
		r.Post("/auth/register", userAuth.Register)
		r.Post("/auth/login", userAuth.Login)
		r.Post("/auth/logout", userAuth.Logout)
		r.Post("/auth/token", userAuth.Token)
		r.Get("/plans", plans.New(log, s.Plans).List)
		r.Post("/campaigns/validate", campaignHandler.Validate)

		// Webhook Stripe (без аутентификации, проверяется подпись)
		r.Post("/payments/stripe/webhook", paymentwebhook.New(log, s.Payments).Stripe)

		// Пользователь без проверки статуса подписки: профиль и оплата доступны и после окончания пробного периода
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/me", meHandler.Get)
			r.Get("/me/usage", meHandler.Usage)

			r.Get("/payments/methods", paymentHandler.Methods)
			r.Post("/payments/initiate", paymentHandler.Initiate)
			r.Post("/payments/confirm", paymentHandler.Confirm)
			r.Get("/payments", paymentHandler.List)
			r.Get("/payments/{id}", paymentHandler.Get)
			r.Post("/payments/{id}/cancel", paymentHandler.Cancel)
		})

		// Финансовые данные: только с действующей подпиской
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Use(middlewarectx.SubscriptionStatusMiddleware(log))

			r.Get("/accounts", accountHandler.List)
			r.With(middlewarectx.PlanLimitMiddleware(s.Entitlement, entitlement.ResourceAccount, log)).
				Post("/accounts", accountHandler.Create)
			r.Put("/accounts/{id}", accountHandler.Update)
			r.Delete("/accounts/{id}", accountHandler.Delete)

			r.Get("/transactions", transactionHandler.List)
			r.With(middlewarectx.PlanLimitMiddleware(s.Entitlement, entitlement.ResourceTransactionMonth, log)).
				Post("/transactions", transactionHandler.Create)
			r.Put("/transactions/{id}", transactionHandler.Update)
			r.Delete("/transactions/{id}", transactionHandler.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auth/login", adminAuth.Login)
			r.Post("/auth/logout", adminAuth.Logout)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/auth/me", adminAuth.Me)

				r.Get("/users", userHandler.List)
				r.Get("/users/{id}", userHandler.Get)
				r.With(managers).Put("/users/{id}", userHandler.Update)
				r.With(superAdmin).Delete("/users/{id}", userHandler.Delete)

				r.Get("/plans", planHandler.List)
				r.With(superAdmin).Put("/plans/{type}", planHandler.Update)

				r.Get("/payments", adminPaymentHandler.List)
				r.With(managers).Post("/payments/{id}/approve", adminPaymentHandler.Approve)
				r.With(managers).Post("/payments/{id}/reject", adminPaymentHandler.Reject)

				r.Get("/campaigns", campaignHandler.List)
				r.With(managers).Post("/campaigns", campaignHandler.Create)
				r.With(managers).Put("/campaigns/{id}", campaignHandler.Update)
				r.With(managers).Delete("/campaigns/{id}", campaignHandler.Delete)

				r.Get("/analytics", reportHandler.Analytics)
				r.Get("/audit-logs", reportHandler.AuditLogs)
			})
		})
	})

	r.Handle("/health", health.New(log, s.Health))
	r.Handle("/metrics", metrics.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
