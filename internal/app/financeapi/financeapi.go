package financeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/finance-saas/internal/cache"
	"github.com/magabrotheeeer/finance-saas/internal/config"
	"github.com/magabrotheeeer/finance-saas/internal/http/handlers/health"
	"github.com/magabrotheeeer/finance-saas/internal/lib/jwt"
	"github.com/magabrotheeeer/finance-saas/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/finance-saas/internal/lib/ratelimit"
	"github.com/magabrotheeeer/finance-saas/internal/lib/session"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/lib/stripepay"
	"github.com/magabrotheeeer/finance-saas/internal/migrations"
	"github.com/magabrotheeeer/finance-saas/internal/notify"
	"github.com/magabrotheeeer/finance-saas/internal/services/admin"
	"github.com/magabrotheeeer/finance-saas/internal/services/audit"
	"github.com/magabrotheeeer/finance-saas/internal/services/auth"
	"github.com/magabrotheeeer/finance-saas/internal/services/campaign"
	"github.com/magabrotheeeer/finance-saas/internal/services/entitlement"
	"github.com/magabrotheeeer/finance-saas/internal/services/finance"
	"github.com/magabrotheeeer/finance-saas/internal/services/payment"
	"github.com/magabrotheeeer/finance-saas/internal/storage/repository"
)

// App — HTTP API приложения.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилища, применяет миграции, собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "financeapi.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: cache not initialized: %w", op, err)
	}

	app := &App{logger: logger, db: db, cache: cacheRedis}

	var notifier payment.Notifier = notify.NewLog(logger)
	if cfg.RabbitMQ.URL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: failed to connect RabbitMQ: %w", op, err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: failed to setup RabbitMQ channel: %w", op, err)
		}
		notifier = notify.NewQueue(app.ch, rabbitmq.RoutingKeyPayment)
	} else {
		logger.Warn("rabbitmq url is empty, payment notifications go to the log")
	}

	var gateway payment.Gateway
	if cfg.Stripe.APIKey != "" {
		gateway = stripepay.New(stripepay.Config{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		})
	} else {
		logger.Warn("stripe api key is empty, card payments are disabled")
	}

	loc, err := time.LoadLocation(cfg.Lifecycle.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", slog.String("timezone", cfg.Lifecycle.Timezone), sl.Err(err))
		loc = time.UTC
	}

	auditService := audit.New(db, logger)
	limiter := ratelimit.NewFixedWindow(cacheRedis.Db, "login", cfg.LoginRateLimit.MaxAttempts, cfg.LoginRateLimit.Window)
	authService := auth.New(db, db, limiter, jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.TokenTTL), auditService, cfg.Lifecycle.TrialDays, logger)
	entitlementService := entitlement.New(db, db, cacheRedis, cfg.PlansCacheTTL, logger)
	campaignService := campaign.New(db, auditService, logger)

	if err := authService.BootstrapAdmin(ctx, cfg.BootstrapAdmin.Email, cfg.BootstrapAdmin.Password, cfg.BootstrapAdmin.Name); err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	checks := map[string]health.Check{
		"postgres": db.DB.PingContext,
		"redis": func(ctx context.Context) error {
			return cacheRedis.Db.Ping(ctx).Err()
		},
	}
	if app.conn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, Services{
		Sessions: session.NewManager(db, session.Config{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
		}),
		Auth:        authService,
		Entitlement: entitlementService,
		Finance:     finance.New(db, logger),
		Admin:       admin.New(db, entitlementService, auditService, loc, logger),
		Campaigns:   campaignService,
		Payments:    payment.New(db, campaignService, gateway, notifier, auditService, cfg.Lifecycle.PaidPeriodDays, logger),
		Plans:       db,
		Health:      checks,
	})

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
