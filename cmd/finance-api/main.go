// Package main Finance SaaS API
//
// @title           Finance SaaS API
// @version         1.0
// @description     API персональных финансов: счета и операции, тарифные планы, оплата подписки и админка.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Browser clients use the session cookie instead.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/finance-saas/internal/app/financeapi"
	"github.com/magabrotheeeer/finance-saas/internal/config"
	"github.com/magabrotheeeer/finance-saas/internal/lib/logger"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting finance-api", slog.String("env", cfg.Env))
	log.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := financeapi.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("finance-api stopped gracefully")
}
