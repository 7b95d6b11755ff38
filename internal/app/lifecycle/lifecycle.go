// Package lifecycle запускает ежедневный проход по подпискам: разово или по расписанию cron.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/finance-saas/internal/config"
	"github.com/magabrotheeeer/finance-saas/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/finance-saas/internal/lib/sl"
	"github.com/magabrotheeeer/finance-saas/internal/notify"
	lifecycleservice "github.com/magabrotheeeer/finance-saas/internal/services/lifecycle"
	"github.com/magabrotheeeer/finance-saas/internal/storage/repository"
)

// App представляет приложение прохода по подпискам.
type App struct {
	service  *lifecycleservice.Service
	db       *repository.Storage
	conn     *amqp.Connection
	ch       *amqp.Channel
	schedule string
	loc      *time.Location
	logger   *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(ctx, db)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}

// New подключает хранилище и брокер. Без RabbitMQ уведомления пишутся в журнал.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Lifecycle.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid lifecycle timezone %q: %w", cfg.Lifecycle.Timezone, err)
	}
	if _, err := cron.ParseStandard(cfg.Lifecycle.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		db:       db,
		schedule: cfg.Lifecycle.Schedule,
		loc:      loc,
		logger:   logger,
	}

	var notifier lifecycleservice.Notifier = notify.NewLog(logger)
	if cfg.RabbitMQ.URL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		notifier = notify.NewQueue(app.ch, rabbitmq.RoutingKeyTrial)
	} else {
		logger.Warn("rabbitmq url is empty, trial notifications go to the log")
	}

	app.service = lifecycleservice.New(db, notifier, lifecycleservice.Config{
		NotifyDays: cfg.Lifecycle.NotifyDays,
		BillingURL: cfg.Lifecycle.BillingURL,
	}, logger)
	return app, nil
}

// RunOnce выполняет один проход.
func (a *App) RunOnce(ctx context.Context) (lifecycleservice.Result, error) {
	return a.service.Run(ctx)
}

// Schedule выполняет проход по расписанию до отмены ctx.
// Пересекающийся запуск пропускается: проход держит advisory-блокировку.
func (a *App) Schedule(ctx context.Context) error {
	c := cron.New(cron.WithLocation(a.loc))
	_, err := c.AddFunc(a.schedule, func() {
		res, err := a.service.Run(ctx)
		switch {
		case errors.Is(err, lifecycleservice.ErrAlreadyRunning):
			a.logger.Warn("lifecycle run skipped, another run holds the lock")
		case err != nil:
			a.logger.Error("lifecycle run finished with errors", sl.Err(err), slog.Int("failed", res.Failed))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule lifecycle run: %w", err)
	}

	c.Start()
	a.logger.Info("lifecycle scheduler started",
		slog.String("schedule", a.schedule),
		slog.String("timezone", a.loc.String()),
	)

	<-ctx.Done()
	a.logger.Info("shutting down lifecycle scheduler")
	<-c.Stop().Done()
	return nil
}

// Close освобождает соединения.
func (a *App) Close() {
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
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
