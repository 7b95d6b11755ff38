// Команда lifecycle выполняет проход по подпискам: истечение пробных периодов,
// напоминания об окончании и очистку просроченных сессий.
//
//	lifecycle run        один проход, код выхода 1 при ошибках
//	lifecycle schedule   проходы по расписанию lifecycle.schedule до SIGINT/SIGTERM
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/finance-saas/internal/app/lifecycle"
	"github.com/magabrotheeeer/finance-saas/internal/config"
	"github.com/magabrotheeeer/finance-saas/internal/lib/logger"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "lifecycle",
		Short:         "Subscription lifecycle job",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $CONFIG_PATH)")
	rootCmd.AddCommand(newRunCmd(), newScheduleCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.MustLoad(), nil
	}
	return config.Load(cfgFile)
}

func setup(cmd *cobra.Command) (*lifecycle.App, *slog.Logger, context.Context, context.CancelFunc, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log := logger.New(cfg.Env)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)

	app, err := lifecycle.New(ctx, cfg, log)
	if err != nil {
		stop()
		return nil, nil, nil, nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return app, log, ctx, stop, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single lifecycle pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, log, ctx, stop, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			defer app.Close()

			res, err := app.RunOnce(ctx)
			out, _ := json.MarshalIndent(res, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if err != nil {
				log.Error("lifecycle run finished with errors", slog.Int("failed", res.Failed))
				return err
			}
			return nil
		},
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run lifecycle passes on the configured cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, ctx, stop, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			defer app.Close()

			return app.Schedule(ctx)
		},
	}
}
