package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feedsentry/internal/supervisor"
)

// newRunCmd creates the 'run' subcommand: the full long-running service.
// It starts the download pool, the status server, the OCR gate (when
// enabled), and then loops crawl cycles until interrupted.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the crawler service until interrupted",
		Long: `Runs crawl cycles for all configured keywords in a loop, with the
image download pool and the OCR gate alongside, and serves health and
metrics endpoints. Stops on SIGINT/SIGTERM.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	appInstance.Pool.Start(ctx)

	srv := supervisor.NewStatusServer(appInstance.Cfg.Server.Port, logger)
	srv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("status server shutdown", zap.Error(err))
		}
	}()

	if appInstance.Cfg.OCR.Enabled {
		gate, cleanup, err := appInstance.NewGate()
		if err != nil {
			return err
		}
		defer cleanup()
		go func() {
			if err := gate.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("ocr gate stopped", zap.Error(err))
			}
		}()
	}

	err = appInstance.NewSupervisor().Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("service stopped")
	return nil
}
