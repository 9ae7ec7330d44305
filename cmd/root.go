// Package cmd defines the CLI commands for the feedsentry executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"feedsentry/internal/app"
	"feedsentry/internal/logging"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can replace
// it with a fake.
var newApp = func(path string, logger *zap.Logger) (*app.App, error) {
	return app.New(path, logger)
}

// newRootCmd creates and configures the root command. Application services
// are built in PersistentPreRunE so every subcommand finds a ready App in
// its context, and torn down in PersistentPostRun.
func newRootCmd(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedsentry",
		Short: "Keyword crawler for the public feed search endpoint",
		Long: `feedsentry crawls the public feed search endpoint for configured
keywords, working around the result-page ceiling by recursively narrowing
the search window, deduplicates and persists matched posts, and scans
downloaded images for a target phrase.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newOCRCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	logger, err := logging.New(os.Getenv("FEEDSENTRY_ENV") != "production")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("command execution failed", zap.Error(err))
	}
}
