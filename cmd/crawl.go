package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand: a single partition pass per
// keyword, then exit. Useful for backfills and cron-style scheduling.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl pass for each configured keyword, then exit",
		RunE:  runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	appInstance.Pool.Start(ctx)

	var firstErr error
	for _, keyword := range appInstance.Cfg.Search.Keywords {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := appInstance.Partitioner.Run(ctx, keyword, appInstance.Window)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Error("partition run failed",
				zap.String("keyword", keyword),
				zap.Error(err))
			continue
		}
		logger.Info("partition run finished",
			zap.String("keyword", keyword),
			zap.Int("pages_fetched", stats.PagesFetched),
			zap.Int("stored", stats.RecordsStored),
			zap.Int("duplicates", stats.Duplicates))
	}

	drainPool(ctx, appInstance.Pool.Pending, logger)

	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}

// drainPool waits for the download queue to empty before exiting, so a
// one-shot crawl does not abandon scheduled images.
func drainPool(ctx context.Context, pending func() int, logger *zap.Logger) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for pending() > 0 {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted with downloads pending", zap.Int("pending", pending()))
			return
		case <-ticker.C:
		}
	}
	// Give in-flight downloads a moment to finish their last write.
	time.Sleep(time.Second)
}
