// Package supervisor runs the outer control loop: one partition pass per
// keyword per cycle, forever, with jittered delays between cycles and a
// backoff after errors.
package supervisor

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"go.uber.org/zap"

	"feedsentry/internal/search"
)

// Runner executes one partition pass for a keyword. Satisfied by
// *search.Partitioner.
type Runner interface {
	Run(ctx context.Context, keyword string, window search.Window) (search.RunStats, error)
}

// Config tunes the cycle cadence.
type Config struct {
	Keywords     []string
	Window       search.Window
	CycleDelay   time.Duration
	CycleJitter  time.Duration
	ErrorBackoff time.Duration
}

// Supervisor drives repeated crawl cycles. Transient trouble inside a cycle
// is the partitioner's business; the supervisor only decides how long to
// pause before the next cycle.
type Supervisor struct {
	runner Runner
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

// New constructs a Supervisor.
func New(runner Runner, cfg Config, logger *zap.Logger) *Supervisor {
	if cfg.CycleDelay <= 0 {
		cfg.CycleDelay = 2 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &Supervisor{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Run loops until the context ends. Errors are logged and converted into a
// pause; nothing escalates past this loop.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cycleStart := time.Now()
		cycleErr := s.runCycle(ctx)
		s.logger.Info("crawl cycle finished",
			zap.Duration("duration", time.Since(cycleStart)),
			zap.Bool("had_error", cycleErr != nil))

		pause := s.cfg.CycleDelay + jitter(s.cfg.CycleJitter)
		if cycleErr != nil && ctx.Err() == nil {
			s.logger.Warn("cycle ended with error, backing off", zap.Error(cycleErr))
			pause = s.cfg.ErrorBackoff
		}
		if !s.sleep(ctx, pause) {
			return ctx.Err()
		}
	}
}

// runCycle runs one partition pass per keyword, sequentially.
func (s *Supervisor) runCycle(ctx context.Context) error {
	var firstErr error
	for _, keyword := range s.cfg.Keywords {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := s.runner.Run(ctx, keyword, s.cfg.Window)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("partition run failed",
				zap.String("keyword", keyword),
				zap.Error(err))
			continue
		}
		s.logger.Info("partition run finished",
			zap.String("keyword", keyword),
			zap.Int("pages_fetched", stats.PagesFetched),
			zap.Int("stored", stats.RecordsStored),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("failed", stats.RecordsFailed),
			zap.Int("blocked", stats.Blocked),
			zap.Bool("quota_reached", stats.QuotaReached),
			zap.String("deepest", stats.DeepestAchieved.String()))
	}
	return firstErr
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
