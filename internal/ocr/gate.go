package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"feedsentry/internal/notify"
	"feedsentry/internal/search"
)

// supportedExtensions limits the gate to decodable image formats.
var supportedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
}

// GateConfig tunes the staging-area scan loop.
type GateConfig struct {
	StagingDir string
	Keyword    string
	// MaxEdge bounds the longest image edge before recognition to cap
	// per-image latency.
	MaxEdge      int
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// Gate is the single-threaded OCR loop. Every image that reaches it is
// purged after processing, match or not, recognition failure included, so
// the staging area never grows unbounded.
type Gate struct {
	cfg      GateConfig
	engine   Engine
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewGate constructs the gate.
func NewGate(cfg GateConfig, engine Engine, notifier notify.Notifier, logger *zap.Logger) *Gate {
	if cfg.MaxEdge <= 0 {
		cfg.MaxEdge = 800
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 2 * time.Second
	}
	return &Gate{
		cfg:      cfg,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
	}
}

// Run polls the staging area until the context ends. It never terminates on
// its own; unexpected sweep errors only earn a backoff.
func (g *Gate) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := g.Sweep(ctx)
		switch {
		case err != nil:
			g.logger.Error("staging sweep failed", zap.Error(err))
			if !sleepCtx(ctx, g.cfg.ErrorBackoff) {
				return ctx.Err()
			}
		case processed == 0:
			if !sleepCtx(ctx, g.cfg.PollInterval) {
				return ctx.Err()
			}
		}
	}
}

// Sweep processes every image currently staged and reports how many it saw.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	paths, err := g.stagedImages()
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		g.processImage(ctx, path)
	}
	return len(paths), nil
}

// processImage runs one image through the state machine:
// preprocess, recognize, match, notify on match, purge unconditionally.
func (g *Gate) processImage(ctx context.Context, path string) {
	defer g.purge(path)
	search.ImagesScanned.Inc()

	img, err := g.preprocess(path)
	if err != nil {
		g.logger.Warn("image preprocessing failed",
			zap.String("image", filepath.Base(path)),
			zap.Error(err))
		return
	}

	lines, err := g.engine.Recognize(ctx, img)
	if err != nil {
		g.logger.Warn("recognition failed",
			zap.String("image", filepath.Base(path)),
			zap.Error(err))
		return
	}

	text := strings.Join(lines, "\n")
	if !strings.Contains(text, g.cfg.Keyword) {
		return
	}

	search.ImagesMatched.Inc()
	g.logger.Info("keyword found in image",
		zap.String("image", filepath.Base(path)),
		zap.String("keyword", g.cfg.Keyword))
	if err := g.notifier.NotifyImage(ctx, path); err != nil {
		search.NotifyFailures.Inc()
		g.logger.Warn("notification failed",
			zap.String("image", filepath.Base(path)),
			zap.Error(err))
	}
}

// preprocess decodes the image, normalizes it to RGBA, and bounds the
// longest edge to keep recognition latency predictable.
func (g *Gate) preprocess(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	bounds := img.Bounds()
	longest := bounds.Dx()
	if bounds.Dy() > longest {
		longest = bounds.Dy()
	}
	if longest > g.cfg.MaxEdge {
		img = imaging.Fit(img, g.cfg.MaxEdge, g.cfg.MaxEdge, imaging.Lanczos)
	}
	return img, nil
}

func (g *Gate) purge(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		g.logger.Warn("failed to purge staged image",
			zap.String("image", filepath.Base(path)),
			zap.Error(err))
	}
}

// stagedImages lists fully staged files, skipping in-flight temp writes.
func (g *Gate) stagedImages() ([]string, error) {
	entries, err := os.ReadDir(g.cfg.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("read staging dir: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := supportedExtensions[ext]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(g.cfg.StagingDir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
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
