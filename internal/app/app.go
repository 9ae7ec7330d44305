// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"feedsentry/internal/config"
	"feedsentry/internal/extract"
	"feedsentry/internal/fetch"
	"feedsentry/internal/images"
	"feedsentry/internal/ledger"
	"feedsentry/internal/notify"
	"feedsentry/internal/ocr"
	"feedsentry/internal/search"
	"feedsentry/internal/sink"
	"feedsentry/internal/supervisor"
)

// App wires the crawl pipeline together: ledger, sink, download pool,
// fetcher, extractor, partitioner, and notifier. The OCR engine is built on
// demand because it requires the recognition runtime to be present.
type App struct {
	Cfg         config.Config
	Logger      *zap.Logger
	Ledger      *ledger.File
	Sink        *sink.CSV
	Pool        *images.Pool
	Partitioner *search.Partitioner
	Notifier    notify.Notifier
	Window      search.Window
}

// New builds the application from the configuration at path. It fails fast
// on any invalid setting, before any network activity.
func New(path string, logger *zap.Logger) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	led, err := ledger.Open(cfg.Storage.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("dedup ledger loaded",
		zap.String("path", cfg.Storage.LedgerPath),
		zap.Int("known_ids", led.Len()))

	pool, err := images.NewPool(images.Config{
		StagingDir: cfg.Images.StagingDir,
		Workers:    cfg.Images.Workers,
		QueueDepth: cfg.Images.QueueDepth,
		Timeout:    time.Duration(cfg.Images.TimeoutSeconds) * time.Second,
		UserAgent:  cfg.Session.UserAgent,
		Referer:    cfg.Images.Referer,
	}, logger)
	if err != nil {
		led.Close()
		return nil, fmt.Errorf("init image pool: %w", err)
	}

	csvSink, err := sink.New(cfg.Storage.CSVPath, led, pool, logger)
	if err != nil {
		led.Close()
		return nil, fmt.Errorf("init sink: %w", err)
	}

	fetchCfg := fetch.Config{
		UserAgent:      cfg.Session.UserAgent,
		Cookie:         cfg.Session.Cookie,
		AcceptLanguage: cfg.Session.AcceptLanguage,
		TypeFilter:     cfg.Search.TypeFilter,
		ContainFilter:  cfg.Search.ContainFilter,
		RequestTimeout: cfg.SessionTimeout(),
	}
	fetcher, err := fetch.NewClient(fetchCfg, logger)
	if err != nil {
		csvSink.Close()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	regions := search.FilterRegions(search.DefaultRegions(), cfg.Search.Regions)
	partitioner := search.NewPartitioner(
		fetcher,
		extract.New(logger),
		csvSink,
		fetch.NewGeoResolver(fetchCfg, logger),
		regions,
		search.PartitionerConfig{
			Threshold:       cfg.Search.Threshold,
			LimitPerKeyword: cfg.Search.LimitPerKeyword,
			MaxPages:        cfg.Search.MaxPages,
		},
		logger,
	)

	start, end, err := cfg.DateWindow()
	if err != nil {
		csvSink.Close()
		return nil, err
	}

	return &App{
		Cfg:         cfg,
		Logger:      logger,
		Ledger:      led,
		Sink:        csvSink,
		Pool:        pool,
		Partitioner: partitioner,
		Notifier: notify.New(notify.Config{
			WebhookURL: cfg.Notify.WebhookURL,
			Timeout:    time.Duration(cfg.Notify.TimeoutSeconds) * time.Second,
		}),
		// The configured end date is inclusive, the window is half-open.
		Window: search.Window{Start: start, End: end.Add(24 * time.Hour)},
	}, nil
}

// NewGate builds the OCR gate with a live recognition engine. The caller
// owns the returned gate; closing the engine is wired into its cleanup.
func (a *App) NewGate() (*ocr.Gate, func(), error) {
	engine, err := ocr.NewTesseractEngine(a.Cfg.OCR.Languages...)
	if err != nil {
		return nil, nil, fmt.Errorf("init ocr engine: %w", err)
	}
	gate := ocr.NewGate(ocr.GateConfig{
		StagingDir:   a.Cfg.Images.StagingDir,
		Keyword:      a.Cfg.OCR.Keyword,
		MaxEdge:      a.Cfg.OCR.MaxEdge,
		PollInterval: time.Duration(a.Cfg.OCR.PollIntervalMs) * time.Millisecond,
		ErrorBackoff: time.Duration(a.Cfg.OCR.ErrorBackoffSecs) * time.Second,
	}, engine, a.Notifier, a.Logger)
	cleanup := func() {
		if err := engine.Close(); err != nil {
			a.Logger.Warn("closing ocr engine", zap.Error(err))
		}
	}
	return gate, cleanup, nil
}

// NewSupervisor builds the outer cycle loop over the partitioner.
func (a *App) NewSupervisor() *supervisor.Supervisor {
	return supervisor.New(a.Partitioner, supervisor.Config{
		Keywords:     a.Cfg.Search.Keywords,
		Window:       a.Window,
		CycleDelay:   time.Duration(a.Cfg.Supervisor.CycleDelaySeconds) * time.Second,
		CycleJitter:  time.Duration(a.Cfg.Supervisor.CycleJitterSeconds) * time.Second,
		ErrorBackoff: time.Duration(a.Cfg.Supervisor.ErrorBackoffSeconds) * time.Second,
	}, a.Logger)
}

// Close releases the durable stores. The download pool and any running
// loops stop via context cancellation before this is called.
func (a *App) Close() {
	if err := a.Sink.Close(); err != nil {
		a.Logger.Warn("closing sink", zap.Error(err))
	}
	if err := a.Ledger.Close(); err != nil {
		a.Logger.Warn("closing ledger", zap.Error(err))
	}
}
