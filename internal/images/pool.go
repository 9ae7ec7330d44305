// Package images downloads attached images into the staging area with a
// fixed worker budget so one slow download never blocks the rest.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"feedsentry/internal/search"
)

// Config controls the download pool.
type Config struct {
	StagingDir string
	Workers    int
	QueueDepth int
	Timeout    time.Duration
	UserAgent  string
	Referer    string
}

// Pool drains a bounded queue of image tasks with a fixed number of
// workers. Tasks are independent; per-task failure is logged and dropped
// with no retry at this layer.
type Pool struct {
	cfg       Config
	client    *http.Client
	tasks     chan search.ImageTask
	wg        sync.WaitGroup
	logger    *zap.Logger
	downloads atomic.Int64
}

// NewPool creates the staging directory and the task queue.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if err := os.MkdirAll(cfg.StagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", cfg.StagingDir, err)
	}
	return &Pool{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		tasks:  make(chan search.ImageTask, cfg.QueueDepth),
		logger: logger,
	}, nil
}

// Start launches the worker budget. Workers exit when the context finishes
// and the queue drains.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx)
		}()
	}
}

// Schedule enqueues a task or returns when the context ends.
func (p *Pool) Schedule(ctx context.Context, task search.ImageTask) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("schedule canceled: %w", ctx.Err())
	case p.tasks <- task:
		return nil
	}
}

// Downloads returns the total number of completed downloads.
func (p *Pool) Downloads() int64 {
	return p.downloads.Load()
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			if err := p.download(ctx, task); err != nil {
				search.ImageFailures.Inc()
				p.logger.Warn("image download failed",
					zap.String("record_id", task.RecordID),
					zap.String("url", task.SourceURL),
					zap.Error(err))
				continue
			}
			p.downloads.Add(1)
			search.ImagesDownloaded.Inc()
		}
	}
}

// download writes the image via a temp file and rename so the OCR gate
// never observes a partially written file.
func (p *Pool) download(ctx context.Context, task search.ImageTask) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	if p.cfg.Referer != "" {
		req.Header.Set("Referer", p.cfg.Referer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp := filepath.Join(p.cfg.StagingDir, ".tmp-"+uuid.NewString())
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write image body: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	dest := filepath.Join(p.cfg.StagingDir, task.DestName)
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("stage image %s: %w", dest, err)
	}
	return nil
}
