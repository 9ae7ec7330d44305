package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedsentry/internal/search"
)

func TestPool_DownloadsIntoStagingDir(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "agent-under-test", r.Header.Get("User-Agent"))
		require.Equal(t, "https://example.com/", r.Header.Get("Referer"))
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	p, err := NewPool(Config{
		StagingDir: dir,
		Workers:    2,
		UserAgent:  "agent-under-test",
		Referer:    "https://example.com/",
	}, zap.NewNop())
	require.NoError(t, err)
	p.Start(ctx)

	require.NoError(t, p.Schedule(ctx, search.ImageTask{
		SourceURL: srv.URL + "/a.jpg",
		DestName:  "rec1_a.jpg",
		RecordID:  "rec1",
	}))

	dest := filepath.Join(dir, "rec1_a.jpg")
	require.Eventually(t, func() bool {
		_, err := os.Stat(dest)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "image-bytes", string(data))
	require.Equal(t, int64(1), p.Downloads())

	// No temp files may survive a completed download.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.False(t, strings.HasPrefix(entry.Name(), ".tmp-"))
	}
}

func TestPool_DropsFailedDownloads(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	p, err := NewPool(Config{StagingDir: dir, Workers: 1}, zap.NewNop())
	require.NoError(t, err)
	p.Start(ctx)

	require.NoError(t, p.Schedule(ctx, search.ImageTask{
		SourceURL: srv.URL + "/missing.jpg",
		DestName:  "rec2_missing.jpg",
		RecordID:  "rec2",
	}))

	require.Eventually(t, func() bool {
		return p.Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)
	// Give the worker a beat to finish the in-flight task.
	time.Sleep(100 * time.Millisecond)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Zero(t, p.Downloads())
}

func TestPool_ScheduleFailsAfterCancel(t *testing.T) {
	t.Parallel()

	// An unstarted pool with a full queue forces Schedule to block, so the
	// canceled context is the only way out.
	p, err := NewPool(Config{StagingDir: t.TempDir(), Workers: 1, QueueDepth: 1}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Schedule(context.Background(), search.ImageTask{DestName: "x"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Schedule(ctx, search.ImageTask{DestName: "y"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPool_WorkersStopOnCancel(t *testing.T) {
	t.Parallel()

	p, err := NewPool(Config{StagingDir: t.TempDir(), Workers: 3}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after cancellation")
	}
}
