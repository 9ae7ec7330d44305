package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feedsentry/internal/ledger"
	"feedsentry/internal/search"
)

type fakeScheduler struct {
	tasks []search.ImageTask
}

func (f *fakeScheduler) Schedule(_ context.Context, task search.ImageTask) error {
	f.tasks = append(f.tasks, task)
	return nil
}

func newTestSink(t *testing.T, tasks TaskScheduler) (*CSV, string) {
	t.Helper()
	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "ids.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	csvPath := filepath.Join(dir, "results.csv")
	s, err := New(csvPath, led, tasks, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, csvPath
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "store must start with a BOM")
	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAccept_StoredThenDuplicate(t *testing.T) {
	t.Parallel()

	s, path := newTestSink(t, nil)
	rec := search.Record{ID: "1001", AuthorName: "author", Text: "hello", Keyword: "k"}

	result, err := s.Accept(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, search.AcceptStored, result)

	result, err = s.Accept(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, search.AcceptDuplicate, result)

	rows := readRows(t, path)
	require.Len(t, rows, 2) // header + one record
	require.Equal(t, header, rows[0])
	require.Equal(t, "1001", rows[1][0])
	require.Equal(t, "hello", rows[1][4])
	require.Equal(t, "k", rows[1][21])
}

func TestAccept_HeaderWrittenOncePerStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "ids.txt"))
	require.NoError(t, err)
	defer led.Close()
	csvPath := filepath.Join(dir, "results.csv")

	s, err := New(csvPath, led, nil, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Accept(context.Background(), search.Record{ID: "a"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening an existing store must append, not rewrite the header.
	s, err = New(csvPath, led, nil, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Accept(context.Background(), search.Record{ID: "b"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	rows := readRows(t, csvPath)
	require.Len(t, rows, 3)
	require.Equal(t, header, rows[0])
	require.Equal(t, "a", rows[1][0])
	require.Equal(t, "b", rows[2][0])
}

func TestAccept_SchedulesOneTaskPerImage(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	s, _ := newTestSink(t, sched)

	rec := search.Record{
		ID: "2002",
		ImageURLs: []string{
			"https://img.example.com/large/a.jpg",
			"https://img.example.com/large/b.jpg",
		},
	}
	result, err := s.Accept(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, search.AcceptStored, result)

	require.Len(t, sched.tasks, 2)
	require.Equal(t, WrapImageURL("https://img.example.com/large/a.jpg"), sched.tasks[0].SourceURL)
	require.Equal(t, "2002_a.jpg", sched.tasks[0].DestName)
	require.Equal(t, "2002", sched.tasks[0].RecordID)
	require.Equal(t, "2002_b.jpg", sched.tasks[1].DestName)
}

func TestAccept_DuplicateSchedulesNothing(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	s, _ := newTestSink(t, sched)
	rec := search.Record{ID: "3003", ImageURLs: []string{"https://img.example.com/large/a.jpg"}}

	_, err := s.Accept(context.Background(), rec)
	require.NoError(t, err)
	_, err = s.Accept(context.Background(), rec)
	require.NoError(t, err)

	require.Len(t, sched.tasks, 1)
}

func TestWrapImageURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://image.baidu.com/search/down?url=https://wx1.sinaimg.cn/large/x.jpg",
		WrapImageURL("https://wx1.sinaimg.cn/large/x.jpg"))
}
