// Package sink persists accepted records to an append-only CSV store and
// fans their image URLs out to the download pool.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"feedsentry/internal/ledger"
	"feedsentry/internal/search"
)

// utf8BOM makes the store open cleanly in spreadsheet tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// header is the versioned column schema, written exactly once on first
// creation of the store.
var header = []string{
	"id", "secondary_id", "author_id", "author_name", "text",
	"article_url", "location", "mentions", "topics",
	"reposts", "comments", "likes", "created_at", "source",
	"image_urls", "video_url", "retweet_id", "geo",
	"verification", "membership", "membership_level",
	"keyword", "ingested_at",
}

// TaskScheduler receives one image task per stored image URL. Scheduling
// failures never roll back the record's persisted state.
type TaskScheduler interface {
	Schedule(ctx context.Context, task search.ImageTask) error
}

// CSV is the persistence sink. Accept enforces at-most-once ingestion by
// running the ledger check-then-append and the row write under one lock.
type CSV struct {
	mu     sync.Mutex
	ledger *ledger.File
	file   *os.File
	writer *csv.Writer
	tasks  TaskScheduler
	logger *zap.Logger
	now    func() time.Time
}

// New opens (or creates) the store at csvPath. On creation the BOM and
// header row are written before any record.
func New(csvPath string, led *ledger.File, tasks TaskScheduler, logger *zap.Logger) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(csvPath), 0o750); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	_, statErr := os.Stat(csvPath)
	created := os.IsNotExist(statErr)
	if statErr != nil && !created {
		return nil, fmt.Errorf("stat sink %s: %w", csvPath, statErr)
	}

	file, err := os.OpenFile(csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", csvPath, err)
	}

	s := &CSV{
		ledger: led,
		file:   file,
		writer: csv.NewWriter(file),
		tasks:  tasks,
		logger: logger,
		now:    time.Now,
	}
	if created {
		if _, err := file.Write(utf8BOM); err != nil {
			file.Close()
			return nil, fmt.Errorf("write BOM: %w", err)
		}
		if err := s.writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		s.writer.Flush()
		if err := s.writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
	}
	return s, nil
}

// Accept ingests one record: duplicate if its ID is already in the ledger,
// otherwise ledger append, then row append, then image-task fanout.
// A durable-write failure is fatal for this record only.
func (s *CSV) Accept(ctx context.Context, rec search.Record) (search.AcceptResult, error) {
	s.mu.Lock()
	added, err := s.ledger.AddIfAbsent(rec.ID)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("ledger write for %s: %w", rec.ID, err)
	}
	if !added {
		s.mu.Unlock()
		return search.AcceptDuplicate, nil
	}
	if err := s.writeRow(rec); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("sink write for %s: %w", rec.ID, err)
	}
	s.mu.Unlock()

	s.scheduleImages(ctx, rec)
	return search.AcceptStored, nil
}

func (s *CSV) writeRow(rec search.Record) error {
	wrapped := make([]string, 0, len(rec.ImageURLs))
	for _, u := range rec.ImageURLs {
		wrapped = append(wrapped, WrapImageURL(u))
	}
	row := []string{
		rec.ID, rec.SecondaryID, rec.AuthorID, rec.AuthorName, rec.Text,
		rec.ArticleURL, rec.Location,
		strings.Join(rec.Mentions, ","), strings.Join(rec.Topics, ","),
		strconv.Itoa(rec.Counters.Reposts), strconv.Itoa(rec.Counters.Comments), strconv.Itoa(rec.Counters.Likes),
		rec.CreatedAt, rec.Source,
		strings.Join(wrapped, ","), rec.VideoURL, rec.RetweetID, rec.Geo,
		string(rec.Verification), string(rec.Membership), strconv.Itoa(rec.MembershipLevel),
		rec.Keyword, s.now().Format("2006-01-02 15:04:05"),
	}
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSV) scheduleImages(ctx context.Context, rec search.Record) {
	if s.tasks == nil {
		return
	}
	for _, u := range rec.ImageURLs {
		task := search.ImageTask{
			SourceURL: WrapImageURL(u),
			DestName:  DestName(rec.ID, u),
			RecordID:  rec.ID,
		}
		if err := s.tasks.Schedule(ctx, task); err != nil {
			s.logger.Warn("image task scheduling failed",
				zap.String("record_id", rec.ID),
				zap.String("url", u),
				zap.Error(err))
		}
	}
}

// Close flushes and closes the store file.
func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// WrapImageURL routes the image through the external-link form that
// sidesteps referer checks on the media host.
func WrapImageURL(original string) string {
	return "https://image.baidu.com/search/down?url=" + original
}

// DestName derives the deterministic staging filename for a record's image
// from the record ID and the URL basename, so tasks never collide.
func DestName(recordID, sourceURL string) string {
	return recordID + "_" + path.Base(sourceURL)
}
