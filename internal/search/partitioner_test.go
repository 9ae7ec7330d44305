package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSite scripts the remote endpoint: each addressable query resolves to a
// page of records plus pagination signals.
type fakeSite struct {
	pages    map[string]PageData
	outcomes map[string]Outcome
	failures map[string]int // remaining transient failures per key
	fetched  []string
}

func queryKey(q Query) string {
	region := ""
	if q.Region != nil {
		region = q.Region.Code
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		q.Keyword,
		q.Window.Start.Format("2006-01-02-15"),
		q.Window.End.Format("2006-01-02-15"),
		region, q.CityCode, q.Page)
}

func (s *fakeSite) Fetch(_ context.Context, q Query) (Document, error) {
	key := queryKey(q)
	if s.failures[key] > 0 {
		s.failures[key]--
		return Document{}, errors.New("connection reset")
	}
	s.fetched = append(s.fetched, key)
	outcome := OutcomeOK
	if o, ok := s.outcomes[key]; ok {
		outcome = o
	} else if _, ok := s.pages[key]; !ok {
		outcome = OutcomeEmpty
	}
	return Document{URL: key, Status: 200, Outcome: outcome}, nil
}

func (s *fakeSite) ExtractPage(doc Document, _ Query) (PageData, error) {
	return s.pages[doc.URL], nil
}

type fakeAcceptor struct {
	seen   map[string]bool
	failID string
}

func (a *fakeAcceptor) Accept(_ context.Context, rec Record) (AcceptResult, error) {
	if rec.ID == a.failID {
		return 0, errors.New("disk full")
	}
	if a.seen == nil {
		a.seen = map[string]bool{}
	}
	if a.seen[rec.ID] {
		return AcceptDuplicate, nil
	}
	a.seen[rec.ID] = true
	return AcceptStored, nil
}

func records(ids ...string) []Record {
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, Record{ID: id})
	}
	return out
}

func newTestPartitioner(site *fakeSite, acceptor Acceptor, regions []Region, cfg PartitionerConfig) *Partitioner {
	p := NewPartitioner(site, site, acceptor, nil, regions, cfg, zap.NewNop())
	p.sleep = func(time.Duration) {}
	return p
}

func testWindow(hours int) Window {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.Add(time.Duration(hours) * time.Hour)}
}

func TestPartitioner_SinglePageUnderThreshold(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	site := &fakeSite{pages: map[string]PageData{
		queryKey(Query{Keyword: "k", Window: window, Page: 1}): {
			Records:     records("a", "b", "c"),
			ResultPages: 3,
		},
	}}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 3, stats.RecordsStored)
	require.Equal(t, 1, stats.PagesFetched)
	require.Equal(t, GranularityWindow, stats.DeepestAchieved)
}

func TestPartitioner_PaginatesUntilNoNext(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	base := Query{Keyword: "k", Window: window}
	site := &fakeSite{pages: map[string]PageData{
		queryKey(base.WithPage(1)): {Records: records("a"), ResultPages: 10, HasNext: true},
		queryKey(base.WithPage(2)): {Records: records("b"), ResultPages: 10, HasNext: true},
		queryKey(base.WithPage(3)): {Records: records("c"), ResultPages: 10},
	}}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 3, stats.PagesFetched)
	require.Equal(t, 3, stats.RecordsStored)
}

func TestPartitioner_SplitsByDayOverThreshold(t *testing.T) {
	t.Parallel()

	window := testWindow(48)
	day1 := Window{Start: window.Start, End: window.Start.Add(24 * time.Hour)}
	day2 := Window{Start: day1.End, End: window.End}
	site := &fakeSite{pages: map[string]PageData{
		queryKey(Query{Keyword: "k", Window: window, Page: 1}): {
			Records:     records("root"),
			ResultPages: 50,
		},
		queryKey(Query{Keyword: "k", Window: day1, Page: 1}): {
			Records:     records("d1"),
			ResultPages: 5,
		},
		queryKey(Query{Keyword: "k", Window: day2, Page: 1}): {
			Records:     records("d2"),
			ResultPages: 5,
		},
	}}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	// The over-threshold root page is refined, not paginated, so its own
	// records never reach the acceptor twice via child pages.
	require.Equal(t, 2, stats.RecordsStored)
	require.Equal(t, 3, stats.PagesFetched)
	require.Equal(t, GranularityDay, stats.DeepestAchieved)
}

func TestPartitioner_DrillsThroughHourToProvince(t *testing.T) {
	t.Parallel()

	window := testWindow(1)
	region := Region{Name: "north", Code: "100", Cities: map[string]string{"c1": "1"}}
	withRegion := Query{Keyword: "k", Window: window, Region: &region, Page: 1}
	site := &fakeSite{pages: map[string]PageData{
		queryKey(Query{Keyword: "k", Window: window, Page: 1}): {
			ResultPages: 50,
		},
		queryKey(withRegion): {
			Records:     records("r1", "r2"),
			ResultPages: 2,
		},
	}}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, []Region{region}, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	// A one-hour window cannot split by day or hour, so the next level is
	// province.
	require.Equal(t, 2, stats.RecordsStored)
	require.Equal(t, GranularityProvince, stats.DeepestAchieved)
}

func TestPartitioner_BlockedBranchTerminates(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	key := queryKey(Query{Keyword: "k", Window: window, Page: 1})
	site := &fakeSite{
		pages:    map[string]PageData{key: {Records: records("a")}},
		outcomes: map[string]Outcome{key: OutcomeBlocked},
	}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Blocked)
	require.Zero(t, stats.RecordsStored)
}

func TestPartitioner_EmptyBranchCounted(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	site := &fakeSite{}
	p := newTestPartitioner(site, &fakeAcceptor{}, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 1, stats.EmptyBranches)
}

func TestPartitioner_QuotaStopsRun(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	base := Query{Keyword: "k", Window: window}
	site := &fakeSite{pages: map[string]PageData{
		queryKey(base.WithPage(1)): {Records: records("a", "b", "c"), HasNext: true},
		queryKey(base.WithPage(2)): {Records: records("d", "e")},
	}}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46, LimitPerKeyword: 2})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 2, stats.RecordsStored)
	require.True(t, stats.QuotaReached)
	require.Equal(t, 1, stats.PagesFetched)
}

func TestPartitioner_DuplicatesAndFailuresCounted(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	site := &fakeSite{pages: map[string]PageData{
		queryKey(Query{Keyword: "k", Window: window, Page: 1}): {
			Records: records("a", "a", "bad", "b"),
		},
	}}
	acceptor := &fakeAcceptor{failID: "bad"}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 2, stats.RecordsStored)
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, 1, stats.RecordsFailed)
}

func TestPartitioner_RetriesTransientFetchFailure(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	key := queryKey(Query{Keyword: "k", Window: window, Page: 1})
	site := &fakeSite{
		pages:    map[string]PageData{key: {Records: records("a")}},
		failures: map[string]int{key: 2},
	}
	p := newTestPartitioner(site, &fakeAcceptor{}, nil, PartitionerConfig{Threshold: 46})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 1, stats.RecordsStored)
}

func TestPartitioner_MaxPagesCeiling(t *testing.T) {
	t.Parallel()

	window := testWindow(24)
	base := Query{Keyword: "k", Window: window}
	pages := map[string]PageData{}
	for page := 1; page <= 5; page++ {
		pages[queryKey(base.WithPage(page))] = PageData{
			Records: records(fmt.Sprintf("p%d", page)),
			HasNext: true,
		}
	}
	site := &fakeSite{pages: pages}
	acceptor := &fakeAcceptor{}
	p := newTestPartitioner(site, acceptor, nil, PartitionerConfig{Threshold: 46, MaxPages: 3})

	stats, err := p.Run(context.Background(), "k", window)
	require.NoError(t, err)
	require.Equal(t, 3, stats.PagesFetched)
	require.Equal(t, 3, stats.RecordsStored)
}

func TestPartitioner_RejectsInvertedWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	window := Window{Start: start, End: start.Add(-time.Hour)}
	p := newTestPartitioner(&fakeSite{}, &fakeAcceptor{}, nil, PartitionerConfig{})

	_, err := p.Run(context.Background(), "k", window)
	require.Error(t, err)
}

func TestSplitWindowCoversRange(t *testing.T) {
	t.Parallel()

	q := Query{Keyword: "k", Window: testWindow(30)}
	children := splitWindow(q, 24*time.Hour)
	require.Len(t, children, 2)
	require.Equal(t, q.Window.Start, children[0].Window.Start)
	require.Equal(t, q.Window.End, children[1].Window.End)
	require.Equal(t, children[0].Window.End, children[1].Window.Start)
	for _, child := range children {
		require.Equal(t, 1, child.Page)
	}
}
