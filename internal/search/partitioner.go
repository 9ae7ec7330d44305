package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// PartitionerConfig controls drill-down and pagination behavior.
type PartitionerConfig struct {
	// Threshold is the result-page estimate at which a node is split to the
	// next finer granularity instead of being paginated.
	Threshold int
	// LimitPerKeyword caps accepted records per run; zero means unlimited.
	LimitPerKeyword int
	// MaxPages bounds straight pagination within one branch.
	MaxPages int
}

// Partitioner approximates full coverage of a keyword's post volume despite
// the endpoint's fixed result-page ceiling. It walks a tree of query
// refinements (window, day, hour, province, city) and exhausts terminal
// branches by pagination. The walk is strictly sequential: every refinement
// decision depends on the previous fetch's result-size estimate.
type Partitioner struct {
	fetcher   Fetcher
	extractor Extractor
	acceptor  Acceptor
	geo       GeoResolver
	regions   []Region
	retry     *ExponentialRetryPolicy
	cfg       PartitionerConfig
	logger    *zap.Logger
	sleep     func(time.Duration)
}

// NewPartitioner constructs a Partitioner. The geo resolver may be nil, in
// which case records keep an empty geo origin.
func NewPartitioner(
	fetcher Fetcher,
	extractor Extractor,
	acceptor Acceptor,
	geo GeoResolver,
	regions []Region,
	cfg PartitionerConfig,
	logger *zap.Logger,
) *Partitioner {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 46
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	return &Partitioner{
		fetcher:   fetcher,
		extractor: extractor,
		acceptor:  acceptor,
		geo:       geo,
		regions:   regions,
		retry:     NewExponentialRetryPolicy(),
		cfg:       cfg,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Run executes one full partition pass for a keyword over the date window.
func (p *Partitioner) Run(ctx context.Context, keyword string, window Window) (RunStats, error) {
	if !window.Start.Before(window.End) {
		return RunStats{}, fmt.Errorf("window start %s is not before end %s",
			window.Start.Format(time.DateTime), window.End.Format(time.DateTime))
	}
	stats := &RunStats{}
	root := Query{Keyword: keyword, Window: window, Page: 1}
	err := p.walk(ctx, root, GranularityWindow, stats)
	return *stats, err
}

func (p *Partitioner) walk(ctx context.Context, q Query, g Granularity, stats *RunStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.quotaReached(stats) {
		return nil
	}
	if g > stats.DeepestAchieved {
		stats.DeepestAchieved = g
	}

	doc, ok := p.fetchPage(ctx, q, stats)
	if !ok {
		return ctx.Err()
	}
	if terminal := p.classifyBranch(doc, q, stats); terminal {
		return nil
	}

	data, err := p.extractor.ExtractPage(doc, q)
	if err != nil {
		p.logger.Warn("page extraction failed, terminating branch",
			zap.String("keyword", q.Keyword),
			zap.String("granularity", g.String()),
			zap.String("url", doc.URL),
			zap.Error(err))
		return nil
	}

	if data.ResultPages >= p.cfg.Threshold {
		if children, level, splittable := p.split(q, g); splittable {
			p.logger.Debug("splitting partition node",
				zap.String("keyword", q.Keyword),
				zap.String("from", g.String()),
				zap.String("to", level.String()),
				zap.Int("children", len(children)),
				zap.Int("result_pages", data.ResultPages))
			for _, child := range children {
				if err := p.walk(ctx, child, level, stats); err != nil {
					return err
				}
			}
			return nil
		}
	}

	return p.paginate(ctx, q, data, stats)
}

// paginate exhausts a terminal branch by following the next-page pointer,
// starting from the already-fetched first page.
func (p *Partitioner) paginate(ctx context.Context, q Query, first PageData, stats *RunStats) error {
	data := first
	for {
		p.acceptRecords(ctx, data.Records, stats)
		if p.quotaReached(stats) || !data.HasNext || q.Page >= p.cfg.MaxPages {
			return ctx.Err()
		}

		q = q.WithPage(q.Page + 1)
		doc, ok := p.fetchPage(ctx, q, stats)
		if !ok {
			return ctx.Err()
		}
		if terminal := p.classifyBranch(doc, q, stats); terminal {
			return nil
		}

		var err error
		data, err = p.extractor.ExtractPage(doc, q)
		if err != nil {
			p.logger.Warn("page extraction failed during pagination",
				zap.String("keyword", q.Keyword),
				zap.Int("page", q.Page),
				zap.Error(err))
			return nil
		}
		// A next pointer can lead to a page with no records; stop instead
		// of chasing further pointers.
		if len(data.Records) == 0 {
			return nil
		}
	}
}

// fetchPage fetches one query with transient-failure retries. A false return
// means the branch is abandoned (reported, not escalated).
func (p *Partitioner) fetchPage(ctx context.Context, q Query, stats *RunStats) (Document, bool) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		doc, err := p.fetcher.Fetch(ctx, q)
		if err == nil {
			stats.PagesFetched++
			PagesFetched.Inc()
			return doc, true
		}
		lastErr = err
		if !p.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := p.retry.Backoff(attempt)
		p.logger.Warn("transient fetch failure, backing off",
			zap.String("keyword", q.Keyword),
			zap.Int("page", q.Page),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		p.sleep(wait)
	}
	p.logger.Error("fetch failed, abandoning branch",
		zap.String("keyword", q.Keyword),
		zap.Int("page", q.Page),
		zap.Error(lastErr))
	return Document{}, false
}

// classifyBranch handles the terminal document outcomes. Returns true when
// the branch must stop here.
func (p *Partitioner) classifyBranch(doc Document, q Query, stats *RunStats) bool {
	switch doc.Outcome {
	case OutcomeBlocked:
		stats.Blocked++
		BranchesBlocked.Inc()
		p.logger.Warn("branch blocked by anti-bot response",
			zap.String("keyword", q.Keyword),
			zap.Int("page", q.Page),
			zap.String("url", doc.URL))
		return true
	case OutcomeEmpty:
		stats.EmptyBranches++
		BranchesEmpty.Inc()
		return true
	default:
		return false
	}
}

func (p *Partitioner) acceptRecords(ctx context.Context, records []Record, stats *RunStats) {
	for _, rec := range records {
		if p.quotaReached(stats) {
			return
		}
		if p.geo != nil && rec.Geo == "" && rec.SecondaryID != "" {
			rec.Geo = p.geo.ResolveRegion(ctx, rec.SecondaryID)
		}
		result, err := p.acceptor.Accept(ctx, rec)
		if err != nil {
			stats.RecordsFailed++
			p.logger.Error("durable write failed for record",
				zap.String("record_id", rec.ID),
				zap.String("keyword", rec.Keyword),
				zap.Error(err))
			continue
		}
		switch result {
		case AcceptStored:
			stats.RecordsStored++
			RecordsStored.Inc()
		case AcceptDuplicate:
			stats.Duplicates++
			RecordsDuplicate.Inc()
		}
	}
}

func (p *Partitioner) quotaReached(stats *RunStats) bool {
	if p.cfg.LimitPerKeyword > 0 && stats.RecordsStored >= p.cfg.LimitPerKeyword {
		stats.QuotaReached = true
		return true
	}
	return false
}

// split produces the child queries at the next finer granularity. The third
// return is false when no finer non-page refinement exists, in which case
// the caller paginates.
func (p *Partitioner) split(q Query, g Granularity) ([]Query, Granularity, bool) {
	switch level := p.nextLevel(q, g); level {
	case GranularityDay:
		return splitWindow(q, 24*time.Hour), level, true
	case GranularityHour:
		return splitWindow(q, time.Hour), level, true
	case GranularityProvince:
		children := make([]Query, 0, len(p.regions))
		for i := range p.regions {
			child := q
			child.Region = &p.regions[i]
			child.Page = 1
			children = append(children, child)
		}
		return children, level, len(children) > 0
	case GranularityCity:
		children := make([]Query, 0, len(q.Region.Cities))
		for _, code := range sortedCityCodes(q.Region.Cities) {
			child := q
			child.CityCode = code
			child.Page = 1
			children = append(children, child)
		}
		return children, level, len(children) > 0
	default:
		return nil, GranularityPage, false
	}
}

// nextLevel picks the next finer granularity the query can actually refine
// to. Degenerate levels (a single-hour window, no region table) are skipped.
func (p *Partitioner) nextLevel(q Query, g Granularity) Granularity {
	switch g {
	case GranularityWindow:
		if q.Window.End.Sub(q.Window.Start) > 24*time.Hour {
			return GranularityDay
		}
		if q.Window.End.Sub(q.Window.Start) > time.Hour {
			return GranularityHour
		}
		return p.regionLevel(q)
	case GranularityDay:
		if q.Window.End.Sub(q.Window.Start) > time.Hour {
			return GranularityHour
		}
		return p.regionLevel(q)
	case GranularityHour:
		return p.regionLevel(q)
	case GranularityProvince:
		if q.Region != nil && len(q.Region.Cities) > 0 && q.CityCode == "" {
			return GranularityCity
		}
		return GranularityPage
	default:
		return GranularityPage
	}
}

func (p *Partitioner) regionLevel(q Query) Granularity {
	if q.Region == nil && len(p.regions) > 0 {
		return GranularityProvince
	}
	if q.Region != nil && q.CityCode == "" && len(q.Region.Cities) > 0 {
		return GranularityCity
	}
	return GranularityPage
}

func splitWindow(q Query, step time.Duration) []Query {
	var children []Query
	for start := q.Window.Start; start.Before(q.Window.End); start = start.Add(step) {
		end := start.Add(step)
		if end.After(q.Window.End) {
			end = q.Window.End
		}
		child := q
		child.Window = Window{Start: start, End: end}
		child.Page = 1
		children = append(children, child)
	}
	return children
}

func sortedCityCodes(cities map[string]string) []string {
	codes := make([]string, 0, len(cities))
	for _, code := range cities {
		codes = append(codes, code)
	}
	// Stable order keeps runs reproducible for a given table.
	sort.Strings(codes)
	return codes
}
