// Package search defines core types shared across subsystems and the
// search-space partitioner that drives keyword coverage.
package search

import (
	"time"
)

// Granularity identifies how finely a partition node's query is scoped.
type Granularity int

// Granularity levels, coarsest first. A node above the drill-down threshold
// is split to the next level; Page is terminal and is exhausted by straight
// pagination.
const (
	GranularityWindow Granularity = iota
	GranularityDay
	GranularityHour
	GranularityProvince
	GranularityCity
	GranularityPage
)

// String returns the level name used in logs and metrics labels.
func (g Granularity) String() string {
	switch g {
	case GranularityWindow:
		return "whole-window"
	case GranularityDay:
		return "by-day"
	case GranularityHour:
		return "by-hour"
	case GranularityProvince:
		return "by-province"
	case GranularityCity:
		return "by-city"
	case GranularityPage:
		return "by-page"
	default:
		return "unknown"
	}
}

// Window is a half-open time range [Start, End) at hour resolution.
type Window struct {
	Start time.Time
	End   time.Time
}

// Region is one province-level search region with its drill-down cities.
type Region struct {
	Name   string
	Code   string
	Cities map[string]string // name -> city code
}

// Query identifies one fetchable search page. Values are immutable once
// issued; refinements build new Query values.
type Query struct {
	Keyword  string
	Window   Window
	Region   *Region
	CityCode string
	Page     int
}

// WithPage returns a copy of the query pointing at the given page.
func (q Query) WithPage(page int) Query {
	q.Page = page
	return q
}

// Outcome classifies a fetched document.
type Outcome int

// Fetch outcomes. Blocked and Empty are terminal for the issuing branch;
// transient failures are surfaced as errors instead.
const (
	OutcomeOK Outcome = iota
	OutcomeEmpty
	OutcomeBlocked
)

// Document is one successful fetch result. It is consumed exactly once by
// the extractor and not retained.
type Document struct {
	URL     string
	Status  int
	Body    []byte
	Outcome Outcome
}

// VerificationTier classifies the author's account verification badge.
type VerificationTier string

// Known verification tiers, keyed off the badge SVG identifier.
const (
	VerificationNone   VerificationTier = "none"
	VerificationBlue   VerificationTier = "blue"
	VerificationYellow VerificationTier = "yellow"
	VerificationOrange VerificationTier = "orange"
	VerificationGold   VerificationTier = "gold"
)

// MembershipTier classifies the author's paid membership.
type MembershipTier string

// Membership tiers derived from the badge icon filename.
const (
	MembershipNone  MembershipTier = "non-member"
	MembershipVIP   MembershipTier = "vip"
	MembershipSuper MembershipTier = "svip"
)

// Counters holds the engagement counts attached to a post. Unparsable or
// missing values default to zero.
type Counters struct {
	Reposts  int
	Comments int
	Likes    int
}

// Record is one normalized post extracted from a search-result document.
// Immutable after creation; written at most once to the persistence sink.
type Record struct {
	ID              string
	SecondaryID     string
	AuthorID        string
	AuthorName      string
	Text            string
	ImageURLs       []string
	VideoURL        string
	Counters        Counters
	CreatedAt       string
	Source          string
	Geo             string
	Location        string
	Mentions        []string
	Topics          []string
	Verification    VerificationTier
	Membership      MembershipTier
	MembershipLevel int
	ArticleURL      string
	RetweetID       string
	RetweetText     string
	Keyword         string
}

// ImageTask schedules one attached image for download into the staging area.
// The file is deleted after the OCR gate processes it, match or not.
type ImageTask struct {
	SourceURL string
	DestName  string
	RecordID  string
}

// PageData is what the extractor yields for one document: the normalized
// records plus the pagination signals the partitioner steers by.
type PageData struct {
	Records []Record
	// ResultPages counts the pager entries on the page. It is the
	// result-size estimate used for the drill-down decision.
	ResultPages int
	HasNext     bool
}

// AcceptResult reports what the persistence layer did with a record.
type AcceptResult int

// Accept results.
const (
	AcceptStored AcceptResult = iota
	AcceptDuplicate
)

// RunStats summarizes one partitioner pass over a keyword.
type RunStats struct {
	PagesFetched    int
	Blocked         int
	EmptyBranches   int
	RecordsStored   int
	Duplicates      int
	RecordsFailed   int
	QuotaReached    bool
	DeepestAchieved Granularity
}
