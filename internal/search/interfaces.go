package search

import (
	"context"
)

// Fetcher retrieves one search-result document for a query. Transient
// failures come back as errors; anti-bot blocks and empty result sets are
// reported through the document's Outcome.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (Document, error)
}

// Extractor turns one document into records plus pagination signals.
type Extractor interface {
	ExtractPage(doc Document, q Query) (PageData, error)
}

// Acceptor enforces at-most-once durable ingestion per record ID.
type Acceptor interface {
	Accept(ctx context.Context, rec Record) (AcceptResult, error)
}

// GeoResolver resolves a record's geo origin from its secondary ID.
// Failures yield an empty string and are never fatal to the record.
type GeoResolver interface {
	ResolveRegion(ctx context.Context, secondaryID string) string
}
