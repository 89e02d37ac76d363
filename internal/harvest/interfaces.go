package harvest

import (
	"context"
	"iter"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Implementations
// do not consult robots.txt or rate limits; that is the Gate's job.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Gate grants or denies permission to fetch a URL.
type Gate interface {
	Acquire(ctx context.Context, rawURL string, minInterval time.Duration) (Permit, error)
}

// Getter performs a GET only after the Gate grants it.
type Getter interface {
	Get(ctx context.Context, request GetRequest) (FetchResponse, error)
}

// Adapter produces raw records lazily for one configured source. A yielded
// error is either a warning (the sequence continues) or fatal for the source
// (the sequence ends); see IsFatal.
type Adapter interface {
	Records(ctx context.Context, source SourceConfig) iter.Seq2[RawRecord, error]
}

// Normalizer maps a raw record to the canonical schema.
type Normalizer interface {
	Normalize(raw RawRecord) (NormalizedRecord, error)
}

// Enricher adds derived attributes to a normalized record. It never fails;
// an unenriched copy is returned instead.
type Enricher interface {
	Resolve(ctx context.Context, record NormalizedRecord) NormalizedRecord
}

// Sink persists normalized records.
type Sink interface {
	Write(record NormalizedRecord) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
