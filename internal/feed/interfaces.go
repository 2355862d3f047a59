package feed

import (
	"context"
	"time"
)

// Adapter converts one source's raw remote payload into records. An adapter
// failure is source-local: the orchestrator logs it and moves on, it never
// aborts the cycle.
type Adapter interface {
	Fetch(ctx context.Context, src Source) ([]Record, error)
}

// RecordWriter is the write surface available inside one cycle's transaction.
type RecordWriter interface {
	// Prune deletes records published before cutoff and returns how many
	// rows were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	// InsertIfAbsent writes the record unless its link already exists.
	// It reports whether a new row was written; a link collision is a
	// no-op, not an error.
	InsertIfAbsent(ctx context.Context, rec Record) (bool, error)
}

// CycleStore scopes a cycle's prune and inserts to a single transaction:
// they commit together or not at all.
type CycleStore interface {
	Transact(ctx context.Context, fn func(RecordWriter) error) error
}

// Reader is the read-side contract consumed by the presentation layer.
type Reader interface {
	// RecentBySource returns up to limit records for one source, newest
	// first. An unknown or empty source yields an empty slice.
	RecentBySource(ctx context.Context, source string, limit int) ([]Record, error)
	// TopRecent returns up to perSource newest records for each named
	// source, keyed by source name. Sources with no rows are omitted.
	TopRecent(ctx context.Context, sources []string, perSource int) (map[string][]Record, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// RetryPolicy decides whether and when a failed fetch attempt is repeated.
type RetryPolicy interface {
	// ShouldRetry reports whether another attempt is warranted after err
	// on the given zero-based attempt.
	ShouldRetry(err error, attempt int) bool
	// Backoff returns the wait before retrying the given attempt.
	Backoff(attempt int) time.Duration
}
