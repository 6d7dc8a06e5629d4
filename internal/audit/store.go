package audit

import (
	"context"
	"time"
)

// Filter narrows a Search. Zero-valued fields are ignored. Results are always
// ordered by timestamp descending; zero matches yield an empty slice, not an
// error.
type Filter struct {
	UserID         string
	OrganizationID string
	EntityType     string
	EntityID       string
	Types          []EventType
	Regulation     Regulation
	From           time.Time
	To             time.Time
	Severity       Severity
	Success        *bool
	Limit          int
	Offset         int
}

// Store is the persistence contract for the pipeline. Any backend offering
// batch insert, filtered select and delete-by-cutoff will do; tests use the
// in-memory implementation.
type Store interface {
	// InsertBatch persists events in one round trip, preserving slice order.
	InsertBatch(ctx context.Context, events []Event) error
	// Search returns events matching the filter, newest first.
	Search(ctx context.Context, f Filter) ([]Event, error)
	// DeleteBefore removes events of the given entity type with a timestamp
	// strictly before cutoff, returning the number of rows removed.
	DeleteBefore(ctx context.Context, entityType string, cutoff time.Time) (int64, error)
}

// Sink receives successfully persisted batches for best-effort fan-out
// (live dashboard cache, SIEM mirror). Sink failures never affect the
// durable write path.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}
