package evidence

import (
	"context"
	"io"
	"time"
)

// TurnRecord is the journal entry for one resolve call.
type TurnRecord struct {
	// ID is a UUID v4 assigned when the record is created.
	ID string `json:"id"`

	// LogID is the request log id.
	LogID string `json:"log_id"`

	Product string `json:"product"`
	Domain  string `json:"domain,omitempty"`
	Intent  string `json:"intent,omitempty"`

	// State is the trigger state of the selected policy.
	State string `json:"state,omitempty"`

	// Outcome is the engine outcome: resolved, no_policy, unknown_product
	// or not_loaded.
	Outcome string `json:"outcome"`

	// Error is the resolve error message, truncated.
	Error string `json:"error,omitempty"`

	// Output is the rendered {meta, result, session} document.
	Output string `json:"output,omitempty"`

	// OutputHash is the hex SHA-256 of Output.
	OutputHash string `json:"output_hash,omitempty"`

	// Version is the rule set generation the turn was resolved against.
	Version string `json:"version,omitempty"`

	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Query filters journal records. Zero fields do not filter.
type Query struct {
	// StartTime and EndTime bound RecordedAt inclusively.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	LogID   string `json:"log_id,omitempty"`
	Product string `json:"product,omitempty"`
	Domain  string `json:"domain,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	// Limit caps the number of records returned. 0 means the backend default.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder orders by RecordedAt: "asc" or "desc" (default).
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage is a journal backend. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *TurnRecord) error

	// Query returns the records matching q, or an empty slice.
	Query(ctx context.Context, q *Query) ([]*TurnRecord, error)

	// Count returns the number of records matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes the records matching q and returns how many went.
	Delete(ctx context.Context, q *Query) (int64, error)

	// DeleteOldest removes the n records with the earliest RecordedAt.
	DeleteOldest(ctx context.Context, n int64) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Exporter writes records in some format.
type Exporter interface {
	Export(ctx context.Context, records []*TurnRecord, w io.Writer) error
}
