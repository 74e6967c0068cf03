// Package ledger records what the shaper did with each item: dispatched,
// dropped, or rejected, per priority slot, with byte counts and queue wait
// times. Queued items themselves are never persisted; the ledger is an
// audit trail of completed decisions.
package ledger

import (
	"context"
	"time"
)

// Outcome classifies what happened to an item.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeDropped    Outcome = "dropped"
	OutcomeRejected   Outcome = "rejected"
)

// Entry is a single shaping decision written to the ledger.
type Entry struct {
	ID         int64     `json:"id"`
	ItemID     string    `json:"item_id"`
	Priority   int       `json:"priority"`
	Bytes      int64     `json:"bytes"`
	Outcome    Outcome   `json:"outcome"`
	WaitMicros int64     `json:"wait_micros"`
	Memo       string    `json:"memo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary aggregates shaping decisions for one priority slot, or for all
// slots when queried with a negative priority.
type Summary struct {
	Dispatched      int64 `json:"dispatched"`
	DispatchedBytes int64 `json:"dispatched_bytes"`
	Dropped         int64 `json:"dropped"`
	Rejected        int64 `json:"rejected"`
}

// Store defines persistence behaviour for the ledger. A negative priority
// passed to Summary or ListRecent means "all slots".
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Summary(ctx context.Context, priority int) (Summary, error)
	ListRecent(ctx context.Context, priority int, limit int) ([]Entry, error)
	Close() error
}
