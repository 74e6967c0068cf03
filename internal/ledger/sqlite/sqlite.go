package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tokligence/flowshaper/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS shaping_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id TEXT NOT NULL,
	priority INTEGER NOT NULL,
	bytes INTEGER NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('dispatched','dropped','rejected')),
	wait_micros INTEGER NOT NULL DEFAULT 0,
	memo TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_shaping_entries_priority_created ON shaping_entries(priority, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Record inserts one shaping decision.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	const query = `
INSERT INTO shaping_entries (item_id, priority, bytes, outcome, wait_micros, memo)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		entry.ItemID, entry.Priority, entry.Bytes, string(entry.Outcome), entry.WaitMicros, entry.Memo); err != nil {
		return fmt.Errorf("record shaping entry: %w", err)
	}
	return nil
}

// Summary aggregates decisions for one priority, or all when priority < 0.
func (s *Store) Summary(ctx context.Context, priority int) (ledger.Summary, error) {
	const query = `
SELECT
	COALESCE(SUM(CASE WHEN outcome = 'dispatched' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = 'dispatched' THEN bytes ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = 'dropped' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END), 0)
FROM shaping_entries
WHERE (? < 0 OR priority = ?)`
	var sum ledger.Summary
	err := s.db.QueryRowContext(ctx, query, priority, priority).
		Scan(&sum.Dispatched, &sum.DispatchedBytes, &sum.Dropped, &sum.Rejected)
	if err != nil {
		return ledger.Summary{}, fmt.Errorf("summarize shaping entries: %w", err)
	}
	return sum, nil
}

// ListRecent returns the most recent entries for one priority, or all when
// priority < 0.
func (s *Store) ListRecent(ctx context.Context, priority int, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, item_id, priority, bytes, outcome, wait_micros, COALESCE(memo, ''), created_at
FROM shaping_entries
WHERE (? < 0 OR priority = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, priority, priority, limit)
	if err != nil {
		return nil, fmt.Errorf("list shaping entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var entry ledger.Entry
		var outcome string
		if err := rows.Scan(&entry.ID, &entry.ItemID, &entry.Priority, &entry.Bytes,
			&outcome, &entry.WaitMicros, &entry.Memo, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shaping entry: %w", err)
		}
		entry.Outcome = ledger.Outcome(outcome)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
