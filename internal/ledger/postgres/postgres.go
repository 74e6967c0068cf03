package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tokligence/flowshaper/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger store using the provided DSN and
// connection pool settings. Zero pool values keep the driver defaults.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
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
	id BIGSERIAL PRIMARY KEY,
	item_id TEXT NOT NULL,
	priority INT NOT NULL,
	bytes BIGINT NOT NULL,
	outcome TEXT NOT NULL CHECK(outcome IN ('dispatched','dropped','rejected')),
	wait_micros BIGINT NOT NULL DEFAULT 0,
	memo TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
VALUES ($1, $2, $3, $4, $5, $6)`
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
WHERE ($1 < 0 OR priority = $1)`
	var sum ledger.Summary
	err := s.db.QueryRowContext(ctx, query, priority).
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
WHERE ($1 < 0 OR priority = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, priority, limit)
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
