package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tokligence/flowshaper/internal/ledger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndSummary(t *testing.T) {
	t.Log("===== TEST: shaping decisions aggregate per priority =====")

	s := newStore(t)
	ctx := context.Background()

	entries := []ledger.Entry{
		{ItemID: "a", Priority: 0, Bytes: 100, Outcome: ledger.OutcomeDispatched, WaitMicros: 1500},
		{ItemID: "b", Priority: 0, Bytes: 250, Outcome: ledger.OutcomeDispatched},
		{ItemID: "c", Priority: 1, Bytes: 50, Outcome: ledger.OutcomeDispatched},
		{ItemID: "d", Priority: 1, Bytes: 10, Outcome: ledger.OutcomeRejected, Memo: "invalid priority"},
		{ItemID: "e", Priority: 0, Bytes: 75, Outcome: ledger.OutcomeDropped},
	}
	for _, entry := range entries {
		if err := s.Record(ctx, entry); err != nil {
			t.Fatalf("record %s: %v", entry.ItemID, err)
		}
	}

	sum, err := s.Summary(ctx, 0)
	if err != nil {
		t.Fatalf("summary P0: %v", err)
	}
	if sum.Dispatched != 2 || sum.DispatchedBytes != 350 || sum.Dropped != 1 {
		t.Errorf("P0 summary=%+v, want 2 dispatched / 350 bytes / 1 dropped", sum)
	}

	all, err := s.Summary(ctx, -1)
	if err != nil {
		t.Fatalf("summary all: %v", err)
	}
	if all.Dispatched != 3 || all.Rejected != 1 {
		t.Errorf("overall summary=%+v, want 3 dispatched / 1 rejected", all)
	}
}

func TestStore_ListRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := ledger.Entry{ItemID: string(rune('a' + i)), Priority: i % 2, Bytes: int64(i), Outcome: ledger.OutcomeDispatched}
		if err := s.Record(ctx, entry); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	recent, err := s.ListRecent(ctx, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	for _, entry := range recent {
		if entry.Priority != 0 {
			t.Errorf("entry %s has priority %d, want 0", entry.ItemID, entry.Priority)
		}
		if entry.Outcome != ledger.OutcomeDispatched {
			t.Errorf("entry %s outcome=%s", entry.ItemID, entry.Outcome)
		}
	}

	all, err := s.ListRecent(ctx, -1, 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("got %d entries, want 5", len(all))
	}
}
