// Package async wraps a ledger.Store with buffered batch writes so the
// shaper's dispatch path never waits on the database.
package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tokligence/flowshaper/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batch writes. Entries are
// queued in memory and written in batches to reduce database load.
// WARNING: entries may be lost if the process crashes before flushing.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopOnce      sync.Once
	stopChan      chan struct{}
	logger        *log.Logger
}

// Config configures the async ledger behavior.
type Config struct {
	BatchSize     int           // Maximum entries per batch (default: 100)
	FlushInterval time.Duration // Maximum time between flushes (default: 1s)
	ChannelBuffer int           // Channel buffer size (default: 10000)
	Logger        *log.Logger   // Optional logger for diagnostics
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 10000
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}

	s.wg.Add(1)
	go s.batchWriter()
	return s
}

func (s *Store) batchWriter() {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil && s.logger != nil {
				s.logger.Printf("[async-ledger] ERROR writing entry for %s: %v", entry.ItemID, err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// Drain whatever is still buffered, then stop.
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record queues an entry for asynchronous writing. It never blocks; when
// the buffer is full the entry is dropped with a warning.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	select {
	case s.entryChan <- entry:
		return nil
	default:
		if s.logger != nil {
			s.logger.Printf("[async-ledger] WARNING: buffer full, dropping entry for %s", entry.ItemID)
		}
		return nil
	}
}

// Summary delegates to the underlying store.
func (s *Store) Summary(ctx context.Context, priority int) (ledger.Summary, error) {
	return s.underlying.Summary(ctx, priority)
}

// ListRecent delegates to the underlying store.
func (s *Store) ListRecent(ctx context.Context, priority int, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, priority, limit)
}

// Close flushes buffered entries and closes the underlying store.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	return s.underlying.Close()
}
