// Package pump owns a shaper container from a single goroutine. The
// container itself is not synchronized; the pump serializes every
// operation on it, paces dispatches by the container's AvailableTime,
// and publishes read-only snapshots for the admin API.
package pump

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tokligence/flowshaper/internal/ledger"
	"github.com/tokligence/flowshaper/internal/metrics"
	"github.com/tokligence/flowshaper/internal/shaper"
)

// Item is the unit of traffic the daemon shapes: an opaque payload with a
// caller-assigned id. Enqueued carries the admission timestamp in clock
// microseconds.
type Item struct {
	ID       string
	Payload  []byte
	Enqueued uint64
}

// ItemSize is the size projection for Item: payload byte length.
func ItemSize(item Item) uint64 {
	return uint64(len(item.Payload))
}

// QueueSnapshot describes one priority slot at snapshot time.
type QueueSnapshot struct {
	Priority    int    `json:"priority"`
	Length      int    `json:"length"`
	Bytes       uint64 `json:"bytes"`
	Eligible    bool   `json:"eligible"`
	RateLimited bool   `json:"rate_limited"`
}

// Snapshot is a point-in-time view of the container, published after each
// batch of pump operations.
type Snapshot struct {
	Policy          string          `json:"policy"`
	MaxPriority     int             `json:"max_priority"`
	QueuedLength    uint64          `json:"queued_length"`
	QueuedBytes     uint64          `json:"queued_bytes"`
	AvailableMicros uint64          `json:"available_micros"`
	Queues          []QueueSnapshot `json:"queues"`
}

// Dispatch receives every element the shaper releases, in dispatch order,
// from the pump goroutine.
type Dispatch func(item Item, prio shaper.Priority)

// Options wires a Pump.
type Options struct {
	Shaper   *shaper.PriorityQueues[Item]
	Clock    shaper.Clock
	Ledger   ledger.Store       // optional
	Metrics  *metrics.Collector // optional
	Dispatch Dispatch           // optional
	// InFlightLimit bounds enqueue requests waiting for the pump goroutine.
	InFlightLimit int
}

type enqueueReq struct {
	prio   shaper.Priority
	item   Item
	result chan error
}

// Pump drives one shaper container.
type Pump struct {
	shaper    *shaper.PriorityQueues[Item]
	clock     shaper.Clock
	ledger    ledger.Store
	collector *metrics.Collector
	dispatch  Dispatch

	in     chan enqueueReq
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a pump; Start launches its goroutine.
func New(opts Options) (*Pump, error) {
	if opts.Shaper == nil || opts.Clock == nil {
		return nil, errors.New("pump: shaper and clock are required")
	}
	if opts.InFlightLimit <= 0 {
		opts.InFlightLimit = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pump{
		shaper:    opts.Shaper,
		clock:     opts.Clock,
		ledger:    opts.Ledger,
		collector: opts.Metrics,
		dispatch:  opts.Dispatch,
		in:        make(chan enqueueReq, opts.InFlightLimit),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.publishSnapshot()
	return p, nil
}

// Start launches the pump goroutine.
func (p *Pump) Start() {
	p.wg.Add(1)
	go p.run()
}

// Enqueue hands an item to the pump goroutine and waits for the admission
// verdict. Returns shaper.ErrInvalidPriority for out-of-range priorities.
func (p *Pump) Enqueue(ctx context.Context, prio shaper.Priority, item Item) error {
	req := enqueueReq{prio: prio, item: item, result: make(chan error, 1)}
	select {
	case p.in <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return errors.New("pump: shut down")
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShaperSnapshot returns the latest published container view.
func (p *Pump) ShaperSnapshot() Snapshot {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snap
}

// Shutdown stops the pump goroutine and reports items left behind.
func (p *Pump) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pump) run() {
	defer p.wg.Done()

	for {
		p.drainEligible()
		p.publishSnapshot()

		timer := time.NewTimer(p.nextWake())
		select {
		case <-p.ctx.Done():
			timer.Stop()
			p.failPending()
			p.reportRemaining()
			return
		case req := <-p.in:
			timer.Stop()
			req.result <- p.handleEnqueue(req)
		case <-timer.C:
		}
	}
}

// drainEligible dispatches everything the scheduler will currently release.
func (p *Pump) drainEligible() {
	for {
		e := p.shaper.Dequeue()
		if e.IsNull() {
			return
		}
		now := p.clock.NowMicros()
		waited := now - e.Payload.Enqueued

		if p.collector != nil {
			p.collector.RecordDispatched(e.Prio, ItemSize(e.Payload))
		}
		p.record(ledger.Entry{
			ItemID:     e.Payload.ID,
			Priority:   int(e.Prio),
			Bytes:      int64(ItemSize(e.Payload)),
			Outcome:    ledger.OutcomeDispatched,
			WaitMicros: int64(waited),
		})
		if p.dispatch != nil {
			p.dispatch(e.Payload, e.Prio)
		}
	}
}

func (p *Pump) handleEnqueue(req enqueueReq) error {
	req.item.Enqueued = p.clock.NowMicros()
	err := p.shaper.Enqueue(req.prio, req.item)
	switch {
	case err == nil:
		if p.collector != nil {
			p.collector.RecordEnqueued(req.prio)
		}
		return nil
	case errors.Is(err, shaper.ErrInvalidPriority):
		if p.collector != nil {
			p.collector.RecordRejected()
		}
		p.record(ledger.Entry{
			ItemID:   req.item.ID,
			Priority: int(req.prio),
			Bytes:    int64(ItemSize(req.item)),
			Outcome:  ledger.OutcomeRejected,
			Memo:     err.Error(),
		})
		return err
	default:
		return err
	}
}

// nextWake sleeps until the earliest limiter unblock, with a floor so a
// past timestamp fires immediately and a cap so shutdown stays responsive.
func (p *Pump) nextWake() time.Duration {
	available := p.shaper.AvailableTime()
	if available == shaper.MaxTime {
		return time.Second
	}
	now := p.clock.NowMicros()
	if available <= now {
		return time.Millisecond
	}
	wait := time.Duration(available-now) * time.Microsecond
	if wait > time.Second {
		wait = time.Second
	}
	return wait
}

func (p *Pump) publishSnapshot() {
	snap := Snapshot{
		Policy:          p.policyName(),
		MaxPriority:     int(p.shaper.MaxPriority()),
		QueuedLength:    p.shaper.QueuingLength(),
		QueuedBytes:     p.shaper.QueuingSize(),
		AvailableMicros: p.shaper.AvailableTime(),
	}
	for prio := shaper.Priority(0); prio < p.shaper.MaxPriority(); prio++ {
		length := p.shaper.QueuingLengthAt(prio)
		bytes := p.shaper.QueuingSizeAt(prio)
		eligible := p.shaper.CanDequeue(prio)
		snap.Queues = append(snap.Queues, QueueSnapshot{
			Priority:    int(prio),
			Length:      length,
			Bytes:       bytes,
			Eligible:    eligible,
			RateLimited: length > 0 && !eligible,
		})
		if p.collector != nil {
			p.collector.ObserveQueue(prio, length, bytes)
		}
	}
	p.snapMu.Lock()
	p.snap = snap
	p.snapMu.Unlock()
}

func (p *Pump) policyName() string {
	// The container does not expose its scheduler; the policy is carried
	// on the snapshot for operators, best effort.
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snap.Policy
}

// SetPolicyName records the configured policy label shown in snapshots.
func (p *Pump) SetPolicyName(name string) {
	p.snapMu.Lock()
	p.snap.Policy = name
	p.snapMu.Unlock()
}

// failPending answers enqueue requests that were still in flight when the
// pump stopped, so no caller blocks forever.
func (p *Pump) failPending() {
	for {
		select {
		case req := <-p.in:
			req.result <- errors.New("pump: shut down")
		default:
			return
		}
	}
}

func (p *Pump) reportRemaining() {
	remaining := p.shaper.QueuingLength()
	if remaining == 0 {
		return
	}
	log.Printf("[WARN] pump: shutting down with %d items still queued (%d bytes)",
		remaining, p.shaper.QueuingSize())
	if p.collector != nil {
		for i := uint64(0); i < remaining; i++ {
			p.collector.RecordDropped()
		}
	}
}

func (p *Pump) record(entry ledger.Entry) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(context.Background(), entry); err != nil {
		log.Printf("[WARN] pump: ledger record failed for %s: %v", entry.ItemID, err)
	}
}

// String implements fmt.Stringer for diagnostics.
func (p *Pump) String() string {
	snap := p.ShaperSnapshot()
	return fmt.Sprintf("pump(policy=%s queued=%d bytes=%d)", snap.Policy, snap.QueuedLength, snap.QueuedBytes)
}
