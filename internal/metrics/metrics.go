// Package metrics collects shaper counters for the admin API and the
// Prometheus endpoint. This implementation uses manual metric tracking
// without external dependencies. For production, consider integrating
// prometheus/client_golang.
package metrics

import (
	"sync"
	"time"

	"github.com/tokligence/flowshaper/internal/shaper"
)

// Collector accumulates shaping counters per priority slot.
type Collector struct {
	mu sync.RWMutex

	enqueued        [shaper.MaxPriorities]int64
	dispatched      [shaper.MaxPriorities]int64
	dispatchedBytes [shaper.MaxPriorities]int64
	rejected        int64
	dropped         int64

	// Last observed queue state, refreshed by the shaper pump.
	queueDepth [shaper.MaxPriorities]int64
	queueBytes [shaper.MaxPriorities]int64

	startTime time.Time
}

// NewCollector creates a collector anchored at the current instant.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordEnqueued counts one accepted enqueue at prio.
func (c *Collector) RecordEnqueued(prio shaper.Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueued[prio]++
}

// RecordDispatched counts one dispatched element of the given byte size.
func (c *Collector) RecordDispatched(prio shaper.Priority, bytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatched[prio]++
	c.dispatchedBytes[prio] += int64(bytes)
}

// RecordRejected counts one enqueue rejected for an invalid priority.
func (c *Collector) RecordRejected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
}

// RecordDropped counts one item dropped before dispatch.
func (c *Collector) RecordDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
}

// ObserveQueue refreshes the depth/bytes gauges for one slot.
func (c *Collector) ObserveQueue(prio shaper.Priority, depth int, bytes uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepth[prio] = int64(depth)
	c.queueBytes[prio] = int64(bytes)
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	UptimeSeconds   int64                           `json:"uptime_seconds"`
	Enqueued        [shaper.MaxPriorities]int64     `json:"enqueued"`
	Dispatched      [shaper.MaxPriorities]int64     `json:"dispatched"`
	DispatchedBytes [shaper.MaxPriorities]int64     `json:"dispatched_bytes"`
	QueueDepth      [shaper.MaxPriorities]int64     `json:"queue_depth"`
	QueueBytes      [shaper.MaxPriorities]int64     `json:"queue_bytes"`
	Rejected        int64                           `json:"rejected"`
	Dropped         int64                           `json:"dropped"`
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		UptimeSeconds:   int64(time.Since(c.startTime).Seconds()),
		Enqueued:        c.enqueued,
		Dispatched:      c.dispatched,
		DispatchedBytes: c.dispatchedBytes,
		QueueDepth:      c.queueDepth,
		QueueBytes:      c.queueBytes,
		Rejected:        c.rejected,
		Dropped:         c.dropped,
	}
}
