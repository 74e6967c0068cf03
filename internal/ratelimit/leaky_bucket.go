package ratelimit

import (
	"math"

	"github.com/tokligence/flowshaper/internal/shaper"
)

// LeakyBucket paces dispatches at a fixed sustained rate with a bounded
// burst. Every dispatch pours one unit into the bucket; the bucket drains
// at drainRate units per second; dispatch is vetoed while one more unit
// would overflow the burst depth.
type LeakyBucket[P any] struct {
	clock     shaper.Clock
	drainRate float64 // dispatches per second
	burst     float64 // bucket depth in dispatches
	level     float64
	lastDrain uint64
	queue     *shaper.PriorityQueue[P]
}

// NewLeakyBucket creates a leaky bucket limiter allowing bursts of up to
// burst dispatches and a sustained rate of dispatchesPerSec.
func NewLeakyBucket[P any](clock shaper.Clock, dispatchesPerSec, burst float64) *LeakyBucket[P] {
	if clock == nil {
		panic("ratelimit: leaky bucket needs a clock")
	}
	if dispatchesPerSec <= 0 || burst < 1 {
		panic("ratelimit: leaky bucket rate must be positive and burst at least 1")
	}
	return &LeakyBucket[P]{
		clock:     clock,
		drainRate: dispatchesPerSec,
		burst:     burst,
		lastDrain: clock.NowMicros(),
	}
}

// SetQueue satisfies the limiter contract; the bucket does not inspect its
// queue.
func (lb *LeakyBucket[P]) SetQueue(q *shaper.PriorityQueue[P]) {
	lb.queue = q
}

// IsLimited reports whether one more dispatch would overflow the bucket.
func (lb *LeakyBucket[P]) IsLimited() bool {
	lb.drain()
	return lb.level+1 > lb.burst
}

// EnqueueTrigger is a no-op.
func (lb *LeakyBucket[P]) EnqueueTrigger(e shaper.Element[P]) {}

// DequeueTrigger pours one dispatch into the bucket.
func (lb *LeakyBucket[P]) DequeueTrigger(e shaper.Element[P]) {
	lb.drain()
	lb.level++
}

// AvailableTime returns when the bucket will have drained enough to admit
// one dispatch, or MaxTime when it already can.
func (lb *LeakyBucket[P]) AvailableTime() uint64 {
	lb.drain()
	excess := lb.level + 1 - lb.burst
	if excess <= 0 {
		return shaper.MaxTime
	}
	waitMicros := uint64(math.Ceil(excess / lb.drainRate * 1e6))
	return lb.lastDrain + waitMicros
}

func (lb *LeakyBucket[P]) drain() {
	now := lb.clock.NowMicros()
	if now <= lb.lastDrain {
		return
	}
	elapsed := float64(now-lb.lastDrain) / 1e6
	lb.level = math.Max(0, lb.level-elapsed*lb.drainRate)
	lb.lastDrain = now
}
