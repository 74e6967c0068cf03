// Package ratelimit ships concrete rate limiters implementing the shaper
// limiter contract: a byte-budget token bucket, a dispatch-paced leaky
// bucket, and a sliding-window counter. All of them read time exclusively
// through the shaper clock, so tests drive them with a manual clock.
package ratelimit

import (
	"math"

	"github.com/tokligence/flowshaper/internal/shaper"
)

// TokenBucket gates a queue on a byte budget. The bucket refills at a
// constant rate and allows bursts up to its capacity; each dispatched
// element debits its byte size. The bucket may go negative when an element
// is larger than the remaining balance, which pushes the next unblock time
// out proportionally.
type TokenBucket[P any] struct {
	clock      shaper.Clock
	sizeFn     shaper.SizeFunc[P]
	capacity   float64 // burst size in bytes
	refillRate float64 // bytes per second
	tokens     float64
	lastRefill uint64
	queue      *shaper.PriorityQueue[P]
}

// NewTokenBucket creates a token bucket limiter.
//   - capacityBytes: maximum balance (burst size)
//   - bytesPerSec: sustained refill rate
//
// The bucket starts full.
func NewTokenBucket[P any](clock shaper.Clock, sizeFn shaper.SizeFunc[P], capacityBytes, bytesPerSec float64) *TokenBucket[P] {
	if clock == nil || sizeFn == nil {
		panic("ratelimit: token bucket needs a clock and a size projection")
	}
	if capacityBytes <= 0 || bytesPerSec <= 0 {
		panic("ratelimit: token bucket capacity and rate must be positive")
	}
	return &TokenBucket[P]{
		clock:      clock,
		sizeFn:     sizeFn,
		capacity:   capacityBytes,
		refillRate: bytesPerSec,
		tokens:     capacityBytes,
		lastRefill: clock.NowMicros(),
	}
}

// SetQueue wires the owning queue; the bucket peeks at the queue head to
// price the next dispatch.
func (tb *TokenBucket[P]) SetQueue(q *shaper.PriorityQueue[P]) {
	tb.queue = q
}

// IsLimited reports whether the balance cannot cover the next dispatch.
func (tb *TokenBucket[P]) IsLimited() bool {
	tb.refill()
	return tb.tokens < tb.nextCost()
}

// EnqueueTrigger is a no-op; the bucket debits on dispatch.
func (tb *TokenBucket[P]) EnqueueTrigger(e shaper.Element[P]) {}

// DequeueTrigger debits the dispatched element's byte size.
func (tb *TokenBucket[P]) DequeueTrigger(e shaper.Element[P]) {
	tb.refill()
	tb.tokens -= float64(tb.sizeFn(e.Payload))
}

// AvailableTime returns when the balance will next cover a dispatch, or
// MaxTime when it already does.
func (tb *TokenBucket[P]) AvailableTime() uint64 {
	tb.refill()
	deficit := tb.nextCost() - tb.tokens
	if deficit <= 0 {
		return shaper.MaxTime
	}
	waitMicros := uint64(math.Ceil(deficit / tb.refillRate * 1e6))
	return tb.lastRefill + waitMicros
}

// nextCost prices the next dispatch: the byte size of the queue head when
// one is visible, one byte otherwise.
func (tb *TokenBucket[P]) nextCost() float64 {
	if tb.queue != nil {
		if head, ok := tb.queue.Peek(); ok {
			return float64(tb.sizeFn(head.Payload))
		}
	}
	return 1
}

func (tb *TokenBucket[P]) refill() {
	now := tb.clock.NowMicros()
	if now <= tb.lastRefill {
		return
	}
	elapsed := float64(now-tb.lastRefill) / 1e6
	tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}
