package ratelimit

import (
	"github.com/tokligence/flowshaper/internal/shaper"
)

// SlidingWindow caps the number of dispatches inside a rolling time
// window. Dispatch timestamps are kept until they age out; the queue is
// limited while the window is full.
type SlidingWindow[P any] struct {
	clock       shaper.Clock
	windowMicro uint64
	maxEvents   int
	events      []uint64 // dispatch timestamps, ascending
	queue       *shaper.PriorityQueue[P]
}

// NewSlidingWindow creates a limiter admitting at most maxEvents dispatches
// per windowMicro microseconds.
func NewSlidingWindow[P any](clock shaper.Clock, windowMicro uint64, maxEvents int) *SlidingWindow[P] {
	if clock == nil {
		panic("ratelimit: sliding window needs a clock")
	}
	if windowMicro == 0 || maxEvents < 1 {
		panic("ratelimit: sliding window needs a positive window and at least one event")
	}
	return &SlidingWindow[P]{
		clock:       clock,
		windowMicro: windowMicro,
		maxEvents:   maxEvents,
	}
}

// SetQueue satisfies the limiter contract; the window does not inspect its
// queue.
func (sw *SlidingWindow[P]) SetQueue(q *shaper.PriorityQueue[P]) {
	sw.queue = q
}

// IsLimited reports whether the window already holds its maximum.
func (sw *SlidingWindow[P]) IsLimited() bool {
	sw.prune()
	return len(sw.events) >= sw.maxEvents
}

// EnqueueTrigger is a no-op.
func (sw *SlidingWindow[P]) EnqueueTrigger(e shaper.Element[P]) {}

// DequeueTrigger records the dispatch timestamp.
func (sw *SlidingWindow[P]) DequeueTrigger(e shaper.Element[P]) {
	sw.prune()
	sw.events = append(sw.events, sw.clock.NowMicros())
}

// AvailableTime returns when the oldest blocking dispatch ages out of the
// window, or MaxTime when the window has room.
func (sw *SlidingWindow[P]) AvailableTime() uint64 {
	sw.prune()
	if len(sw.events) < sw.maxEvents {
		return shaper.MaxTime
	}
	oldest := sw.events[len(sw.events)-sw.maxEvents]
	return oldest + sw.windowMicro
}

func (sw *SlidingWindow[P]) prune() {
	now := sw.clock.NowMicros()
	cut := 0
	for cut < len(sw.events) && sw.events[cut]+sw.windowMicro <= now {
		cut++
	}
	if cut > 0 {
		sw.events = append(sw.events[:0], sw.events[cut:]...)
	}
}
