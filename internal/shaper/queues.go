package shaper

import (
	"errors"
	"fmt"
)

// ErrInvalidPriority is returned by Enqueue when the priority is outside
// the configured range. It is the only runtime error at this layer.
var ErrInvalidPriority = errors.New("shaper: invalid priority")

// PriorityQueues composes a fixed array of MaxPriorities priority queues
// behind one scheduling policy. Slots at or above the configured maximum
// stay dormant: construction sizes all eight, configuration decides how
// many accept traffic.
//
// The container owns its child queues and exactly one scheduler. It is not
// internally synchronized; see the package comment.
type PriorityQueues[P any] struct {
	scheduling Scheduler
	queues     [MaxPriorities]*PriorityQueue[P]
	maxPrio    Priority
	sizeFn     SizeFunc[P]
	size       uint64
	length     uint64
}

// New creates an empty container with maxPrio active slots (1..8). The
// scheduler is attached separately via SetScheduling.
func New[P any](maxPrio Priority, sizeFn SizeFunc[P]) (*PriorityQueues[P], error) {
	if maxPrio < 1 || maxPrio > MaxPriorities {
		return nil, fmt.Errorf("shaper: max priority %d out of range [1, %d]", maxPrio, MaxPriorities)
	}
	if sizeFn == nil {
		return nil, errors.New("shaper: nil size projection")
	}
	pqs := &PriorityQueues[P]{maxPrio: maxPrio, sizeFn: sizeFn}
	for prio := Priority(0); prio < MaxPriorities; prio++ {
		pqs.queues[prio] = NewPriorityQueue(prio, sizeFn)
	}
	return pqs, nil
}

// SetScheduling replaces the owned scheduler. The prior scheduler is
// discarded. Must not be called while a dequeue is in progress.
func (pqs *PriorityQueues[P]) SetScheduling(s Scheduler) {
	pqs.scheduling = s
}

// MaxPriority returns the number of active priority slots.
func (pqs *PriorityQueues[P]) MaxPriority() Priority {
	return pqs.maxPrio
}

// CanDequeue reports whether the queue at prio is eligible: non-empty and
// not rate limited. Part of the QueueStates view consumed by schedulers.
func (pqs *PriorityQueues[P]) CanDequeue(prio Priority) bool {
	return pqs.queues[prio].CanDequeue()
}

// Queue borrows the child queue at prio. Used at wiring time to attach
// rate limiters.
func (pqs *PriorityQueues[P]) Queue(prio Priority) *PriorityQueue[P] {
	if prio >= MaxPriorities {
		panic(fmt.Sprintf("shaper: queue index P%d out of range", prio))
	}
	return pqs.queues[prio]
}

// Enqueue wraps payload in an element and queues it at prio.
func (pqs *PriorityQueues[P]) Enqueue(prio Priority, payload P) error {
	return pqs.EnqueueElement(prio, NewElement(prio, payload))
}

// EnqueueElement queues an already-wrapped element at prio. Returns
// ErrInvalidPriority, leaving all state untouched, when prio is not an
// active slot. The scheduler's enqueue trigger fires before the child
// queue observes the element.
func (pqs *PriorityQueues[P]) EnqueueElement(prio Priority, e Element[P]) error {
	if prio >= pqs.maxPrio {
		return fmt.Errorf("%w: P%d with %d active levels", ErrInvalidPriority, prio, pqs.maxPrio)
	}
	pqs.mustScheduling().EnqueueTrigger(prio)
	pqs.size += pqs.sizeFn(e.Payload)
	pqs.length++
	pqs.queues[prio].Enqueue(e)
	return nil
}

// Dequeue asks the scheduler for the next eligible slot and pops its head.
// When no slot is eligible it returns the sentinel element; that is an
// empty result, not an error.
func (pqs *PriorityQueues[P]) Dequeue() Element[P] {
	next := pqs.mustScheduling().GetNextPriority()
	if next == NullPriority {
		return NullElement[P]()
	}
	e := pqs.queues[next].Dequeue()
	pqs.scheduling.DequeueTrigger(next)

	sz := pqs.sizeFn(e.Payload)
	if pqs.size < sz || pqs.length == 0 {
		panic(fmt.Sprintf("shaper: aggregate accounting underflow popping P%d", next))
	}
	pqs.size -= sz
	pqs.length--
	return e
}

// AvailableTime returns the minimum over all child queues' AvailableTime.
// A finite answer means some limiter is currently pacing a queue.
func (pqs *PriorityQueues[P]) AvailableTime() uint64 {
	available := MaxTime
	for prio := Priority(0); prio < MaxPriorities; prio++ {
		if t := pqs.queues[prio].AvailableTime(); t < available {
			available = t
		}
	}
	return available
}

// QueuingSize returns the aggregate byte size across all slots.
func (pqs *PriorityQueues[P]) QueuingSize() uint64 {
	return pqs.size
}

// QueuingLength returns the aggregate element count across all slots.
func (pqs *PriorityQueues[P]) QueuingLength() uint64 {
	return pqs.length
}

// QueuingSizeAt returns the byte size queued at one slot.
func (pqs *PriorityQueues[P]) QueuingSizeAt(prio Priority) uint64 {
	return pqs.Queue(prio).Size()
}

// QueuingLengthAt returns the element count queued at one slot.
func (pqs *PriorityQueues[P]) QueuingLengthAt(prio Priority) int {
	return pqs.Queue(prio).Length()
}

func (pqs *PriorityQueues[P]) mustScheduling() Scheduler {
	if pqs.scheduling == nil {
		panic("shaper: no scheduling policy attached")
	}
	return pqs.scheduling
}
