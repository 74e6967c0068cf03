package shaper

import "fmt"

// PriorityQueue is a FIFO of elements at one priority level, gated by an
// ordered list of rate limiters. It tracks the cumulative byte size of the
// elements it holds, using the size projection it was built with.
//
// The queue borrows its limiters; they must outlive it.
type PriorityQueue[P any] struct {
	prio     Priority
	size     uint64
	sizeFn   SizeFunc[P]
	limiters []Limiter[P]
	elements []Element[P]
}

// NewPriorityQueue creates an empty queue for the given priority slot.
func NewPriorityQueue[P any](prio Priority, sizeFn SizeFunc[P]) *PriorityQueue[P] {
	if sizeFn == nil {
		panic("shaper: nil size projection")
	}
	return &PriorityQueue[P]{prio: prio, sizeFn: sizeFn}
}

// Priority returns the slot this queue serves.
func (q *PriorityQueue[P]) Priority() Priority {
	return q.prio
}

// Enqueue appends e, firing EnqueueTrigger on each limiter in order before
// the append. Enqueue cannot fail at this layer.
func (q *PriorityQueue[P]) Enqueue(e Element[P]) {
	for _, limiter := range q.limiters {
		limiter.EnqueueTrigger(e)
	}
	q.elements = append(q.elements, e)
	q.size += q.sizeFn(e.Payload)
}

// CanDequeue reports whether the queue is non-empty and no limiter vetoes
// dispatch.
func (q *PriorityQueue[P]) CanDequeue() bool {
	if len(q.elements) == 0 {
		return false
	}
	for _, limiter := range q.limiters {
		if limiter.IsLimited() {
			return false
		}
	}
	return true
}

// Dequeue pops the head, firing DequeueTrigger on each limiter in order.
// The caller must have verified CanDequeue; popping an empty queue is a
// programmer error and panics.
func (q *PriorityQueue[P]) Dequeue() Element[P] {
	if len(q.elements) == 0 {
		panic(fmt.Sprintf("shaper: dequeue from empty queue P%d", q.prio))
	}
	head := q.elements[0]

	for _, limiter := range q.limiters {
		limiter.DequeueTrigger(head)
	}

	sz := q.sizeFn(head.Payload)
	if q.size < sz {
		panic(fmt.Sprintf("shaper: size underflow on queue P%d (have %d, popping %d)", q.prio, q.size, sz))
	}
	q.size -= sz
	q.elements = q.elements[1:]
	return head
}

// Peek returns the head element without removing it, and whether one exists.
// Limiters may use it to price the next dispatch.
func (q *PriorityQueue[P]) Peek() (Element[P], bool) {
	if len(q.elements) == 0 {
		return NullElement[P](), false
	}
	return q.elements[0], true
}

// AddRateLimiter appends l to the limiter list and wires its back-reference.
func (q *PriorityQueue[P]) AddRateLimiter(l Limiter[P]) {
	l.SetQueue(q)
	q.limiters = append(q.limiters, l)
}

// AvailableTime returns the minimum of the limiters' AvailableTime, or
// MaxTime when the queue has no limiters.
func (q *PriorityQueue[P]) AvailableTime() uint64 {
	available := MaxTime
	for _, limiter := range q.limiters {
		if t := limiter.AvailableTime(); t < available {
			available = t
		}
	}
	return available
}

// Size returns the cumulative byte size of the queued elements.
func (q *PriorityQueue[P]) Size() uint64 {
	return q.size
}

// Length returns the number of queued elements.
func (q *PriorityQueue[P]) Length() int {
	return len(q.elements)
}
