package shaper

// Limiter is the contract a rate limiter must honor to gate a priority
// queue. Implementations live outside the core; internal/ratelimit ships
// token-bucket, leaky-bucket and sliding-window kinds.
//
// A queue with several limiters is limited when ANY of them reports
// limited. Limiter order inside a queue matters only for the order of
// trigger side effects.
type Limiter[P any] interface {
	// IsLimited reports whether the owning queue is currently forbidden
	// from dispatching. Must be O(1) expected and must not mutate state
	// beyond clock-driven internal bookkeeping.
	IsLimited() bool

	// EnqueueTrigger observes that e was just appended to the owning queue.
	EnqueueTrigger(e Element[P])

	// DequeueTrigger observes that e was just popped from the owning queue.
	DequeueTrigger(e Element[P])

	// AvailableTime returns the earliest clock timestamp in microseconds at
	// which IsLimited could become false without further dequeues. MaxTime
	// means unknown or never given current inputs. Repeated calls at the
	// same clock value return the same answer unless a trigger intervened.
	AvailableTime() uint64

	// SetQueue wires the back-reference to the owning queue. Called once at
	// wiring time, before the queue is used. Implementations that do not
	// need to inspect the queue may ignore it.
	SetQueue(q *PriorityQueue[P])
}
