package shaper

import "fmt"

// Policy enumerates the shipped scheduling disciplines.
type Policy uint8

const (
	PolicyRoundRobin Policy = iota
	PolicyStrictPriority
	PolicyWFQ
)

func (p Policy) String() string {
	switch p {
	case PolicyRoundRobin:
		return "rr"
	case PolicyStrictPriority:
		return "strict"
	case PolicyWFQ:
		return "wfq"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// QueueStates is the view a scheduler has of its container: per-slot
// eligibility plus the number of active slots. PriorityQueues implements
// it; schedulers hold the view rather than the container so they stay
// independent of the payload type.
type QueueStates interface {
	CanDequeue(prio Priority) bool
	MaxPriority() Priority
}

// Scheduler picks the next priority slot to serve and observes enqueue and
// dequeue events to keep its own state current.
type Scheduler interface {
	// GetNextPriority returns an eligible slot, or NullPriority when none
	// is. It may move the scheduler's cursor to the returned slot but must
	// be stable: repeated calls with no intervening trigger agree.
	GetNextPriority() Priority

	// EnqueueTrigger observes a successful enqueue at prio. Fired on every
	// successful enqueue.
	EnqueueTrigger(prio Priority)

	// DequeueTrigger observes that a dequeue actually occurred at prio.
	// Must be called iff an element was popped.
	DequeueTrigger(prio Priority)

	// Policy identifies the discipline.
	Policy() Policy
}

// RoundRobin serves eligible slots in rotation. Each eligible slot is
// visited at most once per rotation; a slot starves only while it is
// perpetually rate limited.
type RoundRobin struct {
	states   QueueStates
	maxPrio  Priority
	lastPrio Priority
}

// NewRoundRobin creates a round-robin scheduler over states.
func NewRoundRobin(states QueueStates) *RoundRobin {
	return &RoundRobin{states: states, maxPrio: states.MaxPriority()}
}

func (s *RoundRobin) Policy() Policy { return PolicyRoundRobin }

// GetNextPriority scans forward from the cursor, modulo the active slot
// count, and returns the first slot that can dequeue.
func (s *RoundRobin) GetNextPriority() Priority {
	prio := s.lastPrio
	for scanned := Priority(0); scanned < s.maxPrio; scanned++ {
		if s.states.CanDequeue(prio) {
			s.lastPrio = prio
			return prio
		}
		prio = (prio + 1) % s.maxPrio
	}
	return NullPriority
}

func (s *RoundRobin) EnqueueTrigger(prio Priority) {}

// DequeueTrigger advances the cursor past the slot just served.
func (s *RoundRobin) DequeueTrigger(prio Priority) {
	if prio != s.lastPrio {
		panic(fmt.Sprintf("shaper: round-robin dequeue at P%d but cursor at P%d", prio, s.lastPrio))
	}
	s.lastPrio = (s.lastPrio + 1) % s.maxPrio
}

// StrictPriority always serves the most urgent eligible slot. Less urgent
// slots may starve indefinitely; that is the point of the discipline.
type StrictPriority struct {
	states  QueueStates
	maxPrio Priority
	endian  PriorityEndian
}

// NewStrictPriority creates a strict-priority scheduler with the default
// low-is-high endian.
func NewStrictPriority(states QueueStates) *StrictPriority {
	return NewStrictPriorityEndian(states, EndianLowIsHigh)
}

// NewStrictPriorityEndian creates a strict-priority scheduler scanning in
// the given priority direction.
func NewStrictPriorityEndian(states QueueStates, endian PriorityEndian) *StrictPriority {
	return &StrictPriority{states: states, maxPrio: states.MaxPriority(), endian: endian}
}

func (s *StrictPriority) Policy() Policy { return PolicyStrictPriority }

// GetNextPriority linearly scans the active slots in urgency order and
// returns the first that can dequeue.
func (s *StrictPriority) GetNextPriority() Priority {
	if s.endian == EndianHighIsLow {
		for prio := s.maxPrio; prio > 0; prio-- {
			if s.states.CanDequeue(prio - 1) {
				return prio - 1
			}
		}
		return NullPriority
	}
	for prio := Priority(0); prio < s.maxPrio; prio++ {
		if s.states.CanDequeue(prio) {
			return prio
		}
	}
	return NullPriority
}

func (s *StrictPriority) EnqueueTrigger(prio Priority) {}

func (s *StrictPriority) DequeueTrigger(prio Priority) {}

// WFQTokens is the per-slot service quantum vector for weighted fair
// queueing. A zero entry means the slot is skipped entirely.
type WFQTokens [MaxPriorities]uint8

// WFQ is credit-based weighted fair queueing: the cursor stays on a slot
// for tokens[slot] consecutive services before rotating. With every queue
// saturated the long-run service ratio of slot i approaches
// tokens[i] / sum(tokens).
type WFQ struct {
	states    QueueStates
	maxPrio   Priority
	lastPrio  Priority
	lastToken uint8
	tokens    WFQTokens
}

// NewWFQ creates a weighted fair queueing scheduler. Tokens default to one
// per slot (plain round robin) until SetTokens is called.
func NewWFQ(states QueueStates) *WFQ {
	s := &WFQ{states: states, maxPrio: states.MaxPriority()}
	for prio := range s.tokens {
		s.tokens[prio] = 1
	}
	return s
}

func (s *WFQ) Policy() Policy { return PolicyWFQ }

// SetTokens configures the per-slot service quanta.
func (s *WFQ) SetTokens(tokens WFQTokens) {
	s.tokens = tokens
	s.lastToken = 0
}

// Tokens returns the configured quanta.
func (s *WFQ) Tokens() WFQTokens {
	return s.tokens
}

// GetNextPriority scans forward from the cursor like round robin, skipping
// zero-token slots, and returns the first slot that can dequeue. Moving
// the cursor to a new slot starts a fresh quantum there.
func (s *WFQ) GetNextPriority() Priority {
	prio := s.lastPrio
	for scanned := Priority(0); scanned < s.maxPrio; scanned++ {
		if s.tokens[prio] > 0 && s.states.CanDequeue(prio) {
			if prio != s.lastPrio {
				s.lastToken = 0
			}
			s.lastPrio = prio
			return prio
		}
		prio = (prio + 1) % s.maxPrio
	}
	return NullPriority
}

func (s *WFQ) EnqueueTrigger(prio Priority) {}

// DequeueTrigger burns one token at the cursor; when the slot's quantum is
// spent the cursor rotates and the count resets.
func (s *WFQ) DequeueTrigger(prio Priority) {
	if prio != s.lastPrio {
		panic(fmt.Sprintf("shaper: wfq dequeue at P%d but cursor at P%d", prio, s.lastPrio))
	}
	s.lastToken++
	if s.lastToken >= s.tokens[s.lastPrio] {
		s.lastToken = 0
		s.lastPrio = (s.lastPrio + 1) % s.maxPrio
	}
}
