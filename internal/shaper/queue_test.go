package shaper

import "testing"

func byteLen(payload string) uint64 {
	return uint64(len(payload))
}

// gateLimiter is a hand-driven limiter for tests: the gate can be opened
// and closed directly, and trigger invocations are recorded in order.
type gateLimiter struct {
	limited   bool
	available uint64
	queue     *PriorityQueue[string]
	events    []string
}

func (g *gateLimiter) IsLimited() bool { return g.limited }

func (g *gateLimiter) EnqueueTrigger(e Element[string]) {
	g.events = append(g.events, "enqueue:"+e.Payload)
}

func (g *gateLimiter) DequeueTrigger(e Element[string]) {
	g.events = append(g.events, "dequeue:"+e.Payload)
}

func (g *gateLimiter) AvailableTime() uint64 {
	if !g.limited {
		return MaxTime
	}
	return g.available
}

func (g *gateLimiter) SetQueue(q *PriorityQueue[string]) { g.queue = q }

func TestPriorityQueue_FIFOAndSizeAccounting(t *testing.T) {
	t.Log("===== TEST: FIFO order and byte accounting =====")

	q := NewPriorityQueue[string](0, byteLen)

	payloads := []string{"0123456789", "01234567890123456789", "01234"}
	wantSizes := []uint64{10, 30, 35}
	for i, payload := range payloads {
		q.Enqueue(NewElement(0, payload))
		if q.Size() != wantSizes[i] {
			t.Fatalf("after enqueue %d: size=%d, want %d", i, q.Size(), wantSizes[i])
		}
	}
	if q.Length() != 3 {
		t.Fatalf("length=%d, want 3", q.Length())
	}

	for i, want := range payloads[:2] {
		got := q.Dequeue()
		if got.Payload != want {
			t.Errorf("dequeue %d: got %q, want %q (FIFO violated)", i, got.Payload, want)
		}
		if got.Prio != 0 {
			t.Errorf("dequeue %d: priority=%d, want 0", i, got.Prio)
		}
	}
	if q.Size() != 5 {
		t.Errorf("size after two dequeues=%d, want 5", q.Size())
	}
	if q.Length() != 1 {
		t.Errorf("length after two dequeues=%d, want 1", q.Length())
	}
}

func TestPriorityQueue_LimiterGating(t *testing.T) {
	t.Log("===== TEST: limiter veto and available time =====")

	q := NewPriorityQueue[string](0, byteLen)
	gate := &gateLimiter{limited: true, available: 1000}
	q.AddRateLimiter(gate)

	if gate.queue != q {
		t.Fatal("AddRateLimiter did not wire the queue back-reference")
	}

	q.Enqueue(NewElement[string](0, "item"))
	if q.CanDequeue() {
		t.Error("CanDequeue=true while limiter reports limited")
	}
	if got := q.AvailableTime(); got != 1000 {
		t.Errorf("AvailableTime=%d, want 1000", got)
	}

	gate.limited = false
	if !q.CanDequeue() {
		t.Error("CanDequeue=false after limiter opened")
	}
	if got := q.AvailableTime(); got != MaxTime {
		t.Errorf("AvailableTime=%d after limiter opened, want MaxTime", got)
	}
	if e := q.Dequeue(); e.Payload != "item" {
		t.Errorf("dequeued %q, want %q", e.Payload, "item")
	}
}

func TestPriorityQueue_LimiterDisjunction(t *testing.T) {
	t.Log("===== TEST: any limiter says stop means stop =====")

	q := NewPriorityQueue[string](0, byteLen)
	open := &gateLimiter{}
	closed := &gateLimiter{limited: true, available: 50}
	q.AddRateLimiter(open)
	q.AddRateLimiter(closed)

	q.Enqueue(NewElement[string](0, "x"))
	if q.CanDequeue() {
		t.Error("CanDequeue=true although one limiter is closed")
	}
	if got := q.AvailableTime(); got != 50 {
		t.Errorf("AvailableTime=%d, want minimum over limiters (50)", got)
	}
}

func TestPriorityQueue_TriggersFireInOrder(t *testing.T) {
	t.Log("===== TEST: enqueue/dequeue triggers fire per limiter, in order =====")

	q := NewPriorityQueue[string](0, byteLen)
	first := &gateLimiter{}
	second := &gateLimiter{}
	q.AddRateLimiter(first)
	q.AddRateLimiter(second)

	q.Enqueue(NewElement[string](0, "a"))
	q.Enqueue(NewElement[string](0, "b"))
	q.Dequeue()

	want := []string{"enqueue:a", "enqueue:b", "dequeue:a"}
	for _, g := range []*gateLimiter{first, second} {
		if len(g.events) != len(want) {
			t.Fatalf("limiter saw %d events, want %d: %v", len(g.events), len(want), g.events)
		}
		for i, event := range want {
			if g.events[i] != event {
				t.Errorf("event %d: got %q, want %q", i, g.events[i], event)
			}
		}
	}
}

func TestPriorityQueue_NoLimitersNeverBlocks(t *testing.T) {
	q := NewPriorityQueue[string](2, byteLen)

	if q.CanDequeue() {
		t.Error("empty queue reports CanDequeue=true")
	}
	if got := q.AvailableTime(); got != MaxTime {
		t.Errorf("AvailableTime=%d with no limiters, want MaxTime", got)
	}

	q.Enqueue(NewElement[string](2, "x"))
	if !q.CanDequeue() {
		t.Error("non-empty unlimited queue reports CanDequeue=false")
	}
}

func TestPriorityQueue_DequeueEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("dequeue from empty queue did not panic")
		}
	}()
	NewPriorityQueue[string](0, byteLen).Dequeue()
}
