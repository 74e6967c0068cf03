package shaper

import (
	"errors"
	"testing"
)

func newContainer(t *testing.T, maxPrio Priority) *PriorityQueues[string] {
	t.Helper()
	pqs, err := New[string](maxPrio, byteLen)
	if err != nil {
		t.Fatalf("New(%d) failed: %v", maxPrio, err)
	}
	return pqs
}

func TestPriorityQueues_ConstructionBounds(t *testing.T) {
	if _, err := New[string](0, byteLen); err == nil {
		t.Error("New(0) succeeded, want error")
	}
	if _, err := New[string](MaxPriorities+1, byteLen); err == nil {
		t.Error("New(9) succeeded, want error")
	}
	if _, err := New[string](MaxPriorities, byteLen); err != nil {
		t.Errorf("New(8) failed: %v", err)
	}
	if _, err := New[string](1, nil); err == nil {
		t.Error("New with nil size projection succeeded, want error")
	}
}

func TestPriorityQueues_RoundTrip(t *testing.T) {
	t.Log("===== TEST: enqueue/dequeue round trip preserves payload and priority =====")

	pqs := newContainer(t, 4)
	pqs.SetScheduling(NewRoundRobin(pqs))

	if err := pqs.Enqueue(2, "hello"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	e := pqs.Dequeue()
	if e.IsNull() {
		t.Fatal("dequeue returned sentinel, want element")
	}
	if e.Prio != 2 || e.Payload != "hello" {
		t.Errorf("round trip got (P%d, %q), want (P2, %q)", e.Prio, e.Payload, "hello")
	}
}

func TestPriorityQueues_InvalidPriority(t *testing.T) {
	t.Log("===== TEST: out-of-range enqueue is rejected with no state change =====")

	pqs := newContainer(t, 4)
	pqs.SetScheduling(NewStrictPriority(pqs))

	if err := pqs.Enqueue(0, "ok"); err != nil {
		t.Fatalf("valid enqueue failed: %v", err)
	}
	sizeBefore, lengthBefore := pqs.QueuingSize(), pqs.QueuingLength()

	// Both the first dormant slot and anything beyond are invalid.
	for _, prio := range []Priority{4, 5, NullPriority} {
		err := pqs.Enqueue(prio, "rejected")
		if !errors.Is(err, ErrInvalidPriority) {
			t.Errorf("enqueue at P%d: err=%v, want ErrInvalidPriority", prio, err)
		}
	}

	if pqs.QueuingSize() != sizeBefore || pqs.QueuingLength() != lengthBefore {
		t.Errorf("aggregates changed after rejected enqueues: size %d→%d, length %d→%d",
			sizeBefore, pqs.QueuingSize(), lengthBefore, pqs.QueuingLength())
	}
}

func TestPriorityQueues_SentinelOnEmpty(t *testing.T) {
	pqs := newContainer(t, 3)
	pqs.SetScheduling(NewRoundRobin(pqs))

	e := pqs.Dequeue()
	if !e.IsNull() {
		t.Fatalf("dequeue from empty container returned (P%d, %q), want sentinel", e.Prio, e.Payload)
	}
}

func TestPriorityQueues_AggregateInvariants(t *testing.T) {
	t.Log("===== TEST: aggregate size/length mirror the per-slot sums =====")

	pqs := newContainer(t, 4)
	pqs.SetScheduling(NewRoundRobin(pqs))

	check := func(step string) {
		t.Helper()
		var sumSize uint64
		var sumLength int
		for prio := Priority(0); prio < MaxPriorities; prio++ {
			sumSize += pqs.QueuingSizeAt(prio)
			sumLength += pqs.QueuingLengthAt(prio)
		}
		if pqs.QueuingSize() != sumSize {
			t.Errorf("%s: aggregate size=%d, per-slot sum=%d", step, pqs.QueuingSize(), sumSize)
		}
		if pqs.QueuingLength() != uint64(sumLength) {
			t.Errorf("%s: aggregate length=%d, per-slot sum=%d", step, pqs.QueuingLength(), sumLength)
		}
	}

	payloads := map[Priority][]string{
		0: {"aa", "bbbb"},
		1: {"cccccc"},
		3: {"d", "ee", "fff"},
	}
	for prio, items := range payloads {
		for _, payload := range items {
			if err := pqs.Enqueue(prio, payload); err != nil {
				t.Fatalf("enqueue P%d %q: %v", prio, payload, err)
			}
			check("after enqueue")
		}
	}

	for !pqs.Dequeue().IsNull() {
		check("after dequeue")
	}
	if pqs.QueuingSize() != 0 || pqs.QueuingLength() != 0 {
		t.Errorf("drained container not empty: size=%d length=%d", pqs.QueuingSize(), pqs.QueuingLength())
	}
}

func TestPriorityQueues_RateLimitGating(t *testing.T) {
	t.Log("===== TEST: limited queue blocks container dequeue and reports available time =====")

	pqs := newContainer(t, 1)
	pqs.SetScheduling(NewRoundRobin(pqs))

	gate := &gateLimiter{limited: true, available: 1000}
	pqs.Queue(0).AddRateLimiter(gate)

	if err := pqs.Enqueue(0, "paced"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if pqs.CanDequeue(0) {
		t.Error("CanDequeue=true while limiter closed")
	}
	if !pqs.Dequeue().IsNull() {
		t.Error("dequeue returned an element while limiter closed")
	}
	if got := pqs.AvailableTime(); got != 1000 {
		t.Errorf("AvailableTime=%d, want 1000", got)
	}

	gate.limited = false
	e := pqs.Dequeue()
	if e.IsNull() || e.Payload != "paced" {
		t.Errorf("dequeue after opening limiter got %+v, want the paced item", e)
	}
}

func TestPriorityQueues_AvailableTimeUnlimited(t *testing.T) {
	pqs := newContainer(t, 8)
	pqs.SetScheduling(NewStrictPriority(pqs))

	if got := pqs.AvailableTime(); got != MaxTime {
		t.Errorf("AvailableTime=%d with no limiters, want MaxTime", got)
	}
}

func TestPriorityQueues_SetSchedulingReplaces(t *testing.T) {
	t.Log("===== TEST: scheduler replacement changes the discipline in place =====")

	pqs := newContainer(t, 3)
	pqs.SetScheduling(NewStrictPriority(pqs))

	for _, prio := range []Priority{2, 0, 1} {
		if err := pqs.Enqueue(prio, "x"); err != nil {
			t.Fatalf("enqueue P%d: %v", prio, err)
		}
	}

	if e := pqs.Dequeue(); e.Prio != 0 {
		t.Fatalf("strict dequeue got P%d, want P0", e.Prio)
	}

	// Replace with round robin; the cursor starts at P0 again, and only
	// P1/P2 still hold items.
	pqs.SetScheduling(NewRoundRobin(pqs))
	if e := pqs.Dequeue(); e.Prio != 1 {
		t.Errorf("rr dequeue got P%d, want P1", e.Prio)
	}
	if e := pqs.Dequeue(); e.Prio != 2 {
		t.Errorf("rr dequeue got P%d, want P2", e.Prio)
	}
}

func TestPriorityQueues_NoSchedulerPanics(t *testing.T) {
	pqs := newContainer(t, 2)
	defer func() {
		if recover() == nil {
			t.Fatal("enqueue without an attached scheduler did not panic")
		}
	}()
	_ = pqs.Enqueue(0, "x")
}
