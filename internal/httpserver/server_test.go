package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tokligence/flowshaper/internal/metrics"
	"github.com/tokligence/flowshaper/internal/pump"
	"github.com/tokligence/flowshaper/internal/shaper"
)

type fixedSource struct {
	snap pump.Snapshot
}

func (f *fixedSource) ShaperSnapshot() pump.Snapshot { return f.snap }

type fakeEnqueuer struct {
	items []pump.Item
	prios []shaper.Priority
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, prio shaper.Priority, item pump.Item) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	f.prios = append(f.prios, prio)
	return nil
}

func newTestServer(enq Enqueuer) (*Server, *metrics.Collector) {
	collector := metrics.NewCollector()
	source := &fixedSource{snap: pump.Snapshot{
		Policy:       "wfq",
		MaxPriority:  2,
		QueuedLength: 3,
		QueuedBytes:  300,
		Queues: []pump.QueueSnapshot{
			{Priority: 0, Length: 1, Bytes: 100, Eligible: true},
			{Priority: 1, Length: 2, Bytes: 200, RateLimited: true},
		},
	}}
	return New("127.0.0.1:0", source, enq, collector), collector
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body=%v", body)
	}
}

func TestHandleEnqueue(t *testing.T) {
	t.Log("===== TEST: ingest endpoint admits an item and assigns an id =====")

	enq := &fakeEnqueuer{}
	s, _ := newTestServer(enq)

	body := strings.NewReader(`{"priority": 1, "payload": "hello shaper"}`)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/shaper/enqueue", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp enqueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Error("response carries no generated id")
	}
	if resp.Bytes != len("hello shaper") {
		t.Errorf("bytes=%d, want %d", resp.Bytes, len("hello shaper"))
	}
	if len(enq.items) != 1 || enq.prios[0] != 1 {
		t.Errorf("enqueuer saw %v at %v", enq.items, enq.prios)
	}
}

func TestHandleEnqueue_InvalidPriority(t *testing.T) {
	enq := &fakeEnqueuer{err: shaper.ErrInvalidPriority}
	s, _ := newTestServer(enq)

	body := strings.NewReader(`{"priority": 7, "payload": "x"}`)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/shaper/enqueue", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleQueues(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/shaper/queues", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	var body struct {
		Policy      string               `json:"policy"`
		MaxPriority int                  `json:"max_priority"`
		Queues      []pump.QueueSnapshot `json:"queues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Policy != "wfq" || body.MaxPriority != 2 || len(body.Queues) != 2 {
		t.Errorf("body=%+v", body)
	}
	if !body.Queues[1].RateLimited {
		t.Error("P1 should report rate_limited")
	}
}

func TestHandleMetrics(t *testing.T) {
	s, collector := newTestServer(nil)
	collector.RecordDispatched(0, 64)

	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `flowshaper_dispatched_total{priority="0"} 1`) {
		t.Errorf("metrics output missing dispatched counter:\n%s", rec.Body.String())
	}
}
