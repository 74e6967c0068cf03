// Package httpserver exposes the daemon's surface over HTTP: item ingest,
// health, per-queue statistics, and Prometheus metrics. The server never
// touches the shaper container directly; ingest goes through the pump and
// statistics come from the snapshots it publishes, so the container's
// single-threaded contract holds.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tokligence/flowshaper/internal/metrics"
	"github.com/tokligence/flowshaper/internal/pump"
	"github.com/tokligence/flowshaper/internal/shaper"
)

// StatsSource supplies the latest shaper snapshot.
type StatsSource interface {
	ShaperSnapshot() pump.Snapshot
}

// Enqueuer admits items into the shaper.
type Enqueuer interface {
	Enqueue(ctx context.Context, prio shaper.Priority, item pump.Item) error
}

// Server serves the daemon API.
type Server struct {
	addr      string
	source    StatsSource
	enqueuer  Enqueuer
	collector *metrics.Collector
	httpSrv   *http.Server
}

// New creates a server bound to addr. The enqueuer may be nil, which
// disables the ingest endpoint (observation-only mode).
func New(addr string, source StatsSource, enqueuer Enqueuer, collector *metrics.Collector) *Server {
	s := &Server{addr: addr, source: source, enqueuer: enqueuer, collector: collector}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/admin/shaper/stats", s.handleStats)
	r.Get("/admin/shaper/queues", s.handleQueues)
	r.Get("/metrics", s.handleMetrics)
	if enqueuer != nil {
		r.Post("/v1/shaper/enqueue", s.handleEnqueue)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called. It blocks; run it from its own
// goroutine.
func (s *Server) Start() error {
	log.Printf("[INFO] httpserver: API listening on %s", s.addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type enqueueRequest struct {
	ID       string `json:"id,omitempty"`
	Priority int    `json:"priority"`
	Payload  string `json:"payload"`
}

type enqueueResponse struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Bytes    int    `json:"bytes"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Priority < 0 || req.Priority > int(shaper.NullPriority) {
		s.respondError(w, http.StatusBadRequest, errors.New("priority out of range"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	item := pump.Item{ID: req.ID, Payload: []byte(req.Payload)}
	err := s.enqueuer.Enqueue(r.Context(), shaper.Priority(req.Priority), item)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusAccepted, enqueueResponse{
			ID:       req.ID,
			Priority: req.Priority,
			Bytes:    len(req.Payload),
		})
	case errors.Is(err, shaper.ErrInvalidPriority):
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.respondError(w, http.StatusServiceUnavailable, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"shaper":  s.source.ShaperSnapshot(),
		"metrics": s.collector.Snapshot(),
	}
	s.respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	snap := s.source.ShaperSnapshot()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"policy":       snap.Policy,
		"max_priority": snap.MaxPriority,
		"queues":       snap.Queues,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.collector.Snapshot())))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
