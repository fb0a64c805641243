// Package httpapi exposes the query front door's HTTP surface from
// spec.md §6: the enhanced and legacy /query endpoints, the read-only
// /metrics/* rollups, and a liveness probe — grounded on the teacher's
// internal/httpapi package, stdlib net/http.ServeMux with Go 1.22+
// method+path patterns.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/intelligencedev/queryfrontd/internal/dispatcher"
	"github.com/intelligencedev/queryfrontd/internal/metrics"
	"github.com/intelligencedev/queryfrontd/internal/vectorstore"
)

// Server exposes the query front door's HTTP endpoints.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	aggregator *metrics.Aggregator
	store      vectorstore.Store
	mux        *http.ServeMux
}

// NewServer builds the HTTP API wired to a Dispatcher, a process-wide
// Aggregator, and the vector store used by /healthz's reachability probe.
func NewServer(d *dispatcher.Dispatcher, aggregator *metrics.Aggregator, store vectorstore.Store) *Server {
	s := &Server{dispatcher: d, aggregator: aggregator, store: store, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/query", s.handleQuery)
	s.mux.HandleFunc("POST /query", s.handleLegacyQuery)

	s.mux.HandleFunc("GET /metrics/pricing", s.handleMetricsPricing)
	s.mux.HandleFunc("GET /metrics/cache", s.handleMetricsCache)
	s.mux.HandleFunc("GET /metrics/performance", s.handleMetricsPerformance)
	s.mux.HandleFunc("GET /metrics/summary", s.handleMetricsSummary)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	it, err := s.store.Scan(ctx, "healthz:probe:")
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	if it != nil {
		_ = it.Err()
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
