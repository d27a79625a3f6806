// Package health provides HTTP endpoints for health monitoring and
// operator actions.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/rpc/pool"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/queue"
)

// Status values for the aggregate health report.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// Server provides the health, metrics and admin endpoints.
type Server struct {
	queue  *queue.Service
	pool   *pool.Pool
	store  Pinger
	server *http.Server
}

// NewServer creates the health server.
func NewServer(q *queue.Service, p *pool.Pool, store Pinger, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		queue: q,
		pool:  p,
		store: store,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/drain", s.handleDrain)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) aggregateStatus(ctx context.Context) string {
	status := StatusHealthy

	if s.store != nil {
		if err := s.store.Health(ctx); err != nil {
			return StatusCritical
		}
	}

	// A network with zero healthy endpoints cannot submit anything.
	for _, endpoints := range s.pool.Snapshot() {
		healthy := 0
		for _, ep := range endpoints {
			if ep.Healthy {
				healthy++
			}
		}
		switch {
		case healthy == 0:
			return StatusCritical
		case healthy < len(endpoints):
			status = StatusDegraded
		}
	}
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.aggregateStatus(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report := struct {
		Status    string                           `json:"status"`
		Queue     map[domain.QueueStatus]int       `json:"queue"`
		Endpoints map[string][]pool.EndpointHealth `json:"endpoints"`
	}{
		Status:    s.aggregateStatus(ctx),
		Endpoints: s.pool.Snapshot(),
	}

	counts, err := s.queue.Statistics(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	report.Queue = counts

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// handleDrain triggers a manual rapid drain cycle.
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.queue.Drain(r.Context(), true)
	if err != nil {
		if errors.Is(err, queue.ErrDrainInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
