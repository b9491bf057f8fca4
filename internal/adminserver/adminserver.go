// Package adminserver exposes the worker pool's only outer HTTP surface:
// /health, /ready, /status, and /metrics. There is deliberately no
// job-control endpoint — operators act on the queue through Postgres,
// not through this process.
package adminserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quebec-foncier/ocrworkerd/internal/capacity"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
)

// Pinger is the subset of *store.Store needed for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStatus is the subset of *pool.Manager needed for /status.
type PoolStatus interface {
	CurrentAllocation(ctx context.Context) (pool.Allocation, error)
}

// RateStatus is the subset of *ratebudget.Budget needed for /status.
type RateStatus interface {
	Status(ctx context.Context, provider string) (ratebudget.Snapshot, error)
}

// CapacityStatus is the subset of *capacity.Budget needed for /status.
type CapacityStatus interface {
	Status(ctx context.Context, class string) (capacity.Snapshot, error)
}

// Config bounds the admin server's dependencies and listen address.
type Config struct {
	Addr      string
	Store     Pinger
	Pool      PoolStatus
	RateBudg  RateStatus
	Providers []string
	CapBudg   CapacityStatus
	Classes   []string
	Logger    *slog.Logger
}

// Server wraps a chi router exposing health/readiness/status/metrics.
type Server struct {
	cfg    Config
	http   *http.Server
	logger *slog.Logger
}

// New builds the admin HTTP server.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9090"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Run starts the server and blocks until ctx is cancelled, then drains
// within 10 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("adminserver: listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "store not configured"})
		return
	}
	if err := s.cfg.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the shape of GET /status, a point-in-time snapshot
// of the pool, rate budget, and capacity budget.
type statusResponse struct {
	Pool      pool.Allocation               `json:"pool"`
	RateBudg  map[string]ratebudget.Snapshot `json:"rate_budget"`
	CapBudg   map[string]capacity.Snapshot   `json:"capacity_budget"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		RateBudg: make(map[string]ratebudget.Snapshot),
		CapBudg:  make(map[string]capacity.Snapshot),
	}

	if s.cfg.Pool != nil {
		alloc, err := s.cfg.Pool.CurrentAllocation(ctx)
		if err != nil {
			s.logger.Error("adminserver: pool status failed", "error", err)
		} else {
			resp.Pool = alloc
		}
	}

	if s.cfg.RateBudg != nil {
		for _, provider := range s.cfg.Providers {
			snap, err := s.cfg.RateBudg.Status(ctx, provider)
			if err != nil {
				s.logger.Error("adminserver: rate budget status failed", "provider", provider, "error", err)
				continue
			}
			resp.RateBudg[provider] = snap
		}
	}

	if s.cfg.CapBudg != nil {
		for _, class := range s.cfg.Classes {
			snap, err := s.cfg.CapBudg.Status(ctx, class)
			if err != nil {
				s.logger.Error("adminserver: capacity status failed", "class", class, "error", err)
				continue
			}
			resp.CapBudg[class] = snap
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("adminserver: request", "method", r.Method, "path", r.URL.Path, "status", wrapped.status, "duration", time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
