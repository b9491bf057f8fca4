// Package healthmonitor implements the periodic sweep of SPEC_FULL.md
// §4.10: reclaim queue rows stranded at OcrInProgress by a worker that
// died mid-job, and mark workers whose heartbeat has gone silent as
// offline. Safe to run from more than one process at once — both
// underlying updates are plain conditional SQL, so a duplicate sweep
// simply reclaims/marks nothing on its second pass.
package healthmonitor

import (
	"context"
	"log/slog"
	"time"
)

// ReclaimStore is the subset of *store.Store the sweep needs.
type ReclaimStore interface {
	ReclaimStranded(ctx context.Context, staleThreshold time.Duration) ([]string, error)
	MarkDeadWorkers(ctx context.Context, deadThreshold time.Duration) ([]string, error)
}

// Config bounds the sweep's cadence and thresholds.
type Config struct {
	CheckInterval  time.Duration // §4.10's stale_check_interval, ~30s
	StaleThreshold time.Duration // how long a job may sit at OcrInProgress before it's considered stranded
	DeadThreshold  time.Duration // how long a worker may go without a heartbeat before it's marked offline
}

// Monitor runs the periodic reclaim/dead-worker sweep.
type Monitor struct {
	cfg    Config
	store  ReclaimStore
	logger *slog.Logger
}

// New returns a Monitor.
func New(cfg Config, store ReclaimStore, logger *slog.Logger) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10 * time.Minute
	}
	if cfg.DeadThreshold <= 0 {
		cfg.DeadThreshold = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{cfg: cfg, store: store, logger: logger}
}

// Run sweeps on a ticker until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *Monitor) sweepOnce(ctx context.Context) {
	reclaimed, err := m.store.ReclaimStranded(ctx, m.cfg.StaleThreshold)
	if err != nil {
		m.logger.Error("healthmonitor: reclaim stranded failed", "error", err)
	} else if len(reclaimed) > 0 {
		m.logger.Warn("healthmonitor: reclaimed stranded jobs", "count", len(reclaimed), "job_ids", reclaimed)
	}

	dead, err := m.store.MarkDeadWorkers(ctx, m.cfg.DeadThreshold)
	if err != nil {
		m.logger.Error("healthmonitor: mark dead workers failed", "error", err)
	} else if len(dead) > 0 {
		m.logger.Warn("healthmonitor: marked workers offline", "count", len(dead), "worker_ids", dead)
	}
}
