// Package jobmonitor implements the per-worker claim loop of
// SPEC_FULL.md §4.9: poll for a candidate, claim it atomically, dispatch
// to the matching pipeline, and write back the outcome. The loop itself
// does not consult the Rate Budget; the index pipeline admits each page
// extraction against it, and acte jobs are not checked against it.
package jobmonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	acte "github.com/quebec-foncier/ocrworkerd/internal/pipeline/acte"
	index "github.com/quebec-foncier/ocrworkerd/internal/pipeline/index"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/store"
	"github.com/quebec-foncier/ocrworkerd/internal/worker"

	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

// QueueStore is the subset of *store.Store the claim loop needs, kept as
// an interface so tests can substitute a fake queue.
type QueueStore interface {
	Heartbeat(ctx context.Context, workerID string) error
	ClaimNext(ctx context.Context, mode, workerID string) (*store.Job, error)
	FailJob(ctx context.Context, job *store.Job, cause string) error
	CompleteJob(ctx context.Context, jobID, fileContent, boostedFileContent string) error
}

// ModeResolver is the subset of *pool.Manager the claim loop needs.
type ModeResolver interface {
	ModeFor(ctx context.Context, workerID string) (pool.Mode, error)
}

// Pipelines bundles the two document pipelines a worker can be assigned
// to run.
type Pipelines struct {
	Index *index.Pipeline
	Acte  *acte.Pipeline
}

// Buckets names which object-storage bucket each document source reads
// from, per SPEC_FULL.md §6.
type Buckets struct {
	Index string
	Acte  string
}

// Config bounds one worker's polling behavior.
type Config struct {
	WorkerID       string
	PollInterval   time.Duration
	IdleCloseAfter time.Duration
	Provider       string // the provider name used for Rate Budget estimates, e.g. "openai"
}

// Monitor runs one worker's claim loop. The serve command starts one
// Monitor per worker slot, all inside one process.
type Monitor struct {
	cfg       Config
	store     QueueStore
	pool      ModeResolver
	pipelines Pipelines
	buckets   Buckets
	dir       *worker.Dir
	logger    *slog.Logger

	lastClaimAt time.Time
}

// New returns a Monitor.
func New(cfg Config, st QueueStore, pm ModeResolver, pipelines Pipelines, buckets Buckets, dir *worker.Dir, logger *slog.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.IdleCloseAfter <= 0 {
		cfg.IdleCloseAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{cfg: cfg, store: st, pool: pm, pipelines: pipelines, buckets: buckets, dir: dir, logger: logger.With("worker_id", cfg.WorkerID)}
}

// Run polls until ctx is cancelled, per §4.9's main loop. A cancelled
// context is a clean shutdown signal, not an error. Run returns at the
// next select after cancellation; a job already in process sees the same
// cancelled context and is not waited for.
func (m *Monitor) Run(ctx context.Context) error {
	m.lastClaimAt = time.Now()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			claimed, err := m.pollOnce(ctx)
			if err != nil {
				m.logger.Error("jobmonitor: poll cycle failed", "error", err)
				continue
			}
			if claimed {
				m.lastClaimAt = time.Now()
			} else if time.Since(m.lastClaimAt) > m.cfg.IdleCloseAfter {
				// §4.9 step 9: release heavy resources after sustained
				// idleness; reacquired transparently on the next claim
				// since the pipelines open their own per-call clients.
				m.logger.Debug("jobmonitor: idle-close threshold reached, nothing to release")
				m.lastClaimAt = time.Now()
			}
		}
	}
}

// pollOnce runs steps 1-8 of §4.9 for a single candidate, returning
// whether a claim was established.
func (m *Monitor) pollOnce(ctx context.Context) (bool, error) {
	if err := m.store.Heartbeat(ctx, m.cfg.WorkerID); err != nil {
		return false, fmt.Errorf("heartbeat: %w", err)
	}

	mode, err := m.pool.ModeFor(ctx, m.cfg.WorkerID)
	if err != nil {
		return false, fmt.Errorf("mode lookup: %w", err)
	}

	job, err := m.store.ClaimNext(ctx, string(mode), m.cfg.WorkerID)
	if err != nil {
		if errors.Is(err, ocrerrors.ErrClaimLost) {
			return false, nil
		}
		return false, fmt.Errorf("claim: %w", err)
	}

	m.process(ctx, job)
	return true, nil
}

// process dispatches a claimed job to its pipeline and writes back the
// outcome, per §4.9 steps 6-8.
func (m *Monitor) process(ctx context.Context, job *store.Job) {
	var (
		fileContent, boostedContent string
		err                         error
	)

	switch job.DocumentSource {
	case store.SourceIndex:
		var res index.Result
		res, err = m.pipelines.Index.Run(ctx, job.ID, m.cfg.Provider, m.buckets.Index, *job.StoragePath, m.dir)
		fileContent, boostedContent = res.FileContent, res.BoostedFileContent
	case store.SourceActe:
		var res acte.Result
		res, err = m.pipelines.Acte.Run(ctx, job.ID, m.buckets.Acte, *job.StoragePath, m.dir)
		fileContent, boostedContent = res.FileContent, res.BoostedFileContent
	default:
		err = fmt.Errorf("jobmonitor: unknown document source %q", job.DocumentSource)
	}

	if err != nil {
		m.logger.Warn("jobmonitor: job failed", "job_id", job.ID, "error", err)
		if failErr := m.store.FailJob(ctx, job, err.Error()); failErr != nil {
			m.logger.Error("jobmonitor: failed to record failure", "job_id", job.ID, "error", failErr)
		}
		return
	}

	if err := m.store.CompleteJob(ctx, job.ID, fileContent, boostedContent); err != nil {
		m.logger.Error("jobmonitor: failed to record completion", "job_id", job.ID, "error", err)
	}
}
