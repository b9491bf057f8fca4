// Package acte implements the acte document pipeline: upload the whole
// PDF to the file-API-capable provider, extract and boost the whole
// document with continuation loops, and guarantee file-lease cleanup on
// every exit path.
package acte

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/quebec-foncier/ocrworkerd/internal/objectstore"
	"github.com/quebec-foncier/ocrworkerd/internal/processor"
	"github.com/quebec-foncier/ocrworkerd/internal/providers"
	"github.com/quebec-foncier/ocrworkerd/internal/worker"
)

// Prompts carries the per-call instructions for the acte pipeline's two
// stages.
type Prompts struct {
	ExtractDoc string
	BoostDoc   string
}

// Config bounds one acte job's processing.
type Config struct {
	Prompts          Prompts
	CallOpts         providers.CallOpts
	FileAwaitTimeout time.Duration
}

// Pipeline runs the acte document pipeline described in SPEC_FULL.md
// §4.7.
type Pipeline struct {
	cfg       Config
	objects   objectstore.Store
	processor *processor.UnifiedProcessor
	logger    *slog.Logger
}

// New returns a Pipeline.
func New(cfg Config, objects objectstore.Store, proc *processor.UnifiedProcessor, logger *slog.Logger) *Pipeline {
	if cfg.FileAwaitTimeout <= 0 {
		cfg.FileAwaitTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, objects: objects, processor: proc, logger: logger}
}

// Result is what the Job Monitor writes back to the queue row on
// success. Unlike the index pipeline, no sanitization is applied —
// file_content is the raw extracted text.
type Result struct {
	FileContent        string
	BoostedFileContent string
}

// Run executes one acte job. dir is the worker's scratch space, used
// only to hold the downloaded PDF before upload; no tiles are produced.
func (p *Pipeline) Run(ctx context.Context, jobID, bucket, key string, dir *worker.Dir) (Result, error) {
	if err := dir.EnsureExists(); err != nil {
		return Result{}, fmt.Errorf("acte: %w", err)
	}
	defer dir.Clean()

	primary, err := p.registryPrimary()
	if err != nil {
		return Result{}, fmt.Errorf("acte: %w", err)
	}

	pdfBytes, err := p.objects.Get(ctx, bucket, key)
	if err != nil {
		return Result{}, fmt.Errorf("acte: fetch pdf: %w", err)
	}

	pdfPath := dir.SourcePath() + "/document.pdf"
	if err := os.WriteFile(pdfPath, pdfBytes, 0o644); err != nil {
		return Result{}, fmt.Errorf("acte: write pdf: %w", err)
	}

	ref, _, err := primary.Upload(ctx, pdfBytes)
	if err != nil {
		return Result{}, fmt.Errorf("acte: upload: %w", err)
	}

	// delete_file is best-effort on every exit path — scoped acquisition
	// with guaranteed release, per §4.4/§4.7.
	defer func() {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := primary.DeleteFile(delCtx, ref); err != nil {
			p.logger.Warn("acte: file delete failed", "job_id", jobID, "file_ref", ref, "error", err)
		}
	}()

	awaitCtx, cancel := context.WithTimeout(ctx, p.cfg.FileAwaitTimeout)
	state, err := primary.AwaitReady(awaitCtx, ref, p.cfg.FileAwaitTimeout)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("acte: await ready: %w", err)
	}
	if state != providers.FileActive {
		return Result{}, fmt.Errorf("acte: file not active after await (state=%s)", state)
	}

	rawText, err := p.processor.ExtractWithContinuation(ctx, jobID, ref, p.cfg.Prompts.ExtractDoc, p.cfg.CallOpts)
	if err != nil {
		return Result{}, fmt.Errorf("acte: extract: %w", err)
	}

	boostedText, err := p.processor.BoostWithContinuation(ctx, jobID, rawText, p.cfg.Prompts.BoostDoc, p.cfg.CallOpts)
	if err != nil {
		return Result{}, fmt.Errorf("acte: boost: %w", err)
	}

	return Result{FileContent: rawText, BoostedFileContent: boostedText}, nil
}

func (p *Pipeline) registryPrimary() (providers.FileClient, error) {
	return p.processor.PrimaryFileClient()
}
