package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/quebec-foncier/ocrworkerd/internal/eventlog"
	"github.com/quebec-foncier/ocrworkerd/internal/objectstore"
	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
	"github.com/quebec-foncier/ocrworkerd/internal/processor"
	"github.com/quebec-foncier/ocrworkerd/internal/providers"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
	"github.com/quebec-foncier/ocrworkerd/internal/sanitize"
	"github.com/quebec-foncier/ocrworkerd/internal/worker"
)

// Prompts carries the per-call instructions distinct from the pipeline's
// plumbing — kept as plain config rather than hardcoded strings so
// operators can tune wording without a redeploy.
type Prompts struct {
	ExtractPage string
	BoostDoc    string
}

// Config bounds one index job's processing.
type Config struct {
	Prompts       Prompts
	RenderDPI     int
	CallOpts      providers.CallOpts
	EstimateTokensPerPage int
}

// Pipeline runs the index document pipeline described in SPEC_FULL.md
// §4.6: render, bounded-parallel extract, single whole-document boost,
// sanitize.
type Pipeline struct {
	cfg        Config
	objects    objectstore.Store
	processor  *processor.UnifiedProcessor
	rateBudget *ratebudget.Budget
	events     *eventlog.Log
	logger     *slog.Logger
}

// New returns a Pipeline.
func New(cfg Config, objects objectstore.Store, proc *processor.UnifiedProcessor, rb *ratebudget.Budget, events *eventlog.Log, logger *slog.Logger) *Pipeline {
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 300
	}
	if cfg.EstimateTokensPerPage <= 0 {
		cfg.EstimateTokensPerPage = 2000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, objects: objects, processor: proc, rateBudget: rb, events: events, logger: logger}
}

// Result is what the Job Monitor writes back to the queue row on
// success.
type Result struct {
	FileContent        string // json.Marshal(SanitizedDocument)
	BoostedFileContent string
}

// Run executes one index job: bucket/key addresses the source PDF in
// object storage, and dir is the worker's scratch space for downloaded
// and rendered files.
func (p *Pipeline) Run(ctx context.Context, jobID, provider, bucket, key string, dir *worker.Dir) (Result, error) {
	if err := dir.EnsureExists(); err != nil {
		return Result{}, fmt.Errorf("index: %w", err)
	}
	defer dir.Clean()

	pdfBytes, err := p.objects.Get(ctx, bucket, key)
	if err != nil {
		return Result{}, fmt.Errorf("index: fetch pdf: %w", err)
	}

	pdfPath := dir.SourcePath() + "/document.pdf"
	if err := os.WriteFile(pdfPath, pdfBytes, 0o644); err != nil {
		return Result{}, fmt.Errorf("index: write pdf: %w", err)
	}

	pagePaths, err := renderPages(pdfPath, dir.TilesPath(), p.cfg.RenderDPI)
	if err != nil {
		return Result{}, fmt.Errorf("index: render: %w", err)
	}
	if len(pagePaths) == 0 {
		return emptyDocumentResult()
	}

	pageTexts := p.extractPages(ctx, jobID, provider, pagePaths)

	assembled := assemblePages(pageTexts)

	boosted, err := p.processor.Boost(ctx, jobID, assembled, p.cfg.Prompts.BoostDoc, p.cfg.CallOpts)
	if err != nil {
		return Result{}, fmt.Errorf("index: boost: %w", err)
	}

	doc := sanitize.Sanitize(boosted.Text, func(excerpt string) {
		if p.events != nil {
			p.events.SanitizerWarning(jobID, excerpt)
		}
	})

	fileContent, err := marshalDocument(doc)
	if err != nil {
		return Result{}, fmt.Errorf("index: marshal sanitized document: %w", err)
	}

	return Result{FileContent: fileContent, BoostedFileContent: boosted.Text}, nil
}

// emptyDocumentResult is the §4.6 boundary behavior for a zero-page PDF:
// the job completes with `{pages: []}` rather than failing, and page
// extraction and boost never run.
func emptyDocumentResult() (Result, error) {
	fileContent, err := marshalDocument(&sanitize.SanitizedDocument{Pages: []sanitize.Page{}})
	if err != nil {
		return Result{}, fmt.Errorf("index: marshal empty document: %w", err)
	}
	return Result{FileContent: fileContent, BoostedFileContent: ""}, nil
}

// pageResult pairs a page's extracted text with its 1-based page number,
// so results can be reassembled in order regardless of completion order.
type pageResult struct {
	page int
	text string
	err  error
}

// extractPages runs the extract stage over every rendered page,
// parallel and bounded by Rate Budget admission rather than a fixed
// worker count — a page that can't get budget simply waits its turn. A
// page that fails on both providers degrades to an empty string per
// §4.6's edge-case policy; the job still succeeds.
func (p *Pipeline) extractPages(ctx context.Context, jobID, providerName string, pagePaths []string) []string {
	results := make(chan pageResult, len(pagePaths))

	for i, path := range pagePaths {
		go func(pageNum int, imagePath string) {
			text, err := p.extractOnePage(ctx, jobID, providerName, pageNum, imagePath)
			results <- pageResult{page: pageNum, text: text, err: err}
		}(i+1, path)
	}

	texts := make([]string, len(pagePaths))
	for range pagePaths {
		r := <-results
		if r.err != nil {
			p.logger.Warn("index: page extraction failed on both providers, recording empty page",
				"job_id", jobID, "page", r.page, "error", r.err)
			if p.events != nil {
				p.events.SanitizerWarning(jobID, fmt.Sprintf("page %d: %v", r.page, r.err))
			}
			texts[r.page-1] = ""
			continue
		}
		texts[r.page-1] = r.text
	}
	return texts
}

func (p *Pipeline) extractOnePage(ctx context.Context, jobID, providerName string, page int, imagePath string) (string, error) {
	if p.rateBudget != nil {
		for {
			err := p.rateBudget.TryAdmit(ctx, providerName, p.cfg.EstimateTokensPerPage)
			if err == nil {
				break
			}
			deferred, ok := ocrerrors.AsDeferred(err)
			if !ok {
				return "", err
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(deferred.RetryAfter):
			}
		}
	}

	img, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read rendered page %d: %w", page, err)
	}

	return p.processor.ExtractImageWithContinuation(ctx, jobID, img, "image/png", p.cfg.Prompts.ExtractPage, p.cfg.CallOpts)
}

// assemblePages joins per-page extracted text with the literal
// `--- Page N ---` separator §4.6 requires downstream consumers to rely
// on.
func assemblePages(pages []string) string {
	var b strings.Builder
	numbers := make([]int, len(pages))
	for i := range numbers {
		numbers[i] = i + 1
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		fmt.Fprintf(&b, "--- Page %d ---\n", n)
		b.WriteString(pages[n-1])
		b.WriteString("\n")
	}
	return b.String()
}
