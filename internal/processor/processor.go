// Package processor implements the Unified Processor: the provider
// fallback orchestrator that every pipeline calls through rather than
// talking to a providers.Client directly. It owns per-provider circuit
// breakers, the primary-then-fallback order, and the continuation loop
// that reassembles truncated model output.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"

	"github.com/quebec-foncier/ocrworkerd/internal/eventlog"
	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
	"github.com/quebec-foncier/ocrworkerd/internal/providers"
)

const (
	extractCompleteSentinel = "EXTRACTION_COMPLETE:"
	boostCompleteSentinel   = "BOOST_COMPLETE:"
)

// Config bounds the Unified Processor's retry and continuation behavior.
type Config struct {
	MaxProviderRetries int
	RetryBaseDelay     time.Duration
	MaxContinuations   int
}

// UnifiedProcessor dispatches extract/boost calls through the
// primary-then-fallback provider order, each guarded by its own circuit
// breaker, with a bounded continuation loop absorbing truncated replies.
type UnifiedProcessor struct {
	cfg      Config
	registry *providers.Registry
	breakers map[string]*gobreaker.CircuitBreaker[providers.ExtractResult]
	logger   *slog.Logger
	events   *eventlog.Log
}

// New builds a UnifiedProcessor over registry, with one circuit breaker
// per configured provider.
func New(cfg Config, registry *providers.Registry, events *eventlog.Log, logger *slog.Logger) *UnifiedProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxProviderRetries <= 0 {
		cfg.MaxProviderRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.MaxContinuations <= 0 {
		cfg.MaxContinuations = 3
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker[providers.ExtractResult])
	for _, c := range registry.Order() {
		if c == nil {
			continue
		}
		name := c.Name()
		breakers[name] = gobreaker.NewCircuitBreaker[providers.ExtractResult](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return &UnifiedProcessor{cfg: cfg, registry: registry, breakers: breakers, logger: logger, events: events}
}

// ExtractImage runs run_extract_then_boost's extraction half over a
// single page image, trying the primary provider then the fallback, each
// wrapped in the provider's circuit breaker and a bounded retry.
func (p *UnifiedProcessor) ExtractImage(ctx context.Context, jobID string, image []byte, mimeType, prompt string, opts providers.CallOpts) (providers.ExtractResult, error) {
	return p.callWithFallback(ctx, jobID, func(c providers.Client) (providers.ExtractResult, error) {
		return c.ExtractImage(ctx, image, mimeType, prompt, opts)
	})
}

// PrimaryFileClient exposes the file-API-capable primary directly, for
// the acte pipeline's upload/await_ready/delete_file calls that fall
// outside the extract/boost contract.
func (p *UnifiedProcessor) PrimaryFileClient() (providers.FileClient, error) {
	return p.registry.Primary()
}

// ExtractFile runs the acte pipeline's whole-document extraction through
// the file-API-capable primary only — the fallback is vision-only and
// cannot serve this call, per the registry's primary/fallback contract.
func (p *UnifiedProcessor) ExtractFile(ctx context.Context, jobID string, ref providers.FileRef, prompt string, opts providers.CallOpts) (providers.ExtractResult, error) {
	primary, err := p.registry.Primary()
	if err != nil {
		return providers.ExtractResult{}, fmt.Errorf("processor: %w: %v", ocrerrors.ErrBothProvidersFailed, err)
	}

	start := time.Now()
	result, err := p.throughBreaker(ctx, primary, func(c providers.Client) (providers.ExtractResult, error) {
		fc, ok := c.(providers.FileClient)
		if !ok {
			return providers.ExtractResult{}, fmt.Errorf("processor: provider %s is not file-capable", c.Name())
		}
		return fc.ExtractFile(ctx, ref, prompt, opts)
	})
	if p.events != nil {
		p.events.ProviderCall(jobID, "", primary.Name(), "", time.Since(start), err)
	}
	if err != nil {
		return providers.ExtractResult{}, fmt.Errorf("processor: extract file: %w", err)
	}
	return result, nil
}

// Boost runs the boosting half of run_extract_then_boost, with the same
// primary/fallback order as extraction.
func (p *UnifiedProcessor) Boost(ctx context.Context, jobID, text, prompt string, opts providers.CallOpts) (providers.ExtractResult, error) {
	return p.callWithFallback(ctx, jobID, func(c providers.Client) (providers.ExtractResult, error) {
		return c.Boost(ctx, text, prompt, opts)
	})
}

func (p *UnifiedProcessor) callWithFallback(ctx context.Context, jobID string, call func(providers.Client) (providers.ExtractResult, error)) (providers.ExtractResult, error) {
	var lastErr error
	for _, c := range p.registry.Order() {
		if c == nil {
			continue
		}
		start := time.Now()
		result, err := p.throughBreaker(ctx, c, call)
		if p.events != nil {
			p.events.ProviderCall(jobID, "", c.Name(), "", time.Since(start), err)
		}
		if err == nil {
			return result, nil
		}
		// any failure, fatal ones included, moves on to the next provider.
		lastErr = err
	}
	return providers.ExtractResult{}, fmt.Errorf("processor: %w: %v", ocrerrors.ErrBothProvidersFailed, lastErr)
}

// throughBreaker calls c up to MaxProviderRetries times in total, retrying
// only on transient errors, with the whole attempt sequence gated by c's circuit
// breaker so a provider already known to be down fails fast.
func (p *UnifiedProcessor) throughBreaker(ctx context.Context, c providers.Client, call func(providers.Client) (providers.ExtractResult, error)) (providers.ExtractResult, error) {
	cb, ok := p.breakers[c.Name()]
	if !ok {
		return call(c)
	}

	return cb.Execute(func() (providers.ExtractResult, error) {
		var result providers.ExtractResult
		err := retry.Do(
			func() error {
				var callErr error
				result, callErr = call(c)
				return callErr
			},
			retry.Context(ctx),
			retry.Attempts(uint(p.cfg.MaxProviderRetries)),
			retry.Delay(p.cfg.RetryBaseDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(isRetriable),
		)
		return result, err
	})
}

func isRetriable(err error) bool {
	if errors.Is(err, ocrerrors.ErrProviderTransient) || errors.Is(err, ocrerrors.ErrProviderOverloaded) {
		return true
	}
	var rl *ocrerrors.RateLimitError
	return errors.As(err, &rl)
}

// continuationResult is the outcome of a completion loop bounded to
// MaxContinuations rounds, which feeds each round's output back in as
// context until the provider emits the completion sentinel or the bound
// is reached. The final accumulated text has the sentinel stripped.
type continuationResult struct {
	Text       string
	Rounds     int
	Terminated bool // true if the provider signalled completion itself
}

// runContinuation is shared by the index and acte pipelines: it repeats
// roundFn, appending each round's output, until the sentinel appears or
// MaxContinuations rounds have run.
func (p *UnifiedProcessor) runContinuation(ctx context.Context, sentinel string, roundFn func(ctx context.Context, priorText string) (string, error)) (continuationResult, error) {
	var accumulated strings.Builder
	prior := ""
	for round := 0; round < p.cfg.MaxContinuations; round++ {
		chunk, err := roundFn(ctx, prior)
		if err != nil {
			return continuationResult{}, err
		}
		if idx := strings.Index(chunk, sentinel); idx >= 0 {
			accumulated.WriteString(strings.TrimSpace(chunk[:idx]))
			return continuationResult{Text: accumulated.String(), Rounds: round + 1, Terminated: true}, nil
		}
		accumulated.WriteString(chunk)
		prior = chunk
	}
	return continuationResult{Text: accumulated.String(), Rounds: p.cfg.MaxContinuations, Terminated: false}, nil
}

// ExtractWithContinuation runs ExtractFile repeatedly until the
// EXTRACTION_COMPLETE sentinel appears or the continuation bound is hit,
// for whole-document acte extraction that can span multiple replies.
func (p *UnifiedProcessor) ExtractWithContinuation(ctx context.Context, jobID string, ref providers.FileRef, prompt string, opts providers.CallOpts) (string, error) {
	res, err := p.runContinuation(ctx, extractCompleteSentinel, func(ctx context.Context, prior string) (string, error) {
		roundPrompt := prompt
		if prior != "" {
			roundPrompt = prompt + "\n\nContinue from:\n" + prior
		}
		r, err := p.ExtractFile(ctx, jobID, ref, roundPrompt, opts)
		if err != nil {
			return "", err
		}
		return r.Text, nil
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ExtractImageWithContinuation mirrors ExtractWithContinuation for a
// single page image: the extract stage's continuation bound applies
// regardless of whether the unit being extracted is one page or a whole
// document, so a truncated per-page transcript gets follow-up calls
// instead of being accepted as final, up to MaxContinuations rounds in
// all, the first call included.
func (p *UnifiedProcessor) ExtractImageWithContinuation(ctx context.Context, jobID string, image []byte, mimeType, prompt string, opts providers.CallOpts) (string, error) {
	res, err := p.runContinuation(ctx, extractCompleteSentinel, func(ctx context.Context, prior string) (string, error) {
		roundPrompt := prompt
		if prior != "" {
			roundPrompt = prompt + "\n\nContinue from:\n" + prior
		}
		r, err := p.ExtractImage(ctx, jobID, image, mimeType, roundPrompt, opts)
		if err != nil {
			return "", err
		}
		return r.Text, nil
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// BoostWithContinuation mirrors ExtractWithContinuation for the boosting
// stage, watching for BOOST_COMPLETE.
func (p *UnifiedProcessor) BoostWithContinuation(ctx context.Context, jobID, text, prompt string, opts providers.CallOpts) (string, error) {
	res, err := p.runContinuation(ctx, boostCompleteSentinel, func(ctx context.Context, prior string) (string, error) {
		roundText := text
		if prior != "" {
			roundText = prior
		}
		r, err := p.Boost(ctx, jobID, roundText, prompt, opts)
		if err != nil {
			return "", err
		}
		return r.Text, nil
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
