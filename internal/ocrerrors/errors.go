// Package ocrerrors defines the error taxonomy shared by every layer of the
// OCR worker pool, from provider clients up to the job monitor. Callers use
// errors.Is/errors.As against the sentinels below instead of matching on
// error strings.
package ocrerrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel categories. Each is wrapped with context via fmt.Errorf("%w: ...")
// at the call site, never returned bare.
var (
	// ErrClaimLost means the compare-and-update on a queue row returned no
	// rows: another worker won the race. Recovered locally by the job
	// monitor, which moves on to the next candidate.
	ErrClaimLost = errors.New("claim lost")

	// ErrRateDeferred means the Rate Budget declined to admit a call.
	// Recovered locally by waiting RetryAfter and retrying the claim step.
	ErrRateDeferred = errors.New("rate budget deferred")

	// ErrProviderTransient covers network errors, 5xx, timeouts, and
	// rate-limit responses from a provider. Retried with backoff; once the
	// retry budget for a provider is exhausted the caller switches provider.
	ErrProviderTransient = errors.New("provider transient error")

	// ErrProviderFatal covers 4xx responses that are not rate-limiting
	// (bad request, invalid credentials, unsupported model). Not retried
	// against the same provider; the caller switches provider immediately.
	ErrProviderFatal = errors.New("provider fatal error")

	// ErrProviderOverloaded is a capacity-shed response (explicit overload
	// signal from the provider; an open circuit breaker surfaces as
	// gobreaker's own error instead). Treated like ErrProviderTransient
	// for retry purposes but recorded separately for observability.
	ErrProviderOverloaded = errors.New("provider overloaded")

	// ErrBothProvidersFailed means primary and fallback both exhausted their
	// attempt budgets for a stage; this is the fatal, per-job outcome of the
	// Unified Processor.
	ErrBothProvidersFailed = errors.New("both providers failed")

	// ErrSanitizerMalformed is never returned to a caller as fatal — the
	// sanitizer always produces a minimal valid document — but is logged as
	// a warning event via this sentinel for observability.
	ErrSanitizerMalformed = errors.New("sanitizer input malformed")

	// ErrPersistence names queue-table or object-storage write failures.
	// No code path returns it: when a result write fails, the Job Monitor
	// logs the failure and keeps polling, and the claim stays at
	// OcrInProgress until the Health Monitor reclaims it.
	ErrPersistence = errors.New("persistence error")

	// ErrFatalStartup covers missing configuration, unreachable KV store, or
	// a denied capacity check at process startup.
	ErrFatalStartup = errors.New("fatal startup error")

	// ErrUnknownModel is returned when a configured model name has no entry
	// in the token-limit table (see providers.TokenLimitFor). Deliberately
	// fatal rather than defaulted, per the Open Question in spec §9.
	ErrUnknownModel = errors.New("unknown model: no configured token limit")
)

// RateLimitError carries a server-advised retry delay. Wrap it with
// ErrProviderTransient via errors.Join or embed it directly; callers use
// AsRateLimit to recover the delay.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s: %v", e.Provider, e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return errors.Join(ErrProviderTransient, e.Err)
}

// AsRateLimit extracts a *RateLimitError from err, if present.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// Deferred carries the retry-after duration for ErrRateDeferred.
type Deferred struct {
	RetryAfter time.Duration
}

func (e *Deferred) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrRateDeferred, e.RetryAfter)
}

func (e *Deferred) Unwrap() error {
	return ErrRateDeferred
}

// AsDeferred extracts a *Deferred from err, if present.
func AsDeferred(err error) (*Deferred, bool) {
	var d *Deferred
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}

// CapacityDenied reports why a capacity check refused a worker class.
type CapacityDenied struct {
	Class     string
	Reason    string
	Current   float64
	Available float64
}

func (e *CapacityDenied) Error() string {
	return fmt.Sprintf("capacity denied for class %s: %s (current=%.1f available=%.1f)",
		e.Class, e.Reason, e.Current, e.Available)
}

func (e *CapacityDenied) Unwrap() error {
	return ErrFatalStartup
}
