// Package ratebudget implements the process-wide Rate Budget: a per-
// provider admission gate backed by the distributed KV store, so every
// worker goroutine across every process sees the same rpm/tpm ceiling.
package ratebudget

import (
	"context"
	"fmt"
	"time"

	"github.com/quebec-foncier/ocrworkerd/internal/kv"
	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

// Limit is one provider's per-minute ceiling for requests and tokens.
type Limit struct {
	RPM int
	TPM int
}

// Budget is the process-wide admission gate. Its state lives entirely in
// the KV store — the Budget value itself is a handle, not a mutable
// global, per SPEC_FULL.md §9 design note.
type Budget struct {
	kv     kv.Store
	limits map[string]Limit
}

// New returns a Budget enforcing limits per provider name.
func New(store kv.Store, limits map[string]Limit) *Budget {
	return &Budget{kv: store, limits: limits}
}

func windowKey(provider, counter string) string {
	return fmt.Sprintf("ratebudget:%s:%s", provider, counter)
}

// currentWindow returns the start of the current one-minute window and the
// instant it ends, used to align every worker's TTL to the same boundary
// so concurrent callers creating the window key converge on one reset
// instant instead of each starting their own minute-long TTL.
func currentWindow(now time.Time) (start, end time.Time) {
	start = now.Truncate(time.Minute)
	end = start.Add(time.Minute)
	return start, end
}

// TryAdmit attempts to admit a call of estimatedTokens against provider's
// rpm/tpm ceiling for the current window. On success it increments both
// counters. On refusal it returns an ocrerrors.Deferred naming how long
// until the window resets.
func (b *Budget) TryAdmit(ctx context.Context, provider string, estimatedTokens int) error {
	limit, ok := b.limits[provider]
	if !ok {
		return fmt.Errorf("ratebudget: no limit configured for provider %q: %w", provider, ocrerrors.ErrFatalStartup)
	}

	now := time.Now()
	_, end := currentWindow(now)

	rpmKey := windowKey(provider, "rpm")
	tpmKey := windowKey(provider, "tpm")

	rpm, err := b.kv.Incr(ctx, rpmKey, 1)
	if err != nil {
		return fmt.Errorf("ratebudget: incr rpm: %w", err)
	}
	if rpm == 1 {
		if err := b.kv.ExpireAt(ctx, rpmKey, end); err != nil {
			return fmt.Errorf("ratebudget: expire rpm: %w", err)
		}
	}

	tpm, err := b.kv.Incr(ctx, tpmKey, int64(estimatedTokens))
	if err != nil {
		return fmt.Errorf("ratebudget: incr tpm: %w", err)
	}
	if tpm == int64(estimatedTokens) {
		if err := b.kv.ExpireAt(ctx, tpmKey, end); err != nil {
			return fmt.Errorf("ratebudget: expire tpm: %w", err)
		}
	}

	// A refused call must not leave its counters inflated: roll back
	// exactly what this call added so a later retry within the same
	// window is judged against the budget it actually consumed, not
	// against phantom usage from calls that never admitted.
	if rpm > int64(limit.RPM) || tpm > int64(limit.TPM) {
		if _, err := b.kv.Incr(ctx, rpmKey, -1); err != nil {
			return fmt.Errorf("ratebudget: rollback rpm: %w", err)
		}
		if _, err := b.kv.Incr(ctx, tpmKey, -int64(estimatedTokens)); err != nil {
			return fmt.Errorf("ratebudget: rollback tpm: %w", err)
		}
		return &ocrerrors.Deferred{RetryAfter: end.Sub(now)}
	}
	return nil
}

// RegisterWorker records that a worker is actively consuming provider's
// budget. Presence-only: it adds an entry to the provider's workers
// hash, which nothing in this module reads back.
func (b *Budget) RegisterWorker(ctx context.Context, provider, workerID string) error {
	if err := b.kv.HIncrBy(ctx, fmt.Sprintf("ratebudget:%s:workers", provider), workerID, 1); err != nil {
		return fmt.Errorf("ratebudget: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker's presence entry.
func (b *Budget) DeregisterWorker(ctx context.Context, provider, workerID string) error {
	if err := b.kv.HDel(ctx, fmt.Sprintf("ratebudget:%s:workers", provider), workerID); err != nil {
		return fmt.Errorf("ratebudget: deregister worker: %w", err)
	}
	return nil
}

// ResetWindow clears a provider's current-window counters immediately,
// used by tests and by an operator-triggered reset; production resets
// happen implicitly via the per-window TTL.
func (b *Budget) ResetWindow(ctx context.Context, provider string) error {
	return b.kv.Del(ctx, windowKey(provider, "rpm"), windowKey(provider, "tpm"))
}

// Snapshot reports the current window's usage for the /status endpoint.
type Snapshot struct {
	Provider string
	RPMUsed  int64
	RPMLimit int
	TPMUsed  int64
	TPMLimit int
}

// Status returns the current usage snapshot for provider.
func (b *Budget) Status(ctx context.Context, provider string) (Snapshot, error) {
	limit, ok := b.limits[provider]
	if !ok {
		return Snapshot{}, fmt.Errorf("ratebudget: no limit configured for provider %q", provider)
	}

	rpmStr, _, err := b.kv.Get(ctx, windowKey(provider, "rpm"))
	if err != nil {
		return Snapshot{}, fmt.Errorf("ratebudget: status rpm: %w", err)
	}
	tpmStr, _, err := b.kv.Get(ctx, windowKey(provider, "tpm"))
	if err != nil {
		return Snapshot{}, fmt.Errorf("ratebudget: status tpm: %w", err)
	}

	rpm, _ := kv.ParseFloat(orZero(rpmStr))
	tpm, _ := kv.ParseFloat(orZero(tpmStr))

	return Snapshot{
		Provider: provider,
		RPMUsed:  int64(rpm),
		RPMLimit: limit.RPM,
		TPMUsed:  int64(tpm),
		TPMLimit: limit.TPM,
	}, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
