package ratebudget

import (
	"context"
	"errors"
	"testing"

	"github.com/quebec-foncier/ocrworkerd/internal/kv"
	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

func TestTryAdmitWithinLimits(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, map[string]Limit{"openai": {RPM: 3, TPM: 10000}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.TryAdmit(ctx, "openai", 100); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
}

func TestTryAdmitDeniesOverRPM(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, map[string]Limit{"openai": {RPM: 1, TPM: 10000}})
	ctx := context.Background()

	if err := b.TryAdmit(ctx, "openai", 10); err != nil {
		t.Fatalf("first admit should succeed: %v", err)
	}

	err := b.TryAdmit(ctx, "openai", 10)
	if err == nil {
		t.Fatalf("expected second admit to be deferred")
	}
	var deferred *ocrerrors.Deferred
	if !errors.As(err, &deferred) {
		t.Fatalf("expected *ocrerrors.Deferred, got %T: %v", err, err)
	}
	if deferred.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %v", deferred.RetryAfter)
	}
}

func TestTryAdmitRollsBackOnRefusal(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, map[string]Limit{"openai": {RPM: 5, TPM: 150}})
	ctx := context.Background()

	if err := b.TryAdmit(ctx, "openai", 100); err != nil {
		t.Fatalf("first admit should succeed: %v", err)
	}

	before, err := b.Status(ctx, "openai")
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	// this call would push tpm to 200, over the 150 ceiling, and must be
	// refused without leaving its attempted usage on the counters.
	err = b.TryAdmit(ctx, "openai", 100)
	var deferred *ocrerrors.Deferred
	if !errors.As(err, &deferred) {
		t.Fatalf("expected *ocrerrors.Deferred, got %T: %v", err, err)
	}

	after, err := b.Status(ctx, "openai")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if after.RPMUsed != before.RPMUsed || after.TPMUsed != before.TPMUsed {
		t.Fatalf("refused call left counters inflated: before %+v, after %+v", before, after)
	}

	// the budget the first call actually consumed should still be
	// available to a later admissible call within the same window.
	if err := b.TryAdmit(ctx, "openai", 50); err != nil {
		t.Fatalf("admissible call should still succeed after rollback: %v", err)
	}
}

func TestTryAdmitUnconfiguredProviderIsFatal(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, map[string]Limit{})
	ctx := context.Background()

	err := b.TryAdmit(ctx, "unknown", 10)
	if !errors.Is(err, ocrerrors.ErrFatalStartup) {
		t.Fatalf("expected ErrFatalStartup, got %v", err)
	}
}

func TestRegisterDeregisterWorker(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, map[string]Limit{"openai": {RPM: 10, TPM: 1000}})
	ctx := context.Background()

	if err := b.RegisterWorker(ctx, "openai", "worker-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := b.DeregisterWorker(ctx, "openai", "worker-1"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
}
