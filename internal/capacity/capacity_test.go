package capacity

import (
	"context"
	"errors"
	"testing"

	"github.com/quebec-foncier/ocrworkerd/internal/kv"
	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

func TestAllocateWithinLimit(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, ServerCapacity{CPUMax: 10, RAMMax: 10240}, map[string]Class{"index-ocr": {CPU: 2, RAM: 4096}})
	ctx := context.Background()

	if err := b.Check(ctx, "index-ocr", "worker-1"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := b.Allocate(ctx, "index-ocr", "worker-1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	snap, err := b.Status(ctx, "index-ocr")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.UsedCPU != 2 || snap.UsedRAM != 4096 {
		t.Errorf("snapshot = %+v, want cpu=2 ram=4096", snap)
	}
}

func TestCheckDeniesOverCeiling(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, ServerCapacity{CPUMax: 4, RAMMax: 8192}, map[string]Class{"index-ocr": {CPU: 4, RAM: 8192}})
	ctx := context.Background()

	if err := b.Allocate(ctx, "index-ocr", "worker-1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	err := b.Check(ctx, "index-ocr", "worker-2")
	if err == nil {
		t.Fatalf("expected capacity check to be denied")
	}
	var denied *ocrerrors.CapacityDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected *ocrerrors.CapacityDenied, got %T: %v", err, err)
	}
	if denied.Reason != "cpu" {
		t.Errorf("reason = %q, want cpu", denied.Reason)
	}
}

func TestReleaseFreesAllocation(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, ServerCapacity{CPUMax: 2, RAMMax: 4096}, map[string]Class{"acte-ocr": {CPU: 2, RAM: 4096}})
	ctx := context.Background()

	if err := b.Allocate(ctx, "acte-ocr", "worker-1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := b.Release(ctx, "acte-ocr", "worker-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	if err := b.Check(ctx, "acte-ocr", "worker-2"); err != nil {
		t.Fatalf("expected full capacity to be available after release: %v", err)
	}
}

// TestCheckSharesCeilingAcrossClasses is the case a per-class ledger
// would get wrong: two distinct classes draw down the same shared
// server capacity, so one class's allocation can deny another class's
// check even though neither class's own cost alone exceeds anything.
func TestCheckSharesCeilingAcrossClasses(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, ServerCapacity{CPUMax: 5, RAMMax: 10240}, map[string]Class{
		"registre":  {CPU: 3, RAM: 1024},
		"index-ocr": {CPU: 1, RAM: 1024},
		"acte-ocr":  {CPU: 2, RAM: 2048},
	})
	ctx := context.Background()

	// An external registre worker allocates against the shared ledger.
	if err := b.Allocate(ctx, "registre", "registre-worker-1"); err != nil {
		t.Fatalf("allocate registre: %v", err)
	}

	// 5 - 3 (registre) = 2 cpu remaining: acte-ocr (cost 2) fits exactly.
	if err := b.Check(ctx, "acte-ocr", "acte-worker-1"); err != nil {
		t.Fatalf("expected acte-ocr to fit in remaining shared capacity: %v", err)
	}
	if err := b.Allocate(ctx, "acte-ocr", "acte-worker-1"); err != nil {
		t.Fatalf("allocate acte-ocr: %v", err)
	}

	// No cpu left shared across classes: index-ocr (cost 1) must be denied.
	err := b.Check(ctx, "index-ocr", "index-worker-1")
	if err == nil {
		t.Fatalf("expected index-ocr check to be denied once registre+acte-ocr exhaust shared cpu")
	}
	var denied *ocrerrors.CapacityDenied
	if !errors.As(err, &denied) {
		t.Fatalf("expected *ocrerrors.CapacityDenied, got %T: %v", err, err)
	}
}

func TestCheckRespectsReservedCapacity(t *testing.T) {
	store := kv.NewFakeStore()
	b := New(store, ServerCapacity{CPUMax: 4, RAMMax: 8192, CPUReserved: 2}, map[string]Class{
		"index-ocr": {CPU: 2, RAM: 1024},
	})
	ctx := context.Background()

	// Available cpu = 4 - 2 reserved = 2, exactly the class's cost.
	if err := b.Check(ctx, "index-ocr", "worker-1"); err != nil {
		t.Fatalf("expected check to fit within non-reserved capacity: %v", err)
	}
	if err := b.Allocate(ctx, "index-ocr", "worker-1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := b.Check(ctx, "index-ocr", "worker-2"); err == nil {
		t.Fatalf("expected second worker to be denied: reserved capacity leaves no room")
	}
}
