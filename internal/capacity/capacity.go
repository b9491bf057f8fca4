// Package capacity implements the Capacity Budget: a single server-wide
// cpu/ram ledger backed by the distributed KV store, shared across every
// worker class — including classes this process never starts workers
// for itself (e.g. registre). Check and Allocate are the admission calls;
// the serve command does not call them and the Pool Manager does not read
// the ledger, so worker starts are not gated by it. The ledger is read
// for /status and the metrics gauges.
package capacity

import (
	"context"
	"fmt"
	"strings"

	"github.com/quebec-foncier/ocrworkerd/internal/kv"
	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

// Class is one worker class's fixed per-worker cpu/ram cost (e.g.
// registre={cpu:3,ram:1}, index-ocr={cpu:1,ram:1}, acte-ocr={cpu:2,ram:2}).
type Class struct {
	CPU float64
	RAM float64
}

// ServerCapacity is the fixed host footprint shared across every class.
type ServerCapacity struct {
	CPUMax      float64
	RAMMax      float64
	CPUReserved float64
	RAMReserved float64
}

// AvailableCPU is the shared ceiling after reserve, against which every
// class's cost is checked.
func (s ServerCapacity) AvailableCPU() float64 { return s.CPUMax - s.CPUReserved }

// AvailableRAM is the shared ceiling after reserve, against which every
// class's cost is checked.
func (s ServerCapacity) AvailableRAM() float64 { return s.RAMMax - s.RAMReserved }

// Budget is the process-wide capacity ledger: one allocation table
// shared across every class, checked against one server-wide ceiling.
type Budget struct {
	kv      kv.Store
	server  ServerCapacity
	classes map[string]Class
}

// New returns a Budget enforcing a single shared server ceiling across
// every configured class's per-worker cost.
func New(store kv.Store, server ServerCapacity, classes map[string]Class) *Budget {
	return &Budget{kv: store, server: server, classes: classes}
}

// ledgerKey is the single hash holding every class's allocations, so
// `check` can compare the class's cost against capacity remaining after
// every other class's (including an external registre process's)
// existing allocation, not just this class's own.
const ledgerKey = "capacity:allocations"

// Check reports whether allocating one worker of class would stay
// within the shared server ceiling, without reserving anything.
func (b *Budget) Check(ctx context.Context, class, workerID string) error {
	cost, ok := b.classes[class]
	if !ok {
		return fmt.Errorf("capacity: no class %q configured: %w", class, ocrerrors.ErrFatalStartup)
	}

	fields, err := b.kv.HGetAll(ctx, ledgerKey)
	if err != nil {
		return fmt.Errorf("capacity: check: %w", err)
	}

	usedCPU, usedRAM := sumAllocations(fields, func(c, w string) bool {
		return c == class && w == workerID
	})

	availableCPU := b.server.AvailableCPU() - usedCPU
	availableRAM := b.server.AvailableRAM() - usedRAM
	if cost.CPU > availableCPU {
		return &ocrerrors.CapacityDenied{Class: class, Reason: "cpu", Current: usedCPU, Available: availableCPU}
	}
	if cost.RAM > availableRAM {
		return &ocrerrors.CapacityDenied{Class: class, Reason: "ram", Current: usedRAM, Available: availableRAM}
	}
	return nil
}

// Allocate reserves class's configured cost for workerID after a
// successful Check. Callers should Check then Allocate without releasing
// the goroutine between them to keep the race window small; a genuine
// race is still possible, and nothing re-checks the ledger afterwards.
func (b *Budget) Allocate(ctx context.Context, class, workerID string) error {
	cost, ok := b.classes[class]
	if !ok {
		return fmt.Errorf("capacity: no class %q configured: %w", class, ocrerrors.ErrFatalStartup)
	}
	if _, err := b.kv.HIncrBy(ctx, ledgerKey, cpuField(class, workerID), cost.CPU); err != nil {
		return fmt.Errorf("capacity: allocate cpu: %w", err)
	}
	if _, err := b.kv.HIncrBy(ctx, ledgerKey, ramField(class, workerID), cost.RAM); err != nil {
		return fmt.Errorf("capacity: allocate ram: %w", err)
	}
	return nil
}

// Release frees workerID's allocation in class, called on worker
// deregistration or death.
func (b *Budget) Release(ctx context.Context, class, workerID string) error {
	if err := b.kv.HDel(ctx, ledgerKey, cpuField(class, workerID)); err != nil {
		return fmt.Errorf("capacity: release cpu: %w", err)
	}
	if err := b.kv.HDel(ctx, ledgerKey, ramField(class, workerID)); err != nil {
		return fmt.Errorf("capacity: release ram: %w", err)
	}
	return nil
}

// Snapshot reports current utilization for the /status endpoint: class's
// own allocation against the shared server ceiling every class competes
// for.
type Snapshot struct {
	Class      string
	UsedCPU    float64
	LimitCPU   float64
	UsedRAM    float64
	LimitRAM   float64
	NumWorkers int
}

// Status returns the current allocation snapshot for class, measured
// against the shared server ceiling.
func (b *Budget) Status(ctx context.Context, class string) (Snapshot, error) {
	if _, ok := b.classes[class]; !ok {
		return Snapshot{}, fmt.Errorf("capacity: no class %q configured", class)
	}

	fields, err := b.kv.HGetAll(ctx, ledgerKey)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capacity: status: %w", err)
	}

	workers := make(map[string]bool)
	var usedCPU, usedRAM float64
	for field, v := range fields {
		fieldClass, workerID, ok := parseField(field)
		if !ok || fieldClass != class {
			continue
		}
		n, _ := kv.ParseFloat(v)
		switch {
		case strings.HasPrefix(field, "cpu:"):
			usedCPU += n
			workers[workerID] = true
		case strings.HasPrefix(field, "ram:"):
			usedRAM += n
			workers[workerID] = true
		}
	}

	return Snapshot{
		Class:      class,
		UsedCPU:    usedCPU,
		LimitCPU:   b.server.AvailableCPU(),
		UsedRAM:    usedRAM,
		LimitRAM:   b.server.AvailableRAM(),
		NumWorkers: len(workers),
	}, nil
}

func cpuField(class, workerID string) string { return "cpu:" + class + ":" + workerID }
func ramField(class, workerID string) string { return "ram:" + class + ":" + workerID }

// parseField splits a ledger field back into its class and worker ID.
// Returns ok=false for a field that isn't shaped like cpu:/ram:.
func parseField(field string) (class, workerID string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(field, "cpu:"):
		rest = field[len("cpu:"):]
	case strings.HasPrefix(field, "ram:"):
		rest = field[len("ram:"):]
	default:
		return "", "", false
	}
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// sumAllocations totals every cpu/ram field in the shared ledger, except
// the one matching exclude (the caller's own in-flight allocation, so a
// re-check of an already-registered worker doesn't double-count it).
func sumAllocations(fields map[string]string, exclude func(class, workerID string) bool) (cpu, ram float64) {
	for field, v := range fields {
		class, workerID, ok := parseField(field)
		if !ok || exclude(class, workerID) {
			continue
		}
		n, _ := kv.ParseFloat(v)
		switch {
		case strings.HasPrefix(field, "cpu:"):
			cpu += n
		case strings.HasPrefix(field, "ram:"):
			ram += n
		}
	}
	return cpu, ram
}
