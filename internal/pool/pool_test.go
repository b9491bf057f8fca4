package pool

import (
	"context"
	"sync"
	"testing"
)

type fakeModeStore struct {
	mu    sync.Mutex
	modes map[string]Mode
}

func newFakeModeStore(initial map[string]Mode) *fakeModeStore {
	modes := make(map[string]Mode, len(initial))
	for k, v := range initial {
		modes[k] = v
	}
	return &fakeModeStore{modes: modes}
}

func (f *fakeModeStore) AssignMode(_ context.Context, workerID string, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[workerID] = mode
	return nil
}

func (f *fakeModeStore) CurrentModes(_ context.Context) (map[string]Mode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Mode, len(f.modes))
	for k, v := range f.modes {
		out[k] = v
	}
	return out, nil
}

type fakePendingCounts struct {
	index, acte int
}

func (f fakePendingCounts) PendingByClass(context.Context) (int, int, error) {
	return f.index, f.acte, nil
}

func TestInitialAllocationFlexTowardIndex(t *testing.T) {
	cfg := Config{PoolSize: 8, MinIndexWorkers: 2, MinActeWorkers: 2, FlexBias: ModeIndex}
	m := New(cfg, newFakeModeStore(nil), fakePendingCounts{})

	alloc := m.InitialAllocation()
	if alloc.Index != 6 || alloc.Acte != 2 {
		t.Errorf("alloc = %+v, want index=6 acte=2", alloc)
	}
}

func TestRebalanceNeverViolatesMinima(t *testing.T) {
	modes := newFakeModeStore(map[string]Mode{
		"w1": ModeIndex, "w2": ModeIndex,
		"w3": ModeActe, "w4": ModeActe,
	})
	cfg := Config{PoolSize: 4, MinIndexWorkers: 2, MinActeWorkers: 2, RebalanceThreshold: 5}
	m := New(cfg, modes, fakePendingCounts{index: 10, acte: 0})

	workerID, newMode, err := m.Rebalance(context.Background())
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if workerID != "" {
		t.Fatalf("expected no rebalance since shifting would violate acte minimum, got worker=%s mode=%s", workerID, newMode)
	}
}

func TestRebalanceShiftsFlexWorker(t *testing.T) {
	modes := newFakeModeStore(map[string]Mode{
		"w1": ModeIndex, "w2": ModeIndex,
		"w3": ModeActe, "w4": ModeActe, "w5": ModeActe,
	})
	cfg := Config{PoolSize: 5, MinIndexWorkers: 2, MinActeWorkers: 2, RebalanceThreshold: 5}
	m := New(cfg, modes, fakePendingCounts{index: 10, acte: 0})

	workerID, newMode, err := m.Rebalance(context.Background())
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if workerID == "" || newMode != ModeIndex {
		t.Fatalf("expected a worker shifted to index, got worker=%q mode=%q", workerID, newMode)
	}

	current, _ := modes.CurrentModes(context.Background())
	if current[workerID] != ModeIndex {
		t.Errorf("persisted mode = %q, want index", current[workerID])
	}
}

func TestCurrentAllocationCountsAndFlex(t *testing.T) {
	modes := newFakeModeStore(map[string]Mode{"w1": ModeIndex, "w2": ModeActe})
	cfg := Config{PoolSize: 4, MinIndexWorkers: 1, MinActeWorkers: 1}
	m := New(cfg, modes, fakePendingCounts{})

	alloc, err := m.CurrentAllocation(context.Background())
	if err != nil {
		t.Fatalf("current allocation: %v", err)
	}
	if alloc.Index != 1 || alloc.Acte != 1 || alloc.Flex != 2 {
		t.Errorf("alloc = %+v, want index=1 acte=1 flex=2", alloc)
	}
}
