// Package pool implements the Pool Manager: it owns the fixed pool size,
// assigns each worker a mode ("index" or "acte"), and rebalances flex
// workers toward whichever class has a deeper backlog, without ever
// violating the configured minima.
package pool

import (
	"context"
	"fmt"
)

// Mode is a worker's current job-class assignment.
type Mode string

const (
	ModeIndex Mode = "index"
	ModeActe  Mode = "acte"
)

// Allocation reports how many workers are (or should be) assigned to each
// class, plus the unassigned flex count.
type Allocation struct {
	Index int
	Acte  int
	Flex  int
}

// Config bounds the Pool Manager's behavior.
type Config struct {
	PoolSize           int
	MinIndexWorkers    int
	MinActeWorkers     int
	RebalanceThreshold int
	FlexBias           Mode // which class the flex share favors by default
}

// ModeStore persists worker_id → mode so a crash-restarted worker resumes
// its last assignment. Implemented by internal/store against the
// `workers` table.
type ModeStore interface {
	AssignMode(ctx context.Context, workerID string, mode Mode) error
	CurrentModes(ctx context.Context) (map[string]Mode, error)
}

// PendingCounts reports how many queued jobs are waiting per class,
// implemented by internal/store against the `queue` table.
type PendingCounts interface {
	PendingByClass(ctx context.Context) (index int, acte int, err error)
}

// Manager is the Pool Manager.
type Manager struct {
	cfg    Config
	modes  ModeStore
	queue  PendingCounts
}

// New returns a Manager.
func New(cfg Config, modes ModeStore, queue PendingCounts) *Manager {
	if cfg.FlexBias == "" {
		cfg.FlexBias = ModeIndex
	}
	return &Manager{cfg: cfg, modes: modes, queue: queue}
}

// InitialAllocation returns the starting split before any rebalance has
// run: minima plus the flex share, entirely toward FlexBias.
func (m *Manager) InitialAllocation() Allocation {
	flex := m.cfg.PoolSize - m.cfg.MinIndexWorkers - m.cfg.MinActeWorkers
	alloc := Allocation{Index: m.cfg.MinIndexWorkers, Acte: m.cfg.MinActeWorkers}
	if m.cfg.FlexBias == ModeIndex {
		alloc.Index += flex
	} else {
		alloc.Acte += flex
	}
	return alloc
}

// AssignMode persists worker_id's mode so a crash-restarted worker
// resumes it.
func (m *Manager) AssignMode(ctx context.Context, workerID string, mode Mode) error {
	return m.modes.AssignMode(ctx, workerID, mode)
}

// ModeFor reads workerID's current assigned mode, defaulting to the
// configured FlexBias if the worker has never been assigned one (e.g.
// its very first poll).
func (m *Manager) ModeFor(ctx context.Context, workerID string) (Mode, error) {
	modes, err := m.modes.CurrentModes(ctx)
	if err != nil {
		return "", fmt.Errorf("pool: mode for %s: %w", workerID, err)
	}
	if mode, ok := modes[workerID]; ok {
		return mode, nil
	}
	return m.cfg.FlexBias, nil
}

// CurrentAllocation reports how many workers currently hold each mode.
func (m *Manager) CurrentAllocation(ctx context.Context) (Allocation, error) {
	modes, err := m.modes.CurrentModes(ctx)
	if err != nil {
		return Allocation{}, fmt.Errorf("pool: current allocation: %w", err)
	}

	alloc := Allocation{}
	for _, mode := range modes {
		switch mode {
		case ModeIndex:
			alloc.Index++
		case ModeActe:
			alloc.Acte++
		}
	}
	alloc.Flex = m.cfg.PoolSize - alloc.Index - alloc.Acte
	return alloc, nil
}

// Rebalance reads pending job counts by class and, if one class has at
// least RebalanceThreshold pending while the other does not, shifts one
// flex worker to the heavier class — never violating either minimum. It
// returns the worker_id reassigned and its new mode, or ("", "", nil) if
// no rebalance was needed or possible. The caller (the scheduler loop)
// is responsible for calling this on RebalanceEvery cadence; mode changes
// take effect at the affected worker's next poll, never mid-job.
func (m *Manager) Rebalance(ctx context.Context) (workerID string, newMode Mode, err error) {
	indexPending, actePending, err := m.queue.PendingByClass(ctx)
	if err != nil {
		return "", "", fmt.Errorf("pool: rebalance: pending counts: %w", err)
	}

	modes, err := m.modes.CurrentModes(ctx)
	if err != nil {
		return "", "", fmt.Errorf("pool: rebalance: current modes: %w", err)
	}

	var indexCount, acteCount int
	for _, mode := range modes {
		switch mode {
		case ModeIndex:
			indexCount++
		case ModeActe:
			acteCount++
		}
	}

	var from, to Mode
	switch {
	case indexPending >= m.cfg.RebalanceThreshold && actePending < m.cfg.RebalanceThreshold && acteCount > m.cfg.MinActeWorkers:
		from, to = ModeActe, ModeIndex
	case actePending >= m.cfg.RebalanceThreshold && indexPending < m.cfg.RebalanceThreshold && indexCount > m.cfg.MinIndexWorkers:
		from, to = ModeIndex, ModeActe
	default:
		return "", "", nil
	}

	for id, mode := range modes {
		if mode == from {
			if err := m.modes.AssignMode(ctx, id, to); err != nil {
				return "", "", fmt.Errorf("pool: rebalance: assign mode: %w", err)
			}
			return id, to, nil
		}
	}
	return "", "", nil
}
