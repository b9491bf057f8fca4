package store

import (
	"context"
	"fmt"

	"github.com/quebec-foncier/ocrworkerd/internal/pool"
)

var _ pool.ModeStore = (*Store)(nil)
var _ pool.PendingCounts = (*Store)(nil)

const upsertWorkerModeSQL = `
INSERT INTO workers (id, mode, status, last_heartbeat_at)
VALUES ($1, $2, 'online', now())
ON CONFLICT (id) DO UPDATE SET mode = $2, status = 'online', last_heartbeat_at = now()
`

// AssignMode records the Pool Manager's mode decision for workerID and
// refreshes its heartbeat, implementing pool.ModeStore.
func (s *Store) AssignMode(ctx context.Context, workerID string, mode pool.Mode) error {
	_, err := s.pool.Exec(ctx, upsertWorkerModeSQL, workerID, string(mode))
	if err != nil {
		return fmt.Errorf("store: assign mode %s=%s: %w", workerID, mode, err)
	}
	return nil
}

const currentModesSQL = `SELECT id, mode FROM workers WHERE status = 'online'`

// CurrentModes returns every online worker's assigned mode, implementing
// pool.ModeStore.
func (s *Store) CurrentModes(ctx context.Context) (map[string]pool.Mode, error) {
	rows, err := s.pool.Query(ctx, currentModesSQL)
	if err != nil {
		return nil, fmt.Errorf("store: current modes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]pool.Mode)
	for rows.Next() {
		var id, mode string
		if err := rows.Scan(&id, &mode); err != nil {
			return nil, fmt.Errorf("store: scan worker mode: %w", err)
		}
		out[id] = pool.Mode(mode)
	}
	return out, rows.Err()
}

const pendingByClassSQL = `
SELECT document_source, count(*)
FROM queue
WHERE status_id = $1 AND storage_path IS NOT NULL
GROUP BY document_source
`

// PendingByClass counts Extracted rows eligible for claim per class,
// implementing pool.PendingCounts — the signal the Pool Manager uses to
// decide which class is under pressure.
func (s *Store) PendingByClass(ctx context.Context) (index, acte int, err error) {
	rows, err := s.pool.Query(ctx, pendingByClassSQL, StatusExtracted)
	if err != nil {
		return 0, 0, fmt.Errorf("store: pending by class: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return 0, 0, fmt.Errorf("store: scan pending count: %w", err)
		}
		switch source {
		case string(SourceIndex):
			index = n
		case string(SourceActe):
			acte = n
		}
	}
	return index, acte, rows.Err()
}

// Heartbeat refreshes a worker's liveness without changing its mode, for
// the idle-report step of §4.9 step 1.
func (s *Store) Heartbeat(ctx context.Context, workerID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE workers SET last_heartbeat_at = now() WHERE id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("store: heartbeat %s: %w", workerID, err)
	}
	return nil
}

// Deregister marks a worker offline on graceful shutdown, §5.
func (s *Store) Deregister(ctx context.Context, workerID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE workers SET status = 'offline' WHERE id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("store: deregister %s: %w", workerID, err)
	}
	return nil
}
