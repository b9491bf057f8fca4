package store

import (
	"context"
	"fmt"
	"time"
)

const reclaimStrandedSQL = `
UPDATE queue SET
  status_id = $1,
  ocr_worker_id = NULL,
  ocr_error = 'Reset by health monitor',
  updated_at = now()
WHERE status_id = $2 AND ocr_started_at < $3
RETURNING id
`

// ReclaimStranded resets queue rows stuck at OcrInProgress past
// staleThreshold back to Extracted, per §4.10. The WHERE clause
// re-checks status_id so a row whose owning worker finished between the
// health monitor's scan and this update is never revived out from under
// it — the same compare-and-update discipline as the claim itself.
func (s *Store) ReclaimStranded(ctx context.Context, staleThreshold time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-staleThreshold)
	rows, err := s.pool.Query(ctx, reclaimStrandedSQL, StatusExtracted, StatusOCRInProgress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: reclaim stranded: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan reclaimed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const markDeadWorkersSQL = `
UPDATE workers SET status = 'offline'
WHERE last_heartbeat_at < $1 AND status != 'offline'
RETURNING id
`

// MarkDeadWorkers flags workers whose heartbeat predates deadThreshold
// as offline, per §4.10.
func (s *Store) MarkDeadWorkers(ctx context.Context, deadThreshold time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-deadThreshold)
	rows, err := s.pool.Query(ctx, markDeadWorkersSQL, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: mark dead workers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan dead worker id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
