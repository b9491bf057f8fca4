package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

const candidateBatchSize = 20

const candidateQuerySQL = `
SELECT id
FROM queue
WHERE status_id = $1
  AND document_source = $2
  AND storage_path IS NOT NULL
  AND (file_content IS NULL OR document_source = 'acte')
  AND (ocr_attempts IS NULL OR ocr_attempts < ocr_max_attempts)
ORDER BY created_at ASC
LIMIT $3
`

const claimSQL = `
UPDATE queue SET
  status_id = $1,
  ocr_worker_id = $2,
  ocr_started_at = now(),
  ocr_attempts = ocr_attempts + 1,
  updated_at = now()
WHERE id = $3 AND status_id = $4
RETURNING id, document_source, document_number, document_number_normalized,
  circonscription, cadastre, designation_secondaire, status_id, storage_path,
  file_content, boosted_file_content, worker_id, processing_started_at,
  attempts, max_attempts, error_message, ocr_worker_id, ocr_started_at,
  ocr_completed_at, ocr_attempts, ocr_max_attempts, ocr_error,
  ocr_last_error_at, created_at, updated_at
`

// Candidates returns up to candidateBatchSize row IDs eligible for claim
// under mode, ordered oldest-first, per §4.9 step 3.
func (s *Store) Candidates(ctx context.Context, mode string) ([]string, error) {
	rows, err := s.pool.Query(ctx, candidateQuerySQL, StatusExtracted, mode, candidateBatchSize)
	if err != nil {
		return nil, fmt.Errorf("store: candidates query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim attempts the atomic compare-and-update of §4.9 step 4 against a
// single candidate row. An empty RETURNING set means another worker won
// the race; the caller moves on to the next candidate rather than
// treating this as a fatal error.
func (s *Store) Claim(ctx context.Context, candidateID, workerID string) (*Job, error) {
	row := s.pool.QueryRow(ctx, claimSQL, StatusOCRInProgress, workerID, candidateID, StatusExtracted)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ocrerrors.ErrClaimLost
		}
		return nil, fmt.Errorf("store: claim %s: %w", candidateID, err)
	}
	return j, nil
}

// ClaimNext walks Candidates in order and returns the first row this
// worker successfully claims, or ocrerrors.ErrClaimLost if every
// candidate was won by someone else.
func (s *Store) ClaimNext(ctx context.Context, mode, workerID string) (*Job, error) {
	ids, err := s.Candidates(ctx, mode)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		job, err := s.Claim(ctx, id, workerID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, ocrerrors.ErrClaimLost) {
			return nil, err
		}
	}
	return nil, ocrerrors.ErrClaimLost
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.DocumentSource, &j.DocumentNumber, &j.DocumentNumberNormalized,
		&j.Circonscription, &j.Cadastre, &j.DesignationSecondaire, &j.StatusID, &j.StoragePath,
		&j.FileContent, &j.BoostedFileContent, &j.WorkerID, &j.ProcessingStartedAt,
		&j.Attempts, &j.MaxAttempts, &j.ErrorMessage, &j.OCRWorkerID, &j.OCRStartedAt,
		&j.OCRCompletedAt, &j.OCRAttempts, &j.OCRMaxAttempts, &j.OCRError,
		&j.OCRLastErrorAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
