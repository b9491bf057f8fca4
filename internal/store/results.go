package store

import (
	"context"
	"fmt"
)

const completeJobSQL = `
UPDATE queue SET
  status_id = $1,
  file_content = $2,
  boosted_file_content = $3,
  ocr_completed_at = now(),
  ocr_error = NULL,
  updated_at = now()
WHERE id = $4
`

// CompleteJob persists a successful pipeline run, §4.9 step 7.
func (s *Store) CompleteJob(ctx context.Context, jobID, fileContent, boostedFileContent string) error {
	_, err := s.pool.Exec(ctx, completeJobSQL, StatusOCRComplete, fileContent, boostedFileContent, jobID)
	if err != nil {
		return fmt.Errorf("store: complete job %s: %w", jobID, err)
	}
	return nil
}

const failJobSQL = `
UPDATE queue SET
  status_id = $1,
  ocr_error = $2,
  ocr_last_error_at = now(),
  updated_at = now()
WHERE id = $3
`

// FailJob records a failed attempt, §4.9 step 8. The caller passes the
// job's current OCRAttempts/OCRMaxAttempts (as read off the claimed row)
// to decide whether this is terminal or retryable.
func (s *Store) FailJob(ctx context.Context, job *Job, cause string) error {
	next := nextStatusOnFailure(job.OCRAttempts, job.OCRMaxAttempts)
	_, err := s.pool.Exec(ctx, failJobSQL, next, cause, job.ID)
	if err != nil {
		return fmt.Errorf("store: fail job %s: %w", job.ID, err)
	}
	return nil
}

// nextStatusOnFailure implements §4.9 step 8's branch: terminal once
// attempts have been exhausted, otherwise back to Extracted for retry by
// any worker.
func nextStatusOnFailure(attempts, maxAttempts int) StatusID {
	if attempts >= maxAttempts {
		return StatusError
	}
	return StatusExtracted
}
