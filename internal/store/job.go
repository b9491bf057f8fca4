// Package store implements the queue table access layer: the atomic
// claim protocol, result persistence, pending-count queries for the Pool
// Manager, and the stranded-job reclamation queries for the Health
// Monitor — all against Postgres via pgx/v5's pgxpool.
package store

import (
	"fmt"
	"time"
)

// StatusID is the queue row's lifecycle state, §3/§4.11.
type StatusID int

const (
	StatusPending       StatusID = 1
	StatusExtracting    StatusID = 2
	StatusExtracted     StatusID = 3
	StatusError         StatusID = 4
	StatusOCRComplete   StatusID = 5
	StatusOCRInProgress StatusID = 6
)

// DocumentSource selects which pipeline a row belongs to.
type DocumentSource string

const (
	SourceIndex          DocumentSource = "index"
	SourceActe           DocumentSource = "acte"
	SourcePlanCadastraux  DocumentSource = "plan_cadastraux"
)

// Job is the Go representation of one `queue` row.
type Job struct {
	ID                        string
	DocumentSource            DocumentSource
	DocumentNumber            string
	DocumentNumberNormalized  string
	Circonscription           string
	Cadastre                  string
	DesignationSecondaire     string
	StatusID                  StatusID
	StoragePath               *string
	FileContent               *string
	BoostedFileContent        *string

	WorkerID             *string
	ProcessingStartedAt  *time.Time
	Attempts             int
	MaxAttempts          int
	ErrorMessage         *string

	OCRWorkerID      *string
	OCRStartedAt     *time.Time
	OCRCompletedAt   *time.Time
	OCRAttempts      int
	OCRMaxAttempts   int
	OCRError         *string
	OCRLastErrorAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EstimatedTokens is a coarse, pre-call estimate based on document size.
// The Job Monitor does not call it; it dispatches without consulting the
// Rate Budget. It is never reconciled against actual usage — the estimate is the
// accounting, per SPEC_FULL.md/§4.1.
func (j *Job) EstimatedTokens(bytesPerToken int) int {
	if bytesPerToken <= 0 {
		bytesPerToken = 4
	}
	size := 0
	if j.FileContent != nil {
		size = len(*j.FileContent)
	}
	if size == 0 {
		size = 50_000 // a conservative default for an unseen PDF
	}
	return size / bytesPerToken
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ErrInvalidTransition is returned when a caller attempts a status
// transition not present in the state machine of SPEC_FULL.md §4.11.
var ErrInvalidTransition = fmt.Errorf("store: invalid status transition")

var validTransitions = map[StatusID][]StatusID{
	StatusExtracted:     {StatusOCRInProgress},
	StatusOCRInProgress: {StatusOCRComplete, StatusExtracted, StatusError},
}

// ValidateTransition reports whether moving from 'from' to 'to' is legal.
func ValidateTransition(from, to StatusID) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %d -> %d", ErrInvalidTransition, from, to)
}
