// Package eventlog implements the structured JSONL event log named in
// SPEC_FULL.md §2: one line per provider call, claim, and pipeline stage
// transition, for traceability independent of the slog handler a worker
// happens to be configured with. It replaces the teacher's DefraDB-backed
// LLM call recorder with a plain JSONL writer — there is no document
// store in this system to batch writes into.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded occurrence: a provider call, a claim attempt, a
// pipeline stage completion, or a sanitizer warning.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	JobID     string          `json:"job_id,omitempty"`
	WorkerID  string          `json:"worker_id,omitempty"`
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	LatencyMs int64           `json:"latency_ms,omitempty"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Log writes Events as newline-delimited JSON, one write per event,
// safe for concurrent use by every worker goroutine.
type Log struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps w (typically a file or stdout) as an event log.
func New(w io.Writer) *Log {
	return &Log{w: w}
}

// Record serializes and writes e, stamping ID/Timestamp if unset. A
// write failure is logged to nothing — event logging is best-effort and
// must never fail the pipeline operation it is describing.
func (l *Log) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(data)
}

// ProviderCall records one provider call outcome.
func (l *Log) ProviderCall(jobID, workerID, provider, model string, latency time.Duration, err error) {
	e := Event{
		Kind:      "provider_call",
		JobID:     jobID,
		WorkerID:  workerID,
		Provider:  provider,
		Model:     model,
		LatencyMs: latency.Milliseconds(),
		Success:   err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	l.Record(e)
}

// Claim records an atomic claim attempt's outcome.
func (l *Log) Claim(jobID, workerID string, success bool, err error) {
	e := Event{
		Kind:     "claim",
		JobID:    jobID,
		WorkerID: workerID,
		Success:  success,
	}
	if err != nil {
		e.Error = err.Error()
	}
	l.Record(e)
}

// SanitizerWarning records a malformed sanitizer input, never fatal.
func (l *Log) SanitizerWarning(jobID, excerpt string) {
	l.Record(Event{
		Kind:    "sanitizer_warning",
		JobID:   jobID,
		Success: true,
		Detail:  json.RawMessage(fmt.Sprintf("%q", excerpt)),
	})
}

// Banner writes a human-readable startup/shutdown line to w, outside the
// JSONL stream — operators tailing the log by eye see this, automated
// consumers of the JSONL stream ignore it since it is not valid JSON.
func Banner(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "=== "+format+" ===\n", args...)
}
