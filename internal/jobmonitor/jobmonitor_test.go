package jobmonitor

import (
	"context"
	"errors"
	"testing"

	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/store"
)

type fakeQueueStore struct {
	heartbeats   int
	claimResult  *store.Job
	claimErr     error
	completed    []string
	failed       []string
}

func (f *fakeQueueStore) Heartbeat(ctx context.Context, workerID string) error {
	f.heartbeats++
	return nil
}

func (f *fakeQueueStore) ClaimNext(ctx context.Context, mode, workerID string) (*store.Job, error) {
	return f.claimResult, f.claimErr
}

func (f *fakeQueueStore) FailJob(ctx context.Context, job *store.Job, cause string) error {
	f.failed = append(f.failed, job.ID)
	return nil
}

func (f *fakeQueueStore) CompleteJob(ctx context.Context, jobID, fileContent, boostedFileContent string) error {
	f.completed = append(f.completed, jobID)
	return nil
}

type fakeModeResolver struct{ mode pool.Mode }

func (f *fakeModeResolver) ModeFor(ctx context.Context, workerID string) (pool.Mode, error) {
	return f.mode, nil
}

func TestPollOnceReturnsFalseOnClaimLost(t *testing.T) {
	qs := &fakeQueueStore{claimErr: ocrerrors.ErrClaimLost}
	mr := &fakeModeResolver{mode: pool.ModeIndex}
	m := New(Config{WorkerID: "w1"}, qs, mr, Pipelines{}, Buckets{}, nil, nil)

	claimed, err := m.pollOnce(context.Background())
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if claimed {
		t.Error("expected no claim on ErrClaimLost")
	}
	if qs.heartbeats != 1 {
		t.Errorf("expected heartbeat to run before claim attempt, got %d", qs.heartbeats)
	}
}

func TestPollOnceSurfacesUnexpectedClaimErrors(t *testing.T) {
	qs := &fakeQueueStore{claimErr: errors.New("db unreachable")}
	mr := &fakeModeResolver{mode: pool.ModeIndex}
	m := New(Config{WorkerID: "w1"}, qs, mr, Pipelines{}, Buckets{}, nil, nil)

	_, err := m.pollOnce(context.Background())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestProcessFailsJobOnUnknownDocumentSource(t *testing.T) {
	qs := &fakeQueueStore{}
	mr := &fakeModeResolver{mode: pool.ModeIndex}
	m := New(Config{WorkerID: "w1"}, qs, mr, Pipelines{}, Buckets{}, nil, nil)

	path := "pdf://x"
	job := &store.Job{ID: "job-1", DocumentSource: "unknown", StoragePath: &path}
	m.process(context.Background(), job)

	if len(qs.failed) != 1 || qs.failed[0] != "job-1" {
		t.Errorf("expected job-1 recorded as failed, got %+v", qs.failed)
	}
}
