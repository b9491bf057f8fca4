package healthmonitor

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeReclaimStore struct {
	reclaimedIDs []string
	reclaimErr   error
	deadIDs      []string
	deadErr      error
	reclaimCalls int
	deadCalls    int
}

func (f *fakeReclaimStore) ReclaimStranded(ctx context.Context, staleThreshold time.Duration) ([]string, error) {
	f.reclaimCalls++
	return f.reclaimedIDs, f.reclaimErr
}

func (f *fakeReclaimStore) MarkDeadWorkers(ctx context.Context, deadThreshold time.Duration) ([]string, error) {
	f.deadCalls++
	return f.deadIDs, f.deadErr
}

func TestSweepOnceCallsBothReclaimOperations(t *testing.T) {
	store := &fakeReclaimStore{reclaimedIDs: []string{"job-1"}, deadIDs: []string{"worker-2"}}
	m := New(Config{}, store, nil)

	m.sweepOnce(context.Background())

	if store.reclaimCalls != 1 {
		t.Errorf("expected ReclaimStranded called once, got %d", store.reclaimCalls)
	}
	if store.deadCalls != 1 {
		t.Errorf("expected MarkDeadWorkers called once, got %d", store.deadCalls)
	}
}

func TestSweepOnceToleratesErrorsFromEitherCall(t *testing.T) {
	store := &fakeReclaimStore{reclaimErr: errors.New("db down"), deadErr: errors.New("db down")}
	m := New(Config{}, store, nil)

	// must not panic even when both calls fail
	m.sweepOnce(context.Background())
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	store := &fakeReclaimStore{}
	m := New(Config{CheckInterval: 10 * time.Millisecond}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error on clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
