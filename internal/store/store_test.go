package store

import (
	"errors"
	"testing"
)

func TestValidateTransitionAllowsClaim(t *testing.T) {
	if err := ValidateTransition(StatusExtracted, StatusOCRInProgress); err != nil {
		t.Fatalf("expected claim transition to be valid, got %v", err)
	}
}

func TestValidateTransitionRejectsSkippingStates(t *testing.T) {
	err := ValidateTransition(StatusExtracted, StatusOCRComplete)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestNextStatusOnFailureRetriesUnderMax(t *testing.T) {
	got := nextStatusOnFailure(1, 3)
	if got != StatusExtracted {
		t.Errorf("attempts=1/3: got %v, want StatusExtracted", got)
	}
}

func TestNextStatusOnFailureTerminalAtMax(t *testing.T) {
	got := nextStatusOnFailure(3, 3)
	if got != StatusError {
		t.Errorf("attempts=3/3: got %v, want StatusError", got)
	}
}

func TestEnvironmentRingRoundRobins(t *testing.T) {
	ring := NewEnvironmentRing([]Environment{
		{Name: "qc-east"},
		{Name: "qc-west"},
	})

	seen := []string{ring.Next().Name, ring.Next().Name, ring.Next().Name}
	want := []string{"qc-east", "qc-west", "qc-east"}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestEnvironmentRingAllReturnsEveryEnvironment(t *testing.T) {
	ring := NewEnvironmentRing([]Environment{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	if got := len(ring.All()); got != 3 {
		t.Fatalf("All() len = %d, want 3", got)
	}
}
