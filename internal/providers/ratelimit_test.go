package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterTryConsume(t *testing.T) {
	rl := NewRateLimiter(60)
	for i := 0; i < 60; i++ {
		if !rl.TryConsume() {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	if rl.TryConsume() {
		t.Fatalf("expected bucket to be exhausted")
	}
}

func TestRateLimiterRecord429Drains(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.Record429(time.Second)
	if rl.TryConsume() {
		t.Fatalf("expected tokens drained after Record429 with retryAfter")
	}
}

func TestRateLimiterWaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.TryConsume() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestRateLimiterStatusReflectsConsumption(t *testing.T) {
	rl := NewRateLimiter(100)
	rl.TryConsume()
	status := rl.Status()
	if status.TotalConsumed != 1 {
		t.Errorf("TotalConsumed = %d, want 1", status.TotalConsumed)
	}
	if status.TokensLimit != 100 {
		t.Errorf("TokensLimit = %d, want 100", status.TokensLimit)
	}
}
