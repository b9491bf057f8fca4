package kv

import (
	"context"
	"testing"
	"time"
)

func TestFakeStoreIncr(t *testing.T) {
	ctx := context.Background()
	s := NewFakeStore()

	n, err := s.Incr(ctx, "ratebudget:openai:rpm", 1)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1, got %d", n)
	}

	n, err = s.Incr(ctx, "ratebudget:openai:rpm", 4)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 5 {
		t.Fatalf("want 5, got %d", n)
	}
}

func TestFakeStoreExpireEvictsOnAdvance(t *testing.T) {
	ctx := context.Background()
	s := NewFakeStore()

	if _, err := s.Incr(ctx, "k", 1); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := s.Expire(ctx, "k", 10*time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}

	s.Advance(5 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatalf("key should still be present before deadline")
	}

	s.Advance(10 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("key should have been evicted after deadline")
	}
}

func TestFakeStoreHashLedger(t *testing.T) {
	ctx := context.Background()
	s := NewFakeStore()

	if _, err := s.HIncrBy(ctx, "capacity:index", "worker-1", 2.5); err != nil {
		t.Fatalf("hincrby: %v", err)
	}
	if _, err := s.HIncrBy(ctx, "capacity:index", "worker-2", 1.0); err != nil {
		t.Fatalf("hincrby: %v", err)
	}

	all, err := s.HGetAll(ctx, "capacity:index")
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 fields, got %d", len(all))
	}

	if err := s.HDel(ctx, "capacity:index", "worker-1"); err != nil {
		t.Fatalf("hdel: %v", err)
	}
	if _, ok, _ := s.HGet(ctx, "capacity:index", "worker-1"); ok {
		t.Fatalf("worker-1 should have been removed")
	}
}
