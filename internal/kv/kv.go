// Package kv defines the distributed counter/ledger contract shared by the
// Rate Budget and Capacity Budget: INCR/GET/SET/EXPIRE on scalar keys, plus
// hash operations for per-worker ledgers. Code above this package never
// imports go-redis directly — it depends on the Store interface so a fake
// can stand in for tests.
package kv

import (
	"context"
	"time"
)

// Store is the minimal counter/hash contract both budgets run on.
type Store interface {
	// Incr atomically increments key by delta and returns the new value.
	// A key that does not exist is created with value 0 before the
	// increment, matching Redis INCRBY semantics.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// Get returns the value stored at key and whether it existed.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key, replacing any TTL the key already had.
	Set(ctx context.Context, key string, value string) error

	// Expire sets key to expire after ttl. A no-op if the key does not
	// exist. Used to bound a window counter's lifetime: the first
	// worker to create the key in a window sets the TTL, every
	// subsequent Incr in that window leaves it untouched.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ExpireAt is like Expire but pins an absolute deadline. The Rate
	// Budget uses this to align a counter's expiry to a window
	// boundary rather than "ttl from now", so two workers racing to
	// create the same window key converge on the same reset instant.
	ExpireAt(ctx context.Context, key string, at time.Time) error

	// HIncrBy atomically increments a hash field and returns the new
	// value. Backs the Capacity Budget's ledger: one hash whose fields
	// name both the class and the worker ID.
	HIncrBy(ctx context.Context, key, field string, delta float64) (float64, error)

	// HGet returns one hash field.
	HGet(ctx context.Context, key, field string) (string, bool, error)

	// HGetAll returns every field in a hash, used by the Capacity
	// Budget to sum current allocation across live workers.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HDel removes a field from a hash, used to release a worker's
	// capacity allocation when it deregisters or dies.
	HDel(ctx context.Context, key string, field string) error

	// Del removes one or more keys outright.
	Del(ctx context.Context, keys ...string) error
}
