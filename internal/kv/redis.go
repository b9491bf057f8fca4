package kv

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a redis/go-redis/v9 client. It is the
// only Store implementation the process wires in serve mode; tests use an
// in-memory fake instead (see internal/kv/fake.go).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr (host:port) with the given database index and
// optional password. It does not ping eagerly; callers check reachability
// via Ping at startup so a fatal connection error surfaces before any
// worker begins claiming jobs.
func NewRedisStore(addr, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client}
}

// Ping verifies the connection is alive, used during startup validation.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("kv: redis ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: incr %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv: expire %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ExpireAt(ctx context.Context, key string, at time.Time) error {
	if err := s.client.ExpireAt(ctx, key, at).Err(); err != nil {
		return fmt.Errorf("kv: expireat %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta float64) (float64, error) {
	n, err := s.client.HIncrByFloat(ctx, key, field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: hincrby %s.%s: %w", key, field, err)
	}
	return n, nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: hget %s.%s: %w", key, field, err)
	}
	return v, true, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: hgetall %s: %w", key, err)
	}
	return m, nil
}

func (s *RedisStore) HDel(ctx context.Context, key, field string) error {
	if err := s.client.HDel(ctx, key, field).Err(); err != nil {
		return fmt.Errorf("kv: hdel %s.%s: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kv: del %v: %w", keys, err)
	}
	return nil
}

// ParseFloat is a small helper used by ratebudget/capacity callers that
// read back string-encoded counters from HGetAll.
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
