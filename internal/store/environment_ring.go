package store

import "sync"

// Environment is one configured land-registry deployment: its own DSN,
// and the object-storage buckets its jobs' storage_path values resolve
// against.
type Environment struct {
	Name          string
	Store         *Store
	IndexBucket   string
	ActesBucket   string
	PlansBucket   string
}

// EnvironmentRing hands out the configured environments in round-robin
// order. The serve command calls Next once per worker slot at startup,
// so each worker is bound to one environment and polls only that one.
type EnvironmentRing struct {
	mu   sync.Mutex
	envs []Environment
	next int
}

// NewEnvironmentRing returns a ring over envs in the given order. The
// first call to Next returns envs[0].
func NewEnvironmentRing(envs []Environment) *EnvironmentRing {
	return &EnvironmentRing{envs: envs}
}

// Next returns the next environment in round-robin order.
func (r *EnvironmentRing) Next() Environment {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.envs[r.next]
	r.next = (r.next + 1) % len(r.envs)
	return e
}

// Len reports how many environments are configured.
func (r *EnvironmentRing) Len() int {
	return len(r.envs)
}

// All returns every configured environment, for the health monitor which
// must sweep all of them rather than round-robin.
func (r *EnvironmentRing) All() []Environment {
	return r.envs
}
