// Package svcctx carries the process's shared services through
// context.Context, the same dependency-injection shape the teacher uses
// to avoid import cycles between the job monitor, pipelines, and the
// admin HTTP surface.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/quebec-foncier/ocrworkerd/internal/capacity"
	"github.com/quebec-foncier/ocrworkerd/internal/config"
	"github.com/quebec-foncier/ocrworkerd/internal/eventlog"
	"github.com/quebec-foncier/ocrworkerd/internal/objectstore"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/providers"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
	"github.com/quebec-foncier/ocrworkerd/internal/store"
)

// Services holds every shared service a worker goroutine needs. Components
// extract what they use via the per-field accessors below rather than
// taking a *Services parameter directly, so a pipeline package never needs
// to import svcctx's full dependency set.
type Services struct {
	Store        *store.Store
	Registry     *providers.Registry
	RateBudget   *ratebudget.Budget
	Capacity     *capacity.Budget
	Pool         *pool.Manager
	ConfigMgr    *config.Manager
	ObjectStore  objectstore.Store
	EventLog     *eventlog.Log
	Logger       *slog.Logger
}

type servicesKey struct{}

// WithServices attaches s to ctx.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct, or nil if absent.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the queue store.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// RegistryFrom extracts the provider registry.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// RateBudgetFrom extracts the rate budget.
func RateBudgetFrom(ctx context.Context) *ratebudget.Budget {
	if s := ServicesFrom(ctx); s != nil {
		return s.RateBudget
	}
	return nil
}

// CapacityFrom extracts the capacity budget.
func CapacityFrom(ctx context.Context) *capacity.Budget {
	if s := ServicesFrom(ctx); s != nil {
		return s.Capacity
	}
	return nil
}

// PoolFrom extracts the pool manager.
func PoolFrom(ctx context.Context) *pool.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pool
	}
	return nil
}

// ConfigFrom extracts the config manager.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigMgr
	}
	return nil
}

// ObjectStoreFrom extracts the object storage client.
func ObjectStoreFrom(ctx context.Context) objectstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.ObjectStore
	}
	return nil
}

// EventLogFrom extracts the structured event log.
func EventLogFrom(ctx context.Context) *eventlog.Log {
	if s := ServicesFrom(ctx); s != nil {
		return s.EventLog
	}
	return nil
}

// LoggerFrom extracts the logger, falling back to slog.Default so callers
// never need a nil check.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
