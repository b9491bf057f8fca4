package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quebec-foncier/ocrworkerd/internal/config"
)

// ErrProviderNotFound is returned when a provider is not found in the
// registry.
var ErrProviderNotFound = errors.New("provider not found")

// Registry holds the two provider bindings by role (primary/fallback),
// thread-safe for the config hot-reload path.
type Registry struct {
	mu       sync.RWMutex
	primary  FileClient
	fallback Client
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// SetLogger sets the logger used for registration events.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// NewRegistryFromConfig builds clients for every enabled provider entry in
// cfg and assigns them by role.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	if err := r.applyConfig(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds provider clients from new configuration, replacing the
// primary/fallback bindings in place. Used by the config Manager's
// OnChange hook so a rotated API key does not require a restart.
func (r *Registry) Reload(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyConfigLocked(cfg)
}

func (r *Registry) applyConfig(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyConfigLocked(cfg)
}

func (r *Registry) applyConfigLocked(cfg *config.Config) error {
	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		apiKey := config.ResolveEnvVars(p.APIKey)
		if apiKey == "" {
			continue
		}
		if _, err := TokenLimit(p.Model); err != nil {
			return fmt.Errorf("providers: %q: %w", name, err)
		}

		switch p.Type {
		case "openai":
			client := NewOpenAIClient(OpenAIConfig{
				APIKey: apiKey,
				Model:  p.Model,
				RPM:    cfg.Rate.Providers[name].RPM,
			})
			if p.Role == "primary" {
				r.primary = client
			} else {
				r.fallback = client
			}
		case "anthropic":
			client := NewAnthropicClient(AnthropicConfig{
				APIKey: apiKey,
				Model:  p.Model,
				RPM:    cfg.Rate.Providers[name].RPM,
			})
			if p.Role == "primary" {
				return fmt.Errorf("providers: anthropic cannot serve as primary (no file-API support)")
			}
			r.fallback = client
		default:
			return fmt.Errorf("providers: unknown provider type %q for %q", p.Type, name)
		}

		if r.logger != nil {
			r.logger.Info("registered provider", "name", name, "type", p.Type, "role", p.Role)
		}
	}

	if r.primary == nil {
		return fmt.Errorf("providers: no primary provider configured")
	}
	return nil
}

// Primary returns the file-API-capable provider used first in the
// Unified Processor's provider order.
func (r *Registry) Primary() (FileClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primary == nil {
		return nil, fmt.Errorf("%w: primary", ErrProviderNotFound)
	}
	return r.primary, nil
}

// Fallback returns the vision-only provider used second.
func (r *Registry) Fallback() (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: fallback", ErrProviderNotFound)
	}
	return r.fallback, nil
}

// Order returns [primary, fallback] as the common Client interface, the
// provider order the Unified Processor iterates per SPEC_FULL.md §4.5.
// A nil entry means that role has no provider configured; callers skip
// nil entries rather than treating an unconfigured fallback as an error.
func (r *Registry) Order() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order := make([]Client, 0, 2)
	if r.primary != nil {
		order = append(order, r.primary)
	}
	if r.fallback != nil {
		order = append(order, r.fallback)
	}
	return order
}

// SetPrimary directly injects the file-API-capable provider, bypassing
// config-driven construction. Used by tests and by callers wiring a
// MockClient in place of a real vendor SDK.
func (r *Registry) SetPrimary(c FileClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary = c
}

// SetFallback directly injects the vision-only fallback provider.
func (r *Registry) SetFallback(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = c
}
