package providers

import (
	"testing"

	"github.com/quebec-foncier/ocrworkerd/internal/config"
)

func TestRegistryOrderReflectsInjectedProviders(t *testing.T) {
	r := NewRegistry()
	primary := NewMockClient("openai")
	fallback := NewMockClient("anthropic")
	r.SetPrimary(primary)
	r.SetFallback(fallback)

	order := r.Order()
	if len(order) != 2 || order[0].Name() != "openai" || order[1].Name() != "anthropic" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestRegistryOrderSkipsUnconfiguredFallback(t *testing.T) {
	r := NewRegistry()
	r.SetPrimary(NewMockClient("openai"))

	order := r.Order()
	if len(order) != 1 || order[0].Name() != "openai" {
		t.Fatalf("expected single-entry order, got %+v", order)
	}
}

func TestNewRegistryFromConfigRejectsAnthropicAsPrimary(t *testing.T) {
	cfg := config.DefaultConfig()
	anthropic := cfg.Providers["anthropic"]
	anthropic.Role = "primary"
	anthropic.APIKey = "test-key"
	cfg.Providers["anthropic"] = anthropic

	openai := cfg.Providers["openai"]
	openai.Role = "fallback"
	cfg.Providers["openai"] = openai

	_, err := NewRegistryFromConfig(cfg)
	if err == nil {
		t.Fatal("expected error when anthropic is configured as primary")
	}
}

func TestNewRegistryFromConfigBuildsBothRoles(t *testing.T) {
	cfg := config.DefaultConfig()
	openai := cfg.Providers["openai"]
	openai.APIKey = "test-key"
	cfg.Providers["openai"] = openai

	anthropic := cfg.Providers["anthropic"]
	anthropic.APIKey = "test-key"
	cfg.Providers["anthropic"] = anthropic

	r, err := NewRegistryFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewRegistryFromConfig: %v", err)
	}
	if _, err := r.Primary(); err != nil {
		t.Errorf("expected a primary provider, got error: %v", err)
	}
	if _, err := r.Fallback(); err != nil {
		t.Errorf("expected a fallback provider, got error: %v", err)
	}
}
