package config

import "testing"

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain value passes through", "sk-literal", "sk-literal"},
		{"env reference expands", "${OPENAI_API_KEY}", "sk-test-123"},
		{"unset env reference expands empty", "${MISSING_VAR}", ""},
		{"empty string stays empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveEnvVars(tc.input)
			if got != tc.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestDefaultConfigHasBothProviders(t *testing.T) {
	cfg := DefaultConfig()

	primary, ok := cfg.Providers["openai"]
	if !ok || primary.Role != "primary" {
		t.Fatalf("expected openai provider with role primary, got %+v ok=%v", primary, ok)
	}

	fallback, ok := cfg.Providers["anthropic"]
	if !ok || fallback.Role != "fallback" {
		t.Fatalf("expected anthropic provider with role fallback, got %+v ok=%v", fallback, ok)
	}
}

func TestGetAPIKeyResolvesEnvVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	cfg := DefaultConfig()

	if got := cfg.GetAPIKey("anthropic"); got != "sk-ant-test" {
		t.Errorf("GetAPIKey(anthropic) = %q, want sk-ant-test", got)
	}
	if got := cfg.GetAPIKey("does-not-exist"); got != "" {
		t.Errorf("GetAPIKey(missing) = %q, want empty", got)
	}
}
