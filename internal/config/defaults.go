package config

import "time"

// DefaultConfig returns configuration with sensible defaults, matching the
// values in SPEC_FULL.md §6 and written out by WriteDefault for a fresh
// install.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			TotalWorkers:       8,
			MinIndexWorkers:    2,
			MinActeWorkers:     2,
			RebalanceEvery:     30 * time.Second,
			RebalanceThreshold: 10,
		},
		Rate: RateConfig{
			Providers: map[string]ProviderRateLimit{
				"openai": {
					RPM: 500,
					TPM: 200000,
				},
				"anthropic": {
					RPM: 300,
					TPM: 150000,
				},
			},
		},
		Capacity: CapacityConfig{
			CPUMax:      16,
			RAMMax:      32768,
			CPUReserved: 2,
			RAMReserved: 2048,
			Classes: map[string]ClassCapacity{
				"registre":  {CPU: 3, RAM: 1024},
				"index-ocr": {CPU: 1, RAM: 1024},
				"acte-ocr":  {CPU: 2, RAM: 2048},
			},
		},
		Providers: map[string]Provider{
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o",
				APIKey:  "${OPENAI_API_KEY}",
				Role:    "primary",
				Enabled: true,
			},
			"anthropic": {
				Type:    "anthropic",
				Model:   "claude-3-5-sonnet-20241022",
				APIKey:  "${ANTHROPIC_API_KEY}",
				Role:    "fallback",
				Enabled: true,
			},
		},
		Pipeline: PipelineConfig{
			MaxContinuations:   3,
			MaxProviderRetries: 3,
			RetryBaseDelay:     time.Second,
			PDFRenderDPI:       300,
			FileAwaitTimeout:   2 * time.Minute,
			OCRMaxAttempts:     3,
		},
		Health: HealthConfig{
			StaleJobThreshold:   15 * time.Minute,
			WorkerDeadThreshold: 2 * time.Minute,
			SweepEvery:          time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Admin: AdminConfig{
			Addr: ":8080",
		},
	}
}
