// Package config loads and hot-reloads ocrworkerd's configuration via
// viper, the same layering the teacher uses: flags > environment
// (OCRWORKER_ prefix) > YAML file > compiled-in defaults.
package config

import "time"

// Config is the root configuration tree, stored at {home}/config.yaml and
// reloaded on change while the process runs.
type Config struct {
	Environments []EnvironmentConfig `mapstructure:"environments" yaml:"environments"`
	Pool         PoolConfig          `mapstructure:"pool" yaml:"pool"`
	Rate         RateConfig          `mapstructure:"rate" yaml:"rate"`
	Capacity     CapacityConfig      `mapstructure:"capacity" yaml:"capacity"`
	Providers    map[string]Provider `mapstructure:"providers" yaml:"providers"`
	Pipeline     PipelineConfig      `mapstructure:"pipeline" yaml:"pipeline"`
	Health       HealthConfig        `mapstructure:"health" yaml:"health"`
	Redis        RedisConfig         `mapstructure:"redis" yaml:"redis"`
	ObjectStore  ObjectStoreConfig   `mapstructure:"object_store" yaml:"object_store"`
	Admin        AdminConfig         `mapstructure:"admin" yaml:"admin"`
}

// EnvironmentConfig names one polled Postgres environment: a DSN plus the
// three bucket names that pipeline fetches read from.
type EnvironmentConfig struct {
	Name             string `mapstructure:"name" yaml:"name"`
	DSN              string `mapstructure:"dsn" yaml:"dsn"`
	IndexBucket      string `mapstructure:"index_bucket" yaml:"index_bucket"`
	ActesBucket      string `mapstructure:"actes_bucket" yaml:"actes_bucket"`
	PlansCadBucket   string `mapstructure:"plans_cadastraux_bucket" yaml:"plans_cadastraux_bucket"`
}

// PoolConfig drives the Pool Manager's initial allocation and rebalance
// cadence between the index and acte worker classes.
type PoolConfig struct {
	TotalWorkers       int           `mapstructure:"total_workers" yaml:"total_workers"`
	MinIndexWorkers    int           `mapstructure:"min_index_workers" yaml:"min_index_workers"`
	MinActeWorkers     int           `mapstructure:"min_acte_workers" yaml:"min_acte_workers"`
	RebalanceEvery     time.Duration `mapstructure:"rebalance_every" yaml:"rebalance_every"`
	RebalanceThreshold int           `mapstructure:"rebalance_threshold" yaml:"rebalance_threshold"`
}

// RateConfig is the per-provider rate budget (requests/tokens per minute)
// enforced process-wide, independent of each provider client's own local
// token bucket.
type RateConfig struct {
	Providers map[string]ProviderRateLimit `mapstructure:"providers" yaml:"providers"`
}

// ProviderRateLimit is one provider's rpm/tpm ceiling.
type ProviderRateLimit struct {
	RPM int `mapstructure:"rpm" yaml:"rpm"`
	TPM int `mapstructure:"tpm" yaml:"tpm"`
}

// CapacityConfig is the server-wide capacity ledger: a fixed host
// footprint shared across every worker class (including classes this
// process never starts workers for itself, e.g. registre), plus each
// class's fixed per-worker cost.
type CapacityConfig struct {
	CPUMax      float64                  `mapstructure:"cpu_max" yaml:"cpu_max"`
	RAMMax      float64                  `mapstructure:"ram_max" yaml:"ram_max"`
	CPUReserved float64                  `mapstructure:"cpu_reserved" yaml:"cpu_reserved"`
	RAMReserved float64                  `mapstructure:"ram_reserved" yaml:"ram_reserved"`
	Classes     map[string]ClassCapacity `mapstructure:"classes" yaml:"classes"`
}

// ClassCapacity is one worker class's fixed per-worker cpu/ram cost.
type ClassCapacity struct {
	CPU float64 `mapstructure:"cpu" yaml:"cpu"`
	RAM float64 `mapstructure:"ram" yaml:"ram"`
}

// Provider configures one LLM vendor binding (see internal/providers).
type Provider struct {
	Type       string `mapstructure:"type" yaml:"type"` // "openai" or "anthropic"
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Role       string `mapstructure:"role" yaml:"role"` // "primary" or "fallback"
}

// PipelineConfig bounds continuation/attempt behavior shared by both
// pipelines' Unified Processor calls.
type PipelineConfig struct {
	MaxContinuations   int           `mapstructure:"max_continuations" yaml:"max_continuations"`
	MaxProviderRetries int           `mapstructure:"max_provider_retries" yaml:"max_provider_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	PDFRenderDPI       int           `mapstructure:"pdf_render_dpi" yaml:"pdf_render_dpi"`
	FileAwaitTimeout   time.Duration `mapstructure:"file_await_timeout" yaml:"file_await_timeout"`
	OCRMaxAttempts     int           `mapstructure:"ocr_max_attempts" yaml:"ocr_max_attempts"`
}

// HealthConfig bounds the Health Monitor's reclamation loop.
type HealthConfig struct {
	StaleJobThreshold   time.Duration `mapstructure:"stale_job_threshold" yaml:"stale_job_threshold"`
	WorkerDeadThreshold time.Duration `mapstructure:"worker_dead_threshold" yaml:"worker_dead_threshold"`
	SweepEvery          time.Duration `mapstructure:"sweep_every" yaml:"sweep_every"`
}

// RedisConfig addresses the distributed KV store backing the Rate and
// Capacity budgets.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// ObjectStoreConfig addresses the S3-compatible bucket endpoint.
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// AdminConfig binds the read-only admin HTTP surface.
type AdminConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// GetAPIKey resolves a provider's API key, expanding ${ENV_VAR} references.
func (c *Config) GetAPIKey(providerName string) string {
	p, ok := c.Providers[providerName]
	if !ok {
		return ""
	}
	return ResolveEnvVars(p.APIKey)
}
