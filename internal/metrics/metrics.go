// Package metrics exposes Prometheus instrumentation for the worker
// pool: rate-budget utilization, capacity allocation, pool mode
// distribution, and job throughput. Everything here is a thin wrapper
// around promauto collectors served on /metrics by the admin server.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quebec-foncier/ocrworkerd/internal/capacity"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
)

// Registry wraps the collectors this service registers, so callers who
// need a fresh prometheus.Registerer for tests aren't forced onto the
// global default one.
type Registry struct {
	JobsCompleted   *prometheus.CounterVec
	JobsFailed      *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	RateBudgetUsage *prometheus.GaugeVec
	CapacityUsage   *prometheus.GaugeVec
	PoolModeCount   *prometheus.GaugeVec
}

// New registers every collector against reg and returns the handles.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocrworkerd",
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached OcrComplete, by document source.",
		}, []string{"document_source"}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ocrworkerd",
			Name:      "jobs_failed_total",
			Help:      "Jobs that reached Error or were re-queued to Extracted, by document source.",
		}, []string{"document_source", "terminal"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ocrworkerd",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time from claim to completion or failure, by document source.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68min
		}, []string{"document_source"}),
		RateBudgetUsage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ocrworkerd",
			Name:      "rate_budget_usage_ratio",
			Help:      "Current window usage as a fraction of the configured ceiling, by provider and counter (rpm/tpm).",
		}, []string{"provider", "counter"}),
		CapacityUsage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ocrworkerd",
			Name:      "capacity_usage_ratio",
			Help:      "Current allocation as a fraction of the shared server ceiling, by class and resource (cpu/ram).",
		}, []string{"class", "resource"}),
		PoolModeCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ocrworkerd",
			Name:      "pool_mode_workers",
			Help:      "Number of workers currently assigned to each pool mode.",
		}, []string{"mode"}),
	}
}

// RecordJobCompleted increments the completion counter and observes the
// job's duration.
func (r *Registry) RecordJobCompleted(documentSource string, duration time.Duration) {
	r.JobsCompleted.WithLabelValues(documentSource).Inc()
	r.JobDuration.WithLabelValues(documentSource).Observe(duration.Seconds())
}

// RecordJobFailed increments the failure counter. terminal distinguishes
// a job that reached Error (exhausted retries) from one re-queued to
// Extracted for another attempt.
func (r *Registry) RecordJobFailed(documentSource string, terminal bool, duration time.Duration) {
	state := "retry"
	if terminal {
		state = "terminal"
	}
	r.JobsFailed.WithLabelValues(documentSource, state).Inc()
	r.JobDuration.WithLabelValues(documentSource).Observe(duration.Seconds())
}

// rateBudgetSource is the subset of *ratebudget.Budget the collector
// loop needs.
type rateBudgetSource interface {
	Status(ctx context.Context, provider string) (ratebudget.Snapshot, error)
}

// capacitySource is the subset of *capacity.Budget the collector loop
// needs.
type capacitySource interface {
	Status(ctx context.Context, class string) (capacity.Snapshot, error)
}

// poolSource is the subset of *pool.Manager the collector loop needs.
type poolSource interface {
	CurrentAllocation(ctx context.Context) (pool.Allocation, error)
}

// Collector periodically samples the Rate Budget, Capacity Budget, and
// Pool Manager into the gauge collectors above. The job counters and
// histogram change only through RecordJobCompleted/RecordJobFailed, which
// the jobmonitor does not call.
type Collector struct {
	reg       *Registry
	rateBudg  rateBudgetSource
	providers []string
	capBudg   capacitySource
	classes   []string
	pool      poolSource
	interval  time.Duration
	logger    *slog.Logger
}

// NewCollector returns a Collector sampling every interval.
func NewCollector(reg *Registry, rateBudg rateBudgetSource, providers []string, capBudg capacitySource, classes []string, pm poolSource, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{reg: reg, rateBudg: rateBudg, providers: providers, capBudg: capBudg, classes: classes, pool: pm, interval: interval, logger: logger}
}

// Run samples on a ticker until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sampleOnce(ctx)
		}
	}
}

func (c *Collector) sampleOnce(ctx context.Context) {
	for _, provider := range c.providers {
		snap, err := c.rateBudg.Status(ctx, provider)
		if err != nil {
			c.logger.Error("metrics: rate budget sample failed", "provider", provider, "error", err)
			continue
		}
		if snap.RPMLimit > 0 {
			c.reg.RateBudgetUsage.WithLabelValues(provider, "rpm").Set(float64(snap.RPMUsed) / float64(snap.RPMLimit))
		}
		if snap.TPMLimit > 0 {
			c.reg.RateBudgetUsage.WithLabelValues(provider, "tpm").Set(float64(snap.TPMUsed) / float64(snap.TPMLimit))
		}
	}

	for _, class := range c.classes {
		snap, err := c.capBudg.Status(ctx, class)
		if err != nil {
			c.logger.Error("metrics: capacity sample failed", "class", class, "error", err)
			continue
		}
		if snap.LimitCPU > 0 {
			c.reg.CapacityUsage.WithLabelValues(class, "cpu").Set(snap.UsedCPU / snap.LimitCPU)
		}
		if snap.LimitRAM > 0 {
			c.reg.CapacityUsage.WithLabelValues(class, "ram").Set(snap.UsedRAM / snap.LimitRAM)
		}
	}

	alloc, err := c.pool.CurrentAllocation(ctx)
	if err != nil {
		c.logger.Error("metrics: pool allocation sample failed", "error", err)
		return
	}
	c.reg.PoolModeCount.WithLabelValues("index").Set(float64(alloc.Index))
	c.reg.PoolModeCount.WithLabelValues("acte").Set(float64(alloc.Acte))
	c.reg.PoolModeCount.WithLabelValues("flex").Set(float64(alloc.Flex))
}
