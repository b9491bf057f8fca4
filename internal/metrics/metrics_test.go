package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/quebec-foncier/ocrworkerd/internal/capacity"
	"github.com/quebec-foncier/ocrworkerd/internal/pool"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
)

type fakeRateBudget struct{ snap ratebudget.Snapshot }

func (f fakeRateBudget) Status(ctx context.Context, provider string) (ratebudget.Snapshot, error) {
	return f.snap, nil
}

type fakeCapacity struct{ snap capacity.Snapshot }

func (f fakeCapacity) Status(ctx context.Context, class string) (capacity.Snapshot, error) {
	return f.snap, nil
}

type fakePool struct{ alloc pool.Allocation }

func (f fakePool) CurrentAllocation(ctx context.Context) (pool.Allocation, error) {
	return f.alloc, nil
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := vec.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestSampleOnceSetsRateBudgetGauges(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	rb := fakeRateBudget{snap: ratebudget.Snapshot{RPMUsed: 30, RPMLimit: 60, TPMUsed: 5000, TPMLimit: 10000}}
	cb := fakeCapacity{snap: capacity.Snapshot{}}
	pm := fakePool{}
	c := NewCollector(reg, rb, []string{"openai"}, cb, nil, pm, time.Second, nil)

	c.sampleOnce(context.Background())

	if got := gaugeValue(t, reg.RateBudgetUsage, "openai", "rpm"); got != 0.5 {
		t.Errorf("rpm ratio = %v, want 0.5", got)
	}
	if got := gaugeValue(t, reg.RateBudgetUsage, "openai", "tpm"); got != 0.5 {
		t.Errorf("tpm ratio = %v, want 0.5", got)
	}
}

func TestSampleOnceSetsPoolModeGauges(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	rb := fakeRateBudget{}
	cb := fakeCapacity{}
	pm := fakePool{alloc: pool.Allocation{Index: 3, Acte: 2, Flex: 1}}
	c := NewCollector(reg, rb, nil, cb, nil, pm, time.Second, nil)

	c.sampleOnce(context.Background())

	if got := gaugeValue(t, reg.PoolModeCount, "index"); got != 3 {
		t.Errorf("index count = %v, want 3", got)
	}
	if got := gaugeValue(t, reg.PoolModeCount, "acte"); got != 2 {
		t.Errorf("acte count = %v, want 2", got)
	}
}

func TestRecordJobCompletedIncrementsCounter(t *testing.T) {
	reg := New(prometheus.NewRegistry())
	reg.RecordJobCompleted("index", 2*time.Second)

	m := &dto.Metric{}
	if err := reg.JobsCompleted.WithLabelValues("index").Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("completed count = %v, want 1", got)
	}
}
