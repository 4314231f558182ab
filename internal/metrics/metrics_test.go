package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	ok := pipeline.Succeeded("S1")
	ok.Pipeline = "count"
	ok.Duration = 2 * time.Second
	m.ObserveSample(ok)
	m.ObserveSample(pipeline.Failed("S2", "boom"))
	m.ObserveProject(pipeline.StatusFailedPartial)

	if got := testutil.ToFloat64(m.SamplesTotal.WithLabelValues("count", "success")); got != 1 {
		t.Errorf("samples_total{count,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SamplesTotal.WithLabelValues("", "failed")); got != 1 {
		t.Errorf("samples_total{,failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProjectRuns.WithLabelValues("failed-partial")); got != 1 {
		t.Errorf("project_runs_total{failed-partial} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.SampleDuration); n != 1 {
		t.Errorf("sample_duration_seconds series = %d, want 1", n)
	}
}

func TestTrackSample(t *testing.T) {
	m := New(nil)

	done := m.TrackSample()
	if got := testutil.ToFloat64(m.SamplesInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.SamplesInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSample(pipeline.Succeeded("S1"))
	m.ObserveProject(pipeline.StatusCompleted)
	m.ObserveDocument("stored")
	m.TrackSample()()
}
