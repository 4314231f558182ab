// Package metrics exposes Prometheus collectors for project runs and sample
// processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/tenx-pipeline/pkg/pipeline"
)

const namespace = "tenx"

// Metrics holds the pipeline collectors
type Metrics struct {
	ProjectRuns     *prometheus.CounterVec
	SamplesTotal    *prometheus.CounterVec
	SampleDuration  *prometheus.HistogramVec
	SamplesInFlight prometheus.Gauge
	DocumentsSeen   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProjectRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_runs_total",
			Help:      "Project runs by final status.",
		}, []string{"status"}),
		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Processed samples by pipeline and outcome.",
		}, []string{"pipeline", "outcome"}),
		SampleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_duration_seconds",
			Help:      "Time spent processing one sample.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"pipeline"}),
		SamplesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "samples_in_flight",
			Help:      "Samples currently being processed.",
		}),
		DocumentsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbox_documents_total",
			Help:      "Project documents picked up from the inbox by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.ProjectRuns, m.SamplesTotal, m.SampleDuration, m.SamplesInFlight, m.DocumentsSeen)
	}
	return m
}

// ObserveSample records the result of one sample
func (m *Metrics) ObserveSample(result pipeline.ProcessingResult) {
	if m == nil {
		return
	}
	m.SamplesTotal.WithLabelValues(result.Pipeline, string(result.Outcome)).Inc()
	if result.Duration > 0 {
		m.SampleDuration.WithLabelValues(result.Pipeline).Observe(result.Duration.Seconds())
	}
}

// ObserveProject records the final status of a project run
func (m *Metrics) ObserveProject(status pipeline.ProjectStatus) {
	if m == nil {
		return
	}
	m.ProjectRuns.WithLabelValues(string(status)).Inc()
}

// ObserveDocument records an inbox document outcome
func (m *Metrics) ObserveDocument(result string) {
	if m == nil {
		return
	}
	m.DocumentsSeen.WithLabelValues(result).Inc()
}

// TrackSample marks a sample in flight until the returned func is called
func (m *Metrics) TrackSample() func() {
	if m == nil {
		return func() {}
	}
	m.SamplesInFlight.Inc()
	return m.SamplesInFlight.Dec
}
