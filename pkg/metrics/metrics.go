// Package metrics records run outcomes for monitoring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives one observation per finished run or setup failure
type Recorder interface {
	ObserveRun(kind string, elapsed time.Duration, memoryKB int64)
	ObserveSetupFailure(op string)
}

// NoopRecorder discards every observation
type NoopRecorder struct{}

// ObserveRun does nothing
func (NoopRecorder) ObserveRun(string, time.Duration, int64) {}

// ObserveSetupFailure does nothing
func (NoopRecorder) ObserveSetupFailure(string) {}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*Prometheus)(nil)

// Prometheus is a Recorder backed by a dedicated registry.
type Prometheus struct {
	Registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	RunMemory          prometheus.Histogram
	SetupFailuresTotal *prometheus.CounterVec
}

// NewPrometheus creates and registers the run metrics.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()

	m := &Prometheus{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "river",
				Name:      "runs_total",
				Help:      "Total number of finished runs by outcome kind.",
			},
			[]string{"kind"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "river",
				Name:      "run_duration_seconds",
				Help:      "Wall clock time used by finished runs.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		RunMemory: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "river",
				Name:      "run_memory_kilobytes",
				Help:      "Peak resident memory of finished runs in kilobytes.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
			},
		),

		SetupFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "river",
				Name:      "setup_failures_total",
				Help:      "Total runs that failed before the program started, by operation.",
			},
			[]string{"op"},
		),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunMemory,
		m.SetupFailuresTotal,
	)

	return m
}

// ObserveRun records a finished run.
func (m *Prometheus) ObserveRun(kind string, elapsed time.Duration, memoryKB int64) {
	m.RunsTotal.WithLabelValues(kind).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.RunMemory.Observe(float64(memoryKB))
}

// ObserveSetupFailure records a run that never produced an outcome.
func (m *Prometheus) ObserveSetupFailure(op string) {
	m.SetupFailuresTotal.WithLabelValues(op).Inc()
}

// WriteToTextfile dumps the registry in the node exporter textfile format.
func (m *Prometheus) WriteToTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, m.Registry)
}
