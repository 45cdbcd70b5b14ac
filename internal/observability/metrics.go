package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "metprep"

// Metrics holds the Prometheus counters, histograms, and gauges for a
// processing run. Batch runs have no scrape endpoint, so the registry is
// written to a node-exporter textfile at the end of the run.
type Metrics struct {
	RowsIngested    prometheus.Counter
	RowsProduced    prometheus.Counter
	GapsInserted    prometheus.Counter
	TransformErrors prometheus.Counter
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	QCFlagsRaised *prometheus.CounterVec   // labels: flag
	StageDuration *prometheus.HistogramVec // labels: stage
	LoadAttempts  *prometheus.CounterVec   // labels: sink, outcome={success,retry,error}
	RunDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates the run metrics on a dedicated registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg)
}

// NewMetricsForTesting creates Metrics on a fresh registry without runtime
// collectors so tests can gather and compare exact output.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Raw rows read from the source.",
		}),
		RowsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_produced_total",
			Help:      "Rows in the processed frame handed to the sinks.",
		}),
		GapsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gaps_inserted_total",
			Help:      "Rows synthesized by gap insertion.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Runs that failed during processing.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that loaded every sink.",
		}),
		QCFlagsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qc_flags_raised_total",
			Help:      "Rows flagged by each QC column.",
		}, []string{"flag"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each processing stage.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		LoadAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_attempts_total",
			Help:      "Sink load attempts by outcome.",
		}, []string{"sink", "outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-transform-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.RowsIngested,
		m.RowsProduced,
		m.GapsInserted,
		m.TransformErrors,
		m.PipelineRunning,
		m.LastSuccess,
		m.QCFlagsRaised,
		m.StageDuration,
		m.LoadAttempts,
		m.RunDuration,
	)
	return m
}

// Gatherer exposes the registry for tests and exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes every registered metric in the text exposition
// format, atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
