package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion and analysis pipelines.
type Metrics struct {
	RowsIngested *prometheus.CounterVec // labels: dataset
	RowsDropped  *prometheus.CounterVec // labels: dataset, reason
	RowsInserted *prometheus.CounterVec // labels: dataset

	ZoneResolutions *prometheus.CounterVec // labels: outcome={resolved,unresolved,skipped}

	IngestDuration  prometheus.Histogram
	FilesIngested   prometheus.Counter
	PipelineRunning prometheus.Gauge

	CorrelationsComputed prometheus.Counter
	CorrelationsSkipped  prometheus.Counter     // series pairs with no qualifying lag
	SeriesCache          *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsIngested,
		m.RowsDropped,
		m.RowsInserted,
		m.ZoneResolutions,
		m.IngestDuration,
		m.FilesIngested,
		m.PipelineRunning,
		m.CorrelationsComputed,
		m.CorrelationsSkipped,
		m.SeriesCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "rows_ingested_total",
			Help:      "Raw rows read from source files.",
		}, []string{"dataset"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during normalization by reason.",
		}, []string{"dataset", "reason"}),
		RowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "rows_inserted_total",
			Help:      "Canonical records newly inserted into the store.",
		}, []string{"dataset"}),
		ZoneResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "zone_resolutions_total",
			Help:      "Spatial resolution outcomes.",
		}, []string{"outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "citysignal",
			Name:      "ingest_file_duration_seconds",
			Help:      "Duration of one file's normalize-resolve-persist pass.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		FilesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "files_ingested_total",
			Help:      "Source files fully processed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citysignal",
			Name:      "pipeline_running",
			Help:      "1 while an ingest or analysis pass is active.",
		}),
		CorrelationsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "correlations_computed_total",
			Help:      "Series pairs with a best-lag result.",
		}),
		CorrelationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "correlations_skipped_total",
			Help:      "Series pairs where no lag met the minimum sample count.",
		}),
		SeriesCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysignal",
			Name:      "series_cache_total",
			Help:      "Conditioned-series cache lookups by result.",
		}, []string{"result"}),
	}
}
