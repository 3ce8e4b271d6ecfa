package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	FilesProcessed   prometheus.Counter
	FilesFailed      prometheus.Counter
	RecordsExtracted prometheus.Counter
	RecordsInserted  prometheus.Counter
	RecordsSkipped   *prometheus.CounterVec // label: reason
	BatchesFailed    prometheus.Counter
	IngestRunning    prometheus.Gauge

	// Enrichment metrics.
	FlagsAssigned        *prometheus.CounterVec // label: flag={good,questionable,bad,missing}
	AmbiguousResolutions prometheus.Counter
	CoordCorrections     *prometheus.CounterVec // label: kind={sign_corrected,normalized,out_of_region}

	// Batch processing metrics.
	BatchSize    prometheus.Histogram
	FileDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesProcessed,
		m.FilesFailed,
		m.RecordsExtracted,
		m.RecordsInserted,
		m.RecordsSkipped,
		m.BatchesFailed,
		m.IngestRunning,
		m.FlagsAssigned,
		m.AmbiguousResolutions,
		m.CoordCorrections,
		m.BatchSize,
		m.FileDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "files_processed_total",
			Help:      "Total source files fully processed.",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "files_failed_total",
			Help:      "Total source files abandoned with a file-level error.",
		}),
		RecordsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "records_extracted_total",
			Help:      "Total measurement records produced by the extractors.",
		}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "records_inserted_total",
			Help:      "Total new rows written to the measurements table.",
		}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "records_skipped_total",
			Help:      "Rows or cells skipped during extraction, by reason.",
		}, []string{"reason"}),
		BatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "batches_failed_total",
			Help:      "Insert batches that failed and were dropped.",
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "obs_ingest",
			Name:      "running",
			Help:      "1 while an ingest run is active, 0 otherwise.",
		}),
		FlagsAssigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "flags_assigned_total",
			Help:      "Quality flags assigned at write time, by flag.",
		}, []string{"flag"}),
		AmbiguousResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "ambiguous_resolutions_total",
			Help:      "Parameter resolutions that defaulted on an ambiguous identifier.",
		}),
		CoordCorrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obs_ingest",
			Name:      "coordinate_corrections_total",
			Help:      "Coordinate corrections applied during location resolution, by kind.",
		}, []string{"kind"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "obs_ingest",
			Name:      "batch_size",
			Help:      "Records per insert batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
		}),
		FileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "obs_ingest",
			Name:      "file_duration_seconds",
			Help:      "Wall time to extract and load one source file.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}
