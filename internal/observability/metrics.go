package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	DatesProcessed  *prometheus.CounterVec // labels: state={merged,skipped,skipped_with_warning,already_merged}
	RowsMerged      prometheus.Counter
	LastMergedDate  prometheus.Gauge // unix seconds of the latest merged report date

	// Fetch metrics.
	FetchOutcomes *prometheus.CounterVec // labels: status={fetched,cached,not_found,transient_error}
	FetchRequests *prometheus.CounterVec // labels: code={200,404,503,error,...}
	FetchDuration prometheus.Histogram
	BreakerOpen   prometheus.Gauge

	// Reconciliation metrics.
	SchemaColumns   prometheus.Gauge
	ColumnsAdded    prometheus.Counter
	SchemaConflicts prometheus.Counter
	NormalizeIssues prometheus.Counter

	// Persistence and sinks.
	CheckpointDuration prometheus.Histogram
	PublishErrors      *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all ingestion metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.DatesProcessed,
		m.RowsMerged,
		m.LastMergedDate,
		m.FetchOutcomes,
		m.FetchRequests,
		m.FetchDuration,
		m.BreakerOpen,
		m.SchemaColumns,
		m.ColumnsAdded,
		m.SchemaConflicts,
		m.NormalizeIssues,
		m.CheckpointDuration,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an ingestion run is in progress.",
		}),
		DatesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dates_processed_total",
			Help:      "Dates that reached a terminal state, by state.",
		}, []string{"state"}),
		RowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_merged_total",
			Help:      "Rows appended to the accumulated table.",
		}),
		LastMergedDate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_merged_report_date_seconds",
			Help:      "Report date of the most recently merged snapshot, as a unix timestamp.",
		}),
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_outcomes_total",
			Help:      "Snapshot fetch outcomes by status.",
		}, []string{"status"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "HTTP requests to the report source by response code.",
		}, []string{"code"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_request_duration_seconds",
			Help:      "Report source request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_breaker_open",
			Help:      "1 while the source circuit breaker is open.",
		}),
		SchemaColumns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_columns",
			Help:      "Number of columns in the canonical schema.",
		}),
		ColumnsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_columns_added_total",
			Help:      "Columns inserted into the canonical schema.",
		}),
		SchemaConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_conflicts_total",
			Help:      "Ambiguous or duplicate column matches resolved during reconciliation.",
		}),
		NormalizeIssues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_issues_total",
			Help:      "Cells that failed to parse and kept their default value.",
		}),
		CheckpointDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Duration of a checkpoint commit.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed deliveries of merged rows to downstream sinks.",
		}, []string{"sink"}),
	}
}
