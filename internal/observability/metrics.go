// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Batch metrics
	BatchItems *prometheus.CounterVec

	// Persistence metrics
	RowsWritten   *prometheus.CounterVec
	ChunksFlushed *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileOutcomes *prometheus.CounterVec

	// Search metrics
	SearchQueries        prometheus.Counter
	SearchPrefixFailures prometheus.Counter
	SearchResults        prometheus.Gauge

	// Job metrics
	JobRunsTotal      *prometheus.CounterVec
	JobRunsSkipped    *prometheus.CounterVec
	JobDuration       *prometheus.HistogramVec
	LastSuccessfulRun *prometheus.GaugeVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "tse_market_sync"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Provider metrics
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of provider requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider request latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		// Batch metrics
		BatchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_total",
			Help:      "Total number of batch items processed by label and outcome",
		}, []string{"label", "outcome"}),

		// Persistence metrics
		RowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "rows_written_total",
			Help:      "Total number of time-series rows written by table",
		}, []string{"table"}),
		ChunksFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "chunks_flushed_total",
			Help:      "Total number of chunk flushes by table",
		}, []string{"table"}),

		// Reconciliation metrics
		ReconcileOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "records_total",
			Help:      "Total number of reconciled remote records by outcome",
		}, []string{"outcome"}),

		// Search metrics
		SearchQueries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Total number of search queries sent to the provider",
		}),
		SearchPrefixFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "prefix_failures_total",
			Help:      "Total number of search prefixes abandoned after a provider failure",
		}),
		SearchResults: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "last_result_count",
			Help:      "Number of active instruments found by the last enumeration",
		}),

		// Job metrics
		JobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of job runs by job and status",
		}, []string{"job", "status"}),
		JobRunsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_skipped_total",
			Help:      "Total number of triggers skipped because a run of the same job was in progress",
		}, []string{"job"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"job"}),
		LastSuccessfulRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run per job",
		}, []string{"job"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordProviderRequest records a provider call and its outcome.
func RecordProviderRequest(operation string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	DefaultMetrics.ProviderRequests.WithLabelValues(operation, outcome).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordBatchItem records one batch item outcome.
func RecordBatchItem(label string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	DefaultMetrics.BatchItems.WithLabelValues(label, outcome).Inc()
}

// RecordFlush records a chunk flush of n rows.
func RecordFlush(table string, n int) {
	DefaultMetrics.ChunksFlushed.WithLabelValues(table).Inc()
	DefaultMetrics.RowsWritten.WithLabelValues(table).Add(float64(n))
}

// RecordReconcile records the outcome counts of one diff.
func RecordReconcile(newCount, changed, unchanged, unknown int) {
	DefaultMetrics.ReconcileOutcomes.WithLabelValues("new").Add(float64(newCount))
	DefaultMetrics.ReconcileOutcomes.WithLabelValues("changed").Add(float64(changed))
	DefaultMetrics.ReconcileOutcomes.WithLabelValues("unchanged").Add(float64(unchanged))
	DefaultMetrics.ReconcileOutcomes.WithLabelValues("unknown_classification").Add(float64(unknown))
}

// RecordSearchQuery increments the search query counter.
func RecordSearchQuery(failed bool) {
	DefaultMetrics.SearchQueries.Inc()
	if failed {
		DefaultMetrics.SearchPrefixFailures.Inc()
	}
}

// UpdateSearchResults sets the result gauge of the last enumeration.
func UpdateSearchResults(n int) {
	DefaultMetrics.SearchResults.Set(float64(n))
}

// RecordJobRun records a finished job run.
func RecordJobRun(job string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	DefaultMetrics.JobRunsTotal.WithLabelValues(job, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err == nil {
		DefaultMetrics.LastSuccessfulRun.WithLabelValues(job).SetToCurrentTime()
	}
}

// RecordJobSkipped records a trigger dropped because the job was already running.
func RecordJobSkipped(job string) {
	DefaultMetrics.JobRunsSkipped.WithLabelValues(job).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
