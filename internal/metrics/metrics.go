// Package metrics exports import pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/importer/internal/core"
)

const namespace = "importer"

// Metrics implements core.Observer on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	rowsQueued    *prometheus.CounterVec
	rowsDuplicate *prometheus.CounterVec
	rowsExisting  *prometheus.CounterVec
	rowsInserted  *prometheus.CounterVec
	rowsDependent *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runFailures   *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	importsActive prometheus.GaugeFunc
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry. When limiter is
// non-nil its active slot count is exported as a gauge.
func New(limiter *core.ImportLimiter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rowsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_queued_total",
			Help:      "Rows accepted into an import queue.",
		}, []string{"table"}),
		rowsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_duplicate_total",
			Help:      "Rows dropped on queue because an equal row was already queued.",
		}, []string{"table"}),
		rowsExisting: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_existing_total",
			Help:      "Queued rows dropped because the store already held them.",
		}, []string{"table"}),
		rowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows committed to the store.",
		}, []string{"table"}),
		rowsDependent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependent_rows_inserted_total",
			Help:      "Dependent rows committed after their parents.",
		}, []string{"table"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished import runs.",
		}, []string{"table"}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Failed import runs by error code.",
		}, []string{"table", "code"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent in Process.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"table"}),
	}

	m.registry.MustRegister(
		m.rowsQueued, m.rowsDuplicate, m.rowsExisting, m.rowsInserted,
		m.rowsDependent, m.runs, m.runFailures, m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if limiter != nil {
		m.importsActive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_active",
			Help:      "Import runs currently holding a slot.",
		}, func() float64 { return float64(limiter.Status().Active) })
		m.registry.MustRegister(m.importsActive)
	}
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RowsQueued implements core.Observer.
func (m *Metrics) RowsQueued(table string, queued, duplicates int) {
	m.rowsQueued.WithLabelValues(table).Add(float64(queued))
	m.rowsDuplicate.WithLabelValues(table).Add(float64(duplicates))
}

// RunFinished implements core.Observer.
func (m *Metrics) RunFinished(table string, stats core.RunStats, elapsed time.Duration, err error) {
	m.runs.WithLabelValues(table).Inc()
	m.runDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	if err != nil {
		m.runFailures.WithLabelValues(table, core.MapError(err).Code).Inc()
		return
	}
	m.rowsExisting.WithLabelValues(table).Add(float64(stats.Existing))
	m.rowsInserted.WithLabelValues(table).Add(float64(stats.Inserted))
	m.rowsDependent.WithLabelValues(table).Add(float64(stats.Dependents))
}
