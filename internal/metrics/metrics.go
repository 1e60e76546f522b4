// Package metrics provides Prometheus metrics for detection runs and ingestion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the subtrack collectors.
type Metrics struct {
	registry *prometheus.Registry

	detectionRunsTotal       *prometheus.CounterVec
	detectionDuration        prometheus.Histogram
	skippedTransactionsTotal prometheus.Counter
	creditsTotal             prometheus.Counter
	upsertsTotal             *prometheus.CounterVec
	importedRowsTotal        *prometheus.CounterVec
	subscriptions            *prometheus.GaugeVec
}

// New creates metrics registered on a dedicated registry that also carries
// the Go runtime and process collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return NewWithRegistry(reg)
}

// NewWithRegistry creates metrics and registers them on registry.
func NewWithRegistry(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.detectionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtrack_detection_runs_total",
			Help: "Total number of detection runs",
		},
		[]string{"outcome"},
	)
	m.detectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "subtrack_detection_duration_seconds",
		Help:    "Time taken by a detection run",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	})
	m.skippedTransactionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtrack_skipped_transactions_total",
		Help: "Transactions skipped because their vendor name normalized to nothing",
	})
	m.creditsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "subtrack_credit_transactions_total",
		Help: "Refunds and other non-positive amounts left out of detection",
	})
	m.upsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtrack_subscription_upserts_total",
			Help: "Subscription changes written by detection",
		},
		[]string{"op"}, // op: create, update
	)
	m.importedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtrack_imported_transactions_total",
			Help: "Transactions stored, by ingestion source",
		},
		[]string{"source"},
	)
	m.subscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtrack_subscriptions",
			Help: "Subscriptions by interval after the last run",
		},
		[]string{"interval"},
	)
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.detectionRunsTotal.Describe(ch)
	m.detectionDuration.Describe(ch)
	m.skippedTransactionsTotal.Describe(ch)
	m.creditsTotal.Describe(ch)
	m.upsertsTotal.Describe(ch)
	m.importedRowsTotal.Describe(ch)
	m.subscriptions.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.detectionRunsTotal.Collect(ch)
	m.detectionDuration.Collect(ch)
	m.skippedTransactionsTotal.Collect(ch)
	m.creditsTotal.Collect(ch)
	m.upsertsTotal.Collect(ch)
	m.importedRowsTotal.Collect(ch)
	m.subscriptions.Collect(ch)
}

// RecordDetectionRun records one finished run.
func (m *Metrics) RecordDetectionRun(outcome string, d time.Duration, skipped, credits int) {
	m.detectionRunsTotal.WithLabelValues(outcome).Inc()
	m.detectionDuration.Observe(d.Seconds())
	m.skippedTransactionsTotal.Add(float64(skipped))
	m.creditsTotal.Add(float64(credits))
}

// RecordUpserts adds n changes of the given op.
func (m *Metrics) RecordUpserts(op string, n int) {
	if n > 0 {
		m.upsertsTotal.WithLabelValues(op).Add(float64(n))
	}
}

// RecordImported adds n stored transactions from source.
func (m *Metrics) RecordImported(source string, n int) {
	if n > 0 {
		m.importedRowsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// SetSubscriptions replaces the per-interval subscription gauge.
func (m *Metrics) SetSubscriptions(byInterval map[string]int) {
	m.subscriptions.Reset()
	for interval, n := range byInterval {
		m.subscriptions.WithLabelValues(interval).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
