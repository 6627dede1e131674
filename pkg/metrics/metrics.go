package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,
}

// Metrics bundles the service's Prometheus collectors. HTTP request metrics
// come from the gin middleware; the rest are incremented by the domain
// services.
type Metrics struct {
	registry *prometheus.Registry

	ReqCount    *prometheus.CounterVec
	ReqDuration *prometheus.HistogramVec

	// PaymentsRecorded counts Record outcomes by ingestion source.
	// source: live|reconcile, outcome: inserted|duplicate.
	PaymentsRecorded *prometheus.CounterVec
	// SubscriptionTransitions counts lifecycle state changes.
	SubscriptionTransitions *prometheus.CounterVec
	// FinalizeOutcomes counts terminal finalization results.
	// outcome: granted|pending|failed.
	FinalizeOutcomes *prometheus.CounterVec
	FinalizeRetries  prometheus.Counter
	// ReconcileRuns counts runs by result: ok|aborted|lease_held.
	ReconcileRuns          *prometheus.CounterVec
	ReconcilePaymentsFound prometheus.Counter
	ReconcileCursorAge     prometheus.Gauge
}

func New(subsystem string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ReqCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "req_total",
		Help:      "How many HTTP requests processed, partitioned by status code, method and route.",
	}, []string{"code", "method", "url"})

	m.ReqDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "req_dur_ms",
		Help:      "The HTTP request latencies in milliseconds.",
		Buckets:   HistogramBuckets,
	}, []string{"code", "method", "url"})

	m.PaymentsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "payments_recorded_total",
		Help:      "Payment record outcomes by ingestion source.",
	}, []string{"source", "outcome"})

	m.SubscriptionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "subscription_transitions_total",
		Help:      "Subscription lifecycle transitions.",
	}, []string{"from", "to"})

	m.FinalizeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "finalize_outcomes_total",
		Help:      "Terminal access finalization outcomes.",
	}, []string{"outcome"})

	m.FinalizeRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "finalize_retries_total",
		Help:      "Retried access finalization attempts.",
	})

	m.ReconcileRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation runs by result.",
	}, []string{"result"})

	m.ReconcilePaymentsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "reconcile_payments_found_total",
		Help:      "Payments discovered only through reconciliation.",
	})

	m.ReconcileCursorAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "reconcile_cursor_age_seconds",
		Help:      "Age of the reconciliation cursor after the last run.",
	})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReqCount, m.ReqDuration,
		m.PaymentsRecorded, m.SubscriptionTransitions,
		m.FinalizeOutcomes, m.FinalizeRetries,
		m.ReconcileRuns, m.ReconcilePaymentsFound, m.ReconcileCursorAge,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
