// Package metrics exposes Prometheus collectors for ingestion, enrichment
// and pipeline phases.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
)

// Metrics holds the catalog collectors. A nil *Metrics is valid and records
// nothing, so components can run without a registry in tests.
type Metrics struct {
	registry *prometheus.Registry

	enrichAttempts *prometheus.CounterVec
	enrichDuration *prometheus.HistogramVec

	backendTokens *prometheus.CounterVec
	backendCost   *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec

	ingestRecords *prometheus.CounterVec
	priceChanges  prometheus.Counter

	phaseDuration *prometheus.HistogramVec

	alerts *prometheus.CounterVec
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}
	m.init()
	if err := registry.Register(m); err != nil {
		return nil, eris.Wrap(err, "metrics: register")
	}
	return m, nil
}

func (m *Metrics) init() {
	m.enrichAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_enrich_attempts_total",
			Help: "Enrichment attempts by operation, strategy and outcome",
		},
		[]string{"operation", "strategy", "status"}, // status: success, error
	)

	m.enrichDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "catalog_enrich_duration_seconds",
			Help: "Time taken by one enrichment attempt",
			// 10ms to ~80s; fallbacks land in the first bucket, backend calls
			// spread up to the 60s timeout.
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"operation", "strategy"},
	)

	m.backendTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_backend_tokens_total",
			Help: "Tokens consumed by text-generation backends",
		},
		[]string{"provider", "direction"}, // direction: input, output
	)

	m.backendCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_backend_cost_usd_total",
			Help: "Estimated spend on text-generation backends in USD",
		},
		[]string{"provider", "model"},
	)

	m.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_backend_breaker_state",
			Help: "Circuit breaker state per backend (0 closed, 1 open, 2 half-open)",
		},
		[]string{"backend"},
	)

	m.ingestRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_records_total",
			Help: "Ingested records by outcome",
		},
		[]string{"outcome"}, // outcome: created, updated, rejected, failed
	)

	m.priceChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_price_changes_total",
			Help: "Price history records appended",
		},
	)

	m.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_pipeline_phase_duration_seconds",
			Help:    "Duration of pipeline phases",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"phase", "status"},
	)

	m.alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_alerts_total",
			Help: "Health alerts raised by the background checker",
		},
		[]string{"type"},
	)
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.enrichAttempts.Describe(ch)
	m.enrichDuration.Describe(ch)
	m.backendTokens.Describe(ch)
	m.backendCost.Describe(ch)
	m.breakerState.Describe(ch)
	m.ingestRecords.Describe(ch)
	m.priceChanges.Describe(ch)
	m.phaseDuration.Describe(ch)
	m.alerts.Describe(ch)
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.enrichAttempts.Collect(ch)
	m.enrichDuration.Collect(ch)
	m.backendTokens.Collect(ch)
	m.backendCost.Collect(ch)
	m.breakerState.Collect(ch)
	m.ingestRecords.Collect(ch)
	m.priceChanges.Collect(ch)
	m.phaseDuration.Collect(ch)
	m.alerts.Collect(ch)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEnrichment records one enrichment attempt.
func (m *Metrics) RecordEnrichment(operation, strategy string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.enrichAttempts.WithLabelValues(operation, strategy, status(success)).Inc()
	m.enrichDuration.WithLabelValues(operation, strategy).Observe(d.Seconds())
}

// RecordBackendUsage records the tokens and estimated cost of one call.
func (m *Metrics) RecordBackendUsage(provider, model string, input, output int64, costUSD float64) {
	if m == nil {
		return
	}
	m.backendTokens.WithLabelValues(provider, "input").Add(float64(input))
	m.backendTokens.WithLabelValues(provider, "output").Add(float64(output))
	if costUSD > 0 {
		m.backendCost.WithLabelValues(provider, model).Add(costUSD)
	}
}

// SetBreakerState publishes a breaker position.
func (m *Metrics) SetBreakerState(backend string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(backend).Set(float64(state))
}

// RecordIngest counts one ingested record by outcome.
func (m *Metrics) RecordIngest(outcome string) {
	if m == nil {
		return
	}
	m.ingestRecords.WithLabelValues(outcome).Inc()
}

// RecordPriceChange counts one appended price history record.
func (m *Metrics) RecordPriceChange() {
	if m == nil {
		return
	}
	m.priceChanges.Inc()
}

// RecordPhase records a completed pipeline phase.
func (m *Metrics) RecordPhase(phase, phaseStatus string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, phaseStatus).Observe(d.Seconds())
}

// RecordAlert counts one raised alert.
func (m *Metrics) RecordAlert(alertType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
