// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "threshold_trader"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Engine metrics
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	LastSuccessfulTick prometheus.Gauge
	HoldingUnits       prometheus.Gauge
	LastPrice          *prometheus.GaugeVec

	// Aggregator metrics
	QuotesTotal      *prometheus.CounterVec
	RateLimitRetries prometheus.Counter

	// Execution metrics
	SwapsTotal    *prometheus.CounterVec
	JanitorCloses *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Engine metrics
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of engine ticks by action",
		}, []string{"action"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Engine tick duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		LastSuccessfulTick: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last tick that completed without error",
		}),
		HoldingUnits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "holding_units",
			Help:      "Token balance observed at the start of the last tick",
		}),
		LastPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "last_price_lamports",
			Help:      "Last implied price in lamports per whole token by side",
		}, []string{"side"}),

		// Aggregator metrics
		QuotesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "quotes_total",
			Help:      "Total number of quote requests by side and outcome",
		}, []string{"side", "outcome"}),
		RateLimitRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "rate_limit_retries_total",
			Help:      "Total number of retries after a rate-limit response",
		}),

		// Execution metrics
		SwapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "swaps_total",
			Help:      "Total number of swaps by side and outcome",
		}, []string{"side", "outcome"}),
		JanitorCloses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "janitor_closes_total",
			Help:      "Total number of token account close attempts by outcome",
		}, []string{"outcome"}),

		// Latency metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
// A nil gatherer serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick records a finished tick.
func (m *Metrics) RecordTick(action string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(action).Inc()
	m.TickDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.LastSuccessfulTick.SetToCurrentTime()
	}
}

// SetHolding updates the holding gauge.
func (m *Metrics) SetHolding(units uint64) {
	if m == nil {
		return
	}
	m.HoldingUnits.Set(float64(units))
}

// SetLastPrice updates the last price gauge for side.
func (m *Metrics) SetLastPrice(side string, price float64) {
	if m == nil {
		return
	}
	m.LastPrice.WithLabelValues(side).Set(price)
}

// RecordQuote records a quote request outcome.
func (m *Metrics) RecordQuote(side, outcome string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(side, outcome).Inc()
}

// RecordRateLimitRetry increments the rate-limit retry counter.
func (m *Metrics) RecordRateLimitRetry() {
	if m == nil {
		return
	}
	m.RateLimitRetries.Inc()
}

// RecordSwap records a swap outcome.
func (m *Metrics) RecordSwap(side, outcome string) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(side, outcome).Inc()
}

// RecordJanitorClose records a close attempt.
func (m *Metrics) RecordJanitorClose(closed bool) {
	if m == nil {
		return
	}
	outcome := "skipped"
	if closed {
		outcome = "closed"
	}
	m.JanitorCloses.WithLabelValues(outcome).Inc()
}

// RecordRPC records RPC call latency and failures.
func (m *Metrics) RecordRPC(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(elapsed.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
