// Package metrics defines the Prometheus instrumentation exposed on the
// optional dashboard's /metrics endpoint (spec.md §6's "additionally exposed,
// ambient" surface — observability sits outside spec.md's Non-goals-scoped
// core, same as it does for the teacher).
//
// The metric shapes (CounterVec/GaugeVec with label dimensions, small
// Inc/Observe helper methods) are grounded on the chidi150c-coinbase bot's
// metrics.go, the one pack repo that actually wires up
// github.com/prometheus/client_golang. That file registers package-level
// vars against the global DefaultRegisterer from an init() func, which fits
// a single-instance main package; this is a library package an
// orchestrator can construct more than once (tests included), so New takes
// an explicit prometheus.Registerer instead of reaching for the global
// default, avoiding a duplicate-registration panic the second time a test
// builds a Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter/gauge/histogram this module exposes.
type Metrics struct {
	TradesTotal          *prometheus.CounterVec
	WithdrawsTotal       *prometheus.CounterVec
	DustSweepsTotal      *prometheus.CounterVec
	DustTradesTotal      *prometheus.CounterVec
	OrchestratorInFlight *prometheus.GaugeVec
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	RateLimitWaitSeconds *prometheus.HistogramVec
}

// New builds and registers every metric against reg. Pass
// prometheus.NewRegistry() in tests or from multiple independent instances;
// cmd/cct passes the prometheus.NewRegistry() it serves on /metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cct_trades_total",
			Help: "Trade legs executed, by exchange and resulting state.",
		}, []string{"exchange", "state"}),

		WithdrawsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cct_withdraws_total",
			Help: "Withdrawals attempted, by source exchange and terminal status.",
		}, []string{"exchange", "status"}),

		DustSweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cct_dust_sweeps_total",
			Help: "Dust-sweep runs, by exchange and outcome (cleared|exhausted|noop).",
		}, []string{"exchange", "outcome"}),

		DustTradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cct_dust_trades_total",
			Help: "Individual sell/priming-buy legs placed by the dust sweeper, by exchange and kind.",
		}, []string{"exchange", "kind"}),

		OrchestratorInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cct_orchestrator_inflight",
			Help: "In-flight orchestrator calls, by operation name.",
		}, []string{"operation"}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cct_cache_hits_total",
			Help: "Cache.Get calls served from a fresh entry, by cache name.",
		}, []string{"cache"}),

		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cct_cache_misses_total",
			Help: "Cache.Get calls that invoked the loader, by cache name.",
		}, []string{"cache"}),

		RateLimitWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cct_ratelimit_wait_seconds",
			Help:    "Time spent blocked in TokenBucket.Wait, by exchange and bucket category.",
			Buckets: prometheus.DefBuckets,
		}, []string{"exchange", "category"}),
	}

	reg.MustRegister(
		m.TradesTotal,
		m.WithdrawsTotal,
		m.DustSweepsTotal,
		m.DustTradesTotal,
		m.OrchestratorInFlight,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RateLimitWaitSeconds,
	)
	return m
}

// ObserveTrade records one trade leg's terminal state.
func (m *Metrics) ObserveTrade(exchange, state string) {
	m.TradesTotal.WithLabelValues(exchange, state).Inc()
}

// ObserveWithdraw records one withdrawal's terminal status.
func (m *Metrics) ObserveWithdraw(exchange, status string) {
	m.WithdrawsTotal.WithLabelValues(exchange, status).Inc()
}

// ObserveDustSweep records one dust-sweep run's outcome.
func (m *Metrics) ObserveDustSweep(exchange, outcome string) {
	m.DustSweepsTotal.WithLabelValues(exchange, outcome).Inc()
}

// ObserveDustTrade records one leg placed by the dust sweeper.
func (m *Metrics) ObserveDustTrade(exchange, kind string) {
	m.DustTradesTotal.WithLabelValues(exchange, kind).Inc()
}

// IncInFlight/DecInFlight track the orchestrator's currently-running calls
// per operation name.
func (m *Metrics) IncInFlight(operation string) {
	m.OrchestratorInFlight.WithLabelValues(operation).Inc()
}

func (m *Metrics) DecInFlight(operation string) {
	m.OrchestratorInFlight.WithLabelValues(operation).Dec()
}

// ObserveCacheHit/ObserveCacheMiss record one Cache.Get outcome.
func (m *Metrics) ObserveCacheHit(cacheName string) {
	m.CacheHitsTotal.WithLabelValues(cacheName).Inc()
}

func (m *Metrics) ObserveCacheMiss(cacheName string) {
	m.CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

// ObserveRateLimitWait records how long a caller blocked in TokenBucket.Wait.
func (m *Metrics) ObserveRateLimitWait(exchange, category string, wait time.Duration) {
	m.RateLimitWaitSeconds.WithLabelValues(exchange, category).Observe(wait.Seconds())
}
