package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTradeIncrementsLabeledCounter(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTrade("simex", "complete")
	m.ObserveTrade("simex", "complete")
	m.ObserveTrade("simex", "partial")

	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("simex", "complete")); got != 2 {
		t.Errorf("complete count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TradesTotal.WithLabelValues("simex", "partial")); got != 1 {
		t.Errorf("partial count = %v, want 1", got)
	}
}

func TestObserveDustSweepAndDustTrade(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDustSweep("simex", "cleared")
	m.ObserveDustTrade("simex", "priming_buy")
	m.ObserveDustTrade("simex", "priming_buy")

	if got := testutil.ToFloat64(m.DustSweepsTotal.WithLabelValues("simex", "cleared")); got != 1 {
		t.Errorf("cleared count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DustTradesTotal.WithLabelValues("simex", "priming_buy")); got != 2 {
		t.Errorf("priming_buy count = %v, want 2", got)
	}
}

func TestInFlightGaugeTracksIncAndDec(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncInFlight("trade")
	m.IncInFlight("trade")
	if got := testutil.ToFloat64(m.OrchestratorInFlight.WithLabelValues("trade")); got != 2 {
		t.Errorf("inflight = %v, want 2", got)
	}
	m.DecInFlight("trade")
	if got := testutil.ToFloat64(m.OrchestratorInFlight.WithLabelValues("trade")); got != 1 {
		t.Errorf("inflight after one Dec = %v, want 1", got)
	}
}

func TestCacheHitAndMissCounters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCacheHit("orderbook")
	m.ObserveCacheMiss("orderbook")
	m.ObserveCacheMiss("orderbook")

	if got := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("orderbook")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("orderbook")); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
}

func TestRateLimitWaitHistogramRecordsObservation(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRateLimitWait("simex", "order", 50*time.Millisecond)

	if got := testutil.CollectAndCount(m.RateLimitWaitSeconds); got != 1 {
		t.Errorf("histogram series count = %d, want 1", got)
	}
}

func TestNewRegistersAgainstIndependentRegistriesWithoutPanicking(t *testing.T) {
	t.Parallel()
	// Two independent instances must not collide, since each uses its own
	// Registerer rather than the global default.
	_ = New(prometheus.NewRegistry())
	_ = New(prometheus.NewRegistry())
}
