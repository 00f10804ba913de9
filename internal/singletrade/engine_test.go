package singletrade

import (
	"context"
	"sync"
	"testing"
	"time"

	"cct/internal/adapter/simulated"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

func usd(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("USD")) }
func btc(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("BTC")) }

func btcUSD(t *testing.T) market.Market {
	t.Helper()
	m, err := market.New(money.MustCurrencyCode("BTC"), money.MustCurrencyCode("USD"))
	if err != nil {
		t.Fatalf("New market: %v", err)
	}
	return m
}

// stepClock advances by `step` each time Now is called, simulating the
// passage of wall-clock time far faster than the test's real sleeps.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func newEngine(t *testing.T, a *simulated.Account, step time.Duration) *Engine {
	t.Helper()
	return &Engine{
		Public:       a,
		Private:      a,
		PollInterval: time.Millisecond,
		Now:          (&stepClock{t: time.Unix(1_700_000_000, 0), step: step}).Now,
	}
}

// TestRunSimulationModeSynthesizesFill covers S1: a simulation-mode trade
// against an account that doesn't support native simulated orders and
// doesn't opt into a real probe order settles instantly, without ever
// reaching PlaceOrder.
func TestRunSimulationModeSynthesizesFill(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithSimulatedOrderSupport(false)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	opts, err := trade.New("taker", trade.Cancel, trade.Simulation, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	tctx := trade.NewContext(mkt, trade.Buy, usd(1000, 0), opts, 1_700_000_000)

	e := newEngine(t, a, time.Second)
	result, err := e.Run(context.Background(), tctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != trade.Complete {
		t.Errorf("state = %s, want complete", result.State)
	}
	if result.TradedAmounts.Received.CurrencyCode() != money.MustCurrencyCode("BTC") {
		t.Errorf("expected BTC received, got %s", result.TradedAmounts.Received.CurrencyCode())
	}
}

// TestRunInstantFillClosesImmediately covers the case where PlaceOrder
// itself reports the order already closed: the engine must not enter the
// poll loop at all.
func TestRunInstantFillClosesImmediately(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithInstantFill(true)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	opts, err := trade.New("maker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	tctx := trade.NewContext(mkt, trade.Buy, usd(1000, 0), opts, 1_700_000_000)

	e := newEngine(t, a, time.Second)
	result, err := e.Run(context.Background(), tctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != trade.Complete {
		t.Errorf("state = %s, want complete", result.State)
	}
}

// TestRunLoopFillsDuringWait covers S2: a resting maker order fills while
// the engine is polling, before any deadline pressure kicks in.
func TestRunLoopFillsDuringWait(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithInstantFill(false)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	opts, err := trade.New("maker", trade.Cancel, trade.Real, time.Hour)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	tctx := trade.NewContext(mkt, trade.Buy, usd(1000, 0), opts, 1_700_000_000)

	e := newEngine(t, a, 10*time.Millisecond)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		orderID, err := a.WaitForOpenOrder(ctx)
		if err != nil {
			return
		}
		vol, convErr := volumeFromAmount(mkt, usd(1000, 0), usd(29900, 0))
		if convErr != nil {
			return
		}
		_ = a.Fill(orderID, vol)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := e.Run(ctx, tctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != trade.Complete {
		t.Errorf("state = %s, want complete", result.State)
	}
}

// TestRunLoopForceMatchesAtDeadline covers S3: a ForceMatch timeout action
// crosses the spread for whatever remains once the deadline is reached.
func TestRunLoopForceMatchesAtDeadline(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithInstantFill(false)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	opts, err := trade.New("maker", trade.ForceMatch, trade.Real, 2*time.Second)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	tctx := trade.NewContext(mkt, trade.Buy, usd(1000, 0), opts, 1_700_000_000)

	e := newEngine(t, a, 500*time.Millisecond)
	// A wide emergency buffer relative to the clock's step size guarantees
	// the test actually lands inside the emergency window instead of
	// jumping straight past it to the hard deadline.
	e.EmergencyBufferFraction = 0.5

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := e.Run(ctx, tctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != trade.Complete {
		t.Errorf("state = %s, want complete after emergency taker fallback", result.State)
	}
}

// TestRunLoopCancelsAtDeadline covers S4: a Cancel timeout action with no
// fill ends the trade Untouched once the deadline passes.
func TestRunLoopCancelsAtDeadline(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithInstantFill(false)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	opts, err := trade.New("maker", trade.Cancel, trade.Real, 2*time.Second)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	tctx := trade.NewContext(mkt, trade.Buy, usd(1000, 0), opts, 1_700_000_000)

	e := newEngine(t, a, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := e.Run(ctx, tctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != trade.Untouched {
		t.Errorf("state = %s, want untouched", result.State)
	}
}
