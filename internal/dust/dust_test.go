package dust

import (
	"context"
	"testing"
	"time"

	"cct/internal/account"
	"cct/internal/adapter/simulated"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/singletrade"
	"cct/internal/trade"
)

func xrp(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("XRP")) }
func eur(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("EUR")) }

func newMarket(t *testing.T, base, quote string) market.Market {
	t.Helper()
	m, err := market.New(money.MustCurrencyCode(base), money.MustCurrencyCode(quote))
	if err != nil {
		t.Fatalf("new market %s-%s: %v", base, quote, err)
	}
	return m
}

// newSweeperFor builds a Sweeper whose Engine resolves order books to a
// single price level per side (BookDepth: 1), so a test's bid/ask volumes
// translate directly into liquidity available at that exact price with no
// ladder synthesis to account for.
func newSweeperFor(acct *simulated.Account, maxIterations int) *Sweeper {
	return &Sweeper{
		Engine:        &singletrade.Engine{Public: acct, Private: acct, BookDepth: 1},
		MaxIterations: maxIterations,
	}
}

func TestRunReturnsImmediatelyWhenAboveThreshold(t *testing.T) {
	t.Parallel()
	mkt := newMarket(t, "XRP", "EUR")
	a := simulated.New("simex", "owner1")
	a.AddMarket(mkt)
	a.SetBalance(xrp(20, 0))
	a.WithExchangeConfig(account.ExchangeConfig{
		DustThresholds: map[money.CurrencyCode]money.Amount{money.MustCurrencyCode("XRP"): xrp(10, 0)},
	})

	s := newSweeperFor(a, 5)
	result, err := s.Run(context.Background(), money.MustCurrencyCode("XRP"), trade.Real)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades, got %v", result.Trades)
	}
	if c, err := result.Final.Compare(xrp(20, 0)); err != nil || c != 0 {
		t.Errorf("final balance = %v, want unchanged 20 XRP", result.Final)
	}
}

func TestRunNoopWithoutConfiguredThreshold(t *testing.T) {
	t.Parallel()
	mkt := newMarket(t, "XRP", "EUR")
	a := simulated.New("simex", "owner1")
	a.AddMarket(mkt)
	a.SetBalance(xrp(2, 0))
	// No DustThresholds entry for XRP at all.

	s := newSweeperFor(a, 5)
	result, err := s.Run(context.Background(), money.MustCurrencyCode("XRP"), trade.Real)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades without a configured threshold, got %v", result.Trades)
	}
	if !result.Final.IsZero() {
		t.Errorf("expected zero-value Final when no threshold is configured, got %v", result.Final)
	}
}

// TestRunDirectSellsWhenLiquidityIsSufficient covers the first branch of
// spec.md §4.I's loop: a dust balance that the book can absorb immediately
// is sold in one pass, with no priming buy needed.
func TestRunDirectSellsWhenLiquidityIsSufficient(t *testing.T) {
	t.Parallel()
	mkt := newMarket(t, "XRP", "EUR")
	a := simulated.New("simex", "owner1").WithInstantFill(true)
	a.AddMarket(mkt)
	a.SetQuote(mkt, eur(99, 2), xrp(50, 0), eur(101, 2), xrp(50, 0), market.VolAndPriNbDecimals{Vol: 0, Pri: 2})
	a.SetBalance(xrp(2, 0))
	a.WithExchangeConfig(account.ExchangeConfig{
		DustThresholds: map[money.CurrencyCode]money.Amount{money.MustCurrencyCode("XRP"): xrp(10, 0)},
	})

	s := newSweeperFor(a, 5)
	result, err := s.Run(context.Background(), money.MustCurrencyCode("XRP"), trade.Real)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d: %v", len(result.Trades), result.Trades)
	}
	if c, err := result.Trades[0].Sent.Compare(xrp(2, 0)); err != nil || c != 0 {
		t.Errorf("sent = %v, want 2 XRP", result.Trades[0].Sent)
	}
	// simulated.Account never credits/debits balances from fills (it's a
	// dry-run account, not a ledger), so the final balance query still
	// reports the registered starting balance.
	if c, err := result.Final.Compare(xrp(2, 0)); err != nil || c != 0 {
		t.Errorf("final balance = %v, want unchanged 2 XRP", result.Final)
	}
}

// TestRunPrimesOnEveryIterationWhenDirectSellLacksLiquidity covers the
// priming-buy branch (spec.md §4.I steps 3-4): the bid side can't absorb
// the dust balance directly, but the ask side has enough depth to fill a
// priming buy sized off the dust threshold. Since simulated.Account is a
// dry-run account that never credits a fill back into its own registered
// balance, the re-checked balance never moves, so the same priming buy
// fires again on every iteration (at the same multiplier, since it keeps
// filling) until MaxIterations is spent.
func TestRunPrimesOnEveryIterationWhenDirectSellLacksLiquidity(t *testing.T) {
	t.Parallel()
	mkt := newMarket(t, "XRP", "EUR")
	a := simulated.New("simex", "owner1").WithInstantFill(true)
	a.AddMarket(mkt)
	// Thin bid side: only 1 XRP of resting buy interest, can't absorb a
	// direct sell of the full 2 XRP balance. Deep ask side: plenty of EUR
	// notional to fill a priming buy of threshold (10 XRP) worth.
	a.SetQuote(mkt, eur(99, 2), xrp(1, 0), eur(101, 2), xrp(50, 0), market.VolAndPriNbDecimals{Vol: 0, Pri: 2})
	a.SetBalance(xrp(2, 0))
	a.WithExchangeConfig(account.ExchangeConfig{
		DustThresholds: map[money.CurrencyCode]money.Amount{money.MustCurrencyCode("XRP"): xrp(10, 0)},
	})

	s := newSweeperFor(a, 3)
	result, err := s.Run(context.Background(), money.MustCurrencyCode("XRP"), trade.Real)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 3 {
		t.Fatalf("expected one priming buy per iteration (3), got %d: %v", len(result.Trades), result.Trades)
	}
	for i, traded := range result.Trades {
		if c, err := traded.Received.Compare(xrp(10, 0)); err != nil || c != 0 {
			t.Errorf("trade %d received = %v, want 10 XRP primed", i, traded.Received)
		}
	}
	if c, err := result.Final.Compare(xrp(2, 0)); err != nil || c != 0 {
		t.Errorf("final balance = %v, want unchanged 2 XRP", result.Final)
	}
}

// TestRunGivesUpAfterMaxIterationsWhenNothingWorks covers the exhaustion
// path: no quote is ever registered for the only eligible market, so every
// sell and priming attempt fails, the multiplier keeps climbing, and Run
// returns once MaxIterations is spent without ever placing a trade.
func TestRunGivesUpAfterMaxIterationsWhenNothingWorks(t *testing.T) {
	t.Parallel()
	mkt := newMarket(t, "XRP", "EUR")
	a := simulated.New("simex", "owner1")
	a.AddMarket(mkt) // registered as tradable, but never given a quote
	a.SetBalance(xrp(2, 0))
	a.WithExchangeConfig(account.ExchangeConfig{
		DustThresholds: map[money.CurrencyCode]money.Amount{money.MustCurrencyCode("XRP"): xrp(10, 0)},
	})

	s := newSweeperFor(a, 3)
	result, err := s.Run(context.Background(), money.MustCurrencyCode("XRP"), trade.Real)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades, got %v", result.Trades)
	}
	if c, err := result.Final.Compare(xrp(2, 0)); err != nil || c != 0 {
		t.Errorf("final balance = %v, want unchanged 2 XRP", result.Final)
	}
}

func TestEligibleMarketsFiltersByBaseAndSortsByQuote(t *testing.T) {
	t.Parallel()
	xrpBTC := newMarket(t, "XRP", "BTC")
	xrpEUR := newMarket(t, "XRP", "EUR")
	xrpUSD := newMarket(t, "XRP", "USD")
	btcEUR := newMarket(t, "BTC", "EUR") // not eligible: XRP isn't the base

	got := eligibleMarkets([]market.Market{xrpUSD, btcEUR, xrpBTC, xrpEUR}, money.MustCurrencyCode("XRP"))
	if len(got) != 3 {
		t.Fatalf("expected 3 eligible markets, got %d: %v", len(got), got)
	}
	if got[0].Quote() != xrpBTC.Quote() || got[1].Quote() != xrpEUR.Quote() || got[2].Quote() != xrpUSD.Quote() {
		t.Errorf("expected BTC, EUR, USD order, got %v", got)
	}
}

func TestMaxDustMultiplierDefaultsAndOverrides(t *testing.T) {
	t.Parallel()
	s := &Sweeper{}
	if got := s.maxDustMultiplier(); got != defaultMaxDustMultiplier {
		t.Errorf("maxDustMultiplier() = %v, want default %v", got, defaultMaxDustMultiplier)
	}
	s.MaxDustMultiplier = 2.5
	if got := s.maxDustMultiplier(); got != 2.5 {
		t.Errorf("maxDustMultiplier() = %v, want override 2.5", got)
	}
}

// countingBalanceAccount wraps a simulated.Account to count
// QueryAccountBalance calls, Run's only per-iteration side effect that's
// externally observable without inspecting its result, used to prove the
// multiplier cap stops the loop well short of MaxIterations.
type countingBalanceAccount struct {
	*simulated.Account
	balanceCalls int
}

func (a *countingBalanceAccount) QueryAccountBalance(ctx context.Context, opts account.BalanceOptions) (*account.BalancePortfolio, error) {
	a.balanceCalls++
	return a.Account.QueryAccountBalance(ctx, opts)
}

// TestRunStopsPrimingOnceMultiplierExceedsCap covers the same exhaustion
// setup as TestRunGivesUpAfterMaxIterationsWhenNothingWorks, but with
// MaxIterations set far higher than the number of buyStep increments it
// takes to cross a low MaxDustMultiplier: Run must give up once the
// multiplier cap is crossed, not run all the way to MaxIterations.
func TestRunStopsPrimingOnceMultiplierExceedsCap(t *testing.T) {
	t.Parallel()
	mkt := newMarket(t, "XRP", "EUR")
	inner := simulated.New("simex", "owner1")
	inner.AddMarket(mkt) // registered as tradable, but never given a quote
	inner.SetBalance(xrp(2, 0))
	inner.WithExchangeConfig(account.ExchangeConfig{
		DustThresholds: map[money.CurrencyCode]money.Amount{money.MustCurrencyCode("XRP"): xrp(10, 0)},
	})
	a := &countingBalanceAccount{Account: inner}

	s := &Sweeper{
		Engine:            &singletrade.Engine{Public: a, Private: a, BookDepth: 1},
		MaxIterations:     100,
		MaxDustMultiplier: 1.2, // one buyStep (0.5) past the 1.0 starting point already exceeds this
	}
	result, err := s.Run(context.Background(), money.MustCurrencyCode("XRP"), trade.Real)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected no trades, got %v", result.Trades)
	}
	// Without the cap this would run all 100 MaxIterations; the cap must
	// stop it after the single iteration it takes to cross 1.2.
	if a.balanceCalls >= 100 {
		t.Errorf("balanceCalls = %d, want well under MaxIterations=100 (cap should have stopped the loop early)", a.balanceCalls)
	}
	if a.balanceCalls == 0 {
		t.Error("expected at least one balance query before the cap stopped the loop")
	}
}

func TestTakerOptionsForcesSingleTrade(t *testing.T) {
	t.Parallel()
	s := &Sweeper{MaxTradeTime: time.Second}
	opts := s.takerOptions(trade.Real)
	if opts.TradeTypePolicy() != trade.ForceSingleTrade {
		t.Errorf("TradeTypePolicy = %v, want ForceSingleTrade", opts.TradeTypePolicy())
	}
	if opts.PriceStrategy() != trade.Taker {
		t.Errorf("PriceStrategy = %v, want Taker", opts.PriceStrategy())
	}
}
