// Package dust implements the dust sweeper (spec.md §4.I): a per-account,
// per-currency loop that tries to clear a balance too small to trade
// directly, by priming it with a small buy until it clears the exchange's
// minimum tradable size.
//
// No direct teacher analog exists; this composes internal/singletrade (a
// pure-taker Engine) with internal/market the way spec.md's control-flow
// summary describes the sweeper: "compose SingleTrade with the market's
// order book", never engaging MultiTrade.
package dust

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cct/internal/account"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/singletrade"
	"cct/internal/trade"
)

const (
	defaultMaxIterations     = 20
	defaultBuyStep           = 0.5
	defaultMaxTradeTime      = 10 * time.Second
	defaultMaxDustMultiplier = 5.0
)

// Result is what a sweep produced: every trade it placed, in order, and the
// account's final balance in the swept currency.
type Result struct {
	Trades []trade.TradedAmounts
	Final  money.Amount
}

// Sweeper drives the dust sweep for one account.
type Sweeper struct {
	Engine *singletrade.Engine

	// MaxIterations bounds the buy-multiplier escalation loop; overrides
	// defaultMaxIterations when nonzero.
	MaxIterations int
	// BuyStep is how much the multiplier grows each failed priming round;
	// overrides defaultBuyStep when nonzero.
	BuyStep float64
	// MaxTradeTime bounds each individual taker leg; overrides
	// defaultMaxTradeTime when nonzero.
	MaxTradeTime time.Duration
	// MaxDustMultiplier caps the priming-buy multiplier's growth; overrides
	// defaultMaxDustMultiplier when nonzero. Once exceeded, the sweep stops
	// attempting further priming buys and returns whatever it accumulated.
	MaxDustMultiplier float64
	// Now overrides time.Now, for deterministic tests.
	Now func() time.Time
}

func (s *Sweeper) maxIterations() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return defaultMaxIterations
}

func (s *Sweeper) buyStep() float64 {
	if s.BuyStep > 0 {
		return s.BuyStep
	}
	return defaultBuyStep
}

func (s *Sweeper) maxTradeTime() time.Duration {
	if s.MaxTradeTime > 0 {
		return s.MaxTradeTime
	}
	return defaultMaxTradeTime
}

func (s *Sweeper) maxDustMultiplier() float64 {
	if s.MaxDustMultiplier > 0 {
		return s.MaxDustMultiplier
	}
	return defaultMaxDustMultiplier
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// takerOptions builds a pure-taker, synchronous TradeOptions: the sweeper
// never chases the book or chains across markets.
func (s *Sweeper) takerOptions(mode trade.Mode) trade.Options {
	opts, err := trade.New("taker", trade.Cancel, mode, s.maxTradeTime())
	if err != nil {
		// "taker" is a constant recognized string; this can't fail.
		panic(fmt.Sprintf("dust: build taker options: %v", err))
	}
	return opts.WithTradeTypePolicy(trade.ForceSingleTrade)
}

// Run sweeps cur out of the account, per spec.md §4.I's 5-step loop.
func (s *Sweeper) Run(ctx context.Context, cur money.CurrencyCode, mode trade.Mode) (Result, error) {
	cfg, err := s.Engine.Public.ExchangeConfig(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("dust: fetch exchange config: %w", err)
	}
	threshold, ok := cfg.DustThreshold(cur)
	if !ok {
		return Result{}, nil
	}

	markets, err := s.Engine.Public.TradableMarkets(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("dust: list tradable markets: %w", err)
	}
	eligible := eligibleMarkets(markets, cur)

	var result Result
	multiplier := 1.0
	for iteration := 0; iteration < s.maxIterations(); iteration++ {
		balance, err := s.balanceOf(ctx, cur)
		if err != nil {
			return result, err
		}
		result.Final = balance
		if c, err := balance.Compare(threshold); err == nil && c >= 0 {
			return result, nil
		}
		if balance.IsZero() || len(eligible) == 0 {
			return result, nil
		}

		if traded, ok, err := s.trySellAll(ctx, eligible, balance, mode); err != nil {
			return result, err
		} else if ok {
			result.Trades = append(result.Trades, traded)
			result.Final, err = s.balanceOf(ctx, cur)
			if err != nil {
				return result, err
			}
			return result, nil
		}

		primed, traded, err := s.tryPrimingBuy(ctx, eligible, threshold, multiplier, mode)
		if err != nil {
			return result, err
		}
		if primed {
			result.Trades = append(result.Trades, traded)
			continue // loop back to step 2 with the refreshed balance
		}
		multiplier += s.buyStep()
		if multiplier > s.maxDustMultiplier() {
			break
		}
	}
	final, err := s.balanceOf(ctx, cur)
	if err != nil {
		return result, err
	}
	result.Final = final
	return result, nil
}

func (s *Sweeper) balanceOf(ctx context.Context, cur money.CurrencyCode) (money.Amount, error) {
	portfolio, err := s.Engine.Private.QueryAccountBalance(ctx, account.BalanceOptions{})
	if err != nil {
		return money.Amount{}, fmt.Errorf("dust: query balance: %w", err)
	}
	balance, ok := portfolio.Get(cur)
	if !ok {
		balance = money.Zero(cur)
	}
	return balance, nil
}

// eligibleMarkets keeps only the markets where cur is the base currency
// (the dust currency being sold or primed), sorted lexicographically by the
// opposite (quote) currency, per spec.md §4.I step 2.
func eligibleMarkets(markets []market.Market, cur money.CurrencyCode) []market.Market {
	var out []market.Market
	for _, m := range markets {
		if m.Base().Equal(cur) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quote().String() < out[j].Quote().String() })
	return out
}

// trySellAll attempts a full taker sell of balance on each eligible market
// in turn, stopping at the first that fully closes (spec.md §4.I step 2).
func (s *Sweeper) trySellAll(ctx context.Context, markets []market.Market, balance money.Amount, mode trade.Mode) (trade.TradedAmounts, bool, error) {
	opts := s.takerOptions(mode)
	for _, mkt := range markets {
		tctx := trade.NewContext(mkt, trade.Sell, balance, opts, s.now().Unix())
		result, err := s.Engine.Run(ctx, tctx)
		if err != nil {
			continue // this market can't fill it; try the next one
		}
		if result.State == trade.Complete {
			return result.TradedAmounts, true, nil
		}
	}
	return trade.TradedAmounts{}, false, nil
}

// tryPrimingBuy attempts a taker buy of multiplier*threshold units of cur on
// each eligible market in turn, stopping at the first that fills anything
// (spec.md §4.I step 3).
func (s *Sweeper) tryPrimingBuy(ctx context.Context, markets []market.Market, threshold money.Amount, multiplier float64, mode trade.Mode) (bool, trade.TradedAmounts, error) {
	opts := s.takerOptions(mode)
	targetVolume, err := scaleAmount(threshold, multiplier)
	if err != nil {
		return false, trade.TradedAmounts{}, fmt.Errorf("dust: scale priming target: %w", err)
	}

	for _, mkt := range markets {
		ob, err := s.Engine.Public.OrderBook(ctx, mkt, 20)
		if err != nil || ob.IsEmpty() {
			continue
		}
		askPrice, ok := ob.LowestAsk()
		if !ok {
			continue
		}
		quoteNeeded, err := targetVolume.ToNeutral().Mul(askPrice.ToNeutral())
		if err != nil {
			continue
		}
		spend := money.New(quoteNeeded.Mantissa(), quoteNeeded.NbDecimals(), mkt.Quote())

		tctx := trade.NewContext(mkt, trade.Buy, spend, opts, s.now().Unix())
		result, err := s.Engine.Run(ctx, tctx)
		if err != nil {
			continue
		}
		if !result.TradedAmounts.Received.IsZero() {
			return true, result.TradedAmounts, nil
		}
	}
	return false, trade.TradedAmounts{}, nil
}

func scaleAmount(a money.Amount, factor float64) (money.Amount, error) {
	scaled, err := money.NewFromFloat(factor, 6, money.RoundDown, money.Neutral)
	if err != nil {
		return money.Amount{}, err
	}
	return a.ToNeutral().Mul(scaled)
}
