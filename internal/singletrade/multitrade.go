package singletrade

import (
	"context"
	"errors"
	"fmt"

	"cct/internal/account"
	"cct/internal/money"
	"cct/internal/trade"
)

// ErrMultiTradeNotAllowed is returned when neither the exchange's default
// nor the trade's TradeTypePolicy permits chaining across multiple markets
// (spec.md §4.F).
var ErrMultiTradeNotAllowed = errors.New("singletrade: multi-leg trade not allowed")

// ErrNoConversionPath is returned when the public view can't connect from
// to toCur at all.
var ErrNoConversionPath = errors.New("singletrade: no conversion path")

// RunMultiTrade chains a SingleTrade leg across every market in the
// conversion path from fromAmount's currency to toCur, feeding each leg's
// output into the next leg's input (spec.md §4.F). It aborts, returning
// whatever was accumulated so far, the moment a leg yields a zero
// to-amount.
func (e *Engine) RunMultiTrade(ctx context.Context, fromAmount money.Amount, toCur money.CurrencyCode, opts trade.Options) (trade.TradedAmounts, error) {
	cfg, err := e.Public.ExchangeConfig(ctx)
	if err != nil {
		return trade.TradedAmounts{}, fmt.Errorf("singletrade: fetch exchange config: %w", err)
	}
	if !opts.IsMultiTradeAllowed(cfg.MultiTradeAllowedByDefault) {
		return trade.TradedAmounts{}, ErrMultiTradeNotAllowed
	}

	path, err := e.Public.ConversionPath(ctx, fromAmount.CurrencyCode(), toCur, account.Strict)
	if err != nil {
		return trade.TradedAmounts{}, fmt.Errorf("%w: %v", ErrNoConversionPath, err)
	}
	if len(path) == 0 {
		return trade.TradedAmounts{Sent: money.Zero(fromAmount.CurrencyCode()), Received: money.Zero(toCur)}, nil
	}

	current := fromAmount
	var accumulated trade.TradedAmounts
	for i, mkt := range path {
		side := trade.Buy
		if current.CurrencyCode().Equal(mkt.Base()) {
			side = trade.Sell
		}

		legCtx := trade.NewContext(mkt, side, current, opts, e.now().Unix())
		result, err := e.Run(ctx, legCtx)
		if err != nil {
			return accumulated, fmt.Errorf("singletrade: leg %d/%d (%s): %w", i+1, len(path), mkt, err)
		}

		if i == 0 {
			accumulated.Sent = result.TradedAmounts.Sent
		}
		accumulated.Received = result.TradedAmounts.Received

		if result.TradedAmounts.Received.IsZero() {
			return accumulated, nil
		}
		current = result.TradedAmounts.Received
	}
	return accumulated, nil
}
