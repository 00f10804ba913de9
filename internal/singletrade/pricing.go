package singletrade

import (
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

// limitOrderPrice computes the price a maker/nibble order should rest at,
// per spec.md §4.E: maker posts at the best price on its own side, nibble
// posts one tick toward the opposite side to win priority without crossing.
func limitOrderPrice(ob *market.OrderBook, side trade.Side, strategy trade.PriceStrategy) (money.Amount, bool) {
	var own money.Amount
	var ok bool
	if side == trade.Buy {
		own, ok = ob.HighestBid()
	} else {
		own, ok = ob.LowestAsk()
	}
	if !ok {
		return money.Amount{}, false
	}
	if strategy != trade.Nibble {
		return own, true
	}
	tick := ob.PriceTick()
	if side == trade.Buy {
		price, err := own.Add(tick)
		if err != nil {
			return own, true
		}
		return price, true
	}
	price, err := own.Sub(tick)
	if err != nil {
		return own, true
	}
	return price, true
}

// avgOrderPrice computes the volume-weighted price a taker order of this
// side and size would execute at.
func avgOrderPrice(ob *market.OrderBook, side trade.Side, amountInFromCurrency money.Amount) (money.Amount, bool) {
	if side == trade.Buy {
		return ob.ComputeAvgPriceForTakerAmount(amountInFromCurrency)
	}
	return ob.ComputeAvgPriceAtWhichAmountWouldBeSoldImmediately(amountInFromCurrency)
}

// volumeFromAmount converts a "from" amount into base-currency order
// volume: if fromCurrency is the market's quote, divide by price; if it is
// already base, the from amount is the volume (spec.md §4.E).
func volumeFromAmount(mkt market.Market, fromAmount, price money.Amount) (money.Amount, error) {
	if fromAmount.CurrencyCode().Equal(mkt.Base()) {
		return fromAmount, nil
	}
	neutralVol, err := fromAmount.ToNeutral().Div(price.ToNeutral())
	if err != nil {
		return money.Amount{}, err
	}
	return money.New(neutralVol.Mantissa(), neutralVol.NbDecimals(), mkt.Base()), nil
}

// updatePriceNeeded reports whether the book has moved against our resting
// order's side since lastPrice (spec.md §4.E step 3): for a sell, the price
// moving down hurts us; for a buy, the price moving up hurts us.
func updatePriceNeeded(side trade.Side, lastPrice, newPrice money.Amount) bool {
	c, err := newPrice.Compare(lastPrice)
	if err != nil {
		return false
	}
	if side == trade.Sell {
		return c < 0
	}
	return c > 0
}
