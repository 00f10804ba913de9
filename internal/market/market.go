// Package market implements Market and MarketOrderBook: the currency-pair
// identity and the price-ladder snapshot every trade leg prices itself
// against (spec.md §3/§4.B).
package market

import (
	"errors"
	"fmt"

	"cct/internal/money"
)

// ErrSameCurrency is returned when constructing a Market whose base and
// quote are identical.
var ErrSameCurrency = errors.New("market: base and quote currency must differ")

// Market is an ordered (base, quote) currency pair. A synthetic market is a
// fiat-conversion bridge rather than a real exchange market (spec.md §3).
type Market struct {
	base, quote money.CurrencyCode
	synthetic   bool
}

// New constructs a regular exchange Market.
func New(base, quote money.CurrencyCode) (Market, error) {
	if base.Equal(quote) {
		return Market{}, ErrSameCurrency
	}
	return Market{base: base, quote: quote}, nil
}

// NewSynthetic constructs a Market tagged as a synthetic fiat-conversion
// bridge (no direct exchange order book backs it).
func NewSynthetic(base, quote money.CurrencyCode) (Market, error) {
	m, err := New(base, quote)
	if err != nil {
		return Market{}, err
	}
	m.synthetic = true
	return m, nil
}

// Base returns the market's base currency.
func (m Market) Base() money.CurrencyCode { return m.base }

// Quote returns the market's quote currency.
func (m Market) Quote() money.CurrencyCode { return m.quote }

// IsSynthetic reports whether this market is a synthetic fiat bridge.
func (m Market) IsSynthetic() bool { return m.synthetic }

// CanTrade reports whether c is one of the market's two currencies.
func (m Market) CanTrade(c money.CurrencyCode) bool {
	return c.Equal(m.base) || c.Equal(m.quote)
}

// Reverse swaps base and quote.
func (m Market) Reverse() Market {
	return Market{base: m.quote, quote: m.base, synthetic: m.synthetic}
}

// String renders "BASE-QUOTE".
func (m Market) String() string {
	return fmt.Sprintf("%s-%s", m.base, m.quote)
}
