// Package trade holds the data model shared by every trading leg: the
// options a caller attaches to a trade request, the context a placed order
// carries forward, and the result types a trade eventually settles into
// (spec.md §3/§4.E).
package trade

import (
	"errors"
	"fmt"
	"time"

	"cct/internal/money"
)

// Side is which leg of a market a trade occupies.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// PriceStrategy controls how SingleTrade chases the book (spec.md §3).
type PriceStrategy int

const (
	// Maker posts passively at the best price on its own side and
	// requotes as the book moves.
	Maker PriceStrategy = iota
	// Nibble posts one tick inside the spread, trading off fill
	// probability against price improvement.
	Nibble
	// Taker crosses the spread immediately.
	Taker
)

const (
	makerStr  = "maker"
	nibbleStr = "nibble"
	takerStr  = "taker"
)

// ErrUnrecognizedStrategy is returned when a price strategy string is none
// of "maker", "nibble", "taker".
var ErrUnrecognizedStrategy = errors.New("trade: unrecognized price strategy")

func strategyFromString(s string) (PriceStrategy, error) {
	switch s {
	case makerStr:
		return Maker, nil
	case nibbleStr:
		return Nibble, nil
	case takerStr:
		return Taker, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnrecognizedStrategy)
	}
}

// TimeoutAction controls what SingleTrade does with a resting order once
// its time budget expires.
type TimeoutAction int

const (
	// Cancel drops the remaining unmatched quantity.
	Cancel TimeoutAction = iota
	// ForceMatch crosses the spread for whatever quantity remains
	// (the "emergency taker" fallback, spec.md §4.E).
	ForceMatch
)

func (a TimeoutAction) String() string {
	if a == ForceMatch {
		return "force-match"
	}
	return "cancel"
}

// Mode distinguishes a trade that actually hits the exchange from one
// executed against a PrivateAccount's simulated order book.
type Mode int

const (
	Real Mode = iota
	Simulation
)

// SyncPolicy controls whether Orchestrator.Trade blocks until the trade
// settles or returns as soon as it is accepted.
type SyncPolicy int

const (
	Synchronous SyncPolicy = iota
	Asynchronous
)

// TradeTypePolicy overrides whether a trade request is allowed to chain
// across multiple markets (spec.md §3 TradeOptions, §4.F MultiTrade
// planner).
type TradeTypePolicy int

const (
	// DefaultTradeType defers to the exchange's own
	// multiTradeAllowedByDefault setting.
	DefaultTradeType TradeTypePolicy = iota
	// ForceMultiTrade always allows chaining across multiple markets,
	// regardless of the exchange default.
	ForceMultiTrade
	// ForceSingleTrade never chains, regardless of the exchange default.
	ForceSingleTrade
)

func (p TradeTypePolicy) String() string {
	switch p {
	case ForceMultiTrade:
		return "force-multi"
	case ForceSingleTrade:
		return "force-single"
	default:
		return "default"
	}
}

// noRelativePrice is the relative-price sentinel meaning "not set"; 0 is
// deliberately excluded too since a relative price of zero is meaningless
// (it would place the order exactly at the current best, which Maker
// already does).
const noRelativePrice = -1 << 31

// RelativePrice is a signed tick offset from the best price on the trade's
// own side of the book (negative improves toward the other side, positive
// retreats). It only applies when the caller built the TradeOptions via
// NewFromRelativePrice.
type RelativePrice int32

// ErrInvalidRelativePrice is returned for a relative price of 0 or the
// "unset" sentinel.
var ErrInvalidRelativePrice = errors.New("trade: invalid relative price")

// Options bundles everything a SingleTrade or MultiTrade needs beyond the
// amount and direction: how to price itself, how long to wait, and what to
// do when the clock runs out (spec.md §3 TradeOptions).
type Options struct {
	maxTradeTime              time.Duration
	minTimeBetweenPriceUpdates time.Duration
	priceStrategy             PriceStrategy
	fixedPrice                money.Amount
	hasFixedPrice             bool
	relativePrice             RelativePrice
	hasRelativePrice          bool
	timeoutAction             TimeoutAction
	mode                      Mode
	syncPolicy                SyncPolicy
	tradeTypePolicy           TradeTypePolicy
}

const defaultMinTimeBetweenPriceUpdates = 2 * time.Second

// New builds Options priced by one of the named strategies ("maker",
// "nibble", "taker"), grounded on tradeoptions.cpp's string-keyed
// constructor.
func New(priceStrategyStr string, timeoutAction TimeoutAction, mode Mode, maxTradeTime time.Duration) (Options, error) {
	strat, err := strategyFromString(priceStrategyStr)
	if err != nil {
		return Options{}, err
	}
	return Options{
		maxTradeTime:               maxTradeTime,
		minTimeBetweenPriceUpdates: defaultMinTimeBetweenPriceUpdates,
		priceStrategy:              strat,
		timeoutAction:              timeoutAction,
		mode:                       mode,
		syncPolicy:                 Synchronous,
	}, nil
}

// NewFixedPrice builds Options that peg the order to an exact price rather
// than chasing the book.
func NewFixedPrice(fixedPrice money.Amount, timeoutAction TimeoutAction, mode Mode, maxTradeTime time.Duration) Options {
	return Options{
		maxTradeTime:  maxTradeTime,
		fixedPrice:    fixedPrice,
		hasFixedPrice: true,
		timeoutAction: timeoutAction,
		mode:          mode,
		syncPolicy:    Synchronous,
	}
}

// NewFromRelativePrice builds Options that price a fixed number of ticks
// away from the best price on the trade's own side.
func NewFromRelativePrice(relativePrice RelativePrice, timeoutAction TimeoutAction, mode Mode, maxTradeTime time.Duration) (Options, error) {
	if relativePrice == 0 || relativePrice == noRelativePrice {
		return Options{}, ErrInvalidRelativePrice
	}
	return Options{
		maxTradeTime:     maxTradeTime,
		relativePrice:    relativePrice,
		hasRelativePrice: true,
		timeoutAction:    timeoutAction,
		mode:             mode,
		syncPolicy:       Synchronous,
	}, nil
}

// WithAsync returns a copy of o configured for asynchronous trading.
func (o Options) WithAsync() Options {
	o.syncPolicy = Asynchronous
	return o
}

// WithMinTimeBetweenPriceUpdates returns a copy of o with its requote
// throttle set to d.
func (o Options) WithMinTimeBetweenPriceUpdates(d time.Duration) Options {
	o.minTimeBetweenPriceUpdates = d
	return o
}

// WithTradeTypePolicy returns a copy of o with its multi-leg override set.
func (o Options) WithTradeTypePolicy(p TradeTypePolicy) Options {
	o.tradeTypePolicy = p
	return o
}

// TradeTypePolicy returns the configured multi-leg override.
func (o Options) TradeTypePolicy() TradeTypePolicy { return o.tradeTypePolicy }

// IsMultiTradeAllowed reports whether a trade may chain across multiple
// markets: ForceMultiTrade/ForceSingleTrade always decide it outright,
// DefaultTradeType defers to the exchange's own multiTradeAllowedByDefault
// setting (spec.md §4.F).
func (o Options) IsMultiTradeAllowed(exchangeDefault bool) bool {
	switch o.tradeTypePolicy {
	case ForceMultiTrade:
		return true
	case ForceSingleTrade:
		return false
	default:
		return exchangeDefault
	}
}

func (o Options) MaxTradeTime() time.Duration              { return o.maxTradeTime }
func (o Options) MinTimeBetweenPriceUpdates() time.Duration { return o.minTimeBetweenPriceUpdates }
func (o Options) TimeoutAction() TimeoutAction              { return o.timeoutAction }
func (o Options) Mode() Mode                                { return o.mode }
func (o Options) SyncPolicy() SyncPolicy                    { return o.syncPolicy }
func (o Options) IsSimulation() bool                        { return o.mode == Simulation }

// FixedPrice returns the pegged price and true, if this Options was built
// via NewFixedPrice.
func (o Options) FixedPrice() (money.Amount, bool) { return o.fixedPrice, o.hasFixedPrice }

// RelativePrice returns the tick offset and true, if this Options was built
// via NewFromRelativePrice.
func (o Options) RelativePrice() (RelativePrice, bool) { return o.relativePrice, o.hasRelativePrice }

// PriceStrategy returns the named strategy this Options prices by. It is
// only meaningful when neither FixedPrice nor RelativePrice is set.
func (o Options) PriceStrategy() PriceStrategy { return o.priceStrategy }

// priceStrategyLabel renders the effective strategy name. When
// placeRealOrderInSimulationMode is true the trade is a real, deliberately
// unmatchable probe order, always placed at the passive maker price
// regardless of the configured strategy, so that it never accidentally
// fills (spec.md §4.E "simulation without native support").
func (o Options) priceStrategyLabel(placeRealOrderInSimulationMode bool) string {
	if placeRealOrderInSimulationMode {
		return makerStr
	}
	switch o.priceStrategy {
	case Maker:
		return makerStr
	case Nibble:
		return nibbleStr
	case Taker:
		return takerStr
	default:
		return makerStr
	}
}

func (o Options) timeoutActionLabel() string {
	return o.timeoutAction.String()
}

// String renders a human-readable summary, matching the register of
// tradeoptions.cpp's str(): mode, strategy, timeout, and requote throttle.
func (o Options) String() string {
	return o.describe(false)
}

// StringForSimulatedRealOrder is String but forces the maker-price-probe
// label, for logging the one case where a "simulation" trade actually
// reaches the exchange.
func (o Options) StringForSimulatedRealOrder() string {
	return o.describe(true)
}

func (o Options) describe(placeRealOrderInSimulationMode bool) string {
	var modeLabel string
	switch {
	case o.IsSimulation() && placeRealOrderInSimulationMode:
		modeLabel = "Real (unmatchable) "
	case o.IsSimulation():
		modeLabel = "Simulated "
	default:
		modeLabel = "Real "
	}
	return fmt.Sprintf("%s%s strategy, timeout of %ds, %s at timeout, min time between two price updates of %ds",
		modeLabel,
		o.priceStrategyLabel(placeRealOrderInSimulationMode),
		int64(o.maxTradeTime.Seconds()),
		o.timeoutActionLabel(),
		int64(o.minTimeBetweenPriceUpdates.Seconds()),
	)
}
