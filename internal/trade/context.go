package trade

import (
	"fmt"

	"cct/internal/market"
	"cct/internal/money"
)

// Context is everything SingleTrade threads through its state machine once
// it decides to place an order: the market, side, amount, options, and a
// user reference minted at placement time so exchange order IDs can be
// correlated back to this trade even across a process restart (spec.md §3
// TradeContext: "userRef from placement time").
type Context struct {
	Market  market.Market
	Side    Side
	Amount  money.Amount
	Options Options
	UserRef string
}

// NewContext builds a Context and mints its UserRef from the placement
// timestamp, expressed in epoch seconds with the side folded in so two
// trades placed in the same second on opposite sides of a market don't
// collide.
func NewContext(mkt market.Market, side Side, amount money.Amount, opts Options, placedAtEpochSeconds int64) Context {
	return Context{
		Market:  mkt,
		Side:    side,
		Amount:  amount,
		Options: opts,
		UserRef: formatUserRef(placedAtEpochSeconds, side),
	}
}

func formatUserRef(epochSeconds int64, side Side) string {
	return fmt.Sprintf("cct-%d-%s", epochSeconds, side)
}

// Info reports what the exchange thinks happened to an order so far,
// independent of whether the trade is still in flight (spec.md §3
// TradeInfo).
type Info struct {
	OrderID       string
	IsClosed      bool
	TradedAmounts TradedAmounts
}

// PlaceOrderInfo is the exchange's immediate response to placing an order:
// an order ID plus whatever partial fill happened synchronously at
// placement time (spec.md §3).
type PlaceOrderInfo struct {
	OrderID       string
	IsClosed      bool
	TradedAmounts TradedAmounts
}

// TradedAmounts is the gross amount sent and the net amount received for a
// (possibly partial) fill, each carrying its own currency (spec.md §3
// "Gross/Net amount").
type TradedAmounts struct {
	Sent     money.Amount
	Received money.Amount
}

// Add accumulates another fill's amounts into this one. Both sides must be
// in the same currency pair across calls; callers that only ever fill a
// single market's two currencies satisfy this automatically.
func (t TradedAmounts) Add(o TradedAmounts) (TradedAmounts, error) {
	sent, err := t.Sent.Add(o.Sent)
	if err != nil {
		return TradedAmounts{}, fmt.Errorf("accumulate sent amount: %w", err)
	}
	received, err := t.Received.Add(o.Received)
	if err != nil {
		return TradedAmounts{}, fmt.Errorf("accumulate received amount: %w", err)
	}
	return TradedAmounts{Sent: sent, Received: received}, nil
}

// State is the three-way outcome a trade settles into (spec.md §3
// TradeResult.state).
type State int

const (
	Untouched State = iota
	Partial
	Complete
)

func (s State) String() string {
	switch s {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	default:
		return "untouched"
	}
}

// Result is what a completed SingleTrade or MultiTrade reports back to its
// caller.
type Result struct {
	Context       Context
	TradedAmounts TradedAmounts
	State         State
}

// DeriveState computes the settlement state from the requested amount and
// what was actually traded: zero traded is Untouched, a sent amount at least
// equal to the requested one is Complete, anything else is Partial.
func DeriveState(requested, sentAmount money.Amount) State {
	if sentAmount.IsZero() {
		return Untouched
	}
	if c, err := sentAmount.Compare(requested); err == nil && c >= 0 {
		return Complete
	}
	return Partial
}

// NewResult builds a Result, deriving its State from the context's
// requested amount and the accumulated sent amount.
func NewResult(ctx Context, traded TradedAmounts) Result {
	return Result{
		Context:       ctx,
		TradedAmounts: traded,
		State:         DeriveState(ctx.Amount, traded.Sent),
	}
}
