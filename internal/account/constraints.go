package account

import (
	"time"

	"cct/internal/money"
)

// TimeWindow bounds a query by [From, To); either end may be zero to mean
// unbounded.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

func (w TimeWindow) isSet() bool { return !w.From.IsZero() || !w.To.IsZero() }

// Contains reports whether t falls within the window (unbounded ends
// always match).
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// OrdersConstraints filters a queryOpenedOrders/queryClosedOrders/
// cancelOpenedOrders call (spec.md §3).
type OrdersConstraints struct {
	Cur1, Cur2 money.CurrencyCode
	OrderIDs   map[string]struct{}
	Placed     TimeWindow
}

func (c OrdersConstraints) hasCur1() bool { return !c.Cur1.IsNeutral() }
func (c OrdersConstraints) hasCur2() bool { return !c.Cur2.IsNeutral() }
func (c OrdersConstraints) hasIDs() bool  { return len(c.OrderIDs) > 0 }

// IsMarketOnlyDependent reports whether the constraint set can be answered
// purely from a market filter, without inspecting individual order IDs or
// times — letting the adapter take a narrower fast-path API call.
func (c OrdersConstraints) IsMarketOnlyDependent() bool {
	return (c.hasCur1() || c.hasCur2()) && !c.hasIDs() && !c.Placed.isSet()
}

// NoConstraints reports whether the constraint set matches everything.
func (c OrdersConstraints) NoConstraints() bool {
	return !c.hasCur1() && !c.hasCur2() && !c.hasIDs() && !c.Placed.isSet()
}

// Matches reports whether an order with the given market currencies, ID,
// and placement time satisfies the constraint set.
func (c OrdersConstraints) Matches(cur1, cur2 money.CurrencyCode, orderID string, placedAt time.Time) bool {
	if c.hasCur1() && !c.Cur1.Equal(cur1) {
		return false
	}
	if c.hasCur2() && !c.Cur2.Equal(cur2) {
		return false
	}
	if c.hasIDs() {
		if _, ok := c.OrderIDs[orderID]; !ok {
			return false
		}
	}
	if c.Placed.isSet() && !c.Placed.Contains(placedAt) {
		return false
	}
	return true
}

// DepositsConstraints filters queryRecentDeposits.
type DepositsConstraints struct {
	Cur        money.CurrencyCode
	DepositIDs map[string]struct{}
	Received   TimeWindow
}

func (c DepositsConstraints) hasCur() bool { return !c.Cur.IsNeutral() }
func (c DepositsConstraints) hasIDs() bool { return len(c.DepositIDs) > 0 }

// NoConstraints reports whether the constraint set matches everything.
func (c DepositsConstraints) NoConstraints() bool {
	return !c.hasCur() && !c.hasIDs() && !c.Received.isSet()
}

// Matches reports whether a deposit satisfies the constraint set.
func (c DepositsConstraints) Matches(cur money.CurrencyCode, depositID string, receivedAt time.Time) bool {
	if c.hasCur() && !c.Cur.Equal(cur) {
		return false
	}
	if c.hasIDs() {
		if _, ok := c.DepositIDs[depositID]; !ok {
			return false
		}
	}
	if c.Received.isSet() && !c.Received.Contains(receivedAt) {
		return false
	}
	return true
}

// WithdrawsConstraints filters queryRecentWithdraws.
type WithdrawsConstraints struct {
	Cur         money.CurrencyCode
	WithdrawIDs map[string]struct{}
	Initiated   TimeWindow
}

func (c WithdrawsConstraints) hasCur() bool { return !c.Cur.IsNeutral() }
func (c WithdrawsConstraints) hasIDs() bool { return len(c.WithdrawIDs) > 0 }

// NoConstraints reports whether the constraint set matches everything.
func (c WithdrawsConstraints) NoConstraints() bool {
	return !c.hasCur() && !c.hasIDs() && !c.Initiated.isSet()
}

// Matches reports whether a withdraw satisfies the constraint set.
func (c WithdrawsConstraints) Matches(cur money.CurrencyCode, withdrawID string, initiatedAt time.Time) bool {
	if c.hasCur() && !c.Cur.Equal(cur) {
		return false
	}
	if c.hasIDs() {
		if _, ok := c.WithdrawIDs[withdrawID]; !ok {
			return false
		}
	}
	if c.Initiated.isSet() && !c.Initiated.Contains(initiatedAt) {
		return false
	}
	return true
}
