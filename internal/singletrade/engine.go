// Package singletrade implements the SingleTrade state machine (spec.md
// §4.E): drive one order, on one market, from placement through any number
// of requotes, to a final settled TradedAmounts. It also implements
// MultiTrade (spec.md §4.F), which chains SingleTrade legs along a
// conversion path.
//
// The state machine shape — a ticking reconcile loop that recomputes a
// target, diffs it against what is currently resting, and cancels/reposts
// the difference — is grounded on the teacher's quoteUpdate/reconcileOrders
// loop in strategy/maker.go, generalized from continuous two-sided quoting
// to one order chasing a deadline.
package singletrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cct/internal/account"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

// ErrNoLiquidity is returned when the market has no usable book to price
// against.
var ErrNoLiquidity = errors.New("singletrade: no liquidity on this market")

// defaultEmergencyBufferFraction is the fraction of maxTradeTime reserved
// as the "emergency buffer" before the deadline, past which the engine
// stops requoting and either force-matches or gives up (spec.md §3).
const defaultEmergencyBufferFraction = 0.05

const defaultPollInterval = 500 * time.Millisecond
const defaultBookDepth = 20

// Engine drives SingleTrade executions against one account.
type Engine struct {
	Public  account.PublicMarketView
	Private account.PrivateAccount
	Logger  *slog.Logger

	// EmergencyBufferFraction overrides defaultEmergencyBufferFraction when
	// nonzero.
	EmergencyBufferFraction float64
	// PollInterval overrides defaultPollInterval when nonzero.
	PollInterval time.Duration
	// BookDepth overrides defaultBookDepth when nonzero.
	BookDepth int
	// Now overrides time.Now, for deterministic tests.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) emergencyBuffer(maxTradeTime time.Duration) time.Duration {
	frac := e.EmergencyBufferFraction
	if frac <= 0 {
		frac = defaultEmergencyBufferFraction
	}
	return time.Duration(float64(maxTradeTime) * frac)
}

func (e *Engine) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return defaultPollInterval
}

func (e *Engine) bookDepth() int {
	if e.BookDepth > 0 {
		return e.BookDepth
	}
	return defaultBookDepth
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Run drives a single trade leg to completion and returns its result.
func (e *Engine) Run(ctx context.Context, tctx trade.Context) (trade.Result, error) {
	log := e.logger().With("market", tctx.Market, "side", tctx.Side, "amount", tctx.Amount, "user_ref", tctx.UserRef)

	ob, err := e.Public.OrderBook(ctx, tctx.Market, e.bookDepth())
	if err != nil {
		return trade.Result{}, fmt.Errorf("singletrade: fetch order book: %w", err)
	}
	if ob.IsEmpty() {
		return trade.Result{}, ErrNoLiquidity
	}

	price, err := e.initialPrice(ob, tctx)
	if err != nil {
		return trade.Result{}, err
	}

	volume, err := volumeFromAmount(tctx.Market, tctx.Amount, price)
	if err != nil {
		return trade.Result{}, fmt.Errorf("singletrade: compute initial volume: %w", err)
	}

	if tctx.Options.IsSimulation() {
		simulated, canSimulate, err := e.trySimulate(ctx, tctx, volume, price)
		if err != nil {
			return trade.Result{}, err
		}
		if canSimulate {
			log.Info("trade settled via simulation", "traded", simulated)
			return trade.NewResult(tctx, simulated), nil
		}
	}

	placed, err := e.Private.PlaceOrder(ctx, volume, price, tctx)
	if err != nil {
		return trade.Result{}, fmt.Errorf("singletrade: place order: %w", err)
	}

	total := placed.TradedAmounts
	if placed.IsClosed {
		log.Info("order closed immediately", "traded", total)
		return trade.NewResult(tctx, total), nil
	}
	if tctx.Options.SyncPolicy() == trade.Asynchronous {
		log.Info("asynchronous trade returns immediately", "order_id", placed.OrderID)
		return trade.NewResult(tctx, total), nil
	}

	final, err := e.runLoop(ctx, tctx, ob, placed.OrderID, price, total, log)
	if err != nil {
		return trade.Result{}, err
	}
	return trade.NewResult(tctx, final), nil
}

func (e *Engine) initialPrice(ob *market.OrderBook, tctx trade.Context) (money.Amount, error) {
	if fixed, ok := tctx.Options.FixedPrice(); ok {
		return fixed, nil
	}
	if rel, ok := tctx.Options.RelativePrice(); ok {
		return relativePrice(ob, tctx.Side, rel)
	}
	if tctx.Options.PriceStrategy() == trade.Taker {
		price, ok := avgOrderPrice(ob, tctx.Side, tctx.Amount)
		if !ok {
			return money.Amount{}, ErrNoLiquidity
		}
		return price, nil
	}
	price, ok := limitOrderPrice(ob, tctx.Side, tctx.Options.PriceStrategy())
	if !ok {
		return money.Amount{}, ErrNoLiquidity
	}
	return price, nil
}

func relativePrice(ob *market.OrderBook, side trade.Side, rel trade.RelativePrice) (money.Amount, error) {
	var own money.Amount
	var ok bool
	if side == trade.Buy {
		own, ok = ob.HighestBid()
	} else {
		own, ok = ob.LowestAsk()
	}
	if !ok {
		return money.Amount{}, ErrNoLiquidity
	}
	tick := ob.PriceTick()
	offset, err := tick.Mul(money.New(int64(rel), 0, money.Neutral))
	if err != nil {
		return money.Amount{}, err
	}
	return own.Add(offset)
}

// trySimulate synthesizes a fill instead of calling PlaceOrder when the
// trade is in simulation mode and the account neither natively supports
// simulated orders nor opts into placing a real, unmatchable probe order
// (spec.md §4.E "Simulation").
func (e *Engine) trySimulate(ctx context.Context, tctx trade.Context, volume, price money.Amount) (trade.TradedAmounts, bool, error) {
	if e.Private.IsSimulatedOrderSupported() {
		return trade.TradedAmounts{}, false, nil
	}
	cfg, err := e.Public.ExchangeConfig(ctx)
	if err != nil {
		return trade.TradedAmounts{}, false, fmt.Errorf("singletrade: fetch exchange config: %w", err)
	}
	if cfg.PlaceSimulateRealOrder {
		return trade.TradedAmounts{}, false, nil
	}

	feeType := account.MakerFee
	if tctx.Options.PriceStrategy() == trade.Taker {
		feeType = account.TakerFee
	}
	received, err := cfg.ApplyFee(tctx.Amount, feeType, money.New(1, 3, money.Neutral), money.New(2, 3, money.Neutral))
	if err != nil {
		return trade.TradedAmounts{}, false, fmt.Errorf("singletrade: simulate fill: %w", err)
	}
	toCur := tctx.Market.Quote()
	if tctx.Amount.CurrencyCode().Equal(tctx.Market.Quote()) {
		toCur = tctx.Market.Base()
	}
	received = money.New(received.Mantissa(), received.NbDecimals(), toCur)
	return trade.TradedAmounts{Sent: tctx.Amount, Received: received}, true, nil
}

// runLoop implements steps 1-7 of spec.md §4.E's S1 loop.
func (e *Engine) runLoop(ctx context.Context, tctx trade.Context, ob *market.OrderBook, orderID string, lastPrice money.Amount, total trade.TradedAmounts, log *slog.Logger) (trade.TradedAmounts, error) {
	start := e.now()
	deadline := start.Add(tctx.Options.MaxTradeTime())
	emergencyBuffer := e.emergencyBuffer(tctx.Options.MaxTradeTime())
	lastPriceUpdate := start
	active := true

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(e.pollInterval()):
		}

		now := e.now()

		if active {
			info, err := e.Private.QueryOrderInfo(ctx, orderID, tctx)
			if err != nil {
				return total, fmt.Errorf("singletrade: query order info: %w", err)
			}
			if info.IsClosed {
				total, err = total.Add(info.TradedAmounts)
				if err != nil {
					return total, err
				}
				log.Info("order closed", "order_id", orderID, "total", total)
				return total, nil
			}
		}

		reachedEmergencyTime := now.Add(emergencyBuffer).After(deadline)

		if reachedEmergencyTime && !now.Before(deadline) {
			if active {
				cancelled, err := e.Private.CancelOrder(ctx, orderID, tctx)
				if err != nil {
					return total, fmt.Errorf("singletrade: cancel order: %w", err)
				}
				total, err = total.Add(cancelled)
				if err != nil {
					return total, err
				}
			}
			log.Info("deadline exceeded, stopping", "total", total)
			return total, nil
		}

		needsRequote := false
		if !reachedEmergencyTime && active && now.Sub(lastPriceUpdate) > tctx.Options.MinTimeBetweenPriceUpdates() {
			freshBook, err := e.Public.OrderBook(ctx, tctx.Market, e.bookDepth())
			if err == nil && !freshBook.IsEmpty() {
				ob = freshBook
				newPrice, ok := limitOrderPrice(ob, tctx.Side, tctx.Options.PriceStrategy())
				if ok && updatePriceNeeded(tctx.Side, lastPrice, newPrice) {
					needsRequote = true
					lastPrice = newPrice
				}
			}
		}

		if (reachedEmergencyTime || needsRequote) && active {
			cancelled, err := e.Private.CancelOrder(ctx, orderID, tctx)
			if err != nil {
				return total, fmt.Errorf("singletrade: cancel order: %w", err)
			}
			total, err = total.Add(cancelled)
			if err != nil {
				return total, err
			}
			active = false
		}

		if !active {
			remaining, err := tctx.Amount.Sub(total.Sent)
			if err != nil {
				return total, err
			}
			if remaining.IsZero() {
				return total, nil
			}

			switch {
			case reachedEmergencyTime && tctx.Options.TimeoutAction() == trade.ForceMatch:
				log.Info("emergency taker fallback", "remaining", remaining)
				takerPrice, ok := avgOrderPrice(ob, tctx.Side, remaining)
				if !ok {
					return total, nil
				}
				volume, err := volumeFromAmount(tctx.Market, remaining, takerPrice)
				if err != nil {
					return total, err
				}
				placed, err := e.Private.PlaceOrder(ctx, volume, takerPrice, tctx)
				if err != nil {
					return total, fmt.Errorf("singletrade: place emergency taker order: %w", err)
				}
				total, err = total.Add(placed.TradedAmounts)
				if err != nil {
					return total, err
				}
				return total, nil

			case needsRequote:
				volume, err := volumeFromAmount(tctx.Market, remaining, lastPrice)
				if err != nil {
					return total, err
				}
				placed, err := e.Private.PlaceOrder(ctx, volume, lastPrice, tctx)
				if err != nil {
					return total, fmt.Errorf("singletrade: repost order: %w", err)
				}
				orderID = placed.OrderID
				lastPriceUpdate = now
				active = true
				if placed.IsClosed {
					total, err = total.Add(placed.TradedAmounts)
					if err != nil {
						return total, err
					}
					return total, nil
				}

			default:
				// reachedEmergencyTime with TimeoutAction == Cancel and the
				// deadline itself not yet reached: stay flat until the
				// deadline check at the top of the next cycle ends the trade.
			}
		}
	}
}
