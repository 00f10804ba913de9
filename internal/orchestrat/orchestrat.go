// Package orchestrat fans trading, withdrawal, and dust-sweeping work out
// across a set of accounts (spec.md §4.G). It owns the only goroutines that
// submit work; every PrivateAccount call it makes is either already
// thread-safe per instance or serialized per (account, operation) by the
// orchestrator itself.
//
// The fan-out/await-all shape is grounded on the teacher's
// engine.go goroutine-per-unit-of-work dispatch and Stop()'s
// drain-in-flight-work discipline, generalized from "one goroutine per
// active market" to "one task per (account, operation)". It uses
// github.com/sourcegraph/conc/pool (an indirect teacher dependency,
// previously only pulled in transitively by other packages) in place of the
// teacher's hand-rolled sync.WaitGroup+channel pattern, since conc.Pool
// already implements exactly the bounded-task-list-await-all pattern
// spec.md §9's design notes call for.
package orchestrat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"cct/internal/account"
	"cct/internal/dust"
	"cct/internal/money"
	"cct/internal/singletrade"
	"cct/internal/trade"
	"cct/internal/withdraw"
)

const defaultMaxParallelism = 8

// TradeResultPerExchange pairs one account's trade outcome with the account
// that produced it (spec.md §6 "TradeResultPerExchange").
type TradeResultPerExchange struct {
	Exchange account.ExchangeName
	Owner    account.AccountOwner
	Result   trade.Result
	Err      error
}

// DustResultPerExchange pairs one account's dust-sweep outcome with the
// account that produced it.
type DustResultPerExchange struct {
	Exchange account.ExchangeName
	Owner    account.AccountOwner
	Result   dust.Result
	Err      error
}

// Orchestrator fans operations out across a caller-supplied account set,
// bounding concurrency and serializing per-account calls (spec.md §5).
type Orchestrator struct {
	// MaxParallelism caps the worker pool; overrides defaultMaxParallelism
	// when nonzero. The effective pool size is min(MaxParallelism,
	// len(accounts)) for any given call.
	MaxParallelism int

	// WithdrawRefreshInterval overrides internal/withdraw's polling cadence
	// for every Withdraw call (internal/config.WithdrawConfig).
	WithdrawRefreshInterval time.Duration

	// DustMaxIterations, DustBuyStep, and DustMaxDustMultiplier override
	// internal/dust's priming-buy escalation for every DustSweeper call
	// (internal/config.DustConfig).
	DustMaxIterations     int
	DustBuyStep           float64
	DustMaxDustMultiplier float64

	locks sync.Map // lockKey -> *sync.Mutex
}

type lockKey struct {
	acct account.PrivateAccount
	op   string
}

// withAccountLock serializes calls sharing the same (account, op) pair,
// satisfying "at most one in-flight call per (PrivateAccount, operation)"
// (spec.md §5) without requiring every adapter to be internally
// serialized.
func (o *Orchestrator) withAccountLock(acct account.PrivateAccount, op string, fn func() error) error {
	v, _ := o.locks.LoadOrStore(lockKey{acct: acct, op: op}, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func (o *Orchestrator) poolSize(n int) int {
	size := o.MaxParallelism
	if size <= 0 {
		size = defaultMaxParallelism
	}
	if n < size {
		size = n
	}
	if size < 1 {
		size = 1
	}
	return size
}

func engineFor(acct account.PrivateAccount) *singletrade.Engine {
	return &singletrade.Engine{Public: acct, Private: acct}
}

// Trade implements spec.md §4.G's trade operation: a direct delegate for a
// single, non-percentage request, otherwise a greedy partition across
// accountSet, filling accounts in descending balance order, executed in
// parallel.
func (o *Orchestrator) Trade(ctx context.Context, fromCur money.CurrencyCode, amount money.Amount, isPercentage bool, toCur money.CurrencyCode, accounts []account.PrivateAccount, opts trade.Options) ([]TradeResultPerExchange, error) {
	if len(accounts) == 0 {
		return nil, nil
	}

	if len(accounts) == 1 && !isPercentage {
		acct := accounts[0]
		result, err := o.runLeg(ctx, acct, amount, toCur, opts)
		return []TradeResultPerExchange{result}, err
	}

	type candidate struct {
		acct     account.PrivateAccount
		availFrom money.Amount
	}

	candidates := make([]candidate, 0, len(accounts))
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(o.poolSize(len(accounts)))
	for _, acct := range accounts {
		acct := acct
		p.Go(func() {
			var balance money.Amount
			err := o.withAccountLock(acct, "queryBalance", func() error {
				portfolio, err := acct.QueryAccountBalance(ctx, account.BalanceOptions{})
				if err != nil {
					return err
				}
				var ok bool
				balance, ok = portfolio.Get(fromCur)
				if !ok {
					balance = money.Zero(fromCur)
				}
				return nil
			})
			if err != nil || balance.IsZero() {
				return
			}
			path, err := acct.ConversionPath(ctx, fromCur, toCur, account.Strict)
			if err != nil || len(path) == 0 {
				return
			}
			mu.Lock()
			candidates = append(candidates, candidate{acct: acct, availFrom: balance})
			mu.Unlock()
		})
	}
	p.Wait()

	sort.SliceStable(candidates, func(i, j int) bool {
		c, err := candidates[i].availFrom.Compare(candidates[j].availFrom)
		return err == nil && c > 0
	})

	totalAvailable := money.Zero(fromCur)
	for _, c := range candidates {
		totalAvailable, _ = totalAvailable.Add(c.availFrom)
	}

	target := amount
	if isPercentage {
		ratio, err := amount.ToNeutral().Div(money.New(100, 0, money.Neutral))
		if err != nil {
			return nil, fmt.Errorf("orchestrat: compute percentage ratio: %w", err)
		}
		target, err = totalAvailable.Mul(ratio)
		if err != nil {
			return nil, fmt.Errorf("orchestrat: apply percentage to total available: %w", err)
		}
	}

	type assignment struct {
		acct account.PrivateAccount
		amt  money.Amount
	}
	var assignments []assignment
	remaining := target
	for _, c := range candidates {
		if remaining.IsZero() || remaining.Sign() <= 0 {
			break
		}
		assign := c.availFrom
		if cmp, err := assign.Compare(remaining); err == nil && cmp > 0 {
			assign = remaining
		}
		assignments = append(assignments, assignment{acct: c.acct, amt: assign})
		remaining, _ = remaining.Sub(assign)
	}

	rp := pool.NewWithResults[TradeResultPerExchange]().WithMaxGoroutines(o.poolSize(max1(len(assignments))))
	for _, a := range assignments {
		a := a
		rp.Go(func() TradeResultPerExchange {
			res, _ := o.runLeg(ctx, a.acct, a.amt, toCur, opts)
			return res
		})
	}
	return rp.Wait(), nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// defaultMaxSmartSteps bounds smart-buy/smart-sell's path-length escalation
// (spec.md §4.G "nbSteps = 1, 2, …"): an implementation-bounded cap rather
// than an unbounded search, mirroring internal/dust's iteration cap.
const defaultMaxSmartSteps = 4

// estimatePathConversion walks path hop by hop, converting from through
// each market's order book via EstimateConvertRate, to project the amount
// a candidate route would yield without placing any order. This stands in
// for spec.md §4.G's "exchangeConfig.convert(startAmt, toCur, path, fiats,
// orderBooks, priceOptions)": the account interface has no single call
// doing that, so the path is replayed one market at a time instead.
func (o *Orchestrator) estimatePathConversion(ctx context.Context, acct account.PrivateAccount, from money.Amount, path account.Path) (money.Amount, error) {
	current := from
	for _, mkt := range path {
		next := mkt.Quote()
		if current.CurrencyCode().Equal(mkt.Quote()) {
			next = mkt.Base()
		}
		converted, err := acct.EstimateConvertRate(ctx, current, next)
		if err != nil {
			return money.Amount{}, err
		}
		current = converted
	}
	return current, nil
}

type smartBuySource struct {
	acct         account.PrivateAccount
	cur          money.CurrencyCode
	bal          money.Amount
	multiAllowed bool
}

// smartBuySources gathers, for every account in accounts, its balance in
// each of its exchangeConfig.preferredPaymentCurrencies (spec.md §4.G
// "Keep accounts that hold any preferredPaymentCurrencies"). Accounts with
// no preferred currencies configured, or with a zero balance in all of
// them, contribute nothing.
func (o *Orchestrator) smartBuySources(ctx context.Context, accounts []account.PrivateAccount, opts trade.Options) []smartBuySource {
	var sources []smartBuySource
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(o.poolSize(len(accounts)))
	for _, acct := range accounts {
		acct := acct
		p.Go(func() {
			cfg, err := acct.ExchangeConfig(ctx)
			if err != nil || len(cfg.PreferredPaymentCurrencies) == 0 {
				return
			}
			var balance *account.BalancePortfolio
			err = o.withAccountLock(acct, "queryBalance", func() error {
				b, err := acct.QueryAccountBalance(ctx, account.BalanceOptions{})
				balance = b
				return err
			})
			if err != nil || balance == nil {
				return
			}
			multiAllowed := opts.IsMultiTradeAllowed(cfg.MultiTradeAllowedByDefault)
			for _, cur := range cfg.PreferredPaymentCurrencies {
				bal, ok := balance.Get(cur)
				if !ok || bal.IsZero() {
					continue
				}
				mu.Lock()
				sources = append(sources, smartBuySource{acct: acct, cur: cur, bal: bal, multiAllowed: multiAllowed})
				mu.Unlock()
			}
		})
	}
	p.Wait()
	return sources
}

// SmartBuy implements spec.md §4.G/§6's smartBuy: it spends balances held
// in preferredPaymentCurrencies across accountSet to acquire endAmount of
// endAmount's currency. nbSteps escalates from 1 to defaultMaxSmartSteps,
// stopping early once the target is filled; pairs whose path needs more
// markets than that are never tried. At each step a strict conversion path of exactly nbSteps markets is
// required, candidates are ranked by descending projected endAmt, and
// filled greedily against the still-remaining target until it reaches
// zero. Multi-market paths (nbSteps>1) are only considered for accounts
// whose exchange/options combination permits multi-trades.
func (o *Orchestrator) SmartBuy(ctx context.Context, endAmount money.Amount, accounts []account.PrivateAccount, opts trade.Options) ([]TradeResultPerExchange, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	endCur := endAmount.CurrencyCode()
	sources := o.smartBuySources(ctx, accounts, opts)

	type buyCandidate struct {
		idx      int
		acct     account.PrivateAccount
		startAmt money.Amount
		endAmt   money.Amount
	}
	type assignment struct {
		acct account.PrivateAccount
		amt  money.Amount
	}

	used := make([]bool, len(sources))
	var assignments []assignment
	remaining := endAmount

	for nbSteps := 1; nbSteps <= defaultMaxSmartSteps; nbSteps++ {
		if remaining.IsZero() || remaining.Sign() <= 0 {
			break
		}
		var candidates []buyCandidate
		for i, s := range sources {
			if used[i] || (nbSteps > 1 && !s.multiAllowed) {
				continue
			}
			path, err := s.acct.ConversionPath(ctx, s.cur, endCur, account.Strict)
			if err != nil || len(path) != nbSteps {
				continue
			}
			endAmt, err := o.estimatePathConversion(ctx, s.acct, s.bal, path)
			if err != nil || endAmt.IsZero() {
				continue
			}
			candidates = append(candidates, buyCandidate{idx: i, acct: s.acct, startAmt: s.bal, endAmt: endAmt})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			c, err := candidates[i].endAmt.Compare(candidates[j].endAmt)
			return err == nil && c > 0
		})

		for _, c := range candidates {
			if remaining.IsZero() || remaining.Sign() <= 0 {
				break
			}
			used[c.idx] = true
			assign := c.endAmt
			if cmp, err := assign.Compare(remaining); err == nil && cmp > 0 {
				assign = remaining
			}
			spendAmt := c.startAmt
			if ratio, err := assign.Div(c.endAmt); err == nil {
				if scaled, err := c.startAmt.Mul(ratio); err == nil {
					spendAmt = scaled
				}
			}
			assignments = append(assignments, assignment{acct: c.acct, amt: spendAmt})
			remaining, _ = remaining.Sub(assign)
		}
	}

	rp := pool.NewWithResults[TradeResultPerExchange]().WithMaxGoroutines(o.poolSize(max1(len(assignments))))
	for _, a := range assignments {
		a := a
		rp.Go(func() TradeResultPerExchange {
			res, _ := o.runLeg(ctx, a.acct, a.amt, endCur, opts)
			return res
		})
	}
	return rp.Wait(), nil
}

type smartSellAccount struct {
	acct         account.PrivateAccount
	bal          money.Amount
	multiAllowed bool
	preferred    []money.CurrencyCode
}

// smartSellAccounts gathers, for every account in accounts, its balance in
// sellCur alongside its configured preferredPaymentCurrencies. Accounts
// with no preferred currencies, or a zero sellCur balance, contribute
// nothing (spec.md §4.G "mirror of smartBuy").
func (o *Orchestrator) smartSellAccounts(ctx context.Context, sellCur money.CurrencyCode, accounts []account.PrivateAccount, opts trade.Options) []smartSellAccount {
	var sellers []smartSellAccount
	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(o.poolSize(len(accounts)))
	for _, acct := range accounts {
		acct := acct
		p.Go(func() {
			cfg, err := acct.ExchangeConfig(ctx)
			if err != nil || len(cfg.PreferredPaymentCurrencies) == 0 {
				return
			}
			var balance *account.BalancePortfolio
			err = o.withAccountLock(acct, "queryBalance", func() error {
				b, err := acct.QueryAccountBalance(ctx, account.BalanceOptions{})
				balance = b
				return err
			})
			if err != nil || balance == nil {
				return
			}
			bal, ok := balance.Get(sellCur)
			if !ok || bal.IsZero() {
				return
			}
			mu.Lock()
			sellers = append(sellers, smartSellAccount{
				acct:         acct,
				bal:          bal,
				multiAllowed: opts.IsMultiTradeAllowed(cfg.MultiTradeAllowedByDefault),
				preferred:    cfg.PreferredPaymentCurrencies,
			})
			mu.Unlock()
		})
	}
	p.Wait()
	return sellers
}

// SmartSell implements spec.md §4.G/§6's smartSell: the mirror of SmartBuy.
// startAmount (or, if isPercentage, that fraction of the total sellCur
// balance held across accountSet) is sold off across accounts, routing
// each account's contribution to whichever of its preferred payment
// currencies an exactly-nbSteps conversion path reaches with the highest
// projected yield. Each account contributes through at most one path per
// run: its sellCur balance is a single pool, so once selected the whole
// account is removed from consideration for further nbSteps.
func (o *Orchestrator) SmartSell(ctx context.Context, startAmount money.Amount, isPercentage bool, accounts []account.PrivateAccount, opts trade.Options) ([]TradeResultPerExchange, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	sellCur := startAmount.CurrencyCode()
	sellers := o.smartSellAccounts(ctx, sellCur, accounts, opts)

	totalAvailable := money.Zero(sellCur)
	for _, s := range sellers {
		totalAvailable, _ = totalAvailable.Add(s.bal)
	}
	remStart := startAmount
	if isPercentage {
		ratio, err := startAmount.ToNeutral().Div(money.New(100, 0, money.Neutral))
		if err != nil {
			return nil, fmt.Errorf("orchestrat: compute percentage ratio: %w", err)
		}
		remStart, err = totalAvailable.Mul(ratio)
		if err != nil {
			return nil, fmt.Errorf("orchestrat: apply percentage to total available: %w", err)
		}
	}

	type sellCandidate struct {
		idx      int
		acct     account.PrivateAccount
		toCur    money.CurrencyCode
		received money.Amount
	}
	type assignment struct {
		acct  account.PrivateAccount
		amt   money.Amount
		toCur money.CurrencyCode
	}

	used := make([]bool, len(sellers))
	var assignments []assignment

	for nbSteps := 1; nbSteps <= defaultMaxSmartSteps; nbSteps++ {
		if remStart.IsZero() || remStart.Sign() <= 0 {
			break
		}
		var candidates []sellCandidate
		for i, s := range sellers {
			if used[i] || (nbSteps > 1 && !s.multiAllowed) {
				continue
			}
			var best *sellCandidate
			for _, toCur := range s.preferred {
				path, err := s.acct.ConversionPath(ctx, sellCur, toCur, account.Strict)
				if err != nil || len(path) != nbSteps {
					continue
				}
				received, err := o.estimatePathConversion(ctx, s.acct, s.bal, path)
				if err != nil || received.IsZero() {
					continue
				}
				if best == nil {
					c := sellCandidate{idx: i, acct: s.acct, toCur: toCur, received: received}
					best = &c
					continue
				}
				if cmp, err := received.Compare(best.received); err == nil && cmp > 0 {
					c := sellCandidate{idx: i, acct: s.acct, toCur: toCur, received: received}
					best = &c
				}
			}
			if best != nil {
				candidates = append(candidates, *best)
			}
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			c, err := candidates[i].received.Compare(candidates[j].received)
			return err == nil && c > 0
		})

		for _, c := range candidates {
			if remStart.IsZero() || remStart.Sign() <= 0 {
				break
			}
			used[c.idx] = true
			assign := sellers[c.idx].bal
			if cmp, err := assign.Compare(remStart); err == nil && cmp > 0 {
				assign = remStart
			}
			assignments = append(assignments, assignment{acct: c.acct, amt: assign, toCur: c.toCur})
			remStart, _ = remStart.Sub(assign)
		}
	}

	rp := pool.NewWithResults[TradeResultPerExchange]().WithMaxGoroutines(o.poolSize(max1(len(assignments))))
	for _, a := range assignments {
		a := a
		rp.Go(func() TradeResultPerExchange {
			res, _ := o.runLeg(ctx, a.acct, a.amt, a.toCur, opts)
			return res
		})
	}
	return rp.Wait(), nil
}

// runLeg executes one account's trade leg, serialized against any other
// in-flight "trade" call on the same account. A direct (single-market) path
// goes straight through Engine.Run: RunMultiTrade's multi-trade-allowed gate
// only makes sense for a genuine chain across several markets, not for a
// plain same-market trade that happens to be routed through the
// orchestrator (spec.md §4.G: "delegate to SingleTrade/MultiTrade
// directly").
func (o *Orchestrator) runLeg(ctx context.Context, acct account.PrivateAccount, amount money.Amount, toCur money.CurrencyCode, opts trade.Options) (TradeResultPerExchange, error) {
	res := TradeResultPerExchange{Exchange: acct.ExchangeName(), Owner: acct.Owner()}
	err := o.withAccountLock(acct, "trade", func() error {
		engine := engineFor(acct)

		path, err := acct.ConversionPath(ctx, amount.CurrencyCode(), toCur, account.Strict)
		if err != nil {
			return fmt.Errorf("orchestrat: find conversion path: %w", err)
		}

		var traded trade.TradedAmounts
		switch {
		case len(path) == 1:
			mkt := path[0]
			side := trade.Buy
			if amount.CurrencyCode().Equal(mkt.Base()) {
				side = trade.Sell
			}
			legCtx := trade.NewContext(mkt, side, amount, opts, time.Now().Unix())
			result, err := engine.Run(ctx, legCtx)
			if err != nil {
				return err
			}
			traded = result.TradedAmounts
		default:
			traded, err = engine.RunMultiTrade(ctx, amount, toCur, opts)
			if err != nil {
				return err
			}
		}

		res.Result = trade.Result{
			TradedAmounts: traded,
			State:         trade.DeriveState(amount, traded.Sent),
		}
		return nil
	})
	res.Err = err
	return res, err
}

// Withdraw delegates to internal/withdraw's pipeline (spec.md §4.H),
// serialized against any other in-flight "withdraw" call on fromAccount.
func (o *Orchestrator) Withdraw(ctx context.Context, gross money.Amount, isPercentage bool, fromAccount, toAccount account.PrivateAccount, toWallet account.Wallet, opts trade.Options) (account.DeliveredWithdrawInfo, error) {
	var delivered account.DeliveredWithdrawInfo
	err := o.withAccountLock(fromAccount, "withdraw", func() error {
		p := &withdraw.Pipeline{RefreshInterval: o.WithdrawRefreshInterval}
		var err error
		delivered, err = p.Run(ctx, gross, isPercentage, fromAccount, toAccount, toWallet, opts)
		return err
	})
	return delivered, err
}

// DustSweeper delegates to internal/dust per account in accountSet (spec.md
// §4.G, §4.I), run in parallel.
func (o *Orchestrator) DustSweeper(ctx context.Context, accounts []account.PrivateAccount, cur money.CurrencyCode, mode trade.Mode) []DustResultPerExchange {
	if len(accounts) == 0 {
		return nil
	}
	rp := pool.NewWithResults[DustResultPerExchange]().WithMaxGoroutines(o.poolSize(len(accounts)))
	for _, acct := range accounts {
		acct := acct
		rp.Go(func() DustResultPerExchange {
			out := DustResultPerExchange{Exchange: acct.ExchangeName(), Owner: acct.Owner()}
			err := o.withAccountLock(acct, "dustSweeper", func() error {
				sweeper := &dust.Sweeper{
					Engine:            engineFor(acct),
					MaxIterations:     o.DustMaxIterations,
					BuyStep:           o.DustBuyStep,
					MaxDustMultiplier: o.DustMaxDustMultiplier,
				}
				res, err := sweeper.Run(ctx, cur, mode)
				out.Result = res
				return err
			})
			out.Err = err
			return out
		})
	}
	return rp.Wait()
}

// AccountResult pairs a metadata query's result with the account it came
// from, for the trivial fan-outs spec.md §4.G groups as "metadata
// operations".
type AccountResult[T any] struct {
	Exchange account.ExchangeName
	Owner    account.AccountOwner
	Value    T
	Err      error
}

// Fanout runs query against every account in parallel and collects the
// results, for read-only metadata operations (getTickerInformation,
// getMarketsPerExchange, recent orders/deposits/withdraws, and similar;
// spec.md §4.G, §6).
func Fanout[T any](ctx context.Context, o *Orchestrator, accounts []account.PrivateAccount, op string, query func(context.Context, account.PrivateAccount) (T, error)) []AccountResult[T] {
	if len(accounts) == 0 {
		return nil
	}
	rp := pool.NewWithResults[AccountResult[T]]().WithMaxGoroutines(o.poolSize(len(accounts)))
	for _, acct := range accounts {
		acct := acct
		rp.Go(func() AccountResult[T] {
			out := AccountResult[T]{Exchange: acct.ExchangeName(), Owner: acct.Owner()}
			_ = o.withAccountLock(acct, op, func() error {
				v, err := query(ctx, acct)
				out.Value = v
				out.Err = err
				return err
			})
			return out
		})
	}
	return rp.Wait()
}
