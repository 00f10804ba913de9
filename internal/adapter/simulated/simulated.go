// Package simulated is an in-memory PublicMarketView/PrivateAccount
// implementation: no network calls, a single mutex-guarded book of prices,
// orders, and withdraws. It fills the role broker_paper.go fills for the
// market-making teacher — a dry-run account that exercises every code path
// above the exchange-adapter boundary without ever reaching an exchange —
// generalized from a single mutable price to a per-market quote and from
// "always fills instantly" to a configurable resting-order model so it can
// also drive SingleTrade's requote loop in tests.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cct/internal/account"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

// ErrUnknownOrder is returned when an order ID wasn't placed on this account.
var ErrUnknownOrder = errors.New("simulated: unknown order id")

// ErrNoQuote is returned when OrderBook/EstimateConvertRate is asked about a
// market with no registered price.
var ErrNoQuote = errors.New("simulated: no quote registered for market")

// ErrNoPath is returned when ConversionPath can't connect two currencies
// over the registered markets.
var ErrNoPath = errors.New("simulated: no conversion path")

type orderStatus int

const (
	orderOpen orderStatus = iota
	orderClosed
	orderCancelled
)

type order struct {
	id           string
	mkt          market.Market
	side         trade.Side
	volume       money.Amount
	price        money.Amount
	filledVolume money.Amount
	status       orderStatus
	placedAt     time.Time
}

type withdrawState struct {
	initiated account.InitiatedWithdrawInfo
	sent      account.SentWithdrawInfo
	delivered *account.ReceivedWithdrawInfo
}

// quote is a book's current bid/ask, expanded into a synthetic ladder by
// OrderBook (market.NewSyntheticOrderBook mirrors how a real adapter turns a ticker
// top-of-book into a MarketOrderBook, per spec.md §4.B).
type quote struct {
	bidPrice, bidVolume money.Amount
	askPrice, askVolume money.Amount
	decimals            market.VolAndPriNbDecimals
}

// Account is a simulated PrivateAccount. Zero value is not usable; build one
// with New.
type Account struct {
	mu sync.Mutex

	name  account.ExchangeName
	owner account.AccountOwner
	now   func() time.Time

	markets []market.Market
	quotes  map[market.Market]quote

	// instantFill, when true, mimics broker_paper's PlaceMarketQuote: every
	// PlaceOrder fills completely at the requested price with no resting
	// state. When false (the default), an order that crosses the registered
	// quote fills at once; any other order rests until Fill or Cancel.
	instantFill bool

	balances *account.BalancePortfolio
	wallets  map[money.CurrencyCode]account.Wallet
	deposits []account.RecentDeposit

	withdrawFees map[money.CurrencyCode]money.Amount

	config account.ExchangeConfig

	orders    map[string]*order
	withdraws map[string]*withdrawState

	simulatedOrderSupported bool
}

// New builds an empty simulated account under the given exchange name and
// owner. Markets and their quotes are registered with AddMarket/SetQuote
// before use.
func New(name account.ExchangeName, owner account.AccountOwner) *Account {
	return &Account{
		name:                    name,
		owner:                   owner,
		now:                     time.Now,
		quotes:                  make(map[market.Market]quote),
		balances:                account.NewBalancePortfolio(),
		wallets:                 make(map[money.CurrencyCode]account.Wallet),
		withdrawFees:            make(map[money.CurrencyCode]money.Amount),
		orders:                  make(map[string]*order),
		withdraws:               make(map[string]*withdrawState),
		simulatedOrderSupported: true,
		config: account.ExchangeConfig{
			DustThresholds:            make(map[money.CurrencyCode]money.Amount),
			OrderBookRefreshFrequency: time.Second,
			BalanceRefreshFrequency:   5 * time.Second,
		},
	}
}

// WithNow overrides the clock, for deterministic tests.
func (a *Account) WithNow(now func() time.Time) *Account {
	a.now = now
	return a
}

// WithInstantFill configures whether PlaceOrder fills immediately (true) or,
// unless the order crosses the registered quote, rests until
// Fill/CancelOrder (false, the default).
func (a *Account) WithInstantFill(instant bool) *Account {
	a.instantFill = instant
	return a
}

// WithSimulatedOrderSupport overrides whether this account claims native
// simulated-order support (spec.md §4.E "Simulation").
func (a *Account) WithSimulatedOrderSupport(supported bool) *Account {
	a.simulatedOrderSupported = supported
	return a
}

// WithExchangeConfig replaces the account's static configuration.
func (a *Account) WithExchangeConfig(cfg account.ExchangeConfig) *Account {
	a.config = cfg
	return a
}

// AddMarket registers mkt as tradable.
func (a *Account) AddMarket(mkt market.Market) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.markets {
		if m == mkt {
			return a
		}
	}
	a.markets = append(a.markets, mkt)
	return a
}

// SetQuote sets mkt's current bid/ask, used both to answer OrderBook and to
// price market/taker fills. decimals controls the synthetic ladder's
// precision.
func (a *Account) SetQuote(mkt market.Market, bidPrice, bidVolume, askPrice, askVolume money.Amount, decimals market.VolAndPriNbDecimals) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quotes[mkt] = quote{bidPrice: bidPrice, bidVolume: bidVolume, askPrice: askPrice, askVolume: askVolume, decimals: decimals}
	return a
}

// SetBalance records cur's balance.
func (a *Account) SetBalance(amount money.Amount) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances.Set(amount)
	return a
}

// SetWallet registers the deposit wallet returned for cur.
func (a *Account) SetWallet(w account.Wallet) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wallets[w.Currency] = w
	return a
}

// SetWithdrawFee sets the flat fee WithdrawFee reports for cur.
func (a *Account) SetWithdrawFee(cur money.CurrencyCode, fee money.Amount) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawFees[cur] = fee
	return a
}

// AddDeposit registers a recent deposit, for QueryRecentDeposits and the
// withdraw pipeline's closest-recent-deposit matching.
func (a *Account) AddDeposit(d account.RecentDeposit) *Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deposits = append(a.deposits, d)
	return a
}

// ExchangeName implements account.PublicMarketView.
func (a *Account) ExchangeName() account.ExchangeName { return a.name }

// Owner implements account.PrivateAccount.
func (a *Account) Owner() account.AccountOwner { return a.owner }

// ValidateAPIKey always succeeds: a simulated account has no credentials to
// reject.
func (a *Account) ValidateAPIKey(ctx context.Context) error { return nil }

// TradableMarkets implements account.PublicMarketView.
func (a *Account) TradableMarkets(ctx context.Context) ([]market.Market, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]market.Market, len(a.markets))
	copy(out, a.markets)
	return out, nil
}

// TradableCurrencies and QueryTradableCurrencies both derive the currency
// set from the registered markets, since a simulated account has no
// separate "listed currencies" feed.
func (a *Account) TradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error) {
	return a.tradableCurrencies(), nil
}

func (a *Account) QueryTradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error) {
	return a.tradableCurrencies(), nil
}

func (a *Account) tradableCurrencies() []money.CurrencyCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[money.CurrencyCode]struct{})
	var out []money.CurrencyCode
	for _, m := range a.markets {
		for _, c := range [...]money.CurrencyCode{m.Base(), m.Quote()} {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// OrderBook expands the market's registered quote into a synthetic ladder
// (market.NewSyntheticOrderBook), matching how the teacher's market maker treats a
// ticker top-of-book as a MarketOrderBook.
func (a *Account) OrderBook(ctx context.Context, mkt market.Market, depth int) (*market.OrderBook, error) {
	a.mu.Lock()
	q, ok := a.quotes[mkt]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", mkt, ErrNoQuote)
	}
	if depth < 1 {
		depth = 1
	}
	return market.NewSyntheticOrderBook(mkt, q.askPrice, q.askVolume, q.bidPrice, q.bidVolume, q.decimals, depth, a.now())
}

// ConversionPath runs a breadth-first search over the registered markets.
// mode is accepted for interface compatibility; a simulated account has no
// separate fiat-bridge edge set, so both modes search the same graph.
func (a *Account) ConversionPath(ctx context.Context, from, to money.CurrencyCode, mode account.ConversionPathMode) (account.Path, error) {
	a.mu.Lock()
	markets := make([]market.Market, len(a.markets))
	copy(markets, a.markets)
	a.mu.Unlock()

	if from.Equal(to) {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoPath)
	}

	type edge struct {
		mkt  market.Market
		next money.CurrencyCode
	}
	adj := make(map[money.CurrencyCode][]edge)
	for _, m := range markets {
		// Both directions keep the market in its registered (canonical)
		// orientation: callers derive a leg's side from whether their
		// current currency is the market's base or quote, so the book
		// lookup always hits the same registered market either way.
		adj[m.Base()] = append(adj[m.Base()], edge{mkt: m, next: m.Quote()})
		adj[m.Quote()] = append(adj[m.Quote()], edge{mkt: m, next: m.Base()})
	}

	type queued struct {
		cur  money.CurrencyCode
		path account.Path
	}
	visited := map[money.CurrencyCode]struct{}{from: {}}
	queue := []queued{{cur: from}}
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]
		for _, e := range adj[head.cur] {
			if _, ok := visited[e.next]; ok {
				continue
			}
			path := append(append(account.Path{}, head.path...), e.mkt)
			if e.next.Equal(to) {
				return path, nil
			}
			visited[e.next] = struct{}{}
			queue = append(queue, queued{cur: e.next, path: path})
		}
	}
	return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoPath)
}

// WithdrawFee implements account.PublicMarketView.
func (a *Account) WithdrawFee(ctx context.Context, cur money.CurrencyCode) (money.Amount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fee, ok := a.withdrawFees[cur]; ok {
		return fee, nil
	}
	return money.Zero(cur), nil
}

// EstimateConvertRate prices `from` into `to` by walking the direct market's
// order book, if one is registered.
func (a *Account) EstimateConvertRate(ctx context.Context, from money.Amount, to money.CurrencyCode) (money.Amount, error) {
	mkt, reversed, err := a.findDirectMarket(from.CurrencyCode(), to)
	if err != nil {
		return money.Amount{}, err
	}
	ob, err := a.OrderBook(ctx, mkt, 1)
	if err != nil {
		return money.Amount{}, err
	}
	if !reversed {
		converted, ok := ob.ConvertBaseToQuote(from)
		if !ok {
			return money.Amount{}, fmt.Errorf("%s: %w", mkt, market.ErrInsufficientLiquidity)
		}
		return converted, nil
	}
	converted, ok := ob.ConvertQuoteToBase(from)
	if !ok {
		return money.Amount{}, fmt.Errorf("%s: %w", mkt, market.ErrInsufficientLiquidity)
	}
	return converted, nil
}

func (a *Account) findDirectMarket(from, to money.CurrencyCode) (market.Market, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.markets {
		if m.Base().Equal(from) && m.Quote().Equal(to) {
			return m, false, nil
		}
		if m.Base().Equal(to) && m.Quote().Equal(from) {
			return m, true, nil
		}
	}
	return market.Market{}, false, fmt.Errorf("%s -> %s: %w", from, to, ErrNoPath)
}

// ExchangeConfig implements account.PublicMarketView.
func (a *Account) ExchangeConfig(ctx context.Context) (account.ExchangeConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config, nil
}

// QueryAccountBalance returns the registered balances, optionally stamping
// each with its equivalent value in opts.EquivalentCurrency via the
// registered quotes.
func (a *Account) QueryAccountBalance(ctx context.Context, opts account.BalanceOptions) (*account.BalancePortfolio, error) {
	a.mu.Lock()
	out := account.NewBalancePortfolio()
	for _, cur := range a.balances.Currencies() {
		amt, _ := a.balances.Get(cur)
		out.Set(amt)
	}
	a.mu.Unlock()
	if !opts.EquivalentCurrency.IsNeutral() {
		for _, cur := range out.Currencies() {
			amt, _ := out.Get(cur)
			if cur.Equal(opts.EquivalentCurrency) {
				out.SetEquivalent(cur, amt)
				continue
			}
			if equiv, err := a.EstimateConvertRate(ctx, amt, opts.EquivalentCurrency); err == nil {
				out.SetEquivalent(cur, equiv)
			}
		}
	}
	return out, nil
}

// QueryDepositWallet returns the registered wallet for cur, minting one with
// a random "sim-" address if none was preset.
func (a *Account) QueryDepositWallet(ctx context.Context, cur money.CurrencyCode) (account.Wallet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.wallets[cur]; ok {
		return w, nil
	}
	w := account.Wallet{Exchange: a.name, Currency: cur, Address: "sim-" + uuid.New().String(), Owner: a.owner}
	a.wallets[cur] = w
	return w, nil
}

// CanGenerateDepositAddress always reports true: a simulated account never
// needs to fall back to a fixed address.
func (a *Account) CanGenerateDepositAddress() bool { return true }

func (a *Account) orderInfo(o *order) trade.Info {
	return trade.Info{
		OrderID:       o.id,
		IsClosed:      o.status == orderClosed,
		TradedAmounts: tradedAmountsFor(o.side, o.filledVolume, o.price),
	}
}

// QueryClosedOrders and QueryOpenedOrders both filter the account's order
// book by status and constraints.
func (a *Account) QueryClosedOrders(ctx context.Context, constraints account.OrdersConstraints) ([]trade.Info, error) {
	return a.queryOrders(constraints, orderClosed)
}

func (a *Account) QueryOpenedOrders(ctx context.Context, constraints account.OrdersConstraints) ([]trade.Info, error) {
	return a.queryOrders(constraints, orderOpen)
}

func (a *Account) queryOrders(constraints account.OrdersConstraints, status orderStatus) ([]trade.Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []trade.Info
	for _, o := range a.orders {
		if o.status != status {
			continue
		}
		if !constraints.Matches(o.mkt.Base(), o.mkt.Quote(), o.id, o.placedAt) {
			continue
		}
		out = append(out, a.orderInfo(o))
	}
	return out, nil
}

// CancelOpenedOrders cancels every open order matching constraints.
func (a *Account) CancelOpenedOrders(ctx context.Context, constraints account.OrdersConstraints) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.orders {
		if o.status != orderOpen {
			continue
		}
		if !constraints.Matches(o.mkt.Base(), o.mkt.Quote(), o.id, o.placedAt) {
			continue
		}
		o.status = orderCancelled
	}
	return nil
}

// QueryRecentDeposits filters the registered deposits by constraints.
func (a *Account) QueryRecentDeposits(ctx context.Context, constraints account.DepositsConstraints) ([]account.RecentDeposit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []account.RecentDeposit
	for _, d := range a.deposits {
		if constraints.Matches(d.Amount.CurrencyCode(), d.DepositID, d.Time) {
			out = append(out, d)
		}
	}
	return out, nil
}

// QueryRecentWithdraws merges each withdraw's initiation and sender-status
// view, per spec.md §4.H.
func (a *Account) QueryRecentWithdraws(ctx context.Context, constraints account.WithdrawsConstraints) ([]account.WithdrawRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []account.WithdrawRecord
	for id, w := range a.withdraws {
		if !constraints.Matches(w.initiated.GrossEmittedAmount.CurrencyCode(), id, w.initiated.InitiatedTime) {
			continue
		}
		out = append(out, account.WithdrawRecord{
			WithdrawID:         id,
			GrossEmittedAmount: w.initiated.GrossEmittedAmount,
			InitiatedTime:      w.initiated.InitiatedTime,
			NetEmittedAmount:   w.sent.NetEmittedAmount,
			Fee:                w.sent.Fee,
			Status:             w.sent.Status,
		})
	}
	return out, nil
}

// IsSimulatedOrderSupported reports whether this account claims native
// dry-run support (spec.md §4.E "Simulation").
func (a *Account) IsSimulatedOrderSupported() bool { return a.simulatedOrderSupported }

func tradedAmountsFor(side trade.Side, volume, price money.Amount) trade.TradedAmounts {
	notional, _ := volume.ToNeutral().Mul(price.ToNeutral())
	quoteAmt := money.New(notional.Mantissa(), notional.NbDecimals(), price.CurrencyCode())
	if side == trade.Buy {
		return trade.TradedAmounts{Sent: quoteAmt, Received: volume}
	}
	return trade.TradedAmounts{Sent: volume, Received: quoteAmt}
}

// PlaceOrder places volume (base currency) at price (quote currency). In
// instant-fill mode it settles immediately, mirroring broker_paper's
// PlaceMarketQuote; otherwise an order that crosses the registered quote
// fills at once and any other order rests until Fill or CancelOrder.
func (a *Account) PlaceOrder(ctx context.Context, volume, price money.Amount, info trade.Context) (trade.PlaceOrderInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o := &order{
		id:           uuid.New().String(),
		mkt:          info.Market,
		side:         info.Side,
		volume:       volume,
		price:        price,
		filledVolume: money.Zero(volume.CurrencyCode()),
		status:       orderOpen,
		placedAt:     a.now(),
	}
	if a.instantFill || a.crossesBook(info.Market, info.Side, price) {
		o.filledVolume = volume
		o.status = orderClosed
	}
	a.orders[o.id] = o

	return trade.PlaceOrderInfo{
		OrderID:       o.id,
		IsClosed:      o.status == orderClosed,
		TradedAmounts: tradedAmountsFor(o.side, o.filledVolume, o.price),
	}, nil
}

// crossesBook reports whether a resting order at price would immediately
// cross the registered quote: a buy at or above the current ask, or a sell
// at or below the current bid. Such an order fills instantly regardless of
// instantFill, mirroring how a marketable limit order behaves on a real
// exchange. Callers must hold a.mu.
func (a *Account) crossesBook(mkt market.Market, side trade.Side, price money.Amount) bool {
	q, ok := a.quotes[mkt]
	if !ok {
		return false
	}
	if side == trade.Buy {
		c, err := price.Compare(q.askPrice)
		return err == nil && c >= 0
	}
	c, err := price.Compare(q.bidPrice)
	return err == nil && c <= 0
}

// CancelOrder cancels a resting order, returning whatever filled before
// cancellation.
func (a *Account) CancelOrder(ctx context.Context, orderID string, tradeCtx trade.Context) (trade.TradedAmounts, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[orderID]
	if !ok {
		return trade.TradedAmounts{}, fmt.Errorf("%s: %w", orderID, ErrUnknownOrder)
	}
	if o.status == orderOpen {
		o.status = orderCancelled
	}
	return tradedAmountsFor(o.side, o.filledVolume, o.price), nil
}

// QueryOrderInfo reports an order's current status and cumulative fill.
func (a *Account) QueryOrderInfo(ctx context.Context, orderID string, tradeCtx trade.Context) (trade.Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[orderID]
	if !ok {
		return trade.Info{}, fmt.Errorf("%s: %w", orderID, ErrUnknownOrder)
	}
	return a.orderInfo(o), nil
}

// WaitForOpenOrder busy-polls until exactly one order is open on the
// account and returns its ID, or returns ctx.Err() if ctx is cancelled
// first. It is a test/dry-run control hook for driving a resting order
// placed by a concurrently-running engine, not part of account.PrivateAccount.
func (a *Account) WaitForOpenOrder(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		a.mu.Lock()
		for id, o := range a.orders {
			if o.status == orderOpen {
				a.mu.Unlock()
				return id, nil
			}
		}
		a.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

// Fill advances a resting order's cumulative fill by amount (base currency),
// capped at the order's requested volume, closing it once fully filled. It
// is a test/dry-run control hook, not part of account.PrivateAccount.
func (a *Account) Fill(orderID string, amount money.Amount) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.orders[orderID]
	if !ok {
		return fmt.Errorf("%s: %w", orderID, ErrUnknownOrder)
	}
	if o.status != orderOpen {
		return nil
	}
	filled, err := o.filledVolume.Add(amount)
	if err != nil {
		return err
	}
	if c, err := filled.Compare(o.volume); err == nil && c >= 0 {
		filled = o.volume
		o.status = orderClosed
	}
	o.filledVolume = filled
	return nil
}

// LaunchWithdraw records a new withdraw in the Processing state. Advance it
// to a terminal state with SettleWithdraw.
func (a *Account) LaunchWithdraw(ctx context.Context, grossAmount money.Amount, wallet account.Wallet) (account.InitiatedWithdrawInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	initiated := account.InitiatedWithdrawInfo{
		ReceivingWallet:    wallet,
		WithdrawID:         uuid.New().String(),
		GrossEmittedAmount: grossAmount,
		InitiatedTime:      a.now(),
	}
	a.withdraws[initiated.WithdrawID] = &withdrawState{
		initiated: initiated,
		sent:      account.SentWithdrawInfo{NetEmittedAmount: grossAmount, Fee: money.Zero(grossAmount.CurrencyCode()), Status: account.WithdrawProcessing},
	}
	return initiated, nil
}

// SettleWithdraw advances a previously launched withdraw to a terminal
// sender-side status, optionally attaching the matching receiver-side
// deposit that QueryWithdrawDelivery will then report. It is a test/dry-run
// control hook, not part of account.PrivateAccount.
func (a *Account) SettleWithdraw(withdrawID string, status account.WithdrawStatus, fee money.Amount, received *account.ReceivedWithdrawInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.withdraws[withdrawID]
	if !ok {
		return fmt.Errorf("%s: %w", withdrawID, ErrUnknownOrder)
	}
	net, err := w.initiated.GrossEmittedAmount.Sub(fee)
	if err != nil {
		return err
	}
	w.sent = account.SentWithdrawInfo{NetEmittedAmount: net, Fee: fee, Status: status}
	w.delivered = received
	return nil
}

// QueryWithdrawDelivery reports the deposit attached via SettleWithdraw when
// this account launched the withdraw itself; otherwise it picks, via
// account.SelectClosestRecentDeposit, the deposit registered with AddDeposit
// in the withdrawn currency that is closest to sent's net emitted amount.
func (a *Account) QueryWithdrawDelivery(ctx context.Context, initiated account.InitiatedWithdrawInfo, sent account.SentWithdrawInfo) (account.ReceivedWithdrawInfo, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.withdraws[initiated.WithdrawID]; ok && w.delivered != nil {
		return *w.delivered, true, nil
	}
	var deposits []account.RecentDeposit
	for _, d := range a.deposits {
		if d.Amount.CurrencyCode().Equal(sent.NetEmittedAmount.CurrencyCode()) {
			deposits = append(deposits, d)
		}
	}
	received, ok := account.SelectClosestRecentDeposit(deposits, sent.NetEmittedAmount, initiated.InitiatedTime)
	return received, ok, nil
}

var _ account.PrivateAccount = (*Account)(nil)
