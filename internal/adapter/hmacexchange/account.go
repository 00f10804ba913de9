package hmacexchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cct/internal/account"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

// ErrSimulatedOrdersUnsupported is returned by PlaceOrder when a caller asks
// for a native exchange-side simulated order: this generic REST adapter has
// no such endpoint to target.
var ErrSimulatedOrdersUnsupported = errors.New("hmacexchange: exchange does not support native simulated orders")

// ExchangeName implements account.PublicMarketView.
func (a *Account) ExchangeName() account.ExchangeName { return a.exchange }

// Owner implements account.PrivateAccount.
func (a *Account) Owner() account.AccountOwner { return a.owner }

// ValidateAPIKey makes a cheap authenticated call (the account's own
// balance) to confirm the configured credentials are accepted.
func (a *Account) ValidateAPIKey(ctx context.Context) error {
	var resp balanceResponse
	return a.call(ctx, a.rl.Book, "GET", "/v1/balance", nil, &resp)
}

func (a *Account) fetchTradableMarkets(ctx context.Context) ([]market.Market, error) {
	var resp marketsResponse
	if err := a.unauthenticatedGet(ctx, a.rl.Book, "/v1/markets", &resp); err != nil {
		if a.metrics != nil {
			a.metrics.ObserveCacheMiss("tradable_markets")
		}
		return nil, err
	}
	out := make([]market.Market, 0, len(resp.Markets))
	for _, wm := range resp.Markets {
		base, err := money.NewCurrencyCode(wm.Base)
		if err != nil {
			return nil, fmt.Errorf("market %s-%s: %w", wm.Base, wm.Quote, err)
		}
		quote, err := money.NewCurrencyCode(wm.Quote)
		if err != nil {
			return nil, fmt.Errorf("market %s-%s: %w", wm.Base, wm.Quote, err)
		}
		var mkt market.Market
		if wm.Synthetic {
			mkt, err = market.NewSynthetic(base, quote)
		} else {
			mkt, err = market.New(base, quote)
		}
		if err != nil {
			return nil, fmt.Errorf("market %s-%s: %w", wm.Base, wm.Quote, err)
		}
		out = append(out, mkt)
	}
	return out, nil
}

// TradableMarkets implements account.PublicMarketView, served from the
// account's market cache (internal/cache) rather than refetching on every
// call — spec.md §9's "struct-owned Cache<K,V> with a pluggable loader and
// TTL" redesign note.
func (a *Account) TradableMarkets(ctx context.Context) ([]market.Market, error) {
	markets, err := a.marketCache.Get(ctx, struct{}{})
	if err == nil && a.metrics != nil {
		a.metrics.ObserveCacheHit("tradable_markets")
	}
	return markets, err
}

// TradableCurrencies and QueryTradableCurrencies both derive the currency
// set from TradableMarkets, mirroring simulated.Account since this adapter
// has no separate "listed currencies" feed either.
func (a *Account) TradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error) {
	return a.tradableCurrencies(ctx)
}

func (a *Account) QueryTradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error) {
	return a.tradableCurrencies(ctx)
}

func (a *Account) tradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error) {
	markets, err := a.TradableMarkets(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[money.CurrencyCode]struct{})
	var out []money.CurrencyCode
	for _, m := range markets {
		for _, c := range [...]money.CurrencyCode{m.Base(), m.Quote()} {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// OrderBook returns mkt's cached order book (internal/cache-bounded, evicted
// early by an internal/adapter/feed push), reloading through fetchOrderBook
// on a cache miss or expiry. depth is not used: every cache entry is
// fetched with cachedBookDepth levels, whatever depth the caller asks for.
func (a *Account) OrderBook(ctx context.Context, mkt market.Market, depth int) (*market.OrderBook, error) {
	return a.bookCache.Get(ctx, mkt.String())
}

// fetchOrderBook fetches mkt's depth levels from the exchange and builds a
// market.OrderBook from the response.
func (a *Account) fetchOrderBook(ctx context.Context, mkt market.Market, depth int) (*market.OrderBook, error) {
	var resp orderBookResponse
	path := fmt.Sprintf("/v1/orderbook?market=%s&depth=%d", mkt.String(), depth)
	if err := a.unauthenticatedGet(ctx, a.rl.Book, path, &resp); err != nil {
		return nil, err
	}

	lines := make([]market.OrderBookLine, 0, len(resp.Bids)+len(resp.Asks))
	for _, b := range resp.Bids {
		price, err := parseAmount(b.Price, mkt.Quote())
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(b.Amount, mkt.Base())
		if err != nil {
			return nil, err
		}
		lines = append(lines, market.OrderBookLine{Price: price, Amount: amount, IsAsk: false})
	}
	for _, ask := range resp.Asks {
		price, err := parseAmount(ask.Price, mkt.Quote())
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(ask.Amount, mkt.Base())
		if err != nil {
			return nil, err
		}
		lines = append(lines, market.OrderBookLine{Price: price, Amount: amount, IsAsk: true})
	}
	return market.NewOrderBook(mkt, lines, market.VolAndPriNbDecimals{}, time.Now())
}

// ConversionPath delegates to the shared market.FindPath helper, mapping
// mode to whether synthetic fiat-bridge markets may enter the graph.
func (a *Account) ConversionPath(ctx context.Context, from, to money.CurrencyCode, mode account.ConversionPathMode) (account.Path, error) {
	markets, err := a.TradableMarkets(ctx)
	if err != nil {
		return nil, err
	}
	path, err := market.FindPath(markets, from, to, mode == account.AllowFiatStableCoinBridge)
	if err != nil {
		return nil, err
	}
	return account.Path(path), nil
}

// WithdrawFee implements account.PublicMarketView.
func (a *Account) WithdrawFee(ctx context.Context, cur money.CurrencyCode) (money.Amount, error) {
	var resp withdrawFeeResponse
	path := fmt.Sprintf("/v1/withdraw-fee?currency=%s", cur.String())
	if err := a.unauthenticatedGet(ctx, a.rl.Book, path, &resp); err != nil {
		return money.Amount{}, err
	}
	return parseAmount(resp.Fee, cur)
}

// EstimateConvertRate prices `from` into `to` via the direct market's order
// book, reusing the same base/quote conversion math simulated.Account uses.
func (a *Account) EstimateConvertRate(ctx context.Context, from money.Amount, to money.CurrencyCode) (money.Amount, error) {
	markets, err := a.TradableMarkets(ctx)
	if err != nil {
		return money.Amount{}, err
	}
	fromCur := from.CurrencyCode()
	for _, m := range markets {
		switch {
		case m.Base().Equal(fromCur) && m.Quote().Equal(to):
			ob, err := a.OrderBook(ctx, m, 1)
			if err != nil {
				return money.Amount{}, err
			}
			converted, ok := ob.ConvertBaseToQuote(from)
			if !ok {
				return money.Amount{}, fmt.Errorf("%s: %w", m, market.ErrInsufficientLiquidity)
			}
			return converted, nil
		case m.Base().Equal(to) && m.Quote().Equal(fromCur):
			ob, err := a.OrderBook(ctx, m, 1)
			if err != nil {
				return money.Amount{}, err
			}
			converted, ok := ob.ConvertQuoteToBase(from)
			if !ok {
				return money.Amount{}, fmt.Errorf("%s: %w", m, market.ErrInsufficientLiquidity)
			}
			return converted, nil
		}
	}
	return money.Amount{}, fmt.Errorf("%s -> %s: %w", fromCur, to, market.ErrNoPath)
}

// ExchangeConfig implements account.PublicMarketView.
func (a *Account) ExchangeConfig(ctx context.Context) (account.ExchangeConfig, error) {
	return a.cfg, nil
}

// QueryAccountBalance fetches every currency's available balance, optionally
// stamping each with its equivalent value via EstimateConvertRate.
func (a *Account) QueryAccountBalance(ctx context.Context, opts account.BalanceOptions) (*account.BalancePortfolio, error) {
	var resp balanceResponse
	if err := a.call(ctx, a.rl.Book, "GET", "/v1/balance", nil, &resp); err != nil {
		return nil, err
	}
	out := account.NewBalancePortfolio()
	for _, b := range resp.Balances {
		cur, err := money.NewCurrencyCode(b.Currency)
		if err != nil {
			return nil, err
		}
		amt, err := parseAmount(b.Available, cur)
		if err != nil {
			return nil, err
		}
		out.Set(amt)
	}
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

// QueryDepositWallet fetches the exchange-generated deposit address for cur.
func (a *Account) QueryDepositWallet(ctx context.Context, cur money.CurrencyCode) (account.Wallet, error) {
	var resp depositWalletResponse
	path := fmt.Sprintf("/v1/deposit-wallet?currency=%s", cur.String())
	if err := a.call(ctx, a.rl.Book, "GET", path, nil, &resp); err != nil {
		return account.Wallet{}, err
	}
	return account.Wallet{
		Exchange: a.exchange,
		Currency: cur,
		Address:  resp.Address,
		Tag:      resp.Tag,
		Owner:    a.owner,
	}, nil
}

// CanGenerateDepositAddress reports true: this adapter always asks the
// exchange to mint one on demand rather than relying on a preconfigured
// fixed address.
func (a *Account) CanGenerateDepositAddress() bool { return true }

func (a *Account) queryOrders(ctx context.Context, constraints account.OrdersConstraints, path string) ([]trade.Info, error) {
	var resp ordersListResponse
	if err := a.call(ctx, a.rl.Book, "GET", path, nil, &resp); err != nil {
		return nil, err
	}
	var out []trade.Info
	for _, o := range resp.Orders {
		base, quote, err := splitMarket(o.Market)
		if err != nil {
			continue
		}
		if !constraints.Matches(base, quote, o.OrderID, time.Time{}) {
			continue
		}
		info, err := toTradeInfo(o)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// QueryClosedOrders implements account.PrivateAccount.
func (a *Account) QueryClosedOrders(ctx context.Context, constraints account.OrdersConstraints) ([]trade.Info, error) {
	return a.queryOrders(ctx, constraints, "/v1/orders?status=closed")
}

// QueryOpenedOrders implements account.PrivateAccount.
func (a *Account) QueryOpenedOrders(ctx context.Context, constraints account.OrdersConstraints) ([]trade.Info, error) {
	return a.queryOrders(ctx, constraints, "/v1/orders?status=open")
}

// CancelOpenedOrders cancels every open order matching constraints.
func (a *Account) CancelOpenedOrders(ctx context.Context, constraints account.OrdersConstraints) error {
	opened, err := a.QueryOpenedOrders(ctx, constraints)
	if err != nil {
		return err
	}
	for _, o := range opened {
		if _, err := a.CancelOrder(ctx, o.OrderID, trade.Context{}); err != nil {
			return err
		}
	}
	return nil
}

// QueryRecentDeposits implements account.PrivateAccount.
func (a *Account) QueryRecentDeposits(ctx context.Context, constraints account.DepositsConstraints) ([]account.RecentDeposit, error) {
	var resp depositsResponse
	if err := a.call(ctx, a.rl.Book, "GET", "/v1/deposits", nil, &resp); err != nil {
		return nil, err
	}
	var out []account.RecentDeposit
	for _, d := range resp.Deposits {
		cur, err := money.NewCurrencyCode(d.Currency)
		if err != nil {
			return nil, err
		}
		amt, err := parseAmount(d.Amount, cur)
		if err != nil {
			return nil, err
		}
		at := time.Unix(d.ReceivedAtUnix, 0).UTC()
		if !constraints.Matches(cur, d.DepositID, at) {
			continue
		}
		out = append(out, account.RecentDeposit{DepositID: d.DepositID, Amount: amt, Time: at})
	}
	return out, nil
}

// QueryRecentWithdraws implements account.PrivateAccount.
func (a *Account) QueryRecentWithdraws(ctx context.Context, constraints account.WithdrawsConstraints) ([]account.WithdrawRecord, error) {
	var resp withdrawsResponse
	if err := a.call(ctx, a.rl.Book, "GET", "/v1/withdraws", nil, &resp); err != nil {
		return nil, err
	}
	var out []account.WithdrawRecord
	for _, w := range resp.Withdraws {
		cur, err := money.NewCurrencyCode(w.Currency)
		if err != nil {
			return nil, err
		}
		gross, err := parseAmount(w.GrossAmount, cur)
		if err != nil {
			return nil, err
		}
		net, err := parseAmount(w.NetAmount, cur)
		if err != nil {
			return nil, err
		}
		fee, err := parseAmount(w.Fee, cur)
		if err != nil {
			return nil, err
		}
		at := time.Unix(w.InitiatedAtUnix, 0).UTC()
		if !constraints.Matches(cur, w.WithdrawID, at) {
			continue
		}
		out = append(out, account.WithdrawRecord{
			WithdrawID:         w.WithdrawID,
			GrossEmittedAmount: gross,
			InitiatedTime:      at,
			NetEmittedAmount:   net,
			Fee:                fee,
			Status:             parseWithdrawStatus(w.Status),
		})
	}
	return out, nil
}

// IsSimulatedOrderSupported always reports false: this generic adapter has
// no native exchange-side simulated-order endpoint to target.
func (a *Account) IsSimulatedOrderSupported() bool { return false }

// PlaceOrder submits an order. In dry-run mode no request is sent; a
// synthetic untouched response is returned instead, matching the teacher's
// PostOrders dry-run branch.
func (a *Account) PlaceOrder(ctx context.Context, volume, price money.Amount, info trade.Context) (trade.PlaceOrderInfo, error) {
	if a.dryRun {
		return trade.PlaceOrderInfo{
			OrderID:       "dryrun-" + info.UserRef,
			IsClosed:      false,
			TradedAmounts: trade.TradedAmounts{Sent: money.Zero(volume.CurrencyCode()), Received: money.Zero(price.CurrencyCode())},
		}, nil
	}

	req := placeOrderRequest{
		Market:  info.Market.String(),
		Side:    info.Side.String(),
		Volume:  formatAmount(volume),
		Price:   formatAmount(price),
		UserRef: info.UserRef,
	}
	var resp placeOrderResponse
	if err := a.call(ctx, a.rl.Order, "POST", "/v1/orders", req, &resp); err != nil {
		return trade.PlaceOrderInfo{}, err
	}
	filled, err := parseAmount(resp.FilledVolume, volume.CurrencyCode())
	if err != nil {
		return trade.PlaceOrderInfo{}, err
	}
	avgPrice, err := parseAmount(resp.AvgFillPrice, price.CurrencyCode())
	if err != nil {
		return trade.PlaceOrderInfo{}, err
	}
	if a.metrics != nil {
		a.metrics.ObserveTrade(string(a.exchange), trade.DeriveState(volume, filled).String())
	}
	return trade.PlaceOrderInfo{
		OrderID:       resp.OrderID,
		IsClosed:      resp.IsClosed,
		TradedAmounts: tradedAmountsFor(info.Side, filled, avgPrice),
	}, nil
}

// CancelOrder cancels a resting order, reporting whatever filled before
// cancellation.
func (a *Account) CancelOrder(ctx context.Context, orderID string, tradeCtx trade.Context) (trade.TradedAmounts, error) {
	if a.dryRun {
		return trade.TradedAmounts{}, nil
	}
	var resp cancelOrderResponse
	path := fmt.Sprintf("/v1/orders/%s", orderID)
	if err := a.call(ctx, a.rl.Cancel, "DELETE", path, nil, &resp); err != nil {
		return trade.TradedAmounts{}, err
	}
	filled, err := parseAmount(resp.FilledVolume, tradeCtx.Amount.CurrencyCode())
	if err != nil {
		return trade.TradedAmounts{}, err
	}
	avgPrice, err := parseAmount(resp.AvgFillPrice, tradeCtx.Market.Quote())
	if err != nil {
		return trade.TradedAmounts{}, err
	}
	return tradedAmountsFor(tradeCtx.Side, filled, avgPrice), nil
}

// QueryOrderInfo reports an order's current status and cumulative fill.
func (a *Account) QueryOrderInfo(ctx context.Context, orderID string, tradeCtx trade.Context) (trade.Info, error) {
	var resp orderInfoResponse
	path := fmt.Sprintf("/v1/orders/%s", orderID)
	if err := a.call(ctx, a.rl.Book, "GET", path, nil, &resp); err != nil {
		return trade.Info{}, err
	}
	return toTradeInfo(resp)
}

// LaunchWithdraw initiates a withdrawal to wallet.
func (a *Account) LaunchWithdraw(ctx context.Context, grossAmount money.Amount, wallet account.Wallet) (account.InitiatedWithdrawInfo, error) {
	if a.dryRun {
		return account.InitiatedWithdrawInfo{
			ReceivingWallet:    wallet,
			WithdrawID:         "dryrun-withdraw",
			GrossEmittedAmount: grossAmount,
			InitiatedTime:      time.Now(),
		}, nil
	}
	req := launchWithdrawRequest{
		Currency: grossAmount.CurrencyCode().String(),
		Amount:   formatAmount(grossAmount),
		Address:  wallet.Address,
		Tag:      wallet.Tag,
	}
	var resp launchWithdrawResponse
	if err := a.call(ctx, a.rl.Order, "POST", "/v1/withdraws", req, &resp); err != nil {
		return account.InitiatedWithdrawInfo{}, err
	}
	initiated := account.InitiatedWithdrawInfo{
		ReceivingWallet:    wallet,
		WithdrawID:         resp.WithdrawID,
		GrossEmittedAmount: grossAmount,
		InitiatedTime:      time.Now(),
	}
	if a.metrics != nil {
		a.metrics.ObserveWithdraw(string(a.exchange), "initiated")
	}
	return initiated, nil
}

// QueryWithdrawDelivery looks for the withdrawal's deposit among this
// (destination) account's recent deposits in the withdrawn currency, picking
// the one closest to sent's net emitted amount via
// account.SelectClosestRecentDeposit. It reports false until such a deposit
// appears.
func (a *Account) QueryWithdrawDelivery(ctx context.Context, initiated account.InitiatedWithdrawInfo, sent account.SentWithdrawInfo) (account.ReceivedWithdrawInfo, bool, error) {
	deposits, err := a.QueryRecentDeposits(ctx, account.DepositsConstraints{Cur: sent.NetEmittedAmount.CurrencyCode()})
	if err != nil {
		return account.ReceivedWithdrawInfo{}, false, err
	}
	received, ok := account.SelectClosestRecentDeposit(deposits, sent.NetEmittedAmount, initiated.InitiatedTime)
	return received, ok, nil
}

func toTradeInfo(o orderInfoResponse) (trade.Info, error) {
	base, quote, err := splitMarket(o.Market)
	if err != nil {
		return trade.Info{}, err
	}
	filled, err := parseAmount(o.FilledVolume, base)
	if err != nil {
		return trade.Info{}, err
	}
	avgPrice, err := parseAmount(o.AvgFillPrice, quote)
	if err != nil {
		return trade.Info{}, err
	}
	side := trade.Buy
	if o.Side == "sell" {
		side = trade.Sell
	}
	return trade.Info{
		OrderID:       o.OrderID,
		IsClosed:      o.IsClosed,
		TradedAmounts: tradedAmountsFor(side, filled, avgPrice),
	}, nil
}

func tradedAmountsFor(side trade.Side, volume, price money.Amount) trade.TradedAmounts {
	notional, _ := volume.ToNeutral().Mul(price.ToNeutral())
	quoteAmt := money.New(notional.Mantissa(), notional.NbDecimals(), price.CurrencyCode())
	if side == trade.Buy {
		return trade.TradedAmounts{Sent: quoteAmt, Received: volume}
	}
	return trade.TradedAmounts{Sent: volume, Received: quoteAmt}
}

func parseWithdrawStatus(s string) account.WithdrawStatus {
	switch s {
	case "processing":
		return account.WithdrawProcessing
	case "success":
		return account.WithdrawSuccess
	case "failed":
		return account.WithdrawFailed
	default:
		return account.WithdrawInitial
	}
}

// splitMarket parses a "BASE-QUOTE" market string back into its currencies.
func splitMarket(s string) (base, quote money.CurrencyCode, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			continue
		}
		base, err = money.NewCurrencyCode(s[:i])
		if err != nil {
			return money.CurrencyCode{}, money.CurrencyCode{}, err
		}
		quote, err = money.NewCurrencyCode(s[i+1:])
		if err != nil {
			return money.CurrencyCode{}, money.CurrencyCode{}, err
		}
		return base, quote, nil
	}
	return money.CurrencyCode{}, money.CurrencyCode{}, fmt.Errorf("split market %q: missing separator", s)
}
