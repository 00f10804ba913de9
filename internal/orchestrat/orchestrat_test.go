package orchestrat

import (
	"context"
	"testing"
	"time"

	"cct/internal/account"
	"cct/internal/adapter/simulated"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

func usd(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("USD")) }
func btc(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("BTC")) }

func btcUSD(t *testing.T) market.Market {
	t.Helper()
	m, err := market.New(money.MustCurrencyCode("BTC"), money.MustCurrencyCode("USD"))
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	return m
}

func newTradingAccount(t *testing.T, name account.ExchangeName, owner account.AccountOwner, balance money.Amount) *simulated.Account {
	t.Helper()
	mkt := btcUSD(t)
	a := simulated.New(name, owner).WithInstantFill(true)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(5, 0), usd(30100, 0), btc(5, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})
	a.SetBalance(balance)
	return a
}

func takerOpts(t *testing.T) trade.Options {
	t.Helper()
	opts, err := trade.New("taker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	return opts
}

func TestTradeSingleAccountDelegatesDirectly(t *testing.T) {
	t.Parallel()
	a := newTradingAccount(t, "simex", "owner1", btc(2, 0))
	o := &Orchestrator{}

	results, err := o.Trade(context.Background(), money.MustCurrencyCode("BTC"), btc(1, 0), false, money.MustCurrencyCode("USD"), []account.PrivateAccount{a}, takerOpts(t))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("leg error: %v", results[0].Err)
	}
	if results[0].Result.State != trade.Complete {
		t.Errorf("state = %v, want Complete", results[0].Result.State)
	}
	if c, err := results[0].Result.TradedAmounts.Received.Compare(usd(29900, 0)); err != nil || c != 0 {
		t.Errorf("received = %v, want 29900 USD", results[0].Result.TradedAmounts.Received)
	}
}

func TestTradePartitionsAcrossAccountsByDescendingBalance(t *testing.T) {
	t.Parallel()
	rich := newTradingAccount(t, "simex", "rich", btc(3, 0))
	poor := newTradingAccount(t, "simex", "poor", btc(1, 0))
	o := &Orchestrator{}

	// Request more than either account alone can cover, less than both
	// combined: candidates sort descending by balance, so rich is assigned
	// its full 3 BTC first and poor is capped to the remaining 0.5 BTC.
	results, err := o.Trade(context.Background(), money.MustCurrencyCode("BTC"), btc(35, 1), false, money.MustCurrencyCode("USD"), []account.PrivateAccount{poor, rich}, takerOpts(t))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both accounts to be assigned a leg, got %d", len(results))
	}

	var total money.Amount = money.Zero(money.MustCurrencyCode("BTC"))
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("leg error for %s: %v", r.Owner, r.Err)
		}
		total, _ = total.Add(r.Result.TradedAmounts.Sent)
	}
	if c, err := total.Compare(btc(35, 1)); err != nil || c != 0 {
		t.Errorf("total sent = %v, want 3.5 BTC", total)
	}
}

func TestTradePercentageComputesFromTotalAvailable(t *testing.T) {
	t.Parallel()
	a1 := newTradingAccount(t, "simex", "owner1", btc(2, 0))
	a2 := newTradingAccount(t, "simex", "owner2", btc(2, 0))
	o := &Orchestrator{}

	// 50% of (2+2)=4 BTC total available is 2 BTC.
	results, err := o.Trade(context.Background(), money.MustCurrencyCode("BTC"), money.New(50, 0, money.Neutral), true, money.MustCurrencyCode("USD"), []account.PrivateAccount{a1, a2}, takerOpts(t))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	var total money.Amount = money.Zero(money.MustCurrencyCode("BTC"))
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("leg error: %v", r.Err)
		}
		total, _ = total.Add(r.Result.TradedAmounts.Sent)
	}
	if c, err := total.Compare(btc(2, 0)); err != nil || c != 0 {
		t.Errorf("total sent = %v, want 2 BTC (50%% of 4 BTC total)", total)
	}
}

func TestWithdrawDelegatesToPipeline(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	from := simulated.New("simex", "owner1")
	from.AddMarket(mkt)
	from.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})
	from.SetBalance(btc(5, 0))

	to := simulated.New("simex", "owner2")
	to.AddMarket(mkt)
	to.SetQuote(mkt, usd(29900, 0), btc(2, 0), usd(30100, 0), btc(2, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	wallet := account.Wallet{Exchange: "simex", Currency: money.MustCurrencyCode("BTC"), Address: "addr1"}
	o := &Orchestrator{}

	opts := takerOpts(t).WithAsync()
	delivered, err := o.Withdraw(context.Background(), btc(1, 0), false, from, to, wallet, opts)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if delivered.Initiated.WithdrawID == "" {
		t.Error("expected a populated InitiatedWithdrawInfo")
	}
}

func TestSmartBuySpendsPreferredCurrencyBalance(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithInstantFill(true)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(5, 0), usd(30100, 0), btc(5, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})
	a.SetBalance(usd(100000, 0))
	a.WithExchangeConfig(account.ExchangeConfig{
		PreferredPaymentCurrencies: []money.CurrencyCode{money.MustCurrencyCode("USD")},
	})
	o := &Orchestrator{}

	results, err := o.SmartBuy(context.Background(), btc(1, 0), []account.PrivateAccount{a}, takerOpts(t))
	if err != nil {
		t.Fatalf("SmartBuy: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("leg error: %v", results[0].Err)
	}
	if c, err := results[0].Result.TradedAmounts.Received.Compare(btc(1, 0)); err != nil || c != 0 {
		t.Errorf("received = %v, want 1 BTC", results[0].Result.TradedAmounts.Received)
	}
}

func TestSmartBuySkipsAccountsWithNoPreferredCurrencyBalance(t *testing.T) {
	t.Parallel()
	a := newTradingAccount(t, "simex", "owner1", btc(2, 0)) // balance is BTC, no preferred currencies configured
	o := &Orchestrator{}

	results, err := o.SmartBuy(context.Background(), btc(1, 0), []account.PrivateAccount{a}, takerOpts(t))
	if err != nil {
		t.Fatalf("SmartBuy: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no eligible accounts, got %d results", len(results))
	}
}

func TestSmartSellRoutesToPreferredCurrency(t *testing.T) {
	t.Parallel()
	mkt := btcUSD(t)
	a := simulated.New("simex", "owner1").WithInstantFill(true)
	a.AddMarket(mkt)
	a.SetQuote(mkt, usd(29900, 0), btc(5, 0), usd(30100, 0), btc(5, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})
	a.SetBalance(btc(2, 0))
	a.WithExchangeConfig(account.ExchangeConfig{
		PreferredPaymentCurrencies: []money.CurrencyCode{money.MustCurrencyCode("USD")},
	})
	o := &Orchestrator{}

	results, err := o.SmartSell(context.Background(), btc(1, 0), false, []account.PrivateAccount{a}, takerOpts(t))
	if err != nil {
		t.Fatalf("SmartSell: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("leg error: %v", results[0].Err)
	}
	if c, err := results[0].Result.TradedAmounts.Sent.Compare(btc(1, 0)); err != nil || c != 0 {
		t.Errorf("sent = %v, want 1 BTC", results[0].Result.TradedAmounts.Sent)
	}
	if got := results[0].Result.TradedAmounts.Received.CurrencyCode(); !got.Equal(money.MustCurrencyCode("USD")) {
		t.Errorf("received currency = %v, want USD", got)
	}
}

func TestDustSweeperFansOutPerAccount(t *testing.T) {
	t.Parallel()
	a1 := newTradingAccount(t, "simex", "owner1", btc(2, 0))
	a2 := newTradingAccount(t, "simex", "owner2", btc(2, 0))
	// Neither account configures a dust threshold for XRP, so each sweep is
	// a documented no-op (spec.md §4.I: "if no threshold, return empty").
	o := &Orchestrator{}

	results := o.DustSweeper(context.Background(), []account.PrivateAccount{a1, a2}, money.MustCurrencyCode("XRP"), trade.Real)
	if len(results) != 2 {
		t.Fatalf("expected one result per account, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected error for %s: %v", r.Owner, r.Err)
		}
		if len(r.Result.Trades) != 0 {
			t.Errorf("expected no trades without a configured dust threshold, got %v", r.Result.Trades)
		}
	}
}
