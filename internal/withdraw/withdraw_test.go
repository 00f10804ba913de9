package withdraw

import (
	"context"
	"errors"
	"testing"
	"time"

	"cct/internal/account"
	"cct/internal/adapter/simulated"
	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

func eth(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("ETH")) }
func usd(v int64, d uint8) money.Amount { return money.New(v, d, money.MustCurrencyCode("USD")) }

func ethUSD(t *testing.T) market.Market {
	t.Helper()
	m, err := market.New(money.MustCurrencyCode("ETH"), money.MustCurrencyCode("USD"))
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	return m
}

func newBridgedAccounts(t *testing.T) (*simulated.Account, *simulated.Account, account.Wallet) {
	t.Helper()
	mkt := ethUSD(t)

	from := simulated.New("simex", "owner1")
	from.AddMarket(mkt)
	from.SetQuote(mkt, usd(1900, 0), eth(20, 0), usd(2100, 0), eth(20, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})
	from.SetBalance(eth(10, 0))

	to := simulated.New("simex", "owner2")
	to.AddMarket(mkt)
	to.SetQuote(mkt, usd(1900, 0), eth(20, 0), usd(2100, 0), eth(20, 0), market.VolAndPriNbDecimals{Vol: 4, Pri: 0})

	wallet := account.Wallet{Exchange: "simex", Currency: money.MustCurrencyCode("ETH"), Address: "0xabc"}
	return from, to, wallet
}

// TestRunSynchronousWithdrawHappyPath exercises scenario S5: a withdrawal
// settles as WithdrawSuccess on the sender before the matching deposit shows
// up on the receiver, so the polling loop must sit in CheckReceiver for a
// few empty cycles before the delivery is found.
func TestRunSynchronousWithdrawHappyPath(t *testing.T) {
	t.Parallel()
	from, to, wallet := newBridgedAccounts(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := &Pipeline{RefreshInterval: 10 * time.Millisecond}
	opts, err := trade.New("taker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}

	gross := eth(25, 1) // 2.5 ETH
	fee := eth(1, 2)    // 0.01 ETH

	var initiatedID string
	go func() {
		// Give Run a moment to call LaunchWithdraw before we look it up.
		time.Sleep(20 * time.Millisecond)
		records, err := from.QueryRecentWithdraws(context.Background(), account.WithdrawsConstraints{})
		if err != nil || len(records) != 1 {
			return
		}
		initiatedID = records[0].WithdrawID

		// First poll cycles see the withdraw still processing.
		time.Sleep(20 * time.Millisecond)
		if err := from.SettleWithdraw(initiatedID, account.WithdrawSuccess, fee, nil); err != nil {
			t.Errorf("SettleWithdraw (success, no delivery yet): %v", err)
			return
		}

		// Let CheckReceiver poll a couple of times against "no delivery yet"
		// before the deposit actually lands.
		time.Sleep(30 * time.Millisecond)
		to.AddDeposit(account.RecentDeposit{
			DepositID: "dep-1",
			Amount:    eth(249, 2), // 2.49 ETH
			Time:      time.Now(),
		})
	}()

	delivered, err := p.Run(ctx, gross, false, from, to, wallet, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if delivered.Received.NetReceivedAmount.CurrencyCode() != money.MustCurrencyCode("ETH") {
		t.Fatalf("received currency = %s, want ETH", delivered.Received.NetReceivedAmount.CurrencyCode())
	}
	if c, err := delivered.Received.NetReceivedAmount.Compare(eth(249, 2)); err != nil || c != 0 {
		t.Errorf("received amount = %v, want 2.49 ETH", delivered.Received.NetReceivedAmount)
	}
	if delivered.Received.DepositID != "dep-1" {
		t.Errorf("DepositID = %q, want dep-1", delivered.Received.DepositID)
	}
}

func TestRunAsynchronousWithdrawReturnsAfterInitiation(t *testing.T) {
	t.Parallel()
	from, to, wallet := newBridgedAccounts(t)
	ctx := context.Background()

	p := &Pipeline{RefreshInterval: time.Hour} // never actually polled
	opts, err := trade.New("taker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	opts = opts.WithAsync()

	delivered, err := p.Run(ctx, eth(1, 0), false, from, to, wallet, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if delivered.Initiated.WithdrawID == "" {
		t.Error("expected a populated InitiatedWithdrawInfo")
	}
	if !delivered.Received.NetReceivedAmount.IsZero() {
		t.Error("expected no delivery info for an asynchronous withdraw")
	}
}

func TestRunPercentageWithdrawComputesGrossFromBalance(t *testing.T) {
	t.Parallel()
	from, to, wallet := newBridgedAccounts(t) // from holds 10 ETH
	ctx := context.Background()

	p := &Pipeline{RefreshInterval: time.Hour}
	opts, err := trade.New("taker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}
	opts = opts.WithAsync()

	delivered, err := p.Run(ctx, money.New(50, 0, money.MustCurrencyCode("ETH")), true, from, to, wallet, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 50% of 10 ETH.
	if c, err := delivered.Initiated.GrossEmittedAmount.Compare(eth(5, 0)); err != nil || c != 0 {
		t.Errorf("gross emitted = %v, want 5 ETH", delivered.Initiated.GrossEmittedAmount)
	}
}

func TestRunRejectsCurrencyNotWithdrawableFromSource(t *testing.T) {
	t.Parallel()
	from, to, wallet := newBridgedAccounts(t)
	wallet.Currency = money.MustCurrencyCode("XRP") // never registered as a market on from
	ctx := context.Background()

	p := &Pipeline{}
	opts, err := trade.New("taker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}

	_, err = p.Run(ctx, eth(1, 0), false, from, to, wallet, opts)
	if !errors.Is(err, ErrNotWithdrawable) {
		t.Fatalf("err = %v, want ErrNotWithdrawable", err)
	}
}

func TestRunSurfacesSenderSideFailure(t *testing.T) {
	t.Parallel()
	from, to, wallet := newBridgedAccounts(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := &Pipeline{RefreshInterval: 10 * time.Millisecond}
	opts, err := trade.New("taker", trade.Cancel, trade.Real, time.Minute)
	if err != nil {
		t.Fatalf("trade.New: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		records, err := from.QueryRecentWithdraws(context.Background(), account.WithdrawsConstraints{})
		if err != nil || len(records) != 1 {
			return
		}
		_ = from.SettleWithdraw(records[0].WithdrawID, account.WithdrawFailed, money.Zero(money.MustCurrencyCode("ETH")), nil)
	}()

	_, err = p.Run(ctx, eth(1, 0), false, from, to, wallet, opts)
	if !errors.Is(err, ErrWithdrawFailed) {
		t.Fatalf("err = %v, want ErrWithdrawFailed", err)
	}
}
