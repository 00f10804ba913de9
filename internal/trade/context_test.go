package trade

import (
	"testing"

	"cct/internal/market"
	"cct/internal/money"
)

func testMarket(t *testing.T) market.Market {
	t.Helper()
	m, err := market.New(money.MustCurrencyCode("BTC"), money.MustCurrencyCode("USD"))
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	return m
}

func TestNewContextMintsDistinctUserRefPerSide(t *testing.T) {
	t.Parallel()

	mkt := testMarket(t)
	amt := money.New(1, 0, money.MustCurrencyCode("BTC"))
	opts, err := New("maker", Cancel, Real, 0)
	if err != nil {
		t.Fatalf("new options: %v", err)
	}

	buyCtx := NewContext(mkt, Buy, amt, opts, 1700000000)
	sellCtx := NewContext(mkt, Sell, amt, opts, 1700000000)

	if buyCtx.UserRef == sellCtx.UserRef {
		t.Errorf("expected distinct user refs, got %q for both sides", buyCtx.UserRef)
	}
}

func TestDeriveState(t *testing.T) {
	t.Parallel()

	requested := money.New(100, 0, money.MustCurrencyCode("USD"))

	cases := []struct {
		sent money.Amount
		want State
	}{
		{money.Zero(money.MustCurrencyCode("USD")), Untouched},
		{money.New(40, 0, money.MustCurrencyCode("USD")), Partial},
		{money.New(100, 0, money.MustCurrencyCode("USD")), Complete},
	}
	for _, tc := range cases {
		if got := DeriveState(requested, tc.sent); got != tc.want {
			t.Errorf("DeriveState(%s, %s) = %s, want %s", requested, tc.sent, got, tc.want)
		}
	}
}

func TestTradedAmountsAdd(t *testing.T) {
	t.Parallel()

	a := TradedAmounts{
		Sent:     money.New(1, 1, money.MustCurrencyCode("BTC")), // 0.1
		Received: money.New(3000, 0, money.MustCurrencyCode("USD")),
	}
	b := TradedAmounts{
		Sent:     money.New(2, 1, money.MustCurrencyCode("BTC")), // 0.2
		Received: money.New(6000, 0, money.MustCurrencyCode("USD")),
	}
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	wantSent := money.New(3, 1, money.MustCurrencyCode("BTC"))
	if c, _ := sum.Sent.Compare(wantSent); c != 0 {
		t.Errorf("sent = %s, want %s", sum.Sent, wantSent)
	}
}
