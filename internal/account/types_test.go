package account

import (
	"testing"
	"time"

	"cct/internal/money"
)

func TestBalancePortfolioSortedByEquivalent(t *testing.T) {
	t.Parallel()

	usd := money.MustCurrencyCode("USD")
	btc := money.MustCurrencyCode("BTC")
	eth := money.MustCurrencyCode("ETH")

	p := NewBalancePortfolio()
	p.Set(money.New(100, 0, usd))
	p.Set(money.New(1, 0, btc))
	p.Set(money.New(10, 0, eth))

	p.SetEquivalent(usd, money.New(100, 0, usd))
	p.SetEquivalent(btc, money.New(30000, 0, usd))
	p.SetEquivalent(eth, money.New(20000, 0, usd))

	sorted := p.SortedByEquivalent()
	if len(sorted) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(sorted))
	}
	if sorted[0].CurrencyCode() != btc || sorted[1].CurrencyCode() != eth || sorted[2].CurrencyCode() != usd {
		t.Errorf("expected order BTC, ETH, USD by decreasing equivalent, got %s, %s, %s",
			sorted[0].CurrencyCode(), sorted[1].CurrencyCode(), sorted[2].CurrencyCode())
	}
}

func TestBalancePortfolioCurrenciesLexicographic(t *testing.T) {
	t.Parallel()

	p := NewBalancePortfolio()
	p.Set(money.New(1, 0, money.MustCurrencyCode("ZEC")))
	p.Set(money.New(1, 0, money.MustCurrencyCode("BTC")))
	p.Set(money.New(1, 0, money.MustCurrencyCode("ETH")))

	currencies := p.Currencies()
	want := []string{"BTC", "ETH", "ZEC"}
	for i, c := range currencies {
		if c.String() != want[i] {
			t.Errorf("currencies[%d] = %s, want %s", i, c, want[i])
		}
	}
}

func TestOrdersConstraintsNoConstraints(t *testing.T) {
	t.Parallel()

	var c OrdersConstraints
	if !c.NoConstraints() {
		t.Error("expected zero-value OrdersConstraints to match everything")
	}
	c.Cur1 = money.MustCurrencyCode("BTC")
	if !c.IsMarketOnlyDependent() {
		t.Error("expected currency-only constraint to be market-only-dependent")
	}
}

func TestDepositsConstraintsMatches(t *testing.T) {
	t.Parallel()

	c := DepositsConstraints{Cur: money.MustCurrencyCode("BTC")}
	now := time.Now()
	if c.Matches(money.MustCurrencyCode("ETH"), "dep1", now) {
		t.Error("expected currency mismatch to not match")
	}
	if !c.Matches(money.MustCurrencyCode("BTC"), "dep1", now) {
		t.Error("expected matching currency to match")
	}
}
