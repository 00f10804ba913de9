package market

import (
	"errors"
	"testing"

	"cct/internal/money"
)

func cc(t *testing.T, s string) money.CurrencyCode {
	t.Helper()
	c, err := money.NewCurrencyCode(s)
	if err != nil {
		t.Fatalf("NewCurrencyCode(%q): %v", s, err)
	}
	return c
}

func mk(t *testing.T, base, quote string) Market {
	t.Helper()
	m, err := New(cc(t, base), cc(t, quote))
	if err != nil {
		t.Fatalf("New(%s,%s): %v", base, quote, err)
	}
	return m
}

func synthetic(t *testing.T, base, quote string) Market {
	t.Helper()
	m, err := NewSynthetic(cc(t, base), cc(t, quote))
	if err != nil {
		t.Fatalf("NewSynthetic(%s,%s): %v", base, quote, err)
	}
	return m
}

func TestFindPathDirect(t *testing.T) {
	markets := []Market{mk(t, "BTC", "USD")}
	path, err := FindPath(markets, cc(t, "BTC"), cc(t, "USD"), false)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 1 || !path[0].Base().Equal(cc(t, "BTC")) {
		t.Errorf("path = %v, want single BTC-USD leg", path)
	}
}

func TestFindPathMultiHop(t *testing.T) {
	markets := []Market{
		mk(t, "BTC", "ETH"),
		mk(t, "ETH", "USD"),
	}
	path, err := FindPath(markets, cc(t, "BTC"), cc(t, "USD"), false)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("path length = %d, want 2", len(path))
	}
}

func TestFindPathNoPath(t *testing.T) {
	markets := []Market{mk(t, "BTC", "ETH")}
	_, err := FindPath(markets, cc(t, "BTC"), cc(t, "USD"), false)
	if !errors.Is(err, ErrNoPath) {
		t.Fatalf("err = %v, want ErrNoPath", err)
	}
}

func TestFindPathRejectsSameCurrency(t *testing.T) {
	markets := []Market{mk(t, "BTC", "USD")}
	_, err := FindPath(markets, cc(t, "BTC"), cc(t, "BTC"), false)
	if !errors.Is(err, ErrNoPath) {
		t.Fatalf("err = %v, want ErrNoPath", err)
	}
}

func TestFindPathExcludesSyntheticWhenNotAllowed(t *testing.T) {
	markets := []Market{
		synthetic(t, "BTC", "USD"),
		mk(t, "BTC", "ETH"),
		mk(t, "ETH", "EUR"),
		mk(t, "EUR", "USD"),
	}
	// With the synthetic bridge excluded, only the 3-hop real path remains.
	path, err := FindPath(markets, cc(t, "BTC"), cc(t, "USD"), false)
	if err != nil {
		t.Fatalf("FindPath with synthetic excluded: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("path = %v, want the 3-hop real path (synthetic bridge excluded)", path)
	}
	for _, m := range path {
		if m.IsSynthetic() {
			t.Errorf("path = %v, must not use the synthetic bridge when it is excluded", path)
		}
	}

	path, err = FindPath(markets, cc(t, "BTC"), cc(t, "USD"), true)
	if err != nil {
		t.Fatalf("FindPath with synthetic allowed: %v", err)
	}
	if len(path) != 1 || !path[0].IsSynthetic() {
		t.Errorf("path = %v, want the direct synthetic leg (shortest)", path)
	}
}

func TestFindPathPrefersFewerSyntheticHopsOnTie(t *testing.T) {
	// Two equal-length (2-hop) paths from BTC to USD: one through a real
	// ETH-USD market, one through a synthetic EUR-USD bridge. The real one
	// must win.
	markets := []Market{
		mk(t, "BTC", "ETH"),
		mk(t, "ETH", "USD"),
		mk(t, "BTC", "EUR"),
		synthetic(t, "EUR", "USD"),
	}
	path, err := FindPath(markets, cc(t, "BTC"), cc(t, "USD"), true)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("path length = %d, want 2", len(path))
	}
	for _, m := range path {
		if m.IsSynthetic() {
			t.Errorf("path = %v, should avoid the synthetic bridge when an equal-length real path exists", path)
		}
	}
}
