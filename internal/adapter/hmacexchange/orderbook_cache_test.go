package hmacexchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cct/internal/account"
	"cct/internal/ratelimit"
)

func newTestServerAccount(t *testing.T, bookHits *int32) (*Account, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/markets":
			json.NewEncoder(w).Encode(marketsResponse{Markets: []wireMarket{{Base: "BTC", Quote: "USD"}}})
		case "/v1/orderbook":
			atomic.AddInt32(bookHits, 1)
			json.NewEncoder(w).Encode(orderBookResponse{
				Bids: []wireOrderBookLine{{Price: "100", Amount: "1"}},
				Asks: []wireOrderBookLine{{Price: "101", Amount: "1"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	client := NewClient(Config{
		Exchange: "simex",
		BaseURL:  server.URL,
		RateLimit: ratelimit.Config{
			Order:  ratelimit.BucketConfig{Capacity: 10, RatePerSecond: 10},
			Cancel: ratelimit.BucketConfig{Capacity: 10, RatePerSecond: 10},
			Book:   ratelimit.BucketConfig{Capacity: 10, RatePerSecond: 10},
		},
	}, nil)
	acc := NewAccount(client, "owner-1", account.ExchangeConfig{}, time.Minute)
	return acc, server
}

func TestOrderBookServesFromCacheUntilInvalidated(t *testing.T) {
	t.Parallel()
	var hits int32
	acc, server := newTestServerAccount(t, &hits)
	defer server.Close()

	mkt := mkMarket(t, "BTC", "USD")
	ctx := context.Background()

	if _, err := acc.OrderBook(ctx, mkt, 10); err != nil {
		t.Fatalf("OrderBook (1st): %v", err)
	}
	if _, err := acc.OrderBook(ctx, mkt, 10); err != nil {
		t.Fatalf("OrderBook (2nd): %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("orderbook requests = %d, want 1 (served from cache)", got)
	}

	acc.InvalidateOrderBook(mkt.String())

	if _, err := acc.OrderBook(ctx, mkt, 10); err != nil {
		t.Fatalf("OrderBook (after invalidate): %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("orderbook requests after invalidate = %d, want 2 (refetched)", got)
	}
}
