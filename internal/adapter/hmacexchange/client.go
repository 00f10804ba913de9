// Package hmacexchange is a generic REST exchange adapter implementing
// account.PublicMarketView/account.PrivateAccount (spec.md §4.C/§4.D):
// spec.md explicitly keeps "per-exchange HTTP transport, request signing,
// and JSON parsing" out of the core's scope, so this package is not built
// against one specific named exchange's exact endpoint shapes. It is
// grounded on the teacher's internal/exchange/client.go's resty setup,
// retry policy, dry-run bypass, and rate-limit/sign-then-call pattern —
// generalized from Polymarket's CLOB endpoints to a conventional
// REST-with-HMAC-headers shape (GET for market data, POST/DELETE for
// order and withdraw actions) that a caller configures per exchange via
// Config.BaseURL.
package hmacexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"cct/internal/account"
	"cct/internal/cache"
	"cct/internal/market"
	"cct/internal/metrics"
	"cct/internal/ratelimit"
)

// ErrRequestFailed wraps any non-2xx response from the exchange.
var ErrRequestFailed = errors.New("hmacexchange: request failed")

// Config configures one exchange account's REST adapter.
type Config struct {
	Exchange    account.ExchangeName
	Owner       account.AccountOwner
	BaseURL     string
	Credentials Credentials
	DryRun      bool
	Timeout     time.Duration
	RateLimit   ratelimit.Config
	MarketsTTL  time.Duration // TradableMarkets cache TTL; zero effectively disables caching
	Logger      *slog.Logger
}

// Client is the low-level signed-HTTP layer: one resty client, one rate
// limiter, and the metrics wiring every higher-level method shares.
// Account (account.go) builds account.PublicMarketView/PrivateAccount on
// top of it.
type Client struct {
	http     *resty.Client
	creds    Credentials
	rl       *ratelimit.Limiter
	dryRun   bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
	exchange account.ExchangeName
}

// NewClient builds a Client. m may be nil, in which case no instrumentation
// is recorded — callers that haven't wired a shared registry yet (unit
// tests, a single ad-hoc script) aren't forced to build one just to satisfy
// this constructor.
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:     h,
		creds:    cfg.Credentials,
		rl:       ratelimit.New(cfg.RateLimit),
		dryRun:   cfg.DryRun,
		logger:   logger,
		metrics:  m,
		exchange: cfg.Exchange,
	}
}

// IsDryRun reports whether this client is configured to never send a live
// mutating request (PlaceOrder, CancelOrder, LaunchWithdraw).
func (c *Client) IsDryRun() bool { return c.dryRun }

// call issues a signed request against path, waiting on the given
// rate-limit bucket first. Dry-run callers never reach this method for
// mutating actions; they short-circuit in account.go instead, matching the
// teacher's PostOrders/CancelOrders dry-run branch.
func (c *Client) call(ctx context.Context, bucket *ratelimit.TokenBucket, method, path string, body, out interface{}) error {
	if err := c.waitAndObserve(ctx, bucket); err != nil {
		return err
	}

	req := c.http.R().SetContext(ctx)
	bodyStr := ""
	if body != nil {
		req.SetBody(body)
		if b, err := json.Marshal(body); err == nil {
			bodyStr = string(b)
		}
	}
	if out != nil {
		req.SetResult(out)
	}

	h, err := headers(c.creds, method, path, bodyStr)
	if err != nil {
		return fmt.Errorf("build request headers: %w", err)
	}
	req.SetHeaders(h)

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: %w: status %d: %s", method, path, ErrRequestFailed, resp.StatusCode(), resp.String())
	}
	return nil
}

// unauthenticatedGet performs a GET with no signing, for public endpoints
// (order book, market list) that don't require credentials.
func (c *Client) unauthenticatedGet(ctx context.Context, bucket *ratelimit.TokenBucket, path string, out interface{}) error {
	if err := c.waitAndObserve(ctx, bucket); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("GET %s: %w: status %d: %s", path, ErrRequestFailed, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) waitAndObserve(ctx context.Context, bucket *ratelimit.TokenBucket) error {
	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ObserveRateLimitWait(string(c.exchange), c.rl.CategoryOf(bucket), time.Since(start))
	}
	return nil
}

// Account is a single exchange account's adapter: a Client plus the market
// cache and config needed to satisfy account.PublicMarketView/PrivateAccount.
type Account struct {
	*Client
	owner       account.AccountOwner
	marketCache *cache.Cache[struct{}, []market.Market]
	bookCache   *cache.Cache[string, *market.OrderBook]
	cfg         account.ExchangeConfig
}

const (
	defaultBookTTL  = 2 * time.Second
	cachedBookDepth = 100 // ladder depth fetched for every cache entry, independent of a caller's requested depth
)

// NewAccount wraps client into a full account.PrivateAccount, fetching and
// caching TradableMarkets for marketsTTL (near-zero TTLs effectively
// disable caching: every call refetches). Order books are cached keyed by
// mkt.String() against cfg.OrderBookRefreshFrequency (defaultBookTTL if
// unset) — one entry per market regardless of a caller's requested depth,
// since the cache always fetches cachedBookDepth levels. InvalidateOrderBook
// lets an internal/adapter/feed push evict an entry early.
func NewAccount(client *Client, owner account.AccountOwner, cfg account.ExchangeConfig, marketsTTL time.Duration) *Account {
	a := &Account{Client: client, owner: owner, cfg: cfg}
	a.marketCache = cache.New[struct{}, []market.Market](marketsTTL, func(ctx context.Context, _ struct{}) ([]market.Market, error) {
		return a.fetchTradableMarkets(ctx)
	})
	bookTTL := cfg.OrderBookRefreshFrequency
	if bookTTL <= 0 {
		bookTTL = defaultBookTTL
	}
	a.bookCache = cache.New[string, *market.OrderBook](bookTTL, func(ctx context.Context, key string) (*market.OrderBook, error) {
		mkt, ok := a.marketByKey(ctx, key)
		if !ok {
			return nil, fmt.Errorf("hmacexchange: unknown market key %q", key)
		}
		return a.fetchOrderBook(ctx, mkt, cachedBookDepth)
	})
	return a
}

// marketByKey resolves a cache key (mkt.String()) back to the market.Market
// it names, by matching against the account's own tradable market list.
func (a *Account) marketByKey(ctx context.Context, key string) (market.Market, bool) {
	markets, err := a.TradableMarkets(ctx)
	if err != nil {
		return market.Market{}, false
	}
	for _, m := range markets {
		if m.String() == key {
			return m, true
		}
	}
	return market.Market{}, false
}

// InvalidateOrderBook evicts the cached order book for mkt, forcing the
// next OrderBook call to refetch. Satisfies internal/adapter/feed.Invalidator
// when bound via a thin wrapper keyed on mkt.String().
func (a *Account) InvalidateOrderBook(key string) {
	a.bookCache.Invalidate(key)
}

var _ account.PrivateAccount = (*Account)(nil)
