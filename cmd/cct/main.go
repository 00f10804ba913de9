// cct is the cross-exchange trading, withdrawal, and dust-sweeping client.
//
// Architecture:
//
//	main.go                       — entry point: loads config, builds one
//	                                PrivateAccount per configured exchange,
//	                                starts the optional status API and
//	                                per-account feeds, waits for SIGINT/SIGTERM
//	internal/orchestrat           — fans Trade/Withdraw/DustSweeper calls out
//	                                across the configured accounts
//	internal/adapter/hmacexchange — generic HMAC-signed REST adapter
//	internal/adapter/evmexchange  — HMAC adapter plus EIP-712 L1 credential
//	                                derivation, for EOA-authenticated exchanges
//	internal/adapter/feed         — optional WebSocket cache-invalidation push
//	internal/wallet               — trusted withdrawal destination book
//	internal/api                  — polled JSON status + Prometheus /metrics
//
// The command-line surface itself is intentionally thin (--config,
// --dry-run): driving individual trade/withdraw/dust-sweep intents is an
// external collaborator's job, not this binary's.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"cct/internal/account"
	"cct/internal/adapter/evmexchange"
	"cct/internal/adapter/feed"
	"cct/internal/adapter/hmacexchange"
	"cct/internal/api"
	"cct/internal/config"
	"cct/internal/metrics"
	"cct/internal/money"
	"cct/internal/orchestrat"
	"cct/internal/ratelimit"
	"cct/internal/wallet"
)

func main() {
	var cfgPath string
	var dryRun bool
	pflag.StringVar(&cfgPath, "config", "configs/config.yaml", "path to the YAML config file")
	pflag.BoolVar(&dryRun, "dry-run", false, "force dry-run mode regardless of config")
	pflag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	accounts := make([]account.PrivateAccount, 0, len(cfg.Accounts))
	statuses := make([]api.AccountStatus, 0, len(cfg.Accounts))
	var feeds []*feed.Feed

	for _, acc := range cfg.Accounts {
		built, f, err := buildAccount(context.Background(), acc, cfg.DryRun, m, logger)
		if err != nil {
			logger.Error("failed to build account", "exchange", acc.Exchange, "owner", acc.Owner, "error", err)
			os.Exit(1)
		}
		accounts = append(accounts, built)
		statuses = append(statuses, api.AccountStatus{Exchange: acc.Exchange, Owner: acc.Owner})
		if f != nil {
			feeds = append(feeds, f)
		}
	}

	if cfg.Wallet.TrustedAddressesFile != "" {
		if _, err := wallet.Load(cfg.Wallet.TrustedAddressesFile); err != nil {
			logger.Error("failed to load trusted-addresses file", "error", err)
			os.Exit(1)
		}
		logger.Info("trusted-addresses file loaded", "path", cfg.Wallet.TrustedAddressesFile)
	}

	// orch fans Trade/Withdraw/DustSweeper calls out across accounts; this
	// process only brings it up alongside the accounts it needs, the actual
	// intent submission surface is an external collaborator's job.
	orch := &orchestrat.Orchestrator{
		MaxParallelism:          cfg.Orchestrator.MaxParallelism,
		WithdrawRefreshInterval: cfg.Withdraw.RefreshInterval,
		DustMaxIterations:       cfg.Dust.MaxIterations,
		DustBuyStep:             cfg.Dust.BuyStep,
		DustMaxDustMultiplier:   cfg.Dust.MaxDustMultiplier,
	}
	logger.Debug("orchestrator ready", "max_parallelism", orch.MaxParallelism)

	recorder := api.NewRecorder(cfg.DryRun, statuses)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, f := range feeds {
		go func(f *feed.Feed) {
			if err := f.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("feed exited", "error", err)
			}
		}(f)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Port, recorder, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("status api started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders, withdrawals, or transfers will be sent")
	}
	logger.Info("cct started", "accounts", len(accounts), "dry_run", cfg.DryRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}
}

// buildAccount constructs one PrivateAccount per acc.Type, plus its
// optional feed.Feed if acc.FeedURL is set.
func buildAccount(ctx context.Context, acc config.AccountConfig, dryRun bool, m *metrics.Metrics, logger *slog.Logger) (account.PrivateAccount, *feed.Feed, error) {
	exchangeCfg, err := buildExchangeConfig(acc)
	if err != nil {
		return nil, nil, fmt.Errorf("exchange config: %w", err)
	}
	rl := ratelimit.Config{
		Order:  ratelimit.BucketConfig(acc.RateLimit.Order),
		Cancel: ratelimit.BucketConfig(acc.RateLimit.Cancel),
		Book:   ratelimit.BucketConfig(acc.RateLimit.Book),
	}

	var built *hmacexchange.Account
	switch acc.Type {
	case "hmac":
		client := hmacexchange.NewClient(hmacexchange.Config{
			Exchange: account.ExchangeName(acc.Exchange),
			Owner:    account.AccountOwner(acc.Owner),
			BaseURL:  acc.BaseURL,
			Credentials: hmacexchange.Credentials{
				APIKey:     acc.HMAC.APIKey,
				Secret:     acc.HMAC.Secret,
				Passphrase: acc.HMAC.Passphrase,
			},
			DryRun:     dryRun,
			Timeout:    acc.Timeout,
			RateLimit:  rl,
			MarketsTTL: acc.MarketsTTL,
			Logger:     logger,
		}, m)
		built = hmacexchange.NewAccount(client, account.AccountOwner(acc.Owner), exchangeCfg, acc.MarketsTTL)
	case "evm":
		built, err = evmexchange.NewAccount(ctx, evmexchange.Config{
			Exchange:      account.ExchangeName(acc.Exchange),
			Owner:         account.AccountOwner(acc.Owner),
			BaseURL:       acc.BaseURL,
			PrivateKeyHex: acc.EVM.PrivateKey,
			ChainID:       acc.EVM.ChainID,
			Credentials: hmacexchange.Credentials{
				APIKey:     acc.EVM.APIKey,
				Secret:     acc.EVM.Secret,
				Passphrase: acc.EVM.Passphrase,
			},
			DryRun:         dryRun,
			Timeout:        acc.Timeout,
			RateLimit:      rl,
			MarketsTTL:     acc.MarketsTTL,
			ExchangeConfig: exchangeCfg,
			Logger:         logger,
		}, m)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown account type %q", acc.Type)
	}

	var f *feed.Feed
	if acc.FeedURL != "" {
		f = feed.New(acc.FeedURL, invalidateFunc(built.InvalidateOrderBook), logger.With("exchange", acc.Exchange))
	}
	return built, f, nil
}

// invalidateFunc adapts a plain func(string) into a feed.Invalidator.
type invalidateFunc func(string)

func (f invalidateFunc) Invalidate(key string) { f(key) }

// buildExchangeConfig parses acc's dust thresholds ("<currency>: <amount>"
// pairs) into account.ExchangeConfig's typed form.
func buildExchangeConfig(acc config.AccountConfig) (account.ExchangeConfig, error) {
	thresholds := make(map[money.CurrencyCode]money.Amount, len(acc.DustThresholds))
	for cur, amountStr := range acc.DustThresholds {
		code, err := money.NewCurrencyCode(cur)
		if err != nil {
			return account.ExchangeConfig{}, fmt.Errorf("dust_thresholds: %w", err)
		}
		amt, err := money.Parse(amountStr + " " + cur)
		if err != nil {
			return account.ExchangeConfig{}, fmt.Errorf("dust_thresholds[%s]: %w", cur, err)
		}
		thresholds[code] = amt
	}
	return account.ExchangeConfig{
		DustThresholds:             thresholds,
		MultiTradeAllowedByDefault: acc.MultiTradeAllowedByDefault,
	}, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
