// Package config defines all configuration for the cross-exchange
// trading/withdrawal/dust-sweeping program. Config is loaded from a YAML
// file (default: configs/config.yaml) with sensitive per-account fields
// overridable via CCT_<EXCHANGE>_* environment variables, the same
// viper-new-plus-env-override shape the teacher uses for its own
// POLY_PRIVATE_KEY/POLY_API_KEY overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun       bool               `mapstructure:"dry_run"`
	Accounts     []AccountConfig    `mapstructure:"accounts"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Withdraw     WithdrawConfig     `mapstructure:"withdraw"`
	Dust         DustConfig         `mapstructure:"dust"`
	Wallet       WalletConfig       `mapstructure:"wallet"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	API          APIConfig          `mapstructure:"api"`
}

// AccountConfig describes one exchange account the program trades, withdraws
// from, and sweeps dust on. Type selects which adapter constructs it:
// "hmac" for a pre-issued API key triple (internal/adapter/hmacexchange),
// "evm" for an EOA-authenticated account that derives its L2 credentials via
// EIP-712 signing (internal/adapter/evmexchange).
type AccountConfig struct {
	Type       string          `mapstructure:"type"`
	Exchange   string          `mapstructure:"exchange"`
	Owner      string          `mapstructure:"owner"`
	BaseURL    string          `mapstructure:"base_url"`
	Timeout    time.Duration   `mapstructure:"timeout"`
	MarketsTTL time.Duration   `mapstructure:"markets_ttl"`
	// FeedURL optionally points at a WebSocket endpoint pushing
	// invalidation hints (internal/adapter/feed); empty disables it and
	// the adapter relies purely on MarketsTTL-driven polling.
	FeedURL   string          `mapstructure:"feed_url"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	HMAC      HMACConfig      `mapstructure:"hmac"`
	EVM       EVMConfig       `mapstructure:"evm"`

	MultiTradeAllowedByDefault bool              `mapstructure:"multi_trade_allowed_by_default"`
	DustThresholds             map[string]string `mapstructure:"dust_thresholds"`
}

// HMACConfig is the pre-issued API key triple for a "hmac"-type account.
type HMACConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Secret     string `mapstructure:"secret"`
	Passphrase string `mapstructure:"passphrase"`
}

// EVMConfig is the EOA signing key (and optional pre-derived credentials)
// for an "evm"-type account.
type EVMConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`
	APIKey     string `mapstructure:"api_key"`
	Secret     string `mapstructure:"secret"`
	Passphrase string `mapstructure:"passphrase"`
}

// RateLimitConfig is one account's published rate limits, grouped by
// request category (internal/ratelimit.Config).
type RateLimitConfig struct {
	Order  BucketConfig `mapstructure:"order"`
	Cancel BucketConfig `mapstructure:"cancel"`
	Book   BucketConfig `mapstructure:"book"`
}

// BucketConfig is one category's burst capacity and steady-state refill
// rate (internal/ratelimit.BucketConfig).
type BucketConfig struct {
	Capacity      float64 `mapstructure:"capacity"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// OrchestratorConfig bounds the fan-out worker pool (spec.md §4.G).
type OrchestratorConfig struct {
	MaxParallelism int `mapstructure:"max_parallelism"`
}

// WithdrawConfig tunes the withdraw pipeline's delivery-polling cadence
// (spec.md §4.H).
type WithdrawConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// DustConfig tunes the dust sweeper's priming-buy escalation (spec.md §4.I,
// the dust-multiplier-growth Open Question resolved in DESIGN.md).
type DustConfig struct {
	MaxIterations     int     `mapstructure:"max_iterations"`
	BuyStep           float64 `mapstructure:"buy_step"`
	MaxDustMultiplier float64 `mapstructure:"max_dust_multiplier"`
}

// WalletConfig points at the trusted-addresses YAML file
// (internal/wallet.Load).
type WalletConfig struct {
	TrustedAddressesFile string `mapstructure:"trusted_addresses_file"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the status/metrics HTTP server (internal/api).
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides. Sensitive
// per-account fields are overridden via CCT_<EXCHANGE>_API_KEY,
// CCT_<EXCHANGE>_SECRET, CCT_<EXCHANGE>_PASSPHRASE, and
// CCT_<EXCHANGE>_PRIVATE_KEY, where <EXCHANGE> is the account's Exchange
// field upper-cased — generalized from the teacher's single fixed
// POLY_PRIVATE_KEY/POLY_API_KEY/POLY_API_SECRET/POLY_PASSPHRASE overrides to
// a loop over however many accounts are configured (spec.md §2's
// multi-exchange model).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CCT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for i := range cfg.Accounts {
		applyEnvOverrides(&cfg.Accounts[i])
	}
	if os.Getenv("CCT_DRY_RUN") == "true" || os.Getenv("CCT_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func applyEnvOverrides(acc *AccountConfig) {
	prefix := "CCT_" + strings.ToUpper(acc.Exchange) + "_"
	if v := os.Getenv(prefix + "API_KEY"); v != "" {
		acc.HMAC.APIKey = v
		acc.EVM.APIKey = v
	}
	if v := os.Getenv(prefix + "SECRET"); v != "" {
		acc.HMAC.Secret = v
		acc.EVM.Secret = v
	}
	if v := os.Getenv(prefix + "PASSPHRASE"); v != "" {
		acc.HMAC.Passphrase = v
		acc.EVM.Passphrase = v
	}
	if v := os.Getenv(prefix + "PRIVATE_KEY"); v != "" {
		acc.EVM.PrivateKey = v
	}
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, acc := range c.Accounts {
		if acc.Exchange == "" {
			return fmt.Errorf("accounts[%d].exchange is required", i)
		}
		if acc.Owner == "" {
			return fmt.Errorf("accounts[%d].owner is required", i)
		}
		key := acc.Exchange + "/" + acc.Owner
		if seen[key] {
			return fmt.Errorf("accounts[%d]: duplicate exchange/owner pair %q", i, key)
		}
		seen[key] = true
		if acc.BaseURL == "" {
			return fmt.Errorf("accounts[%d].base_url is required", i)
		}
		switch acc.Type {
		case "hmac":
			if acc.HMAC.APIKey == "" || acc.HMAC.Secret == "" {
				return fmt.Errorf("accounts[%d]: hmac.api_key and hmac.secret are required for type \"hmac\"", i)
			}
		case "evm":
			if acc.EVM.PrivateKey == "" {
				return fmt.Errorf("accounts[%d]: evm.private_key is required for type \"evm\"", i)
			}
			if acc.EVM.ChainID == 0 {
				return fmt.Errorf("accounts[%d]: evm.chain_id is required for type \"evm\"", i)
			}
		default:
			return fmt.Errorf("accounts[%d]: type must be \"hmac\" or \"evm\", got %q", i, acc.Type)
		}
	}
	if c.Orchestrator.MaxParallelism < 0 {
		return fmt.Errorf("orchestrator.max_parallelism must be >= 0")
	}
	if c.API.Enabled && c.API.Port <= 0 {
		return fmt.Errorf("api.port must be > 0 when api.enabled is true")
	}
	return nil
}
