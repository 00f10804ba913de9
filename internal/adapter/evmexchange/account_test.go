package evmexchange

import (
	"context"
	"testing"
	"time"

	"cct/internal/account"
	"cct/internal/adapter/hmacexchange"
	"cct/internal/ratelimit"
)

func TestNewAccountSkipsDerivationWhenCredentialsPinned(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Exchange:      "simex",
		Owner:         "owner-1",
		BaseURL:       "https://example.invalid",
		PrivateKeyHex: testKey,
		ChainID:       137,
		Credentials:   hmacexchange.Credentials{APIKey: "k", Secret: "c2VjcmV0", Passphrase: "p"},
		DryRun:        true,
		RateLimit: ratelimit.Config{
			Order:  ratelimit.BucketConfig{Capacity: 10, RatePerSecond: 10},
			Cancel: ratelimit.BucketConfig{Capacity: 10, RatePerSecond: 10},
			Book:   ratelimit.BucketConfig{Capacity: 10, RatePerSecond: 10},
		},
		MarketsTTL: time.Minute,
	}

	acc, err := NewAccount(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	if acc.ExchangeName() != account.ExchangeName("simex") {
		t.Errorf("ExchangeName() = %q, want simex", acc.ExchangeName())
	}
	if !acc.IsDryRun() {
		t.Error("expected the wrapped hmacexchange.Account to carry DryRun through")
	}
}

func TestNewAccountRejectsUnparseablePrivateKeyWhenDerivationNeeded(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Exchange:      "simex",
		Owner:         "owner-1",
		BaseURL:       "https://example.invalid",
		PrivateKeyHex: "not-a-hex-key",
		ChainID:       137,
	}
	if _, err := NewAccount(context.Background(), cfg, nil); err == nil {
		t.Error("expected an error deriving credentials from an unparseable private key")
	}
}
