// Package wallet implements the trusted-address book that validates every
// withdrawal destination before a Wallet is constructed (spec.md §3, §4.J).
//
// The book is a read-only-after-load YAML index, grounded on the teacher's
// internal/store/store.go file-backed persistence: where store.go atomically
// writes and re-reads per-market JSON position snapshots, Load reads one
// hand-edited YAML file once at startup and never writes it back — an
// operator's trusted-address list isn't state the program produces, so there
// is nothing here for store.go's write-tmp-then-rename half to do.
package wallet

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cct/internal/account"
	"cct/internal/money"
)

// ErrUntrusted is returned when a (exchange, key, currency) triple has no
// entry in the trusted-address book, or the candidate address/tag doesn't
// match the entry on file.
var ErrUntrusted = errors.New("wallet: address not in trusted-addresses file")

// entry is the book's on-disk shape: one trusted destination per currency
// per (exchange, key).
type entry struct {
	Exchange string `yaml:"exchange"`
	KeyName  string `yaml:"key_name"`
	Currency string `yaml:"currency"`
	Address  string `yaml:"address"`
	Tag      string `yaml:"tag"`
}

type key struct {
	exchange account.ExchangeName
	keyName  string
	currency money.CurrencyCode
}

// Book is a loaded trusted-address file, queryable by
// (ExchangeName, keyName, CurrencyCode).
type Book struct {
	entries map[key]entry
}

// Load reads and parses a trusted-addresses YAML file. The expected shape is
// a top-level "wallets" list of entries, each naming the exchange, the
// credential key it applies to, the currency, and the trusted address (plus
// an optional destination tag/memo).
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read trusted-addresses file: %w", err)
	}

	var doc struct {
		Wallets []entry `yaml:"wallets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("wallet: parse trusted-addresses file: %w", err)
	}

	b := &Book{entries: make(map[key]entry, len(doc.Wallets))}
	for _, e := range doc.Wallets {
		cur, err := money.NewCurrencyCode(e.Currency)
		if err != nil {
			return nil, fmt.Errorf("wallet: entry for %s/%s: %w", e.Exchange, e.KeyName, err)
		}
		b.entries[key{exchange: account.ExchangeName(e.Exchange), keyName: e.KeyName, currency: cur}] = e
	}
	return b, nil
}

// lookup returns the trusted entry for (exchange, keyName, currency), if any.
func (b *Book) lookup(exchange account.ExchangeName, keyName string, currency money.CurrencyCode) (entry, bool) {
	if b == nil {
		return entry{}, false
	}
	e, ok := b.entries[key{exchange: exchange, keyName: keyName, currency: currency}]
	return e, ok
}

// New builds a validated account.Wallet: construction fails iff no trusted
// entry matches (exchange, keyName, currency, address, and the tag when the
// entry has one) — unless validation
// is disabled by the notrustedaddresscheck build tag, in which case the
// candidate fields pass straight through (spec.md §3, §4.J).
func New(book *Book, exchange account.ExchangeName, keyName string, currency money.CurrencyCode, address, tag string, owner account.AccountOwner) (account.Wallet, error) {
	if err := validate(book, exchange, keyName, currency, address, tag); err != nil {
		return account.Wallet{}, err
	}
	return account.Wallet{
		Exchange: exchange,
		KeyName:  keyName,
		Currency: currency,
		Address:  address,
		Tag:      tag,
		Owner:    owner,
	}, nil
}
