// Package account defines the consumed interfaces every exchange adapter
// implements (PublicMarketView, PrivateAccount) plus the data types that
// cross that boundary: balances, wallets, withdraw lifecycle snapshots, and
// query constraints (spec.md §3/§4.C/§4.D).
package account

import (
	"sort"
	"time"

	"cct/internal/money"
)

// ExchangeName identifies an exchange independent of which credentials are
// used to reach it.
type ExchangeName string

// AccountOwner identifies whose credentials a PrivateAccount authenticates
// as, distinguishing multiple accounts on the same exchange.
type AccountOwner string

// BalancePortfolio is a snapshot of balances across currencies, with at
// most one entry per currency (spec.md §3). The optional equivalent amount
// lets callers compare portfolios denominated in different currencies
// against a common reference.
type BalancePortfolio struct {
	amounts    map[money.CurrencyCode]money.Amount
	equivalent map[money.CurrencyCode]money.Amount // per-currency value in the reference currency
}

// NewBalancePortfolio builds an empty portfolio.
func NewBalancePortfolio() *BalancePortfolio {
	return &BalancePortfolio{
		amounts:    make(map[money.CurrencyCode]money.Amount),
		equivalent: make(map[money.CurrencyCode]money.Amount),
	}
}

// Set records the balance for a currency, replacing any prior entry.
func (p *BalancePortfolio) Set(amount money.Amount) {
	p.amounts[amount.CurrencyCode()] = amount
}

// SetEquivalent records amount's value in the reference currency, used only
// for SortedByEquivalent's ordering.
func (p *BalancePortfolio) SetEquivalent(cur money.CurrencyCode, equivalent money.Amount) {
	p.equivalent[cur] = equivalent
}

// Get returns the balance for cur, or the zero amount if absent.
func (p *BalancePortfolio) Get(cur money.CurrencyCode) (money.Amount, bool) {
	a, ok := p.amounts[cur]
	return a, ok
}

// Currencies returns the portfolio's currencies in a stable, lexicographic
// order — the "iteration order is by currency for JSON" invariant from
// spec.md §3.
func (p *BalancePortfolio) Currencies() []money.CurrencyCode {
	out := make([]money.CurrencyCode, 0, len(p.amounts))
	for c := range p.amounts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// SortedByEquivalent returns the portfolio's entries ordered by decreasing
// equivalent value — the report-ordering invariant from spec.md §3.
// Currencies with no recorded equivalent sort last, in currency-code order.
func (p *BalancePortfolio) SortedByEquivalent() []money.Amount {
	currencies := p.Currencies()
	sort.SliceStable(currencies, func(i, j int) bool {
		ei, iok := p.equivalent[currencies[i]]
		ej, jok := p.equivalent[currencies[j]]
		switch {
		case iok && jok:
			c, err := ei.Compare(ej)
			if err != nil {
				return false
			}
			return c > 0
		case iok:
			return true
		case jok:
			return false
		default:
			return false
		}
	})
	out := make([]money.Amount, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, p.amounts[c])
	}
	return out
}

// Wallet is a validated withdrawal destination: an exchange account's
// deposit address for a currency, validated against a trusted-addresses
// book at construction unless validation is disabled (spec.md §3, §4.J).
type Wallet struct {
	Exchange ExchangeName
	KeyName  string
	Currency money.CurrencyCode
	Address  string
	Tag      string
	Owner    AccountOwner
}

// InitiatedWithdrawInfo is the exchange's immediate response to
// launchWithdraw.
type InitiatedWithdrawInfo struct {
	ReceivingWallet    Wallet
	WithdrawID         string
	GrossEmittedAmount money.Amount
	InitiatedTime      time.Time
}

// WithdrawStatus is the sender-side lifecycle of a withdrawal.
type WithdrawStatus int

const (
	WithdrawInitial WithdrawStatus = iota
	WithdrawProcessing
	WithdrawSuccess
	WithdrawFailed
)

func (s WithdrawStatus) String() string {
	switch s {
	case WithdrawProcessing:
		return "processing"
	case WithdrawSuccess:
		return "success"
	case WithdrawFailed:
		return "failed"
	default:
		return "initial"
	}
}

// IsTerminal reports whether the status will never change again.
func (s WithdrawStatus) IsTerminal() bool {
	return s == WithdrawSuccess || s == WithdrawFailed
}

// SentWithdrawInfo is the source exchange's report of what actually left
// the account.
type SentWithdrawInfo struct {
	NetEmittedAmount money.Amount
	Fee              money.Amount
	Status           WithdrawStatus
}

// ReceivedWithdrawInfo is the matched deposit on the destination side.
type ReceivedWithdrawInfo struct {
	DepositID        string
	NetReceivedAmount money.Amount
	ReceivedTime      time.Time
}

// DeliveredWithdrawInfo is the terminal record of a completed withdrawal.
type DeliveredWithdrawInfo struct {
	Initiated InitiatedWithdrawInfo
	Received  ReceivedWithdrawInfo
}

// RecentDeposit is one entry in queryRecentDeposits' result: enough
// information for the closest-recent-deposit heuristic (spec.md §4.H.1).
type RecentDeposit struct {
	DepositID string
	Amount    money.Amount
	Time      time.Time
}

// WithdrawRecord is one entry in queryRecentWithdraws' result: the merged
// initiation+sender-status view the withdraw pipeline's CheckSender state
// looks up by WithdrawID (spec.md §4.H).
type WithdrawRecord struct {
	WithdrawID         string
	GrossEmittedAmount money.Amount
	InitiatedTime      time.Time
	NetEmittedAmount   money.Amount
	Fee                money.Amount
	Status             WithdrawStatus
}
