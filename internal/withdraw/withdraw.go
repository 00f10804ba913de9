// Package withdraw drives a withdrawal from one exchange account to another
// through its full lifecycle: preflight checks, initiation, and (for
// synchronous requests) the CheckSender/CheckReceiver/Terminate polling loop
// that confirms the funds actually arrived (spec.md §4.H).
//
// The polling loop's shape — an explicit state enum driving a plain for-loop
// with a sleep between cycles, no async/await machinery — is grounded on the
// teacher's risk.Manager.Run ticker loop, adapted from "recompute aggregate
// risk on every tick" to "advance a single withdrawal's state on every
// tick".
package withdraw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cct/internal/account"
	"cct/internal/money"
	"cct/internal/trade"
)

// ErrNotWithdrawable is returned when the source account doesn't list cur
// among its tradable currencies.
var ErrNotWithdrawable = errors.New("withdraw: currency not withdrawable from source account")

// ErrNotDepositable is returned when the destination account doesn't list
// cur among its tradable currencies.
var ErrNotDepositable = errors.New("withdraw: currency not depositable to destination account")

// ErrWithdrawFailed is returned when the source exchange reports the
// withdrawal failed, was rejected, or was canceled.
var ErrWithdrawFailed = errors.New("withdraw: sender reported a terminal failure")

const defaultRefreshInterval = 30 * time.Second

// state is the CheckSender/CheckReceiver/Terminate state machine (spec.md
// §4.H).
type state int

const (
	checkSender state = iota
	checkReceiver
	terminate
)

// Pipeline drives withdrawals between two PrivateAccount instances.
type Pipeline struct {
	// RefreshInterval overrides defaultRefreshInterval when nonzero.
	RefreshInterval time.Duration
	// Now overrides time.Now, for deterministic tests.
	Now func() time.Time
}

func (p *Pipeline) refreshInterval() time.Duration {
	if p.RefreshInterval > 0 {
		return p.RefreshInterval
	}
	return defaultRefreshInterval
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run executes the full withdraw pipeline (spec.md §4.H): preflight,
// launchWithdraw, and — for a synchronous request — the polling loop through
// to a DeliveredWithdrawInfo. An asynchronous request returns immediately
// after initiation with an empty ReceivedWithdrawInfo.
func (p *Pipeline) Run(ctx context.Context, gross money.Amount, isPercentage bool, from, to account.PrivateAccount, toWallet account.Wallet, opts trade.Options) (account.DeliveredWithdrawInfo, error) {
	cur := toWallet.Currency

	if err := preflight(ctx, cur, from, to); err != nil {
		return account.DeliveredWithdrawInfo{}, err
	}

	if isPercentage {
		balance, err := from.QueryAccountBalance(ctx, account.BalanceOptions{})
		if err != nil {
			return account.DeliveredWithdrawInfo{}, fmt.Errorf("withdraw: query balance: %w", err)
		}
		avail, ok := balance.Get(cur)
		if !ok {
			avail = money.Zero(cur)
		}
		gross, err = applyPercentage(avail, gross)
		if err != nil {
			return account.DeliveredWithdrawInfo{}, fmt.Errorf("withdraw: apply percentage: %w", err)
		}
	}

	initiated, err := from.LaunchWithdraw(ctx, gross, toWallet)
	if err != nil {
		return account.DeliveredWithdrawInfo{}, fmt.Errorf("withdraw: launch: %w", err)
	}

	if opts.SyncPolicy() == trade.Asynchronous {
		return account.DeliveredWithdrawInfo{Initiated: initiated}, nil
	}

	return p.syncLoop(ctx, initiated, from, to, cur)
}

// applyPercentage returns avail * (percent/100), preserving avail's
// currency: percent is a neutral ratio, and Mul keeps the non-neutral side's
// currency when the other operand is neutral (spec.md §4.A's Mul contract).
func applyPercentage(avail, percent money.Amount) (money.Amount, error) {
	ratio, err := percent.ToNeutral().Div(money.New(100, 0, money.Neutral))
	if err != nil {
		return money.Amount{}, err
	}
	return avail.Mul(ratio)
}

func preflight(ctx context.Context, cur money.CurrencyCode, from, to account.PrivateAccount) error {
	fromCurrencies, err := from.QueryTradableCurrencies(ctx)
	if err != nil {
		return fmt.Errorf("withdraw: query source currencies: %w", err)
	}
	if !containsCurrency(fromCurrencies, cur) {
		return fmt.Errorf("%s: %w", cur, ErrNotWithdrawable)
	}

	toCurrencies, err := to.QueryTradableCurrencies(ctx)
	if err != nil {
		return fmt.Errorf("withdraw: query destination currencies: %w", err)
	}
	if !containsCurrency(toCurrencies, cur) {
		return fmt.Errorf("%s: %w", cur, ErrNotDepositable)
	}
	return nil
}

func containsCurrency(currencies []money.CurrencyCode, cur money.CurrencyCode) bool {
	for _, c := range currencies {
		if c.Equal(cur) {
			return true
		}
	}
	return false
}

// syncLoop drives CheckSender -> CheckReceiver -> Terminate to completion.
// It has no inner deadline of its own: the caller bounds total time via ctx
// (spec.md §4.H: "the loop itself has no inner deadline").
func (p *Pipeline) syncLoop(ctx context.Context, initiated account.InitiatedWithdrawInfo, from, to account.PrivateAccount, cur money.CurrencyCode) (account.DeliveredWithdrawInfo, error) {
	st := checkSender
	var sent account.SentWithdrawInfo
	var received account.ReceivedWithdrawInfo

	for {
		select {
		case <-ctx.Done():
			return account.DeliveredWithdrawInfo{Initiated: initiated, Received: received}, ctx.Err()
		case <-time.After(p.refreshInterval()):
		}

		switch st {
		case checkSender:
			record, ok, err := lookupWithdraw(ctx, from, cur, initiated.WithdrawID)
			if err != nil {
				return account.DeliveredWithdrawInfo{}, fmt.Errorf("withdraw: query recent withdraws: %w", err)
			}
			if !ok {
				continue
			}
			sent = account.SentWithdrawInfo{
				NetEmittedAmount: record.NetEmittedAmount,
				Fee:              record.Fee,
				Status:           record.Status,
			}
			switch sent.Status {
			case account.WithdrawSuccess:
				st = checkReceiver
			case account.WithdrawFailed:
				return account.DeliveredWithdrawInfo{}, fmt.Errorf("withdraw %s: %w", initiated.WithdrawID, ErrWithdrawFailed)
			}

		case checkReceiver:
			delivered, ok, err := to.QueryWithdrawDelivery(ctx, initiated, sent)
			if err != nil {
				return account.DeliveredWithdrawInfo{}, fmt.Errorf("withdraw: query delivery: %w", err)
			}
			if !ok {
				continue
			}
			received = delivered
			st = terminate

		case terminate:
			return account.DeliveredWithdrawInfo{Initiated: initiated, Received: received}, nil
		}
	}
}

func lookupWithdraw(ctx context.Context, from account.PrivateAccount, cur money.CurrencyCode, withdrawID string) (account.WithdrawRecord, bool, error) {
	records, err := from.QueryRecentWithdraws(ctx, account.WithdrawsConstraints{
		Cur:         cur,
		WithdrawIDs: map[string]struct{}{withdrawID: {}},
	})
	if err != nil {
		return account.WithdrawRecord{}, false, err
	}
	for _, r := range records {
		if r.WithdrawID == withdrawID {
			return r, true, nil
		}
	}
	return account.WithdrawRecord{}, false, nil
}
