package api

import (
	"sync"
	"time"
)

const recentWindow = 200

// SnapshotProvider is what Handlers needs to build a Snapshot. Recorder
// (below) is the only implementation.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// Recorder aggregates account identities plus a bounded window of recent
// trade/withdraw/dust-sweep results into a pollable Snapshot. Grounded on
// the teacher's BuildSnapshot — "aggregate state from all components into
// one snapshot struct" — generalized from a single in-memory engine's
// per-market state to a rolling window of orchestrator call outcomes,
// since this module's unit of work is a one-shot operation rather than a
// continuously-updated market book.
type Recorder struct {
	dryRun bool

	mu       sync.Mutex
	accounts []AccountStatus
	trades   []TradeSummary
	withdraws []WithdrawSummary
	dustSweeps []DustSummary
}

// NewRecorder builds a Recorder for the given dry-run mode and set of
// configured accounts.
func NewRecorder(dryRun bool, accounts []AccountStatus) *Recorder {
	return &Recorder{dryRun: dryRun, accounts: accounts}
}

// RecordTrade appends a trade result, trimming the oldest entry once the
// window fills.
func (r *Recorder) RecordTrade(s TradeSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = appendBounded(r.trades, s)
}

// RecordWithdraw appends a withdraw result.
func (r *Recorder) RecordWithdraw(s WithdrawSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdraws = appendBounded(r.withdraws, s)
}

// RecordDustSweep appends a dust-sweep result.
func (r *Recorder) RecordDustSweep(s DustSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dustSweeps = appendBounded(r.dustSweeps, s)
}

func appendBounded[T any](slice []T, item T) []T {
	slice = append(slice, item)
	if len(slice) > recentWindow {
		slice = slice[len(slice)-recentWindow:]
	}
	return slice
}

// Snapshot returns a point-in-time copy of the recorder's state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Timestamp:        time.Now(),
		DryRun:           r.dryRun,
		Accounts:         append([]AccountStatus(nil), r.accounts...),
		RecentTrades:     append([]TradeSummary(nil), r.trades...),
		RecentWithdraws:  append([]WithdrawSummary(nil), r.withdraws...),
		RecentDustSweeps: append([]DustSummary(nil), r.dustSweeps...),
	}
}
