package account

import (
	"sort"
	"time"

	"cct/internal/money"
)

// closeMatchRatio is the maximum relative distance between a deposit's
// amount and the expected net amount still accepted as a match (spec.md
// §4.H.1, step 4).
const closeMatchRatio = 0.001

// recentDepositLookback bounds how far before the withdraw's initiated time
// a candidate deposit may have landed (spec.md §4.H.1, step 2).
const recentDepositLookback = 24 * time.Hour

// SelectClosestRecentDeposit picks the deposit on the destination side that
// most plausibly corresponds to a withdrawal expected to deliver
// expectedAmount, initiated at initiatedTime (spec.md §4.H.1). It is a
// shared helper for PrivateAccount.QueryWithdrawDelivery implementations
// that must correlate a withdrawal with the destination's deposit history,
// since no exchange API hands back that correlation directly.
//
// Ties in step 3 (equal distance from expectedAmount) are broken by
// DepositID, descending lexicographic order, after recency: this only
// matters for deposits that are also equally recent, which in practice
// means two deposits sharing both amount and timestamp down to the
// adapter's recorded precision.
func SelectClosestRecentDeposit(deposits []RecentDeposit, expectedAmount money.Amount, initiatedTime time.Time) (ReceivedWithdrawInfo, bool) {
	if exact := exactMatches(deposits, expectedAmount); len(exact) > 0 {
		best := exact[0]
		for _, d := range exact[1:] {
			if d.Time.After(best.Time) {
				best = d
			}
		}
		return toReceived(best), true
	}

	cutoff := initiatedTime.Add(-recentDepositLookback)
	candidates := make([]RecentDeposit, 0, len(deposits))
	for _, d := range deposits {
		if !d.Time.Before(cutoff) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return ReceivedWithdrawInfo{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di, erri := distance(candidates[i].Amount, expectedAmount)
		dj, errj := distance(candidates[j].Amount, expectedAmount)
		if erri != nil || errj != nil {
			return false
		}
		if c, err := di.Compare(dj); err == nil && c != 0 {
			return c < 0
		}
		if candidates[i].Time.Equal(candidates[j].Time) {
			return candidates[i].DepositID > candidates[j].DepositID
		}
		return candidates[i].Time.After(candidates[j].Time)
	})

	head := candidates[0]
	dist, err := distance(head.Amount, expectedAmount)
	if err != nil || expectedAmount.IsZero() {
		return ReceivedWithdrawInfo{}, false
	}
	ratio, err := dist.ToNeutral().Div(expectedAmount.ToNeutral())
	if err != nil {
		return ReceivedWithdrawInfo{}, false
	}
	threshold := money.New(closeMatchRatio*1_000_000, 6, money.Neutral)
	if c, err := ratio.Compare(threshold); err != nil || c > 0 {
		return ReceivedWithdrawInfo{}, false
	}
	return toReceived(head), true
}

func exactMatches(deposits []RecentDeposit, expected money.Amount) []RecentDeposit {
	var out []RecentDeposit
	for _, d := range deposits {
		if c, err := d.Amount.Compare(expected); err == nil && c == 0 {
			out = append(out, d)
		}
	}
	return out
}

// distance returns |a - b|, both expected to share a currency.
func distance(a, b money.Amount) (money.Amount, error) {
	diff, err := a.Sub(b)
	if err != nil {
		return money.Amount{}, err
	}
	if diff.Sign() < 0 {
		diff, err = diff.Mul(money.New(-1, 0, money.Neutral))
		if err != nil {
			return money.Amount{}, err
		}
	}
	return diff, nil
}

func toReceived(d RecentDeposit) ReceivedWithdrawInfo {
	return ReceivedWithdrawInfo{
		DepositID:         d.DepositID,
		NetReceivedAmount: d.Amount,
		ReceivedTime:      d.Time,
	}
}
