package hmacexchange

import (
	"fmt"

	"cct/internal/money"
)

// parseAmount parses a decimal wire string into an Amount tagged with cur.
func parseAmount(s string, cur money.CurrencyCode) (money.Amount, error) {
	parsed, err := money.Parse(s)
	if err != nil {
		return money.Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return money.New(parsed.Mantissa(), parsed.NbDecimals(), cur), nil
}

// formatAmount renders an Amount as a bare decimal string (no currency
// suffix), for request bodies.
func formatAmount(a money.Amount) string {
	full := a.String()
	cur := a.CurrencyCode()
	if cur.IsNeutral() {
		return full
	}
	suffix := " " + cur.String()
	if len(full) > len(suffix) && full[len(full)-len(suffix):] == suffix {
		return full[:len(full)-len(suffix)]
	}
	return full
}
