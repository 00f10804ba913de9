package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest decimal-count a MonetaryAmount may carry.
const MaxDecimals = 18

// Error kinds from spec.md §7. Wrapped with context via fmt.Errorf("...: %w", ErrX).
var (
	ErrArithmeticOverflow = errors.New("money: arithmetic overflow")
	ErrCurrencyMismatch   = errors.New("money: currency mismatch")
	ErrInvalidAmount      = errors.New("money: invalid amount")
)

// RoundingMode controls how a value's fractional remainder is resolved when
// its decimal count is reduced. Down truncates toward zero, Up rounds away
// from zero, Nearest rounds half-away-from-zero (spec.md §4.A: "when the
// discarded fractional is exactly 0.5 at the rounding position, magnitude
// increases").
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
	RoundNearest
)

// Amount is a fixed-point decimal value tagged with a currency: mantissa *
// 10^-decimals in the given currency. Construction always normalizes away
// trailing zero decimals so two values representing the same number compare
// equal by struct equality as well as by Compare.
type Amount struct {
	mantissa int64
	decimals uint8
	currency CurrencyCode
}

// New builds an Amount from an integer mantissa, decimal count, and
// currency, normalizing trailing zeros.
func New(mantissa int64, decimals uint8, cur CurrencyCode) Amount {
	return normalize(Amount{mantissa: mantissa, decimals: decimals, currency: cur})
}

// Zero returns the zero amount in the given currency.
func Zero(cur CurrencyCode) Amount { return Amount{currency: cur} }

func normalize(a Amount) Amount {
	for a.decimals > 0 && a.mantissa%10 == 0 {
		a.mantissa /= 10
		a.decimals--
	}
	return a
}

// Mantissa returns the raw integer mantissa at the amount's own decimal count.
func (a Amount) Mantissa() int64 { return a.mantissa }

// NbDecimals returns the amount's minimal decimal count.
func (a Amount) NbDecimals() uint8 { return a.decimals }

// CurrencyCode returns the amount's currency tag.
func (a Amount) CurrencyCode() CurrencyCode { return a.currency }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.mantissa == 0 }

// Sign returns -1, 0, or 1 per the sign of the mantissa.
func (a Amount) Sign() int {
	switch {
	case a.mantissa < 0:
		return -1
	case a.mantissa > 0:
		return 1
	default:
		return 0
	}
}

// ToNeutral strips the currency tag, yielding a scalar amount with the same
// numeric value. Used wherever the spec calls for dropping currency before a
// scalar multiplication/division.
func (a Amount) ToNeutral() Amount {
	return Amount{mantissa: a.mantissa, decimals: a.decimals, currency: Neutral}
}

func (a Amount) toDecimal() decimal.Decimal {
	return decimal.New(a.mantissa, -int32(a.decimals))
}

// fitMantissa rescales d (an exact decimal value) to at most `decimals`
// fractional places, truncating trailing decimals toward zero one at a time
// until the resulting mantissa fits in int64. This is the overflow-
// truncation rule from spec.md §4.A: it is always truncation, never the
// caller's rounding mode, because it only fires when the integer domain is
// exhausted.
func fitMantissa(d decimal.Decimal, decimals uint8) (int64, uint8, error) {
	if decimals > MaxDecimals {
		decimals = MaxDecimals
	}
	for {
		scaled := d.Shift(int32(decimals)).Truncate(0)
		if scaled.BigInt().IsInt64() {
			return scaled.BigInt().Int64(), decimals, nil
		}
		if decimals == 0 {
			return 0, 0, ErrArithmeticOverflow
		}
		decimals--
	}
}

func fromDecimal(d decimal.Decimal, decimals uint8, cur CurrencyCode) (Amount, error) {
	mantissa, finalDecimals, err := fitMantissa(d, decimals)
	if err != nil {
		return Amount{}, err
	}
	return normalize(Amount{mantissa: mantissa, decimals: finalDecimals, currency: cur}), nil
}

// Add returns a+b. Both must share a currency (including both neutral).
func (a Amount) Add(b Amount) (Amount, error) {
	if !a.currency.Equal(b.currency) {
		return Amount{}, fmt.Errorf("add %s + %s: %w", a, b, ErrCurrencyMismatch)
	}
	decimals := maxU8(a.decimals, b.decimals)
	return fromDecimal(a.toDecimal().Add(b.toDecimal()), decimals, a.currency)
}

// Sub returns a-b. Both must share a currency (including both neutral).
func (a Amount) Sub(b Amount) (Amount, error) {
	if !a.currency.Equal(b.currency) {
		return Amount{}, fmt.Errorf("sub %s - %s: %w", a, b, ErrCurrencyMismatch)
	}
	decimals := maxU8(a.decimals, b.decimals)
	return fromDecimal(a.toDecimal().Sub(b.toDecimal()), decimals, a.currency)
}

// Mul returns a*b. One side must be neutral, or both must share the same
// non-neutral currency (in which case the result is neutral, per spec.md
// §4.A's multiplication contract).
func (a Amount) Mul(b Amount) (Amount, error) {
	var resultCur CurrencyCode
	switch {
	case a.currency.IsNeutral() && b.currency.IsNeutral():
		resultCur = Neutral
	case a.currency.IsNeutral():
		resultCur = b.currency
	case b.currency.IsNeutral():
		resultCur = a.currency
	case a.currency.Equal(b.currency):
		resultCur = Neutral
	default:
		return Amount{}, fmt.Errorf("mul %s * %s: %w", a, b, ErrCurrencyMismatch)
	}
	decimals := minU8(a.decimals+b.decimals, MaxDecimals)
	return fromDecimal(a.toDecimal().Mul(b.toDecimal()), decimals, resultCur)
}

// Div returns a/b. Division by the same currency yields a neutral ratio;
// division by a neutral scalar preserves a's currency.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, fmt.Errorf("div %s / %s: %w", a, b, ErrInvalidAmount)
	}
	var resultCur CurrencyCode
	switch {
	case !a.currency.IsNeutral() && a.currency.Equal(b.currency):
		resultCur = Neutral
	case b.currency.IsNeutral():
		resultCur = a.currency
	default:
		return Amount{}, fmt.Errorf("div %s / %s: %w", a, b, ErrCurrencyMismatch)
	}
	decimals := minU8(a.decimals+b.decimals+2, MaxDecimals)
	quotient := a.toDecimal().DivRound(b.toDecimal(), int32(decimals)+2)
	return fromDecimal(quotient, decimals, resultCur)
}

// Round rescales the amount to the given decimal count using mode. It never
// fails: reducing decimals can only shrink the mantissa's magnitude.
func (a Amount) Round(decimals uint8, mode RoundingMode) Amount {
	if decimals >= a.decimals {
		v, _, _ := fitMantissa(a.toDecimal(), decimals)
		return normalize(Amount{mantissa: v, decimals: decimals, currency: a.currency})
	}
	d := a.toDecimal()
	var rounded decimal.Decimal
	switch mode {
	case RoundUp:
		rounded = roundAwayFromZero(d, int32(decimals))
	case RoundNearest:
		rounded = d.Round(int32(decimals))
	default: // RoundDown: truncate toward zero
		rounded = d.Truncate(int32(decimals))
	}
	v, finalDecimals, _ := fitMantissa(rounded, decimals)
	return normalize(Amount{mantissa: v, decimals: finalDecimals, currency: a.currency})
}

func roundAwayFromZero(d decimal.Decimal, decimals int32) decimal.Decimal {
	truncated := d.Truncate(decimals)
	if truncated.Equal(d) {
		return truncated
	}
	step := decimal.New(1, -decimals)
	if d.IsNegative() {
		return truncated.Sub(step)
	}
	return truncated.Add(step)
}

// Truncate drops decimals beyond the given count, always toward zero.
func (a Amount) Truncate(decimals uint8) Amount {
	return a.Round(decimals, RoundDown)
}

// RoundToStep rounds the amount to the nearest multiple of step (itself a
// MonetaryAmount, e.g. a market's price tick size), using mode to resolve
// the remainder. step must be nonzero and in the same currency as a, or
// neutral.
func (a Amount) RoundToStep(step Amount, mode RoundingMode) (Amount, error) {
	if step.IsZero() {
		return Amount{}, fmt.Errorf("round to step %s: %w", step, ErrInvalidAmount)
	}
	if !step.currency.IsNeutral() && !step.currency.Equal(a.currency) {
		return Amount{}, fmt.Errorf("round to step %s against %s: %w", step, a, ErrCurrencyMismatch)
	}
	ratio := a.toDecimal().Div(step.toDecimal())
	var q decimal.Decimal
	switch mode {
	case RoundUp:
		q = roundAwayFromZero(ratio, 0)
	case RoundDown:
		q = ratio.Truncate(0)
	default:
		q = ratio.Round(0)
	}
	decimals := maxU8(a.decimals, step.decimals)
	return fromDecimal(q.Mul(step.toDecimal()), decimals, a.currency)
}

// Compare orders two amounts of the same currency. It returns an error for
// mismatched, non-neutral currencies.
func (a Amount) Compare(b Amount) (int, error) {
	if !a.currency.Equal(b.currency) {
		return 0, fmt.Errorf("compare %s vs %s: %w", a, b, ErrCurrencyMismatch)
	}
	return a.toDecimal().Cmp(b.toDecimal()), nil
}

// LessThan is a convenience wrapper around Compare for the common case; it
// panics on currency mismatch, so only use it once currencies are known to
// agree (e.g. within a single market's price ladder).
func (a Amount) LessThan(b Amount) bool {
	c, err := a.Compare(b)
	if err != nil {
		panic(err)
	}
	return c < 0
}

// IsCloseTo reports whether a and b are within relTol of each other
// relative to the larger magnitude: |a-b| <= relTol * max(|a|,|b|). Both
// must share a currency (or both be neutral); a mismatch reports false.
func (a Amount) IsCloseTo(b Amount, relTol float64) bool {
	if !a.currency.Equal(b.currency) {
		return false
	}
	diff := a.toDecimal().Sub(b.toDecimal()).Abs()
	amax := a.toDecimal().Abs()
	bmax := b.toDecimal().Abs()
	if bmax.GreaterThan(amax) {
		amax = bmax
	}
	if amax.IsZero() {
		return diff.IsZero()
	}
	tol := amax.Mul(decimal.NewFromFloat(relTol))
	return !diff.GreaterThan(tol)
}

// MantissaAt rescales the amount to the requested decimal count, returning
// an error if widening the mantissa would overflow int64.
func (a Amount) MantissaAt(decimals uint8) (int64, error) {
	v, final, err := fitMantissa(a.toDecimal(), decimals)
	if err != nil {
		return 0, err
	}
	if final != decimals {
		return 0, fmt.Errorf("rescale %s to %d decimals: %w", a, decimals, ErrArithmeticOverflow)
	}
	return v, nil
}

// String renders "<value> <currency>", or just the value for neutral amounts.
func (a Amount) String() string {
	s := a.toDecimal().StringFixed(int32(a.decimals))
	if a.currency.IsNeutral() {
		return s
	}
	return s + " " + a.currency.String()
}

// Parse reads a MonetaryAmount from text: optional leading sign, optional
// whitespace, digits, optional decimal point and fractional digits,
// optional trailing whitespace-separated currency token. If the integer
// part cannot fit in int64 even after maximal decimal truncation, parsing
// fails with ErrArithmeticOverflow.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("parse %q: %w", s, ErrInvalidAmount)
	}
	numPart := s
	curPart := ""
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		numPart = strings.TrimSpace(s[:idx])
		curPart = strings.TrimSpace(s[idx+1:])
	}
	d, err := decimal.NewFromString(numPart)
	if err != nil {
		return Amount{}, fmt.Errorf("parse %q: %w", s, ErrInvalidAmount)
	}
	var cur CurrencyCode
	if curPart != "" {
		cur, err = NewCurrencyCode(curPart)
		if err != nil {
			return Amount{}, err
		}
	}
	decimals := uint8(0)
	if d.Exponent() < 0 {
		decimals = uint8(-d.Exponent())
	}
	return fromDecimal(d, decimals, cur)
}

// NewFromFloat builds an Amount from an IEEE double, rounding to the
// requested decimal precision using mode.
func NewFromFloat(f float64, decimals uint8, mode RoundingMode, cur CurrencyCode) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Amount{}, fmt.Errorf("from float %v: %w", f, ErrInvalidAmount)
	}
	d := decimal.NewFromFloat(f)
	var rounded decimal.Decimal
	switch mode {
	case RoundUp:
		rounded = roundAwayFromZero(d, int32(decimals))
	case RoundDown:
		rounded = d.Truncate(int32(decimals))
	default:
		rounded = d.Round(int32(decimals))
	}
	return fromDecimal(rounded, decimals, cur)
}

// Float64 converts the amount to a float64 (lossy for very large mantissas).
func (a Amount) Float64() float64 {
	f, _ := a.toDecimal().Float64()
	return f
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
