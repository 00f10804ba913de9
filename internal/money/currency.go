// Package money implements exact fixed-point monetary arithmetic over a
// currency-tagged, overflow-truncating int64 mantissa, plus the currency
// code type that tags every value.
package money

import (
	"errors"
	"strings"
)

// MaxCurrencyCodeLen is the maximum number of ASCII characters a CurrencyCode
// may hold.
const MaxCurrencyCodeLen = 10

// ErrCurrencyCodeTooLong is returned when a code exceeds MaxCurrencyCodeLen.
var ErrCurrencyCodeTooLong = errors.New("money: currency code too long")

// CurrencyCode is a compact, fixed-width currency identifier. It is
// comparable by value and immutable once constructed. The zero value is the
// "neutral" currency, used for scalar quantities produced by ToNeutral() or
// by multiplying two same-currency amounts together.
type CurrencyCode struct {
	raw [MaxCurrencyCodeLen]byte
	len uint8
}

// Neutral is the distinguished currency code denoting a scalar/unknown unit.
var Neutral = CurrencyCode{}

// NewCurrencyCode builds a CurrencyCode from a string, upper-casing it.
// It fails if the string exceeds MaxCurrencyCodeLen ASCII characters.
func NewCurrencyCode(s string) (CurrencyCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > MaxCurrencyCodeLen {
		return CurrencyCode{}, ErrCurrencyCodeTooLong
	}
	var c CurrencyCode
	copy(c.raw[:], s)
	c.len = uint8(len(s))
	return c, nil
}

// MustCurrencyCode is NewCurrencyCode but panics on error; intended for
// constant-like call sites (tests, static config) where the code is known
// good at compile time.
func MustCurrencyCode(s string) CurrencyCode {
	c, err := NewCurrencyCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the code's textual form, or "" for the neutral code.
func (c CurrencyCode) String() string {
	return string(c.raw[:c.len])
}

// IsNeutral reports whether c is the neutral (scalar) currency.
func (c CurrencyCode) IsNeutral() bool {
	return c.len == 0
}

// Equal reports exact equality between two currency codes.
func (c CurrencyCode) Equal(o CurrencyCode) bool {
	return c.len == o.len && c.raw == o.raw
}
