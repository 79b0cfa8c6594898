// Package core provides the allocation domain: milliunit money math,
// allocation rules and the bucket allocation engine.
//
// All money amounts are integer milliunits (1/1000 of a currency unit)
// so the allocation math never touches floating point.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Milliunits int64
}

var ErrInvalidAmount = errors.New("invalid amount")

// ParseDecimalToMilliunits converts a decimal currency string to milliunits.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// performs half-up rounding on the fourth decimal place. Negative values
// are rejected; zero is allowed (a zero-value rule is legal).
//
// Examples:
//   ParseDecimalToMilliunits("30")     -> 30000, nil
//   ParseDecimalToMilliunits("12,34")  -> 12340, nil
//   ParseDecimalToMilliunits("1.2345") -> 1235, nil (rounds up)
func ParseDecimalToMilliunits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	return d.Shift(3).Round(0).IntPart(), nil
}

// ParseBalanceToMilliunits parses a decimal balance string. Unlike rule
// values, balances may be negative; the allocation engine treats a
// negative balance as zero and the sign is kept for display.
func ParseBalanceToMilliunits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	milliunits, err := ParseDecimalToMilliunits(strings.TrimPrefix(s, "-"))
	if err != nil {
		return 0, err
	}
	if neg {
		return -milliunits, nil
	}
	return milliunits, nil
}

// UnitsToMilliunits converts a currency-unit amount (as stored in the
// persisted rule format) to milliunits, truncating beyond the third
// decimal the way the source data always has.
func UnitsToMilliunits(units float64) int64 {
	return decimal.NewFromFloat(units).Shift(3).Round(0).IntPart()
}

// Units returns the whole-currency value for display purposes.
// Use milliunits for calculations to avoid floating-point drift.
func (m Money) Units() float64 {
	f, _ := decimal.NewFromInt(m.Milliunits).Shift(-3).Float64()
	return f
}

// DecimalString renders the amount as a plain decimal currency string
// with three fractional digits, e.g. 30000 -> "30.000".
func (m Money) DecimalString() string {
	return decimal.NewFromInt(m.Milliunits).Shift(-3).StringFixed(3)
}

// IsNegative reports whether the amount is below zero. The allocation
// engine treats negative balances as zero; the sign matters only to
// display code.
func (m Money) IsNegative() bool {
	return m.Milliunits < 0
}
