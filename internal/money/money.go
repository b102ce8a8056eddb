// Package money holds the decimal conventions shared by the engine.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CanonicalPlaces is the precision of canonical amount strings.
const CanonicalPlaces = 8

// Canonical formats d with at most 8 decimal places and no trailing zeros.
func Canonical(d decimal.Decimal) string {
	return d.Round(CanonicalPlaces).String()
}

// Round2 rounds d to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Fixed2 formats d with exactly two decimal places.
func Fixed2(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Parse parses an amount string. Empty and malformed input is an error.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
