// Package money holds the decimal helpers shared by checkout and settlement.
// Amounts are decimal major units everywhere except at the Stripe boundary.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const scale = 2

var zeroDecimalCurrencies = map[string]struct{}{
	"jpy": {},
	"krw": {},
	"vnd": {},
}

// Round rounds to cents using half-away-from-zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// CeilUnit rounds up to the next whole currency unit.
func CeilUnit(d decimal.Decimal) decimal.Decimal {
	return d.Ceil()
}

// Percent returns amount × rate rounded to cents.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

func exponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return scale
}

// ToMinorUnits converts a major-unit amount into the integer minor units Stripe expects.
func ToMinorUnits(d decimal.Decimal, currency string) int64 {
	return d.Shift(exponent(currency)).Round(0).IntPart()
}

// FromMinorUnits converts Stripe minor units back into a major-unit decimal.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}

// Parse reads a decimal string such as "49.90"; blank input is an error.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d, nil
}

// String formats an amount with exactly two decimals.
func String(d decimal.Decimal) string {
	return d.StringFixed(scale)
}
