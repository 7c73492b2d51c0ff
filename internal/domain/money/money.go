// Package money holds the exact-decimal helpers used for currency and
// quantity arithmetic. Amounts are shopspring decimals end to end; floats
// never enter a variance computation.
package money

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the half-cent band inside which two amounts are considered equal.
var Tolerance = decimal.New(5, -3)

var hundred = decimal.NewFromInt(100)

func init() {
	// Amounts travel as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// RoundCents rounds half away from zero to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return RoundCents(part.Div(whole).Mul(hundred))
}

// LineTotal is quantity times unit price.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice)
}

// Format renders an amount with two decimals and an optional currency prefix.
func Format(d decimal.Decimal, currency string) string {
	if currency == "" {
		return d.StringFixed(2)
	}
	return currency + " " + d.StringFixed(2)
}
