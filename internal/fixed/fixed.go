// Package fixed carries the fixed-point conventions shared by the treasury
// and boardroom: 18 decimal places, multiply before divide, never float64
// for money.
package fixed

import "github.com/shopspring/decimal"

// Scale is the number of decimal places carried by all monetary values.
const Scale int32 = 18

// One is the peg target: the fixed-point representation of 1.0.
var One = decimal.New(1, 0)

func init() {
	// Division must not lose precision below Scale. The default (16) is
	// too coarse for 18-place accumulators.
	if decimal.DivisionPrecision < int(Scale)+6 {
		decimal.DivisionPrecision = int(Scale) + 6
	}
}

// Round rounds v to Scale decimal places, half away from zero.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Scale)
}

// MulDiv computes v * num / den with the multiplication first, rounded to
// Scale. den must be non-zero; callers validate before dividing.
func MulDiv(v, num, den decimal.Decimal) decimal.Decimal {
	return Round(v.Mul(num).Div(den))
}

// Percent applies a fractional rate (0.045 = 4.5%) to v.
func Percent(v, rate decimal.Decimal) decimal.Decimal {
	return Round(v.Mul(rate))
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
