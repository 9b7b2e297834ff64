package domain

import (
	"fmt"
	"math"
)

// All monetary amounts are carried internally as int64 cents. Dollars
// appear only at the API boundary.

// DollarsToCents converts a dollar amount from the API into cents. The
// input may carry at most 2 decimal places; anything finer is rejected
// rather than silently rounded. Scaling goes through math.Round to
// absorb float representation artifacts (1.10*1000 is 1099.999...).
func DollarsToCents(f float64) (int64, error) {
	if math.Mod(math.Round(f*1000), 10) != 0 {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return int64(math.Round(f * 100)), nil
}

// CentsToDollars converts cents back to dollars for API responses.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100.0
}

// RoundToCents converts an unconstrained float64 dollar amount (from
// pricing or options math) to int64 cents, rounding half away from zero.
func RoundToCents(f float64) int64 {
	return int64(math.Round(f * 100))
}
