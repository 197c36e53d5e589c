package anomaly

import (
	"math"

	"github.com/shopspring/decimal"
)

// round2 rounds the exact binary value of v to two decimals, so 2.675
// (stored as 2.67499...) becomes 2.67.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloatWithExponent(v, -2).InexactFloat64()
}
