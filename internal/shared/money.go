package shared

import "math"

// Round2 rounds a monetary amount to two decimal places.
// Every amount that crosses a component boundary is rounded here so tax
// and totals never disagree by a floating point hair.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
