package indicator

import "math"

// FibLevels are the standard retracement ratios, highest to lowest price.
var FibLevels = []float64{0.236, 0.382, 0.5, 0.618, 0.786}

// FibonacciLevels computes retracement prices between a swing high and
// low: high - (high-low)*level for each ratio in FibLevels.
func FibonacciLevels(high, low float64) []float64 {
	levels := make([]float64, len(FibLevels))
	for i, level := range FibLevels {
		levels[i] = high - (high-low)*level
	}
	return levels
}

// NearestFibLevel returns the index into FibLevels whose retracement
// price is within tolerance (relative) of price, or -1 when none is.
func NearestFibLevel(price, high, low, tolerance float64) int {
	if high <= low {
		return -1
	}
	for i, fibPrice := range FibonacciLevels(high, low) {
		if fibPrice <= 0 || math.IsNaN(fibPrice) {
			continue
		}
		if math.Abs(price-fibPrice)/fibPrice <= tolerance {
			return i
		}
	}
	return -1
}
