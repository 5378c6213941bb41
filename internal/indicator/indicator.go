// Package indicator holds the pure technical-indicator math. Every
// function returns a slice aligned with its input: index i is computed
// from values[0..i] only, with NaN filling the warm-up prefix.
package indicator

import "math"

// SMA computes a simple moving average over the given period.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA computes an exponential moving average with alpha = 2/(period+1).
// The first value seeds the average, matching span semantics.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RollingMax computes the highest value over a trailing window.
func RollingMax(values []float64, period int) []float64 {
	return rolling(values, period, func(window []float64) float64 {
		m := window[0]
		for _, v := range window[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

// RollingMin computes the lowest value over a trailing window.
func RollingMin(values []float64, period int) []float64 {
	return rolling(values, period, func(window []float64) float64 {
		m := window[0]
		for _, v := range window[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

func rolling(values []float64, period int, agg func([]float64) float64) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = agg(values[i-period+1 : i+1])
	}
	return out
}

// VolumeRatio divides each volume by its trailing moving average.
func VolumeRatio(volumes []float64, period int) []float64 {
	ma := SMA(volumes, period)
	if ma == nil {
		return nil
	}
	out := make([]float64, len(volumes))
	for i, v := range volumes {
		if math.IsNaN(ma[i]) || ma[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = v / ma[i]
	}
	return out
}
