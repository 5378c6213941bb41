package analysis

import "math"

// BenchmarkMetrics compare a strategy's value series against a
// benchmark series aligned on the same dates.
type BenchmarkMetrics struct {
	Symbol           string  `json:"symbol"`
	BenchmarkReturn  float64 `json:"benchmark_return"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	Correlation      float64 `json:"correlation"`
	InformationRatio float64 `json:"information_ratio"`
	TrackingError    float64 `json:"tracking_error"`
	UpCapture        float64 `json:"up_capture_ratio"`
	DownCapture      float64 `json:"down_capture_ratio"`
	ExcessReturn     float64 `json:"excess_return"`
}

// BenchmarkComparison computes CAPM-style comparison metrics. Returns
// false when the series are unaligned or too short to compare.
func (a *Analyzer) BenchmarkComparison(symbol string, portfolioValues, benchmarkValues []float64) (BenchmarkMetrics, bool) {
	if len(portfolioValues) != len(benchmarkValues) || len(portfolioValues) < 2 {
		return BenchmarkMetrics{}, false
	}

	portReturns := Returns(portfolioValues)
	benchReturns := Returns(benchmarkValues)

	benchVariance := variance(benchReturns)
	var beta float64
	if benchVariance != 0 {
		beta = covariance(portReturns, benchReturns) / benchVariance
	}

	portTotal := portfolioValues[len(portfolioValues)-1]/portfolioValues[0] - 1
	benchTotal := benchmarkValues[len(benchmarkValues)-1]/benchmarkValues[0] - 1
	alpha := portTotal - (a.RiskFreeRate + beta*(benchTotal-a.RiskFreeRate))

	excess := make([]float64, len(portReturns))
	for i := range portReturns {
		excess[i] = portReturns[i] - benchReturns[i]
	}
	trackingError := stdDev(excess) * math.Sqrt(TradingDaysPerYear)
	var infoRatio float64
	if trackingError > 0 {
		infoRatio = mean(excess) * TradingDaysPerYear / trackingError
	}

	var upPort, upBench, downPort, downBench []float64
	for i, br := range benchReturns {
		if br > 0 {
			upPort = append(upPort, portReturns[i])
			upBench = append(upBench, br)
		} else if br < 0 {
			downPort = append(downPort, portReturns[i])
			downBench = append(downBench, br)
		}
	}
	var upCapture, downCapture float64
	if m := mean(upBench); m != 0 {
		upCapture = mean(upPort) / m
	}
	if m := mean(downBench); m != 0 {
		downCapture = mean(downPort) / m
	}

	return BenchmarkMetrics{
		Symbol:           symbol,
		BenchmarkReturn:  benchTotal,
		Alpha:            alpha,
		Beta:             beta,
		Correlation:      correlation(portReturns, benchReturns),
		InformationRatio: infoRatio,
		TrackingError:    trackingError,
		UpCapture:        upCapture,
		DownCapture:      downCapture,
		ExcessReturn:     portTotal - benchTotal,
	}, true
}

// covariance is the sample covariance (n-1 denominator).
func covariance(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sum float64
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(len(xs)-1)
}

// variance is the sample variance (n-1 denominator).
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(xs)-1)
}

func correlation(xs, ys []float64) float64 {
	sx, sy := stdDev(xs), stdDev(ys)
	if sx == 0 || sy == 0 {
		return 0
	}
	return covariance(xs, ys) / (sx * sy)
}
