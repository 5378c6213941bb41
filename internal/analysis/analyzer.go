// Package analysis computes performance metrics from a backtest's
// snapshot history and trade log. Everything here is a pure function of
// its inputs; nothing mutates engine state.
package analysis

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/marketlab/stockbt/internal/portfolio"
)

// TradingDaysPerYear is the annualization factor for daily data.
const TradingDaysPerYear = 252

// Float64 marshals non-finite values safely: NaN becomes 0 and
// infinities saturate at the float64 limits.
type Float64 float64

func (f Float64) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) {
		return []byte(`0`), nil
	}
	if math.IsInf(v, 1) {
		v = math.MaxFloat64
	} else if math.IsInf(v, -1) {
		v = -math.MaxFloat64
	}
	return json.Marshal(v)
}

// Analyzer computes metrics against a configurable annual risk-free rate.
type Analyzer struct {
	RiskFreeRate float64
}

func NewAnalyzer(riskFreeRate float64) *Analyzer {
	return &Analyzer{RiskFreeRate: riskFreeRate}
}

func (a *Analyzer) dailyRiskFree() float64 {
	return a.RiskFreeRate / TradingDaysPerYear
}

// ReturnMetrics are the plain return statistics of a value series.
type ReturnMetrics struct {
	TotalReturn       float64 `json:"total_return"`
	AnnualizedReturn  float64 `json:"annualized_return"`
	Volatility        float64 `json:"volatility"`
	DownsideDeviation float64 `json:"downside_deviation"`
	AvgDailyReturn    float64 `json:"avg_daily_return"`
	MedianDailyReturn float64 `json:"median_daily_return"`
	StdDailyReturn    float64 `json:"std_daily_return"`
}

// RiskMetrics are the risk-adjusted statistics of a value series.
type RiskMetrics struct {
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	CalmarRatio         float64 `json:"calmar_ratio"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	AvgDrawdown         float64 `json:"avg_drawdown"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	VaR95               float64 `json:"var_95"`
	VaR99               float64 `json:"var_99"`
	CVaR95              float64 `json:"cvar_95"`
	CVaR99              float64 `json:"cvar_99"`
	PainIndex           float64 `json:"pain_index"`
}

// Values extracts the total-value series from snapshots.
func Values(snapshots []portfolio.Snapshot) []float64 {
	values := make([]float64, len(snapshots))
	for i, s := range snapshots {
		values[i] = s.TotalValue
	}
	return values
}

// Returns computes period-over-period returns, dropping the first
// (undefined) period.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// ReturnMetrics computes the return statistics of a daily value series.
func (a *Analyzer) ReturnMetrics(values []float64) ReturnMetrics {
	if len(values) < 2 {
		return ReturnMetrics{}
	}
	returns := Returns(values)
	totalReturn := (values[len(values)-1] - values[0]) / values[0]
	years := float64(len(values)) / TradingDaysPerYear

	var annualized float64
	if years > 0 {
		annualized = math.Pow(1+totalReturn, 1/years) - 1
	}

	std := stdDev(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	return ReturnMetrics{
		TotalReturn:       totalReturn,
		AnnualizedReturn:  annualized,
		Volatility:        std * math.Sqrt(TradingDaysPerYear),
		DownsideDeviation: stdDev(downside) * math.Sqrt(TradingDaysPerYear),
		AvgDailyReturn:    mean(returns),
		MedianDailyReturn: median(returns),
		StdDailyReturn:    std,
	}
}

// RiskMetrics computes the risk-adjusted statistics of a daily value
// series. Ratios with a zero denominator are defined as 0.
func (a *Analyzer) RiskMetrics(values []float64) RiskMetrics {
	if len(values) < 2 {
		return RiskMetrics{}
	}
	returns := Returns(values)
	rf := a.dailyRiskFree()

	excessMean := mean(returns) - rf
	std := stdDev(returns)

	var sharpe float64
	if std > 0 {
		sharpe = excessMean / std * math.Sqrt(TradingDaysPerYear)
	}

	var below []float64
	for _, r := range returns {
		if r < rf {
			below = append(below, r)
		}
	}
	downsideStd := stdDev(below)
	var sortino float64
	if downsideStd > 0 {
		sortino = excessMean / downsideStd * math.Sqrt(TradingDaysPerYear)
	}

	maxDD := MaxDrawdown(values)
	annualized := a.ReturnMetrics(values).AnnualizedReturn
	var calmar float64
	if maxDD != 0 {
		calmar = annualized / math.Abs(maxDD)
	}

	var95 := percentile(returns, 5)
	var99 := percentile(returns, 1)
	ddPeriods := DrawdownPeriods(values)

	return RiskMetrics{
		SharpeRatio:         sharpe,
		SortinoRatio:        sortino,
		CalmarRatio:         calmar,
		MaxDrawdown:         maxDD,
		AvgDrawdown:         ddPeriods.AvgDrawdown,
		MaxDrawdownDuration: ddPeriods.MaxDuration,
		VaR95:               var95,
		VaR99:               var99,
		CVaR95:              tailMean(returns, var95),
		CVaR99:              tailMean(returns, var99),
		PainIndex:           PainIndex(values),
	}
}

// MaxDrawdown is the minimum of (value - running peak) / running peak.
// Zero for a monotonically non-decreasing series.
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	minDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < minDD {
				minDD = dd
			}
		}
	}
	return minDD
}

// PainIndex is the mean absolute drawdown over the whole series.
func PainIndex(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	peak := values[0]
	var sum float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			sum += (v - peak) / peak
		}
	}
	return math.Abs(sum / float64(len(values)))
}

// DrawdownInfo summarizes the distinct drawdown periods of a series.
type DrawdownInfo struct {
	AvgDrawdown float64
	MaxDuration int
	Periods     int
}

// DrawdownPeriods finds every stretch below a running peak and reports
// the mean of the per-period troughs and the longest duration.
func DrawdownPeriods(values []float64) DrawdownInfo {
	if len(values) < 2 {
		return DrawdownInfo{}
	}
	peak := values[0]
	drawdown := make([]float64, len(values))
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drawdown[i] = (v - peak) / peak
		}
	}

	var troughs []float64
	maxDuration := 0
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		trough := 0.0
		for _, dd := range drawdown[start:end] {
			if dd < trough {
				trough = dd
			}
		}
		troughs = append(troughs, trough)
		if d := end - start; d > maxDuration {
			maxDuration = d
		}
		start = -1
	}
	for i, dd := range drawdown {
		if dd < 0 && start < 0 {
			start = i
		} else if dd >= 0 {
			flush(i)
		}
	}
	flush(len(drawdown))

	return DrawdownInfo{
		AvgDrawdown: mean(troughs),
		MaxDuration: maxDuration,
		Periods:     len(troughs),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// stdDev is the sample standard deviation (n-1 denominator).
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// percentile uses linear interpolation between closest ranks.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// tailMean averages the returns at or below the given threshold.
func tailMean(returns []float64, threshold float64) float64 {
	var tail []float64
	for _, r := range returns {
		if r <= threshold {
			tail = append(tail, r)
		}
	}
	return mean(tail)
}
