package analysis

import (
	"time"

	"github.com/marketlab/stockbt/internal/portfolio"
)

// Summary is the bookkeeping section of a report.
type Summary struct {
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	TotalPeriods int       `json:"total_periods"`
	InitialValue float64   `json:"initial_value"`
	FinalValue   float64   `json:"final_value"`
	PeakValue    float64   `json:"peak_value"`
	TroughValue  float64   `json:"trough_value"`
}

// Report is the full performance report for one backtest run.
type Report struct {
	Returns   ReturnMetrics     `json:"returns"`
	Risk      RiskMetrics       `json:"risk"`
	Trades    TradeStats        `json:"trades"`
	Benchmark *BenchmarkMetrics `json:"benchmark,omitempty"`
	Summary   Summary           `json:"summary"`
}

// GenerateReport builds the complete report from a snapshot history, a
// trade log and an optional aligned benchmark value series.
func (a *Analyzer) GenerateReport(snapshots []portfolio.Snapshot, trades []portfolio.Trade, benchmarkSymbol string, benchmarkValues []float64) Report {
	values := Values(snapshots)
	report := Report{
		Returns: a.ReturnMetrics(values),
		Risk:    a.RiskMetrics(values),
		Trades:  a.TradeMetrics(trades),
	}

	if benchmarkValues != nil {
		if bm, ok := a.BenchmarkComparison(benchmarkSymbol, values, benchmarkValues); ok {
			report.Benchmark = &bm
		}
	}

	if len(snapshots) > 0 {
		peak, trough := values[0], values[0]
		for _, v := range values {
			if v > peak {
				peak = v
			}
			if v < trough {
				trough = v
			}
		}
		report.Summary = Summary{
			StartDate:    snapshots[0].Time,
			EndDate:      snapshots[len(snapshots)-1].Time,
			TotalPeriods: len(snapshots),
			InitialValue: values[0],
			FinalValue:   values[len(values)-1],
			PeakValue:    peak,
			TroughValue:  trough,
		}
	}
	return report
}
