package backtest

import (
	"math"

	"github.com/marketlab/stockbt/internal/analysis"
	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/portfolio"
)

// Result holds everything a backtest run produced. All fields are plain
// data with no references back into the engine.
type Result struct {
	StrategyName     string                     `json:"strategy_name"`
	InitialValue     float64                    `json:"initial_value"`
	FinalValue       float64                    `json:"final_value"`
	TotalReturn      float64                    `json:"total_return"`
	AnnualizedReturn float64                    `json:"annualized_return"`
	SharpeRatio      float64                    `json:"sharpe_ratio"`
	MaxDrawdown      float64                    `json:"max_drawdown"`
	Volatility       float64                    `json:"volatility"`
	TotalTrades      int                        `json:"total_trades"`
	Snapshots        []portfolio.Snapshot       `json:"snapshots"`
	Trades           []portfolio.Trade          `json:"trades"`
	TradeStats       analysis.TradeStats        `json:"trade_statistics"`
	Report           analysis.Report            `json:"report"`
	Benchmark        *analysis.BenchmarkMetrics `json:"benchmark,omitempty"`
}

func (e *Engine) buildResult(strategyName string, data *candle.Series, benchSymbol string) *Result {
	snapshots := append([]portfolio.Snapshot(nil), e.ledger.Snapshots()...)
	trades := append([]portfolio.Trade(nil), e.ledger.Trades()...)

	analyzer := analysis.NewAnalyzer(e.cfg.RiskFreeRate)
	values := analysis.Values(snapshots)

	var finalValue, totalReturn, annualized float64
	finalValue = e.cfg.InitialCapital
	if len(values) > 0 {
		finalValue = values[len(values)-1]
		totalReturn = (finalValue - e.cfg.InitialCapital) / e.cfg.InitialCapital
		annualized = math.Pow(1+totalReturn, analysis.TradingDaysPerYear/float64(len(values))) - 1
	}

	benchValues := alignBenchmark(data, benchSymbol, snapshots)
	report := analyzer.GenerateReport(snapshots, trades, benchSymbol, benchValues)

	return &Result{
		StrategyName:     strategyName,
		InitialValue:     e.cfg.InitialCapital,
		FinalValue:       finalValue,
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualized,
		SharpeRatio:      report.Risk.SharpeRatio,
		MaxDrawdown:      report.Risk.MaxDrawdown,
		Volatility:       report.Returns.Volatility,
		TotalTrades:      len(trades),
		Snapshots:        snapshots,
		Trades:           trades,
		TradeStats:       report.Trades,
		Report:           report,
		Benchmark:        report.Benchmark,
	}
}

// alignBenchmark builds the benchmark close series on the snapshot
// dates, carrying the last known close forward. Nil when the benchmark
// symbol has no data at or before the first snapshot.
func alignBenchmark(data *candle.Series, benchSymbol string, snapshots []portfolio.Snapshot) []float64 {
	if len(snapshots) == 0 {
		return nil
	}
	aligned := make([]float64, 0, len(snapshots))
	last := math.NaN()
	for _, snap := range snapshots {
		if close, ok := data.UpTo(snap.Time).LastClose(benchSymbol); ok {
			last = close
		}
		if math.IsNaN(last) {
			return nil
		}
		aligned = append(aligned, last)
	}
	return aligned
}
