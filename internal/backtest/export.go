package backtest

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"time"
)

// PrintSummary logs a human-readable digest of one backtest result.
func PrintSummary(result *Result) {
	log.Printf("Backtest Results (%s):", result.StrategyName)
	log.Printf("  InitialValue=%.2f, FinalValue=%.2f, Return=%.2f%%, Annualized=%.2f%%",
		result.InitialValue, result.FinalValue, result.TotalReturn*100, result.AnnualizedReturn*100)
	log.Printf("  Sharpe=%.3f, Sortino=%.3f, MaxDrawdown=%.2f%%, Volatility=%.2f%%",
		result.SharpeRatio, result.Report.Risk.SortinoRatio, result.MaxDrawdown*100, result.Volatility*100)
	log.Printf("  Trades=%d, RoundTrips=%d, WinRate=%.2f%%, ProfitFactor=%.2f, Expectancy=%.2f",
		result.TotalTrades, result.TradeStats.RoundTrips, result.TradeStats.WinRate*100,
		float64(result.TradeStats.ProfitFactor), result.TradeStats.Expectancy)
	log.Printf("  MaxConsecWins=%d, MaxConsecLosses=%d, AvgHolding=%.1f days",
		result.TradeStats.MaxConsecutiveWins, result.TradeStats.MaxConsecutiveLosses,
		result.TradeStats.AvgHoldingDays)
	if result.Benchmark != nil {
		log.Printf("  Benchmark(%s): Alpha=%.4f, Beta=%.3f, Corr=%.3f, InfoRatio=%.3f",
			result.Benchmark.Symbol, result.Benchmark.Alpha, result.Benchmark.Beta,
			result.Benchmark.Correlation, result.Benchmark.InformationRatio)
	}

	maxTrades := 10
	log.Printf("Trade Log (last %d):", maxTrades)
	trades := result.Trades
	if len(trades) > maxTrades {
		trades = trades[len(trades)-maxTrades:]
	}
	for i, t := range trades {
		log.Printf("  %d: %s %s qty=%d price=%.2f commission=%.2f at %s",
			i+1, t.Action, t.Symbol, t.Quantity, t.Price, t.Commission,
			t.Time.Format(time.RFC3339))
	}
}

// SaveResults writes the trade log and equity curve of a result to CSV
// files named after the strategy.
func SaveResults(result *Result, dir string) error {
	tradeRows := [][]string{{"Time", "Symbol", "Action", "Quantity", "Price", "Commission", "CashDelta"}}
	for _, t := range result.Trades {
		tradeRows = append(tradeRows, []string{
			t.Time.Format(time.RFC3339),
			t.Symbol,
			string(t.Action),
			fmt.Sprintf("%d", t.Quantity),
			fmt.Sprintf("%.4f", t.Price),
			fmt.Sprintf("%.4f", t.Commission),
			fmt.Sprintf("%.4f", t.CashDelta),
		})
	}

	equityRows := [][]string{{"Time", "Cash", "PositionsValue", "TotalValue", "OpenPositions"}}
	for _, s := range result.Snapshots {
		equityRows = append(equityRows, []string{
			s.Time.Format(time.RFC3339),
			fmt.Sprintf("%.4f", s.Cash),
			fmt.Sprintf("%.4f", s.PositionsValue),
			fmt.Sprintf("%.4f", s.TotalValue),
			fmt.Sprintf("%d", s.OpenPositions),
		})
	}

	if err := saveCSV(fmt.Sprintf("%s/%s_trades.csv", dir, result.StrategyName), tradeRows); err != nil {
		return err
	}
	return saveCSV(fmt.Sprintf("%s/%s_equity.csv", dir, result.StrategyName), equityRows)
}

func saveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
	}
	log.Printf("Saved results to %s", filename)
	return nil
}
