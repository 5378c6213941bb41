// Package backtest
package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/portfolio"
	"github.com/marketlab/stockbt/internal/strategy"
	"github.com/marketlab/stockbt/internal/strategy/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bars(symbol string, closes ...float64) []candle.Candle {
	out := make([]candle.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle.Candle{
			Timestamp: day(i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
			Symbol:    symbol,
		}
	}
	return out
}

// scriptStrategy replays a fixed schedule of signals and records the
// view length it saw at every step.
type scriptStrategy struct {
	name     string
	schedule map[time.Time]signal.Signal
	sizes    map[time.Time]int

	viewLens []int
	fills    []portfolio.Trade
	errAt    map[time.Time]error
	resets   int
}

func newScript(name string) *scriptStrategy {
	return &scriptStrategy{
		name:     name,
		schedule: make(map[time.Time]signal.Signal),
		sizes:    make(map[time.Time]int),
		errAt:    make(map[time.Time]error),
	}
}

func (s *scriptStrategy) at(t time.Time, side signal.Side, price float64, qty int) *scriptStrategy {
	s.schedule[t] = signal.Signal{Time: t, Symbol: "AAPL", Side: side, Price: price, Confidence: 1}
	s.sizes[t] = qty
	return s
}

func (s *scriptStrategy) Name() string      { return s.name }
func (s *scriptStrategy) WarmupPeriod() int { return 0 }
func (s *scriptStrategy) Reset() {
	s.viewLens = nil
	s.fills = nil
	s.resets++
}

func (s *scriptStrategy) GenerateSignals(view *candle.Series) ([]signal.Signal, error) {
	s.viewLens = append(s.viewLens, view.Len())
	now, ok := view.LastTimestamp()
	if !ok {
		return nil, nil
	}
	if err, ok := s.errAt[now]; ok {
		return nil, err
	}
	if sig, ok := s.schedule[now]; ok {
		return []signal.Signal{sig}, nil
	}
	return nil, nil
}

func (s *scriptStrategy) PositionSize(sig signal.Signal, cash float64, held int) int {
	if sig.Side == signal.Sell {
		return held
	}
	return s.sizes[sig.Time]
}

func (s *scriptStrategy) OnFill(trade portfolio.Trade) {
	s.fills = append(s.fills, trade)
}

func TestRun_EndToEnd(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105, 95, 90, 120))
	strat := newScript("script").
		at(day(0), signal.Buy, 100, 10).
		at(day(4), signal.Sell, 120, 10)

	result, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)

	// One snapshot per bar, the strategy saw strictly growing views.
	require.Len(t, result.Snapshots, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, strat.viewLens)

	require.Len(t, result.Trades, 2)
	buyTrade, sellTrade := result.Trades[0], result.Trades[1]
	assert.Equal(t, portfolio.ActionBuy, buyTrade.Action)
	assert.Equal(t, 10, buyTrade.Quantity)
	assert.InDelta(t, 100*(1+engine.Config().Slippage), buyTrade.Price, 1e-9)
	assert.Equal(t, portfolio.ActionSell, sellTrade.Action)
	assert.InDelta(t, 120*(1-engine.Config().Slippage), sellTrade.Price, 1e-9)

	// Cash accounting closes exactly: final value is initial plus the
	// trade deltas, and the position is flat at the end.
	wantFinal := 10000 + buyTrade.CashDelta + sellTrade.CashDelta
	assert.InDelta(t, wantFinal, result.FinalValue, 1e-9)
	assert.InDelta(t, (wantFinal-10000)/10000, result.TotalReturn, 1e-9)
	assert.Equal(t, 0, result.Snapshots[4].OpenPositions)

	// One profitable round trip.
	assert.Equal(t, 1, result.TradeStats.RoundTrips)
	assert.InDelta(t, (sellTrade.Price-buyTrade.Price)*10, result.TradeStats.TotalPnL, 1e-9)
	assert.True(t, math.IsInf(float64(result.TradeStats.ProfitFactor), 1))

	// Fills were mirrored back to the strategy.
	require.Len(t, strat.fills, 2)
	assert.Equal(t, portfolio.ActionBuy, strat.fills[0].Action)
}

func TestRun_FrictionlessScenario(t *testing.T) {
	// Five bars, buy 10 at the second close and liquidate at the last,
	// with no commission or slippage.
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105, 95, 90, 120))
	strat := newScript("script").
		at(day(1), signal.Buy, 105, 10).
		at(day(4), signal.Sell, 120, 10)

	result, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)

	// 10000 - 1050 + 1200
	assert.InDelta(t, 10150.0, result.FinalValue, 1e-9)
	assert.InDelta(t, 0.015, result.TotalReturn, 1e-9)

	require.Equal(t, 1, result.TradeStats.RoundTrips)
	assert.InDelta(t, 150.0, result.TradeStats.TotalPnL, 1e-9)
	assert.Equal(t, 0, result.Snapshots[4].OpenPositions)
	assert.InDelta(t, 10150.0, result.Snapshots[4].Cash, 1e-9)
}

func TestRun_MidRunSnapshotsMarkToMarket(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 110))
	strat := newScript("script").at(day(0), signal.Buy, 100, 10)

	result, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)

	// Day 0: 10 shares marked at close 100.
	assert.InDelta(t, 1000.0, result.Snapshots[0].PositionsValue, 1e-9)
	assert.Equal(t, 1, result.Snapshots[0].OpenPositions)
	// Day 1: marked at 110 with no further trades.
	assert.InDelta(t, 1100.0, result.Snapshots[1].PositionsValue, 1e-9)
	assert.InDelta(t, result.Snapshots[0].Cash, result.Snapshots[1].Cash, 1e-9)
}

func TestRun_NoData(t *testing.T) {
	engine := NewEngine(Config{})
	series := candle.NewSeries(bars("AAPL", 100, 105))

	_, err := engine.Run(context.Background(), newScript("s"), series, Options{
		StartDate: day(10),
		EndDate:   day(20),
	})
	assert.ErrorIs(t, err, ErrNoData)

	_, err = engine.Run(context.Background(), newScript("s"), candle.NewSeries(nil), Options{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRun_NilStrategy(t *testing.T) {
	engine := NewEngine(Config{})
	series := candle.NewSeries(bars("AAPL", 100))
	_, err := engine.Run(context.Background(), nil, series, Options{})
	assert.ErrorIs(t, err, ErrNilStrategy)
}

func TestRun_RepeatedRunsAreIdentical(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105, 95, 90, 120))
	strat := newScript("script").
		at(day(0), signal.Buy, 100, 10).
		at(day(4), signal.Sell, 120, 10)

	first, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, strat.resets)
	assert.Equal(t, first.FinalValue, second.FinalValue)
	assert.Equal(t, first.TotalReturn, second.TotalReturn)
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.Snapshots, second.Snapshots)
}

func TestRun_SignalErrorSkipsTimestamp(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105, 110))
	strat := newScript("script")
	strat.errAt[day(1)] = errors.New("indicator blew up")

	result, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err, "a per-timestamp failure never fails the run")

	// The failed timestamp contributes no snapshot.
	require.Len(t, result.Snapshots, 2)
	assert.Equal(t, day(0), result.Snapshots[0].Time)
	assert.Equal(t, day(2), result.Snapshots[1].Time)
}

func TestRun_DropsMisstampedSignals(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105))
	strat := newScript("script")
	// A stale signal dated yesterday must not execute today.
	strat.schedule[day(1)] = signal.Signal{
		Time: day(0), Symbol: "AAPL", Side: signal.Buy, Price: 100, Confidence: 1,
	}
	strat.sizes[day(0)] = 10

	result, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestRun_ClampsConfidenceBeforeSizing(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100))

	strat := &confidenceProbe{}
	_, err := engine.Run(context.Background(), strat, series, Options{})
	require.NoError(t, err)
	require.NotNil(t, strat.seen)
	assert.Equal(t, 1.0, *strat.seen)
}

// confidenceProbe emits an overconfident signal and records what the
// engine passed to PositionSize.
type confidenceProbe struct {
	seen *float64
}

func (s *confidenceProbe) Name() string      { return "probe" }
func (s *confidenceProbe) WarmupPeriod() int { return 0 }

func (s *confidenceProbe) GenerateSignals(view *candle.Series) ([]signal.Signal, error) {
	now, ok := view.LastTimestamp()
	if !ok {
		return nil, nil
	}
	return []signal.Signal{{
		Time: now, Symbol: "AAPL", Side: signal.Buy, Price: 100, Confidence: 1.35,
	}}, nil
}

func (s *confidenceProbe) PositionSize(sig signal.Signal, cash float64, held int) int {
	c := sig.Confidence
	s.seen = &c
	return 0
}

func TestRun_ContextCancellation(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx, newScript("s"), series, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DateRangeFiltering(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105, 110, 115, 120))

	result, err := engine.Run(context.Background(), newScript("s"), series, Options{
		StartDate: day(1),
		EndDate:   day(3),
	})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 3)
	assert.Equal(t, day(1), result.Snapshots[0].Time)
	assert.Equal(t, day(3), result.Snapshots[2].Time)
}

func TestRunMultiple_IsolatesStrategies(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105, 95, 90, 120))

	a := newScript("a").at(day(0), signal.Buy, 100, 10).at(day(4), signal.Sell, 120, 10)
	b := newScript("b") // never trades

	results, err := engine.RunMultiple(context.Background(), []strategy.Strategy{a, b}, series, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 2, results["a"].TotalTrades)
	assert.Equal(t, 0, results["b"].TotalTrades)
	// Both start from the same initial capital.
	assert.InDelta(t, 10000.0, results["b"].FinalValue, 1e-9)
	assert.InDelta(t, 10000.0, results["a"].InitialValue, 1e-9)
}

func TestRunMultiple_OneFailureDoesNotStopOthers(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000})
	series := candle.NewSeries(bars("AAPL", 100, 105))

	ok := newScript("ok")
	results, err := engine.RunMultiple(context.Background(), []strategy.Strategy{nil, ok}, series, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results, "ok")
}

func TestBuildResult_BenchmarkAlignment(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000, BenchmarkSymbol: "SPY"})
	rows := append(bars("AAPL", 100, 105, 110), bars("SPY", 400, 404, 408)...)
	series := candle.NewSeries(rows)

	result, err := engine.Run(context.Background(), newScript("s"), series, Options{})
	require.NoError(t, err)
	require.NotNil(t, result.Benchmark)
	assert.Equal(t, "SPY", result.Benchmark.Symbol)
	assert.InDelta(t, 0.02, result.Benchmark.BenchmarkReturn, 1e-9)
}

func TestBuildResult_NoBenchmarkData(t *testing.T) {
	engine := NewEngine(Config{InitialCapital: 10000, BenchmarkSymbol: "SPY"})
	series := candle.NewSeries(bars("AAPL", 100, 105, 110))

	result, err := engine.Run(context.Background(), newScript("s"), series, Options{})
	require.NoError(t, err)
	assert.Nil(t, result.Benchmark, "no SPY rows, no benchmark section")
}
