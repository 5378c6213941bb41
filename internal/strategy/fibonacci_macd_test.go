// Package strategy
package strategy

import (
	"testing"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/portfolio"
	"github.com/marketlab/stockbt/internal/strategy/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func flatSeries(symbol string, n int, close float64) *candle.Series {
	out := make([]candle.Candle, n)
	for i := range out {
		out[i] = candle.Candle{
			Timestamp: day(i),
			Open:      close,
			High:      close,
			Low:       close,
			Close:     close,
			Volume:    1000,
			Symbol:    symbol,
		}
	}
	return candle.NewSeries(out)
}

func TestFibonacciMACD_Name(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	assert.Equal(t, "Fibonacci_MACD", s.Name())
}

func TestFibonacciMACD_WarmupPeriod(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	assert.Equal(t, 50, s.WarmupPeriod(), "fib window dominates with defaults")

	s = NewFibonacciMACD(FibonacciMACDConfig{FibPeriod: 10, MACDSlow: 30, MACDSignal: 12})
	assert.Equal(t, 42, s.WarmupPeriod(), "MACD slow+signal dominates")
}

func TestFibonacciMACD_NoSignalsDuringWarmup(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	sigs, err := s.GenerateSignals(flatSeries("AAPL", 10, 100))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFibonacciMACD_EmptyView(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	sigs, err := s.GenerateSignals(candle.NewSeries(nil))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFibonacciMACD_FlatMarketStaysQuiet(t *testing.T) {
	// Flat prices fail every entry condition and, without an entry
	// mirror, every exit condition too.
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	sigs, err := s.GenerateSignals(flatSeries("AAPL", 80, 100))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFibonacciMACD_OnFillMirrorsEntries(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})

	s.OnFill(portfolio.Trade{Time: day(0), Symbol: "AAPL", Action: portfolio.ActionBuy, Quantity: 10, Price: 100})
	s.OnFill(portfolio.Trade{Time: day(1), Symbol: "AAPL", Action: portfolio.ActionBuy, Quantity: 10, Price: 110})

	lot := s.entries["AAPL"]
	require.NotNil(t, lot)
	assert.Equal(t, 20, lot.quantity)
	assert.InDelta(t, 105.0, lot.price, 1e-9, "mirror accumulates at VWAP")
	assert.Equal(t, day(0), lot.date)

	s.OnFill(portfolio.Trade{Time: day(2), Symbol: "AAPL", Action: portfolio.ActionSell, Quantity: 8, Price: 120})
	assert.Equal(t, 12, s.entries["AAPL"].quantity)

	s.OnFill(portfolio.Trade{Time: day(3), Symbol: "AAPL", Action: portfolio.ActionSell, Quantity: 12, Price: 120})
	assert.Nil(t, s.entries["AAPL"], "mirror removed when flat")
}

func TestFibonacciMACD_SellOnTakeProfit(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	s.OnFill(portfolio.Trade{Time: day(0), Symbol: "AAPL", Action: portfolio.ActionBuy, Quantity: 10, Price: 80})

	// Flat at 100 against an entry at 80: +25% return, over take profit.
	sigs, err := s.GenerateSignals(flatSeries("AAPL", 80, 100))
	require.NoError(t, err)
	require.Len(t, sigs, 1)

	sig := sigs[0]
	assert.Equal(t, signal.Sell, sig.Side)
	assert.Equal(t, "take profit", sig.Reason)
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
	assert.Equal(t, day(79), sig.Time)
	assert.InDelta(t, 0.25, sig.Metadata["return_pct"].(float64), 1e-9)
}

func TestFibonacciMACD_SellOnStopLoss(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	s.OnFill(portfolio.Trade{Time: day(0), Symbol: "AAPL", Action: portfolio.ActionBuy, Quantity: 10, Price: 200})

	// Flat at 100 against an entry at 200: -50%, well past the stop.
	sigs, err := s.GenerateSignals(flatSeries("AAPL", 80, 100))
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, signal.Sell, sigs[0].Side)
	assert.Equal(t, "stop loss", sigs[0].Reason)
}

func TestFibonacciMACD_HoldsInsideExitBands(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	s.OnFill(portfolio.Trade{Time: day(0), Symbol: "AAPL", Action: portfolio.ActionBuy, Quantity: 10, Price: 98})

	// +2% return, no overbought RSI, no bearish cross: hold.
	sigs, err := s.GenerateSignals(flatSeries("AAPL", 80, 100))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestFibonacciMACD_PositionSize(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})

	buySig := signal.Signal{Side: signal.Buy, Price: 100, Confidence: 1.0}
	// cash * 0.15 * confidence / price
	assert.Equal(t, 15, s.PositionSize(buySig, 10000, 0))

	buySig.Confidence = 0.6
	assert.Equal(t, 9, s.PositionSize(buySig, 10000, 0))

	// Too little cash for even one share at the target fraction.
	buySig.Confidence = 1.0
	assert.Equal(t, 0, s.PositionSize(buySig, 150, 0))

	buySig.Price = 0
	assert.Equal(t, 0, s.PositionSize(buySig, 10000, 0))

	sellSig := signal.Signal{Side: signal.Sell, Price: 100}
	assert.Equal(t, 7, s.PositionSize(sellSig, 10000, 7), "sells liquidate the full position")
	assert.Equal(t, 0, s.PositionSize(signal.Signal{Side: signal.Hold}, 10000, 7))
}

func TestFibonacciMACD_ResetClearsMirror(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	s.OnFill(portfolio.Trade{Time: day(0), Symbol: "AAPL", Action: portfolio.ActionBuy, Quantity: 10, Price: 100})
	require.NotEmpty(t, s.entries)

	s.Reset()
	assert.Empty(t, s.entries)
}

func TestFibonacciMACD_IgnoresSymbolsWithoutCurrentBar(t *testing.T) {
	s := NewFibonacciMACD(FibonacciMACDConfig{})
	s.OnFill(portfolio.Trade{Time: day(0), Symbol: "OLD", Action: portfolio.ActionBuy, Quantity: 10, Price: 10})

	// OLD stops trading at day 60 while AAPL continues; the stale
	// symbol must produce no exit even at a +900% mirror return.
	var rows []candle.Candle
	for i := 0; i < 80; i++ {
		rows = append(rows, candle.Candle{
			Timestamp: day(i), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000, Symbol: "AAPL",
		})
		if i < 60 {
			rows = append(rows, candle.Candle{
				Timestamp: day(i), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000, Symbol: "OLD",
			})
		}
	}
	sigs, err := s.GenerateSignals(candle.NewSeries(rows))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}
