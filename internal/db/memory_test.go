package db

import (
	"context"
	"testing"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func testCandle(n int, symbol string, close float64) candle.Candle {
	return candle.Candle{
		Timestamp: day(n),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1000,
		Symbol:    symbol,
	}
}

func TestMemoryStorage_SaveAndGetCandles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveCandles(ctx, []candle.Candle{
		testCandle(1, "AAPL", 101),
		testCandle(0, "AAPL", 100),
		testCandle(0, "MSFT", 300),
	}))

	out, err := m.GetCandles(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 100.0, out[0].Close, "sorted ascending")
	assert.Equal(t, 101.0, out[1].Close)

	// Case-insensitive symbol match.
	out, err = m.GetCandles(ctx, "aapl", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemoryStorage_SaveCandleUpserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveCandle(ctx, testCandle(0, "AAPL", 100)))
	require.NoError(t, m.SaveCandle(ctx, testCandle(0, "AAPL", 105)))

	count, err := m.GetCandleCount(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	latest, err := m.GetLatestCandle(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 105.0, latest.Close)
}

func TestMemoryStorage_RejectsInvalidCandle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	bad := testCandle(0, "AAPL", 100)
	bad.Symbol = ""
	assert.Error(t, m.SaveCandle(ctx, bad))
	assert.Error(t, m.SaveCandles(ctx, []candle.Candle{bad}))
}

func TestMemoryStorage_RangeQueries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for n := 0; n < 5; n++ {
		require.NoError(t, m.SaveCandle(ctx, testCandle(n, "AAPL", 100+float64(n))))
	}

	// Half-open range [day1, day3).
	out, err := m.GetCandles(ctx, "AAPL", day(1), day(3))
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = m.GetAllCandles(ctx, day(2), time.Time{})
	require.NoError(t, err)
	assert.Len(t, out, 3)

	require.NoError(t, m.DeleteCandles(ctx, "AAPL", day(2)))
	count, err := m.GetCandleCount(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryStorage_GetAllCandlesOrdersBySymbolWithinTimestamp(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveCandles(ctx, []candle.Candle{
		testCandle(0, "MSFT", 300),
		testCandle(0, "AAPL", 100),
	}))
	out, err := m.GetAllCandles(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "AAPL", out[0].Symbol)
	assert.Equal(t, "MSFT", out[1].Symbol)
}

func TestMemoryStorage_GetLatestCandle_MissingSymbol(t *testing.T) {
	m := NewMemory()
	latest, err := m.GetLatestCandle(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMemoryStorage_Journal(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.LogEvent(journal.Event{
		Time: day(0), Type: "trade", Description: "executed",
		Data: map[string]any{"symbol": "AAPL"},
	}))
	require.NoError(t, m.LogEvent(journal.Event{Time: day(1), Type: "error", Description: "boom"}))
	require.NoError(t, m.LogEvent(journal.Event{Time: day(2), Type: "trade", Description: "executed"}))

	events, err := m.GetEvents("trade", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "executed", events[0].Description)
	assert.Equal(t, day(0), events[0].Time)

	events, err = m.GetEvents("trade", day(1), time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Empty type matches all events.
	events, err = m.GetEvents("", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
