package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/journal"
)

// MemoryStorage keeps candles and events in process memory. It is the
// default backend for backtests over CSV data and for tests.
type MemoryStorage struct {
	mu sync.RWMutex

	// Candles keyed by symbol|timestamp
	candles map[string]candle.Candle

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		candles: make(map[string]candle.Candle),
		events:  make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

// -------- CandleStorage --------

func candleKey(symbol string, ts time.Time) string {
	return strings.ToUpper(symbol) + "|" + ts.UTC().Format(time.RFC3339Nano)
}

func (m *MemoryStorage) SaveCandle(ctx context.Context, c candle.Candle) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Timestamp = c.Timestamp.UTC()
	m.candles[candleKey(c.Symbol, c.Timestamp)] = c
	return nil
}

func (m *MemoryStorage) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return err
		}
		candles[i].Timestamp = candles[i].Timestamp.UTC()
		m.candles[candleKey(candles[i].Symbol, candles[i].Timestamp)] = candles[i]
	}
	return nil
}

func (m *MemoryStorage) GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []candle.Candle
	for _, c := range m.candles {
		if !strings.EqualFold(c.Symbol, symbol) {
			continue
		}
		if inRange(c.Timestamp, start, end) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStorage) GetAllCandles(ctx context.Context, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []candle.Candle
	for _, c := range m.candles {
		if inRange(c.Timestamp, start, end) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return strings.ToUpper(out[i].Symbol) < strings.ToUpper(out[j].Symbol)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStorage) GetLatestCandle(ctx context.Context, symbol string) (*candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *candle.Candle
	for _, c := range m.candles {
		if !strings.EqualFold(c.Symbol, symbol) {
			continue
		}
		if latest == nil || c.Timestamp.After(latest.Timestamp) {
			cc := c
			latest = &cc
		}
	}
	return latest, nil
}

func (m *MemoryStorage) GetCandleCount(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	cs, err := m.GetCandles(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	return len(cs), nil
}

func (m *MemoryStorage) DeleteCandles(ctx context.Context, symbol string, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before = before.UTC()
	for k, c := range m.candles {
		if strings.EqualFold(c.Symbol, symbol) && c.Timestamp.Before(before) {
			delete(m.candles, k)
		}
	}
	return nil
}

// inRange reports start <= ts < end; zero bounds leave that side open.
func inRange(ts, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && !ts.Before(end) {
		return false
	}
	return true
}

// -------- JournalStorage --------

func (m *MemoryStorage) LogEvent(event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Time = event.Time.UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []journal.Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if inRange(e.Time, start, end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
