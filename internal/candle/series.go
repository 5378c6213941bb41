package candle

import (
	"sort"
	"time"
)

// Series is an ordered collection of candles, ascending by timestamp and
// then by symbol. Views produced by UpTo and Between share the backing
// array and must be treated as read-only.
type Series struct {
	candles []Candle
	stamps  []time.Time // unique timestamps, ascending
}

// NewSeries builds a series from candles in any order. Duplicates
// (same symbol and timestamp) keep the first occurrence.
func NewSeries(candles []Candle) *Series {
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	type key struct {
		ts     int64
		symbol string
	}
	seen := make(map[key]struct{}, len(sorted))
	deduped := sorted[:0]
	for _, c := range sorted {
		k := key{c.Timestamp.UnixNano(), c.Symbol}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		deduped = append(deduped, c)
	}

	s := &Series{candles: deduped}
	for _, c := range deduped {
		if len(s.stamps) == 0 || !s.stamps[len(s.stamps)-1].Equal(c.Timestamp) {
			s.stamps = append(s.stamps, c.Timestamp)
		}
	}
	return s
}

func (s *Series) Len() int { return len(s.candles) }

// Candles returns the underlying rows. Callers must not mutate them.
func (s *Series) Candles() []Candle { return s.candles }

// Timestamps returns the unique timestamps in ascending order.
func (s *Series) Timestamps() []time.Time { return s.stamps }

// Last returns the most recent candle in the series.
func (s *Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// LastTimestamp returns the most recent timestamp in the series.
func (s *Series) LastTimestamp() (time.Time, bool) {
	if len(s.stamps) == 0 {
		return time.Time{}, false
	}
	return s.stamps[len(s.stamps)-1], true
}

// UpTo returns the point-in-time view containing every row with
// timestamp <= t and nothing after it. The view shares backing storage
// with the parent, so it is O(log n).
func (s *Series) UpTo(t time.Time) *Series {
	i := sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Timestamp.After(t)
	})
	j := sort.Search(len(s.stamps), func(j int) bool {
		return s.stamps[j].After(t)
	})
	return &Series{candles: s.candles[:i], stamps: s.stamps[:j]}
}

// Between returns rows with start <= timestamp <= end. A zero start or
// end leaves that side unbounded.
func (s *Series) Between(start, end time.Time) *Series {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(s.candles), func(i int) bool {
			return !s.candles[i].Timestamp.Before(start)
		})
	}
	hi := len(s.candles)
	if !end.IsZero() {
		hi = sort.Search(len(s.candles), func(i int) bool {
			return s.candles[i].Timestamp.After(end)
		})
	}
	if lo > hi {
		lo = hi
	}
	return NewSeries(s.candles[lo:hi])
}

// At returns the rows exactly at t.
func (s *Series) At(t time.Time) []Candle {
	lo := sort.Search(len(s.candles), func(i int) bool {
		return !s.candles[i].Timestamp.Before(t)
	})
	hi := sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Timestamp.After(t)
	})
	return s.candles[lo:hi]
}

// CloseAt returns the close price for symbol at exactly t.
func (s *Series) CloseAt(symbol string, t time.Time) (float64, bool) {
	for _, c := range s.At(t) {
		if c.Symbol == symbol {
			return c.Close, true
		}
	}
	return 0, false
}

// LastClose returns the most recent close for symbol in the series.
func (s *Series) LastClose(symbol string) (float64, bool) {
	for i := len(s.candles) - 1; i >= 0; i-- {
		if s.candles[i].Symbol == symbol {
			return s.candles[i].Close, true
		}
	}
	return 0, false
}

// PricesAt returns the close price of every symbol with a row at t.
func (s *Series) PricesAt(t time.Time) map[string]float64 {
	rows := s.At(t)
	prices := make(map[string]float64, len(rows))
	for _, c := range rows {
		prices[c.Symbol] = c.Close
	}
	return prices
}

// Symbols returns the distinct symbols present in the series.
func (s *Series) Symbols() []string {
	seen := make(map[string]struct{})
	var symbols []string
	for _, c := range s.candles {
		if _, ok := seen[c.Symbol]; !ok {
			seen[c.Symbol] = struct{}{}
			symbols = append(symbols, c.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Symbol returns the rows for one symbol, in timestamp order.
func (s *Series) Symbol(symbol string) []Candle {
	var rows []Candle
	for _, c := range s.candles {
		if c.Symbol == symbol {
			rows = append(rows, c)
		}
	}
	return rows
}

// Closes extracts the close column for one symbol.
func (s *Series) Closes(symbol string) []float64 {
	return s.column(symbol, func(c Candle) float64 { return c.Close })
}

// Highs extracts the high column for one symbol.
func (s *Series) Highs(symbol string) []float64 {
	return s.column(symbol, func(c Candle) float64 { return c.High })
}

// Lows extracts the low column for one symbol.
func (s *Series) Lows(symbol string) []float64 {
	return s.column(symbol, func(c Candle) float64 { return c.Low })
}

// Volumes extracts the volume column for one symbol.
func (s *Series) Volumes(symbol string) []float64 {
	return s.column(symbol, func(c Candle) float64 { return c.Volume })
}

func (s *Series) column(symbol string, get func(Candle) float64) []float64 {
	var vals []float64
	for _, c := range s.candles {
		if c.Symbol == symbol {
			vals = append(vals, get(c))
		}
	}
	return vals
}
