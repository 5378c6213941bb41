package candle

import (
	"sort"
	"time"
)

// Interval is the bar spacing assumed by Normalize. The toolkit replays
// daily bars.
const Interval = 24 * time.Hour

// Normalize sorts candles for one symbol, eliminates duplicate
// timestamps, trims to [start, end] and fills gaps with synthetic
// zero-volume candles carried forward from the previous close. Synthetic
// fill only ever looks backward, so normalized data stays safe for
// point-in-time replay.
func Normalize(candles []Candle, symbol string, start, end time.Time) []Candle {
	if len(candles) == 0 {
		return candles
	}

	sorted := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Symbol == symbol {
			c.Timestamp = c.Timestamp.UTC().Truncate(Interval)
			sorted = append(sorted, c)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Keep the first occurrence of each timestamp.
	deduped := sorted[:0]
	var lastTS time.Time
	for _, c := range sorted {
		if len(deduped) > 0 && c.Timestamp.Equal(lastTS) {
			continue
		}
		if (start.IsZero() || !c.Timestamp.Before(start)) &&
			(end.IsZero() || !c.Timestamp.After(end)) {
			deduped = append(deduped, c)
			lastTS = c.Timestamp
		}
	}
	if len(deduped) == 0 {
		return nil
	}

	complete := make([]Candle, 0, len(deduped))
	basePrice := deduped[0].Close
	i := 0
	for cur := deduped[0].Timestamp; !cur.After(deduped[len(deduped)-1].Timestamp); cur = cur.Add(Interval) {
		if i < len(deduped) && deduped[i].Timestamp.Equal(cur) {
			complete = append(complete, deduped[i])
			basePrice = deduped[i].Close
			i++
			continue
		}
		complete = append(complete, Candle{
			Timestamp: cur,
			Open:      basePrice,
			High:      basePrice,
			Low:       basePrice,
			Close:     basePrice,
			Volume:    0,
			Symbol:    symbol,
		})
	}
	return complete
}
