package strategy

import (
	"math"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/indicator"
	"github.com/marketlab/stockbt/internal/strategy/signal"
)

// MACrossConfig holds the tunables of the SMA crossover strategy.
type MACrossConfig struct {
	ShortWindow     int     // default 20
	LongWindow      int     // default 50
	SignalThreshold float64 // minimum |diff|/price to act on a cross, default 0.01
	PositionSizePct float64 // fraction of cash per entry, default 0.1
}

func (c *MACrossConfig) applyDefaults() {
	if c.ShortWindow == 0 {
		c.ShortWindow = 20
	}
	if c.LongWindow == 0 {
		c.LongWindow = 50
	}
	if c.SignalThreshold == 0 {
		c.SignalThreshold = 0.01
	}
	if c.PositionSizePct == 0 {
		c.PositionSizePct = 0.1
	}
}

// MACross buys on a golden cross (short SMA over long SMA) and sells the
// full position on a death cross, ignoring crosses whose magnitude
// relative to price is below the threshold.
type MACross struct {
	cfg MACrossConfig
}

func NewMACross(cfg MACrossConfig) *MACross {
	cfg.applyDefaults()
	return &MACross{cfg: cfg}
}

func (s *MACross) Name() string      { return "MA_Crossover" }
func (s *MACross) WarmupPeriod() int { return s.cfg.LongWindow }

func (s *MACross) GenerateSignals(view *candle.Series) ([]signal.Signal, error) {
	now, ok := view.LastTimestamp()
	if !ok {
		return nil, nil
	}

	var signals []signal.Signal
	for _, symbol := range view.Symbols() {
		rows := view.Symbol(symbol)
		n := len(rows)
		if n <= s.cfg.LongWindow || !rows[n-1].Timestamp.Equal(now) {
			continue
		}

		closes := view.Closes(symbol)
		short := indicator.SMA(closes, s.cfg.ShortWindow)
		long := indicator.SMA(closes, s.cfg.LongWindow)
		i := len(closes) - 1

		diff := short[i] - long[i]
		prevDiff := short[i-1] - long[i-1]
		if math.IsNaN(diff) || math.IsNaN(prevDiff) {
			continue
		}
		strength := math.Abs(diff) / closes[i]
		if strength < s.cfg.SignalThreshold {
			continue
		}

		var side signal.Side
		var reason string
		switch {
		case diff > 0 && prevDiff <= 0:
			side, reason = signal.Buy, "sma bullish crossover"
		case diff < 0 && prevDiff >= 0:
			side, reason = signal.Sell, "sma bearish crossover"
		default:
			continue
		}

		signals = append(signals, signal.Signal{
			Time:       now,
			Symbol:     symbol,
			Side:       side,
			Price:      closes[i],
			Confidence: math.Min(strength*10, 1.0),
			Reason:     reason,
			Metadata: map[string]any{
				"short_ma":        short[i],
				"long_ma":         long[i],
				"signal_strength": strength,
			},
		})
	}
	return signals, nil
}

func (s *MACross) PositionSize(sig signal.Signal, cash float64, held int) int {
	switch sig.Side {
	case signal.Buy:
		if sig.Price <= 0 {
			return 0
		}
		size := int(cash * s.cfg.PositionSizePct / sig.Price)
		if max := int(math.Floor(cash / sig.Price)); size > max {
			size = max
		}
		if size < 0 {
			size = 0
		}
		return size
	case signal.Sell:
		return held
	}
	return 0
}
