package strategy

import (
	"math"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/indicator"
	"github.com/marketlab/stockbt/internal/portfolio"
	"github.com/marketlab/stockbt/internal/strategy/signal"
)

// FibonacciMACDConfig holds the tunables of the multi-indicator entry
// strategy. Zero values fall back to the defaults below.
type FibonacciMACDConfig struct {
	FibPeriod       int     // rolling window for swing high/low, default 50
	FibTolerance    float64 // relative distance to count as "at a level", default 0.01
	MACDFast        int     // default 12
	MACDSlow        int     // default 26
	MACDSignal      int     // default 9
	RSIPeriod       int     // default 14
	RSIOversold     float64 // default 30
	RSIOverbought   float64 // default 70
	VolumePeriod    int     // default 20
	VolumeThreshold float64 // default 1.2
	PositionSizePct float64 // fraction of cash per entry, default 0.15
	MinConfidence   float64 // default 0.6
	TakeProfit      float64 // exit on return above this, default 0.15
	StopLoss        float64 // exit on return below this, default -0.08
}

func (c *FibonacciMACDConfig) applyDefaults() {
	if c.FibPeriod == 0 {
		c.FibPeriod = 50
	}
	if c.FibTolerance == 0 {
		c.FibTolerance = 0.01
	}
	if c.MACDFast == 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow == 0 {
		c.MACDSlow = 26
	}
	if c.MACDSignal == 0 {
		c.MACDSignal = 9
	}
	if c.RSIPeriod == 0 {
		c.RSIPeriod = 14
	}
	if c.RSIOversold == 0 {
		c.RSIOversold = 30
	}
	if c.RSIOverbought == 0 {
		c.RSIOverbought = 70
	}
	if c.VolumePeriod == 0 {
		c.VolumePeriod = 20
	}
	if c.VolumeThreshold == 0 {
		c.VolumeThreshold = 1.2
	}
	if c.PositionSizePct == 0 {
		c.PositionSizePct = 0.15
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.6
	}
	if c.TakeProfit == 0 {
		c.TakeProfit = 0.15
	}
	if c.StopLoss == 0 {
		c.StopLoss = -0.08
	}
}

// Per-condition confidence weights. They intentionally sum above 1.0;
// consumers clamp confidence to [0,1] rather than renormalizing.
const (
	weightSupport = 0.25
	weightMACD    = 0.30
	weightRSI     = 0.25
	weightVolume  = 0.20
	weightTrend   = 0.10
)

type entryLot struct {
	quantity int
	price    float64
	date     time.Time
}

// FibonacciMACD buys when at least 3 of 5 weighted conditions line up:
// price sitting on a Fibonacci retracement level, a bullish MACD
// crossover, RSI recovering from oversold, volume above its average and
// price above its 20-day SMA. Exits on take profit, stop loss, or an
// overbought RSI combined with a bearish MACD crossover.
type FibonacciMACD struct {
	cfg FibonacciMACDConfig

	// Mirror of executed entries, fed by OnFill. Used only to price
	// exit rules; the engine's ledger is the source of truth.
	entries map[string]*entryLot
}

func NewFibonacciMACD(cfg FibonacciMACDConfig) *FibonacciMACD {
	cfg.applyDefaults()
	return &FibonacciMACD{cfg: cfg, entries: make(map[string]*entryLot)}
}

func (s *FibonacciMACD) Name() string { return "Fibonacci_MACD" }

func (s *FibonacciMACD) WarmupPeriod() int {
	warmup := s.cfg.FibPeriod
	if n := s.cfg.MACDSlow + s.cfg.MACDSignal; n > warmup {
		warmup = n
	}
	if s.cfg.VolumePeriod > warmup {
		warmup = s.cfg.VolumePeriod
	}
	return warmup
}

func (s *FibonacciMACD) Reset() {
	s.entries = make(map[string]*entryLot)
}

// OnFill keeps the entry mirror in sync with executed trades.
func (s *FibonacciMACD) OnFill(trade portfolio.Trade) {
	switch trade.Action {
	case portfolio.ActionBuy:
		if lot, ok := s.entries[trade.Symbol]; ok {
			total := lot.quantity + trade.Quantity
			lot.price = (float64(lot.quantity)*lot.price + float64(trade.Quantity)*trade.Price) / float64(total)
			lot.quantity = total
		} else {
			s.entries[trade.Symbol] = &entryLot{
				quantity: trade.Quantity,
				price:    trade.Price,
				date:     trade.Time,
			}
		}
	case portfolio.ActionSell:
		if lot, ok := s.entries[trade.Symbol]; ok {
			lot.quantity -= trade.Quantity
			if lot.quantity <= 0 {
				delete(s.entries, trade.Symbol)
			}
		}
	}
}

func (s *FibonacciMACD) GenerateSignals(view *candle.Series) ([]signal.Signal, error) {
	now, ok := view.LastTimestamp()
	if !ok {
		return nil, nil
	}

	var signals []signal.Signal
	for _, symbol := range view.Symbols() {
		rows := view.Symbol(symbol)
		n := len(rows)
		if n <= s.WarmupPeriod() {
			continue
		}
		// Only evaluate symbols with a bar at the current timestamp.
		if !rows[n-1].Timestamp.Equal(now) {
			continue
		}

		closes := view.Closes(symbol)
		highs := view.Highs(symbol)
		lows := view.Lows(symbol)
		volumes := view.Volumes(symbol)

		if sig, ok := s.checkBuy(symbol, now, closes, highs, lows, volumes); ok {
			signals = append(signals, sig)
		}
		if sig, ok := s.checkSell(symbol, now, closes, volumes); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (s *FibonacciMACD) checkBuy(symbol string, now time.Time, closes, highs, lows, volumes []float64) (signal.Signal, bool) {
	i := len(closes) - 1
	price := closes[i]

	rollingHigh := indicator.RollingMax(highs, s.cfg.FibPeriod)
	rollingLow := indicator.RollingMin(lows, s.cfg.FibPeriod)
	macd, macdSig, _ := indicator.MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	rsi := indicator.RSI(closes, s.cfg.RSIPeriod)
	volRatio := indicator.VolumeRatio(volumes, s.cfg.VolumePeriod)
	volFast := indicator.SMA(volumes, 5)
	volSlow := indicator.SMA(volumes, 20)
	sma20 := indicator.SMA(closes, 20)

	// 1. Price within tolerance of a mid-band retracement level
	// (38.2/50/61.8) acting as support.
	fibIdx := indicator.NearestFibLevel(price, rollingHigh[i], rollingLow[i], s.cfg.FibTolerance)
	fibCond := fibIdx >= 1 && fibIdx <= 3

	// 2. Bullish MACD crossover with the line still rising.
	macdCond := macd[i] > macdSig[i] && macd[i-1] <= macdSig[i-1] && macd[i] > macd[i-1]

	// 3. RSI recovering out of oversold, or rising below the midline.
	rsiCond := (rsi[i] > rsi[i-1] && rsi[i-1] < s.cfg.RSIOversold) ||
		(rsi[i] > s.cfg.RSIOversold && rsi[i] < 50 && rsi[i] > rsi[i-1])

	// 4. Volume above its average and trending up.
	volCond := volRatio[i] > s.cfg.VolumeThreshold && volFast != nil && volSlow != nil &&
		volFast[i] > volSlow[i]

	// 5. Price above the short-term trend.
	trendCond := sma20 != nil && price > sma20[i]

	conditions := map[string]bool{
		"fibonacci_support":   fibCond,
		"macd_bullish":        macdCond,
		"rsi_favorable":       rsiCond,
		"volume_confirmation": volCond,
		"trend_favorable":     trendCond,
	}

	var confidence float64
	met := 0
	for name, cond := range conditions {
		if !cond {
			continue
		}
		met++
		switch name {
		case "fibonacci_support":
			confidence += weightSupport
		case "macd_bullish":
			confidence += weightMACD
		case "rsi_favorable":
			confidence += weightRSI
		case "volume_confirmation":
			confidence += weightVolume
		case "trend_favorable":
			confidence += weightTrend
		}
	}

	if met < 3 || confidence < s.cfg.MinConfidence {
		return signal.Signal{}, false
	}

	fibLevel := 0.0
	if fibIdx >= 0 {
		fibLevel = indicator.FibLevels[fibIdx]
	}

	return signal.Signal{
		Time:       now,
		Symbol:     symbol,
		Side:       signal.Buy,
		Price:      price,
		Confidence: confidence,
		Reason:     "multi-indicator entry",
		Metadata: map[string]any{
			"conditions":   conditions,
			"fib_level":    fibLevel,
			"rsi":          rsi[i],
			"macd":         macd[i],
			"volume_ratio": volRatio[i],
		},
	}, true
}

func (s *FibonacciMACD) checkSell(symbol string, now time.Time, closes, volumes []float64) (signal.Signal, bool) {
	lot, ok := s.entries[symbol]
	if !ok || lot.quantity <= 0 {
		return signal.Signal{}, false
	}

	i := len(closes) - 1
	price := closes[i]
	returnPct := (price - lot.price) / lot.price

	macd, macdSig, _ := indicator.MACD(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	rsi := indicator.RSI(closes, s.cfg.RSIPeriod)

	takeProfit := returnPct > s.cfg.TakeProfit
	stopLoss := returnPct < s.cfg.StopLoss
	macdBearish := macd[i] < macdSig[i] && macd[i-1] >= macdSig[i-1]
	rsiOverbought := rsi != nil && rsi[i] > s.cfg.RSIOverbought

	if !takeProfit && !stopLoss && !(rsiOverbought && macdBearish) {
		return signal.Signal{}, false
	}

	confidence := 0.6
	reason := "rsi overbought + macd bearish"
	if takeProfit {
		confidence = 0.8
		reason = "take profit"
	} else if stopLoss {
		confidence = 0.8
		reason = "stop loss"
	}

	return signal.Signal{
		Time:       now,
		Symbol:     symbol,
		Side:       signal.Sell,
		Price:      price,
		Confidence: confidence,
		Reason:     reason,
		Metadata: map[string]any{
			"return_pct":  returnPct,
			"entry_price": lot.price,
		},
	}, true
}

// PositionSize scales buys by confidence against a fixed fraction of
// cash, and sells the entire held quantity.
func (s *FibonacciMACD) PositionSize(sig signal.Signal, cash float64, held int) int {
	switch sig.Side {
	case signal.Buy:
		if sig.Price <= 0 {
			return 0
		}
		target := cash * s.cfg.PositionSizePct * sig.Confidence
		size := int(target / sig.Price)
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
