// Package strategy
package strategy

import (
	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/portfolio"
	"github.com/marketlab/stockbt/internal/strategy/signal"
)

// Strategy is the interface for all trading strategies. The view passed
// to GenerateSignals is the engine's point-in-time slice; a strategy
// must only read it, and signals not stamped at the view's last
// timestamp are dropped by the engine.
type Strategy interface {
	Name() string
	WarmupPeriod() int
	GenerateSignals(view *candle.Series) ([]signal.Signal, error)

	// PositionSize converts a signal into a share count. cash and held
	// come from the engine's ledger, which is authoritative: a strategy
	// must not trust any internal mirror over these values. Buy sizes
	// must not exceed floor(cash/price); sell sizes must not exceed held.
	PositionSize(sig signal.Signal, cash float64, held int) int
}

// FillObserver is implemented by strategies that mirror executed fills,
// typically to evaluate exit rules against their entry prices. The
// mirror is bookkeeping only; the engine's ledger stays authoritative.
type FillObserver interface {
	OnFill(trade portfolio.Trade)
}

// Resetter is implemented by strategies that keep internal state across
// calls. The engine resets strategies before every run so repeated runs
// never leak state.
type Resetter interface {
	Reset()
}

// New builds strategies from config names. Unknown names are skipped.
func New(names []string) []Strategy {
	var strats []Strategy
	for _, name := range names {
		switch name {
		case "fibonacci-macd":
			strats = append(strats, NewFibonacciMACD(FibonacciMACDConfig{}))
		case "ma-cross":
			strats = append(strats, NewMACross(MACrossConfig{}))
		}
	}
	return strats
}
