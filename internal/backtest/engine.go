// Package backtest
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/journal"
	"github.com/marketlab/stockbt/internal/portfolio"
	"github.com/marketlab/stockbt/internal/strategy"
	"github.com/marketlab/stockbt/internal/strategy/signal"
	"github.com/marketlab/stockbt/internal/utils"
)

var (
	// ErrNoData is returned when the date-filtered dataset is empty.
	ErrNoData = errors.New("backtest: no data available for the specified date range")
	// ErrNilStrategy is returned when Run is given a nil strategy.
	ErrNilStrategy = errors.New("backtest: nil strategy")
)

// Config are the engine-level cost and capital parameters. They live on
// the engine, not the strategy, so different strategies are always
// compared under identical cost assumptions. Zero commission, slippage
// and risk-free rate mean a frictionless simulation.
type Config struct {
	InitialCapital  float64 // default 100000
	Commission      float64 // fraction of trade value
	Slippage        float64 // fraction of price
	RiskFreeRate    float64 // annual
	BenchmarkSymbol string  // default "SPY"
}

func (c *Config) applyDefaults() {
	if c.InitialCapital == 0 {
		c.InitialCapital = 100000
	}
	if c.BenchmarkSymbol == "" {
		c.BenchmarkSymbol = "SPY"
	}
}

// Options narrow a single run. Zero dates leave the range unbounded.
type Options struct {
	StartDate       time.Time
	EndDate         time.Time
	BenchmarkSymbol string // overrides Config.BenchmarkSymbol when set
}

// Engine drives the day-by-day replay loop. It owns the authoritative
// ledger; all engine state is reset at the start of every run, so one
// engine can be reused across strategies without leakage.
type Engine struct {
	cfg    Config
	ledger *portfolio.Ledger

	// Journal receives backtest lifecycle and trade events when set.
	Journal journal.Journaler
}

func NewEngine(cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:    cfg,
		ledger: portfolio.NewLedger(cfg.InitialCapital),
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Run replays the series through the strategy one timestamp at a time.
// The strategy only ever sees the point-in-time view up to the current
// timestamp. A per-timestamp signal-generation error is logged and that
// timestamp skipped; an empty dataset is fatal.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, series *candle.Series, opts Options) (*Result, error) {
	if strat == nil {
		return nil, ErrNilStrategy
	}
	data := series.Between(opts.StartDate, opts.EndDate)
	if data.Len() == 0 {
		return nil, ErrNoData
	}

	e.ledger.Reset(e.cfg.InitialCapital)
	if r, ok := strat.(strategy.Resetter); ok {
		r.Reset()
	}

	benchSymbol := e.cfg.BenchmarkSymbol
	if opts.BenchmarkSymbol != "" {
		benchSymbol = opts.BenchmarkSymbol
	}

	stamps := data.Timestamps()
	log.Printf("Run | %s: backtesting %s to %s (%d periods)",
		strat.Name(), stamps[0].Format("2006-01-02"), stamps[len(stamps)-1].Format("2006-01-02"), len(stamps))
	e.logEvent("backtest", "run_started", map[string]any{
		"strategy": strat.Name(),
		"periods":  len(stamps),
	})

	observer, _ := strat.(strategy.FillObserver)

	for _, t := range stamps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		view := data.UpTo(t)
		sigs, err := strat.GenerateSignals(view)
		if err != nil {
			// Partial-failure isolation: one bad timestamp never kills
			// the whole run.
			utils.GetLogger().Printf("Run | %s: error generating signals for %s: %v",
				strat.Name(), t.Format("2006-01-02"), err)
			e.logEvent("error", "signal_generation_failed", map[string]any{
				"strategy":  strat.Name(),
				"timestamp": t,
				"error":     err.Error(),
			})
			continue
		}

		for _, sig := range sigs {
			// Signals not stamped at the current timestamp are stale
			// or premature output; drop them.
			if !sig.Time.Equal(t) {
				continue
			}
			e.execute(strat, sig.Clamped(), t, observer)
		}

		e.ledger.RecordSnapshot(t, data.PricesAt(t))
	}

	result := e.buildResult(strat.Name(), data, benchSymbol)
	e.logEvent("backtest", "run_finished", map[string]any{
		"strategy":    strat.Name(),
		"final_value": result.FinalValue,
		"trades":      result.TotalTrades,
	})
	log.Printf("Run | %s: final value %.2f, return %.2f%%, trades %d",
		strat.Name(), result.FinalValue, result.TotalReturn*100, result.TotalTrades)
	return result, nil
}

// execute applies slippage, sizes the order against the authoritative
// ledger and executes it. Underfunded buys and sells without a position
// are silent no-ops.
func (e *Engine) execute(strat strategy.Strategy, sig signal.Signal, t time.Time, observer strategy.FillObserver) {
	switch sig.Side {
	case signal.Buy:
		sig.Price *= 1 + e.cfg.Slippage
	case signal.Sell:
		sig.Price *= 1 - e.cfg.Slippage
	default:
		return
	}

	qty := strat.PositionSize(sig, e.ledger.Cash(), e.ledger.Held(sig.Symbol))

	var trade portfolio.Trade
	var executed bool
	switch sig.Side {
	case signal.Buy:
		trade, executed = e.ledger.Buy(t, sig.Symbol, qty, sig.Price, e.cfg.Commission)
	case signal.Sell:
		trade, executed = e.ledger.Sell(t, sig.Symbol, qty, sig.Price, e.cfg.Commission)
	}
	if !executed {
		return
	}

	e.logEvent("trade", "executed", map[string]any{
		"symbol":   trade.Symbol,
		"action":   string(trade.Action),
		"quantity": trade.Quantity,
		"price":    trade.Price,
	})
	if observer != nil {
		observer.OnFill(trade)
	}
}

func (e *Engine) logEvent(eventType, description string, data map[string]any) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.LogEvent(journal.Event{
		Time:        time.Now().UTC(),
		Type:        eventType,
		Description: description,
		Data:        data,
	}); err != nil {
		log.Printf("logEvent | failed to journal %s/%s: %v", eventType, description, err)
	}
}

// RunMultiple backtests each strategy against the same data under the
// same cost assumptions. Every strategy gets a freshly reset ledger;
// one failing strategy does not stop the others.
func (e *Engine) RunMultiple(ctx context.Context, strats []strategy.Strategy, series *candle.Series, opts Options) (map[string]*Result, error) {
	results := make(map[string]*Result, len(strats))
	var firstErr error
	for _, strat := range strats {
		if strat == nil {
			continue
		}
		result, err := e.Run(ctx, strat, series, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, err
			}
			log.Printf("RunMultiple | %s failed: %v", strat.Name(), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("strategy %s: %w", strat.Name(), err)
			}
			continue
		}
		results[strat.Name()] = result
	}
	return results, firstErr
}
