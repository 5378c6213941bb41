package analysis

import (
	"math"
	"time"

	"github.com/marketlab/stockbt/internal/portfolio"
)

// RoundTrip is a matched buy/sell pair (possibly a partial lot) used
// for trade-level P&L attribution.
type RoundTrip struct {
	Symbol      string    `json:"symbol"`
	Quantity    int       `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	PnL         float64   `json:"pnl"`
	ReturnPct   float64   `json:"return_pct"`
	HoldingDays int       `json:"holding_days"`
}

type lot struct {
	quantity int
	price    float64
	time     time.Time
}

// MatchRoundTrips reconstructs round trips from a chronological trade
// log using FIFO lot matching: each sell consumes the oldest open buy
// lots for its symbol first, splitting a lot when the sell is smaller.
func MatchRoundTrips(trades []portfolio.Trade) []RoundTrip {
	queues := make(map[string][]lot)
	var trips []RoundTrip

	for _, trade := range trades {
		switch trade.Action {
		case portfolio.ActionBuy:
			queues[trade.Symbol] = append(queues[trade.Symbol], lot{
				quantity: trade.Quantity,
				price:    trade.Price,
				time:     trade.Time,
			})
		case portfolio.ActionSell:
			queue := queues[trade.Symbol]
			remaining := trade.Quantity
			for remaining > 0 && len(queue) > 0 {
				oldest := &queue[0]
				matched := oldest.quantity
				if matched > remaining {
					matched = remaining
				}

				trips = append(trips, RoundTrip{
					Symbol:      trade.Symbol,
					Quantity:    matched,
					EntryPrice:  oldest.price,
					ExitPrice:   trade.Price,
					EntryTime:   oldest.time,
					ExitTime:    trade.Time,
					PnL:         (trade.Price - oldest.price) * float64(matched),
					ReturnPct:   (trade.Price - oldest.price) / oldest.price,
					HoldingDays: int(trade.Time.Sub(oldest.time).Hours() / 24),
				})

				oldest.quantity -= matched
				remaining -= matched
				if oldest.quantity == 0 {
					queue = queue[1:]
				}
			}
			queues[trade.Symbol] = queue
		}
	}
	return trips
}

// OpenLots returns the unmatched buy lots per symbol after FIFO
// consumption, oldest first.
func OpenLots(trades []portfolio.Trade) map[string][]portfolio.Position {
	queues := make(map[string][]lot)
	for _, trade := range trades {
		switch trade.Action {
		case portfolio.ActionBuy:
			queues[trade.Symbol] = append(queues[trade.Symbol], lot{
				quantity: trade.Quantity,
				price:    trade.Price,
				time:     trade.Time,
			})
		case portfolio.ActionSell:
			queue := queues[trade.Symbol]
			remaining := trade.Quantity
			for remaining > 0 && len(queue) > 0 {
				if queue[0].quantity > remaining {
					queue[0].quantity -= remaining
					remaining = 0
					break
				}
				remaining -= queue[0].quantity
				queue = queue[1:]
			}
			queues[trade.Symbol] = queue
		}
	}

	open := make(map[string][]portfolio.Position)
	for symbol, queue := range queues {
		for _, l := range queue {
			open[symbol] = append(open[symbol], portfolio.Position{
				Symbol:     symbol,
				Quantity:   l.quantity,
				EntryPrice: l.price,
				EntryDate:  l.time,
			})
		}
	}
	return open
}

// TradeStats are the trade-level statistics over matched round trips.
type TradeStats struct {
	TotalTrades          int     `json:"total_trades"`
	RoundTrips           int     `json:"round_trips"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	WinRate              float64 `json:"win_rate"`
	TotalPnL             float64 `json:"total_pnl"`
	GrossProfit          float64 `json:"gross_profit"`
	GrossLoss            float64 `json:"gross_loss"`
	ProfitFactor         Float64 `json:"profit_factor"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"`
	AvgTrade             float64 `json:"avg_trade"`
	Expectancy           float64 `json:"expectancy"`
	LargestWin           float64 `json:"largest_win"`
	LargestLoss          float64 `json:"largest_loss"`
	AvgHoldingDays       float64 `json:"avg_holding_days"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// TradeMetrics computes trade statistics from the raw trade log.
// ProfitFactor is +Inf when there are no losing round trips.
func (a *Analyzer) TradeMetrics(trades []portfolio.Trade) TradeStats {
	stats := TradeStats{TotalTrades: len(trades)}
	trips := MatchRoundTrips(trades)
	if len(trips) == 0 {
		return stats
	}

	stats.RoundTrips = len(trips)
	var wins, losses []float64
	var holdingSum float64
	for _, trip := range trips {
		stats.TotalPnL += trip.PnL
		holdingSum += float64(trip.HoldingDays)
		if trip.PnL > 0 {
			wins = append(wins, trip.PnL)
			stats.GrossProfit += trip.PnL
			if trip.PnL > stats.LargestWin {
				stats.LargestWin = trip.PnL
			}
		} else if trip.PnL < 0 {
			losses = append(losses, trip.PnL)
			stats.GrossLoss += -trip.PnL
			if trip.PnL < stats.LargestLoss {
				stats.LargestLoss = trip.PnL
			}
		}
	}

	stats.WinningTrades = len(wins)
	stats.LosingTrades = len(losses)
	stats.WinRate = float64(len(wins)) / float64(len(trips))
	stats.AvgWin = mean(wins)
	stats.AvgLoss = mean(losses)
	stats.AvgTrade = stats.TotalPnL / float64(len(trips))
	stats.Expectancy = stats.WinRate*stats.AvgWin + (1-stats.WinRate)*stats.AvgLoss
	stats.AvgHoldingDays = holdingSum / float64(len(trips))

	if stats.GrossLoss > 0 {
		stats.ProfitFactor = Float64(stats.GrossProfit / stats.GrossLoss)
	} else {
		stats.ProfitFactor = Float64(math.Inf(1))
	}

	curWins, curLosses := 0, 0
	for _, trip := range trips {
		if trip.PnL > 0 {
			curWins++
			curLosses = 0
			if curWins > stats.MaxConsecutiveWins {
				stats.MaxConsecutiveWins = curWins
			}
		} else {
			curLosses++
			curWins = 0
			if curLosses > stats.MaxConsecutiveLosses {
				stats.MaxConsecutiveLosses = curLosses
			}
		}
	}
	return stats
}
