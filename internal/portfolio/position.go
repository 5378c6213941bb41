// Package portfolio owns the cash and position state mutated by trade
// execution. The ledger here is the single source of truth during a
// backtest; strategies only ever see copies.
package portfolio

import "time"

// Position is an open holding for one symbol. A symbol has at most one
// open position; repeated buys accumulate into it at a volume-weighted
// entry price.
type Position struct {
	Symbol     string    `json:"symbol"`
	Quantity   int       `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryDate  time.Time `json:"entry_date"`
}

// Action is what a trade did.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Trade is one append-only trade-log entry.
type Trade struct {
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Quantity   int       `json:"quantity"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	CashDelta  float64   `json:"cash_delta"`
}

// Snapshot is the portfolio state recorded once per replay step.
type Snapshot struct {
	Time           time.Time `json:"time"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
	OpenPositions  int       `json:"open_positions"`
}
