package portfolio

import (
	"sort"
	"time"
)

// Ledger tracks cash, open positions, the trade log and the snapshot
// history for one backtest run. It is not safe for concurrent use; the
// replay loop is strictly sequential.
type Ledger struct {
	cash      float64
	positions map[string]*Position
	trades    []Trade
	snapshots []Snapshot

	// Last mark price per symbol, carried forward when a symbol has no
	// bar at the snapshot timestamp.
	marks map[string]float64
}

func NewLedger(initialCash float64) *Ledger {
	l := &Ledger{}
	l.Reset(initialCash)
	return l
}

// Reset clears all mutable state so runs never leak into each other.
func (l *Ledger) Reset(initialCash float64) {
	l.cash = initialCash
	l.positions = make(map[string]*Position)
	l.trades = nil
	l.snapshots = nil
	l.marks = make(map[string]float64)
}

func (l *Ledger) Cash() float64 { return l.cash }

// Held returns the open quantity for symbol, zero when flat.
func (l *Ledger) Held(symbol string) int {
	if p, ok := l.positions[symbol]; ok {
		return p.Quantity
	}
	return 0
}

// Position returns a copy of the open position for symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	if p, ok := l.positions[symbol]; ok {
		return *p, true
	}
	return Position{}, false
}

// Positions returns copies of all open positions, sorted by symbol.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (l *Ledger) Trades() []Trade       { return l.trades }
func (l *Ledger) Snapshots() []Snapshot { return l.snapshots }

// Buy executes a buy of qty shares at price, charging commission as a
// fraction of trade value. A buy whose full cost exceeds available cash
// is skipped entirely; there are no partial fills. Returns the trade
// and true when the buy executed.
func (l *Ledger) Buy(t time.Time, symbol string, qty int, price, commissionRate float64) (Trade, bool) {
	if qty <= 0 || price <= 0 {
		return Trade{}, false
	}
	commission := float64(qty) * price * commissionRate
	cost := float64(qty)*price + commission
	if cost > l.cash {
		return Trade{}, false
	}

	if p, ok := l.positions[symbol]; ok {
		total := p.Quantity + qty
		p.EntryPrice = (float64(p.Quantity)*p.EntryPrice + float64(qty)*price) / float64(total)
		p.Quantity = total
	} else {
		l.positions[symbol] = &Position{
			Symbol:     symbol,
			Quantity:   qty,
			EntryPrice: price,
			EntryDate:  t,
		}
	}

	l.cash -= cost
	trade := Trade{
		Time:       t,
		Symbol:     symbol,
		Action:     ActionBuy,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		CashDelta:  -cost,
	}
	l.trades = append(l.trades, trade)
	return trade, true
}

// Sell executes a sell of up to qty shares at price. Quantity is capped
// at the held amount; selling with no open position is a silent no-op.
// The position is removed exactly when its quantity reaches zero.
func (l *Ledger) Sell(t time.Time, symbol string, qty int, price, commissionRate float64) (Trade, bool) {
	p, ok := l.positions[symbol]
	if !ok || qty <= 0 || price <= 0 {
		return Trade{}, false
	}
	if qty > p.Quantity {
		qty = p.Quantity
	}

	commission := float64(qty) * price * commissionRate
	proceeds := float64(qty)*price - commission
	l.cash += proceeds

	p.Quantity -= qty
	if p.Quantity == 0 {
		delete(l.positions, symbol)
	}

	trade := Trade{
		Time:       t,
		Symbol:     symbol,
		Action:     ActionSell,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		CashDelta:  proceeds,
	}
	l.trades = append(l.trades, trade)
	return trade, true
}

// Value marks open positions to the given prices and returns total
// portfolio value. Symbols missing from prices use their last known
// mark, falling back to entry price.
func (l *Ledger) Value(prices map[string]float64) float64 {
	return l.cash + l.positionsValue(prices)
}

func (l *Ledger) positionsValue(prices map[string]float64) float64 {
	var total float64
	for symbol, p := range l.positions {
		mark, ok := prices[symbol]
		if ok {
			l.marks[symbol] = mark
		} else if last, seen := l.marks[symbol]; seen {
			mark = last
		} else {
			mark = p.EntryPrice
		}
		total += float64(p.Quantity) * mark
	}
	return total
}

// RecordSnapshot appends one portfolio snapshot for timestamp t.
func (l *Ledger) RecordSnapshot(t time.Time, prices map[string]float64) Snapshot {
	for symbol, price := range prices {
		l.marks[symbol] = price
	}
	pv := l.positionsValue(prices)
	snap := Snapshot{
		Time:           t,
		Cash:           l.cash,
		PositionsValue: pv,
		TotalValue:     l.cash + pv,
		OpenPositions:  len(l.positions),
	}
	l.snapshots = append(l.snapshots, snap)
	return snap
}
