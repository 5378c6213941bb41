// Package signal
package signal

import "time"

// Side is the direction of a trading signal.
type Side int8

const (
	Buy  Side = 1
	Hold Side = 0
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}

// Signal is a strategy's timestamped trade instruction. It is a value
// type and never mutated after creation.
type Signal struct {
	Time       time.Time      `json:"time"`
	Symbol     string         `json:"symbol"`
	Side       Side           `json:"side"`
	Price      float64        `json:"price"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clamped returns a copy with confidence forced into [0,1]. Strategy
// condition weights may sum above 1, so the engine clamps before use.
func (s Signal) Clamped() Signal {
	if s.Confidence < 0 {
		s.Confidence = 0
	} else if s.Confidence > 1 {
		s.Confidence = 1
	}
	return s
}
