// Package db
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/journal"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB

	SaveCandle(ctx context.Context, c candle.Candle) error
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error)
	GetAllCandles(ctx context.Context, start, end time.Time) ([]candle.Candle, error)
	GetLatestCandle(ctx context.Context, symbol string) (*candle.Candle, error)
	GetCandleCount(ctx context.Context, symbol string, start, end time.Time) (int, error)
	DeleteCandles(ctx context.Context, symbol string, before time.Time) error

	journal.Journaler
}
