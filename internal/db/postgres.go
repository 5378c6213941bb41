package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/journal"
)

type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection and ensures the schema exists.
func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) GetDB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) initSchema() error {
	_, err := p.db.Exec(`
	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (symbol, timestamp)
	);
	CREATE TABLE IF NOT EXISTS events (
		id SERIAL PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		description TEXT,
		data JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_events_type_time ON events (type, time)`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// executeWithTransaction runs fn inside a transaction, rolling back on
// error.
func (p *Postgres) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}
	return nil
}

// -------- CandleStorage --------

func (p *Postgres) SaveCandle(ctx context.Context, c candle.Candle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candle for %s at %s: %w", c.Symbol, c.Timestamp, err)
	}
	_, err := p.db.ExecContext(ctx, `
	INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (symbol, timestamp) DO UPDATE SET
		open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
		close=EXCLUDED.close, volume=EXCLUDED.volume`,
		c.Symbol, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("failed to save candle for %s at %s: %w", c.Symbol, c.Timestamp, err)
	}
	return nil
}

func (p *Postgres) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d for %s at %s: %w", i, c.Symbol, c.Timestamp, err)
		}
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timestamp, open, high, low, close, volume)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, volume=EXCLUDED.volume`)
		if err != nil {
			return fmt.Errorf("failed to prepare candle insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range candles {
			if _, err := stmt.ExecContext(ctx, c.Symbol, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
				return fmt.Errorf("failed to save candle for %s at %s: %w", c.Symbol, c.Timestamp, err)
			}
		}
		return nil
	})
}

func (p *Postgres) GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	query := `
	SELECT symbol, timestamp, open, high, low, close, volume
	FROM candles WHERE UPPER(symbol)=UPPER($1)`
	args := []any{symbol}
	query, args = appendTimeBounds(query, args, "timestamp", start, end)
	query += " ORDER BY timestamp"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w", symbol, err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func (p *Postgres) GetAllCandles(ctx context.Context, start, end time.Time) ([]candle.Candle, error) {
	query := `
	SELECT symbol, timestamp, open, high, low, close, volume
	FROM candles WHERE 1=1`
	var args []any
	query, args = appendTimeBounds(query, args, "timestamp", start, end)
	query += " ORDER BY timestamp, symbol"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

func (p *Postgres) GetLatestCandle(ctx context.Context, symbol string) (*candle.Candle, error) {
	row := p.db.QueryRowContext(ctx, `
	SELECT symbol, timestamp, open, high, low, close, volume
	FROM candles WHERE UPPER(symbol)=UPPER($1)
	ORDER BY timestamp DESC LIMIT 1`, symbol)

	var c candle.Candle
	err := row.Scan(&c.Symbol, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest candle for %s: %w", symbol, err)
	}
	return &c, nil
}

func (p *Postgres) GetCandleCount(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM candles WHERE UPPER(symbol)=UPPER($1)`
	args := []any{symbol}
	query, args = appendTimeBounds(query, args, "timestamp", start, end)

	var count int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count candles for %s: %w", symbol, err)
	}
	return count, nil
}

func (p *Postgres) DeleteCandles(ctx context.Context, symbol string, before time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM candles WHERE UPPER(symbol)=UPPER($1) AND timestamp < $2`,
		symbol, before.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete candles for %s: %w", symbol, err)
	}
	return nil
}

func appendTimeBounds(query string, args []any, col string, start, end time.Time) (string, []any) {
	if !start.IsZero() {
		args = append(args, start.UTC())
		query += fmt.Sprintf(" AND %s >= $%d", col, len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		query += fmt.Sprintf(" AND %s < $%d", col, len(args))
	}
	return query, args
}

func scanCandles(rows *sql.Rows) ([]candle.Candle, error) {
	var out []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Symbol, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// -------- JournalStorage --------

func (p *Postgres) LogEvent(event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = p.db.Exec(`
	INSERT INTO events (time, type, description, data)
	VALUES ($1,$2,$3,$4)`,
		event.Time.UTC(), event.Type, event.Description, data)
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvents(eventType string, start, end time.Time) ([]journal.Event, error) {
	query := `SELECT time, type, description, data FROM events WHERE type=$1`
	args := []any{eventType}
	query, args = appendTimeBounds(query, args, "time", start, end)
	query += " ORDER BY time"

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
