package candle

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads daily candles from a CSV file. The header is matched by
// name, case-insensitively; a Symbol column is optional when a default
// symbol is given. Dates parse as YYYY-MM-DD or RFC 3339.
func LoadCSV(path, defaultSymbol string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	candles, err := ReadCSV(f, defaultSymbol)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return candles, nil
}

// ReadCSV parses candles from r. See LoadCSV for the expected layout.
func ReadCSV(r io.Reader, defaultSymbol string) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	dateCol, ok := findColumn(cols, "date", "timestamp", "time")
	if !ok {
		return nil, fmt.Errorf("no date column in header %v", header)
	}
	for _, required := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("no %s column in header %v", required, header)
		}
	}
	symbolCol, hasSymbol := cols["symbol"]
	if !hasSymbol && defaultSymbol == "" {
		return nil, fmt.Errorf("no symbol column and no default symbol")
	}

	var candles []Candle
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		ts, err := parseTimestamp(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		c := Candle{Timestamp: ts, Symbol: defaultSymbol}
		if hasSymbol {
			c.Symbol = strings.TrimSpace(record[symbolCol])
		}
		if c.Open, err = parseField(record, cols["open"], line); err != nil {
			return nil, err
		}
		if c.High, err = parseField(record, cols["high"], line); err != nil {
			return nil, err
		}
		if c.Low, err = parseField(record, cols["low"], line); err != nil {
			return nil, err
		}
		if c.Close, err = parseField(record, cols["close"], line); err != nil {
			return nil, err
		}
		if c.Volume, err = parseField(record, cols["volume"], line); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func findColumn(cols map[string]int, names ...string) (int, bool) {
	for _, name := range names {
		if i, ok := cols[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func parseField(record []string, col, line int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", line, err)
	}
	return v, nil
}
