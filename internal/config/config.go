// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

/*
YAML config example:

initial_capital: 100000
commission: 0.001
slippage: 0.0005
risk_free_rate: 0.02
benchmark_symbol: "SPY"
strategies: ["fibonacci-macd", "ma-cross"]
data_file: "data/candles.csv"
storage: "memory"
db_conn_str: "postgres://..."
from: "2020-01-01"
to: "2024-12-31"
output_dir: "."
*/

// Config is the immutable run configuration. It is built once by Load
// and passed by value from then on.
type Config struct {
	InitialCapital  float64  `yaml:"initial_capital"`
	Commission      float64  `yaml:"commission"`
	Slippage        float64  `yaml:"slippage"`
	RiskFreeRate    float64  `yaml:"risk_free_rate"`
	BenchmarkSymbol string   `yaml:"benchmark_symbol"`
	Strategies      []string `yaml:"strategies"`
	DataFile        string   `yaml:"data_file"`
	Storage         string   `yaml:"storage"` // "memory" or "postgres"
	DBConnStr       string   `yaml:"db_conn_str"`
	From            string   `yaml:"from"` // YYYY-MM-DD, optional
	To              string   `yaml:"to"`   // YYYY-MM-DD, optional
	OutputDir       string   `yaml:"output_dir"`
}

// Load reads flags, an optional YAML file and the environment. A .env
// file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	initialCapital := flag.Float64("initial-capital", 100000.0, "Starting cash for each backtest")
	commission := flag.Float64("commission", 0.001, "Commission as a fraction of trade value")
	slippage := flag.Float64("slippage", 0.0005, "Slippage as a fraction of price")
	riskFreeRate := flag.Float64("risk-free-rate", 0.02, "Annual risk-free rate for risk metrics")
	benchmark := flag.String("benchmark", "SPY", "Benchmark symbol for comparison metrics")
	strategies := flag.String("strategies", "fibonacci-macd", "Comma-separated strategy names")
	dataFile := flag.String("data", "", "Path to a CSV file of daily candles")
	storage := flag.String("storage", "memory", "Candle storage backend: memory or postgres")
	from := flag.String("from", "", "Backtest start date (YYYY-MM-DD)")
	to := flag.String("to", "", "Backtest end date (YYYY-MM-DD)")
	outputDir := flag.String("output-dir", ".", "Directory for result CSV files")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
		if fileCfg.DBConnStr == "" {
			fileCfg.DBConnStr = os.Getenv("DB_CONN_STR")
		}
		return fileCfg, fileCfg.Validate()
	}

	cfg := Config{
		InitialCapital:  *initialCapital,
		Commission:      *commission,
		Slippage:        *slippage,
		RiskFreeRate:    *riskFreeRate,
		BenchmarkSymbol: *benchmark,
		Strategies:      strings.Split(*strategies, ","),
		DataFile:        *dataFile,
		Storage:         *storage,
		DBConnStr:       os.Getenv("DB_CONN_STR"),
		From:            *from,
		To:              *to,
		OutputDir:       *outputDir,
	}
	return cfg, cfg.Validate()
}

// MustLoad is Load that exits on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.InitialCapital < 0 {
		return fmt.Errorf("initial capital cannot be negative")
	}
	if c.Commission < 0 || c.Slippage < 0 {
		return fmt.Errorf("commission and slippage cannot be negative")
	}
	if c.Storage != "" && c.Storage != "memory" && c.Storage != "postgres" {
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.Storage == "postgres" && c.DBConnStr == "" {
		return fmt.Errorf("postgres storage requires a connection string")
	}
	if _, err := c.FromTime(); err != nil {
		return err
	}
	if _, err := c.ToTime(); err != nil {
		return err
	}
	return nil
}

// FromTime parses the optional start date.
func (c Config) FromTime() (time.Time, error) { return parseDate(c.From) }

// ToTime parses the optional end date.
func (c Config) ToTime() (time.Time, error) { return parseDate(c.To) }

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UTC(), nil
}
