package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marketlab/stockbt/internal/backtest"
	"github.com/marketlab/stockbt/internal/candle"
	"github.com/marketlab/stockbt/internal/config"
	"github.com/marketlab/stockbt/internal/db"
	"github.com/marketlab/stockbt/internal/strategy"
)

func main() {
	cfg := config.MustLoad()
	log.Println("Starting stockbt backtester")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down", sig)
		cancel()
	}()

	storage, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	from, _ := cfg.FromTime()
	to, _ := cfg.ToTime()

	if cfg.DataFile != "" {
		candles, err := candle.LoadCSV(cfg.DataFile, "")
		if err != nil {
			log.Fatalf("Failed to load candles: %v", err)
		}
		if err := storage.SaveCandles(ctx, candles); err != nil {
			log.Fatalf("Failed to store candles: %v", err)
		}
		log.Printf("Loaded %d candles from %s", len(candles), cfg.DataFile)
	}

	rows, err := storage.GetAllCandles(ctx, from, to)
	if err != nil {
		log.Fatalf("Failed to read candles: %v", err)
	}
	series := candle.NewSeries(rows)
	if series.Len() == 0 {
		log.Fatal("No candle data available; provide -data or preload storage")
	}
	log.Printf("Candle series: %d rows, symbols %v", series.Len(), series.Symbols())

	strats := strategy.New(cfg.Strategies)
	if len(strats) == 0 {
		log.Fatalf("No known strategies in %v", cfg.Strategies)
	}

	engine := backtest.NewEngine(backtest.Config{
		InitialCapital:  cfg.InitialCapital,
		Commission:      cfg.Commission,
		Slippage:        cfg.Slippage,
		RiskFreeRate:    cfg.RiskFreeRate,
		BenchmarkSymbol: cfg.BenchmarkSymbol,
	})
	engine.Journal = storage

	results, err := engine.RunMultiple(ctx, strats, series, backtest.Options{
		StartDate: from,
		EndDate:   to,
	})
	if err != nil {
		log.Printf("Backtest finished with errors: %v", err)
	}

	for _, result := range results {
		backtest.PrintSummary(result)
		if err := backtest.SaveResults(result, cfg.OutputDir); err != nil {
			log.Printf("Failed to save results for %s: %v", result.StrategyName, err)
		}
	}
	if len(results) == 0 {
		os.Exit(1)
	}
}

func openStorage(cfg config.Config) (db.Storage, error) {
	if cfg.Storage == "postgres" {
		return db.NewPostgres(cfg.DBConnStr)
	}
	return db.NewMemory(), nil
}
