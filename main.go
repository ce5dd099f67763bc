package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cryptoTradeSim/config"
	"cryptoTradeSim/internal/adapters/logger"
	"cryptoTradeSim/internal/adapters/sqlite"
	"cryptoTradeSim/internal/app"
	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/ports"
	"cryptoTradeSim/internal/utils"
)

// Paper-trading entrypoint: replays a signal file through the trading
// service, with every opportunity-sell plan persisted to the audit store.
func main() {
	klinesPath := flag.String("klines", "", "kline CSV for the traded assets (single file, mixed assets allowed)")
	signalsPath := flag.String("signals", "", "signal CSV (time, asset_id, side, confidence)")
	flag.Parse()

	if *klinesPath == "" || *signalsPath == "" {
		log.Fatal("usage: cryptoTradeSim -klines data/klines.csv -signals data/signals.csv")
	}

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Build logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to build zap logger: %v", err)
		}
		defer zl.Sync()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	// 3. Open the audit store
	store, err := sqlite.NewPlanStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open plan store: %v", err)
	}
	defer store.Close()

	// 4. Build the trading service
	service, err := app.NewTradingService(cfg, appLogger, store)
	if err != nil {
		log.Fatalf("FATAL: Failed to build trading service: %v", err)
	}

	// 5. Load market data and signals
	klines, err := utils.ReadKlinesFromCSV(*klinesPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load klines: %v", err)
	}
	signals, err := utils.ReadSignalsFromCSV(*signalsPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load signals: %v", err)
	}
	appLogger.Info(ctx, "Paper trading session starting", map[string]interface{}{
		"portfolio": cfg.PortfolioID,
		"klines":    len(klines),
		"signals":   len(signals),
		"funds":     cfg.InitialFunds,
	})

	// 6. Replay signals against the latest prices seen so far
	prices := make(map[string]float64)
	volumes := make(map[string]float64)
	next := 0
	for _, k := range klines {
		if ctx.Err() != nil {
			break
		}
		prices[k.AssetID] = k.Close
		volumes[k.AssetID] = k.Volume
		for next < len(signals) && !signals[next].Time.After(k.OpenTime) {
			if _, err := service.ProcessSignal(ctx, signals[next], prices, volumes); err != nil {
				appLogger.Error(ctx, err, "Signal execution failed", map[string]interface{}{
					"asset": signals[next].AssetID, "side": string(signals[next].Side)})
			}
			next++
		}
	}

	// 7. Final summary
	positions := service.Positions()
	held := make([]string, 0, len(positions))
	for _, p := range positions {
		held = append(held, fmt.Sprintf("%s:%.6f", p.AssetID, p.Quantity))
	}
	realized := 0.0
	for _, t := range service.Trades() {
		if t.Side == domain.Sell {
			realized += t.RealizedPnL
		}
	}
	appLogger.Info(ctx, "Paper trading session finished", map[string]interface{}{
		"cash":        fmt.Sprintf("%.2f", service.Cash()),
		"equity":      fmt.Sprintf("%.2f", service.PortfolioValue(prices)),
		"positions":   held,
		"trades":      len(service.Trades()),
		"realizedPnL": fmt.Sprintf("%.2f", realized),
	})
}
