package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"cryptoTradeSim/config"
	"cryptoTradeSim/internal/adapters/logger"
	"cryptoTradeSim/internal/backtesting"
	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/utils"
)

// klineFlags collects repeated -klines ASSET=path flags.
type klineFlags map[string]string

func (k klineFlags) String() string { return fmt.Sprintf("%v", map[string]string(k)) }

func (k klineFlags) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("expected ASSET=path, got %q", value)
	}
	k[parts[0]] = parts[1]
	return nil
}

func main() {
	klinePaths := klineFlags{}
	flag.Var(klinePaths, "klines", "kline CSV per asset as ASSET=path (repeatable)")
	signalsPath := flag.String("signals", "", "signal CSV (time, asset_id, side, confidence)")
	flag.Parse()

	if len(klinePaths) == 0 || *signalsPath == "" {
		log.Fatal("usage: backtest_runner -klines BTC=data/btc.csv [-klines ETH=...] -signals data/signals.csv")
	}

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	// 2. Load kline series and signals from CSV
	series := make(map[string][]*domain.Kline, len(klinePaths))
	for assetID, path := range klinePaths {
		klines, err := utils.ReadKlinesFromCSV(path)
		if err != nil {
			appLogger.Error(ctx, err, "Error loading klines", map[string]interface{}{"asset": assetID, "path": path})
			log.Fatalf("Failed to load klines for %s", assetID)
		}
		series[assetID] = klines
		appLogger.Info(ctx, "Loaded klines", map[string]interface{}{"asset": assetID, "count": len(klines)})
	}
	signals, err := utils.ReadSignalsFromCSV(*signalsPath)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading signals", map[string]interface{}{"path": *signalsPath})
		log.Fatalf("Failed to load signals")
	}
	appLogger.Info(ctx, "Loaded signals", map[string]interface{}{"count": len(signals)})

	// 3. Run the backtest
	result, err := backtesting.Run(ctx, series, signals, backtesting.Config{
		InitialFunds: cfg.InitialFunds,
		Fees:         cfg.FeeConfig(),
		Slippage:     cfg.SlippageConfig(),
		Sizing:       cfg.SizingConfig(),
		SellPolicy:   cfg.SellPolicy(),
		PortfolioID:  cfg.PortfolioID,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "Backtest failed")
		log.Fatalf("Backtest failed: %v", err)
	}

	// 4. Report
	approved := 0
	for _, p := range result.Plans {
		if p.Approved() {
			approved++
		}
	}
	appLogger.Info(ctx, "Backtest complete", map[string]interface{}{
		"totalTrades":    result.TotalTrades,
		"winRate":        fmt.Sprintf("%.2f%%", result.WinRate*100),
		"totalProfit":    fmt.Sprintf("%.2f", result.TotalProfit),
		"totalFees":      fmt.Sprintf("%.2f", result.TotalFees),
		"maxDrawdown":    fmt.Sprintf("%.2f%%", result.MaxDrawdown*100),
		"finalBalance":   fmt.Sprintf("%.2f", result.FinalBalance),
		"roi":            fmt.Sprintf("%.2f%%", result.ReturnOnInvestment*100),
		"rebalancePlans": len(result.Plans),
		"approvedPlans":  approved,
	})
}
