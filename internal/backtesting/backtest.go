// Package backtesting replays a signal stream against aligned kline series,
// producing realistically costed fills through the same fee, slippage,
// position and rebalancing models the live path uses.
package backtesting

import (
	"context"
	"fmt"
	"time"

	"cryptoTradeSim/internal/analysis"
	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/fees"
	"cryptoTradeSim/internal/opportunity"
	"cryptoTradeSim/internal/ports"
	"cryptoTradeSim/internal/position"
	"cryptoTradeSim/internal/slippage"
)

// Config holds configuration for a backtest run.
type Config struct {
	InitialFunds float64
	Fees         fees.Config
	Slippage     slippage.Config
	Sizing       position.SizingConfig
	SellPolicy   analysis.Config
	PortfolioID  string
}

// Result holds the results of a backtest.
type Result struct {
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalProfit        float64
	TotalFees          float64
	MaxDrawdown        float64
	FinalBalance       float64 // cash plus market value of remaining holdings
	FinalCash          float64
	ReturnOnInvestment float64
	Trades             []*domain.Trade
	Plans              []*domain.OpportunitySellPlan
}

// ledger is the backtest's in-memory portfolio state.
type ledger struct {
	cash       float64
	positions  map[string]*domain.Position
	assetOrder []string
}

// Run replays the signals over the kline series. All series must be aligned:
// equal length, with matching open times per index. Signals must be ordered
// by time; a signal executes on the kline whose open time matches it.
func Run(ctx context.Context, series map[string][]*domain.Kline, signals []domain.Signal, cfg Config, logger ports.Logger) (*Result, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for backtest")
	}
	if cfg.InitialFunds <= 0 {
		return nil, fmt.Errorf("initial funds must be positive")
	}
	steps, err := alignedSteps(series)
	if err != nil {
		return nil, err
	}

	evaluator, err := opportunity.New(cfg.SellPolicy, logger)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	led := &ledger{
		cash:      cfg.InitialFunds,
		positions: make(map[string]*domain.Position),
	}
	peakEquity := cfg.InitialFunds
	next := 0

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prices, volumes, stepTime := snapshotAt(series, i)

		for next < len(signals) && !signals[next].Time.After(stepTime) {
			sig := signals[next]
			next++
			if sig.Time.Before(stepTime) {
				// Signal fell between steps; execute at the current one.
				sig.Time = stepTime
			}
			if err := executeSignal(ctx, sig, prices, volumes, led, evaluator, cfg, result, logger); err != nil {
				return nil, err
			}
		}

		equity := equityOf(led, prices)
		if equity > peakEquity {
			peakEquity = equity
		}
		if peakEquity > 0 {
			drawdown := (peakEquity - equity) / peakEquity
			if drawdown > result.MaxDrawdown {
				result.MaxDrawdown = drawdown
			}
		}
	}

	finalPrices, _, _ := snapshotAt(series, steps-1)
	result.FinalCash = led.cash
	result.FinalBalance = equityOf(led, finalPrices)
	result.ReturnOnInvestment = (result.FinalBalance - cfg.InitialFunds) / cfg.InitialFunds
	if sells := result.WinningTrades + result.LosingTrades; sells > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(sells)
	}
	return result, nil
}

func executeSignal(ctx context.Context, sig domain.Signal, prices, volumes map[string]float64, led *ledger, evaluator *opportunity.Evaluator, cfg Config, result *Result, logger ports.Logger) error {
	price, ok := prices[sig.AssetID]
	if !ok || price <= 0 {
		logger.Debug(ctx, "Signal for asset without price, skipping", map[string]interface{}{"asset": sig.AssetID})
		return nil
	}

	switch sig.Side {
	case domain.Sell:
		return executeSell(ctx, sig, price, volumes, led, cfg, result, false)
	case domain.Buy:
		return executeBuy(ctx, sig, price, prices, volumes, led, evaluator, cfg, result, logger)
	default:
		return fmt.Errorf("unknown signal side %q", sig.Side)
	}
}

func executeBuy(ctx context.Context, sig domain.Signal, price float64, prices, volumes map[string]float64, led *ledger, evaluator *opportunity.Evaluator, cfg Config, result *Result, logger ports.Logger) error {
	portfolioValue := equityOf(led, prices)
	quantity := position.Size(portfolioValue, sig.Confidence, price, cfg.Sizing)

	slip, err := slippage.Calculate(slippage.Input{
		Price:       price,
		Quantity:    quantity,
		IsBuy:       true,
		DailyVolume: volumeFor(volumes, sig.AssetID),
	}, cfg.Slippage)
	if err != nil {
		return err
	}
	execPrice := slip.ExecutionPrice
	quantity = position.Size(portfolioValue, sig.Confidence, execPrice, cfg.Sizing)

	fee, err := fees.Calculate(quantity*execPrice, nil, cfg.Fees)
	if err != nil {
		return err
	}
	required := quantity*execPrice + fee.Fee

	if required > led.cash {
		plan := evaluator.Evaluate(ctx, opportunity.Request{
			PortfolioID:    cfg.PortfolioID,
			BuyAssetID:     sig.AssetID,
			BuyConfidence:  sig.Confidence,
			RequiredAmount: required,
			AvailableCash:  led.cash,
			Positions:      led.snapshot(),
			Prices:         prices,
			Now:            sig.Time,
		})
		result.Plans = append(result.Plans, plan)
		if plan.Approved() {
			for _, order := range plan.SellOrders {
				forced := domain.Signal{Time: sig.Time, AssetID: order.AssetID, Side: domain.Sell}
				q := order.Quantity
				if err := executeSellQuantity(ctx, forced, order.Price, &q, volumes, led, cfg, result); err != nil {
					return err
				}
			}
		}
		if required > led.cash {
			logger.Debug(ctx, "Buy not funded, skipping", map[string]interface{}{
				"asset": sig.AssetID, "required": required, "cash": led.cash})
			return nil
		}
	}

	confidence := sig.Confidence
	res := position.Open(led.positions[sig.AssetID], position.OpenInput{
		AssetID:          sig.AssetID,
		Price:            execPrice,
		Confidence:       &confidence,
		PortfolioValue:   portfolioValue,
		AvailableCapital: led.cash - fee.Fee,
		OpenPositions:    len(led.positions),
		Timestamp:        sig.Time,
	}, cfg.Sizing)
	if !res.Success {
		logger.Debug(ctx, "Backtest buy rejected", map[string]interface{}{
			"asset": sig.AssetID, "code": string(res.Error)})
		return nil
	}

	led.cash -= res.Quantity*execPrice + fee.Fee
	led.set(sig.AssetID, res.Position)
	result.TotalTrades++
	result.TotalFees += fee.Fee
	result.Trades = append(result.Trades, &domain.Trade{
		AssetID:     sig.AssetID,
		Side:        domain.Buy,
		Quantity:    res.Quantity,
		Price:       execPrice,
		Fee:         fee.Fee,
		SlippageBps: slip.SlippageBps,
		Time:        sig.Time,
	})
	return nil
}

func executeSell(ctx context.Context, sig domain.Signal, price float64, volumes map[string]float64, led *ledger, cfg Config, result *Result, forced bool) error {
	return executeSellAt(ctx, sig, price, nil, volumes, led, cfg, result, forced)
}

func executeSellQuantity(ctx context.Context, sig domain.Signal, price float64, quantity *float64, volumes map[string]float64, led *ledger, cfg Config, result *Result) error {
	return executeSellAt(ctx, sig, price, quantity, volumes, led, cfg, result, true)
}

func executeSellAt(ctx context.Context, sig domain.Signal, price float64, quantity *float64, volumes map[string]float64, led *ledger, cfg Config, result *Result, forced bool) error {
	pos := led.positions[sig.AssetID]
	if pos.IsFlat() {
		return nil
	}

	sellQty := pos.Quantity
	if quantity != nil {
		sellQty = *quantity
	}
	slip, err := slippage.Calculate(slippage.Input{
		Price:       price,
		Quantity:    sellQty,
		IsBuy:       false,
		DailyVolume: volumeFor(volumes, sig.AssetID),
	}, cfg.Slippage)
	if err != nil {
		return err
	}

	in := position.CloseInput{Price: slip.ExecutionPrice, Timestamp: sig.Time}
	if quantity != nil {
		in.Quantity = quantity
	} else {
		confidence := sig.Confidence
		in.Confidence = &confidence
	}
	res := position.Close(pos, in, cfg.Sizing)
	if !res.Success {
		return nil
	}

	fee, err := fees.Calculate(res.TotalValue, nil, cfg.Fees)
	if err != nil {
		return err
	}
	led.cash += res.TotalValue - fee.Fee
	led.set(sig.AssetID, res.Position)

	result.TotalTrades++
	result.TotalFees += fee.Fee
	pnl := res.RealizedPnL - fee.Fee
	result.TotalProfit += pnl
	if pnl > 0 {
		result.WinningTrades++
	} else {
		result.LosingTrades++
	}
	result.Trades = append(result.Trades, &domain.Trade{
		AssetID:     sig.AssetID,
		Side:        domain.Sell,
		Quantity:    res.Quantity,
		Price:       res.Price,
		Fee:         fee.Fee,
		SlippageBps: slip.SlippageBps,
		RealizedPnL: res.RealizedPnL,
		Time:        sig.Time,
		Forced:      forced,
	})
	return nil
}

func alignedSteps(series map[string][]*domain.Kline) (int, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("no kline series supplied")
	}
	steps := -1
	for assetID, klines := range series {
		if len(klines) == 0 {
			return 0, fmt.Errorf("empty kline series for asset %s", assetID)
		}
		if steps == -1 {
			steps = len(klines)
		} else if len(klines) != steps {
			return 0, fmt.Errorf("kline series for asset %s has %d steps, expected %d", assetID, len(klines), steps)
		}
	}
	return steps, nil
}

func snapshotAt(series map[string][]*domain.Kline, i int) (prices, volumes map[string]float64, stepTime time.Time) {
	prices = make(map[string]float64, len(series))
	volumes = make(map[string]float64, len(series))
	for assetID, klines := range series {
		k := klines[i]
		prices[assetID] = k.Close
		volumes[assetID] = k.Volume
		stepTime = k.OpenTime
	}
	return prices, volumes, stepTime
}

func equityOf(led *ledger, prices map[string]float64) float64 {
	total := led.cash
	for _, assetID := range led.assetOrder {
		if pos := led.positions[assetID]; !pos.IsFlat() {
			total += pos.MarketValue(prices[assetID])
		}
	}
	return total
}

func (l *ledger) snapshot() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, assetID := range l.assetOrder {
		if pos, ok := l.positions[assetID]; ok {
			out = append(out, *pos)
		}
	}
	return out
}

func (l *ledger) set(assetID string, pos *domain.Position) {
	_, existed := l.positions[assetID]
	if pos == nil {
		if existed {
			delete(l.positions, assetID)
			for i, a := range l.assetOrder {
				if a == assetID {
					l.assetOrder = append(l.assetOrder[:i], l.assetOrder[i+1:]...)
					break
				}
			}
		}
		return
	}
	if !existed {
		l.assetOrder = append(l.assetOrder, assetID)
	}
	l.positions[assetID] = pos
}

func volumeFor(volumes map[string]float64, assetID string) *float64 {
	if volumes == nil {
		return nil
	}
	if v, ok := volumes[assetID]; ok {
		return &v
	}
	return nil
}
