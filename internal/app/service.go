// Package app wires the execution engine into a paper-trading service that
// owns an in-memory ledger. The engine itself is pure; the service serializes
// evaluate/open/close calls per portfolio and is the single writer of the
// ledger, so every snapshot handed to the engine stays consistent with what
// gets committed.
package app

import (
	"context"
	"fmt"
	"sync"

	"cryptoTradeSim/config"
	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/fees"
	"cryptoTradeSim/internal/opportunity"
	"cryptoTradeSim/internal/ports"
	"cryptoTradeSim/internal/position"
	"cryptoTradeSim/internal/slippage"
)

// TradingService orchestrates signal execution against a paper portfolio.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	planRepo  ports.PlanRepository
	evaluator *opportunity.Evaluator

	feeCfg  fees.Config
	slipCfg slippage.Config
	sizing  position.SizingConfig

	mu         sync.Mutex // one evaluation/mutation in flight per portfolio
	cash       float64
	positions  map[string]*domain.Position
	assetOrder []string // encounter order, keeps evaluation snapshots deterministic
	trades     []*domain.Trade
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg *config.Config, logger ports.Logger, planRepo ports.PlanRepository) (*TradingService, error) {
	if cfg == nil || logger == nil || planRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.InitialFunds <= 0 {
		return nil, fmt.Errorf("configuration InitialFunds must be positive")
	}

	evaluator, err := opportunity.New(cfg.SellPolicy(), logger)
	if err != nil {
		return nil, err
	}

	return &TradingService{
		cfg:       cfg,
		logger:    logger,
		planRepo:  planRepo,
		evaluator: evaluator,
		feeCfg:    cfg.FeeConfig(),
		slipCfg:   cfg.SlippageConfig(),
		sizing:    cfg.SizingConfig(),
		cash:      cfg.InitialFunds,
		positions: make(map[string]*domain.Position),
	}, nil
}

// ProcessSignal executes one buy or sell signal against the current prices.
// Business rejections are logged and return a nil trade; an error means the
// inputs were unusable.
func (s *TradingService) ProcessSignal(ctx context.Context, sig domain.Signal, prices map[string]float64, volumes map[string]float64) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := prices[sig.AssetID]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no usable price for asset %s", sig.AssetID)
	}

	switch sig.Side {
	case domain.Buy:
		return s.executeBuy(ctx, sig, price, prices, volumes)
	case domain.Sell:
		return s.executeSell(ctx, sig, price, volumes)
	default:
		return nil, fmt.Errorf("unknown signal side %q", sig.Side)
	}
}

func (s *TradingService) executeBuy(ctx context.Context, sig domain.Signal, price float64, prices map[string]float64, volumes map[string]float64) (*domain.Trade, error) {
	portfolioValue := s.portfolioValueLocked(prices)
	quantity := position.Size(portfolioValue, sig.Confidence, price, s.sizing)

	slip, err := slippage.Calculate(slippage.Input{
		Price:       price,
		Quantity:    quantity,
		IsBuy:       true,
		DailyVolume: volumeFor(volumes, sig.AssetID),
	}, s.slipCfg)
	if err != nil {
		return nil, err
	}
	execPrice := slip.ExecutionPrice

	// Sizing is re-derived at the execution price so the capital check and
	// the fee are computed on the value actually traded.
	quantity = position.Size(portfolioValue, sig.Confidence, execPrice, s.sizing)
	fee, err := fees.Calculate(quantity*execPrice, nil, s.feeCfg)
	if err != nil {
		return nil, err
	}
	required := quantity*execPrice + fee.Fee

	if required > s.cash {
		if err := s.fundShortfall(ctx, sig, required, volumes, prices); err != nil {
			return nil, err
		}
		if required > s.cash {
			s.logger.Info(ctx, "Buy not funded, skipping", map[string]interface{}{
				"asset": sig.AssetID, "required": required, "cash": s.cash})
			return nil, nil
		}
	}

	confidence := sig.Confidence
	res := position.Open(s.positions[sig.AssetID], position.OpenInput{
		AssetID:          sig.AssetID,
		Price:            execPrice,
		Confidence:       &confidence,
		PortfolioValue:   portfolioValue,
		AvailableCapital: s.cash - fee.Fee,
		OpenPositions:    len(s.positions),
		Timestamp:        sig.Time,
	}, s.sizing)
	if !res.Success {
		s.logger.Info(ctx, "Buy rejected", map[string]interface{}{
			"asset": sig.AssetID, "code": string(res.Error)})
		return nil, nil
	}

	// Fee is deducted here, exactly once; the position manager never touches cash.
	s.cash -= res.Quantity*execPrice + fee.Fee
	s.setPositionLocked(sig.AssetID, res.Position)

	trade := &domain.Trade{
		AssetID:     sig.AssetID,
		Side:        domain.Buy,
		Quantity:    res.Quantity,
		Price:       execPrice,
		Fee:         fee.Fee,
		SlippageBps: slip.SlippageBps,
		Time:        sig.Time,
	}
	s.trades = append(s.trades, trade)
	s.logger.Info(ctx, "Buy executed", map[string]interface{}{
		"asset": sig.AssetID, "quantity": res.Quantity, "price": execPrice, "fee": fee.Fee})
	return trade, nil
}

func (s *TradingService) executeSell(ctx context.Context, sig domain.Signal, price float64, volumes map[string]float64) (*domain.Trade, error) {
	pos := s.positions[sig.AssetID]
	if pos.IsFlat() {
		s.logger.Info(ctx, "Sell signal with no position, skipping", map[string]interface{}{"asset": sig.AssetID})
		return nil, nil
	}

	slip, err := slippage.Calculate(slippage.Input{
		Price:       price,
		Quantity:    pos.Quantity,
		IsBuy:       false,
		DailyVolume: volumeFor(volumes, sig.AssetID),
	}, s.slipCfg)
	if err != nil {
		return nil, err
	}

	confidence := sig.Confidence
	res := position.Close(pos, position.CloseInput{
		Price:      slip.ExecutionPrice,
		Confidence: &confidence,
		Timestamp:  sig.Time,
	}, s.sizing)
	if !res.Success {
		s.logger.Info(ctx, "Sell rejected", map[string]interface{}{
			"asset": sig.AssetID, "code": string(res.Error)})
		return nil, nil
	}

	fee, err := fees.Calculate(res.TotalValue, nil, s.feeCfg)
	if err != nil {
		return nil, err
	}
	s.cash += res.TotalValue - fee.Fee
	s.setPositionLocked(sig.AssetID, res.Position)

	trade := &domain.Trade{
		AssetID:     sig.AssetID,
		Side:        domain.Sell,
		Quantity:    res.Quantity,
		Price:       res.Price,
		Fee:         fee.Fee,
		SlippageBps: slip.SlippageBps,
		RealizedPnL: res.RealizedPnL,
		Time:        sig.Time,
	}
	s.trades = append(s.trades, trade)
	s.logger.Info(ctx, "Sell executed", map[string]interface{}{
		"asset": sig.AssetID, "quantity": res.Quantity, "price": res.Price, "pnl": res.RealizedPnL})
	return trade, nil
}

// fundShortfall runs the opportunity-sell evaluation, persists the plan for
// audit, and executes the approved sell orders. Persistence failures are
// logged but never block execution of an approved plan.
func (s *TradingService) fundShortfall(ctx context.Context, sig domain.Signal, required float64, volumes map[string]float64, prices map[string]float64) error {
	plan := s.evaluator.Evaluate(ctx, opportunity.Request{
		PortfolioID:    s.cfg.PortfolioID,
		BuyAssetID:     sig.AssetID,
		BuyConfidence:  sig.Confidence,
		RequiredAmount: required,
		AvailableCash:  s.cash,
		Positions:      s.snapshotLocked(),
		Prices:         prices,
		Now:            sig.Time,
	})

	if err := s.planRepo.Create(ctx, plan); err != nil {
		s.logger.Error(ctx, err, "Failed to persist sell plan", map[string]interface{}{"planID": plan.ID.String()})
	}
	if !plan.Approved() {
		return nil
	}

	for _, order := range plan.SellOrders {
		pos := s.positions[order.AssetID]
		if pos.IsFlat() {
			continue
		}
		slip, err := slippage.Calculate(slippage.Input{
			Price:       order.Price,
			Quantity:    order.Quantity,
			IsBuy:       false,
			DailyVolume: volumeFor(volumes, order.AssetID),
		}, s.slipCfg)
		if err != nil {
			return err
		}
		quantity := order.Quantity
		res := position.Close(pos, position.CloseInput{
			Price:     slip.ExecutionPrice,
			Quantity:  &quantity,
			Timestamp: sig.Time,
		}, s.sizing)
		if !res.Success {
			s.logger.Warn(ctx, "Planned sell rejected", map[string]interface{}{
				"asset": order.AssetID, "code": string(res.Error)})
			continue
		}
		fee, err := fees.Calculate(res.TotalValue, nil, s.feeCfg)
		if err != nil {
			return err
		}
		s.cash += res.TotalValue - fee.Fee
		s.setPositionLocked(order.AssetID, res.Position)
		s.trades = append(s.trades, &domain.Trade{
			AssetID:     order.AssetID,
			Side:        domain.Sell,
			Quantity:    res.Quantity,
			Price:       res.Price,
			Fee:         fee.Fee,
			SlippageBps: slip.SlippageBps,
			RealizedPnL: res.RealizedPnL,
			Time:        sig.Time,
			Forced:      true,
		})
	}
	return nil
}

// Cash returns the current cash balance.
func (s *TradingService) Cash() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

// Positions returns a snapshot of the current holdings in encounter order.
func (s *TradingService) Positions() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Trades returns all executed trades so far.
func (s *TradingService) Trades() []*domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// PortfolioValue returns cash plus the market value of all holdings.
func (s *TradingService) PortfolioValue(prices map[string]float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolioValueLocked(prices)
}

func (s *TradingService) portfolioValueLocked(prices map[string]float64) float64 {
	total := s.cash
	for _, assetID := range s.assetOrder {
		if pos := s.positions[assetID]; !pos.IsFlat() {
			total += pos.MarketValue(prices[assetID])
		}
	}
	return total
}

func (s *TradingService) snapshotLocked() []domain.Position {
	out := make([]domain.Position, 0, len(s.positions))
	for _, assetID := range s.assetOrder {
		if pos, ok := s.positions[assetID]; ok {
			out = append(out, *pos)
		}
	}
	return out
}

func (s *TradingService) setPositionLocked(assetID string, pos *domain.Position) {
	_, existed := s.positions[assetID]
	if pos == nil {
		if existed {
			delete(s.positions, assetID)
			for i, a := range s.assetOrder {
				if a == assetID {
					s.assetOrder = append(s.assetOrder[:i], s.assetOrder[i+1:]...)
					break
				}
			}
		}
		return
	}
	if !existed {
		s.assetOrder = append(s.assetOrder, assetID)
	}
	s.positions[assetID] = pos
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
