package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoTradeSim/config"
	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/fees"
	"cryptoTradeSim/internal/slippage"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockPlanRepo records created plans in memory.
type mockPlanRepo struct {
	created []*domain.OpportunitySellPlan
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *domain.OpportunitySellPlan) error {
	m.created = append(m.created, plan)
	return nil
}

func (m *mockPlanRepo) FindByID(ctx context.Context, id string) (*domain.OpportunitySellPlan, error) {
	for _, p := range m.created {
		if p.ID.String() == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPlanRepo) FindByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*domain.OpportunitySellPlan, error) {
	var out []*domain.OpportunitySellPlan
	for _, p := range m.created {
		if p.PortfolioID == portfolioID {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockPlanRepo) CountByDecision(ctx context.Context, decision domain.Decision) (int, error) {
	count := 0
	for _, p := range m.created {
		if p.Decision == decision {
			count++
		}
	}
	return count, nil
}

var sigTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// testConfig uses zero fees and no slippage so cash arithmetic stays exact.
func testConfig() *config.Config {
	return &config.Config{
		PortfolioID:               "test",
		InitialFunds:              10000,
		FeeModel:                  string(fees.ModelFlat),
		FlatRate:                  0,
		SlippageModel:             string(slippage.ModelNone),
		MaxPositions:              20,
		MinAllocation:             0.05,
		MaxAllocation:             0.12,
		OpportunitySellingEnabled: true,
		MinOpportunityConfidence:  0.5,
		MaxLiquidationPercent:     100,
	}
}

func newService(t *testing.T, cfg *config.Config) (*TradingService, *mockPlanRepo) {
	t.Helper()
	repo := &mockPlanRepo{}
	svc, err := NewTradingService(cfg, &mockLogger{}, repo)
	require.NoError(t, err)
	return svc, repo
}

func TestNewTradingServiceValidation(t *testing.T) {
	repo := &mockPlanRepo{}

	_, err := NewTradingService(nil, &mockLogger{}, repo)
	assert.Error(t, err)

	_, err = NewTradingService(testConfig(), nil, repo)
	assert.Error(t, err)

	_, err = NewTradingService(testConfig(), &mockLogger{}, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.InitialFunds = 0
	_, err = NewTradingService(cfg, &mockLogger{}, repo)
	assert.Error(t, err)
}

func TestProcessSignalRequiresPrice(t *testing.T) {
	svc, _ := newService(t, testConfig())

	_, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Buy, Confidence: 0.8,
	}, map[string]float64{}, nil)
	assert.Error(t, err)

	_, err = svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Buy, Confidence: 0.8,
	}, map[string]float64{"BTC": -1}, nil)
	assert.Error(t, err)
}

func TestBuyWithSufficientCash(t *testing.T) {
	svc, repo := newService(t, testConfig())
	prices := map[string]float64{"BTC": 100}

	trade, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Buy, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)
	require.NotNil(t, trade)

	// Full confidence allocates the configured maximum: 12% of 10000.
	assert.Equal(t, domain.Buy, trade.Side)
	assert.InDelta(t, 12.0, trade.Quantity, 1e-9)
	assert.InDelta(t, 100.0, trade.Price, 1e-9)
	assert.InDelta(t, 8800.0, svc.Cash(), 1e-9)

	positions := svc.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].AssetID)
	assert.InDelta(t, 12.0, positions[0].Quantity, 1e-9)
	assert.InDelta(t, 100.0, positions[0].AveragePrice, 1e-9)

	// No shortfall means no plan was evaluated or stored.
	assert.Empty(t, repo.created)
	assert.InDelta(t, 10000.0, svc.PortfolioValue(prices), 1e-9)
}

func TestSellClosesPosition(t *testing.T) {
	svc, _ := newService(t, testConfig())
	prices := map[string]float64{"BTC": 100}

	_, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Buy, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)

	trade, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime.Add(time.Hour), AssetID: "BTC", Side: domain.Sell, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, domain.Sell, trade.Side)
	assert.InDelta(t, 12.0, trade.Quantity, 1e-9)
	assert.InDelta(t, 0.0, trade.RealizedPnL, 1e-9)
	assert.InDelta(t, 10000.0, svc.Cash(), 1e-9)
	assert.Empty(t, svc.Positions())
}

func TestSellWithNoPositionSkips(t *testing.T) {
	svc, _ := newService(t, testConfig())

	trade, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Sell, Confidence: 1,
	}, map[string]float64{"BTC": 100}, nil)
	require.NoError(t, err)
	assert.Nil(t, trade)
	assert.Empty(t, svc.Trades())
}

func TestShortfallFundedByOpportunitySell(t *testing.T) {
	cfg := testConfig()
	cfg.InitialFunds = 1000
	cfg.MinAllocation = 0.6
	cfg.MaxAllocation = 0.9
	svc, repo := newService(t, cfg)
	prices := map[string]float64{"BTC": 100, "ETH": 100}

	// First buy takes 90% of the portfolio, leaving 100 in cash.
	_, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Buy, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)
	require.InDelta(t, 100.0, svc.Cash(), 1e-9)

	// The second buy needs 900, so 800 must come from liquidating BTC.
	trade, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime.Add(time.Hour), AssetID: "ETH", Side: domain.Buy, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "ETH", trade.AssetID)
	assert.InDelta(t, 9.0, trade.Quantity, 1e-9)

	require.Len(t, repo.created, 1)
	plan := repo.created[0]
	assert.True(t, plan.Approved())
	assert.InDelta(t, 800.0, plan.Shortfall, 1e-9)
	assert.InDelta(t, 800.0, plan.ProjectedProceeds, 1e-9)

	trades := svc.Trades()
	require.Len(t, trades, 3)
	forced := trades[1]
	assert.Equal(t, "BTC", forced.AssetID)
	assert.Equal(t, domain.Sell, forced.Side)
	assert.True(t, forced.Forced)
	assert.InDelta(t, 8.0, forced.Quantity, 1e-9)

	positions := svc.Positions()
	require.Len(t, positions, 2)
	assert.InDelta(t, 1.0, positions[0].Quantity, 1e-9) // BTC remainder
	assert.InDelta(t, 9.0, positions[1].Quantity, 1e-9) // ETH
	assert.InDelta(t, 0.0, svc.Cash(), 1e-9)
}

func TestShortfallRejectedSkipsBuy(t *testing.T) {
	cfg := testConfig()
	cfg.InitialFunds = 1000
	cfg.MinAllocation = 0.6
	cfg.MaxAllocation = 0.9
	cfg.OpportunitySellingEnabled = false
	svc, repo := newService(t, cfg)
	prices := map[string]float64{"BTC": 100, "ETH": 100}

	_, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime, AssetID: "BTC", Side: domain.Buy, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)

	trade, err := svc.ProcessSignal(context.Background(), domain.Signal{
		Time: sigTime.Add(time.Hour), AssetID: "ETH", Side: domain.Buy, Confidence: 1,
	}, prices, nil)
	require.NoError(t, err)
	assert.Nil(t, trade)

	// The rejected plan is still stored for audit, holdings stay untouched.
	require.Len(t, repo.created, 1)
	assert.Equal(t, domain.DecisionRejectedDisabled, repo.created[0].Decision)
	assert.InDelta(t, 100.0, svc.Cash(), 1e-9)
	require.Len(t, svc.Trades(), 1)
}
