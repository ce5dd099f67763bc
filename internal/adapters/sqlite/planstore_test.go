package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoTradeSim/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestStore(t *testing.T) *PlanStore {
	t.Helper()
	store, err := NewPlanStore(Config{
		DBPath: filepath.Join(t.TempDir(), "plans.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func samplePlan(portfolioID string, decision domain.Decision, evaluatedAt time.Time) *domain.OpportunitySellPlan {
	return &domain.OpportunitySellPlan{
		ID:             uuid.New(),
		PortfolioID:    portfolioID,
		BuyAssetID:     "SOL",
		BuyConfidence:  0.85,
		RequiredAmount: 1200,
		AvailableCash:  200,
		Shortfall:      1000,
		PortfolioValue: 5000,
		Scores: []domain.PositionSellScore{
			{AssetID: "BTC", Quantity: 2, CurrentPrice: 100, CurrentValue: 200, PnLPercent: -10, Eligible: true, TotalScore: 18.5},
		},
		SellOrders: []domain.SellOrder{
			{AssetID: "BTC", Quantity: 2, Price: 100, Value: 200, Score: 18.5},
		},
		ProjectedProceeds:  200,
		LiquidationPercent: 4,
		Decision:           decision,
		Reason:             "test plan",
		EvaluatedAt:        evaluatedAt,
	}
}

func TestNewPlanStoreRequiresLogger(t *testing.T) {
	_, err := NewPlanStore(Config{DBPath: "x.db"})
	assert.Error(t, err)
}

func TestCreateAndFindByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := samplePlan("p1", domain.DecisionApproved, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.Create(ctx, plan))

	found, err := store.FindByID(ctx, plan.ID.String())
	require.NoError(t, err)
	require.NotNil(t, found)

	assert.Equal(t, plan.ID, found.ID)
	assert.Equal(t, plan.PortfolioID, found.PortfolioID)
	assert.Equal(t, plan.Decision, found.Decision)
	assert.Equal(t, plan.Reason, found.Reason)
	assert.InDelta(t, plan.Shortfall, found.Shortfall, 1e-9)
	require.Len(t, found.Scores, 1)
	assert.Equal(t, "BTC", found.Scores[0].AssetID)
	require.Len(t, found.SellOrders, 1)
	assert.InDelta(t, 200.0, found.SellOrders[0].Value, 1e-9)
	assert.True(t, plan.EvaluatedAt.Equal(found.EvaluatedAt))
}

func TestFindByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	found, err := store.FindByID(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindByPortfolioOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		plan := samplePlan("p1", domain.DecisionApproved, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.Create(ctx, plan))
	}
	require.NoError(t, store.Create(ctx, samplePlan("p2", domain.DecisionApproved, base)))

	plans, err := store.FindByPortfolio(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	// Most recent first.
	assert.True(t, plans[0].EvaluatedAt.After(plans[1].EvaluatedAt))
	for _, p := range plans {
		assert.Equal(t, "p1", p.PortfolioID)
	}

	none, err := store.FindByPortfolio(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCountByDecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, samplePlan("p1", domain.DecisionApproved, now)))
	require.NoError(t, store.Create(ctx, samplePlan("p1", domain.DecisionApproved, now)))
	require.NoError(t, store.Create(ctx, samplePlan("p1", domain.DecisionRejectedLowConfidence, now)))

	approved, err := store.CountByDecision(ctx, domain.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, approved)

	rejected, err := store.CountByDecision(ctx, domain.DecisionRejectedLowConfidence)
	require.NoError(t, err)
	assert.Equal(t, 1, rejected)

	none, err := store.CountByDecision(ctx, domain.DecisionRejectedDisabled)
	require.NoError(t, err)
	assert.Equal(t, 0, none)
}
