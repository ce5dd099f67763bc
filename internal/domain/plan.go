package domain

import (
	"time"

	"github.com/google/uuid"
)

// PositionSellScore is the evaluation result for one held position when a
// competing buy opportunity is considered. Lower total scores sell first;
// ineligible positions carry a maximal sentinel score so they can never sort
// ahead of an eligible one.
type PositionSellScore struct {
	AssetID      string  `json:"asset_id"`
	Quantity     float64 `json:"quantity"`
	CurrentPrice float64 `json:"current_price"`
	CurrentValue float64 `json:"current_value"`
	PnLPercent   float64 `json:"pnl_percent"`

	// Component sub-scores, each on its own scale.
	PnLScore                  float64 `json:"pnl_score"`
	ProtectedGainsScore       float64 `json:"protected_gains_score"`
	HoldingPeriodScore        float64 `json:"holding_period_score"`
	OpportunityAdvantageScore float64 `json:"opportunity_advantage_score"`
	AlgorithmRankingScore     float64 `json:"algorithm_ranking_score"`

	Eligible         bool    `json:"eligible"`
	TotalScore       float64 `json:"total_score"`
	IneligibleReason string  `json:"ineligible_reason,omitempty"`
}

// SellOrder is one proposed liquidation within an OpportunitySellPlan.
type SellOrder struct {
	AssetID  string  `json:"asset_id"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
	Score    float64 `json:"score"`
}

// OpportunitySellPlan is the full result of one opportunity-sell evaluation.
// It is constructed fresh per evaluation, never mutated, and may be handed
// verbatim to an audit store.
type OpportunitySellPlan struct {
	ID          uuid.UUID `json:"id"`
	PortfolioID string    `json:"portfolio_id"`

	BuyAssetID     string  `json:"buy_asset_id"`
	BuyConfidence  float64 `json:"buy_confidence"`
	RequiredAmount float64 `json:"required_amount"`
	AvailableCash  float64 `json:"available_cash"`
	Shortfall      float64 `json:"shortfall"`
	PortfolioValue float64 `json:"portfolio_value"`

	Scores             []PositionSellScore `json:"scores"`
	SellOrders         []SellOrder         `json:"sell_orders"`
	ProjectedProceeds  float64             `json:"projected_proceeds"`
	LiquidationPercent float64             `json:"liquidation_percent"`

	Decision    Decision  `json:"decision"`
	Reason      string    `json:"reason"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Approved reports whether the plan's decision allows execution.
func (p *OpportunitySellPlan) Approved() bool {
	return p != nil && p.Decision == DecisionApproved
}
