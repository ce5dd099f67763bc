// Package analysis scores an existing position's suitability for forced
// liquidation when a competing buy opportunity needs funding. Lower scores
// sell first.
package analysis

import (
	"fmt"
	"math"
	"time"

	"cryptoTradeSim/internal/domain"
)

// IneligibleScore is the sentinel total for positions excluded by a
// protection gate. It sorts behind every eligible score.
const IneligibleScore = math.MaxFloat64

// Sub-score scales.
const (
	pnlScoreMax       = 30.0
	advantageScoreMax = 30.0
	holdingScoreMax   = 20.0
	rankingScoreMax   = 20.0
	gateScore         = 100.0

	// Holding-period protection grows linearly over a 30-day window.
	holdingWindowHours = 720.0
)

// Config is the per-user opportunity-selling policy.
type Config struct {
	Enabled                  bool
	MinOpportunityConfidence float64  // minimum buy confidence to trigger evaluation
	MinHoldingPeriodHours    float64  // positions younger than this are protected
	ProtectGainsAbovePercent float64  // unrealized gains above this are protected; <=0 disables
	ProtectedAssets          []string // never liquidated for funding
	MinAdvantageThreshold    float64  // minimum opportunity advantage to consider
	MaxLiquidationPercent    float64  // cap on liquidated portfolio value; <=0 means uncapped
	UseAlgorithmRanking      bool     // apply rank-based protection when a rank is supplied
}

// IsProtected reports whether the asset is on the protected list.
func (c Config) IsProtected(assetID string) bool {
	for _, a := range c.ProtectedAssets {
		if a == assetID {
			return true
		}
	}
	return false
}

// SellScore evaluates one position against a competing buy opportunity.
// Five independent sub-scores are summed when the position is eligible;
// the gains-protection and holding-period gates each mark it ineligible.
// A nil algoRank skips rank-based protection.
func SellScore(pos domain.Position, currentPrice, buyConfidence float64, cfg Config, now time.Time, algoRank *int) domain.PositionSellScore {
	score := domain.PositionSellScore{
		AssetID:      pos.AssetID,
		Quantity:     pos.Quantity,
		CurrentPrice: currentPrice,
		CurrentValue: pos.Quantity * currentPrice,
		PnLPercent:   pos.UnrealizedPnLPercent(currentPrice),
	}

	// Unrealized P&L: linear from -50% (0) to +50% (max), clamped.
	score.PnLScore = clamp((score.PnLPercent+50)/100*pnlScoreMax, 0, pnlScoreMax)

	// Gains protection: a winner above the threshold is not for sale.
	if cfg.ProtectGainsAbovePercent > 0 && score.PnLPercent > cfg.ProtectGainsAbovePercent {
		score.ProtectedGainsScore = gateScore
	}

	// Holding period: young positions are protected outright; older ones earn
	// protection linearly over the window but stay eligible. A zero entry
	// date carries no age information and passes the gate with score 0.
	holdingHours := pos.HoldingHours(now)
	if !pos.EntryDate.IsZero() && cfg.MinHoldingPeriodHours > 0 && holdingHours < cfg.MinHoldingPeriodHours {
		score.HoldingPeriodScore = gateScore
	} else if !pos.EntryDate.IsZero() {
		score.HoldingPeriodScore = clamp(holdingHours/holdingWindowHours*holdingScoreMax, 0, holdingScoreMax)
	}

	// Opportunity advantage: a stronger competing buy lowers protection.
	score.OpportunityAdvantageScore = (1 - clamp(buyConfidence, 0, 1)) * advantageScoreMax

	// Algorithm ranking: rank 1 earns maximum protection, rank 5+ none.
	if cfg.UseAlgorithmRanking && algoRank != nil {
		s := rankingScoreMax - float64(*algoRank-1)*5
		if s < 0 {
			s = 0
		}
		score.AlgorithmRankingScore = s
	}

	score.Eligible = score.ProtectedGainsScore < gateScore && score.HoldingPeriodScore < gateScore
	if score.Eligible {
		score.TotalScore = score.PnLScore + score.ProtectedGainsScore + score.HoldingPeriodScore +
			score.OpportunityAdvantageScore + score.AlgorithmRankingScore
		return score
	}

	score.TotalScore = IneligibleScore
	// Gains protection takes precedence in the message when both gates fail.
	if score.ProtectedGainsScore >= gateScore {
		score.IneligibleReason = fmt.Sprintf("unrealized gains %.2f%% exceed protection threshold %.2f%%",
			score.PnLPercent, cfg.ProtectGainsAbovePercent)
	} else {
		score.IneligibleReason = fmt.Sprintf("held %.1f hours, below minimum holding period of %.0f hours",
			holdingHours, cfg.MinHoldingPeriodHours)
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
