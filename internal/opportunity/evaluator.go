// Package opportunity decides whether to liquidate part of an existing
// portfolio to fund a high-confidence buy that exceeds available cash.
// The evaluation is a sequence of ordered gates over an immutable snapshot;
// the first failing gate terminates it with a REJECTED_* decision.
package opportunity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"cryptoTradeSim/internal/analysis"
	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/ports"
)

// Floating tolerance for the shortfall-covered and liquidation-cap checks.
const tolerance = 1e-9

// Evaluator builds opportunity sell plans under a fixed user policy.
type Evaluator struct {
	cfg    analysis.Config
	logger ports.Logger
}

// New creates a new Evaluator instance.
func New(cfg analysis.Config, logger ports.Logger) (*Evaluator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for evaluator")
	}
	return &Evaluator{cfg: cfg, logger: logger}, nil
}

// Request is one evaluation snapshot. Positions preserve the caller's
// encounter order so that score ties break deterministically; Prices and
// AlgoRanks are keyed by asset ID.
type Request struct {
	PortfolioID    string
	BuyAssetID     string
	BuyConfidence  float64
	RequiredAmount float64
	AvailableCash  float64
	Positions      []domain.Position
	Prices         map[string]float64
	AlgoRanks      map[string]int
	Now            time.Time
}

// Evaluate runs the gate sequence and returns the resulting plan. It never
// mutates the snapshot and produces the same plan for the same inputs.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) *domain.OpportunitySellPlan {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plan := &domain.OpportunitySellPlan{
		ID:             uuid.New(),
		PortfolioID:    req.PortfolioID,
		BuyAssetID:     req.BuyAssetID,
		BuyConfidence:  req.BuyConfidence,
		RequiredAmount: req.RequiredAmount,
		AvailableCash:  req.AvailableCash,
		EvaluatedAt:    now,
	}

	// Gate 1: feature enabled.
	if !e.cfg.Enabled {
		return e.reject(ctx, plan, domain.DecisionRejectedDisabled, "opportunity selling is disabled for this user")
	}

	// Gate 2: buy confidence threshold.
	if req.BuyConfidence < e.cfg.MinOpportunityConfidence {
		return e.reject(ctx, plan, domain.DecisionRejectedLowConfidence,
			fmt.Sprintf("buy confidence %.2f below minimum %.2f", req.BuyConfidence, e.cfg.MinOpportunityConfidence))
	}

	// Gate 3: no shortfall. Correctly-gated callers do not invoke the
	// evaluator in this case; approve with zero sells as a no-op.
	plan.Shortfall = req.RequiredAmount - req.AvailableCash
	if plan.Shortfall <= 0 {
		plan.Shortfall = 0
		plan.Decision = domain.DecisionApproved
		plan.Reason = "available cash covers the buy, no liquidation needed"
		return plan
	}

	// Gate 4: score every held position except the target buy asset.
	// Protected assets bypass the scorer and are recorded as ineligible;
	// assets without a usable price are skipped entirely.
	portfolioValue := 0.0
	var eligible []domain.PositionSellScore
	for _, pos := range req.Positions {
		if pos.Quantity <= 0 {
			continue
		}
		price, ok := req.Prices[pos.AssetID]
		if !ok || price <= 0 {
			e.logger.Debug(ctx, "Skipping position without usable price", map[string]interface{}{"asset": pos.AssetID})
			continue
		}
		portfolioValue += pos.Quantity * price
		if pos.AssetID == req.BuyAssetID {
			continue
		}
		if e.cfg.IsProtected(pos.AssetID) {
			plan.Scores = append(plan.Scores, domain.PositionSellScore{
				AssetID:          pos.AssetID,
				Quantity:         pos.Quantity,
				CurrentPrice:     price,
				CurrentValue:     pos.Quantity * price,
				PnLPercent:       pos.UnrealizedPnLPercent(price),
				TotalScore:       analysis.IneligibleScore,
				IneligibleReason: "asset is on the protected list",
			})
			continue
		}

		var rank *int
		if r, ok := req.AlgoRanks[pos.AssetID]; ok {
			rank = &r
		}
		score := analysis.SellScore(pos, price, req.BuyConfidence, e.cfg, now, rank)
		plan.Scores = append(plan.Scores, score)
		if score.Eligible {
			eligible = append(eligible, score)
		}
	}
	plan.PortfolioValue = portfolioValue

	// Gate 5: at least one eligible position.
	if len(eligible) == 0 {
		return e.reject(ctx, plan, domain.DecisionRejectedNoEligible, "no eligible positions to liquidate")
	}

	// Gate 6: worst-performing positions first, greedy accumulation under
	// the shortfall and the liquidation budget. Ties keep encounter order.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].TotalScore < eligible[j].TotalScore
	})

	liquidationBudget := portfolioValue
	if e.cfg.MaxLiquidationPercent > 0 {
		liquidationBudget = e.cfg.MaxLiquidationPercent / 100 * portfolioValue
	}
	shortfallRemaining := plan.Shortfall
	budgetRemaining := liquidationBudget
	totalSellValue := 0.0
	for _, score := range eligible {
		if shortfallRemaining <= tolerance || budgetRemaining <= tolerance {
			break
		}
		quantity := score.Quantity
		if q := shortfallRemaining / score.CurrentPrice; q < quantity {
			quantity = q
		}
		if q := budgetRemaining / score.CurrentPrice; q < quantity {
			quantity = q
		}
		if quantity <= 0 {
			continue
		}
		value := quantity * score.CurrentPrice
		plan.SellOrders = append(plan.SellOrders, domain.SellOrder{
			AssetID:  score.AssetID,
			Quantity: quantity,
			Price:    score.CurrentPrice,
			Value:    value,
			Score:    score.TotalScore,
		})
		totalSellValue += value
		shortfallRemaining -= value
		budgetRemaining -= value
	}
	plan.ProjectedProceeds = totalSellValue
	if portfolioValue > 0 {
		plan.LiquidationPercent = totalSellValue / portfolioValue * 100
	}

	// Gate 7: defensive re-check of the liquidation cap.
	if e.cfg.MaxLiquidationPercent > 0 && plan.LiquidationPercent > e.cfg.MaxLiquidationPercent+tolerance {
		return e.reject(ctx, plan, domain.DecisionRejectedMaxLiquidation,
			fmt.Sprintf("liquidation %.2f%% exceeds maximum %.2f%%", plan.LiquidationPercent, e.cfg.MaxLiquidationPercent))
	}

	// Gate 8: shortfall fully covered. Partial sell orders stay on the plan
	// for visibility; they are not executed.
	if shortfallRemaining > tolerance {
		return e.reject(ctx, plan, domain.DecisionRejectedInsufficientProceeds,
			fmt.Sprintf("projected proceeds %.2f cover only part of shortfall %.2f", totalSellValue, plan.Shortfall))
	}

	plan.Decision = domain.DecisionApproved
	plan.Reason = fmt.Sprintf("liquidating %.2f%% of portfolio across %d positions to fund buy", plan.LiquidationPercent, len(plan.SellOrders))
	e.logger.Info(ctx, "Opportunity sell approved", map[string]interface{}{
		"planID":             plan.ID.String(),
		"buyAsset":           req.BuyAssetID,
		"shortfall":          plan.Shortfall,
		"sellOrders":         len(plan.SellOrders),
		"liquidationPercent": plan.LiquidationPercent,
	})
	return plan
}

func (e *Evaluator) reject(ctx context.Context, plan *domain.OpportunitySellPlan, decision domain.Decision, reason string) *domain.OpportunitySellPlan {
	plan.Decision = decision
	plan.Reason = reason
	e.logger.Debug(ctx, "Opportunity sell rejected", map[string]interface{}{
		"planID":   plan.ID.String(),
		"buyAsset": plan.BuyAssetID,
		"decision": string(decision),
		"reason":   reason,
	})
	return plan
}
