package ports

import (
	"context"

	"cryptoTradeSim/internal/domain"
)

// PlanRepository defines the interface for the audit store of opportunity
// sell plans. Persisting a plan never alters it; the evaluation contract is
// complete before the plan reaches the store.
type PlanRepository interface {
	// Create saves an evaluated plan verbatim.
	Create(ctx context.Context, plan *domain.OpportunitySellPlan) error
	// FindByID retrieves a plan by its evaluation ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.OpportunitySellPlan, error)
	// FindByPortfolio retrieves the most recent plans for a portfolio, up to a limit.
	FindByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*domain.OpportunitySellPlan, error)
	// CountByDecision counts stored plans that ended with the given decision.
	CountByDecision(ctx context.Context, decision domain.Decision) (int, error)
}
