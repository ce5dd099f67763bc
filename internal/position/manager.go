// Package position implements opening/increasing and closing/reducing a
// single-asset position with confidence- or percentage-based sizing. The
// operations hold no state: they take a Position (or nil) and return a new
// one, leaving the caller's ledger untouched.
package position

import (
	"time"

	"cryptoTradeSim/internal/domain"
)

// Sizing defaults.
const (
	DefaultMaxPositions  = 20
	DefaultMinAllocation = 0.05 // fraction of portfolio value at confidence 0
	DefaultMaxAllocation = 0.12 // fraction of portfolio value at confidence 1

	// Confidence-scaled exits sell between this fraction (confidence 0) and
	// the full holding (confidence 1).
	minCloseFraction = 0.25
)

// SizingConfig holds position-sizing parameters. Zero values resolve to the
// package defaults.
type SizingConfig struct {
	MaxPositions  int
	MinAllocation float64
	MaxAllocation float64
}

func (c SizingConfig) maxPositions() int {
	if c.MaxPositions <= 0 {
		return DefaultMaxPositions
	}
	return c.MaxPositions
}

func (c SizingConfig) minAllocation() float64 {
	if c.MinAllocation <= 0 {
		return DefaultMinAllocation
	}
	return c.MinAllocation
}

func (c SizingConfig) maxAllocation() float64 {
	if c.MaxAllocation <= 0 {
		return DefaultMaxAllocation
	}
	return c.MaxAllocation
}

// OpenInput describes one open/increase request. Quantity, Percentage and
// Confidence are optional sizing hints, applied in that priority order; when
// none is supplied the minimum allocation is used.
type OpenInput struct {
	AssetID          string
	Price            float64
	Quantity         *float64 // explicit size
	Percentage       *float64 // fraction of portfolio value
	Confidence       *float64 // confidence-scaled allocation
	PortfolioValue   float64
	AvailableCapital float64
	OpenPositions    int // caller-supplied count of currently open positions
	Timestamp        time.Time
}

// OpenResult is the structured outcome of an open/increase request.
// Business rejections set Success false and an Error code; they are never
// returned as Go errors.
type OpenResult struct {
	Success    bool
	Position   *domain.Position
	Quantity   float64
	Price      float64
	TotalValue float64
	Error      domain.RejectionCode
}

// CloseInput describes one close/reduce request. Quantity, Percentage and
// Confidence are optional sizing hints, applied in that priority order; when
// none is supplied the position is closed in full.
type CloseInput struct {
	Price      float64
	Quantity   *float64 // explicit size, capped at the held quantity
	Percentage *float64 // fraction of the held quantity, clamped to at most 1
	Confidence *float64 // confidence-scaled exit fraction
	Timestamp  time.Time
}

// CloseResult is the structured outcome of a close/reduce request.
// Position is the remaining holding, nil when fully closed.
type CloseResult struct {
	Success            bool
	Position           *domain.Position
	RealizedPnL        float64
	RealizedPnLPercent float64
	CostBasis          float64
	Quantity           float64
	Price              float64
	TotalValue         float64
	Error              domain.RejectionCode
}

// Open opens a new position or increases an existing one. Increasing an
// existing holding recomputes the average price as the volume-weighted mean
// of old and new cost; the entry date of the first opening is preserved.
func Open(existing *domain.Position, in OpenInput, cfg SizingConfig) OpenResult {
	if in.Price <= 0 {
		return OpenResult{Error: domain.RejectInvalidPrice, Price: in.Price}
	}
	if in.Quantity != nil {
		if *in.Quantity == 0 {
			return OpenResult{Error: domain.RejectZeroQuantity, Price: in.Price}
		}
		if *in.Quantity < 0 {
			return OpenResult{Error: domain.RejectNegativeQuantity, Price: in.Price}
		}
	}

	// The position-count gate only applies to brand-new positions; adding to
	// an existing holding is always allowed.
	isNew := existing.IsFlat()
	if isNew && in.OpenPositions >= cfg.maxPositions() {
		return OpenResult{Error: domain.RejectMaxPositions, Price: in.Price}
	}

	var quantity float64
	switch {
	case in.Quantity != nil:
		quantity = *in.Quantity
	case in.Percentage != nil:
		quantity = *in.Percentage * in.PortfolioValue / in.Price
	case in.Confidence != nil:
		quantity = Size(in.PortfolioValue, *in.Confidence, in.Price, cfg)
	default:
		quantity = Size(in.PortfolioValue, 0, in.Price, cfg)
	}
	if quantity <= 0 {
		return OpenResult{Error: domain.RejectZeroQuantity, Price: in.Price}
	}

	if quantity*in.Price > in.AvailableCapital {
		return OpenResult{Error: domain.RejectInsufficientCapital, Price: in.Price, Quantity: quantity}
	}

	pos := domain.Position{
		AssetID:   in.AssetID,
		EntryDate: in.Timestamp,
	}
	if isNew {
		pos.Quantity = quantity
		pos.AveragePrice = in.Price
	} else {
		pos.AssetID = existing.AssetID
		pos.EntryDate = existing.EntryDate
		pos.Quantity = existing.Quantity + quantity
		pos.AveragePrice = (existing.Quantity*existing.AveragePrice + quantity*in.Price) / pos.Quantity
	}
	pos.TotalValue = pos.Quantity * in.Price

	return OpenResult{
		Success:    true,
		Position:   &pos,
		Quantity:   quantity,
		Price:      in.Price,
		TotalValue: pos.TotalValue,
	}
}

// Close closes or reduces a position. The average price is unchanged on
// partial closes; a fully closed position yields a nil Position.
func Close(pos *domain.Position, in CloseInput, cfg SizingConfig) CloseResult {
	if in.Price <= 0 {
		return CloseResult{Error: domain.RejectInvalidPrice, Price: in.Price}
	}
	if pos.IsFlat() {
		return CloseResult{Error: domain.RejectNoPosition, Price: in.Price}
	}
	if in.Quantity != nil {
		if *in.Quantity == 0 {
			return CloseResult{Error: domain.RejectZeroQuantity, Price: in.Price}
		}
		if *in.Quantity < 0 {
			return CloseResult{Error: domain.RejectNegativeQuantity, Price: in.Price}
		}
	}

	var quantity float64
	switch {
	case in.Quantity != nil:
		quantity = *in.Quantity
		if quantity > pos.Quantity {
			quantity = pos.Quantity
		}
	case in.Percentage != nil:
		pct := *in.Percentage
		if pct > 1 {
			pct = 1
		}
		quantity = pct * pos.Quantity
	case in.Confidence != nil:
		fraction := minCloseFraction + clamp01(*in.Confidence)*(1-minCloseFraction)
		quantity = fraction * pos.Quantity
	default:
		quantity = pos.Quantity
	}
	if quantity <= 0 {
		return CloseResult{Error: domain.RejectZeroQuantity, Price: in.Price}
	}

	realizedPnL := (in.Price - pos.AveragePrice) * quantity
	realizedPnLPercent := 0.0
	if pos.AveragePrice > 0 {
		realizedPnLPercent = (in.Price - pos.AveragePrice) / pos.AveragePrice * 100
	}

	result := CloseResult{
		Success:            true,
		RealizedPnL:        realizedPnL,
		RealizedPnLPercent: realizedPnLPercent,
		CostBasis:          pos.AveragePrice * quantity,
		Quantity:           quantity,
		Price:              in.Price,
		TotalValue:         quantity * in.Price,
	}

	remaining := pos.Quantity - quantity
	if remaining > 1e-12 {
		result.Position = &domain.Position{
			AssetID:      pos.AssetID,
			Quantity:     remaining,
			AveragePrice: pos.AveragePrice,
			TotalValue:   remaining * in.Price,
			EntryDate:    pos.EntryDate,
		}
	}
	return result
}

// Size returns the confidence-scaled position size: a linear interpolation
// between the minimum and maximum allocation of portfolio value, with
// confidence clamped to [0,1].
func Size(portfolioValue, confidence, price float64, cfg SizingConfig) float64 {
	if price <= 0 {
		return 0
	}
	c := clamp01(confidence)
	allocation := cfg.minAllocation() + c*(cfg.maxAllocation()-cfg.minAllocation())
	return portfolioValue * allocation / price
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
