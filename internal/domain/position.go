package domain

import "time"

// Position represents one open holding of a single asset.
// Positions are value objects from the engine's perspective: operations that
// change a holding return a new Position rather than mutating the input, so a
// backtest replay over the same snapshots stays deterministic.
type Position struct {
	AssetID      string    // Opaque asset identifier, unique per portfolio
	Quantity     float64   // Held amount; zero means flat
	AveragePrice float64   // Volume-weighted cost basis; recomputed on increases only
	TotalValue   float64   // Quantity × last known price; derived, refreshed on demand
	EntryDate    time.Time // Timestamp of first opening; zero value if unknown
}

// IsFlat reports whether the position holds nothing.
func (p *Position) IsFlat() bool {
	return p == nil || p.Quantity <= 0
}

// MarketValue returns the position value at the given price.
func (p *Position) MarketValue(price float64) float64 {
	if p == nil {
		return 0
	}
	return p.Quantity * price
}

// UnrealizedPnLPercent returns the unrealized profit or loss as a percentage
// of the cost basis. Returns 0 when the cost basis is unknown.
func (p *Position) UnrealizedPnLPercent(price float64) float64 {
	if p == nil || p.AveragePrice <= 0 {
		return 0
	}
	return (price - p.AveragePrice) / p.AveragePrice * 100
}

// HoldingHours returns how long the position has been held as of now.
// Returns 0 when the entry date is unknown.
func (p *Position) HoldingHours(now time.Time) float64 {
	if p == nil || p.EntryDate.IsZero() {
		return 0
	}
	return now.Sub(p.EntryDate).Hours()
}

// WithPrice returns a copy of the position with TotalValue refreshed at the
// given price.
func (p Position) WithPrice(price float64) Position {
	p.TotalValue = p.Quantity * price
	return p
}
