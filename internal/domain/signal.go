package domain

import "time"

// Signal is an abstract trading decision handed to the execution layer.
// The engine never generates signals; it turns them into costed position
// changes.
type Signal struct {
	Time       time.Time // When the signal fired
	AssetID    string    // Target asset
	Side       OrderSide // BUY or SELL
	Confidence float64   // Strength of conviction in [0,1]
}
