package domain

import "time"

// Trade records one executed fill, after slippage and fees.
type Trade struct {
	AssetID     string    // Traded asset
	Side        OrderSide // BUY or SELL
	Quantity    float64   // Filled quantity
	Price       float64   // Execution price after slippage
	Fee         float64   // Fee charged on the fill
	SlippageBps float64   // Slippage applied to the quoted price
	RealizedPnL float64   // Realized profit or loss (sells only)
	Time        time.Time // Fill timestamp
	Forced      bool      // True when the fill came from an opportunity-sell plan
}
