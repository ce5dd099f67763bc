package domain

import "time"

// Kline represents a single candlestick data point.
// The backtest loop consumes aligned kline series as its price and volume
// source; Volume feeds the volume-based slippage model.
type Kline struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	AssetID   string    // Asset the candle belongs to
	Interval  string    // Kline interval (e.g., "1m", "1h")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Trading volume over the interval
}
