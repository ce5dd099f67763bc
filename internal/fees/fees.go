// Package fees computes trade fees from a trade value and an order-type
// classification. The model only produces the fee amount; deducting it from
// a cash balance is the caller's job, applied exactly once per fill.
package fees

import (
	"fmt"
	"math"

	"cryptoTradeSim/internal/ports"
)

// Model discriminates the fee configuration variants.
type Model string

const (
	ModelFlat       Model = "flat"
	ModelMakerTaker Model = "maker_taker"
)

// Documented default rates, used whenever a config leaves a rate unset.
const (
	DefaultFlatRate  = 0.001
	DefaultMakerRate = 0.0005
	DefaultTakerRate = 0.001
)

// OrderType classifies a fill for maker/taker schedules.
type OrderType string

const (
	OrderTypeMaker OrderType = "maker"
	OrderTypeTaker OrderType = "taker"
)

// Config is a tagged union over the supported fee schedules. Rate fields are
// pointers so an explicit zero rate is distinguishable from "unset"; unset
// rates resolve to the documented defaults in one place.
type Config struct {
	Model Model

	// ModelFlat
	FlatRate *float64

	// ModelMakerTaker
	MakerRate *float64
	TakerRate *float64
}

// Result carries the computed fee. OrderType is empty for flat schedules.
type Result struct {
	Fee       float64
	Rate      float64
	OrderType OrderType
}

// FlatConfig builds a flat-fee config from a single rate.
func FlatConfig(rate float64) (Config, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return Config{}, fmt.Errorf("%w: flat fee rate %v", ports.ErrInvalidRate, rate)
	}
	return Config{Model: ModelFlat, FlatRate: &rate}, nil
}

// Calculate computes the fee for a trade value under the given schedule.
// A nil isMaker is treated as a taker fill. Unknown models fall back to the
// flat schedule with the documented default rate.
func Calculate(tradeValue float64, isMaker *bool, cfg Config) (Result, error) {
	if math.IsNaN(tradeValue) || math.IsInf(tradeValue, 0) || tradeValue < 0 {
		return Result{}, fmt.Errorf("%w: trade value %v", ports.ErrInvalidTradeValue, tradeValue)
	}

	switch cfg.Model {
	case ModelMakerTaker:
		rate, orderType := resolveRate(cfg.TakerRate, DefaultTakerRate), OrderTypeTaker
		if isMaker != nil && *isMaker {
			rate, orderType = resolveRate(cfg.MakerRate, DefaultMakerRate), OrderTypeMaker
		}
		if err := validRate(rate); err != nil {
			return Result{}, err
		}
		return Result{Fee: tradeValue * rate, Rate: rate, OrderType: orderType}, nil
	default:
		rate := resolveRate(cfg.FlatRate, DefaultFlatRate)
		if err := validRate(rate); err != nil {
			return Result{}, err
		}
		return Result{Fee: tradeValue * rate, Rate: rate}, nil
	}
}

func resolveRate(rate *float64, fallback float64) float64 {
	if rate == nil {
		return fallback
	}
	return *rate
}

func validRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return fmt.Errorf("%w: fee rate %v", ports.ErrInvalidRate, rate)
	}
	return nil
}
