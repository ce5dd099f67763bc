// Package slippage computes an execution-price adjustment from order size,
// price, and optional liquidity context. All models clamp the computed
// basis points to [0, maxSlippageBps].
package slippage

import (
	"fmt"
	"math"

	"cryptoTradeSim/internal/ports"
)

// Model discriminates the slippage configuration variants.
type Model string

const (
	ModelNone        Model = "none"
	ModelFixed       Model = "fixed"
	ModelVolumeBased Model = "volume_based"
	ModelHistorical  Model = "historical"
)

// Documented defaults, used whenever a config leaves a field unset.
const (
	DefaultFixedBps           = 5.0
	DefaultBaseBps            = 5.0
	DefaultVolumeImpactFactor = 100.0
	DefaultHistoricalBps      = 10.0
	DefaultMaxSlippageBps     = 500.0

	// defaultVolumeRatio is the fallback order/volume ratio when daily volume
	// is missing or non-positive. Kept as-is; the constant has no documented
	// derivation.
	defaultVolumeRatio = 0.001
)

// Config is a tagged union over the supported slippage models. Pointer fields
// distinguish an explicit zero from "unset"; unset fields resolve to the
// documented defaults.
type Config struct {
	Model Model

	// ModelFixed
	FixedBps *float64

	// ModelVolumeBased
	BaseBps            *float64
	VolumeImpactFactor *float64

	// ModelHistorical: placeholder returning a configured fixed value.
	// Real historical slippage sourcing lives outside this engine.
	HistoricalBps *float64

	// Cap applied to every model's output.
	MaxSlippageBps *float64
}

// Input describes one order for slippage estimation.
type Input struct {
	Price       float64
	Quantity    float64
	IsBuy       bool
	DailyVolume *float64 // optional liquidity context for ModelVolumeBased
}

// Result carries the slippage estimate and the adjusted execution price.
type Result struct {
	SlippageBps    float64
	ExecutionPrice float64
	PriceImpact    float64
	OriginalPrice  float64
}

// Calculate estimates slippage for the given order. Unknown models fall back
// to the default fixed bps.
func Calculate(in Input, cfg Config) (Result, error) {
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price <= 0 {
		return Result{}, fmt.Errorf("%w: slippage price %v", ports.ErrInvalidPrice, in.Price)
	}

	var bps float64
	switch cfg.Model {
	case ModelNone:
		bps = 0
	case ModelFixed:
		bps = resolve(cfg.FixedBps, DefaultFixedBps)
	case ModelVolumeBased:
		orderValue := in.Quantity * in.Price
		ratio := defaultVolumeRatio
		if in.DailyVolume != nil && *in.DailyVolume > 0 {
			ratio = orderValue / *in.DailyVolume
		}
		bps = resolve(cfg.BaseBps, DefaultBaseBps) + ratio*resolve(cfg.VolumeImpactFactor, DefaultVolumeImpactFactor)
	case ModelHistorical:
		bps = resolve(cfg.HistoricalBps, DefaultHistoricalBps)
	default:
		bps = DefaultFixedBps
	}

	maxBps := resolve(cfg.MaxSlippageBps, DefaultMaxSlippageBps)
	if bps < 0 {
		bps = 0
	}
	if bps > maxBps {
		bps = maxBps
	}

	executionPrice := Apply(in.Price, bps, in.IsBuy)
	return Result{
		SlippageBps:    bps,
		ExecutionPrice: executionPrice,
		PriceImpact:    math.Abs(executionPrice-in.Price) / in.Price,
		OriginalPrice:  in.Price,
	}, nil
}

// Apply adjusts a price by the given slippage. Buys pay up, sells receive
// less; the adjustment is symmetric in magnitude.
func Apply(price, bps float64, isBuy bool) float64 {
	if isBuy {
		return price * (1 + bps/10000)
	}
	return price * (1 - bps/10000)
}

func resolve(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
