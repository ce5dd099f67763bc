package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"cryptoTradeSim/internal/adapters/logger"
	"cryptoTradeSim/internal/analysis"
	"cryptoTradeSim/internal/fees"
	"cryptoTradeSim/internal/position"
	"cryptoTradeSim/internal/slippage"
)

// Config holds all application configuration.
type Config struct {
	// Portfolio
	PortfolioID  string
	InitialFunds float64

	// Fee schedule
	FeeModel  string
	FlatRate  float64
	MakerRate float64
	TakerRate float64

	// Slippage model
	SlippageModel        string
	SlippageFixedBps     float64
	SlippageBaseBps      float64
	SlippageVolumeImpact float64
	SlippageMaxBps       float64

	// Position sizing
	MaxPositions  int
	MinAllocation float64
	MaxAllocation float64

	// Opportunity selling policy
	OpportunitySellingEnabled bool
	MinOpportunityConfidence  float64
	MinHoldingPeriodHours     float64
	ProtectGainsAbovePercent  float64
	ProtectedAssets           []string
	MinAdvantageThreshold     float64
	MaxLiquidationPercent     float64
	UseAlgorithmRanking       bool

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "std" or "json"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.PortfolioID = getEnv("PORTFOLIO_ID", "default")
	cfg.InitialFunds = getEnvAsFloat("INITIAL_FUNDS", 10000, &errs)
	if cfg.InitialFunds <= 0 {
		errs = append(errs, "INITIAL_FUNDS must be positive")
	}

	cfg.FeeModel = strings.ToLower(getEnv("FEE_MODEL", string(fees.ModelFlat)))
	cfg.FlatRate = getEnvAsFloat("FLAT_FEE_RATE", fees.DefaultFlatRate, &errs)
	cfg.MakerRate = getEnvAsFloat("MAKER_FEE_RATE", fees.DefaultMakerRate, &errs)
	cfg.TakerRate = getEnvAsFloat("TAKER_FEE_RATE", fees.DefaultTakerRate, &errs)
	if cfg.FlatRate < 0 || cfg.MakerRate < 0 || cfg.TakerRate < 0 {
		errs = append(errs, "fee rates must be non-negative")
	}

	cfg.SlippageModel = strings.ToLower(getEnv("SLIPPAGE_MODEL", string(slippage.ModelFixed)))
	cfg.SlippageFixedBps = getEnvAsFloat("SLIPPAGE_FIXED_BPS", slippage.DefaultFixedBps, &errs)
	cfg.SlippageBaseBps = getEnvAsFloat("SLIPPAGE_BASE_BPS", slippage.DefaultBaseBps, &errs)
	cfg.SlippageVolumeImpact = getEnvAsFloat("SLIPPAGE_VOLUME_IMPACT", slippage.DefaultVolumeImpactFactor, &errs)
	cfg.SlippageMaxBps = getEnvAsFloat("SLIPPAGE_MAX_BPS", slippage.DefaultMaxSlippageBps, &errs)
	if cfg.SlippageMaxBps < 0 {
		errs = append(errs, "SLIPPAGE_MAX_BPS must be non-negative")
	}

	cfg.MaxPositions = getEnvAsInt("MAX_POSITIONS", position.DefaultMaxPositions, &errs)
	cfg.MinAllocation = getEnvAsFloat("MIN_ALLOCATION", position.DefaultMinAllocation, &errs)
	cfg.MaxAllocation = getEnvAsFloat("MAX_ALLOCATION", position.DefaultMaxAllocation, &errs)
	if cfg.MinAllocation <= 0 || cfg.MaxAllocation <= 0 || cfg.MinAllocation > cfg.MaxAllocation {
		errs = append(errs, "allocations must be positive and MIN_ALLOCATION <= MAX_ALLOCATION")
	}

	cfg.OpportunitySellingEnabled = getEnvAsBool("OPPORTUNITY_SELLING_ENABLED", true)
	cfg.MinOpportunityConfidence = getEnvAsFloat("MIN_OPPORTUNITY_CONFIDENCE", 0.7, &errs)
	cfg.MinHoldingPeriodHours = getEnvAsFloat("MIN_HOLDING_PERIOD_HOURS", 24, &errs)
	cfg.ProtectGainsAbovePercent = getEnvAsFloat("PROTECT_GAINS_ABOVE_PERCENT", 15, &errs)
	cfg.ProtectedAssets = splitList(getEnv("PROTECTED_ASSETS", ""))
	cfg.MinAdvantageThreshold = getEnvAsFloat("MIN_ADVANTAGE_THRESHOLD", 0, &errs)
	cfg.MaxLiquidationPercent = getEnvAsFloat("MAX_LIQUIDATION_PERCENT", 25, &errs)
	cfg.UseAlgorithmRanking = getEnvAsBool("USE_ALGORITHM_RANKING", false)
	if cfg.MinOpportunityConfidence < 0 || cfg.MinOpportunityConfidence > 1 {
		errs = append(errs, "MIN_OPPORTUNITY_CONFIDENCE must be within [0,1]")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trade_sim.db")
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "std"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// FeeConfig maps the loaded environment onto a fee schedule.
func (c *Config) FeeConfig() fees.Config {
	switch fees.Model(c.FeeModel) {
	case fees.ModelMakerTaker:
		maker, taker := c.MakerRate, c.TakerRate
		return fees.Config{Model: fees.ModelMakerTaker, MakerRate: &maker, TakerRate: &taker}
	default:
		flat := c.FlatRate
		return fees.Config{Model: fees.ModelFlat, FlatRate: &flat}
	}
}

// SlippageConfig maps the loaded environment onto a slippage model.
func (c *Config) SlippageConfig() slippage.Config {
	maxBps := c.SlippageMaxBps
	cfg := slippage.Config{Model: slippage.Model(c.SlippageModel), MaxSlippageBps: &maxBps}
	switch cfg.Model {
	case slippage.ModelFixed:
		fixed := c.SlippageFixedBps
		cfg.FixedBps = &fixed
	case slippage.ModelVolumeBased:
		base, impact := c.SlippageBaseBps, c.SlippageVolumeImpact
		cfg.BaseBps = &base
		cfg.VolumeImpactFactor = &impact
	case slippage.ModelHistorical:
		hist := c.SlippageFixedBps
		cfg.HistoricalBps = &hist
	}
	return cfg
}

// SizingConfig maps the loaded environment onto position sizing parameters.
func (c *Config) SizingConfig() position.SizingConfig {
	return position.SizingConfig{
		MaxPositions:  c.MaxPositions,
		MinAllocation: c.MinAllocation,
		MaxAllocation: c.MaxAllocation,
	}
}

// SellPolicy maps the loaded environment onto the opportunity-selling policy.
func (c *Config) SellPolicy() analysis.Config {
	return analysis.Config{
		Enabled:                  c.OpportunitySellingEnabled,
		MinOpportunityConfidence: c.MinOpportunityConfidence,
		MinHoldingPeriodHours:    c.MinHoldingPeriodHours,
		ProtectGainsAbovePercent: c.ProtectGainsAbovePercent,
		ProtectedAssets:          c.ProtectedAssets,
		MinAdvantageThreshold:    c.MinAdvantageThreshold,
		MaxLiquidationPercent:    c.MaxLiquidationPercent,
		UseAlgorithmRanking:      c.UseAlgorithmRanking,
	}
}

// --- Helper functions for reading environment variables ---

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *[]string) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid integer value for %s: '%s'", key, valueStr))
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64, errs *[]string) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid float value for %s: '%s'", key, valueStr))
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
