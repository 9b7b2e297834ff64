package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
)

// Config holds all runtime configuration for the exchange.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	TickInterval       time.Duration
	ExpirationInterval time.Duration
	EventBufferSize    int
	RandomSeed         int64 // 0 seeds from wall clock

	PricingPolicy     engine.PricingPolicy
	FundamentalWeight float64
	MaxTickMovePct    float64
	DepthThreshold    int64
	TypicalVolume     int64
	BaseSpreadPct     float64
	MaxSpreadPct      float64
	PriceFloor        int64 // cents

	BreakerTripPct  float64
	BreakerCooldown time.Duration

	BorrowPoolFraction float64
	BorrowDailyFeeRate float64
	MarginCallRatio    float64

	RiskFreeRate       float64
	StrikesPerSide     int
	StrikeSpacingPct   float64
	OptionExpirations  []time.Duration
	ContractMultiplier int64
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Port, err = getInt("PORT", 8080); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	cfg.LogLevel = getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	if cfg.ReadTimeout, err = getDuration("READ_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}
	if cfg.WriteTimeout, err = getDuration("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}
	if cfg.IdleTimeout, err = getDuration("IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	if cfg.TickInterval, err = getDuration("TICK_INTERVAL", 1*time.Second); err != nil {
		return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}
	if cfg.ExpirationInterval, err = getDuration("EXPIRATION_INTERVAL", 1*time.Second); err != nil {
		return nil, fmt.Errorf("invalid EXPIRATION_INTERVAL: %w", err)
	}
	if cfg.EventBufferSize, err = getInt("EVENT_BUFFER_SIZE", 1024); err != nil {
		return nil, fmt.Errorf("invalid EVENT_BUFFER_SIZE: %w", err)
	}
	if cfg.RandomSeed, err = getInt64("RANDOM_SEED", 0); err != nil {
		return nil, fmt.Errorf("invalid RANDOM_SEED: %w", err)
	}

	policy := getStr("PRICING_POLICY", string(engine.PolicyHybrid))
	switch engine.PricingPolicy(policy) {
	case engine.PolicyHybrid, engine.PolicyMarket:
		cfg.PricingPolicy = engine.PricingPolicy(policy)
	default:
		return nil, fmt.Errorf("invalid PRICING_POLICY: %q, must be one of: hybrid, market", policy)
	}
	if cfg.FundamentalWeight, err = getFloat("FUNDAMENTAL_WEIGHT", 0.3); err != nil {
		return nil, fmt.Errorf("invalid FUNDAMENTAL_WEIGHT: %w", err)
	}
	if cfg.FundamentalWeight < 0 || cfg.FundamentalWeight > 1 {
		return nil, fmt.Errorf("invalid FUNDAMENTAL_WEIGHT: must be between 0 and 1")
	}
	if cfg.MaxTickMovePct, err = getFloat("MAX_TICK_MOVE_PCT", 0.05); err != nil {
		return nil, fmt.Errorf("invalid MAX_TICK_MOVE_PCT: %w", err)
	}
	if cfg.DepthThreshold, err = getInt64("DEPTH_THRESHOLD", 1000); err != nil {
		return nil, fmt.Errorf("invalid DEPTH_THRESHOLD: %w", err)
	}
	if cfg.TypicalVolume, err = getInt64("TYPICAL_VOLUME", 500); err != nil {
		return nil, fmt.Errorf("invalid TYPICAL_VOLUME: %w", err)
	}
	if cfg.BaseSpreadPct, err = getFloat("BASE_SPREAD_PCT", 0.002); err != nil {
		return nil, fmt.Errorf("invalid BASE_SPREAD_PCT: %w", err)
	}
	if cfg.MaxSpreadPct, err = getFloat("MAX_SPREAD_PCT", 0.05); err != nil {
		return nil, fmt.Errorf("invalid MAX_SPREAD_PCT: %w", err)
	}
	priceFloor, err := getFloat("PRICE_FLOOR", 0.01)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_FLOOR: %w", err)
	}
	if cfg.PriceFloor, err = domain.DollarsToCents(priceFloor); err != nil || cfg.PriceFloor <= 0 {
		return nil, fmt.Errorf("invalid PRICE_FLOOR: must be a positive dollar amount with at most 2 decimal places")
	}

	if cfg.BreakerTripPct, err = getFloat("BREAKER_TRIP_PCT", 0.10); err != nil {
		return nil, fmt.Errorf("invalid BREAKER_TRIP_PCT: %w", err)
	}
	if cfg.BreakerTripPct <= 0 {
		return nil, fmt.Errorf("invalid BREAKER_TRIP_PCT: must be greater than 0")
	}
	if cfg.BreakerCooldown, err = getDuration("BREAKER_COOLDOWN", 2*time.Minute); err != nil {
		return nil, fmt.Errorf("invalid BREAKER_COOLDOWN: %w", err)
	}

	if cfg.BorrowPoolFraction, err = getFloat("BORROW_POOL_FRACTION", 0.25); err != nil {
		return nil, fmt.Errorf("invalid BORROW_POOL_FRACTION: %w", err)
	}
	if cfg.BorrowPoolFraction <= 0 || cfg.BorrowPoolFraction > 1 {
		return nil, fmt.Errorf("invalid BORROW_POOL_FRACTION: must be between 0 and 1")
	}
	if cfg.BorrowDailyFeeRate, err = getFloat("BORROW_DAILY_FEE_RATE", 0.001); err != nil {
		return nil, fmt.Errorf("invalid BORROW_DAILY_FEE_RATE: %w", err)
	}
	if cfg.MarginCallRatio, err = getFloat("MARGIN_CALL_RATIO", 0.5); err != nil {
		return nil, fmt.Errorf("invalid MARGIN_CALL_RATIO: %w", err)
	}

	if cfg.RiskFreeRate, err = getFloat("RISK_FREE_RATE", 0.045); err != nil {
		return nil, fmt.Errorf("invalid RISK_FREE_RATE: %w", err)
	}
	if cfg.StrikesPerSide, err = getInt("STRIKES_PER_SIDE", 3); err != nil {
		return nil, fmt.Errorf("invalid STRIKES_PER_SIDE: %w", err)
	}
	if cfg.StrikesPerSide < 0 {
		return nil, fmt.Errorf("invalid STRIKES_PER_SIDE: must be non-negative")
	}
	if cfg.StrikeSpacingPct, err = getFloat("STRIKE_SPACING_PCT", 0.05); err != nil {
		return nil, fmt.Errorf("invalid STRIKE_SPACING_PCT: %w", err)
	}
	if cfg.OptionExpirations, err = getDurations("OPTION_EXPIRATIONS", []time.Duration{
		7 * 24 * time.Hour, 14 * 24 * time.Hour, 30 * 24 * time.Hour,
	}); err != nil {
		return nil, fmt.Errorf("invalid OPTION_EXPIRATIONS: %w", err)
	}
	if cfg.ContractMultiplier, err = getInt64("CONTRACT_MULTIPLIER", 100); err != nil {
		return nil, fmt.Errorf("invalid CONTRACT_MULTIPLIER: %w", err)
	}
	if cfg.ContractMultiplier <= 0 {
		return nil, fmt.Errorf("invalid CONTRACT_MULTIPLIER: must be greater than 0")
	}

	return cfg, nil
}

// Pricing maps the config to the price formation parameter set,
// starting from the engine defaults.
func (c *Config) Pricing() engine.PricingConfig {
	pc := engine.DefaultPricingConfig()
	pc.Policy = c.PricingPolicy
	pc.FundamentalWeight = c.FundamentalWeight
	pc.MaxTickMovePct = c.MaxTickMovePct
	pc.DepthThreshold = c.DepthThreshold
	pc.TypicalVolume = c.TypicalVolume
	pc.BaseSpreadPct = c.BaseSpreadPct
	pc.MaxSpreadPct = c.MaxSpreadPct
	pc.PriceFloor = c.PriceFloor
	return pc
}

// Short maps the config to the short selling parameter set.
func (c *Config) Short() engine.ShortConfig {
	return engine.ShortConfig{
		PoolFraction:    c.BorrowPoolFraction,
		DailyFeeRate:    c.BorrowDailyFeeRate,
		MarginCallRatio: c.MarginCallRatio,
	}
}

// Options maps the config to the options chain parameter set.
func (c *Config) Options() engine.OptionsConfig {
	return engine.OptionsConfig{
		RiskFreeRate:       c.RiskFreeRate,
		StrikesPerSide:     c.StrikesPerSide,
		StrikeSpacingPct:   c.StrikeSpacingPct,
		Expirations:        c.OptionExpirations,
		ContractMultiplier: c.ContractMultiplier,
		MinTick:            1,
	}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getDurations parses a comma-separated list of durations.
func getDurations(key string, defaultVal []time.Duration) ([]time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	parts := strings.Split(v, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("durations must be positive")
		}
		out = append(out, d)
	}
	return out, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
