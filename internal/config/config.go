// Package config defines all configuration for the arbitrage engine. Config
// is loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via ARBX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure. Loaded once at startup and never mutated during a run.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Venues    VenueConfig     `mapstructure:"venues"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Rebalance RebalanceConfig `mapstructure:"rebalance"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Status    StatusConfig    `mapstructure:"status"`
}

// VenueConfig names the reachable venues and optional credentials. A real
// deployment loads one entry per connected venue adapter; the core never
// reads past this metadata.
type VenueConfig struct {
	Names      []string `mapstructure:"names"`
	ApiKey     string   `mapstructure:"api_key"`
	Secret     string   `mapstructure:"secret"`
	Passphrase string   `mapstructure:"passphrase"`
}

// EngineConfig holds the C2-C4/C6/C8 tuning knobs from spec §6.
//
//   - MinEdgeBpsNetHard: opportunities below this net edge are never emitted/approved.
//   - MaxSnapshotAgeMS: a snapshot older than this is stale and disqualifies a leg.
//   - MaxSlippageBpsHardPerLeg: per-leg predicted slippage ceiling before DENY.
//   - MaxPositionContracts: the hard per-opportunity position cap.
//   - MaxCapitalPerTrade: fraction of available capital one trade may use.
//   - MaxPositionFraction: fraction of available capital one outcome may use.
//   - FeeBufferBps: subtracted from gross edge before the hard-edge check.
//   - ProbeQuantityContracts: the size used to probe executable price.
//   - TTLMsDefault: default time-to-live for a freshly emitted opportunity.
//   - MaxExecutionTimeMS: the hard end-to-end execution wall-clock budget.
//   - HybridFallbackTimeoutMS: when to cancel+resubmit LIMIT legs as MARKET.
//   - MaxRetries / RetryBaseDelayMS: retry budget for transport errors.
type EngineConfig struct {
	MinEdgeBpsNetHard         int64   `mapstructure:"min_edge_bps_net_hard"`
	MaxSnapshotAgeMS          int64   `mapstructure:"max_snapshot_age_ms"`
	MaxSlippageBpsHardPerLeg  int64   `mapstructure:"max_slippage_bps_hard_per_leg"`
	MaxPositionContracts      int64   `mapstructure:"max_position_contracts"`
	MaxCapitalPerTrade        float64 `mapstructure:"max_capital_per_trade"`
	MaxPositionFraction       float64 `mapstructure:"max_position_fraction"`
	FeeBufferBps              int64   `mapstructure:"fee_buffer_bps"`
	ProbeQuantityContracts    int64   `mapstructure:"probe_quantity_contracts"`
	TTLMsDefault              int64   `mapstructure:"ttl_ms_default"`
	MaxExecutionTimeMS        int64   `mapstructure:"max_execution_time_ms"`
	HybridFallbackTimeoutMS   int64   `mapstructure:"hybrid_fallback_timeout_ms"`
	MaxRetries                int     `mapstructure:"max_retries"`
	RetryBaseDelayMS          int64   `mapstructure:"retry_base_delay_ms"`
	PollIntervalMS            int64   `mapstructure:"poll_interval_ms"`
	MinOutcomes               int     `mapstructure:"min_outcomes"`
	MaxOutcomes               int     `mapstructure:"max_outcomes"`
	MinLiquidityPerOutcome    float64 `mapstructure:"min_liquidity_per_outcome"`
	MinLiquidityRatio         float64 `mapstructure:"min_liquidity_ratio"`
	MinDeviation              float64 `mapstructure:"min_deviation"`
	DependencyConfidenceFloor float64 `mapstructure:"dependency_confidence_floor"`
	RunID                     string  `mapstructure:"run_id"`
	StrategyVersion           string  `mapstructure:"strategy_version"`
}

// RiskConfig sets the per-trade risk posture. MaxDailyLoss and
// MaxGrossExposure are portfolio-level early filters; per spec §1
// non-goals, anything beyond a per-trade cap is explicitly out of scope,
// so these bound the context the gate reads rather than implement a
// standalone budgeting engine.
type RiskConfig struct {
	MaxDailyLoss     float64 `mapstructure:"max_daily_loss"`
	MaxGrossExposure float64 `mapstructure:"max_gross_exposure"`
}

// RebalanceConfig tunes C5's Frank-Wolfe/Bregman optimizer.
type RebalanceConfig struct {
	ConvergenceThreshold   float64 `mapstructure:"convergence_threshold"`
	MaxIterations          int     `mapstructure:"max_iterations"`
	SizeToleranceContracts int64   `mapstructure:"rebalance_size_tolerance_contracts"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StatusConfig controls the read-only HTTP status/metrics surface.
type StatusConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ARBX_API_KEY, ARBX_API_SECRET, ARBX_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARBX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ARBX_API_KEY"); key != "" {
		cfg.Venues.ApiKey = key
	}
	if secret := os.Getenv("ARBX_API_SECRET"); secret != "" {
		cfg.Venues.Secret = secret
	}
	if pass := os.Getenv("ARBX_PASSPHRASE"); pass != "" {
		cfg.Venues.Passphrase = pass
	}
	if dr := os.Getenv("ARBX_DRY_RUN"); dr == "true" || dr == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// setDefaults installs the spec §6 defaults so a minimal YAML file still
// produces a runnable config; ReadInConfig overrides on top of these.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.min_edge_bps_net_hard", 100)
	v.SetDefault("engine.max_snapshot_age_ms", 750)
	v.SetDefault("engine.max_slippage_bps_hard_per_leg", 100)
	v.SetDefault("engine.max_position_contracts", 100)
	v.SetDefault("engine.max_capital_per_trade", 0.10)
	v.SetDefault("engine.max_position_fraction", 0.25)
	v.SetDefault("engine.fee_buffer_bps", 10)
	v.SetDefault("engine.probe_quantity_contracts", 25)
	v.SetDefault("engine.ttl_ms_default", 500)
	v.SetDefault("engine.max_execution_time_ms", 30)
	v.SetDefault("engine.hybrid_fallback_timeout_ms", 15)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.retry_base_delay_ms", 50)
	v.SetDefault("engine.poll_interval_ms", 100)
	v.SetDefault("engine.min_outcomes", 3)
	v.SetDefault("engine.max_outcomes", 20)
	v.SetDefault("engine.min_liquidity_per_outcome", 500)
	v.SetDefault("engine.min_liquidity_ratio", 0.3)
	v.SetDefault("engine.min_deviation", 0.02)
	v.SetDefault("engine.dependency_confidence_floor", 0.6)
	v.SetDefault("rebalance.convergence_threshold", 1e-6)
	v.SetDefault("rebalance.max_iterations", 50)
	v.SetDefault("rebalance.rebalance_size_tolerance_contracts", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.port", 8090)
}

// Validate checks required fields and value ranges. Invalid configuration
// is fatal at startup per spec §7.
func (c *Config) Validate() error {
	if len(c.Venues.Names) == 0 {
		return fmt.Errorf("venues.names must name at least one venue")
	}
	if c.Engine.MinEdgeBpsNetHard <= 0 {
		return fmt.Errorf("engine.min_edge_bps_net_hard must be > 0")
	}
	if c.Engine.MaxCapitalPerTrade <= 0 || c.Engine.MaxCapitalPerTrade > 1 {
		return fmt.Errorf("engine.max_capital_per_trade must be in (0, 1]")
	}
	if c.Engine.MaxPositionFraction <= 0 || c.Engine.MaxPositionFraction > 1 {
		return fmt.Errorf("engine.max_position_fraction must be in (0, 1]")
	}
	if c.Engine.MaxExecutionTimeMS <= 0 {
		return fmt.Errorf("engine.max_execution_time_ms must be > 0")
	}
	if c.Engine.HybridFallbackTimeoutMS >= c.Engine.MaxExecutionTimeMS {
		return fmt.Errorf("engine.hybrid_fallback_timeout_ms must be < engine.max_execution_time_ms")
	}
	if c.Engine.MinOutcomes < 3 || c.Engine.MinOutcomes > c.Engine.MaxOutcomes {
		return fmt.Errorf("engine.min_outcomes must be >= 3 and <= max_outcomes")
	}
	if c.Rebalance.MaxIterations <= 0 {
		return fmt.Errorf("rebalance.max_iterations must be > 0")
	}
	return nil
}
