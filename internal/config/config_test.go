package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, "venues:\n  names: [\"kalshi\"]\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.MinEdgeBpsNetHard != 100 {
		t.Errorf("MinEdgeBpsNetHard = %d, want 100", cfg.Engine.MinEdgeBpsNetHard)
	}
	if cfg.Engine.MaxSnapshotAgeMS != 750 {
		t.Errorf("MaxSnapshotAgeMS = %d, want 750", cfg.Engine.MaxSnapshotAgeMS)
	}
	if cfg.Engine.MaxExecutionTimeMS != 30 {
		t.Errorf("MaxExecutionTimeMS = %d, want 30", cfg.Engine.MaxExecutionTimeMS)
	}
	if cfg.Engine.HybridFallbackTimeoutMS != 15 {
		t.Errorf("HybridFallbackTimeoutMS = %d, want 15", cfg.Engine.HybridFallbackTimeoutMS)
	}
	if cfg.Rebalance.SizeToleranceContracts != 0 {
		t.Errorf("SizeToleranceContracts = %d, want 0 (strict by default)", cfg.Rebalance.SizeToleranceContracts)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeTempConfig(t, `
venues:
  names: ["kalshi", "polymarket"]
engine:
  min_edge_bps_net_hard: 250
  max_execution_time_ms: 40
  hybrid_fallback_timeout_ms: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.MinEdgeBpsNetHard != 250 {
		t.Errorf("MinEdgeBpsNetHard = %d, want 250", cfg.Engine.MinEdgeBpsNetHard)
	}
	if len(cfg.Venues.Names) != 2 {
		t.Errorf("len(Venues.Names) = %d, want 2", len(cfg.Venues.Names))
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	path := writeTempConfig(t, "venues:\n  names: [\"kalshi\"]\n")
	t.Setenv("ARBX_API_KEY", "env-key")
	t.Setenv("ARBX_DRY_RUN", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Venues.ApiKey != "env-key" {
		t.Errorf("Venues.ApiKey = %q, want %q", cfg.Venues.ApiKey, "env-key")
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true from ARBX_DRY_RUN")
	}
}

func TestValidateRejectsMissingVenues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Engine: EngineConfig{
			MinEdgeBpsNetHard:       100,
			MaxCapitalPerTrade:      0.1,
			MaxPositionFraction:     0.25,
			MaxExecutionTimeMS:      30,
			HybridFallbackTimeoutMS: 15,
			MinOutcomes:             3,
			MaxOutcomes:             20,
		},
		Rebalance: RebalanceConfig{MaxIterations: 50},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for empty venues.names")
	}
}

func TestValidateRejectsBadHybridTimeout(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Venues: VenueConfig{Names: []string{"kalshi"}},
		Engine: EngineConfig{
			MinEdgeBpsNetHard:       100,
			MaxCapitalPerTrade:      0.1,
			MaxPositionFraction:     0.25,
			MaxExecutionTimeMS:      30,
			HybridFallbackTimeoutMS: 30,
			MinOutcomes:             3,
			MaxOutcomes:             20,
		},
		Rebalance: RebalanceConfig{MaxIterations: 50},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error when hybrid_fallback_timeout_ms >= max_execution_time_ms")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Venues: VenueConfig{Names: []string{"kalshi"}},
		Engine: EngineConfig{
			MinEdgeBpsNetHard:       100,
			MaxCapitalPerTrade:      0.1,
			MaxPositionFraction:     0.25,
			MaxExecutionTimeMS:      30,
			HybridFallbackTimeoutMS: 15,
			MinOutcomes:             3,
			MaxOutcomes:             20,
		},
		Rebalance: RebalanceConfig{MaxIterations: 50},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
