// Arbitrage engine — scans related prediction markets for mispriced
// complements and categorical imbalances, sizes and risk-gates each
// candidate, and executes the approved ones across one or more venues.
//
// Architecture:
//
//	main.go                  — entry point: loads config, wires everything, waits for SIGINT/SIGTERM
//	internal/orchestrator    — scan/risk/execute loop: wires book → opportunity → risk → executor
//	internal/opportunity     — binary-complement and categorical-rebalance scans
//	internal/dependency      — mutually-exclusive/equivalent market relationship detection
//	internal/rebalance       — Frank-Wolfe/Bregman allocation across a categorical cluster
//	internal/risk            — ordered-rule decision gate + running exposure/PnL context
//	internal/lifecycle       — the opportunity state machine (DISCOVERED..CLOSED)
//	internal/executor        — MARKET/LIMIT/HYBRID execution, fill polling, rollback
//	internal/venue           — the Port capability interface venues satisfy
//	internal/book            — per-asset order book snapshot store
//	internal/metrics         — per-trade records + aggregate summary
//	internal/status          — read-only HTTP/WebSocket surface over the above
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/shopspring/decimal"

	"arb-engine/internal/book"
	"arb-engine/internal/config"
	"arb-engine/internal/executor"
	"arb-engine/internal/metrics"
	"arb-engine/internal/opportunity"
	"arb-engine/internal/orchestrator"
	"arb-engine/internal/risk"
	"arb-engine/internal/status"
	"arb-engine/internal/venue"
	"arb-engine/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARBX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	venues := buildVenues(*cfg, logger)
	books := book.NewStore()
	riskCtx := risk.NewContext(
		decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		decimal.NewFromFloat(cfg.Risk.MaxGrossExposure),
	)
	recorder := metrics.NewRecorder()

	orch := orchestrator.New(
		orchestratorConfig(*cfg),
		noMarketSource{},
		books,
		riskCtx,
		venues,
		recorder,
		logger,
	)

	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(cfg.Status.Port, cfg.Status.AllowedOrigins, orch, logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status server started", "url", fmt.Sprintf("http://localhost:%d", cfg.Status.Port))
	}

	orch.Start()

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("arbitrage engine started",
		"venues", cfg.Venues.Names,
		"min_edge_bps_net_hard", cfg.Engine.MinEdgeBpsNetHard,
		"max_gross_exposure", cfg.Risk.MaxGrossExposure,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if statusServer != nil {
		if err := statusServer.Stop(); err != nil {
			logger.Error("failed to stop status server", "error", err)
		}
	}

	orch.Stop()
}

// buildVenues constructs one venue.Port per configured venue name. In
// dry-run mode every venue is an in-memory fake so no real order ever
// reaches a network; otherwise each name is treated as that venue's REST
// base URL, authenticated with the shared API key.
func buildVenues(cfg config.Config, logger *slog.Logger) map[string]venue.Port {
	ports := make(map[string]venue.Port, len(cfg.Venues.Names))
	for _, name := range cfg.Venues.Names {
		if cfg.DryRun {
			ports[name] = venue.NewFake(decimal.NewFromInt(1_000_000))
			continue
		}
		ports[name] = venue.NewClient(name, cfg.Venues.ApiKey, logger)
	}
	return ports
}

func orchestratorConfig(cfg config.Config) orchestrator.Config {
	probe := decimal.NewFromInt(cfg.Engine.ProbeQuantityContracts)
	return orchestrator.Config{
		ScanInterval: time.Duration(cfg.Engine.PollIntervalMS) * time.Millisecond,
		OpportunityCfg: opportunity.Config{
			ProbeQuantity:             probe,
			MaxSnapshotAgeMS:          cfg.Engine.MaxSnapshotAgeMS,
			FeeBufferBps:              cfg.Engine.FeeBufferBps,
			MinEdgeBpsNetHard:         cfg.Engine.MinEdgeBpsNetHard,
			TTLMsDefault:              cfg.Engine.TTLMsDefault,
			MinOutcomes:               cfg.Engine.MinOutcomes,
			MaxOutcomes:               cfg.Engine.MaxOutcomes,
			MinLiquidityPerOutcome:    decimal.NewFromFloat(cfg.Engine.MinLiquidityPerOutcome),
			MinLiquidityRatio:         decimal.NewFromFloat(cfg.Engine.MinLiquidityRatio),
			MinDeviation:              decimal.NewFromFloat(cfg.Engine.MinDeviation),
			DependencyConfidenceFloor: cfg.Engine.DependencyConfidenceFloor,
			RunID:                     cfg.Engine.RunID,
			StrategyVersion:           cfg.Engine.StrategyVersion,
		},
		RiskLimits: risk.Limits{
			MaxSnapshotAgeMS:         cfg.Engine.MaxSnapshotAgeMS,
			MinEdgeBpsNetHard:        cfg.Engine.MinEdgeBpsNetHard,
			MaxSlippageBpsHardPerLeg: cfg.Engine.MaxSlippageBpsHardPerLeg,
			MaxPositionContracts:     decimal.NewFromInt(cfg.Engine.MaxPositionContracts),
		},
		ExecutorCfg: executor.Config{
			MaxExecutionTimeMS:      cfg.Engine.MaxExecutionTimeMS,
			HybridFallbackTimeoutMS: cfg.Engine.HybridFallbackTimeoutMS,
			PollIntervalMS:          cfg.Engine.PollIntervalMS,
			MaxRetries:              cfg.Engine.MaxRetries,
			RetryBaseDelayMS:        cfg.Engine.RetryBaseDelayMS,
			RetryMaxDelayMS:         5_000,
			MaxSlippagePct:          decimal.NewFromFloat(cfg.Engine.MaxPositionFraction),
		},
		RebalanceMaxIter:  cfg.Rebalance.MaxIterations,
		RebalanceTol:      cfg.Rebalance.ConvergenceThreshold,
		ExecutionStrategy: types.StrategyHybrid,
		ConfidenceFloor:   cfg.Engine.DependencyConfidenceFloor,
	}
}

// noMarketSource is the default MarketSource: it returns no markets every
// cycle. Concrete market discovery is adapter territory — see
// orchestrator.MarketSource's doc comment — so this keeps the engine
// runnable out of the box without pretending to talk to a real venue.
type noMarketSource struct{}

func (noMarketSource) Markets(ctx context.Context) ([]types.Market, error) {
	return nil, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
