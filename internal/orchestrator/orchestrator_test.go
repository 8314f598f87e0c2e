package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/internal/book"
	"arb-engine/internal/executor"
	"arb-engine/internal/metrics"
	"arb-engine/internal/opportunity"
	"arb-engine/internal/risk"
	"arb-engine/internal/venue"
	"arb-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticMarketSource struct {
	markets []types.Market
}

func (s staticMarketSource) Markets(ctx context.Context) ([]types.Market, error) {
	return s.markets, nil
}

// autoFillFake fills every order immediately at 0.5, matching the
// executor package's own test double.
type autoFillFake struct {
	*venue.Fake
}

func (f *autoFillFake) PlaceOrder(ctx context.Context, marketID string, side types.Side, orderType types.OrderType, quantity decimal.Decimal, price *decimal.Decimal) (types.OrderHandle, error) {
	handle, err := f.Fake.PlaceOrder(ctx, marketID, side, orderType, quantity, price)
	if err != nil {
		return handle, err
	}
	fillPrice := decimal.NewFromFloat(0.5)
	if price != nil {
		fillPrice = *price
	}
	f.Fake.SetFill(handle.OrderID, quantity, fillPrice)
	return handle, nil
}

// partialFillFake fills the YES leg of a binary complement immediately but
// always fails the NO leg, forcing the executor down the rollback path with
// one leg already filled.
type partialFillFake struct {
	*venue.Fake
}

func (f *partialFillFake) PlaceOrder(ctx context.Context, marketID string, side types.Side, orderType types.OrderType, quantity decimal.Decimal, price *decimal.Decimal) (types.OrderHandle, error) {
	handle, err := f.Fake.PlaceOrder(ctx, marketID, side, orderType, quantity, price)
	if err != nil {
		return handle, err
	}
	if side == types.SideNo {
		f.Fake.SetFailure(handle.OrderID)
		return handle, nil
	}
	fillPrice := decimal.NewFromFloat(0.5)
	if price != nil {
		fillPrice = *price
	}
	f.Fake.SetFill(handle.OrderID, quantity, fillPrice)
	return handle, nil
}

// crossedBook returns a book where the best bid sits above the best ask —
// buying YES at the ask and synthesizing a NO buy from 1-minus-bid costs
// less than 1 in total, which is exactly the mispricing a binary-complement
// scan is looking for.
func crossedBook(marketID, assetID string) types.OrderBookSnapshot {
	return types.OrderBookSnapshot{
		MarketID: marketID,
		AssetID:  assetID,
		Bids: []types.PriceLevel{
			{Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(1000)},
		},
		Asks: []types.PriceLevel{
			{Price: decimal.NewFromFloat(0.47), Size: decimal.NewFromInt(1000)},
		},
		Timestamp: time.Now(),
	}
}

func baseConfig() Config {
	return Config{
		ScanInterval: time.Millisecond,
		OpportunityCfg: opportunity.Config{
			ProbeQuantity:             decimal.NewFromInt(10),
			MaxSnapshotAgeMS:          10_000,
			FeeBufferBps:              10,
			MinEdgeBpsNetHard:         100,
			TTLMsDefault:              5_000,
			MinOutcomes:               3,
			MaxOutcomes:               10,
			MinLiquidityPerOutcome:    decimal.NewFromInt(100),
			MinLiquidityRatio:         decimal.NewFromFloat(0.1),
			MinDeviation:              decimal.NewFromFloat(0.02),
			DependencyConfidenceFloor: 0.6,
			RunID:                     "run-1",
			StrategyVersion:           "v1",
		},
		RiskLimits: risk.Limits{
			MaxSnapshotAgeMS:         10_000,
			MinEdgeBpsNetHard:        100,
			MaxSlippageBpsHardPerLeg: 10_000,
			MaxPositionContracts:     decimal.NewFromInt(1000),
		},
		ExecutorCfg: executor.Config{
			MaxExecutionTimeMS:      50,
			HybridFallbackTimeoutMS: 25,
			PollIntervalMS:          5,
			MaxRetries:              1,
			RetryBaseDelayMS:        5,
			RetryMaxDelayMS:         20,
			MaxSlippagePct:          decimal.NewFromFloat(0.5),
		},
		RebalanceMaxIter:  20,
		RebalanceTol:      1e-6,
		ExecutionStrategy: types.StrategyMarket,
		ConfidenceFloor:   0.6,
	}
}

func TestRunCycleCommitsBinaryComplementOpportunity(t *testing.T) {
	t.Parallel()

	books := book.NewStore()
	books.ApplySnapshot(crossedBook("mkt-1", "mkt-1"))

	fake := &autoFillFake{Fake: venue.NewFake(decimal.NewFromInt(100000))}
	venues := map[string]venue.Port{"test-venue": fake}

	markets := staticMarketSource{markets: []types.Market{
		{MarketID: "mkt-1", Venue: "test-venue", AssetID: "mkt-1", YesPrice: decimal.NewFromFloat(0.47), LiquidityUSD: decimal.NewFromInt(5000)},
	}}

	recorder := metrics.NewRecorder()
	riskCtx := risk.NewContext(decimal.Zero, decimal.Zero)

	o := New(baseConfig(), markets, books, riskCtx, venues, recorder, testLogger())
	o.runCycle(context.Background())

	summary := o.MetricsSummary()
	if summary.TotalTrades != 1 {
		t.Fatalf("TotalTrades = %d, want 1", summary.TotalTrades)
	}
	if summary.Successful != 1 {
		t.Errorf("Successful = %d, want 1 (fully filled complement should commit)", summary.Successful)
	}
}

func TestRunCycleSkipsOpportunityBelowEdgeFloor(t *testing.T) {
	t.Parallel()

	books := book.NewStore()
	// A near-1.0 total cost book leaves no net edge after the fee buffer.
	books.ApplySnapshot(types.OrderBookSnapshot{
		MarketID: "mkt-1",
		AssetID:  "mkt-1",
		Bids:     []types.PriceLevel{{Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(1000)}},
		Asks:     []types.PriceLevel{{Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(1000)}},
		Timestamp: time.Now(),
	})

	fake := &autoFillFake{Fake: venue.NewFake(decimal.NewFromInt(100000))}
	venues := map[string]venue.Port{"test-venue": fake}

	markets := staticMarketSource{markets: []types.Market{
		{MarketID: "mkt-1", Venue: "test-venue", AssetID: "mkt-1", YesPrice: decimal.NewFromFloat(0.5), LiquidityUSD: decimal.NewFromInt(5000)},
	}}

	recorder := metrics.NewRecorder()
	riskCtx := risk.NewContext(decimal.Zero, decimal.Zero)

	o := New(baseConfig(), markets, books, riskCtx, venues, recorder, testLogger())
	o.runCycle(context.Background())

	summary := o.MetricsSummary()
	if summary.TotalTrades != 0 {
		t.Errorf("TotalTrades = %d, want 0 (no edge, opportunity never generated)", summary.TotalTrades)
	}
}

func TestRunCyclePartialFillRollsBackAndCloses(t *testing.T) {
	t.Parallel()

	books := book.NewStore()
	books.ApplySnapshot(crossedBook("mkt-1", "mkt-1"))

	fake := &partialFillFake{Fake: venue.NewFake(decimal.NewFromInt(100000))}
	venues := map[string]venue.Port{"test-venue": fake}

	markets := staticMarketSource{markets: []types.Market{
		{MarketID: "mkt-1", Venue: "test-venue", AssetID: "mkt-1", YesPrice: decimal.NewFromFloat(0.47), LiquidityUSD: decimal.NewFromInt(5000)},
	}}

	recorder := metrics.NewRecorder()
	riskCtx := risk.NewContext(decimal.Zero, decimal.Zero)

	o := New(baseConfig(), markets, books, riskCtx, venues, recorder, testLogger())
	o.runCycle(context.Background())

	summary := o.MetricsSummary()
	if summary.TotalTrades != 1 {
		t.Fatalf("TotalTrades = %d, want 1", summary.TotalTrades)
	}

	o.machinesMu.Lock()
	defer o.machinesMu.Unlock()
	if len(o.machines) != 1 {
		t.Fatalf("len(machines) = %d, want 1", len(o.machines))
	}
	for id, m := range o.machines {
		if got := m.Current(); got != types.StateClosed {
			t.Errorf("machine %s Current() = %s, want %s", id, got, types.StateClosed)
		}
	}
}

func TestStartStopStopsTheScanLoop(t *testing.T) {
	t.Parallel()

	books := book.NewStore()
	venues := map[string]venue.Port{"test-venue": venue.NewFake(decimal.Zero)}
	recorder := metrics.NewRecorder()
	riskCtx := risk.NewContext(decimal.Zero, decimal.Zero)

	cfg := baseConfig()
	cfg.ScanInterval = time.Hour // long enough that the test controls timing, not the ticker

	o := New(cfg, staticMarketSource{}, books, riskCtx, venues, recorder, testLogger())
	o.Start()
	o.Stop()
}
