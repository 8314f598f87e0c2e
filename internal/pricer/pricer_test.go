package pricer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func snapshotWithAsks(asks ...types.PriceLevel) types.OrderBookSnapshot {
	return types.OrderBookSnapshot{
		MarketID:  "m1",
		AssetID:   "a1",
		Asks:      asks,
		Timestamp: time.Now(),
	}
}

func level(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: mustDecimal(price), Size: mustDecimal(size)}
}

func TestEstimateYesWalksAsksFullyFilled(t *testing.T) {
	t.Parallel()

	snap := snapshotWithAsks(level("0.50", "10"), level("0.52", "10"))
	got := Estimate(types.SideYes, mustDecimal("15"), snap, nil, 1000)

	if !got.FilledQty.Equal(mustDecimal("15")) {
		t.Errorf("FilledQty = %s, want 15", got.FilledQty)
	}
	if !got.LiquiditySufficient {
		t.Error("LiquiditySufficient = false, want true")
	}
	if got.DepthLevelsUsed != 2 {
		t.Errorf("DepthLevelsUsed = %d, want 2", got.DepthLevelsUsed)
	}
	wantVWAP := mustDecimal("10").Mul(mustDecimal("0.50")).Add(mustDecimal("5").Mul(mustDecimal("0.52"))).Div(mustDecimal("15"))
	if !got.ExecutableVWAP.Equal(wantVWAP) {
		t.Errorf("ExecutableVWAP = %s, want %s", got.ExecutableVWAP, wantVWAP)
	}
}

func TestEstimateEmptySideYieldsZeroFillAndInsufficient(t *testing.T) {
	t.Parallel()

	snap := snapshotWithAsks()
	got := Estimate(types.SideYes, mustDecimal("5"), snap, nil, 1000)

	if !got.FilledQty.IsZero() {
		t.Errorf("FilledQty = %s, want 0", got.FilledQty)
	}
	if got.LiquiditySufficient {
		t.Error("LiquiditySufficient = true on empty side, want false")
	}
	if got.SlippageBps != 0 {
		t.Errorf("SlippageBps = %d, want 0 (no reference)", got.SlippageBps)
	}
}

func TestEstimateQuotedPriceZeroYieldsZeroSlippage(t *testing.T) {
	t.Parallel()

	snap := snapshotWithAsks(level("0.50", "10"))
	zero := decimal.Zero
	got := Estimate(types.SideYes, mustDecimal("10"), snap, &zero, 1000)

	if got.SlippageBps != 0 {
		t.Errorf("SlippageBps = %d, want 0 when quoted_price is 0", got.SlippageBps)
	}
}

func TestEstimateStaleness(t *testing.T) {
	t.Parallel()

	snap := snapshotWithAsks(level("0.5", "10"))
	snap.Timestamp = time.Now().Add(-time.Second)
	got := Estimate(types.SideYes, mustDecimal("5"), snap, nil, 100)

	if !got.IsStale {
		t.Error("IsStale = false for a 1s-old snapshot with a 100ms threshold, want true")
	}
}

func TestEstimateNoInvertsYesBidWalk(t *testing.T) {
	t.Parallel()

	snap := types.OrderBookSnapshot{
		MarketID:  "m1",
		Bids:      []types.PriceLevel{level("0.48", "10")},
		Timestamp: time.Now(),
	}
	got := Estimate(types.SideNo, mustDecimal("10"), snap, nil, 1000)

	want := decimal.NewFromInt(1).Sub(mustDecimal("0.48"))
	if !got.ExecutableVWAP.Equal(want) {
		t.Errorf("ExecutableVWAP = %s, want %s (1 - bid vwap)", got.ExecutableVWAP, want)
	}
}

func TestEstimateComplementTotalCostAndWorstSlippage(t *testing.T) {
	t.Parallel()

	snap := types.OrderBookSnapshot{
		MarketID:  "m1",
		Asks:      []types.PriceLevel{level("0.45", "50")},
		Bids:      []types.PriceLevel{level("0.52", "50")},
		Timestamp: time.Now(),
	}
	got := EstimateComplement(snap, mustDecimal("10"), 1000)

	wantTotal := got.YesBuy.ExecutableVWAP.Add(got.NoBuy.ExecutableVWAP)
	if !got.TotalCost.Equal(wantTotal) {
		t.Errorf("TotalCost = %s, want %s", got.TotalCost, wantTotal)
	}

	wantWorst := got.YesBuy.SlippageBps
	if got.NoBuy.SlippageBps > wantWorst {
		wantWorst = got.NoBuy.SlippageBps
	}
	if got.PredictedSlippageBps != wantWorst {
		t.Errorf("PredictedSlippageBps = %d, want max(%d, %d)", got.PredictedSlippageBps, got.YesBuy.SlippageBps, got.NoBuy.SlippageBps)
	}
}

func TestEstimatePartialFillNotSufficient(t *testing.T) {
	t.Parallel()

	snap := snapshotWithAsks(level("0.5", "5"))
	got := Estimate(types.SideYes, mustDecimal("10"), snap, nil, 1000)

	if got.LiquiditySufficient {
		t.Error("LiquiditySufficient = true on a partial fill, want false")
	}
	if !got.FilledQty.Equal(mustDecimal("5")) {
		t.Errorf("FilledQty = %s, want 5", got.FilledQty)
	}
}
