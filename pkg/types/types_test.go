package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		side Side
		want Side
	}{
		{SideYes, SideNo},
		{SideNo, SideYes},
	}

	for _, tt := range tests {
		if got := tt.side.Opposite(); got != tt.want {
			t.Errorf("Side(%q).Opposite() = %q, want %q", tt.side, got, tt.want)
		}
	}
}

func TestLegStatusIsPending(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status LegStatus
		want   bool
	}{
		{LegPending, true},
		{LegSubmitted, true},
		{LegPartiallyFilled, true},
		{LegFilled, false},
		{LegFailed, false},
		{LegCancelled, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsPending(); got != tt.want {
			t.Errorf("LegStatus(%q).IsPending() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTradeLegIsFilledRequiresStatus(t *testing.T) {
	t.Parallel()

	leg := &TradeLeg{Status: LegPartiallyFilled, FilledQty: decimal.NewFromInt(100), TargetQty: decimal.NewFromInt(100)}
	if leg.IsFilled() {
		t.Error("leg with status PARTIALLY_FILLED must not be IsFilled, regardless of quantity")
	}

	leg.Status = LegFilled
	if !leg.IsFilled() {
		t.Error("leg with status FILLED must be IsFilled")
	}
}

func TestMultiLegTradeAllFilledAnyFailed(t *testing.T) {
	t.Parallel()

	trade := &MultiLegTrade{Legs: []TradeLeg{
		{Status: LegFilled},
		{Status: LegFilled},
	}}
	if !trade.AllFilled() {
		t.Error("expected AllFilled true when every leg is FILLED")
	}
	if trade.AnyFailed() {
		t.Error("expected AnyFailed false when no leg failed")
	}

	trade.Legs[1].Status = LegCancelled
	if trade.AllFilled() {
		t.Error("expected AllFilled false once a leg is CANCELLED")
	}
	if !trade.AnyFailed() {
		t.Error("expected AnyFailed true once a leg is CANCELLED")
	}
}

func TestMultiLegTradeSlippagePct(t *testing.T) {
	t.Parallel()

	expected := decimal.NewFromFloat(10.0)
	actual := decimal.NewFromFloat(9.5)
	trade := &MultiLegTrade{ExpectedProfit: &expected, ActualProfit: &actual}

	got := trade.SlippagePct()
	if got == nil {
		t.Fatal("expected non-nil slippage when both profits are set")
	}
	want := decimal.NewFromFloat(0.05)
	if !got.Equal(want) {
		t.Errorf("SlippagePct() = %s, want %s", got, want)
	}
}

func TestMultiLegTradeSlippagePctNilWhenExpectedZero(t *testing.T) {
	t.Parallel()

	zero := decimal.Zero
	actual := decimal.NewFromInt(5)
	trade := &MultiLegTrade{ExpectedProfit: &zero, ActualProfit: &actual}

	if got := trade.SlippagePct(); got != nil {
		t.Errorf("SlippagePct() = %v, want nil when expected profit is zero", got)
	}
}

func TestTradeLegExecutionTimeMS(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	end := start.Add(12 * time.Millisecond)
	leg := &TradeLeg{SubmissionTS: &start, FillTS: &end}

	if got := leg.ExecutionTimeMS(); got != 12 {
		t.Errorf("ExecutionTimeMS() = %d, want 12", got)
	}

	leg.FillTS = nil
	if got := leg.ExecutionTimeMS(); got != 0 {
		t.Errorf("ExecutionTimeMS() with no fill = %d, want 0", got)
	}
}
