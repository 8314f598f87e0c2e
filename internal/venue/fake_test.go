package venue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

func TestFakePlaceOrderThenGetOrderReflectsFill(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.NewFromInt(1000))
	handle, err := f.PlaceOrder(context.Background(), "mkt-1", types.SideYes, types.OrderTypeMarket, decimal.NewFromInt(10), nil)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	status, err := f.GetOrder(context.Background(), handle)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if status.Status != types.LegSubmitted {
		t.Errorf("Status = %s immediately after placement, want SUBMITTED", status.Status)
	}

	f.SetFill(handle.OrderID, decimal.NewFromInt(10), decimal.NewFromFloat(0.52))

	status, err = f.GetOrder(context.Background(), handle)
	if err != nil {
		t.Fatalf("GetOrder after fill: %v", err)
	}
	if status.Status != types.LegFilled {
		t.Errorf("Status = %s after full fill, want FILLED", status.Status)
	}
	if !status.FilledQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("FilledQty = %s, want 10", status.FilledQty)
	}
}

func TestFakeSetFillPartialQuantityYieldsPartiallyFilled(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.Zero)
	handle, _ := f.PlaceOrder(context.Background(), "mkt-1", types.SideYes, types.OrderTypeLimit, decimal.NewFromInt(10), nil)
	f.SetFill(handle.OrderID, decimal.NewFromInt(4), decimal.NewFromFloat(0.5))

	status, err := f.GetOrder(context.Background(), handle)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if status.Status != types.LegPartiallyFilled {
		t.Errorf("Status = %s, want PARTIALLY_FILLED", status.Status)
	}
}

func TestFakeCancelOrderMarksCancelled(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.Zero)
	handle, _ := f.PlaceOrder(context.Background(), "mkt-1", types.SideYes, types.OrderTypeLimit, decimal.NewFromInt(10), nil)

	ok, err := f.CancelOrder(context.Background(), handle)
	if err != nil || !ok {
		t.Fatalf("CancelOrder = (%v, %v), want (true, nil)", ok, err)
	}

	status, _ := f.GetOrder(context.Background(), handle)
	if status.Status != types.LegCancelled {
		t.Errorf("Status = %s, want CANCELLED", status.Status)
	}
}

func TestFakeCancelOrderAfterTerminalFillIsNoop(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.Zero)
	handle, _ := f.PlaceOrder(context.Background(), "mkt-1", types.SideYes, types.OrderTypeMarket, decimal.NewFromInt(10), nil)
	f.SetFill(handle.OrderID, decimal.NewFromInt(10), decimal.NewFromFloat(0.5))

	ok, err := f.CancelOrder(context.Background(), handle)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if ok {
		t.Error("CancelOrder() = true for an already-filled order, want false (no-op)")
	}
}

func TestFakePlaceOrderErrInjection(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.Zero)
	f.PlaceOrderErr = context.DeadlineExceeded

	_, err := f.PlaceOrder(context.Background(), "mkt-1", types.SideYes, types.OrderTypeMarket, decimal.NewFromInt(1), nil)
	if err == nil {
		t.Error("PlaceOrder() = nil error with PlaceOrderErr set, want the injected error")
	}
}

func TestFakeGetOrderBookReturnsSeededSnapshot(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.Zero)
	want := types.OrderBookSnapshot{MarketID: "mkt-1", Asks: []types.PriceLevel{{Price: decimal.NewFromFloat(0.5), Size: decimal.NewFromInt(100)}}}
	f.SetOrderBook("mkt-1", want)

	got, err := f.GetOrderBook(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}
	if len(got.Asks) != 1 || !got.Asks[0].Price.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("GetOrderBook() = %+v, want seeded snapshot", got)
	}
}

func TestFakeGetOrderBookUnseededReturnsError(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.Zero)
	if _, err := f.GetOrderBook(context.Background(), "missing"); err == nil {
		t.Error("GetOrderBook() = nil error for an unseeded market, want error")
	}
}

func TestFakeGetBalanceReturnsConfiguredValue(t *testing.T) {
	t.Parallel()

	f := NewFake(decimal.NewFromInt(500))
	bal, err := f.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(500)) {
		t.Errorf("GetBalance() = %s, want 500", bal)
	}
}
