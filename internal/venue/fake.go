package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

// Fake is an in-memory Port used by executor tests. Orders placed through
// it are held in a map and advanced to a fill state only when the test
// calls SetFill or SetFailure explicitly — there is no background matching
// engine.
type Fake struct {
	mu sync.Mutex

	balance decimal.Decimal
	books   map[string]types.OrderBookSnapshot
	orders  map[string]*fakeOrder
	nextID  int

	// PlaceOrderErr, when set, is returned by every PlaceOrder call instead
	// of creating an order (simulates venue transport failure).
	PlaceOrderErr error
}

type fakeOrder struct {
	marketID     string
	side         types.Side
	orderType    types.OrderType
	quantity     decimal.Decimal
	price        *decimal.Decimal
	status       types.LegStatus
	filledQty    decimal.Decimal
	avgFillPrice *decimal.Decimal
	cancelled    bool
}

// NewFake builds an empty Fake with the given starting balance.
func NewFake(balance decimal.Decimal) *Fake {
	return &Fake{
		balance: balance,
		books:   make(map[string]types.OrderBookSnapshot),
		orders:  make(map[string]*fakeOrder),
	}
}

// SetOrderBook seeds the snapshot GetOrderBook returns for marketID.
func (f *Fake) SetOrderBook(marketID string, snap types.OrderBookSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[marketID] = snap
}

func (f *Fake) PlaceOrder(_ context.Context, marketID string, side types.Side, orderType types.OrderType, quantity decimal.Decimal, price *decimal.Decimal) (types.OrderHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PlaceOrderErr != nil {
		return types.OrderHandle{}, f.PlaceOrderErr
	}

	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.orders[id] = &fakeOrder{
		marketID:  marketID,
		side:      side,
		orderType: orderType,
		quantity:  quantity,
		price:     price,
		status:    types.LegSubmitted,
		filledQty: decimal.Zero,
	}
	return types.OrderHandle{OrderID: id}, nil
}

func (f *Fake) CancelOrder(_ context.Context, handle types.OrderHandle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[handle.OrderID]
	if !ok {
		return false, fmt.Errorf("unknown order %s", handle.OrderID)
	}
	if o.status.IsTerminal() {
		return false, nil
	}
	o.cancelled = true
	o.status = types.LegCancelled
	return true, nil
}

func (f *Fake) GetOrder(_ context.Context, handle types.OrderHandle) (OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[handle.OrderID]
	if !ok {
		return OrderStatus{}, fmt.Errorf("unknown order %s", handle.OrderID)
	}
	return OrderStatus{Status: o.status, FilledQty: o.filledQty, AvgFillPrice: o.avgFillPrice}, nil
}

func (f *Fake) GetOrderBook(_ context.Context, marketID string) (types.OrderBookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, ok := f.books[marketID]
	if !ok {
		return types.OrderBookSnapshot{}, fmt.Errorf("no book seeded for %s", marketID)
	}
	return snap, nil
}

func (f *Fake) GetBalance(_ context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

// SetFill marks an order FILLED at the given quantity/price — the test
// harness's stand-in for a venue confirming a trade.
func (f *Fake) SetFill(orderID string, filledQty decimal.Decimal, avgFillPrice decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return
	}
	o.filledQty = filledQty
	o.avgFillPrice = &avgFillPrice
	if filledQty.GreaterThanOrEqual(o.quantity) {
		o.status = types.LegFilled
	} else if filledQty.IsPositive() {
		o.status = types.LegPartiallyFilled
	}
}

// SetFailure marks an order FAILED — simulating a venue-side rejection.
func (f *Fake) SetFailure(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.status = types.LegFailed
	}
}
