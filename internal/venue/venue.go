// Package venue defines the small capability port the executor drives to
// place, cancel, and poll orders and to read balances/order books, plus an
// in-memory reference implementation for tests and a resty-backed REST
// client for a real venue.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

// Port is the capability surface the executor needs from one venue. Both
// the in-memory Fake and the REST Client satisfy it, so the executor never
// depends on transport details.
type Port interface {
	PlaceOrder(ctx context.Context, marketID string, side types.Side, orderType types.OrderType, quantity decimal.Decimal, price *decimal.Decimal) (types.OrderHandle, error)
	CancelOrder(ctx context.Context, handle types.OrderHandle) (bool, error)
	GetOrder(ctx context.Context, handle types.OrderHandle) (OrderStatus, error)
	GetOrderBook(ctx context.Context, marketID string) (types.OrderBookSnapshot, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// OrderStatus is the result of polling one order.
type OrderStatus struct {
	Status       types.LegStatus
	FilledQty    decimal.Decimal
	AvgFillPrice *decimal.Decimal
}
