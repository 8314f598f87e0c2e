package venue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

// Client is a generic REST-backed Port for a CLOB-style prediction market
// venue: place/cancel/poll orders over HTTP, rate-limited per category and
// auto-retried on 5xx.
type Client struct {
	http   *resty.Client
	rl     *rateLimiter
	apiKey string
	logger *slog.Logger
}

// NewClient builds a Client against baseURL, authenticating every mutating
// request with apiKey as a bearer token.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		rl:     newRateLimiter(),
		apiKey: apiKey,
		logger: logger,
	}
}

type orderRequestBody struct {
	MarketID  string  `json:"market_id"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	Quantity  string  `json:"quantity"`
	Price     *string `json:"price,omitempty"`
}

type orderResponseBody struct {
	OrderID string `json:"order_id"`
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *Client) PlaceOrder(ctx context.Context, marketID string, side types.Side, orderType types.OrderType, quantity decimal.Decimal, price *decimal.Decimal) (types.OrderHandle, error) {
	if err := c.rl.order.Wait(ctx); err != nil {
		return types.OrderHandle{}, err
	}

	body := orderRequestBody{
		MarketID:  marketID,
		Side:      string(side),
		OrderType: string(orderType),
		Quantity:  quantity.String(),
	}
	if price != nil {
		p := price.String()
		body.Price = &p
	}

	var result orderResponseBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		SetBody(body).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return types.OrderHandle{}, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderHandle{}, fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}

	return types.OrderHandle{OrderID: result.OrderID}, nil
}

func (c *Client) CancelOrder(ctx context.Context, handle types.OrderHandle) (bool, error) {
	if err := c.rl.cancel.Wait(ctx); err != nil {
		return false, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		Delete("/orders/" + handle.OrderID)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return true, nil
}

type orderStatusBody struct {
	Status       string  `json:"status"`
	FilledQty    string  `json:"filled_qty"`
	AvgFillPrice *string `json:"avg_fill_price,omitempty"`
}

func (c *Client) GetOrder(ctx context.Context, handle types.OrderHandle) (OrderStatus, error) {
	if err := c.rl.order.Wait(ctx); err != nil {
		return OrderStatus{}, err
	}

	var result orderStatusBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		SetResult(&result).
		Get("/orders/" + handle.OrderID)
	if err != nil {
		return OrderStatus{}, fmt.Errorf("get order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return OrderStatus{}, fmt.Errorf("get order: status %d: %s", resp.StatusCode(), resp.String())
	}

	filled, err := decimal.NewFromString(result.FilledQty)
	if err != nil {
		return OrderStatus{}, fmt.Errorf("get order: parse filled_qty: %w", err)
	}
	out := OrderStatus{Status: types.LegStatus(result.Status), FilledQty: filled}
	if result.AvgFillPrice != nil {
		avg, err := decimal.NewFromString(*result.AvgFillPrice)
		if err != nil {
			return OrderStatus{}, fmt.Errorf("get order: parse avg_fill_price: %w", err)
		}
		out.AvgFillPrice = &avg
	}
	return out, nil
}

type bookLevelBody struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponseBody struct {
	Bids []bookLevelBody `json:"bids"`
	Asks []bookLevelBody `json:"asks"`
}

func (c *Client) GetOrderBook(ctx context.Context, marketID string) (types.OrderBookSnapshot, error) {
	if err := c.rl.book.Wait(ctx); err != nil {
		return types.OrderBookSnapshot{}, err
	}

	var result bookResponseBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("market_id", marketID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderBookSnapshot{}, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}

	snap := types.OrderBookSnapshot{MarketID: marketID, Timestamp: time.Now()}
	snap.Bids, err = decodeLevels(result.Bids)
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("get book: bids: %w", err)
	}
	snap.Asks, err = decodeLevels(result.Asks)
	if err != nil {
		return types.OrderBookSnapshot{}, fmt.Errorf("get book: asks: %w", err)
	}
	return snap, nil
}

func decodeLevels(levels []bookLevelBody) ([]types.PriceLevel, error) {
	out := make([]types.PriceLevel, len(levels))
	for i, lv := range levels {
		price, err := decimal.NewFromString(lv.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(lv.Size)
		if err != nil {
			return nil, err
		}
		out[i] = types.PriceLevel{Price: price, Size: size}
	}
	return out, nil
}

type balanceResponseBody struct {
	Balance string `json:"balance"`
}

func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var result balanceResponseBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.authHeaders()).
		SetResult(&result).
		Get("/balance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), resp.String())
	}
	return decimal.NewFromString(result.Balance)
}

// tokenBucket is a continuous-refill token-bucket rate limiter.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, rate: ratePerSecond, lastTime: time.Now()}
}

func (tb *tokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// rateLimiter groups per-category buckets, mirroring a typical CLOB venue's
// published per-10s limits on order/cancel/book-read endpoints.
type rateLimiter struct {
	order  *tokenBucket
	cancel *tokenBucket
	book   *tokenBucket
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		order:  newTokenBucket(350, 50),
		cancel: newTokenBucket(300, 30),
		book:   newTokenBucket(150, 15),
	}
}
