// Package executor runs the MARKET/LIMIT/HYBRID dispatch for one
// risk-approved Opportunity: submits every leg concurrently, polls for
// fills, and finalizes the trade as a commit or a rollback/flatten.
//
// The algorithm — preflight, per-strategy submission, fill polling,
// finalize — mirrors a production parallel execution engine one-for-one;
// only the transport (venue.Port) and concurrency primitive
// (errgroup instead of asyncio.gather) differ.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"arb-engine/internal/venue"
	"arb-engine/pkg/types"
)

// Config is the executor's timing/retry configuration (spec §6 knobs).
type Config struct {
	MaxExecutionTimeMS     int64
	HybridFallbackTimeoutMS int64
	PollIntervalMS         int64
	MaxRetries             int
	RetryBaseDelayMS       int64
	RetryMaxDelayMS        int64
	MaxSlippagePct         decimal.Decimal
}

// Executor drives leg submission and polling against a set of venues keyed
// by name.
type Executor struct {
	venues map[string]venue.Port
	cfg    Config
	logger *slog.Logger
}

// New builds an Executor. venues maps a venue name (matching TradeLeg.Venue)
// to the Port used to submit/poll/cancel orders on it.
func New(venues map[string]venue.Port, cfg Config, logger *slog.Logger) *Executor {
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = 100
	}
	if cfg.RetryMaxDelayMS <= 0 {
		cfg.RetryMaxDelayMS = 500
	}
	return &Executor{venues: venues, cfg: cfg, logger: logger}
}

// Execute runs one Opportunity to completion: preflight, strategy dispatch,
// fill polling, then finalize (commit or rollback). It always returns a
// MultiLegTrade, even on preflight failure — the caller reads Committed/
// RolledBack to tell outcomes apart.
func (e *Executor) Execute(ctx context.Context, opp types.Opportunity, strategy types.ExecutionStrategy, expectedProfit *decimal.Decimal) *types.MultiLegTrade {
	legs := make([]types.TradeLeg, len(opp.Legs))
	copy(legs, opp.Legs)

	trade := &types.MultiLegTrade{
		TradeID:        fmt.Sprintf("trade-%s", opp.OpportunityID),
		OpportunityID:  opp.OpportunityID,
		Legs:           legs,
		Strategy:       strategy,
		MaxSlippagePct: e.cfg.MaxSlippagePct,
		TimeoutMS:      e.cfg.MaxExecutionTimeMS,
		ExpectedProfit: expectedProfit,
		RunID:          opp.RunID,
	}

	if err := e.preflight(ctx, trade); err != nil {
		e.logger.Error("preflight failed", "trade_id", trade.TradeID, "err", err)
		return trade
	}

	now := time.Now()
	trade.StartTS = &now

	switch strategy {
	case types.StrategyMarket:
		e.executeMarket(ctx, trade)
	case types.StrategyLimit:
		e.executeLimit(ctx, trade)
	default:
		e.executeHybrid(ctx, trade)
	}

	end := time.Now()
	trade.EndTS = &end

	e.finalize(ctx, trade)
	return trade
}

// preflight checks venue availability and aggregate balance sufficiency
// across every venue a leg touches. A leg with no target price is costed
// at 0.5 for the balance check; limit legs missing a target price are
// failed later by executeLimit, not here.
func (e *Executor) preflight(ctx context.Context, trade *types.MultiLegTrade) error {
	needed := decimal.Zero
	venuesUsed := make(map[string]struct{})

	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if _, ok := e.venues[leg.Venue]; !ok {
			return fmt.Errorf("venue %q not available for leg %s", leg.Venue, leg.MarketID)
		}
		venuesUsed[leg.Venue] = struct{}{}

		price := decimal.NewFromFloat(0.5)
		if leg.TargetPrice != nil {
			price = *leg.TargetPrice
		}
		needed = needed.Add(price.Mul(leg.TargetQty))
	}

	balance := decimal.Zero
	for name := range venuesUsed {
		b, err := e.venues[name].GetBalance(ctx)
		if err != nil {
			return fmt.Errorf("get balance from %s: %w", name, err)
		}
		balance = balance.Add(b)
	}

	if needed.GreaterThan(balance) {
		return fmt.Errorf("insufficient capital: need %s, have %s", needed, balance)
	}
	return nil
}

func (e *Executor) executeMarket(ctx context.Context, trade *types.MultiLegTrade) {
	e.submitAll(ctx, trade, types.OrderTypeMarket)
	e.waitForFills(ctx, trade, time.Duration(e.cfg.MaxExecutionTimeMS)*time.Millisecond)
}

func (e *Executor) executeLimit(ctx context.Context, trade *types.MultiLegTrade) {
	var g errgroup.Group
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if leg.TargetPrice == nil {
			leg.Status = types.LegFailed
			leg.Error = "no target price for limit order"
			continue
		}
		g.Go(func() error {
			e.submitOrder(ctx, leg, types.OrderTypeLimit)
			return nil
		})
	}
	g.Wait()

	e.waitForFills(ctx, trade, time.Duration(e.cfg.MaxExecutionTimeMS*10)*time.Millisecond)
}

func (e *Executor) executeHybrid(ctx context.Context, trade *types.MultiLegTrade) {
	var g errgroup.Group
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		orderType := types.OrderTypeLimit
		if leg.TargetPrice == nil {
			orderType = types.OrderTypeMarket
		}
		g.Go(func() error {
			e.submitOrder(ctx, leg, orderType)
			return nil
		})
	}
	g.Wait()

	fallback := time.Duration(e.cfg.HybridFallbackTimeoutMS) * time.Millisecond
	e.waitForFills(ctx, trade, fallback)

	var unfilled []*types.TradeLeg
	for i := range trade.Legs {
		if trade.Legs[i].Status.IsPending() {
			unfilled = append(unfilled, &trade.Legs[i])
		}
	}

	if len(unfilled) == 0 {
		return
	}

	e.logger.Info("hybrid fallback converting legs to market", "trade_id", trade.TradeID, "count", len(unfilled))

	var cancelGroup errgroup.Group
	for _, leg := range unfilled {
		leg := leg
		if leg.OrderHandle != nil {
			cancelGroup.Go(func() error {
				e.cancelOrder(ctx, leg)
				return nil
			})
		}
	}
	cancelGroup.Wait()

	var marketGroup errgroup.Group
	for _, leg := range unfilled {
		leg := leg
		leg.Status = types.LegPending
		marketGroup.Go(func() error {
			e.submitOrder(ctx, leg, types.OrderTypeMarket)
			return nil
		})
	}
	marketGroup.Wait()

	remaining := time.Duration(e.cfg.MaxExecutionTimeMS)*time.Millisecond - fallback
	e.waitForFills(ctx, trade, remaining)
}

func (e *Executor) submitAll(ctx context.Context, trade *types.MultiLegTrade, orderType types.OrderType) {
	var g errgroup.Group
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		g.Go(func() error {
			e.submitOrder(ctx, leg, orderType)
			return nil
		})
	}
	g.Wait()
}

func (e *Executor) submitOrder(ctx context.Context, leg *types.TradeLeg, orderType types.OrderType) {
	port, ok := e.venues[leg.Venue]
	if !ok {
		leg.Status = types.LegFailed
		leg.Error = fmt.Sprintf("venue %s not available", leg.Venue)
		return
	}

	leg.Status = types.LegSubmitted
	now := time.Now()
	leg.SubmissionTS = &now

	var price *decimal.Decimal
	if orderType == types.OrderTypeLimit {
		price = leg.TargetPrice
	}

	handle, err := withRetry(ctx, e.cfg, func() (types.OrderHandle, error) {
		return port.PlaceOrder(ctx, leg.MarketID, leg.Side, orderType, leg.TargetQty, price)
	})
	if err != nil {
		leg.Status = types.LegFailed
		leg.Error = err.Error()
		return
	}
	leg.OrderHandle = &handle
}

func (e *Executor) cancelOrder(ctx context.Context, leg *types.TradeLeg) {
	port, ok := e.venues[leg.Venue]
	if !ok || leg.OrderHandle == nil {
		return
	}
	ok2, err := port.CancelOrder(ctx, *leg.OrderHandle)
	if err != nil {
		e.logger.Error("cancel order failed", "market_id", leg.MarketID, "err", err)
		return
	}
	if ok2 {
		leg.Status = types.LegCancelled
	}
}

// waitForFills polls checkOrderStatus for every pending leg at cfg's poll
// cadence until every leg is filled, some leg has failed, or budget
// expires. This is the one canonical reconciliation locus for leg status:
// every fill/fail observation flows through checkOrderStatus.
func (e *Executor) waitForFills(ctx context.Context, trade *types.MultiLegTrade, budget time.Duration) {
	if budget <= 0 {
		budget = 0
	}
	deadline := time.Now().Add(budget)
	pollInterval := time.Duration(e.cfg.PollIntervalMS) * time.Millisecond

	for {
		if time.Now().After(deadline) {
			e.logger.Warn("fill wait timed out", "trade_id", trade.TradeID)
			return
		}

		var g errgroup.Group
		for i := range trade.Legs {
			leg := &trade.Legs[i]
			if leg.Status.IsPending() && leg.OrderHandle != nil {
				g.Go(func() error {
					e.checkOrderStatus(ctx, leg)
					return nil
				})
			}
		}
		g.Wait()

		if trade.AllFilled() {
			return
		}
		if trade.AnyFailed() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

// checkOrderStatus fetches the venue's view of one leg's order and folds it
// into the leg's Status/FilledQty/AvgFillPrice/FillTS.
func (e *Executor) checkOrderStatus(ctx context.Context, leg *types.TradeLeg) {
	port, ok := e.venues[leg.Venue]
	if !ok || leg.OrderHandle == nil {
		return
	}

	status, err := port.GetOrder(ctx, *leg.OrderHandle)
	if err != nil {
		e.logger.Error("get order status failed", "market_id", leg.MarketID, "err", err)
		return
	}

	leg.FilledQty = status.FilledQty

	switch status.Status {
	case types.LegFilled:
		leg.Status = types.LegFilled
		now := time.Now()
		leg.FillTS = &now
		leg.AvgFillPrice = status.AvgFillPrice
	case types.LegPartiallyFilled:
		leg.Status = types.LegPartiallyFilled
	case types.LegCancelled, types.LegFailed:
		leg.Status = types.LegFailed
		leg.Error = fmt.Sprintf("order %s", status.Status)
	}
}

// finalize commits whenever every leg filled, regardless of slippage
// (slippage is recorded on the trade, not a commit precondition); any
// other terminal state rolls back.
func (e *Executor) finalize(ctx context.Context, trade *types.MultiLegTrade) {
	if trade.AllFilled() {
		e.commit(trade)
	} else {
		e.rollback(ctx, trade)
	}
}

func (e *Executor) commit(trade *types.MultiLegTrade) {
	actual := decimal.Zero
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if leg.AvgFillPrice == nil || leg.FilledQty.IsZero() {
			continue
		}
		value := leg.AvgFillPrice.Mul(leg.FilledQty)
		if leg.Side == types.SideYes {
			actual = actual.Sub(value)
		} else {
			actual = actual.Add(value)
		}
	}
	trade.ActualProfit = &actual
	trade.Committed = true

	if slippage := trade.SlippagePct(); slippage != nil && slippage.GreaterThan(trade.MaxSlippagePct) {
		e.logger.Warn("trade exceeded slippage tolerance", "trade_id", trade.TradeID, "slippage_pct", slippage.String())
	}

	e.logger.Info("trade committed", "trade_id", trade.TradeID, "actual_profit", actual.String())
}

func (e *Executor) rollback(ctx context.Context, trade *types.MultiLegTrade) {
	e.logger.Warn("rolling back trade", "trade_id", trade.TradeID)

	var cancelGroup errgroup.Group
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if leg.Status.IsPending() && leg.OrderHandle != nil {
			cancelGroup.Go(func() error {
				e.cancelOrder(ctx, leg)
				return nil
			})
		}
	}
	cancelGroup.Wait()

	var exitGroup errgroup.Group
	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if leg.IsFilled() && leg.FilledQty.IsPositive() {
			exitGroup.Go(func() error {
				e.exitLeg(ctx, leg)
				return nil
			})
		}
	}
	exitGroup.Wait()

	trade.RolledBack = true
}

// exitLeg flattens one filled leg with an opposite-side market order.
func (e *Executor) exitLeg(ctx context.Context, leg *types.TradeLeg) {
	port, ok := e.venues[leg.Venue]
	if !ok {
		return
	}
	exitSide := leg.Side.Opposite()
	if _, err := port.PlaceOrder(ctx, leg.MarketID, exitSide, types.OrderTypeMarket, leg.FilledQty, nil); err != nil {
		e.logger.Error("flatten leg failed", "market_id", leg.MarketID, "err", err)
		return
	}
	e.logger.Info("flattened leg", "market_id", leg.MarketID, "side", exitSide, "qty", leg.FilledQty.String())
}

// withRetry runs fn up to cfg.MaxRetries+1 times (twice when MaxRetries is
// zero or negative) with exponential backoff (base delay, doubling, capped,
// ±20% jitter).
func withRetry[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		delay := backoffDelay(attempt, cfg.RetryBaseDelayMS, cfg.RetryMaxDelayMS)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func backoffDelay(attempt int, baseMS, maxMS int64) time.Duration {
	delay := float64(baseMS) * math.Pow(2, float64(attempt))
	if delay > float64(maxMS) {
		delay = float64(maxMS)
	}
	jitter := delay * 0.2
	delay += (rand.Float64()*2 - 1) * jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay) * time.Millisecond
}

