package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Context tracks the running daily P&L and gross-exposure state Decide
// reads as its early filters. Unlike a dedicated kill-switch monitor
// goroutine, Context is a plain concurrency-safe accumulator the
// orchestrator updates synchronously after each trade finalizes — there is no background loop
// and no cooldown timer, since a DENY here is re-evaluated fresh on the
// next opportunity rather than latched for a cooldown window.
type Context struct {
	mu sync.RWMutex

	maxDailyLoss     decimal.Decimal
	maxGrossExposure decimal.Decimal

	realizedPnL   decimal.Decimal
	grossExposure decimal.Decimal
}

// NewContext builds a Context with the configured daily-loss and
// gross-exposure caps. A zero cap disables that check.
func NewContext(maxDailyLoss, maxGrossExposure decimal.Decimal) *Context {
	return &Context{maxDailyLoss: maxDailyLoss, maxGrossExposure: maxGrossExposure}
}

// RecordRealizedPnL folds a finalized trade's profit (positive) or loss
// (negative) into the running daily total.
func (c *Context) RecordRealizedPnL(delta decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.realizedPnL = c.realizedPnL.Add(delta)
}

// SetGrossExposure replaces the current mark-to-market gross exposure
// figure (sum of |notional| across open positions).
func (c *Context) SetGrossExposure(exposure decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grossExposure = exposure
}

// DailyLossExceeded reports whether realized losses have breached the cap.
func (c *Context) DailyLossExceeded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.maxDailyLoss.IsZero() {
		return false
	}
	return c.realizedPnL.Neg().GreaterThan(c.maxDailyLoss)
}

// GrossExposureExceeded reports whether open gross exposure has breached
// the cap.
func (c *Context) GrossExposureExceeded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.maxGrossExposure.IsZero() {
		return false
	}
	return c.grossExposure.GreaterThan(c.maxGrossExposure)
}

// Snapshot is a point-in-time read of the running risk context, suitable
// for exposing over the status surface.
type Snapshot struct {
	RealizedPnL      decimal.Decimal
	GrossExposure    decimal.Decimal
	MaxDailyLoss     decimal.Decimal
	MaxGrossExposure decimal.Decimal
	DailyLossBreach  bool
	ExposureBreach   bool
}

// Snapshot returns the current state without mutating it.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		RealizedPnL:      c.realizedPnL,
		GrossExposure:    c.grossExposure,
		MaxDailyLoss:     c.maxDailyLoss,
		MaxGrossExposure: c.maxGrossExposure,
		DailyLossBreach:  !c.maxDailyLoss.IsZero() && c.realizedPnL.Neg().GreaterThan(c.maxDailyLoss),
		ExposureBreach:   !c.maxGrossExposure.IsZero() && c.grossExposure.GreaterThan(c.maxGrossExposure),
	}
}

// Reset zeroes the running totals. Called once per trading day by the
// caller; the core itself has no notion of calendar days.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.realizedPnL = decimal.Zero
	c.grossExposure = decimal.Zero
}
