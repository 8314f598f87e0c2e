// Package pricer walks order book depth to compute the price actually
// achievable for a requested side and size, as opposed to the best quoted
// level. Every candidate leg of an opportunity is priced here before the
// risk gate or executor ever see it.
package pricer

import (
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

var ten000 = decimal.NewFromInt(10000)

// Estimate walks snapshot's relevant side for side/targetQty and returns the
// executable price. quotedPrice, when non-nil, is the slippage reference;
// otherwise the best level on the consumed side is used. staleAfterMS bounds
// how old a snapshot may be before IsStale is set.
//
// YES consumes asks ascending; NO consumes bids descending and inverts
// — "buy NO" is economically walking the YES book's bid side and taking
// 1 - vwap.
func Estimate(side types.Side, targetQty decimal.Decimal, snapshot types.OrderBookSnapshot, quotedPrice *decimal.Decimal, staleAfterMS int64) types.ExecutablePrice {
	out := types.ExecutablePrice{
		MarketID:  snapshot.MarketID,
		Side:      side,
		TargetQty: targetQty,
		FilledQty: decimal.Zero,
	}

	levels := snapshot.Asks
	inverted := false
	if side == types.SideNo {
		levels = snapshot.Bids
		inverted = true
	}

	filled, notional, depthUsed := walk(levels, targetQty)
	out.FilledQty = filled
	out.DepthLevelsUsed = depthUsed

	var vwap decimal.Decimal
	if filled.IsPositive() {
		vwap = notional.Div(filled)
	}
	if inverted && filled.IsPositive() {
		vwap = decimal.NewFromInt(1).Sub(vwap)
	}
	out.ExecutableVWAP = vwap

	reference := quotedPrice
	if reference == nil && len(levels) > 0 {
		best := levels[0].Price
		if inverted {
			best = decimal.NewFromInt(1).Sub(best)
		}
		reference = &best
	}
	if reference != nil {
		out.QuotedPrice = *reference
	}
	out.SlippageBps = slippageBps(vwap, reference)

	out.SnapshotAgeMS = ageMS(snapshot.Timestamp)
	out.IsStale = out.SnapshotAgeMS > staleAfterMS
	out.LiquiditySufficient = filled.Equal(targetQty)

	return out
}

// ComplementResult is the paired YES/NO pricing for a binary complement
// candidate, as returned by EstimateComplement.
type ComplementResult struct {
	YesBuy                types.ExecutablePrice
	NoBuy                 types.ExecutablePrice
	TotalCost             decimal.Decimal
	PredictedSlippageBps  int64
}

// EstimateComplement prices both legs of a YES+NO complement trade: a YES
// buy from asks, and a NO buy derived from the YES-sell walk on bids.
func EstimateComplement(snapshot types.OrderBookSnapshot, qty decimal.Decimal, staleAfterMS int64) ComplementResult {
	yesBuy := Estimate(types.SideYes, qty, snapshot, nil, staleAfterMS)
	noBuy := Estimate(types.SideNo, qty, snapshot, nil, staleAfterMS)

	total := yesBuy.ExecutableVWAP.Add(noBuy.ExecutableVWAP)
	worst := yesBuy.SlippageBps
	if noBuy.SlippageBps > worst {
		worst = noBuy.SlippageBps
	}

	return ComplementResult{
		YesBuy:               yesBuy,
		NoBuy:                noBuy,
		TotalCost:            total,
		PredictedSlippageBps: worst,
	}
}

// walk fills min(remaining, level.Size) at each level until remaining
// reaches zero or levels exhaust, returning total filled quantity,
// accumulated notional, and the number of levels touched.
func walk(levels []types.PriceLevel, targetQty decimal.Decimal) (filled, notional decimal.Decimal, depthUsed int) {
	filled = decimal.Zero
	notional = decimal.Zero
	remaining := targetQty

	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := lvl.Size
		if remaining.LessThan(take) {
			take = remaining
		}
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
		depthUsed++
	}
	return filled, notional, depthUsed
}

// slippageBps is floor(|vwap - reference| / reference * 10000). Returns 0
// when reference is nil or zero, never dividing by zero.
func slippageBps(vwap decimal.Decimal, reference *decimal.Decimal) int64 {
	if reference == nil || reference.IsZero() {
		return 0
	}
	diff := vwap.Sub(*reference).Abs()
	bps := diff.Div(*reference).Mul(ten000)
	return bps.IntPart()
}

func ageMS(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return time.Since(ts).Milliseconds()
}
