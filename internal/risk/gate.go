// Package risk normalizes every opportunity through a single ordered rule
// list before it may be executed: ALLOW, ADJUST (shrink size), or DENY
// with a fixed reason code. Decide is pure and stateless; Context (see
// context.go) supplies the running P&L/exposure state the rules read.
package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

// Request is everything Decide needs about one candidate execution.
type Request struct {
	Opportunity           types.Opportunity
	RequestedContracts    decimal.Decimal
	PredictedSlippageBps  int64
	SnapshotAgeMS         int64
	NowMS                 int64
}

// Limits are the config-derived thresholds the gate enforces.
type Limits struct {
	MaxSnapshotAgeMS        int64
	MinEdgeBpsNetHard       int64
	MaxSlippageBpsHardPerLeg int64
	MaxPositionContracts    decimal.Decimal
}

// Decide applies the ordered rule list from spec §4.6. ctx, when non-nil,
// supplies the daily-loss/gross-exposure early filters; a nil ctx skips
// those two checks (no portfolio context available yet).
func Decide(req Request, limits Limits, ctx *Context) types.RiskDecision {
	out := types.RiskDecision{OpportunityID: req.Opportunity.OpportunityID}

	if ctx != nil {
		if ctx.DailyLossExceeded() {
			out.Action = types.RiskDeny
			out.Reason = types.RiskDailyLoss
			return out
		}
		if ctx.GrossExposureExceeded() {
			out.Action = types.RiskDeny
			out.Reason = types.RiskExposure
			return out
		}
	}

	if req.SnapshotAgeMS > limits.MaxSnapshotAgeMS {
		out.Action = types.RiskDeny
		out.Reason = types.RiskStale
		return out
	}
	if req.NowMS > req.Opportunity.ExpiresAtMS {
		out.Action = types.RiskDeny
		out.Reason = types.RiskStale
		return out
	}
	if req.Opportunity.EdgeBpsNet < limits.MinEdgeBpsNetHard {
		out.Action = types.RiskDeny
		out.Reason = types.RiskEdge
		return out
	}
	if req.PredictedSlippageBps > limits.MaxSlippageBpsHardPerLeg {
		out.Action = types.RiskDeny
		out.Reason = types.RiskSlippage
		return out
	}

	multiplier := req.Opportunity.RiskMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	reqF, _ := req.RequestedContracts.Float64()
	scaledF := math.Ceil(reqF * multiplier)
	if scaledF < 1 {
		scaledF = 1
	}
	scaled := decimal.NewFromFloat(scaledF)

	if scaled.GreaterThan(limits.MaxPositionContracts) {
		out.Action = types.RiskAdjust
		out.SizeAdjustedContracts = limits.MaxPositionContracts
		out.Reason = types.RiskExposure
		return out
	}

	out.Action = types.RiskAllow
	out.SizeAdjustedContracts = scaled
	out.Reason = types.RiskOK
	return out
}
