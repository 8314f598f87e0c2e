// Package rebalance computes per-outcome contract allocations for
// categorical opportunities (Frank-Wolfe style iterative projection under
// capital/liquidity/position constraints) and reshapes an existing
// position toward a target distribution via Bregman/KL-divergence
// projection onto the simplex.
package rebalance

import (
	"math"

	"github.com/shopspring/decimal"
)

// Outcome is one leg candidate for the allocator: its per-unit profit and
// the hard per-outcome quantity ceiling (executable depth at the probe
// VWAP).
type Outcome struct {
	ID                string
	PayoffMinusCostFees decimal.Decimal // payoff - price_walked - fees, per unit
	MaxQty              decimal.Decimal // L_i: executable depth ceiling
}

// Constraints bounds the allocation.
type Constraints struct {
	MaxTotalNotional  decimal.Decimal // available_capital * max_capital_per_trade
	MaxPerOutcomeNotional decimal.Decimal // available_capital * max_position_fraction
	// SizeToleranceContracts allows per-outcome quantities to differ by up
	// to this many contracts instead of requiring exact equality (spec §9
	// Open Question (b), resolved as a config knob).
	SizeToleranceContracts decimal.Decimal
	Epsilon    float64
	MaxIters   int
}

// Allocation is the optimizer's result.
type Allocation struct {
	Quantities map[string]decimal.Decimal
	Iterations int
	Converged  bool
}

// Allocate solves for a per-outcome contract count maximizing
// Σ (payoff - price_walked - fees)_i * x_i subject to the total/per-outcome
// notional caps, the per-outcome depth ceiling, and the size-tolerance
// equal-quantity requirement, via a backtracking-line-search Frank-Wolfe
// iteration starting from an equal allocation at the tightest per-outcome
// depth ceiling; the starting point does not rank outcomes by profit.
func Allocate(outcomes []Outcome, price map[string]decimal.Decimal, c Constraints) Allocation {
	n := len(outcomes)
	if n == 0 {
		return Allocation{Quantities: map[string]decimal.Decimal{}, Converged: true}
	}

	eps := c.Epsilon
	if eps <= 0 {
		eps = 1e-6
	}
	maxIters := c.MaxIters
	if maxIters <= 0 {
		maxIters = 50
	}

	// Greedy initialization: equal allocation bounded by the tightest
	// per-outcome ceiling, then projected onto the capital constraints.
	minCeiling := outcomes[0].MaxQty
	for _, o := range outcomes[1:] {
		if o.MaxQty.LessThan(minCeiling) {
			minCeiling = o.MaxQty
		}
	}

	x := make([]float64, n)
	uniform := toFloat(minCeiling)
	for i := range x {
		x[i] = uniform
	}
	x = projectFeasible(x, outcomes, price, c)

	obj := func(q []float64) float64 {
		total := 0.0
		for i, o := range outcomes {
			total += toFloat(o.PayoffMinusCostFees) * q[i]
		}
		return total
	}

	steps := []float64{0.1, 0.2, 0.5, 1.0}
	iterations := 0
	converged := false

	for iterations < maxIters {
		iterations++

		// Linearized direction: the Frank-Wolfe vertex is "go to ceiling"
		// for every outcome with positive marginal profit, zero otherwise.
		vertex := make([]float64, n)
		for i, o := range outcomes {
			if toFloat(o.PayoffMinusCostFees) > 0 {
				vertex[i] = toFloat(o.MaxQty)
			}
		}
		vertex = projectFeasible(vertex, outcomes, price, c)

		best := x
		bestObj := obj(x)
		for _, gamma := range steps {
			candidate := make([]float64, n)
			for i := range x {
				candidate[i] = x[i] + gamma*(vertex[i]-x[i])
			}
			candidate = projectFeasible(candidate, outcomes, price, c)
			if v := obj(candidate); v > bestObj {
				best = candidate
				bestObj = v
			}
		}

		delta := 0.0
		for i := range x {
			d := best[i] - x[i]
			delta += d * d
		}
		x = best
		if math.Sqrt(delta) < eps {
			converged = true
			break
		}
	}

	out := make(map[string]decimal.Decimal, n)
	for i, o := range outcomes {
		out[o.ID] = decimal.NewFromFloat(x[i]).Round(6)
	}
	return Allocation{Quantities: out, Iterations: iterations, Converged: converged}
}

// projectFeasible clips q onto the depth ceiling, the equal-quantity (or
// size-tolerance) requirement, the per-outcome notional cap and the total
// notional budget, in that order. The notional steps run after
// equalization, so a binding per-outcome cap on outcomes with different
// prices leaves their quantities unequal.
func projectFeasible(q []float64, outcomes []Outcome, price map[string]decimal.Decimal, c Constraints) []float64 {
	n := len(q)
	out := append([]float64(nil), q...)

	for i, o := range outcomes {
		if out[i] < 0 {
			out[i] = 0
		}
		if ceiling := toFloat(o.MaxQty); out[i] > ceiling {
			out[i] = ceiling
		}
	}

	// Equalize within tolerance: snap every quantity to the minimum one,
	// since settlement pays exactly one payoff only when every leg's
	// notional is matched.
	tolerance := toFloat(c.SizeToleranceContracts)
	minQ := out[0]
	for _, v := range out[1:] {
		if v < minQ {
			minQ = v
		}
	}
	for i := range out {
		if out[i]-minQ > tolerance {
			out[i] = minQ + tolerance
		}
	}

	// Per-outcome notional cap.
	if !c.MaxPerOutcomeNotional.IsZero() {
		perOutcomeCap := toFloat(c.MaxPerOutcomeNotional)
		for i, o := range outcomes {
			p := toFloat(price[o.ID])
			if p <= 0 {
				continue
			}
			if out[i]*p > perOutcomeCap {
				out[i] = perOutcomeCap / p
			}
		}
	}

	// Total notional cap: scale every quantity down proportionally.
	if !c.MaxTotalNotional.IsZero() {
		total := 0.0
		for i, o := range outcomes {
			total += out[i] * toFloat(price[o.ID])
		}
		budget := toFloat(c.MaxTotalNotional)
		if total > budget && total > 0 {
			scale := budget / total
			for i := range out {
				out[i] *= scale
			}
		}
	}

	for i := range out {
		if out[i] < 0 {
			out[i] = 0
		}
	}
	_ = n
	return out
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// BregmanReshape reshapes an existing position's weights toward target via
// multiplicative-update KL-divergence minimization, projecting onto the
// probability simplex at each step. Used to decide how to reshape
// inventory, not to open new arb positions.
func BregmanReshape(current, target map[string]float64, maxIters int, tol float64) map[string]float64 {
	if maxIters <= 0 {
		maxIters = 50
	}
	if tol <= 0 {
		tol = 1e-6
	}

	weights := make(map[string]float64, len(current))
	total := 0.0
	for k, v := range current {
		if v <= 0 {
			v = 1e-9
		}
		weights[k] = v
		total += v
	}
	for k := range weights {
		weights[k] /= total
	}

	const stepSize = 0.3 // fraction of the way toward target per iteration

	for iter := 0; iter < maxIters; iter++ {
		maxDelta := 0.0
		next := make(map[string]float64, len(weights))
		sum := 0.0
		for k, w := range weights {
			t := target[k]
			if t <= 0 {
				t = 1e-9
			}
			// Multiplicative update toward target, minimizing KL(w || target):
			// w_new = w^(1-step) * t^step, renormalized onto the simplex.
			updated := math.Pow(w, 1-stepSize) * math.Pow(t, stepSize)
			next[k] = updated
			sum += updated
		}
		for k, v := range next {
			v /= sum
			if d := math.Abs(v - weights[k]); d > maxDelta {
				maxDelta = d
			}
			next[k] = v
		}
		weights = next
		if maxDelta < tol {
			break
		}
	}

	return weights
}
