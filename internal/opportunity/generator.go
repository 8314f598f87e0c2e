// Package opportunity scans priced markets and dependency relations to
// produce candidate arbitrage opportunities: binary complements (YES+NO on
// one market summing to less than 1) and categorical rebalances (a cluster
// of mutually-exclusive outcomes whose YES prices sum away from 1).
package opportunity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"arb-engine/internal/pricer"
	"arb-engine/pkg/types"
)

// Config bounds what the generator considers a candidate.
type Config struct {
	ProbeQuantity             decimal.Decimal
	MaxSnapshotAgeMS          int64
	FeeBufferBps              int64
	MinEdgeBpsNetHard         int64
	TTLMsDefault              int64
	MinOutcomes               int
	MaxOutcomes               int
	MinLiquidityPerOutcome    decimal.Decimal
	MinLiquidityRatio         decimal.Decimal
	MinDeviation              decimal.Decimal
	DependencyConfidenceFloor float64
	RunID                     string
	StrategyVersion           string
}

// BookSource is the read path into C1 the generator needs.
type BookSource interface {
	Get(assetID string) (types.OrderBookSnapshot, bool)
}

// Generator produces Opportunity records for a snapshot of markets and
// dependency assessments. It is pure with respect to its inputs: it never
// submits orders.
type Generator struct {
	cfg   Config
	books BookSource
}

// NewGenerator builds a Generator.
func NewGenerator(cfg Config, books BookSource) *Generator {
	return &Generator{cfg: cfg, books: books}
}

// ScanBinaryComplements emits one Opportunity per unresolved binary market
// whose YES+NO executable cost is below 1 by more than fees and slippage.
func (g *Generator) ScanBinaryComplements(markets []types.Market, nowMS int64) []types.Opportunity {
	var out []types.Opportunity

	for _, m := range markets {
		if m.Resolved {
			continue
		}
		if m.LiquidityUSD.LessThan(g.cfg.MinLiquidityPerOutcome) {
			continue
		}

		snap, ok := g.books.Get(m.AssetID)
		if !ok {
			continue
		}

		result := pricer.EstimateComplement(snap, g.cfg.ProbeQuantity, g.cfg.MaxSnapshotAgeMS)
		if result.YesBuy.IsStale || result.NoBuy.IsStale {
			continue
		}
		if !result.YesBuy.LiquiditySufficient || !result.NoBuy.LiquiditySufficient {
			continue
		}

		grossEdgeBps := decimal.NewFromInt(1).Sub(result.TotalCost).Mul(decimal.NewFromInt(10000)).IntPart()
		netEdgeBps := grossEdgeBps - g.cfg.FeeBufferBps
		if netEdgeBps < g.cfg.MinEdgeBpsNetHard {
			continue
		}

		expires := nowMS + g.cfg.TTLMsDefault
		opp := types.Opportunity{
			OpportunityID:   opportunityID([]string{m.MarketID}, nowMS),
			Kind:            types.KindBinaryComplement,
			Markets:         []string{m.MarketID},
			EdgeBpsNet:      netEdgeBps,
			Confidence:      1.0,
			CreatedAtMS:     nowMS,
			ExpiresAtMS:     expires,
			TTLMs:           g.cfg.TTLMsDefault,
			RiskMultiplier:  1.0,
			RunID:           g.cfg.RunID,
			StrategyVersion: g.cfg.StrategyVersion,
			Legs: []types.TradeLeg{
				{MarketID: m.MarketID, Side: types.SideYes, TargetQty: g.cfg.ProbeQuantity, Venue: m.Venue, Status: types.LegPending},
				{MarketID: m.MarketID, Side: types.SideNo, TargetQty: g.cfg.ProbeQuantity, Venue: m.Venue, Status: types.LegPending},
			},
		}
		out = append(out, opp)
	}

	return out
}

// Cluster is a discovered group of mutually-exclusive outcome markets,
// confirmed via C3's EQUIVALENT/MUTUALLY_EXCLUSIVE relations.
type Cluster struct {
	GroupID string
	Markets []types.Market
}

// GroupClusters partitions markets into clusters using C3 assessments:
// two markets belong to the same cluster when a high-confidence
// EQUIVALENT or MUTUALLY_EXCLUSIVE assessment links them. GroupID, when a
// market already carries one, pre-seeds the union-find as a fast path
// before falling back to pairwise assessments.
func GroupClusters(markets []types.Market, assessments []types.DependencyAssessment, confidenceFloor float64) []Cluster {
	parent := make(map[string]string, len(markets))
	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	byID := make(map[string]types.Market, len(markets))
	for _, m := range markets {
		parent[m.MarketID] = m.MarketID
		byID[m.MarketID] = m
	}

	for _, mk := range markets {
		for _, other := range markets {
			if mk.MarketID == other.MarketID || mk.GroupID == "" || mk.GroupID != other.GroupID {
				continue
			}
			union(mk.MarketID, other.MarketID)
		}
	}

	for _, a := range assessments {
		if a.Confidence < confidenceFloor {
			continue
		}
		if a.Relation != types.RelationEquivalent && a.Relation != types.RelationMutuallyExclusive {
			continue
		}
		if _, ok := byID[a.MarketAID]; !ok {
			continue
		}
		if _, ok := byID[a.MarketBID]; !ok {
			continue
		}
		union(a.MarketAID, a.MarketBID)
	}

	groups := make(map[string][]types.Market)
	for _, m := range markets {
		root := find(m.MarketID)
		groups[root] = append(groups[root], m)
	}

	var out []Cluster
	for root, ms := range groups {
		out = append(out, Cluster{GroupID: root, Markets: ms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// ScanCategoricalRebalances emits one Opportunity per qualifying cluster
// whose summed YES price deviates from 1 beyond MinDeviation.
func (g *Generator) ScanCategoricalRebalances(clusters []Cluster, nowMS int64) []types.Opportunity {
	var out []types.Opportunity

	for _, cl := range clusters {
		n := len(cl.Markets)
		if n < g.cfg.MinOutcomes || n > g.cfg.MaxOutcomes {
			continue
		}

		sum := decimal.Zero
		minLiq := decimal.NewFromInt(-1)
		maxLiq := decimal.Zero
		ok := true
		for _, m := range cl.Markets {
			if m.Resolved {
				ok = false
				break
			}
			if m.LiquidityUSD.LessThan(g.cfg.MinLiquidityPerOutcome) {
				ok = false
				break
			}
			sum = sum.Add(m.YesPrice)
			if minLiq.IsNegative() || m.LiquidityUSD.LessThan(minLiq) {
				minLiq = m.LiquidityUSD
			}
			if m.LiquidityUSD.GreaterThan(maxLiq) {
				maxLiq = m.LiquidityUSD
			}
		}
		if !ok {
			continue
		}
		if maxLiq.IsZero() {
			continue
		}
		if minLiq.Div(maxLiq).LessThan(g.cfg.MinLiquidityRatio) {
			continue
		}

		one := decimal.NewFromInt(1)
		deviation := sum.Sub(one)

		var direction types.RebalanceDirection
		switch {
		case deviation.LessThan(g.cfg.MinDeviation.Neg()):
			direction = types.DirectionBuyAllYes
		case deviation.GreaterThan(g.cfg.MinDeviation):
			direction = types.DirectionSellAllYes
		default:
			continue
		}

		ids := make([]string, n)
		legs := make([]types.TradeLeg, n)
		for i, m := range cl.Markets {
			ids[i] = m.MarketID
			side := types.SideYes
			if direction == types.DirectionSellAllYes {
				side = types.SideNo
			}
			legs[i] = types.TradeLeg{MarketID: m.MarketID, Side: side, TargetQty: g.cfg.ProbeQuantity, Venue: m.Venue, Status: types.LegPending}
		}

		edgeBps := deviation.Abs().Mul(decimal.NewFromInt(10000)).IntPart()

		opp := types.Opportunity{
			OpportunityID:   opportunityID(ids, nowMS),
			Kind:            types.KindCategoricalRebalance,
			Markets:         ids,
			Direction:       direction,
			Legs:            legs,
			EdgeBpsNet:      edgeBps,
			Confidence:      0.9,
			CreatedAtMS:     nowMS,
			ExpiresAtMS:     nowMS + g.cfg.TTLMsDefault,
			TTLMs:           g.cfg.TTLMsDefault,
			RiskMultiplier:  1.0,
			RunID:           g.cfg.RunID,
			StrategyVersion: g.cfg.StrategyVersion,
		}
		out = append(out, opp)
	}

	return out
}

// opportunityID is a deterministic hash of sorted market IDs and the
// emission epoch so replayed runs can correlate records.
func opportunityID(marketIDs []string, nowMS int64) string {
	sorted := append([]string(nil), marketIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, "|")))
	h.Write([]byte{byte(nowMS), byte(nowMS >> 8), byte(nowMS >> 16), byte(nowMS >> 24)})
	return hex.EncodeToString(h.Sum(nil))[:16]
}
