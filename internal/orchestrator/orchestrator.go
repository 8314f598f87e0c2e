// Package orchestrator is the central loop of the arbitrage engine: it
// pulls markets from a MarketSource, prices and scans them for
// opportunities, runs every candidate through the risk gate and lifecycle
// machine, executes approved ones, and folds the results into metrics.
//
// Lifecycle mirrors the teacher's engine.go: New() wires every subsystem,
// Start() launches the scan loop goroutine, Stop() cancels it and waits.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/internal/book"
	"arb-engine/internal/dependency"
	"arb-engine/internal/executor"
	"arb-engine/internal/lifecycle"
	"arb-engine/internal/metrics"
	"arb-engine/internal/opportunity"
	"arb-engine/internal/rebalance"
	"arb-engine/internal/risk"
	"arb-engine/internal/venue"
	"arb-engine/pkg/types"
)

// MarketSource is the only external collaborator the loop needs to
// discover tradeable markets. A real deployment satisfies this with a
// venue-specific market-listing adapter (Gamma-API-style polling, a
// subgraph query, a static universe file); none is implemented here since
// the concrete source is adapter territory, same as the venue SDK the
// venue port abstracts away.
type MarketSource interface {
	Markets(ctx context.Context) ([]types.Market, error)
}

// Config bounds one scan/execute cycle. Fields map directly onto
// config.EngineConfig; cmd/engine does the translation.
type Config struct {
	ScanInterval     time.Duration
	OpportunityCfg   opportunity.Config
	RiskLimits       risk.Limits
	ExecutorCfg      executor.Config
	RebalanceMaxIter int
	RebalanceTol     float64
	ExecutionStrategy types.ExecutionStrategy
	ConfidenceFloor  float64
}

// Orchestrator runs the scan/price/risk/execute/record loop.
type Orchestrator struct {
	cfg Config

	markets MarketSource
	books   *book.Store
	detector *dependency.Detector
	generator *opportunity.Generator
	riskCtx *risk.Context
	venues  map[string]venue.Port
	exec    *executor.Executor
	metrics *metrics.Recorder

	logger *slog.Logger

	machinesMu sync.Mutex
	machines   map[string]*lifecycle.Machine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem together.
func New(
	cfg Config,
	markets MarketSource,
	books *book.Store,
	riskCtx *risk.Context,
	venues map[string]venue.Port,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		markets:   markets,
		books:     books,
		detector:  dependency.NewDetector(),
		generator: opportunity.NewGenerator(cfg.OpportunityCfg, books),
		riskCtx:   riskCtx,
		venues:    venues,
		exec:      executor.New(venues, cfg.ExecutorCfg, logger),
		metrics:   recorder,
		logger:    logger.With("component", "orchestrator"),
		machines:  make(map[string]*lifecycle.Machine),
	}
}

// Start launches the scan loop in a background goroutine.
func (o *Orchestrator) Start() {
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop()
	}()
}

// Stop cancels the scan loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) loop() {
	ticker := time.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.runCycle(o.ctx)
		}
	}
}

// runCycle executes one full scan/risk/execute pass. Errors from the
// market source are logged and skipped; there is no retry inside a cycle,
// the next tick tries again.
func (o *Orchestrator) runCycle(ctx context.Context) {
	markets, err := o.markets.Markets(ctx)
	if err != nil {
		o.logger.Error("market source failed", "error", err)
		return
	}

	nowMS := time.Now().UnixMilli()

	binary := o.generator.ScanBinaryComplements(markets, nowMS)
	assessments := o.detector.Detect(markets, nil)
	clusters := opportunity.GroupClusters(markets, assessments, o.cfg.ConfidenceFloor)
	categorical := o.generator.ScanCategoricalRebalances(clusters, nowMS)

	opportunities := make([]types.Opportunity, 0, len(binary)+len(categorical))
	opportunities = append(opportunities, binary...)
	for _, opp := range categorical {
		opportunities = append(opportunities, o.sizeRebalanceLegs(opp, clusters))
	}

	for _, opp := range opportunities {
		o.process(ctx, opp, nowMS)
	}
}

// sizeRebalanceLegs replaces a categorical rebalance opportunity's flat
// per-leg probe quantity with rebalance.Allocate's Frank-Wolfe allocation
// across the cluster, each outcome capped at the probe quantity. Only
// MaxIters and Epsilon are set on rebalance.Constraints: the notional caps
// and the size tolerance stay zero, so Allocate applies no notional cap and
// requires strictly equal quantities. Binary complements skip this:
// there is only ever one quantity to pick for a two-leg trade.
func (o *Orchestrator) sizeRebalanceLegs(opp types.Opportunity, clusters []opportunity.Cluster) types.Opportunity {
	var cluster *opportunity.Cluster
	for i := range clusters {
		if clusters[i].GroupID == groupIDFor(opp, clusters) {
			cluster = &clusters[i]
			break
		}
	}
	if cluster == nil || len(cluster.Markets) != len(opp.Legs) {
		return opp
	}

	outcomes := make([]rebalance.Outcome, len(cluster.Markets))
	price := make(map[string]decimal.Decimal, len(cluster.Markets))
	probe := o.cfg.OpportunityCfg.ProbeQuantity
	one := decimal.NewFromInt(1)
	for i, m := range cluster.Markets {
		// Per-unit profit for a BUY_ALL_YES rebalance is 1 - price (a short
		// sells at price, profit is price - 0); either direction nets the
		// same |1 - sum(price)| once settled, so price distance from the
		// deviation's fair value stands in for PayoffMinusCostFees here.
		payoff := one.Sub(m.YesPrice).Abs()
		outcomes[i] = rebalance.Outcome{ID: m.MarketID, PayoffMinusCostFees: payoff, MaxQty: probe}
		price[m.MarketID] = m.YesPrice
	}

	alloc := rebalance.Allocate(outcomes, price, rebalance.Constraints{
		MaxIters: o.cfg.RebalanceMaxIter,
		Epsilon:  o.cfg.RebalanceTol,
	})

	legByMarket := make(map[string]int, len(opp.Legs))
	for i, leg := range opp.Legs {
		legByMarket[leg.MarketID] = i
	}
	for id, qty := range alloc.Quantities {
		if i, ok := legByMarket[id]; ok && qty.IsPositive() {
			opp.Legs[i].TargetQty = qty
		}
	}
	return opp
}

func groupIDFor(opp types.Opportunity, clusters []opportunity.Cluster) string {
	for _, cl := range clusters {
		if len(cl.Markets) != len(opp.Markets) {
			continue
		}
		match := true
		for _, m := range cl.Markets {
			found := false
			for _, id := range opp.Markets {
				if id == m.MarketID {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return cl.GroupID
		}
	}
	return ""
}

// process runs one opportunity through the full lifecycle: risk gate,
// state machine transitions, execution, and metrics recording.
func (o *Orchestrator) process(ctx context.Context, opp types.Opportunity, nowMS int64) {
	machine := lifecycle.NewMachine(opp.OpportunityID)
	o.putMachine(opp.OpportunityID, machine)
	machine.Apply(types.StatePricedExecutable, time.Now())

	req := risk.Request{
		Opportunity:        opp,
		RequestedContracts: totalTargetQty(opp),
		NowMS:              nowMS,
	}
	decision := risk.Decide(req, o.cfg.RiskLimits, o.riskCtx)

	if decision.Action == types.RiskDeny {
		machine.Apply(types.StateRiskRejected, time.Now())
		machine.Apply(types.StateClosed, time.Now())
		o.logger.Info("opportunity denied", "opportunity_id", opp.OpportunityID, "reason", decision.Reason)
		return
	}

	if decision.Action == types.RiskAdjust {
		scaleLegs(&opp, decision.SizeAdjustedContracts)
	}

	machine.Apply(types.StateRiskApproved, time.Now())
	machine.Apply(types.StateExecutionSubmitted, time.Now())

	expected := expectedProfit(opp)
	trade := o.exec.Execute(ctx, opp, o.cfg.ExecutionStrategy, &expected)

	switch {
	case trade.Committed:
		machine.Apply(types.StateFilled, time.Now())
	case trade.RolledBack && anyLegFilled(trade):
		machine.Apply(types.StatePartialFill, time.Now())
		machine.Apply(types.StateHedgedOrFlattened, time.Now())
	default:
		machine.Apply(types.StateFailed, time.Now())
	}
	machine.Apply(types.StateClosed, time.Now())

	if trade.ActualProfit != nil {
		o.riskCtx.RecordRealizedPnL(*trade.ActualProfit)
	}
	o.metrics.RecordTrade(trade, time.Now())
}

func anyLegFilled(trade *types.MultiLegTrade) bool {
	for i := range trade.Legs {
		if trade.Legs[i].IsFilled() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) putMachine(opportunityID string, m *lifecycle.Machine) {
	o.machinesMu.Lock()
	defer o.machinesMu.Unlock()
	o.machines[opportunityID] = m
}

func totalTargetQty(opp types.Opportunity) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range opp.Legs {
		total = total.Add(leg.TargetQty)
	}
	return total
}

func expectedProfit(opp types.Opportunity) decimal.Decimal {
	edge := decimal.NewFromInt(opp.EdgeBpsNet).Div(decimal.NewFromInt(10000))
	return edge.Mul(totalTargetQty(opp))
}

func scaleLegs(opp *types.Opportunity, capQty decimal.Decimal) {
	if len(opp.Legs) == 0 || !capQty.IsPositive() {
		return
	}
	perLeg := capQty.Div(decimal.NewFromInt(int64(len(opp.Legs))))
	for i := range opp.Legs {
		opp.Legs[i].TargetQty = perLeg
	}
}

// TrackedAssets exposes book.Store's asset list for the status surface.
func (o *Orchestrator) TrackedAssets() []string {
	return o.books.Assets()
}

// MetricsSummary exposes the running metrics aggregate for the status
// surface.
func (o *Orchestrator) MetricsSummary() metrics.Summary {
	return o.metrics.Summary()
}

// RecentTrades exposes the most recent trade records for the status
// surface.
func (o *Orchestrator) RecentTrades(limit int) []metrics.TradeRecord {
	return o.metrics.RecentTrades(limit)
}

// RiskSnapshot exposes the running risk context for the status surface.
func (o *Orchestrator) RiskSnapshot() risk.Snapshot {
	return o.riskCtx.Snapshot()
}
