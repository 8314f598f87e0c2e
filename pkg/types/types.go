// Package types holds the shared vocabulary for the arbitrage engine: order
// book snapshots, markets, executable prices, dependency assessments,
// opportunities, trade legs, multi-leg trades, and lifecycle records.
//
// Prices, sizes, and profits are always shopspring/decimal.Decimal — never
// float64 — per the fixed-point arithmetic requirement: venues quote in
// fractional cents or ticks, and repeated float arithmetic across a
// multi-leg trade's fill/flatten/profit chain accumulates error that a
// basis-point risk gate cannot tolerate.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————

// Side is which outcome of a binary market a leg trades.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the flattening side for this leg.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// OrderType is the order type a leg is submitted as.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// DependencyRelation classifies the relationship between two markets.
type DependencyRelation string

const (
	RelationEquivalent        DependencyRelation = "EQUIVALENT"
	RelationMutuallyExclusive DependencyRelation = "MUTUALLY_EXCLUSIVE"
	RelationImplies           DependencyRelation = "IMPLIES"
	RelationIndependent       DependencyRelation = "INDEPENDENT"
	RelationUnknown           DependencyRelation = "UNKNOWN"
)

// AssessmentSource is where a DependencyAssessment came from.
type AssessmentSource string

const (
	SourceDeterministic AssessmentSource = "deterministic"
	SourceVerifier      AssessmentSource = "verifier"
)

// OpportunityKind distinguishes the two opportunity shapes C4 emits.
type OpportunityKind string

const (
	KindBinaryComplement     OpportunityKind = "binary_complement"
	KindCategoricalRebalance OpportunityKind = "categorical_rebalance"
)

// RebalanceDirection is the side of a categorical rebalance.
type RebalanceDirection string

const (
	DirectionBuyAllYes  RebalanceDirection = "buy_all_YES"
	DirectionSellAllYes RebalanceDirection = "sell_all_YES"
)

// LegStatus tracks a single leg's lifecycle within a MultiLegTrade.
// FILLED, FAILED and CANCELLED are terminal.
type LegStatus string

const (
	LegPending         LegStatus = "PENDING"
	LegSubmitted       LegStatus = "SUBMITTED"
	LegFilled          LegStatus = "FILLED"
	LegPartiallyFilled LegStatus = "PARTIALLY_FILLED"
	LegFailed          LegStatus = "FAILED"
	LegCancelled       LegStatus = "CANCELLED"
)

// IsPending reports whether the leg is still awaiting a terminal outcome.
// PARTIALLY_FILLED and the venue's OPEN status both count as pending.
func (s LegStatus) IsPending() bool {
	return s == LegPending || s == LegSubmitted || s == LegPartiallyFilled || s == "OPEN"
}

// IsTerminal reports whether no further transitions are expected.
func (s LegStatus) IsTerminal() bool {
	return s == LegFilled || s == LegFailed || s == LegCancelled
}

// ExecutionStrategy is how a MultiLegTrade's legs are submitted.
type ExecutionStrategy string

const (
	StrategyMarket ExecutionStrategy = "MARKET"
	StrategyLimit  ExecutionStrategy = "LIMIT"
	StrategyHybrid ExecutionStrategy = "HYBRID"
)

// RiskAction is the decision C6 returns for an opportunity.
type RiskAction string

const (
	RiskAllow  RiskAction = "ALLOW"
	RiskAdjust RiskAction = "ADJUST"
	RiskDeny   RiskAction = "DENY"
)

// RiskReason is the fixed taxonomy of reasons a RiskDecision carries. This
// enum is the entire public contract of C6 — no other strings are produced.
type RiskReason string

const (
	RiskOK          RiskReason = "RISK_OK"
	RiskEdge        RiskReason = "RISK_EDGE"
	RiskSlippage    RiskReason = "RISK_SLIPPAGE"
	RiskStale       RiskReason = "RISK_STALE"
	RiskExposure    RiskReason = "RISK_EXPOSURE"
	RiskDailyLoss   RiskReason = "RISK_DAILY_LOSS"
	RiskUnknownCode RiskReason = "RISK_UNKNOWN"
)

// ArbState is one state of the C7 lifecycle state machine.
type ArbState string

const (
	StateDiscovered         ArbState = "DISCOVERED"
	StatePricedExecutable   ArbState = "PRICED_EXECUTABLE"
	StateRiskApproved       ArbState = "RISK_APPROVED"
	StateRiskRejected       ArbState = "RISK_REJECTED"
	StateExecutionSubmitted ArbState = "EXECUTION_SUBMITTED"
	StateFilled             ArbState = "FILLED"
	StatePartialFill        ArbState = "PARTIAL_FILL"
	StateFailed             ArbState = "FAILED"
	StateHedgedOrFlattened  ArbState = "HEDGED_OR_FLATTENED"
	StateClosed             ArbState = "CLOSED"
)

// ————————————————————————————————————————————————————————————————
// Order book (C1)
// ————————————————————————————————————————————————————————————————

// PriceLevel is one (price, size) rung of a book side.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is the most recent L2 book for one asset.
//
// Invariants the engine relies on: Bids strictly descending by price; Asks
// strictly ascending; every price in [0,1]; every size > 0; Timestamp
// monotonic per AssetID. Neither this type nor internal/book validates the
// prices, sizes or level order of a snapshot being installed; internal/book
// rejects a snapshot whose Timestamp is not after the installed one and
// re-sorts a side after each delta.
type OrderBookSnapshot struct {
	MarketID     string
	AssetID      string
	Bids         []PriceLevel
	Asks         []PriceLevel
	Timestamp    time.Time
	SequenceHash string
}

// ————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————

// Market is the metadata the engine reasons about for one tradeable outcome.
// GroupID, when non-empty, names the categorical cluster this market belongs
// to (the set of mutually-exclusive markets sharing one event).
type Market struct {
	MarketID     string
	Venue        string
	Ticker       string
	Title        string
	AssetID      string
	YesPrice     decimal.Decimal
	NoPrice      decimal.Decimal
	LiquidityUSD decimal.Decimal
	CloseTime    time.Time
	Resolved     bool
	GroupID      string
}

// ————————————————————————————————————————————————————————————————
// Executable pricer output (C2)
// ————————————————————————————————————————————————————————————————

// ExecutablePrice is the pure, immutable result of walking a book side for a
// requested quantity. It is never mutated after construction.
type ExecutablePrice struct {
	MarketID            string
	Side                Side
	TargetQty           decimal.Decimal
	QuotedPrice         decimal.Decimal
	ExecutableVWAP      decimal.Decimal
	SlippageBps         int64
	FilledQty           decimal.Decimal
	DepthLevelsUsed     int
	SnapshotAgeMS       int64
	IsStale             bool
	LiquiditySufficient bool
}

// ————————————————————————————————————————————————————————————————
// Dependency detection (C3)
// ————————————————————————————————————————————————————————————————

// DependencyAssessment is the classified relationship between two markets.
type DependencyAssessment struct {
	MarketAID  string
	MarketBID  string
	Relation   DependencyRelation
	Confidence float64
	Reason     string
	Source     AssessmentSource
}

// ————————————————————————————————————————————————————————————————
// Opportunities and trades (C4, C8)
// ————————————————————————————————————————————————————————————————

// TradeLeg is one market order within a MultiLegTrade.
type TradeLeg struct {
	MarketID     string
	Side         Side
	TargetQty    decimal.Decimal
	TargetPrice  *decimal.Decimal
	Venue        string
	Status       LegStatus
	OrderHandle  *OrderHandle
	FilledQty    decimal.Decimal
	AvgFillPrice *decimal.Decimal
	SubmissionTS *time.Time
	FillTS       *time.Time
	Error        string
}

// IsFilled reports whether this leg reached the terminal FILLED status.
// Quantity comparisons alone are not authoritative: a venue may report
// filled_qty == target_qty while the order remains PARTIALLY_FILLED.
func (l *TradeLeg) IsFilled() bool {
	return l.Status == LegFilled
}

// ExecutionTimeMS is the wall-clock time from submission to fill, or zero if
// either timestamp is unset.
func (l *TradeLeg) ExecutionTimeMS() int64 {
	if l.SubmissionTS == nil || l.FillTS == nil {
		return 0
	}
	return l.FillTS.Sub(*l.SubmissionTS).Milliseconds()
}

// OrderHandle identifies a venue order.
type OrderHandle struct {
	OrderID string
}

// Opportunity is a candidate multi-leg arbitrage, priced but not yet
// risk-approved or executed.
type Opportunity struct {
	OpportunityID   string
	Kind            OpportunityKind
	Markets         []string
	Legs            []TradeLeg
	EdgeBpsNet      int64
	Confidence      float64
	CreatedAtMS     int64
	ExpiresAtMS     int64
	TTLMs           int64
	RiskMultiplier  float64
	RunID           string
	StrategyVersion string

	// Direction is set only for categorical_rebalance opportunities.
	Direction RebalanceDirection
}

// MultiLegTrade is the in-flight or finalized execution of an Opportunity.
type MultiLegTrade struct {
	TradeID        string
	OpportunityID  string
	Legs           []TradeLeg
	Strategy       ExecutionStrategy
	MaxSlippagePct decimal.Decimal
	TimeoutMS      int64
	StartTS        *time.Time
	EndTS          *time.Time
	Committed      bool
	RolledBack     bool
	ExpectedProfit *decimal.Decimal
	ActualProfit   *decimal.Decimal
	RunID          string
}

// AllFilled reports whether every leg reached FILLED.
func (t *MultiLegTrade) AllFilled() bool {
	for i := range t.Legs {
		if !t.Legs[i].IsFilled() {
			return false
		}
	}
	return true
}

// AnyFailed reports whether any leg is FAILED or CANCELLED.
func (t *MultiLegTrade) AnyFailed() bool {
	for i := range t.Legs {
		if t.Legs[i].Status == LegFailed || t.Legs[i].Status == LegCancelled {
			return true
		}
	}
	return false
}

// ExecutionTimeMS is the wall-clock span from start to finalization.
func (t *MultiLegTrade) ExecutionTimeMS() int64 {
	if t.StartTS == nil || t.EndTS == nil {
		return 0
	}
	return t.EndTS.Sub(*t.StartTS).Milliseconds()
}

// SlippagePct is |expected-actual|/expected, or nil when expected is unset
// or zero.
func (t *MultiLegTrade) SlippagePct() *decimal.Decimal {
	if t.ExpectedProfit == nil || t.ActualProfit == nil || t.ExpectedProfit.IsZero() {
		return nil
	}
	diff := t.ExpectedProfit.Sub(*t.ActualProfit).Abs()
	pct := diff.Div(t.ExpectedProfit.Abs())
	return &pct
}

// ————————————————————————————————————————————————————————————————
// Lifecycle (C7)
// ————————————————————————————————————————————————————————————————

// TransitionResult is the outcome of one state machine Transition call.
type TransitionResult struct {
	FromState ArbState
	ToState   ArbState
	Valid     bool
	Reason    string
}

// LifecycleEvent is one recorded transition attempt.
type LifecycleEvent struct {
	From       ArbState
	To         ArbState
	ReasonCode string
	Timestamp  time.Time
}

// LifecycleRecord is the current state plus the full transition history for
// one opportunity's execution. Held by the lifecycle.Machine the
// orchestrator creates for each opportunity; the executor never sees it.
type LifecycleRecord struct {
	OpportunityID string
	Current       ArbState
	History       []LifecycleEvent
}

// ————————————————————————————————————————————————————————————————
// Risk gate (C6)
// ————————————————————————————————————————————————————————————————

// RiskDecision is the normalized output of the risk gate for one
// opportunity.
type RiskDecision struct {
	OpportunityID         string
	Action                RiskAction
	SizeAdjustedContracts decimal.Decimal
	Reason                RiskReason
}
