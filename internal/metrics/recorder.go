// Package metrics collects per-trade execution records and aggregates
// them into the fill-rate/timing/profit-capture summary the status
// surface exposes. One Recorder is owned by the orchestrator; nothing
// else writes to it.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/pkg/types"
)

// maxRetained bounds the in-memory trade history, matching the teacher's
// last-N-samples ring pattern (gas price history capped at 1000 there;
// trade records here).
const maxRetained = 1000

// recentWindow is how many of the most recent trades the "recent"
// sub-report covers.
const recentWindow = 20

// TradeRecord is one completed execution's metrics.
type TradeRecord struct {
	TradeID         string
	Timestamp       time.Time
	Strategy        types.ExecutionStrategy
	RunID           string
	NumLegs         int
	LegsFilled      int
	ExecutionTimeMS int64
	Committed       bool
	RolledBack      bool
	ExpectedProfit  *decimal.Decimal
	ActualProfit    *decimal.Decimal
	SlippagePct     *decimal.Decimal
	LegTimesMS      []int64
	LegStatuses     []types.LegStatus
	Errors          []string
}

// Success reports whether the trade committed without a rollback.
func (r TradeRecord) Success() bool {
	return r.Committed && !r.RolledBack
}

// WithinBlock reports whether execution finished within the single-block
// budget (30ms on the venues this core targets).
func (r TradeRecord) WithinBlock() bool {
	return r.ExecutionTimeMS <= 30
}

type strategyStats struct {
	count         int
	successful    int
	totalExecTime int64
	totalSlippage decimal.Decimal
	withinBlock   int
}

// Recorder aggregates TradeRecords as they arrive and answers summary
// queries concurrently.
type Recorder struct {
	mu sync.Mutex

	records []TradeRecord

	totalTrades      int
	successfulTrades int
	failedTrades     int
	rolledBackTrades int

	byStrategy map[types.ExecutionStrategy]*strategyStats

	totalExpectedProfit decimal.Decimal
	totalActualProfit   decimal.Decimal
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{byStrategy: make(map[types.ExecutionStrategy]*strategyStats)}
}

// RecordTrade extracts a TradeRecord from a finalized MultiLegTrade and
// folds it into the running aggregates.
func (r *Recorder) RecordTrade(trade *types.MultiLegTrade, now time.Time) TradeRecord {
	rec := TradeRecord{
		TradeID:         trade.TradeID,
		Timestamp:       now,
		Strategy:        trade.Strategy,
		RunID:           trade.RunID,
		NumLegs:         len(trade.Legs),
		ExecutionTimeMS: trade.ExecutionTimeMS(),
		Committed:       trade.Committed,
		RolledBack:      trade.RolledBack,
		ExpectedProfit:  trade.ExpectedProfit,
		ActualProfit:    trade.ActualProfit,
		SlippagePct:     trade.SlippagePct(),
	}

	for i := range trade.Legs {
		leg := &trade.Legs[i]
		if leg.IsFilled() {
			rec.LegsFilled++
		}
		if t := leg.ExecutionTimeMS(); t > 0 {
			rec.LegTimesMS = append(rec.LegTimesMS, t)
		}
		rec.LegStatuses = append(rec.LegStatuses, leg.Status)
		if leg.Error != "" {
			rec.Errors = append(rec.Errors, leg.MarketID+": "+leg.Error)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if len(r.records) > maxRetained {
		r.records = r.records[len(r.records)-maxRetained:]
	}

	r.totalTrades++
	if rec.Success() {
		r.successfulTrades++
	} else {
		r.failedTrades++
	}
	if rec.RolledBack {
		r.rolledBackTrades++
	}

	stats, ok := r.byStrategy[rec.Strategy]
	if !ok {
		stats = &strategyStats{}
		r.byStrategy[rec.Strategy] = stats
	}
	stats.count++
	if rec.Success() {
		stats.successful++
	}
	stats.totalExecTime += rec.ExecutionTimeMS
	if rec.SlippagePct != nil {
		stats.totalSlippage = stats.totalSlippage.Add(rec.SlippagePct.Abs())
	}
	if rec.WithinBlock() {
		stats.withinBlock++
	}

	if rec.ExpectedProfit != nil {
		r.totalExpectedProfit = r.totalExpectedProfit.Add(*rec.ExpectedProfit)
	}
	if rec.ActualProfit != nil {
		r.totalActualProfit = r.totalActualProfit.Add(*rec.ActualProfit)
	}

	return rec
}

// StrategyBreakdown is one strategy's aggregated stats.
type StrategyBreakdown struct {
	Count               int
	Successful          int
	SuccessRatePct      float64
	AvgExecutionTimeMS  float64
	WithinBlockRatePct  float64
	AvgSlippagePct      float64
}

// Summary is the top-level aggregate spec.md §6's
// `metrics.summary()` exposes.
type Summary struct {
	TotalTrades         int
	Successful          int
	Failed              int
	RolledBack          int
	SuccessRatePct      float64
	P50ExecutionTimeMS  float64
	P95ExecutionTimeMS  float64
	P99ExecutionTimeMS  float64
	WithinBlockRatePct  float64
	TotalExpectedProfit decimal.Decimal
	TotalActualProfit   decimal.Decimal
	ProfitCaptureRatePct float64
	ByStrategy          map[types.ExecutionStrategy]StrategyBreakdown
	RecentTrades        int
	RecentSuccessRatePct float64
	RecentWithinBlockRatePct float64
}

// Summary computes the full aggregate report over every retained record.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Summary{
		TotalTrades:         r.totalTrades,
		Successful:          r.successfulTrades,
		Failed:              r.failedTrades,
		RolledBack:          r.rolledBackTrades,
		TotalExpectedProfit: r.totalExpectedProfit,
		TotalActualProfit:   r.totalActualProfit,
		ByStrategy:          make(map[types.ExecutionStrategy]StrategyBreakdown, len(r.byStrategy)),
	}

	if r.totalTrades > 0 {
		out.SuccessRatePct = round2(float64(r.successfulTrades) / float64(r.totalTrades) * 100)
	}
	if r.totalExpectedProfit.IsPositive() {
		rate, _ := r.totalActualProfit.Div(r.totalExpectedProfit).Float64()
		out.ProfitCaptureRatePct = round2(rate * 100)
	}

	times := make([]int64, 0, len(r.records))
	withinBlock := 0
	for _, rec := range r.records {
		times = append(times, rec.ExecutionTimeMS)
		if rec.WithinBlock() {
			withinBlock++
		}
	}
	if len(times) > 0 {
		out.WithinBlockRatePct = round2(float64(withinBlock) / float64(len(times)) * 100)
		out.P50ExecutionTimeMS = percentile(times, 50)
		out.P95ExecutionTimeMS = percentile(times, 95)
		out.P99ExecutionTimeMS = percentile(times, 99)
	}

	for strategy, stats := range r.byStrategy {
		if stats.count == 0 {
			continue
		}
		avgSlippage, _ := stats.totalSlippage.Div(decimal.NewFromInt(int64(stats.count))).Float64()
		out.ByStrategy[strategy] = StrategyBreakdown{
			Count:              stats.count,
			Successful:         stats.successful,
			SuccessRatePct:     round2(float64(stats.successful) / float64(stats.count) * 100),
			AvgExecutionTimeMS: round2(float64(stats.totalExecTime) / float64(stats.count)),
			WithinBlockRatePct: round2(float64(stats.withinBlock) / float64(stats.count) * 100),
			AvgSlippagePct:     round2(avgSlippage * 100),
		}
	}

	start := len(r.records) - recentWindow
	if start < 0 {
		start = 0
	}
	recent := r.records[start:]
	out.RecentTrades = len(recent)
	if len(recent) > 0 {
		successCount, withinCount := 0, 0
		for _, rec := range recent {
			if rec.Success() {
				successCount++
			}
			if rec.WithinBlock() {
				withinCount++
			}
		}
		out.RecentSuccessRatePct = round2(float64(successCount) / float64(len(recent)) * 100)
		out.RecentWithinBlockRatePct = round2(float64(withinCount) / float64(len(recent)) * 100)
	}

	return out
}

// RecentTrades returns up to limit of the most recently recorded trades,
// newest last.
func (r *Recorder) RecentTrades(limit int) []TradeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := len(r.records) - limit
	if start < 0 {
		start = 0
	}
	out := make([]TradeRecord, len(r.records)-start)
	copy(out, r.records[start:])
	return out
}

// Reset clears every retained record and aggregate. Used by tests and by
// session-boundary resets.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = nil
	r.totalTrades = 0
	r.successfulTrades = 0
	r.failedTrades = 0
	r.rolledBackTrades = 0
	r.byStrategy = make(map[types.ExecutionStrategy]*strategyStats)
	r.totalExpectedProfit = decimal.Zero
	r.totalActualProfit = decimal.Zero
}

// percentile computes the p-th percentile (0-100) of a sorted copy of
// values, interpolating linearly between the two closest ranks.
func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return float64(sorted[lower])
	}
	frac := rank - float64(lower)
	return float64(sorted[lower])*(1-frac) + float64(sorted[upper])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
