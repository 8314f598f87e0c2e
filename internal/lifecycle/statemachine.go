// Package lifecycle implements the fixed 10-state execution lifecycle: a
// static transition table and a pure checker that never mutates state on an
// invalid request.
package lifecycle

import (
	"fmt"
	"time"

	"arb-engine/pkg/types"
)

var allowed = map[types.ArbState]map[types.ArbState]struct{}{
	types.StateDiscovered: {
		types.StatePricedExecutable: {},
	},
	types.StatePricedExecutable: {
		types.StateRiskApproved: {},
		types.StateRiskRejected: {},
	},
	types.StateRiskApproved: {
		types.StateExecutionSubmitted: {},
	},
	types.StateRiskRejected: {
		types.StateClosed: {},
	},
	types.StateExecutionSubmitted: {
		types.StateFilled:      {},
		types.StatePartialFill: {},
		types.StateFailed:      {},
	},
	types.StateFilled: {
		types.StateClosed: {},
	},
	types.StatePartialFill: {
		types.StateHedgedOrFlattened: {},
	},
	types.StateHedgedOrFlattened: {
		types.StateClosed: {},
	},
	types.StateFailed: {
		types.StateClosed: {},
	},
	types.StateClosed: {},
}

// Transition checks whether from->to is an allowed edge. It is pure: it
// never mutates anything and a caller that ignores an invalid result has
// made no state change.
func Transition(from, to types.ArbState) types.TransitionResult {
	if _, ok := allowed[from][to]; ok {
		return types.TransitionResult{FromState: from, ToState: to, Valid: true}
	}
	return types.TransitionResult{
		FromState: from,
		ToState:   to,
		Valid:     false,
		Reason:    fmt.Sprintf("invalid transition %s->%s", from, to),
	}
}

// Machine tracks one opportunity's current state plus its full transition
// history, appending every attempt (valid or not) for audit.
type Machine struct {
	record types.LifecycleRecord
}

// NewMachine starts a Machine in DISCOVERED for the given opportunity.
func NewMachine(opportunityID string) *Machine {
	return &Machine{record: types.LifecycleRecord{
		OpportunityID: opportunityID,
		Current:       types.StateDiscovered,
	}}
}

// Apply attempts from the current state to `to`. On success the Machine's
// current state advances; on failure it is left unchanged. Either way the
// attempt is appended to history.
func (m *Machine) Apply(to types.ArbState, now time.Time) types.TransitionResult {
	result := Transition(m.record.Current, to)

	event := types.LifecycleEvent{From: m.record.Current, To: to, Timestamp: now}
	if result.Valid {
		event.ReasonCode = "OK"
		m.record.Current = to
	} else {
		event.ReasonCode = result.Reason
	}
	m.record.History = append(m.record.History, event)

	return result
}

// Current returns the machine's present state.
func (m *Machine) Current() types.ArbState {
	return m.record.Current
}

// Record returns a copy of the full lifecycle record (current state plus
// transition history) for persistence or reporting.
func (m *Machine) Record() types.LifecycleRecord {
	historyCopy := make([]types.LifecycleEvent, len(m.record.History))
	copy(historyCopy, m.record.History)
	return types.LifecycleRecord{
		OpportunityID: m.record.OpportunityID,
		Current:       m.record.Current,
		History:       historyCopy,
	}
}
