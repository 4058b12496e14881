package model

import (
	"strings"
	"time"
)

type DecisionAction string

const (
	ActionBuy   DecisionAction = "BUY"
	ActionSell  DecisionAction = "SELL"
	ActionHold  DecisionAction = "HOLD"
	ActionClose DecisionAction = "CLOSE"
)

// ParseDecisionAction normalises free-form text into an action; unknown values become HOLD.
func ParseDecisionAction(s string) DecisionAction {
	a, _ := LookupDecisionAction(s)
	return a
}

// LookupDecisionAction is ParseDecisionAction that also reports whether s
// named a known action.
func LookupDecisionAction(s string) (DecisionAction, bool) {
	switch DecisionAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy, "LONG":
		return ActionBuy, true
	case ActionSell, "SHORT":
		return ActionSell, true
	case ActionClose, "EXIT":
		return ActionClose, true
	case ActionHold:
		return ActionHold, true
	default:
		return ActionHold, false
	}
}

// IsOpening is true for actions that open a new position.
func (a DecisionAction) IsOpening() bool {
	return a == ActionBuy || a == ActionSell
}

// IsActionable is false only for HOLD.
func (a DecisionAction) IsActionable() bool {
	return a == ActionBuy || a == ActionSell || a == ActionClose
}

// AgentDecision is an immutable trading proposal. Risk and arbitration layers
// return modified copies rather than mutating the original.
type AgentDecision struct {
	Action        DecisionAction `json:"action"`
	Symbol        string         `json:"symbol"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning"`
	SuggestedSize float64        `json:"suggested_size"`
	Leverage      int            `json:"leverage"`
	StopLoss      *float64       `json:"stop_loss,omitempty"`
	TakeProfit    *float64       `json:"take_profit,omitempty"`
	Fallback      bool           `json:"fallback,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Copy returns a value copy with its own stop/target pointers.
func (d AgentDecision) Copy() AgentDecision {
	d.StopLoss = cloneFloat(d.StopLoss)
	d.TakeProfit = cloneFloat(d.TakeProfit)
	return d
}

// WithNote returns a copy whose reasoning has note appended.
func (d AgentDecision) WithNote(note string) AgentDecision {
	out := d.Copy()
	if out.Reasoning == "" {
		out.Reasoning = note
	} else {
		out.Reasoning = out.Reasoning + " | " + note
	}
	return out
}

type CEOAction string

const (
	CEOApprove       CEOAction = "APPROVE"
	CEOReject        CEOAction = "REJECT"
	CEOModify        CEOAction = "MODIFY"
	CEOPauseAgent    CEOAction = "PAUSE_AGENT"
	CEOActivateAgent CEOAction = "ACTIVATE_AGENT"
	CEORebalance     CEOAction = "REBALANCE"
)

// ParseCEOAction maps text to a verdict; ok is false for unknown input.
func ParseCEOAction(s string) (CEOAction, bool) {
	a := CEOAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case CEOApprove, CEOReject, CEOModify, CEOPauseAgent, CEOActivateAgent, CEORebalance:
		return a, true
	}
	return CEOApprove, false
}

// DecisionModifications is a shallow override applied to pending decisions on a MODIFY verdict.
type DecisionModifications struct {
	Action        *DecisionAction `json:"action,omitempty"`
	Symbol        *string         `json:"symbol,omitempty"`
	Confidence    *float64        `json:"confidence,omitempty"`
	SuggestedSize *float64        `json:"suggested_size,omitempty"`
	Leverage      *int            `json:"leverage,omitempty"`
	StopLoss      *float64        `json:"stop_loss,omitempty"`
	TakeProfit    *float64        `json:"take_profit,omitempty"`
}

// Apply returns a copy of d with every set field overridden.
func (m *DecisionModifications) Apply(d AgentDecision) AgentDecision {
	out := d.Copy()
	if m == nil {
		return out
	}
	if m.Action != nil {
		out.Action = *m.Action
	}
	if m.Symbol != nil && *m.Symbol != "" {
		out.Symbol = *m.Symbol
	}
	if m.Confidence != nil {
		out.Confidence = *m.Confidence
	}
	if m.SuggestedSize != nil {
		out.SuggestedSize = *m.SuggestedSize
	}
	if m.Leverage != nil {
		out.Leverage = *m.Leverage
	}
	if m.StopLoss != nil {
		out.StopLoss = cloneFloat(m.StopLoss)
	}
	if m.TakeProfit != nil {
		out.TakeProfit = cloneFloat(m.TakeProfit)
	}
	return out
}

// CEODecision is one portfolio-level verdict. Entries are append-only in the session log.
type CEODecision struct {
	ID               string                 `json:"id"`
	Action           CEOAction              `json:"action"`
	AgentID          string                 `json:"agent_id,omitempty"`
	Reasoning        string                 `json:"reasoning"`
	Modifications    *DecisionModifications `json:"modifications,omitempty"`
	RiskAssessment   string                 `json:"risk_assessment"`
	MarketConditions string                 `json:"market_conditions"`
	PendingCount     int                    `json:"pending_count"`
	Fallback         bool                   `json:"fallback,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
}

// AgentDecisionPair binds a pending decision to the agent that produced it.
type AgentDecisionPair struct {
	AgentID  string        `json:"agent_id"`
	Decision AgentDecision `json:"decision"`
}
