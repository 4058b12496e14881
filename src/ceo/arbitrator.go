package ceo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agentorchestrator/src/agents"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
)

// VerdictSource produces one portfolio verdict; *llm.Service satisfies it.
type VerdictSource interface {
	GetArbitrationVerdict(ctx context.Context, pending []model.AgentDecisionPair, conditions string, totalCapital, usedCapital float64) model.CEODecision
}

type Arbitrator struct {
	logger     *logrus.Entry
	verdicts   VerdictSource
	scoreFloor float64
	thresholds risk.CheckThresholds
	now        func() time.Time
}

func NewArbitrator(logger *logrus.Entry, verdicts VerdictSource, cfg Config, thresholds risk.CheckThresholds) *Arbitrator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	floor := cfg.RebalanceScoreFloor
	if floor <= 0 {
		floor = 0.1
	}

	return &Arbitrator{
		logger:     logger,
		verdicts:   verdicts,
		scoreFloor: floor,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// ExecutionResult reports what a verdict did. Per-decision failures are
// collected, never fatal to the other agents.
type ExecutionResult struct {
	Executed []model.AgentDecisionPair
	Skipped  []model.AgentDecisionPair
	Errors   []error
}

// Actionable drops HOLD decisions.
func Actionable(pairs []model.AgentDecisionPair) []model.AgentDecisionPair {
	out := make([]model.AgentDecisionPair, 0, len(pairs))
	for _, p := range pairs {
		if p.Decision.Action.IsActionable() {
			out = append(out, p)
		}
	}
	return out
}

// EvaluateAgentDecisions asks for one verdict over every actionable decision,
// applies it and appends it to the session log. A cycle with nothing
// actionable records nothing.
func (a *Arbitrator) EvaluateAgentDecisions(ctx context.Context, session *model.TradingSession, runtimes []*agents.Runtime, pairs []model.AgentDecisionPair) ([]model.CEODecision, ExecutionResult) {
	result := ExecutionResult{}

	pending := Actionable(pairs)
	if len(pending) == 0 {
		return nil, result
	}

	conditions := SummarizeMarket(session.MarketData)
	verdict := a.verdicts.GetArbitrationVerdict(ctx, pending, conditions.String(), session.TotalCapital, session.UsedCapital)

	if err := ctx.Err(); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("arbitration canceled: %w", err))
		a.logger.WithError(err).Warn("arbitration canceled before verdict was applied")
		return nil, result
	}

	verdict.ID = uuid.NewString()
	verdict.PendingCount = len(pending)
	if verdict.Timestamp.IsZero() {
		verdict.Timestamp = a.now()
	}
	if verdict.MarketConditions == "" {
		verdict.MarketConditions = conditions.String()
	}

	byID := make(map[string]*agents.Runtime, len(runtimes))
	for _, rt := range runtimes {
		byID[rt.ID()] = rt
	}

	log := a.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"verdict":    verdict.Action,
		"pending":    len(pending),
		"fallback":   verdict.Fallback,
	})

	switch verdict.Action {
	case model.CEOApprove:
		result = a.execute(ctx, session, byID, pending, nil)
	case model.CEOModify:
		result = a.execute(ctx, session, byID, pending, verdict.Modifications)
	case model.CEOReject:
		result.Skipped = pending
		log.WithField("reasoning", verdict.Reasoning).Info("pending decisions rejected")
	case model.CEOPauseAgent:
		result.Skipped = pending
		if rt, ok := byID[verdict.AgentID]; ok {
			if err := rt.Pause(); err != nil {
				result.Errors = append(result.Errors, err)
			}
		} else {
			log.WithField("agent_id", verdict.AgentID).Warn("pause verdict names an unknown agent")
		}
	case model.CEOActivateAgent:
		result.Skipped = pending
		if rt, ok := byID[verdict.AgentID]; ok {
			if err := rt.Resume(); err != nil {
				result.Errors = append(result.Errors, err)
			}
		} else {
			log.WithField("agent_id", verdict.AgentID).Warn("activate verdict names an unknown agent")
		}
	case model.CEORebalance:
		result.Skipped = pending
		a.Rebalance(session, runtimes)
	}

	session.Decisions = append(session.Decisions, verdict)

	log.WithFields(logrus.Fields{
		"executed": len(result.Executed),
		"skipped":  len(result.Skipped),
		"errors":   len(result.Errors),
	}).Info("verdict applied")

	return []model.CEODecision{verdict}, result
}

func (a *Arbitrator) execute(ctx context.Context, session *model.TradingSession, byID map[string]*agents.Runtime, pending []model.AgentDecisionPair, mods *model.DecisionModifications) ExecutionResult {
	result := ExecutionResult{}

	for i, pair := range pending {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, fmt.Errorf("execution canceled: %w", ctx.Err()))
			result.Skipped = append(result.Skipped, pending[i:]...)
			return result
		default:
		}

		rt, ok := byID[pair.AgentID]
		if !ok {
			result.Errors = append(result.Errors, fmt.Errorf("agent %s not found", pair.AgentID))
			result.Skipped = append(result.Skipped, pair)
			continue
		}
		if rt.Status() != model.AgentActive {
			result.Skipped = append(result.Skipped, pair)
			continue
		}

		decision := pair.Decision
		if mods != nil {
			decision = rt.Attenuate(mods.Apply(decision), session.MarketData)
			if !decision.Action.IsActionable() {
				result.Skipped = append(result.Skipped, model.AgentDecisionPair{AgentID: pair.AgentID, Decision: decision})
				continue
			}
		}

		if err := rt.ExecuteDecision(ctx, decision); err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"agent_id": pair.AgentID,
				"action":   decision.Action,
				"symbol":   decision.Symbol,
			}).Error("failed to execute decision")

			result.Errors = append(result.Errors, err)
			continue
		}
		result.Executed = append(result.Executed, model.AgentDecisionPair{AgentID: pair.AgentID, Decision: decision})
	}

	return result
}

// Rebalance reallocates totalCapital across agents in proportion to
// winRate x (1 + pnl/allocated), each score floored so no agent is starved.
func (a *Arbitrator) Rebalance(session *model.TradingSession, runtimes []*agents.Runtime) {
	if len(runtimes) == 0 || session.TotalCapital <= 0 {
		return
	}

	scores := make([]float64, len(runtimes))
	sum := 0.0
	for i, rt := range runtimes {
		agent := rt.Agent()
		ratio := 0.0
		if agent.AllocatedCapital > 0 {
			ratio = agent.Performance.TotalPnL / agent.AllocatedCapital
		}
		score := agent.Performance.WinRate / 100 * (1 + ratio)
		if math.IsNaN(score) || score < a.scoreFloor {
			score = a.scoreFloor
		}
		scores[i] = score
		sum += score
	}

	assigned := 0.0
	for i, rt := range runtimes {
		alloc := session.TotalCapital * scores[i] / sum
		if i == len(runtimes)-1 {
			alloc = session.TotalCapital - assigned
		}
		assigned += alloc
		rt.SetAllocation(alloc)

		a.logger.WithFields(logrus.Fields{
			"agent_id":   rt.ID(),
			"score":      scores[i],
			"allocation": alloc,
		}).Info("capital reallocated")
	}
}

// PerformRiskCheck is a read-only diagnostic over the session.
func (a *Arbitrator) PerformRiskCheck(session *model.TradingSession) risk.Report {
	return risk.Check(session, a.thresholds)
}
