package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"agentorchestrator/src/model"
)

const MaxPositionsReached = "max positions reached"

// Policy holds the per-agent attenuation limits.
type Policy struct {
	LeverageCeilings        map[model.RiskTolerance]int
	MaxTradeCapitalFraction float64
	SizePrecision           int32
}

// DefaultPolicy reasonable defaults: 5x/10x/20x by tier, 20% of capital per trade.
func DefaultPolicy() Policy {
	return Policy{
		LeverageCeilings: map[model.RiskTolerance]int{
			model.RiskLow:    5,
			model.RiskMedium: 10,
			model.RiskHigh:   20,
		},
		MaxTradeCapitalFraction: 0.2,
		SizePrecision:           3,
	}
}

// LeverageCeiling returns the tier's cap. Unknown tiers get the medium cap.
func (p Policy) LeverageCeiling(tier model.RiskTolerance) int {
	if c, ok := p.LeverageCeilings[tier]; ok && c > 0 {
		return c
	}
	if c, ok := p.LeverageCeilings[model.RiskMedium]; ok && c > 0 {
		return c
	}
	return 10
}

// Governor attenuates raw decisions. It never rejects with an error and
// has no side effects.
type Governor struct {
	policy Policy
}

func NewGovernor(policy Policy) *Governor {
	if policy.LeverageCeilings == nil {
		policy.LeverageCeilings = DefaultPolicy().LeverageCeilings
	}
	if policy.MaxTradeCapitalFraction <= 0 {
		policy.MaxTradeCapitalFraction = DefaultPolicy().MaxTradeCapitalFraction
	}
	if policy.SizePrecision < 0 {
		policy.SizePrecision = 0
	}
	return &Governor{policy: policy}
}

func (g *Governor) Policy() Policy {
	return g.policy
}

// Apply runs the leverage ceiling, the position-count gate and the capital
// gate, in that order. Applying it to its own output is a no-op.
func (g *Governor) Apply(d model.AgentDecision, agent *model.TradingAgent, market []model.MarketData) model.AgentDecision {
	out := d.Copy()
	if agent == nil {
		return out
	}

	ceiling := g.policy.LeverageCeiling(agent.RiskTolerance)
	if out.Leverage > ceiling {
		out = out.WithNote(fmt.Sprintf("leverage capped %dx -> %dx for %s risk tolerance", out.Leverage, ceiling, agent.RiskTolerance))
		out.Leverage = ceiling
	}
	if out.Leverage < 1 {
		out.Leverage = 1
	}

	if !out.Action.IsOpening() {
		return out
	}

	if agent.MaxPositions > 0 && len(agent.Positions) >= agent.MaxPositions {
		out.Action = model.ActionHold
		out.Confidence = 0
		out.Reasoning = MaxPositionsReached
		return out
	}

	price := model.PriceMap(market)[out.Symbol]
	if price <= 0 {
		return out
	}

	return g.capitalGate(out, agent.CurrentCapital, price)
}

func (g *Governor) capitalGate(d model.AgentDecision, capital, price float64) model.AgentDecision {
	size := decimal.NewFromFloat(d.SuggestedSize)
	px := decimal.NewFromFloat(price)
	limit := decimal.NewFromFloat(capital).Mul(decimal.NewFromFloat(g.policy.MaxTradeCapitalFraction))
	if limit.IsNegative() {
		limit = decimal.Zero
	}

	if size.Mul(px).LessThanOrEqual(limit) {
		return d
	}

	shrunk := limit.Div(px).RoundFloor(g.policy.SizePrecision)
	pct := decimal.NewFromFloat(g.policy.MaxTradeCapitalFraction * 100).Round(2)

	if !shrunk.IsPositive() {
		out := d.WithNote(fmt.Sprintf("size %s exceeds %s%% capital cap and rounds to zero, holding", size.String(), pct.String()))
		out.Action = model.ActionHold
		out.SuggestedSize = 0
		return out
	}

	out := d.WithNote(fmt.Sprintf("size reduced %s -> %s to fit %s%% capital cap", size.String(), shrunk.String(), pct.String()))
	out.SuggestedSize = shrunk.InexactFloat64()
	return out
}
