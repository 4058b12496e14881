package ceo

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorchestrator/src/agents"
	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
)

type stubVerdicts struct {
	verdict model.CEODecision
	calls   int
	pending []model.AgentDecisionPair
}

func (s *stubVerdicts) GetArbitrationVerdict(ctx context.Context, pending []model.AgentDecisionPair, conditions string, totalCapital, usedCapital float64) model.CEODecision {
	s.calls++
	s.pending = pending
	return s.verdict
}

type noDecisions struct{}

func (noDecisions) GetAgentDecision(ctx context.Context, strategy model.StrategyType, market []model.MarketData, positions []*model.Position, backend string) model.AgentDecision {
	return model.AgentDecision{Action: model.ActionHold}
}

type fixture struct {
	session  *model.TradingSession
	runtimes []*agents.Runtime
	gateway  *connectors.FixtureGateway
	verdicts *stubVerdicts
	arb      *Arbitrator
	hook     *logrustest.Hook
}

func newFixture(t *testing.T, verdict model.CEODecision) *fixture {
	t.Helper()
	log, hook := logrustest.NewNullLogger()
	entry := logrus.NewEntry(log)

	gw := connectors.NewFixtureGateway([]string{"BTCUSDT", "ETHUSDT"}, 100000)
	gw.SetPrice("BTCUSDT", 50000)
	gw.SetPrice("ETHUSDT", 2500)

	session := &model.TradingSession{
		ID:           "s1",
		Status:       model.SessionRunning,
		TotalCapital: 10000,
		MarketData: []model.MarketData{
			{Symbol: "BTCUSDT", Price: 50000, Change24h: 3},
			{Symbol: "ETHUSDT", Price: 2500, Change24h: 2},
		},
	}

	var runtimes []*agents.Runtime
	for _, id := range []string{"a1", "a2"} {
		agent := &model.TradingAgent{
			ID:               id,
			Name:             id,
			Status:           model.AgentActive,
			AllocatedCapital: 5000,
			CurrentCapital:   5000,
			RiskTolerance:    model.RiskMedium,
			MaxPositions:     3,
		}
		session.Agents = append(session.Agents, agent)
		runtimes = append(runtimes, agents.NewRuntime(entry, agent, noDecisions{}, risk.NewGovernor(risk.DefaultPolicy()), gw))
	}

	verdicts := &stubVerdicts{verdict: verdict}
	return &fixture{
		session:  session,
		runtimes: runtimes,
		gateway:  gw,
		verdicts: verdicts,
		arb:      NewArbitrator(entry, verdicts, Config{RebalanceScoreFloor: 0.1}, risk.DefaultThresholds()),
		hook:     hook,
	}
}

func buy(agentID, symbol string, size float64) model.AgentDecisionPair {
	return model.AgentDecisionPair{AgentID: agentID, Decision: model.AgentDecision{Action: model.ActionBuy, Symbol: symbol, SuggestedSize: size, Leverage: 2, Confidence: 70}}
}

func hold(agentID string) model.AgentDecisionPair {
	return model.AgentDecisionPair{AgentID: agentID, Decision: model.AgentDecision{Action: model.ActionHold, Symbol: "BTCUSDT", SuggestedSize: 1}}
}

func TestAllHoldRecordsNothing(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOApprove})

	decisions, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{hold("a1"), hold("a2")})
	assert.Nil(t, decisions)
	assert.Empty(t, result.Executed)
	assert.Equal(t, 0, f.verdicts.calls)
	assert.Empty(t, f.session.Decisions)
}

func TestApproveExecutesOnlyActionable(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOApprove, Reasoning: "ok"})

	decisions, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01), hold("a2")})
	require.Len(t, decisions, 1)
	assert.NotEmpty(t, decisions[0].ID)
	assert.Equal(t, 1, decisions[0].PendingCount)

	require.Len(t, f.verdicts.pending, 1, "HOLD decisions never reach the verdict")
	assert.Equal(t, "a1", f.verdicts.pending[0].AgentID)

	assert.Len(t, result.Executed, 1)
	assert.Len(t, f.session.Agents[0].Positions, 1)
	assert.Empty(t, f.session.Agents[1].Positions)
	assert.Len(t, f.session.Decisions, 1)
}

func TestModifyOverridesAndReappliesRisk(t *testing.T) {
	size := 0.02
	lev := 50
	f := newFixture(t, model.CEODecision{Action: model.CEOModify, Modifications: &model.DecisionModifications{SuggestedSize: &size, Leverage: &lev}})

	_, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01), buy("a2", "ETHUSDT", 0.1)})
	require.Len(t, result.Executed, 2)

	for _, pair := range result.Executed {
		assert.Equal(t, 10, pair.Decision.Leverage, "medium tier ceiling applies after modification")
	}
	assert.Equal(t, 0.02, f.session.Agents[0].Positions[0].Size)
	assert.Equal(t, 0.02, f.session.Agents[1].Positions[0].Size)
}

func TestModifyToHoldIsNotReportedExecuted(t *testing.T) {
	hold := model.ActionHold
	f := newFixture(t, model.CEODecision{Action: model.CEOModify, Modifications: &model.DecisionModifications{Action: &hold}})

	_, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01), buy("a2", "ETHUSDT", 0.1)})
	assert.Empty(t, result.Executed)
	assert.Len(t, result.Skipped, 2)
	assert.Empty(t, f.session.Agents[0].Positions)
	assert.Empty(t, f.session.Agents[1].Positions)
}

func TestRejectExecutesNothingButLogs(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOReject, Reasoning: "too concentrated"})

	decisions, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01)})
	require.Len(t, decisions, 1)
	assert.Empty(t, result.Executed)
	assert.Len(t, result.Skipped, 1)
	assert.Empty(t, f.session.Agents[0].Positions)
	require.Len(t, f.session.Decisions, 1)
	assert.Equal(t, model.CEOReject, f.session.Decisions[0].Action)
}

func TestPauseAgentVerdict(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOPauseAgent, AgentID: "a1"})

	_, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01), buy("a2", "ETHUSDT", 0.1)})
	assert.Equal(t, model.AgentPaused, f.session.Agents[0].Status)
	assert.Equal(t, model.AgentActive, f.session.Agents[1].Status)
	assert.Empty(t, result.Executed)
	assert.Empty(t, f.session.Agents[0].Positions)
}

func TestActivateAgentVerdict(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOActivateAgent, AgentID: "a2"})
	require.NoError(t, f.runtimes[1].Pause())

	f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01)})
	assert.Equal(t, model.AgentActive, f.session.Agents[1].Status)
}

func TestRebalanceConservesCapital(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEORebalance})
	f.session.Agents[0].Performance = model.Performance{WinRate: 70, TotalPnL: 500}
	f.session.Agents[1].Performance = model.Performance{WinRate: 0, TotalPnL: -800}

	f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01)})

	sum := 0.0
	for _, a := range f.session.Agents {
		sum += a.AllocatedCapital
		assert.Greater(t, a.AllocatedCapital, 0.0)
	}
	assert.InDelta(t, f.session.TotalCapital, sum, 1e-9)
	assert.Greater(t, f.session.Agents[0].AllocatedCapital, f.session.Agents[1].AllocatedCapital)

	// score a1 = 0.7*1.1 = 0.77, a2 floored to 0.1
	assert.InDelta(t, 10000*0.77/0.87, f.session.Agents[0].AllocatedCapital, 1e-6)
}

func TestExecutionFailureIsIsolated(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOApprove})

	pairs := []model.AgentDecisionPair{
		{AgentID: "a1", Decision: model.AgentDecision{Action: model.ActionBuy, Symbol: "BTCUSDT", SuggestedSize: 0.01, Leverage: 500}},
		buy("a2", "ETHUSDT", 0.1),
	}
	_, result := f.arb.EvaluateAgentDecisions(context.Background(), f.session, f.runtimes, pairs)

	require.Len(t, result.Errors, 1, "fixture rejects leverage above 125")
	assert.Len(t, result.Executed, 1)
	assert.Empty(t, f.session.Agents[0].Positions)
	assert.Len(t, f.session.Agents[1].Positions, 1)
}

func TestCanceledContextAppliesNothing(t *testing.T) {
	f := newFixture(t, model.CEODecision{Action: model.CEOApprove})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decisions, result := f.arb.EvaluateAgentDecisions(ctx, f.session, f.runtimes, []model.AgentDecisionPair{buy("a1", "BTCUSDT", 0.01)})
	assert.Nil(t, decisions)
	require.Len(t, result.Errors, 1)
	assert.Empty(t, f.session.Decisions)
	assert.Empty(t, f.session.Agents[0].Positions)
}

func TestSummarizeMarket(t *testing.T) {
	cases := []struct {
		changes []float64
		label   string
		up      int
	}{
		{[]float64{6, 5}, LabelStrongBullish, 2},
		{[]float64{3, 2}, LabelBullish, 2},
		{[]float64{2, -2}, LabelNeutral, 1},
		{[]float64{-3, -2}, LabelBearish, 0},
		{[]float64{-10, -1}, LabelStrongBearish, 0},
		{nil, LabelNeutral, 0},
	}

	for _, tc := range cases {
		var market []model.MarketData
		for _, c := range tc.changes {
			market = append(market, model.MarketData{Change24h: c})
		}
		mc := SummarizeMarket(market)
		assert.Equal(t, tc.label, mc.Label, "changes %v", tc.changes)
		assert.Equal(t, tc.up, mc.PositiveCount)
		assert.Equal(t, len(tc.changes), mc.Total)
	}
}

func TestPerformRiskCheckDoesNotMutate(t *testing.T) {
	f := newFixture(t, model.CEODecision{})
	f.session.UsedCapital = 9000
	before := f.session.Clone()

	report := f.arb.PerformRiskCheck(f.session)
	assert.False(t, report.Safe)
	assert.Equal(t, before, f.session.Clone())
}
