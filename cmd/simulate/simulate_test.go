package simulate

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorchestrator/src/ceo"
	"agentorchestrator/src/connectors"
	"agentorchestrator/src/llm"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
	"agentorchestrator/src/session"
)

func offlineManager(t *testing.T) *session.Manager {
	t.Helper()
	log, _ := logrustest.NewNullLogger()
	entry := logrus.NewEntry(log)
	svc := llm.NewService(entry, nil, llm.Config{CEOBackend: llm.BackendOffline})

	return session.NewManager(session.Deps{
		Logger:     entry,
		Gateway:    connectors.NewFixtureGateway([]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, 0),
		Decisions:  svc,
		Arbitrator: ceo.NewArbitrator(entry, svc, ceo.Config{}, risk.DefaultThresholds()),
		Policy:     risk.DefaultPolicy(),
		Symbols:    []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
	})
}

func TestSimulationRunsOffline(t *testing.T) {
	var out bytes.Buffer
	log, _ := logrustest.NewNullLogger()
	sim := &Simulation{
		Log:     logrus.NewEntry(log),
		Ticks:   5,
		Capital: 10000,
		Out:     &out,
		Manager: offlineManager(t),
	}

	require.NoError(t, sim.Start(context.Background()))

	all := sim.Manager.GetAllSessions()
	require.Len(t, all, 1)
	require.NotNil(t, all[0].LastTickAt)
	assert.Contains(t, out.String(), all[0].ID)
	assert.Contains(t, out.String(), "Trend Hunter")
}

func TestSimulationIsDeterministic(t *testing.T) {
	run := func() *model.TradingSession {
		var out bytes.Buffer
		sim := &Simulation{Ticks: 8, Capital: 10000, Out: &out, Manager: offlineManager(t)}
		require.NoError(t, sim.Start(context.Background()))
		return sim.Manager.GetAllSessions()[0]
	}

	a, b := run(), run()
	require.Equal(t, len(a.Decisions), len(b.Decisions))
	for i := range a.Decisions {
		assert.Equal(t, a.Decisions[i].Action, b.Decisions[i].Action)
	}
	for i := range a.Agents {
		assert.Equal(t, len(a.Agents[i].Positions), len(b.Agents[i].Positions))
		assert.InDelta(t, a.Agents[i].Performance.TotalPnL, b.Agents[i].Performance.TotalPnL, 1e-9)
	}
}

func TestRenderShowsStaleData(t *testing.T) {
	out := Render(&model.TradingSession{ID: "s1", Status: model.SessionRunning, LastTickError: session.StaleDataMessage})
	assert.Contains(t, out, session.StaleDataMessage)
	assert.Contains(t, out, "s1")
}
