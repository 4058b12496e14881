package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentorchestrator/src/ceo"
	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
	"agentorchestrator/src/session"
)

type buyOnce struct{}

func (buyOnce) GetAgentDecision(ctx context.Context, strategy model.StrategyType, market []model.MarketData, positions []*model.Position, backend string) model.AgentDecision {
	if len(positions) > 0 {
		return model.AgentDecision{Action: model.ActionHold, Symbol: "BTCUSDT"}
	}
	return model.AgentDecision{Action: model.ActionBuy, Symbol: "BTCUSDT", SuggestedSize: 0.001, Leverage: 2, Confidence: 55}
}

type approveAll struct{}

func (approveAll) GetArbitrationVerdict(ctx context.Context, pending []model.AgentDecisionPair, conditions string, totalCapital, usedCapital float64) model.CEODecision {
	return model.CEODecision{Action: model.CEOApprove, Reasoning: "fine"}
}

type switchableGateway struct {
	*connectors.FixtureGateway
	down atomic.Bool
}

func (g *switchableGateway) GetMarketData(ctx context.Context, symbols []string) ([]model.MarketData, error) {
	if g.down.Load() {
		return nil, &connectors.GatewayError{Op: "GetMarketData", Err: errors.New("timeout")}
	}
	return g.FixtureGateway.GetMarketData(ctx, symbols)
}

type stubStore struct {
	decisions []model.CEODecision
	err       error
	limit     int
}

func (s *stubStore) ListCEODecisions(ctx context.Context, sessionID string, limit int) ([]model.CEODecision, error) {
	s.limit = limit
	return s.decisions, s.err
}

type testAPI struct {
	router  chi.Router
	manager *session.Manager
	gateway *switchableGateway
}

func newTestAPI(t *testing.T, store decisionLister) *testAPI {
	t.Helper()
	log, _ := logrustest.NewNullLogger()
	entry := logrus.NewEntry(log)

	gw := &switchableGateway{FixtureGateway: connectors.NewFixtureGateway([]string{"BTCUSDT"}, 100000)}
	gw.SetPrice("BTCUSDT", 40000)

	m := session.NewManager(session.Deps{
		Logger:     entry,
		Gateway:    gw,
		Decisions:  buyOnce{},
		Arbitrator: ceo.NewArbitrator(entry, approveAll{}, ceo.Config{}, risk.DefaultThresholds()),
		Policy:     risk.DefaultPolicy(),
		Symbols:    []string{"BTCUSDT"},
	})

	r := chi.NewRouter()
	r.Post("/sessions", CreateSessionHandler(m, 5000))
	r.Get("/sessions", ListSessionsHandler(m))
	r.Get("/sessions/{id}", GetSessionHandler(m))
	r.Post("/sessions/{id}/tick", TickHandler(m))
	r.Post("/sessions/{id}/auto-update", StartAutoUpdateHandler(m, time.Minute))
	r.Delete("/sessions/{id}/auto-update", StopAutoUpdateHandler(m))
	r.Post("/sessions/{id}/pause", LifecycleHandler(m.PauseSession))
	r.Post("/sessions/{id}/resume", LifecycleHandler(m.ResumeSession))
	r.Post("/sessions/{id}/stop", LifecycleHandler(m.StopSession))
	r.Get("/sessions/{id}/risk", RiskReportHandler(m))
	r.Get("/sessions/{id}/decisions", DecisionsHandler(m, store))

	t.Cleanup(m.StopAutoUpdate)
	return &testAPI{router: r, manager: m, gateway: gw}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) create(t *testing.T) model.TradingSession {
	t.Helper()
	rr := a.do(http.MethodPost, "/sessions", `{"totalCapital": 10000}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var s model.TradingSession
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&s))
	return s
}

func TestCreateSessionHandler(t *testing.T) {
	api := newTestAPI(t, nil)

	s := api.create(t)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 10000.0, s.TotalCapital)
	assert.Len(t, s.Agents, 5)

	rr := api.do(http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var def model.TradingSession
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&def))
	assert.Equal(t, 5000.0, def.TotalCapital)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/sessions", `{"totalCapital": -1}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/sessions", `{"capital": 10}`).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/sessions", `not json`).Code)

	rr = api.do(http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []model.TradingSession
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&all))
	assert.Len(t, all, 2)
}

func TestGetSessionHandlerNotFound(t *testing.T) {
	api := newTestAPI(t, nil)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/sessions/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/sessions/missing/tick", "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/sessions/missing/risk", "").Code)
}

func TestTickHandler(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.create(t)

	rr := api.do(http.MethodPost, "/sessions/"+s.ID+"/tick", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got model.TradingSession
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	require.Len(t, got.Decisions, 1)
	assert.NotNil(t, got.LastTickAt)
	for _, a := range got.Agents {
		assert.Len(t, a.Positions, 1)
	}

	api.gateway.down.Store(true)
	rr = api.do(http.MethodPost, "/sessions/"+s.ID+"/tick", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), session.StaleDataMessage)
}

func TestLifecycleHandlers(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.create(t)

	rr := api.do(http.MethodPost, "/sessions/"+s.ID+"/pause", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"paused"`)

	rr = api.do(http.MethodPost, "/sessions/"+s.ID+"/resume", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"running"`)

	rr = api.do(http.MethodPost, "/sessions/"+s.ID+"/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"stopped"`)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/sessions/"+s.ID+"/resume", "").Code)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/sessions/"+s.ID+"/auto-update", "").Code)
}

func TestAutoUpdateHandlers(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.create(t)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/sessions/"+s.ID+"/auto-update", `{"intervalMs": -5}`).Code)

	rr := api.do(http.MethodPost, "/sessions/"+s.ID+"/auto-update", `{"intervalMs": 60000}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), `"intervalMs":60000`)

	id, running := api.manager.AutoUpdateSession()
	assert.True(t, running)
	assert.Equal(t, s.ID, id)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/sessions/"+s.ID+"/auto-update", "").Code)
	_, running = api.manager.AutoUpdateSession()
	assert.False(t, running)
}

func TestRiskReportHandler(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.create(t)

	rr := api.do(http.MethodGet, "/sessions/"+s.ID+"/risk", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var report risk.Report
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&report))
	assert.True(t, report.Safe)
}

func TestDecisionsHandlerInMemory(t *testing.T) {
	api := newTestAPI(t, nil)
	s := api.create(t)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/sessions/"+s.ID+"/tick", "").Code)

	rr := api.do(http.MethodGet, "/sessions/"+s.ID+"/decisions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var decisions []model.CEODecision
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, model.CEOApprove, decisions[0].Action)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/sessions/"+s.ID+"/decisions?limit=zero", "").Code)
}

func TestDecisionsHandlerFromStore(t *testing.T) {
	store := &stubStore{decisions: []model.CEODecision{{ID: "persisted", Action: model.CEOReject}}}
	api := newTestAPI(t, store)
	s := api.create(t)

	rr := api.do(http.MethodGet, "/sessions/"+s.ID+"/decisions?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"persisted"`)
	assert.Equal(t, 5, store.limit)

	store.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, api.do(http.MethodGet, "/sessions/"+s.ID+"/decisions", "").Code)
}
