package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"agentorchestrator/src/agents"
	"agentorchestrator/src/ceo"
	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
)

const StaleDataMessage = "stale data, will retry next cycle"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTickInProgress  = errors.New("tick already in progress")
	ErrSessionStopped  = errors.New("session is stopped")
)

// RiskHook receives every risk report. The session passed in is live and
// must not be retained after the hook returns, and the hook must not call
// back into the Manager for the same session.
type RiskHook func(ctx context.Context, session *model.TradingSession, report risk.Report)

// AuditSink persists verdicts and trades.
type AuditSink interface {
	agents.TradeJournal
	SaveCEODecision(ctx context.Context, sessionID string, decision model.CEODecision) error
}

// Deps wires a Manager. Gateway, Decisions and Arbitrator are required.
type Deps struct {
	Logger     *logrus.Entry
	Gateway    connectors.Gateway
	Decisions  agents.DecisionSource
	Arbitrator *ceo.Arbitrator
	Policy     risk.Policy
	Audit      AuditSink
	RiskHook   RiskHook
	Symbols    []string
	Roster     []AgentSpec

	// TrailLookback > 0 trails stop-losses each tick when Gateway is also
	// a connectors.KlineSource.
	TrailLookback int
	TrailInterval string
}

type sessionState struct {
	mu       sync.Mutex
	session  *model.TradingSession
	runtimes []*agents.Runtime
	snapshot atomic.Pointer[model.TradingSession]
	busy     atomic.Bool

	cancelMu   sync.Mutex
	tickCancel context.CancelFunc
}

// publish stores a deep copy for lock-free readers. Caller holds mu.
func (st *sessionState) publish() {
	st.snapshot.Store(st.session.Clone())
}

func (st *sessionState) setTickCancel(cancel context.CancelFunc) {
	st.cancelMu.Lock()
	defer st.cancelMu.Unlock()
	st.tickCancel = cancel
}

func (st *sessionState) cancelTick() {
	st.cancelMu.Lock()
	defer st.cancelMu.Unlock()
	if st.tickCancel != nil {
		st.tickCancel()
	}
}

// Manager owns every session of the process. Ticks of one session are
// serialized; different sessions tick independently.
type Manager struct {
	logger     *logrus.Entry
	gateway    connectors.Gateway
	decisions  agents.DecisionSource
	arbitrator *ceo.Arbitrator
	governor   *risk.Governor
	audit      AuditSink
	riskHook   RiskHook
	symbols    []string
	roster     []AgentSpec
	now        func() time.Time

	candles       connectors.KlineSource
	trailLookback int
	trailInterval string

	mu       sync.RWMutex
	sessions map[string]*sessionState
	order    []string

	auto autoUpdate
}

func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	roster := deps.Roster
	if len(roster) == 0 {
		roster = DefaultRoster()
	}
	m := &Manager{
		logger:     logger,
		gateway:    deps.Gateway,
		decisions:  deps.Decisions,
		arbitrator: deps.Arbitrator,
		governor:   risk.NewGovernor(deps.Policy),
		audit:      deps.Audit,
		riskHook:   deps.RiskHook,
		symbols:    deps.Symbols,
		roster:     roster,
		now:        time.Now,
		sessions:   make(map[string]*sessionState),
	}
	if source, ok := deps.Gateway.(connectors.KlineSource); ok && deps.TrailLookback > 0 {
		m.candles = source
		m.trailLookback = deps.TrailLookback
		m.trailInterval = deps.TrailInterval
		if m.trailInterval == "" {
			m.trailInterval = "1m"
		}
	}
	return m
}

func (m *Manager) CreateSession(ctx context.Context, totalCapital float64) (*model.TradingSession, error) {
	return m.CreateSessionWithRoster(ctx, totalCapital, m.roster)
}

// CreateSessionWithRoster splits totalCapital across the roster by share.
func (m *Manager) CreateSessionWithRoster(ctx context.Context, totalCapital float64, roster []AgentSpec) (*model.TradingSession, error) {
	if totalCapital <= 0 {
		return nil, fmt.Errorf("total capital must be positive, got %v", totalCapital)
	}
	shareSum, err := validateRoster(roster)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &model.TradingSession{
		ID:           uuid.NewString(),
		StartTime:    now,
		Status:       model.SessionRunning,
		TotalCapital: totalCapital,
		Decisions:    []model.CEODecision{},
	}
	st := &sessionState{session: s}
	log := m.logger.WithField("session_id", s.ID)

	for _, entry := range roster {
		allocated := totalCapital * entry.Share / shareSum
		agent := &model.TradingAgent{
			ID:               uuid.NewString(),
			Name:             entry.Name,
			Strategy:         entry.Strategy,
			Status:           model.AgentActive,
			AllocatedCapital: allocated,
			CurrentCapital:   allocated,
			Positions:        []*model.Position{},
			Backend:          entry.Backend,
			RiskTolerance:    entry.RiskTolerance,
			MaxPositions:     entry.MaxPositions,
			CreatedAt:        now,
		}
		s.Agents = append(s.Agents, agent)

		rt := agents.NewRuntime(log, agent, m.decisions, m.governor, m.gateway)
		if m.audit != nil {
			rt.SetJournal(s.ID, m.audit)
		}
		st.runtimes = append(st.runtimes, rt)
	}

	st.publish()

	m.mu.Lock()
	m.sessions[s.ID] = st
	m.order = append(m.order, s.ID)
	m.mu.Unlock()

	log.WithFields(logrus.Fields{
		"total_capital": totalCapital,
		"agents":        len(s.Agents),
		"live":          m.gateway.IsLive(),
	}).Info("session created")

	return st.snapshot.Load().Clone(), nil
}

func (m *Manager) state(id string) (*sessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st, nil
}

// GetSession returns a deep copy of the last published state. It never
// waits for an in-flight tick.
func (m *Manager) GetSession(id string) (*model.TradingSession, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}
	return st.snapshot.Load().Clone(), nil
}

// GetAllSessions returns snapshots in creation order.
func (m *Manager) GetAllSessions() []*model.TradingSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.TradingSession, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id].snapshot.Load().Clone())
	}
	return out
}

// Tick runs one evaluation cycle. It is a no-op unless the session is
// running and fails fast with ErrTickInProgress if a cycle is underway.
func (m *Manager) Tick(ctx context.Context, id string) error {
	st, err := m.state(id)
	if err != nil {
		return err
	}
	if !st.busy.CompareAndSwap(false, true) {
		return ErrTickInProgress
	}
	defer st.busy.Store(false)

	tickCtx, cancel := context.WithCancel(ctx)
	st.setTickCancel(cancel)
	defer func() {
		st.setTickCancel(nil)
		cancel()
	}()

	st.mu.Lock()
	defer st.mu.Unlock()
	defer st.publish()

	s := st.session
	if s.Status != model.SessionRunning {
		return nil
	}

	log := m.logger.WithField("session_id", s.ID)

	market, err := m.gateway.GetMarketData(tickCtx, m.symbols)
	if err != nil {
		s.LastTickError = StaleDataMessage
		log.WithError(err).Warn("market refresh failed, tick skipped")
		return fmt.Errorf("refresh market data: %w", err)
	}
	s.MarketData = market
	s.LastTickError = ""

	prices := model.PriceMap(market)
	for _, rt := range st.runtimes {
		rt.MarkToMarket(prices)
	}

	for _, rt := range st.runtimes {
		if rt.Status() == model.AgentStopped {
			continue
		}
		if m.candles != nil {
			rt.TrailStops(tickCtx, m.candles, m.trailInterval, m.trailLookback)
		}
		for _, exit := range rt.TriggeredExits(prices) {
			if err := rt.ExecuteDecision(tickCtx, exit); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"agent_id": rt.ID(),
					"symbol":   exit.Symbol,
				}).Error("protective exit failed")
			} else {
				log.WithFields(logrus.Fields{
					"agent_id": rt.ID(),
					"symbol":   exit.Symbol,
					"reason":   exit.Reasoning,
				}).Info("protective exit executed")
			}
		}
	}
	s.RecomputeCapital()

	pairs := m.collectDecisions(tickCtx, log, st.runtimes, market)

	if err := tickCtx.Err(); err != nil {
		log.WithError(err).Warn("tick canceled before arbitration")
		return err
	}

	verdicts, result := m.arbitrator.EvaluateAgentDecisions(tickCtx, s, st.runtimes, pairs)
	for _, execErr := range result.Errors {
		log.WithError(execErr).Warn("decision execution failed")
	}
	s.RecomputeCapital()

	report := m.arbitrator.PerformRiskCheck(s)
	if !report.Safe {
		log.WithFields(logrus.Fields{
			"warnings": report.Warnings,
			"actions":  report.Actions,
		}).Warn("risk check flagged the session")
	}
	if m.riskHook != nil {
		m.riskHook(tickCtx, s, report)
	}

	if m.audit != nil {
		for _, v := range verdicts {
			if err := m.audit.SaveCEODecision(context.WithoutCancel(tickCtx), s.ID, v); err != nil {
				log.WithError(err).Warn("failed to persist verdict")
			}
		}
	}

	now := m.now()
	s.LastTickAt = &now

	log.WithFields(logrus.Fields{
		"pending":      len(ceo.Actionable(pairs)),
		"verdicts":     len(verdicts),
		"executed":     len(result.Executed),
		"used_capital": s.UsedCapital,
		"total_pnl":    s.TotalPnL,
	}).Info("tick complete")

	return nil
}

// collectDecisions fans out one decision request per active agent and waits
// for all of them. A failing agent is logged and left out.
func (m *Manager) collectDecisions(ctx context.Context, log *logrus.Entry, runtimes []*agents.Runtime, market []model.MarketData) []model.AgentDecisionPair {
	results := make([]*model.AgentDecision, len(runtimes))

	var wg sync.WaitGroup
	for i, rt := range runtimes {
		if rt.Status() != model.AgentActive {
			continue
		}
		wg.Add(1)
		go func(i int, rt *agents.Runtime) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.WithField("agent_id", rt.ID()).Errorf("decision panicked: %v", r)
				}
			}()

			d, err := rt.ProduceDecision(ctx, market)
			if err != nil {
				log.WithError(err).WithField("agent_id", rt.ID()).Warn("decision failed")
				return
			}
			results[i] = d
		}(i, rt)
	}
	wg.Wait()

	pairs := make([]model.AgentDecisionPair, 0, len(runtimes))
	for i, d := range results {
		if d != nil {
			pairs = append(pairs, model.AgentDecisionPair{AgentID: runtimes[i].ID(), Decision: *d})
		}
	}
	return pairs
}

// PauseSession cascades paused to every non-stopped agent.
func (m *Manager) PauseSession(id string) (*model.TradingSession, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.Status == model.SessionStopped {
		return nil, ErrSessionStopped
	}

	st.session.Status = model.SessionPaused
	for _, rt := range st.runtimes {
		_ = rt.Pause()
	}
	st.publish()

	m.logger.WithField("session_id", id).Info("session paused")
	return st.snapshot.Load().Clone(), nil
}

func (m *Manager) ResumeSession(id string) (*model.TradingSession, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.Status == model.SessionStopped {
		return nil, ErrSessionStopped
	}

	st.session.Status = model.SessionRunning
	for _, rt := range st.runtimes {
		_ = rt.Resume()
	}
	st.publish()

	m.logger.WithField("session_id", id).Info("session resumed")
	return st.snapshot.Load().Clone(), nil
}

// StopSession is terminal. Any in-flight tick is canceled so its results
// are not applied, and the auto-update loop is halted if it drives this session.
func (m *Manager) StopSession(id string) (*model.TradingSession, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}

	st.cancelTick()
	m.stopAutoUpdateFor(id)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.session.Status = model.SessionStopped
	for _, rt := range st.runtimes {
		rt.Stop()
	}
	st.publish()

	m.logger.WithField("session_id", id).Info("session stopped")
	return st.snapshot.Load().Clone(), nil
}

// RiskReport runs the read-only risk check on the latest snapshot.
func (m *Manager) RiskReport(id string) (risk.Report, error) {
	s, err := m.GetSession(id)
	if err != nil {
		return risk.Report{}, err
	}
	return m.arbitrator.PerformRiskCheck(s), nil
}
