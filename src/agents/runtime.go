package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
	"agentorchestrator/src/risk"
	"agentorchestrator/src/stops"
)

var (
	ErrAgentStopped = errors.New("agent is stopped")
	ErrAgentPaused  = errors.New("agent is paused")
)

// DecisionSource produces raw decisions; *llm.Service satisfies it.
type DecisionSource interface {
	GetAgentDecision(ctx context.Context, strategy model.StrategyType, market []model.MarketData, positions []*model.Position, backend string) model.AgentDecision
}

// TradeJournal receives one record per execution attempt.
type TradeJournal interface {
	SaveTrade(ctx context.Context, trade *model.TradeRecord) error
}

// Runtime owns one agent's state and is the only writer of it. Callers
// serialize access per session.
type Runtime struct {
	logger    *logrus.Entry
	agent     *model.TradingAgent
	decisions DecisionSource
	governor  *risk.Governor
	gateway   connectors.Gateway
	journal   TradeJournal
	sessionID string
	prices    map[string]float64
	now       func() time.Time
}

func NewRuntime(logger *logrus.Entry, agent *model.TradingAgent, decisions DecisionSource, governor *risk.Governor, gateway connectors.Gateway) *Runtime {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if governor == nil {
		governor = risk.NewGovernor(risk.DefaultPolicy())
	}

	return &Runtime{
		logger: logger.WithFields(logrus.Fields{
			"agent_id": agent.ID,
			"agent":    agent.Name,
			"strategy": agent.Strategy,
		}),
		agent:     agent,
		decisions: decisions,
		governor:  governor,
		gateway:   gateway,
		prices:    make(map[string]float64),
		now:       time.Now,
	}
}

// SetJournal attaches an audit journal for trades of the given session.
func (r *Runtime) SetJournal(sessionID string, journal TradeJournal) {
	r.sessionID = sessionID
	r.journal = journal
}

func (r *Runtime) ID() string {
	return r.agent.ID
}

func (r *Runtime) Status() model.AgentStatus {
	return r.agent.Status
}

// Agent exposes the live agent; callers must hold the session lock.
func (r *Runtime) Agent() *model.TradingAgent {
	return r.agent
}

// ProduceDecision asks the decision source and attenuates the answer. A
// non-active agent produces nothing.
func (r *Runtime) ProduceDecision(ctx context.Context, market []model.MarketData) (*model.AgentDecision, error) {
	if r.agent.Status != model.AgentActive {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := r.decisions.GetAgentDecision(ctx, r.agent.Strategy, market, r.agent.Positions, r.agent.Backend)
	out := r.governor.Apply(raw, r.agent, market)

	now := r.now()
	r.agent.LastDecisionAt = &now

	r.logger.WithFields(logrus.Fields{
		"action":     out.Action,
		"symbol":     out.Symbol,
		"confidence": out.Confidence,
		"size":       out.SuggestedSize,
		"leverage":   out.Leverage,
		"fallback":   out.Fallback,
	}).Debug("decision produced")

	return &out, nil
}

// Attenuate re-runs this agent's risk controls, used after a verdict modifies a decision.
func (r *Runtime) Attenuate(d model.AgentDecision, market []model.MarketData) model.AgentDecision {
	return r.governor.Apply(d, r.agent, market)
}

// ExecuteDecision applies one decision against the gateway. Gateway errors
// are returned and leave the position list untouched.
func (r *Runtime) ExecuteDecision(ctx context.Context, d model.AgentDecision) error {
	switch r.agent.Status {
	case model.AgentStopped:
		return ErrAgentStopped
	case model.AgentPaused:
		if d.Action.IsOpening() {
			return ErrAgentPaused
		}
	}

	switch d.Action {
	case model.ActionClose:
		return r.closePosition(ctx, d)
	case model.ActionBuy, model.ActionSell:
		return r.openPosition(ctx, d)
	default:
		return nil
	}
}

func (r *Runtime) closePosition(ctx context.Context, d model.AgentDecision) error {
	idx, pos := r.agent.PositionFor(d.Symbol)
	if pos == nil {
		r.logger.WithField("symbol", d.Symbol).Debug("close requested without open position")
		return nil
	}

	// the exchange account is shared, so only this agent's size is offset
	ack, err := r.gateway.PlaceOrder(ctx, connectors.OrderRequest{
		Symbol:        d.Symbol,
		Side:          connectors.SideFor(pos.Side.Opposite()),
		Quantity:      pos.Size,
		ClientOrderID: "ao-" + uuid.NewString()[:18],
	})
	if err != nil {
		r.recordTrade(ctx, model.TradeRecord{Symbol: d.Symbol, Action: string(d.Action), Size: pos.Size, Leverage: pos.Leverage, Status: model.TradeStatusError}, err)
		return fmt.Errorf("close %s for agent %s: %w", d.Symbol, r.agent.ID, err)
	}

	exit := ack.AvgPrice
	if exit <= 0 {
		exit = pos.CurrentPrice
	}
	pos.Mark(exit)
	realized := pos.PnL

	r.agent.Performance.RecordClose(realized)
	r.agent.Positions = append(r.agent.Positions[:idx:idx], r.agent.Positions[idx+1:]...)
	r.recompute()

	r.logger.WithFields(logrus.Fields{
		"symbol":   d.Symbol,
		"exit":     exit,
		"realized": realized,
	}).Info("position closed")

	r.recordTrade(ctx, model.TradeRecord{
		OrderID:     ack.OrderID,
		Symbol:      d.Symbol,
		Action:      string(d.Action),
		Size:        pos.Size,
		Price:       exit,
		Leverage:    pos.Leverage,
		RealizedPnL: realized,
		Status:      model.TradeStatusClosed,
	}, nil)
	return nil
}

func (r *Runtime) openPosition(ctx context.Context, d model.AgentDecision) error {
	if d.SuggestedSize <= 0 {
		r.logger.WithField("symbol", d.Symbol).Warn("opening decision without size, skipping")
		return nil
	}

	leverage := d.Leverage
	if leverage < 1 {
		leverage = 1
	}

	side := model.SideLong
	if d.Action == model.ActionSell {
		side = model.SideShort
	}

	fail := func(err error) error {
		r.recordTrade(ctx, model.TradeRecord{Symbol: d.Symbol, Action: string(d.Action), Size: d.SuggestedSize, Leverage: leverage, Status: model.TradeStatusError}, err)
		return fmt.Errorf("%s %s for agent %s: %w", d.Action, d.Symbol, r.agent.ID, err)
	}

	if err := r.gateway.SetLeverage(ctx, d.Symbol, leverage); err != nil {
		return fail(err)
	}

	ack, err := r.gateway.PlaceOrder(ctx, connectors.OrderRequest{
		Symbol:        d.Symbol,
		Side:          connectors.SideFor(side),
		Quantity:      d.SuggestedSize,
		ClientOrderID: "ao-" + uuid.NewString()[:18],
	})
	if err != nil {
		return fail(err)
	}

	fill := ack.AvgPrice
	if fill <= 0 {
		fill = r.prices[d.Symbol]
	}
	if fill <= 0 {
		return fail(errors.New("order acknowledged without a fill price"))
	}

	size := d.SuggestedSize
	if ack.FilledQty > 0 {
		size = ack.FilledQty
	}

	pos := &model.Position{
		ID:         uuid.NewString(),
		Symbol:     d.Symbol,
		Side:       side,
		Size:       size,
		EntryPrice: fill,
		Leverage:   leverage,
		StopLoss:   d.Copy().StopLoss,
		TakeProfit: d.Copy().TakeProfit,
		OrderID:    ack.OrderID,
		OpenedAt:   r.now(),
	}
	pos.Mark(fill)

	r.agent.Positions = append(r.agent.Positions, pos)
	r.agent.Performance.TotalTrades++
	r.recompute()

	r.logger.WithFields(logrus.Fields{
		"symbol":   d.Symbol,
		"side":     side,
		"size":     size,
		"fill":     fill,
		"leverage": leverage,
		"order_id": ack.OrderID,
	}).Info("position opened")

	r.recordTrade(ctx, model.TradeRecord{
		OrderID:  ack.OrderID,
		Symbol:   d.Symbol,
		Action:   string(d.Action),
		Size:     size,
		Price:    fill,
		Leverage: leverage,
		Status:   model.TradeStatusFilled,
	}, nil)
	return nil
}

// MarkToMarket reprices every position and recomputes capital.
func (r *Runtime) MarkToMarket(prices map[string]float64) {
	for symbol, p := range prices {
		if p > 0 {
			r.prices[symbol] = p
		}
	}
	for _, pos := range r.agent.Positions {
		if p, ok := prices[pos.Symbol]; ok {
			pos.Mark(p)
		}
	}
	r.recompute()
}

// recompute keeps currentCapital = allocated + Σ unrealized pnl.
func (r *Runtime) recompute() {
	total := 0.0
	for _, pos := range r.agent.Positions {
		total += pos.PnL
	}
	r.agent.Performance.TotalPnL = total
	r.agent.CurrentCapital = r.agent.AllocatedCapital + total
}

// TrailStops ratchets the stop-loss of every position that already has one,
// using the candle trail in package stops. Candle fetch errors skip the
// position. It returns the number of stops moved.
func (r *Runtime) TrailStops(ctx context.Context, source connectors.KlineSource, interval string, lookback int) int {
	moved := 0
	for _, pos := range r.agent.Positions {
		if pos.StopLoss == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return moved
		}

		candles, err := source.GetKlines(ctx, pos.Symbol, interval, lookback+1)
		if err != nil {
			r.logger.WithError(err).WithField("symbol", pos.Symbol).Warn("Failed to load candles for trailing stop")
			continue
		}

		current := decimal.NewFromFloat(*pos.StopLoss)
		next, ok := stops.NextStopLoss(pos.Side, current, candles, lookback)
		if !ok {
			continue
		}

		sl, _ := next.Round(8).Float64()
		r.logger.WithFields(logrus.Fields{
			"symbol": pos.Symbol,
			"side":   pos.Side,
			"from":   *pos.StopLoss,
			"to":     sl,
		}).Info("Trailing stop moved")
		pos.StopLoss = &sl
		moved++
	}
	return moved
}

// TriggeredExits returns CLOSE decisions for positions whose stop-loss or
// take-profit has been crossed at the given prices.
func (r *Runtime) TriggeredExits(prices map[string]float64) []model.AgentDecision {
	var exits []model.AgentDecision
	for _, pos := range r.agent.Positions {
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			continue
		}

		reason := ""
		long := pos.Side == model.SideLong
		switch {
		case pos.StopLoss != nil && ((long && price <= *pos.StopLoss) || (!long && price >= *pos.StopLoss)):
			reason = fmt.Sprintf("stop-loss %.6g hit at %.6g", *pos.StopLoss, price)
		case pos.TakeProfit != nil && ((long && price >= *pos.TakeProfit) || (!long && price <= *pos.TakeProfit)):
			reason = fmt.Sprintf("take-profit %.6g hit at %.6g", *pos.TakeProfit, price)
		default:
			continue
		}

		exits = append(exits, model.AgentDecision{
			Action:     model.ActionClose,
			Symbol:     pos.Symbol,
			Confidence: 100,
			Reasoning:  reason,
			Leverage:   pos.Leverage,
			Timestamp:  r.now(),
		})
	}
	return exits
}

func (r *Runtime) Pause() error {
	switch r.agent.Status {
	case model.AgentStopped:
		return ErrAgentStopped
	case model.AgentActive:
		r.agent.Status = model.AgentPaused
		r.logger.Info("agent paused")
	}
	return nil
}

func (r *Runtime) Resume() error {
	switch r.agent.Status {
	case model.AgentStopped:
		return ErrAgentStopped
	case model.AgentPaused:
		r.agent.Status = model.AgentActive
		r.logger.Info("agent resumed")
	}
	return nil
}

// Stop is terminal.
func (r *Runtime) Stop() {
	if r.agent.Status != model.AgentStopped {
		r.agent.Status = model.AgentStopped
		r.logger.Info("agent stopped")
	}
}

// SetAllocation replaces the allocated capital and refreshes current capital.
func (r *Runtime) SetAllocation(capital float64) {
	r.agent.AllocatedCapital = capital
	r.recompute()
}

func (r *Runtime) recordTrade(ctx context.Context, trade model.TradeRecord, cause error) {
	if r.journal == nil {
		return
	}
	trade.SessionID = r.sessionID
	trade.AgentID = r.agent.ID
	trade.Live = r.gateway.IsLive()
	trade.CreatedAt = r.now()
	if cause != nil {
		msg := cause.Error()
		trade.ErrorMessage = &msg
	}
	if err := r.journal.SaveTrade(context.WithoutCancel(ctx), &trade); err != nil {
		r.logger.WithError(err).Warn("failed to journal trade")
	}
}
