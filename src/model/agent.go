package model

import "time"

type StrategyType string

const (
	StrategyTrendFollower StrategyType = "trend_follower"
	StrategyMeanReversion StrategyType = "mean_reversion"
	StrategyMomentum      StrategyType = "momentum"
	StrategyScalper       StrategyType = "scalper"
	StrategyArbitrage     StrategyType = "arbitrage"
)

// Valid reports whether s is one of the known strategy categories.
func (s StrategyType) Valid() bool {
	switch s {
	case StrategyTrendFollower, StrategyMeanReversion, StrategyMomentum, StrategyScalper, StrategyArbitrage:
		return true
	}
	return false
}

type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentPaused  AgentStatus = "paused"
	AgentStopped AgentStatus = "stopped"
)

type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// Performance aggregates an agent's trading results.
// TotalPnL is the unrealized PnL across open positions; RealizedPnL accumulates closed trades.
type Performance struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
}

func (p Performance) ClosedTrades() int {
	return p.WinningTrades + p.LosingTrades
}

// RecordClose books a closed trade's realized PnL and refreshes the win rate.
func (p *Performance) RecordClose(pnl float64) {
	p.RealizedPnL += pnl
	if pnl > 0 {
		p.WinningTrades++
	} else {
		p.LosingTrades++
	}
	if pnl > p.BestTrade {
		p.BestTrade = pnl
	}
	if pnl < p.WorstTrade {
		p.WorstTrade = pnl
	}

	if closed := p.ClosedTrades(); closed > 0 {
		p.WinRate = float64(p.WinningTrades) / float64(closed) * 100
	}
}

// TradingAgent is an autonomous strategy unit owned by one session.
type TradingAgent struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Strategy         StrategyType  `json:"strategy"`
	Status           AgentStatus   `json:"status"`
	AllocatedCapital float64       `json:"allocated_capital"`
	CurrentCapital   float64       `json:"current_capital"`
	Positions        []*Position   `json:"positions"`
	Performance      Performance   `json:"performance"`
	Backend          string        `json:"backend"`
	RiskTolerance    RiskTolerance `json:"risk_tolerance"`
	MaxPositions     int           `json:"max_positions"`
	CreatedAt        time.Time     `json:"created_at"`
	LastDecisionAt   *time.Time    `json:"last_decision_at,omitempty"`
}

// PositionFor returns the first open position on symbol, or nil.
func (a *TradingAgent) PositionFor(symbol string) (int, *Position) {
	for i, p := range a.Positions {
		if p.Symbol == symbol {
			return i, p
		}
	}
	return -1, nil
}

func (a *TradingAgent) Clone() *TradingAgent {
	if a == nil {
		return nil
	}
	c := *a
	c.Positions = make([]*Position, 0, len(a.Positions))
	for _, p := range a.Positions {
		c.Positions = append(c.Positions, p.Clone())
	}
	if a.LastDecisionAt != nil {
		t := *a.LastDecisionAt
		c.LastDecisionAt = &t
	}
	return &c
}
