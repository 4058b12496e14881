package model

import "time"

type SessionStatus string

const (
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionStopped SessionStatus = "stopped"
)

// TradingSession is the root aggregate of one trading run.
type TradingSession struct {
	ID            string          `json:"id"`
	StartTime     time.Time       `json:"start_time"`
	Status        SessionStatus   `json:"status"`
	TotalCapital  float64         `json:"total_capital"`
	UsedCapital   float64         `json:"used_capital"`
	TotalPnL      float64         `json:"total_pnl"`
	Agents        []*TradingAgent `json:"agents"`
	Decisions     []CEODecision   `json:"decisions"`
	MarketData    []MarketData    `json:"market_data"`
	LastTickAt    *time.Time      `json:"last_tick_at,omitempty"`
	LastTickError string          `json:"last_tick_error,omitempty"`
}

// Agent looks up an agent by id.
func (s *TradingSession) Agent(id string) *TradingAgent {
	for _, a := range s.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// RecomputeCapital refreshes UsedCapital (Σ margin of open positions) and TotalPnL (Σ agent PnL).
func (s *TradingSession) RecomputeCapital() {
	used, pnl := 0.0, 0.0
	for _, a := range s.Agents {
		for _, p := range a.Positions {
			used += p.Margin()
		}
		pnl += a.Performance.TotalPnL
	}
	s.UsedCapital = used
	s.TotalPnL = pnl
}

// Clone deep copies the session so callers can read it without holding locks.
func (s *TradingSession) Clone() *TradingSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Agents = make([]*TradingAgent, 0, len(s.Agents))
	for _, a := range s.Agents {
		c.Agents = append(c.Agents, a.Clone())
	}
	c.Decisions = make([]CEODecision, len(s.Decisions))
	for i, d := range s.Decisions {
		if d.Modifications != nil {
			m := *d.Modifications
			d.Modifications = &m
		}
		c.Decisions[i] = d
	}
	c.MarketData = make([]MarketData, 0, len(s.MarketData))
	for _, m := range s.MarketData {
		c.MarketData = append(c.MarketData, m.Clone())
	}
	if s.LastTickAt != nil {
		t := *s.LastTickAt
		c.LastTickAt = &t
	}
	return &c
}
