package model

import "time"

type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

func (s PositionSide) Opposite() PositionSide {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

// Position is an open leveraged position held by exactly one agent.
type Position struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	Side         PositionSide `json:"side"`
	Size         float64      `json:"size"`
	EntryPrice   float64      `json:"entry_price"`
	CurrentPrice float64      `json:"current_price"`
	Leverage     int          `json:"leverage"`
	PnL          float64      `json:"pnl"`
	PnLPercent   float64      `json:"pnl_percent"`
	StopLoss     *float64     `json:"stop_loss,omitempty"`
	TakeProfit   *float64     `json:"take_profit,omitempty"`
	OrderID      string       `json:"order_id,omitempty"`
	OpenedAt     time.Time    `json:"opened_at"`
}

// Mark updates the position to the given price and recomputes PnL.
// pnl = (current-entry)*size*leverage for longs, (entry-current)*size*leverage for shorts.
func (p *Position) Mark(price float64) {
	if price <= 0 {
		return
	}
	p.CurrentPrice = price

	diff := price - p.EntryPrice
	if p.Side == SideShort {
		diff = p.EntryPrice - price
	}

	lev := float64(p.Leverage)
	if lev < 1 {
		lev = 1
	}

	p.PnL = diff * p.Size * lev
	if p.EntryPrice > 0 {
		p.PnLPercent = diff / p.EntryPrice * lev * 100
	} else {
		p.PnLPercent = 0
	}
}

// Margin is the capital tied up by the position at its last marked price.
func (p *Position) Margin() float64 {
	lev := float64(p.Leverage)
	if lev < 1 {
		lev = 1
	}
	return p.Size * p.CurrentPrice / lev
}

func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.StopLoss = cloneFloat(p.StopLoss)
	c.TakeProfit = cloneFloat(p.TakeProfit)
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
