package model

import "time"

// CEODecisionRecord persists one arbitration verdict for audit.
type CEODecisionRecord struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	SessionID        string    `gorm:"size:64;index;not null" json:"session_id"`
	Action           string    `gorm:"size:30;not null" json:"action"`
	AgentID          string    `gorm:"size:64" json:"agent_id,omitempty"`
	Reasoning        string    `gorm:"type:text" json:"reasoning"`
	Modifications    string    `gorm:"type:text" json:"modifications,omitempty"`
	RiskAssessment   string    `gorm:"type:text" json:"risk_assessment"`
	MarketConditions string    `gorm:"size:255" json:"market_conditions"`
	PendingCount     int       `json:"pending_count"`
	Fallback         bool      `gorm:"not null;default:false" json:"fallback"`
	DecidedAt        time.Time `gorm:"index" json:"decided_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for verdicts.
func (CEODecisionRecord) TableName() string {
	return "ceo_decisions"
}

const (
	TradeStatusFilled = "filled"
	TradeStatusClosed = "closed"
	TradeStatusError  = "error"
)

// TradeRecord is one execution attempt against the gateway.
type TradeRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"size:64;index;not null" json:"session_id"`
	AgentID      string    `gorm:"size:64;index;not null" json:"agent_id"`
	OrderID      string    `gorm:"size:64" json:"order_id"`
	Symbol       string    `gorm:"size:50;not null" json:"symbol"`
	Action       string    `gorm:"size:10;not null" json:"action"`
	Size         float64   `json:"size"`
	Price        float64   `json:"price"`
	Leverage     int       `json:"leverage"`
	RealizedPnL  float64   `json:"realized_pnl"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	Live         bool      `gorm:"not null;default:false" json:"live"`
	CreatedAt    time.Time `json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
