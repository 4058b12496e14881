package repository

import (
	"context"
	"encoding/json"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"agentorchestrator/src/database"
	"agentorchestrator/src/model"
)

// DecisionRepository is the append-only audit trail of verdicts and trades.
type DecisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository creates a new repository instance using the main database.
func NewDecisionRepository() *DecisionRepository {
	logger.WithField("component", "DecisionRepository").
		Info("Creating new DecisionRepository with MainDB")

	return &DecisionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *DecisionRepository) WithDB(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// ToRecord flattens a verdict into its audit row.
func ToRecord(sessionID string, d model.CEODecision) (*model.CEODecisionRecord, error) {
	rec := &model.CEODecisionRecord{
		ID:               d.ID,
		SessionID:        sessionID,
		Action:           string(d.Action),
		AgentID:          d.AgentID,
		Reasoning:        d.Reasoning,
		RiskAssessment:   d.RiskAssessment,
		MarketConditions: d.MarketConditions,
		PendingCount:     d.PendingCount,
		Fallback:         d.Fallback,
		DecidedAt:        d.Timestamp,
	}
	if d.Modifications != nil {
		raw, err := json.Marshal(d.Modifications)
		if err != nil {
			return nil, fmt.Errorf("encode modifications: %w", err)
		}
		rec.Modifications = string(raw)
	}
	return rec, nil
}

// FromRecord rebuilds a verdict from its audit row.
func FromRecord(rec model.CEODecisionRecord) (model.CEODecision, error) {
	d := model.CEODecision{
		ID:               rec.ID,
		Action:           model.CEOAction(rec.Action),
		AgentID:          rec.AgentID,
		Reasoning:        rec.Reasoning,
		RiskAssessment:   rec.RiskAssessment,
		MarketConditions: rec.MarketConditions,
		PendingCount:     rec.PendingCount,
		Fallback:         rec.Fallback,
		Timestamp:        rec.DecidedAt,
	}
	if rec.Modifications != "" {
		var mods model.DecisionModifications
		if err := json.Unmarshal([]byte(rec.Modifications), &mods); err != nil {
			return d, fmt.Errorf("decode modifications of %s: %w", rec.ID, err)
		}
		d.Modifications = &mods
	}
	return d, nil
}

// SaveCEODecision appends one verdict to the audit trail.
func (r *DecisionRepository) SaveCEODecision(ctx context.Context, sessionID string, decision model.CEODecision) error {
	rec, err := ToRecord(sessionID, decision)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "DecisionRepository",
			"op":         "SaveCEODecision",
			"session_id": sessionID,
			"decision":   decision.ID,
		}).WithError(err).Error("Failed to persist verdict")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "DecisionRepository",
		"op":         "SaveCEODecision",
		"session_id": sessionID,
		"action":     decision.Action,
	}).Debug("Verdict persisted")
	return nil
}

// SaveTrade appends one execution attempt. The trade gets its generated ID.
func (r *DecisionRepository) SaveTrade(ctx context.Context, trade *model.TradeRecord) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "DecisionRepository",
			"op":       "SaveTrade",
			"agent_id": trade.AgentID,
			"symbol":   trade.Symbol,
		}).WithError(err).Error("Failed to persist trade")
		return err
	}
	return nil
}

// ListCEODecisions returns the session's verdicts oldest first. limit <= 0 means all.
func (r *DecisionRepository) ListCEODecisions(ctx context.Context, sessionID string, limit int) ([]model.CEODecision, error) {
	var rows []model.CEODecisionRecord

	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("decided_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]model.CEODecision, 0, len(rows))
	for _, rec := range rows {
		d, err := FromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ListTrades returns the session's trades newest first, optionally for one agent.
func (r *DecisionRepository) ListTrades(ctx context.Context, sessionID, agentID string) ([]model.TradeRecord, error) {
	var rows []model.TradeRecord

	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
