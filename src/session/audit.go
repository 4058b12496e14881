package session

import (
	"context"
	"errors"

	"agentorchestrator/src/model"
)

// MultiAudit fans every record out to all non-nil sinks. Every sink is
// tried; the errors are joined.
func MultiAudit(sinks ...AuditSink) AuditSink {
	var out multiAudit
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

type multiAudit []AuditSink

func (m multiAudit) SaveTrade(ctx context.Context, trade *model.TradeRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveTrade(ctx, trade); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiAudit) SaveCEODecision(ctx context.Context, sessionID string, decision model.CEODecision) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveCEODecision(ctx, sessionID, decision); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
