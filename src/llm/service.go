package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"agentorchestrator/src/model"
)

const (
	FallbackReasoning = "parse/backend failure"
	DefaultSymbol     = "BTCUSDT"
)

// Service renders prompts, calls a backend and parses the answer. It never
// returns an error: failures become the fallback decision or verdict.
type Service struct {
	logger     *logrus.Entry
	registry   *Registry
	ceoBackend string
	timeout    time.Duration
	now        func() time.Time
}

func NewService(logger *logrus.Entry, registry *Registry, cfg Config) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if registry == nil {
		registry = NewRegistry(BackendOffline)
		registry.Register(OfflineBackend{})
	}

	return &Service{
		logger:     logger,
		registry:   registry,
		ceoBackend: cfg.CEOBackend,
		timeout:    cfg.RequestTimeout,
		now:        time.Now,
	}
}

func (s *Service) complete(ctx context.Context, backend Backend, prompt string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return backend.Complete(ctx, prompt)
}

// FallbackDecision is the safe decision used when the backend or parser fails.
func FallbackDecision(symbol string, at time.Time) model.AgentDecision {
	return model.AgentDecision{
		Action:        model.ActionHold,
		Symbol:        symbol,
		Confidence:    0,
		Reasoning:     FallbackReasoning,
		SuggestedSize: 0,
		Leverage:      1,
		Fallback:      true,
		Timestamp:     at,
	}
}

// GetAgentDecision asks the named backend for one decision.
func (s *Service) GetAgentDecision(ctx context.Context, strategy model.StrategyType, market []model.MarketData, positions []*model.Position, backendID string) model.AgentDecision {
	defaultSymbol := DefaultSymbol
	if len(market) > 0 && market[0].Symbol != "" {
		defaultSymbol = market[0].Symbol
	}

	backend := s.registry.Get(backendID)
	log := s.logger.WithFields(logrus.Fields{
		"strategy": strategy,
		"backend":  backend.Name(),
	})

	prompt, err := BuildAgentPrompt(strategy, market, positions)
	if err != nil {
		log.WithError(err).Error("failed to build agent prompt")
		return FallbackDecision(defaultSymbol, s.now())
	}

	raw, err := s.complete(ctx, backend, prompt)
	if err != nil {
		log.WithError(err).Warn("decision backend failed, holding")
		return FallbackDecision(defaultSymbol, s.now())
	}

	res := ParseAgentDecision(raw, defaultSymbol)
	if !res.OK() {
		log.WithError(res.Err).WithField("raw", truncate(raw, 200)).Warn("unparseable decision, holding")
		return FallbackDecision(defaultSymbol, s.now())
	}

	d := res.Value
	d.Timestamp = s.now()
	return d
}

// GetArbitrationVerdict always uses the configured CEO backend so portfolio
// policy does not depend on which backends the agents use.
func (s *Service) GetArbitrationVerdict(ctx context.Context, pending []model.AgentDecisionPair, conditions string, totalCapital, usedCapital float64) model.CEODecision {
	backend := s.registry.Get(s.ceoBackend)
	log := s.logger.WithFields(logrus.Fields{
		"backend": backend.Name(),
		"pending": len(pending),
	})

	fallback := func(err error) model.CEODecision {
		return model.CEODecision{
			Action:           model.CEOApprove,
			Reasoning:        fmt.Sprintf("arbitration fallback after %s: %v", FallbackReasoning, err),
			RiskAssessment:   "unassessed",
			MarketConditions: conditions,
			PendingCount:     len(pending),
			Fallback:         true,
			Timestamp:        s.now(),
		}
	}

	prompt, err := BuildArbitrationPrompt(pending, conditions, totalCapital, usedCapital)
	if err != nil {
		log.WithError(err).Error("failed to build arbitration prompt")
		return fallback(err)
	}

	raw, err := s.complete(ctx, backend, prompt)
	if err != nil {
		log.WithError(err).Warn("arbitration backend failed, approving by default")
		return fallback(err)
	}

	res := ParseCEODecision(raw)
	if !res.OK() {
		log.WithError(res.Err).WithField("raw", truncate(raw, 200)).Warn("unparseable verdict, approving by default")
		return fallback(res.Err)
	}

	v := res.Value
	if v.MarketConditions == "" {
		v.MarketConditions = conditions
	}
	v.PendingCount = len(pending)
	v.Timestamp = s.now()
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
