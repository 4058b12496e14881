package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"agentorchestrator/src/ceo"
	"agentorchestrator/src/connectors"
	"agentorchestrator/src/database"
	"agentorchestrator/src/events"
	"agentorchestrator/src/llm"
	"agentorchestrator/src/model"
	"agentorchestrator/src/repository"
	"agentorchestrator/src/risk"
	"agentorchestrator/src/security"
	"agentorchestrator/src/session"
)

// Options tweaks Build for commands that must not touch live services.
type Options struct {
	// Offline forces the fixture gateway and the offline decision backend.
	Offline bool
	// SkipAudit leaves the audit database and kafka publisher out even when
	// they are configured.
	SkipAudit bool
}

// App holds every wired component of one process.
type App struct {
	Log       *logrus.Entry
	Gateway   connectors.Gateway
	Decisions *llm.Service
	Manager   *session.Manager
	Store     *repository.DecisionRepository
	Events    *events.Publisher
	Session   session.Config
}

// Close releases the event publisher.
func (a *App) Close() error {
	if a.Events != nil {
		return a.Events.Close()
	}
	return nil
}

// Build reads every package config from the environment and wires the
// gateway, decision service, arbitrator, session manager and audit store.
func Build(ctx context.Context, opts Options) (*App, error) {
	log := logrus.WithField("component", "orchestrator")

	gwCfg, err := GatewayConfig()
	if err != nil {
		return nil, err
	}
	llmCfg := llm.GetConfig()
	if err := security.GetConfig().OpenAll(&llmCfg.OpenAIAPIKey, &llmCfg.DeepSeekAPIKey, &llmCfg.HTTPAPIKey); err != nil {
		return nil, fmt.Errorf("open llm credentials: %w", err)
	}
	if opts.Offline {
		gwCfg.ForceFixture = true
		llmCfg = llm.Config{DefaultBackend: llm.BackendOffline, CEOBackend: llm.BackendOffline, RequestTimeout: llmCfg.RequestTimeout}
	}
	riskCfg := risk.GetConfig()
	sessCfg := session.GetConfig()

	gateway := connectors.NewGateway(gwCfg)
	registry := llm.BuildRegistry(ctx, llmCfg, log)
	if gateway.IsLive() && registry.HoldOffline() {
		log.Warn("Live exchange without a model backend, agents will hold until one is configured")
	}
	decisions := llm.NewService(log, registry, llmCfg)
	arbitrator := ceo.NewArbitrator(log, decisions, ceo.GetConfig(), riskCfg.Thresholds())

	var store *repository.DecisionRepository
	deps := session.Deps{
		Logger:     log,
		Gateway:    gateway,
		Decisions:  decisions,
		Arbitrator: arbitrator,
		Policy:     riskCfg.Policy(),
		Symbols:    gwCfg.Symbols,
		RiskHook:   logRiskActions(log),

		TrailLookback: sessCfg.TrailLookback,
		TrailInterval: sessCfg.TrailInterval,
	}
	if sessCfg.RosterFile != "" {
		roster, err := session.LoadRoster(sessCfg.RosterFile)
		if err != nil {
			return nil, err
		}
		deps.Roster = roster
	}

	var publisher *events.Publisher
	if !opts.SkipAudit {
		db, err := database.InitMainDB()
		if err != nil {
			return nil, fmt.Errorf("init audit database: %w", err)
		}

		var sinks []session.AuditSink
		if db != nil {
			store = repository.NewDecisionRepository().WithDB(db)
			sinks = append(sinks, store)
		}
		if evCfg := events.GetConfig(); evCfg.Enabled() {
			publisher, err = events.NewPublisher(evCfg, log)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, publisher)
			log.WithField("brokers", evCfg.Brokers).Info("Publishing audit events to kafka")
		}
		deps.Audit = session.MultiAudit(sinks...)
	}

	return &App{
		Log:       log,
		Gateway:   gateway,
		Decisions: decisions,
		Manager:   session.NewManager(deps),
		Store:     store,
		Events:    publisher,
		Session:   sessCfg,
	}, nil
}

// GatewayConfig loads the exchange config and opens sealed credentials.
func GatewayConfig() (connectors.Config, error) {
	cfg := connectors.GetConfig()
	if err := security.GetConfig().OpenAll(&cfg.AsterAPIKey, &cfg.AsterAPISecret); err != nil {
		return cfg, fmt.Errorf("open exchange credentials: %w", err)
	}
	return cfg, nil
}

// logRiskActions surfaces recommended actions at warn level; it never
// acts on them.
func logRiskActions(log *logrus.Entry) session.RiskHook {
	return func(ctx context.Context, s *model.TradingSession, report risk.Report) {
		for _, action := range report.Actions {
			log.WithFields(logrus.Fields{
				"session_id": s.ID,
				"action":     action,
			}).Warn("risk recommendation")
		}
	}
}
