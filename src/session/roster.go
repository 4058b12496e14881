package session

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"agentorchestrator/src/model"
)

// AgentSpec seeds one agent. Share is its fraction of the session capital.
type AgentSpec struct {
	Name          string              `json:"name" yaml:"name"`
	Strategy      model.StrategyType  `json:"strategy" yaml:"strategy"`
	Share         float64             `json:"share" yaml:"share"`
	Backend       string              `json:"backend" yaml:"backend"`
	RiskTolerance model.RiskTolerance `json:"risk_tolerance" yaml:"risk_tolerance"`
	MaxPositions  int                 `json:"max_positions" yaml:"max_positions"`
}

// DefaultRoster is one agent per strategy.
func DefaultRoster() []AgentSpec {
	return []AgentSpec{
		{Name: "Trend Hunter", Strategy: model.StrategyTrendFollower, Share: 0.25, Backend: "openai", RiskTolerance: model.RiskMedium, MaxPositions: 3},
		{Name: "Mean Reverter", Strategy: model.StrategyMeanReversion, Share: 0.20, Backend: "deepseek", RiskTolerance: model.RiskLow, MaxPositions: 2},
		{Name: "Momentum Rider", Strategy: model.StrategyMomentum, Share: 0.20, Backend: "openai", RiskTolerance: model.RiskHigh, MaxPositions: 3},
		{Name: "Scalp Bot", Strategy: model.StrategyScalper, Share: 0.15, Backend: "deepseek", RiskTolerance: model.RiskHigh, MaxPositions: 5},
		{Name: "Arb Seeker", Strategy: model.StrategyArbitrage, Share: 0.20, Backend: "http", RiskTolerance: model.RiskLow, MaxPositions: 2},
	}
}

func validateRoster(roster []AgentSpec) (float64, error) {
	if len(roster) == 0 {
		return 0, errors.New("roster is empty")
	}
	total := 0.0
	seen := make(map[string]struct{}, len(roster))
	for i, entry := range roster {
		if _, dup := seen[entry.Name]; dup {
			return 0, fmt.Errorf("roster entry %d: duplicate agent name %q", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if !entry.Strategy.Valid() {
			return 0, fmt.Errorf("roster entry %d: unknown strategy %q", i, entry.Strategy)
		}
		if entry.Share <= 0 {
			return 0, fmt.Errorf("roster entry %d: share must be positive", i)
		}
		total += entry.Share
	}
	return total, nil
}

type rosterFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadRoster reads a YAML roster:
//
//	agents:
//	  - name: Trend Hunter
//	    strategy: trend_follower
//	    share: 0.5
//	    backend: openai
//	    risk_tolerance: medium
//	    max_positions: 3
func LoadRoster(path string) ([]AgentSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if _, err := validateRoster(file.Agents); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	for i := range file.Agents {
		if file.Agents[i].MaxPositions <= 0 {
			file.Agents[i].MaxPositions = 1
		}
		if file.Agents[i].RiskTolerance == "" {
			file.Agents[i].RiskTolerance = model.RiskMedium
		}
	}
	return file.Agents, nil
}
