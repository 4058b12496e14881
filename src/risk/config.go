package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"agentorchestrator/src/model"
)

type Config struct {
	MaxTradeCapitalFraction float64 `envconfig:"MAX_TRADE_CAPITAL_FRACTION" default:"0.2"`
	LeverageLow             int     `envconfig:"RISK_LEVERAGE_LOW" default:"5"`
	LeverageMedium          int     `envconfig:"RISK_LEVERAGE_MEDIUM" default:"10"`
	LeverageHigh            int     `envconfig:"RISK_LEVERAGE_HIGH" default:"20"`
	SizePrecision           int32   `envconfig:"RISK_SIZE_PRECISION" default:"3"`
	MaxDrawdownPct          float64 `envconfig:"RISK_MAX_DRAWDOWN_PCT" default:"-10"`
	MaxUtilizationPct       float64 `envconfig:"RISK_MAX_UTILIZATION_PCT" default:"80"`
	MinWinRatePct           float64 `envconfig:"RISK_MIN_WIN_RATE_PCT" default:"30"`
	MinTradesForWinRate     int     `envconfig:"RISK_MIN_TRADES_FOR_WIN_RATE" default:"10"`
	AgentMaxDrawdownPct     float64 `envconfig:"RISK_AGENT_MAX_DRAWDOWN_PCT" default:"-20"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Policy builds the governor policy from env settings.
func (c Config) Policy() Policy {
	return Policy{
		LeverageCeilings: map[model.RiskTolerance]int{
			model.RiskLow:    c.LeverageLow,
			model.RiskMedium: c.LeverageMedium,
			model.RiskHigh:   c.LeverageHigh,
		},
		MaxTradeCapitalFraction: c.MaxTradeCapitalFraction,
		SizePrecision:           c.SizePrecision,
	}
}

func (c Config) Thresholds() CheckThresholds {
	return CheckThresholds{
		MaxDrawdownPct:      c.MaxDrawdownPct,
		MaxUtilizationPct:   c.MaxUtilizationPct,
		MinWinRatePct:       c.MinWinRatePct,
		MinTradesForWinRate: c.MinTradesForWinRate,
		AgentMaxDrawdownPct: c.AgentMaxDrawdownPct,
	}
}
