package risk

import (
	"fmt"

	"agentorchestrator/src/model"
)

// CheckThresholds are percentages; drawdowns are negative numbers.
type CheckThresholds struct {
	MaxDrawdownPct      float64
	MaxUtilizationPct   float64
	MinWinRatePct       float64
	MinTradesForWinRate int
	AgentMaxDrawdownPct float64
}

func DefaultThresholds() CheckThresholds {
	return CheckThresholds{
		MaxDrawdownPct:      -10,
		MaxUtilizationPct:   80,
		MinWinRatePct:       30,
		MinTradesForWinRate: 10,
		AgentMaxDrawdownPct: -20,
	}
}

// Report is a read-only diagnostic. Callers decide what to do with it.
type Report struct {
	Safe     bool     `json:"safe"`
	Warnings []string `json:"warnings"`
	Actions  []string `json:"actions"`
}

func (r *Report) warn(warning, action string) {
	r.Warnings = append(r.Warnings, warning)
	r.Actions = append(r.Actions, action)
}

// Check inspects session-level and per-agent exposure. It never mutates the session.
func Check(session *model.TradingSession, th CheckThresholds) Report {
	report := Report{Warnings: []string{}, Actions: []string{}}
	if session == nil {
		report.Safe = true
		return report
	}

	if session.TotalCapital > 0 {
		drawdown := session.TotalPnL / session.TotalCapital * 100
		if drawdown < th.MaxDrawdownPct {
			report.warn(
				fmt.Sprintf("portfolio drawdown %.2f%% below %.2f%%", drawdown, th.MaxDrawdownPct),
				"reduce exposure across all agents",
			)
		}

		utilization := session.UsedCapital / session.TotalCapital * 100
		if utilization > th.MaxUtilizationPct {
			report.warn(
				fmt.Sprintf("capital utilization %.2f%% above %.2f%%", utilization, th.MaxUtilizationPct),
				"block new positions until utilization drops",
			)
		}
	}

	for _, a := range session.Agents {
		// win rate only means something once enough trades have closed
		if closed := a.Performance.ClosedTrades(); closed > th.MinTradesForWinRate && a.Performance.WinRate < th.MinWinRatePct {
			report.warn(
				fmt.Sprintf("agent %s win rate %.2f%% over %d trades", a.Name, a.Performance.WinRate, closed),
				fmt.Sprintf("consider pausing agent %s", a.ID),
			)
		}

		if a.AllocatedCapital > 0 {
			dd := (a.CurrentCapital - a.AllocatedCapital) / a.AllocatedCapital * 100
			if dd < th.AgentMaxDrawdownPct {
				report.warn(
					fmt.Sprintf("agent %s drawdown %.2f%% below %.2f%%", a.Name, dd, th.AgentMaxDrawdownPct),
					fmt.Sprintf("review allocation for agent %s", a.ID),
				)
			}
		}
	}

	report.Safe = len(report.Warnings) == 0
	return report
}
