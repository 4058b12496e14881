package llm

import (
	"fmt"
	"strings"
	"text/template"

	"agentorchestrator/src/model"
)

var strategyGuidance = map[model.StrategyType]string{
	model.StrategyTrendFollower: "Follow established trends. Enter in the direction of sustained 24h moves and avoid fighting momentum. Use moderate leverage and wide stops.",
	model.StrategyMeanReversion: "Fade overextended moves. Look for sharp 24h moves likely to revert toward the mean. Keep leverage low and targets modest.",
	model.StrategyMomentum:      "Ride strong short-term momentum with high volume confirmation. Exit quickly when momentum fades.",
	model.StrategyScalper:       "Take small, frequent profits on minor price moves. Keep positions small with tight stops and targets.",
	model.StrategyArbitrage:     "Exploit funding rate and basis dislocations. Prefer the side that collects funding and keep exposure hedged and small.",
}

// GuidanceFor returns the strategy description embedded in agent prompts.
func GuidanceFor(s model.StrategyType) string {
	if g, ok := strategyGuidance[s]; ok {
		return g
	}
	return "Trade conservatively and only act on clear opportunities."
}

var promptFuncs = template.FuncMap{
	"price": func(v float64) string { return fmt.Sprintf("%.6g", v) },
	"pct":   func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
	"num":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"opt": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.6f", *v)
	},
	"quote": func(s string) string { return fmt.Sprintf("%q", s) },
}

var agentPromptTmpl = template.Must(template.New("agent").Funcs(promptFuncs).Parse(`You are an autonomous crypto perpetuals trading agent.
Strategy: {{.Strategy}}
Approach: {{.Guidance}}

Market snapshot:
{{range .Market}}- {{.Symbol}} price={{price .Price}} change24h={{pct .Change24h}} volume24h={{num .Volume24h}} funding={{opt .FundingRate}} sentiment={{.Sentiment}}
{{end}}
Open positions:
{{if .Positions}}{{range .Positions}}- {{.Symbol}} {{.Side}} size={{.Size}} entry={{price .EntryPrice}} current={{price .CurrentPrice}} leverage={{.Leverage}}x pnl={{pct .PnLPercent}}
{{end}}{{else}}- none
{{end}}
Decide one action for this cycle. Respond with exactly one JSON object:
{"action":"BUY|SELL|HOLD|CLOSE","symbol":"SYMBOL","confidence":0-100,"reasoning":"short rationale","suggestedSize":number,"leverage":number,"stopLoss":number,"takeProfit":number}
`))

var arbitrationPromptTmpl = template.Must(template.New("arbitration").Funcs(promptFuncs).Parse(`You are the CEO of a team of autonomous trading agents sharing one portfolio.
Market conditions: {{.Conditions}}
Total capital: {{num .TotalCapital}}
Used capital: {{num .UsedCapital}}
Capital utilization: {{num .Utilization}}%

Pending decisions ({{len .Pending}}):
{{range .Pending}}- agent={{.AgentID}} action={{.Decision.Action}} symbol={{.Decision.Symbol}} size={{.Decision.SuggestedSize}} leverage={{.Decision.Leverage}}x confidence={{num .Decision.Confidence}} reasoning={{quote .Decision.Reasoning}}
{{end}}
Review all pending decisions together for concentration and capital usage, then issue one verdict.
Verdicts: APPROVE, REJECT, MODIFY, PAUSE_AGENT, ACTIVATE_AGENT, REBALANCE.
Respond with exactly one JSON object:
{"action":"VERDICT","agentId":"only for PAUSE_AGENT or ACTIVATE_AGENT","reasoning":"...","modifications":{"suggestedSize":number,"leverage":number},"riskAssessment":"...","marketConditions":"..."}
`))

type agentPromptData struct {
	Strategy  model.StrategyType
	Guidance  string
	Market    []model.MarketData
	Positions []*model.Position
}

// BuildAgentPrompt renders the per-agent decision prompt.
func BuildAgentPrompt(strategy model.StrategyType, market []model.MarketData, positions []*model.Position) (string, error) {
	var sb strings.Builder
	err := agentPromptTmpl.Execute(&sb, agentPromptData{
		Strategy:  strategy,
		Guidance:  GuidanceFor(strategy),
		Market:    market,
		Positions: positions,
	})
	if err != nil {
		return "", fmt.Errorf("render agent prompt: %w", err)
	}
	return sb.String(), nil
}

type arbitrationPromptData struct {
	Pending      []model.AgentDecisionPair
	Conditions   string
	TotalCapital float64
	UsedCapital  float64
	Utilization  float64
}

// BuildArbitrationPrompt renders the batched portfolio review prompt.
func BuildArbitrationPrompt(pending []model.AgentDecisionPair, conditions string, totalCapital, usedCapital float64) (string, error) {
	utilization := 0.0
	if totalCapital > 0 {
		utilization = usedCapital / totalCapital * 100
	}

	var sb strings.Builder
	err := arbitrationPromptTmpl.Execute(&sb, arbitrationPromptData{
		Pending:      pending,
		Conditions:   conditions,
		TotalCapital: totalCapital,
		UsedCapital:  usedCapital,
		Utilization:  utilization,
	})
	if err != nil {
		return "", fmt.Errorf("render arbitration prompt: %w", err)
	}
	return sb.String(), nil
}
