package llm

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"agentorchestrator/src/model"
)

// OfflineBackend answers prompts with rule-based JSON derived from the
// prompt's own market and position lines. Same prompt, same answer.
type OfflineBackend struct{}

func (OfflineBackend) Name() string {
	return BackendOffline
}

var (
	offlineMarketLine   = regexp.MustCompile(`(?m)^- (\S+) price=(\S+) change24h=([+-]?[\d.]+)% volume24h=\S+ funding=(\S+)`)
	offlinePositionLine = regexp.MustCompile(`(?m)^- (\S+) (LONG|SHORT) size=\S+ entry=\S+ current=\S+ leverage=\d+x pnl=([+-]?[\d.]+)%`)
	offlineStrategyLine = regexp.MustCompile(`(?m)^Strategy: (\S+)`)
	offlineUtilLine     = regexp.MustCompile(`(?m)^Capital utilization: ([\d.]+)%`)
)

type offlineQuote struct {
	symbol  string
	change  float64
	funding float64
}

func (b OfflineBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m := offlineUtilLine.FindStringSubmatch(prompt); m != nil {
		return b.verdict(m[1]), nil
	}
	return b.decision(prompt), nil
}

func (OfflineBackend) verdict(utilization string) string {
	util, _ := strconv.ParseFloat(utilization, 64)
	out := map[string]any{
		"action":         "APPROVE",
		"reasoning":      "offline review: capital usage within limits",
		"riskAssessment": "low",
	}
	if util > 80 {
		out["action"] = "REJECT"
		out["reasoning"] = "offline review: capital utilization above 80%"
		out["riskAssessment"] = "high"
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func (OfflineBackend) decision(prompt string) string {
	strategy := model.StrategyTrendFollower
	if m := offlineStrategyLine.FindStringSubmatch(prompt); m != nil {
		strategy = model.StrategyType(m[1])
	}

	out := map[string]any{"action": "HOLD", "confidence": 40, "reasoning": "offline: no clear setup"}

	for _, m := range offlinePositionLine.FindAllStringSubmatch(prompt, -1) {
		pnl, _ := strconv.ParseFloat(m[3], 64)
		if pnl >= 15 || pnl <= -8 {
			out = map[string]any{"action": "CLOSE", "symbol": m[1], "confidence": 70, "reasoning": "offline: exit on pnl " + m[3] + "%"}
			raw, _ := json.Marshal(out)
			return string(raw)
		}
	}

	var best *offlineQuote
	for _, m := range offlineMarketLine.FindAllStringSubmatch(prompt, -1) {
		q := offlineQuote{symbol: m[1]}
		q.change, _ = strconv.ParseFloat(m[3], 64)
		q.funding, _ = strconv.ParseFloat(m[4], 64)
		if best == nil || math.Abs(q.change) > math.Abs(best.change) {
			qq := q
			best = &qq
		}
	}
	if best == nil {
		raw, _ := json.Marshal(out)
		return string(raw)
	}

	action := ""
	leverage := 3
	switch strategy {
	case model.StrategyTrendFollower, model.StrategyMomentum:
		if best.change > 2 {
			action = "BUY"
		} else if best.change < -2 {
			action = "SELL"
		}
		leverage = 5
	case model.StrategyMeanReversion:
		if best.change > 4 {
			action = "SELL"
		} else if best.change < -4 {
			action = "BUY"
		}
		leverage = 2
	case model.StrategyScalper:
		if best.change > 1 {
			action = "BUY"
		} else if best.change < -1 {
			action = "SELL"
		}
		leverage = 10
	case model.StrategyArbitrage:
		if best.funding > 0.00005 {
			action = "SELL"
		} else if best.funding < -0.00005 {
			action = "BUY"
		}
		leverage = 2
	}

	if action != "" {
		out = map[string]any{
			"action":        action,
			"symbol":        best.symbol,
			"confidence":    math.Min(90, 50+math.Abs(best.change)*5),
			"reasoning":     "offline " + strings.ReplaceAll(string(strategy), "_", " ") + " signal on " + best.symbol,
			"suggestedSize": 1,
			"leverage":      leverage,
		}
	}

	raw, _ := json.Marshal(out)
	return string(raw)
}

// HoldBackend stands in when no model is configured but orders would reach
// a live exchange. Agents always hold and verdicts always reject.
type HoldBackend struct{}

func (HoldBackend) Name() string {
	return BackendHold
}

func (HoldBackend) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if offlineUtilLine.MatchString(prompt) {
		return `{"action":"REJECT","reasoning":"no model backend configured","riskAssessment":"high"}`, nil
	}
	return `{"action":"HOLD","confidence":0,"reasoning":"no model backend configured"}`, nil
}
