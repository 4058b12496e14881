package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"agentorchestrator/src/model"
)

var (
	ErrNoJSONObject   = errors.New("no JSON object found in response")
	ErrUnbalancedJSON = errors.New("unbalanced JSON object in response")
)

// ParseResult carries either a parsed value or the reason parsing failed.
type ParseResult[T any] struct {
	Value T
	Err   error
}

func (r ParseResult[T]) OK() bool {
	return r.Err == nil
}

// ExtractJSONObject returns the first balanced {...} span in text. Braces
// inside string literals are ignored.
func ExtractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrUnbalancedJSON
}

type fields map[string]json.RawMessage

func decodeFields(raw string) (fields, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var f fields
	if err := json.Unmarshal([]byte(obj), &f); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return f, nil
}

// lookup returns the first present key, so camelCase and snake_case both work.
func (f fields) lookup(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func (f fields) str(keys ...string) string {
	v, ok := f.lookup(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.Trim(string(v), `"`)
}

// num accepts JSON numbers and numeric strings. NaN and Inf are rejected.
func (f fields) num(keys ...string) (float64, bool) {
	v, ok := f.lookup(keys...)
	if !ok {
		return 0, false
	}
	s := strings.TrimSpace(strings.Trim(string(v), `"`))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "%"), "x")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func (f fields) positive(keys ...string) *float64 {
	n, ok := f.num(keys...)
	if !ok || n <= 0 {
		return nil
	}
	return &n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ParseAgentDecision reads an agent decision out of raw model text. Absent or
// unrecognised fields fall back to safe defaults; only a missing or invalid
// JSON object is an error.
func ParseAgentDecision(raw, defaultSymbol string) ParseResult[model.AgentDecision] {
	f, err := decodeFields(raw)
	if err != nil {
		return ParseResult[model.AgentDecision]{Err: err}
	}

	d := model.AgentDecision{
		Action:        model.ParseDecisionAction(f.str("action", "decision")),
		Symbol:        strings.ToUpper(strings.TrimSpace(f.str("symbol"))),
		Reasoning:     f.str("reasoning", "rationale", "reason"),
		SuggestedSize: 1,
		Leverage:      1,
	}
	if d.Symbol == "" {
		d.Symbol = defaultSymbol
	}
	if c, ok := f.num("confidence"); ok {
		d.Confidence = clamp(c, 0, 100)
	}
	if s, ok := f.num("suggestedSize", "suggested_size", "size"); ok && s > 0 {
		d.SuggestedSize = s
	}
	if l, ok := f.num("leverage"); ok {
		d.Leverage = int(clamp(math.Round(l), 1, 100))
	}
	d.StopLoss = f.positive("stopLoss", "stop_loss")
	d.TakeProfit = f.positive("takeProfit", "take_profit")

	return ParseResult[model.AgentDecision]{Value: d}
}

func parseModifications(f fields) *model.DecisionModifications {
	raw, ok := f.lookup("modifications")
	if !ok {
		return nil
	}
	var mf fields
	if err := json.Unmarshal(raw, &mf); err != nil || len(mf) == 0 {
		return nil
	}

	mods := &model.DecisionModifications{}
	set := false
	if a, ok := model.LookupDecisionAction(mf.str("action")); ok {
		mods.Action = &a
		set = true
	}
	if s := mf.str("symbol"); s != "" {
		s = strings.ToUpper(s)
		mods.Symbol = &s
		set = true
	}
	if c, ok := mf.num("confidence"); ok {
		c = clamp(c, 0, 100)
		mods.Confidence = &c
		set = true
	}
	if s, ok := mf.num("suggestedSize", "suggested_size", "size"); ok && s > 0 {
		mods.SuggestedSize = &s
		set = true
	}
	if l, ok := mf.num("leverage"); ok {
		lev := int(clamp(math.Round(l), 1, 100))
		mods.Leverage = &lev
		set = true
	}
	if v := mf.positive("stopLoss", "stop_loss"); v != nil {
		mods.StopLoss = v
		set = true
	}
	if v := mf.positive("takeProfit", "take_profit"); v != nil {
		mods.TakeProfit = v
		set = true
	}
	if !set {
		return nil
	}
	return mods
}

// ParseCEODecision reads an arbitration verdict out of raw model text. An
// unrecognised verdict is an error so the caller applies its fallback.
func ParseCEODecision(raw string) ParseResult[model.CEODecision] {
	f, err := decodeFields(raw)
	if err != nil {
		return ParseResult[model.CEODecision]{Err: err}
	}

	verdict := f.str("action", "verdict", "decision")
	action, ok := model.ParseCEOAction(verdict)
	if !ok {
		return ParseResult[model.CEODecision]{Err: fmt.Errorf("unrecognised verdict %q", verdict)}
	}

	return ParseResult[model.CEODecision]{Value: model.CEODecision{
		Action:           action,
		AgentID:          f.str("agentId", "agent_id"),
		Reasoning:        f.str("reasoning", "rationale", "reason"),
		Modifications:    parseModifications(f),
		RiskAssessment:   f.str("riskAssessment", "risk_assessment"),
		MarketConditions: f.str("marketConditions", "market_conditions"),
	}}
}
