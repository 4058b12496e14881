package ceo

import (
	"fmt"

	"agentorchestrator/src/model"
)

const (
	LabelStrongBullish = "strong-bullish"
	LabelBullish       = "bullish"
	LabelNeutral       = "neutral"
	LabelBearish       = "bearish"
	LabelStrongBearish = "strong-bearish"
)

type MarketConditions struct {
	Label         string  `json:"label"`
	MeanChange    float64 `json:"mean_change"`
	PositiveCount int     `json:"positive_count"`
	Total         int     `json:"total"`
}

func (m MarketConditions) String() string {
	return fmt.Sprintf("%s (mean 24h change %+.2f%%, %d/%d symbols up)", m.Label, m.MeanChange, m.PositiveCount, m.Total)
}

// SummarizeMarket labels the snapshot by its mean 24h change.
func SummarizeMarket(market []model.MarketData) MarketConditions {
	mc := MarketConditions{Label: LabelNeutral, Total: len(market)}
	if len(market) == 0 {
		return mc
	}

	sum := 0.0
	for _, m := range market {
		sum += m.Change24h
		if m.Change24h > 0 {
			mc.PositiveCount++
		}
	}
	mc.MeanChange = sum / float64(len(market))

	switch {
	case mc.MeanChange > 5:
		mc.Label = LabelStrongBullish
	case mc.MeanChange > 2:
		mc.Label = LabelBullish
	case mc.MeanChange < -5:
		mc.Label = LabelStrongBearish
	case mc.MeanChange < -2:
		mc.Label = LabelBearish
	}
	return mc
}
