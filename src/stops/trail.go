package stops

import (
	"github.com/shopspring/decimal"

	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
)

const DefaultLookback = 20

func IsBullish(c connectors.Kline) bool { return c.Close > c.Open }
func IsBearish(c connectors.Kline) bool { return c.Close < c.Open }

func AvgLow(candles []connectors.Kline) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(decimal.NewFromFloat(c.Low))
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

func AvgHigh(candles []connectors.Kline) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(decimal.NewFromFloat(c.High))
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

// NextStopLoss trails a stop behind closed candles. The last candle is the
// one still forming; the one before it gates the move.
//
// Long:
// - gate: previous candle bullish
// - floor: avg(low) over lookback
// - clamp: candidate <= prev.Low
// - update: SL = max(SL, candidate)
//
// Short mirrors it with highs and only moves the stop down.
func NextStopLoss(
	side model.PositionSide,
	currentSL decimal.Decimal,
	candles []connectors.Kline,
	lookback int,
) (newSL decimal.Decimal, moved bool) {
	if len(candles) < 2 {
		return currentSL, false
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if lookback > len(candles) {
		lookback = len(candles)
	}

	prev := candles[len(candles)-2]
	window := candles[len(candles)-lookback:]

	switch side {
	case model.SideLong:
		if !IsBullish(prev) {
			return currentSL, false
		}
		candidate := AvgLow(window)
		if low := decimal.NewFromFloat(prev.Low); candidate.GreaterThan(low) {
			candidate = low
		}

		if candidate.GreaterThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	case model.SideShort:
		if !IsBearish(prev) {
			return currentSL, false
		}
		candidate := AvgHigh(window)
		// never inside the last bearish candle
		if high := decimal.NewFromFloat(prev.High); candidate.LessThan(high) {
			candidate = high
		}

		if candidate.LessThan(currentSL) {
			return candidate, true
		}
		return currentSL, false

	default:
		return currentSL, false
	}
}
