package model

type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// MarketData is a transient per-cycle snapshot for one symbol.
type MarketData struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Change24h    float64   `json:"change_24h"`
	Volume24h    float64   `json:"volume_24h"`
	FundingRate  *float64  `json:"funding_rate,omitempty"`
	OpenInterest *float64  `json:"open_interest,omitempty"`
	Sentiment    Sentiment `json:"sentiment"`
}

// DeriveSentiment tags a 24h change percent.
func DeriveSentiment(change24h float64) Sentiment {
	switch {
	case change24h > 2:
		return SentimentBullish
	case change24h < -2:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// PriceMap indexes snapshot prices by symbol, skipping non-positive prices.
func PriceMap(market []MarketData) map[string]float64 {
	prices := make(map[string]float64, len(market))
	for _, m := range market {
		if m.Price > 0 {
			prices[m.Symbol] = m.Price
		}
	}
	return prices
}

func (m MarketData) Clone() MarketData {
	m.FundingRate = cloneFloat(m.FundingRate)
	m.OpenInterest = cloneFloat(m.OpenInterest)
	return m
}
