package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	logger "github.com/sirupsen/logrus"

	"agentorchestrator/src/connectors"
	"agentorchestrator/src/model"
)

// Quote is one row of the market report.
type Quote struct {
	Data      model.MarketData
	Reference float64
	BasisBps  float64
	HasRef    bool
}

// Market prints the gateway's view of each symbol next to a Binance spot
// reference close, so a skewed perp price is visible before trading.
type Market struct {
	Log       *logger.Entry
	Gateway   connectors.Gateway
	Config    *Config
	Out       io.Writer
	reference goex.API
}

func (m *Market) Start(ctx context.Context, symbols []string) error {
	if m.Config == nil {
		m.Config = GetConfig()
	}
	if m.Log == nil {
		m.Log = logger.WithField("cmd", "market")
	}
	if m.reference == nil && m.Config.ReferenceEnabled {
		m.reference = m.newBinanceInstance()
	}

	quotes, err := m.Quotes(ctx, symbols)
	if err != nil {
		return err
	}
	_, err = io.WriteString(m.Out, Format(quotes, m.Gateway.IsLive()))
	return err
}

func (m *Market) newBinanceInstance() *binance.Binance {
	endpoint := binance.GLOBAL_API_BASE_URL
	if m.Config.ReferenceURL != "" {
		endpoint = m.Config.ReferenceURL
	}
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   endpoint,
	}
	return binance.NewWithConfig(apiConfig)
}

// pairFor splits BTCUSDT into BTC/USDT. ok is false when the quote does not match.
func pairFor(symbol, quote string) (goex.CurrencyPair, bool) {
	base := strings.TrimSuffix(symbol, quote)
	if base == symbol || base == "" {
		return goex.CurrencyPair{}, false
	}
	return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), true
}

func (m *Market) referenceClose(symbol string) (float64, bool) {
	if m.reference == nil {
		return 0, false
	}
	pair, ok := pairFor(symbol, m.Config.Quote)
	if !ok {
		return 0, false
	}

	klines, err := m.reference.GetKlineRecords(pair, goex.KLINE_PERIOD_1MIN, 1)
	if err != nil || len(klines) == 0 {
		m.Log.WithError(err).WithField("symbol", symbol).Warn("reference price unavailable")
		return 0, false
	}
	return klines[len(klines)-1].Close, true
}

// Quotes fetches the gateway snapshot and attaches reference prices.
func (m *Market) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	data, err := m.Gateway.GetMarketData(ctx, symbols)
	if err != nil {
		m.Log.WithError(err).Error("failed to fetch market data")
		return nil, err
	}

	quotes := make([]Quote, 0, len(data))
	for _, md := range data {
		q := Quote{Data: md}
		if ref, ok := m.referenceClose(md.Symbol); ok && ref > 0 {
			q.Reference = ref
			q.HasRef = true
			q.BasisBps = (md.Price - ref) / ref * 10000
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func Format(quotes []Quote, live bool) string {
	var b strings.Builder
	source := "fixture"
	if live {
		source = "live"
	}
	fmt.Fprintf(&b, "source=%s symbols=%d\n", source, len(quotes))
	for _, q := range quotes {
		funding := "n/a"
		if q.Data.FundingRate != nil {
			funding = fmt.Sprintf("%.6f", *q.Data.FundingRate)
		}
		ref := "n/a"
		if q.HasRef {
			ref = fmt.Sprintf("%.6g (%+.1f bps)", q.Reference, q.BasisBps)
		}
		fmt.Fprintf(&b, "%-10s price=%-12.6g change=%+6.2f%% funding=%-10s sentiment=%-8s ref=%s\n",
			q.Data.Symbol, q.Data.Price, q.Data.Change24h, funding, q.Data.Sentiment, ref)
	}
	return b.String()
}
