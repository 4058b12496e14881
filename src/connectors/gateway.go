package connectors

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"agentorchestrator/src/model"

	logger "github.com/sirupsen/logrus"
)

type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// SideFor maps a position side to the order side that opens it.
func SideFor(side model.PositionSide) OrderSide {
	if side == model.SideShort {
		return OrderSell
	}
	return OrderBuy
}

type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Quantity      float64
	ReduceOnly    bool
	ClientOrderID string
}

type OrderAck struct {
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	FilledQty     float64 `json:"filled_qty"`
	AvgPrice      float64 `json:"avg_price"`
	Status        string  `json:"status"`
}

type Account struct {
	TotalWalletBalance    float64            `json:"total_wallet_balance"`
	TotalUnrealizedProfit float64            `json:"total_unrealized_profit"`
	TotalMarginBalance    float64            `json:"total_margin_balance"`
	AvailableBalance      float64            `json:"available_balance"`
	Balances              map[string]float64 `json:"balances"`
}

// Gateway is the narrow exchange surface consumed by the trading core.
// Implementations wrap every failure in *GatewayError.
type Gateway interface {
	GetMarketData(ctx context.Context, symbols []string) ([]model.MarketData, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
	GetAccount(ctx context.Context) (*Account, error)
	PlaceOrder(ctx context.Context, order OrderRequest) (*OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	ClosePosition(ctx context.Context, symbol string) (*OrderAck, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	IsLive() bool
}

// KlineSource is implemented by gateways that can serve candle history.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// NewGateway selects the live client when credentials are configured and the
// deterministic fixture gateway otherwise. The choice is made once.
func NewGateway(cfg Config) Gateway {
	if cfg.HasCredentials() && !cfg.ForceFixture {
		logger.WithFields(logger.Fields{
			"baseURL": cfg.AsterBaseURL,
			"live":    true,
		}).Info("Using live exchange gateway")
		return NewAsterClient(cfg)
	}

	logger.WithFields(logger.Fields{
		"symbols": cfg.Symbols,
		"live":    false,
	}).Warn("No exchange credentials configured, using offline fixture gateway")
	return NewFixtureGateway(cfg.Symbols, cfg.FixtureBalance)
}

// wireFloat decodes numbers sent either as JSON numbers or strings.
// Missing, malformed, NaN and Inf values decode to 0.
type wireFloat float64

func (f *wireFloat) UnmarshalJSON(b []byte) error {
	*f = wireFloat(parseFloat(strings.Trim(string(b), `"`)))
	return nil
}

func (f wireFloat) Float() float64 {
	return float64(f)
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// wireID decodes identifiers sent either as numbers or strings.
type wireID string

func (w *wireID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*w = wireID(n.String())
		return nil
	}
	*w = wireID(strings.Trim(string(b), `"`))
	return nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
