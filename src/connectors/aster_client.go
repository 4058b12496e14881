// REST client for Aster perpetual futures (Binance-compatible /fapi API).
// Resty with internal retry, HMAC-SHA256 query signing for account/order endpoints.
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"agentorchestrator/src/model"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
	defaultAsterBaseURL    = "https://fapi.asterdex.com"
)

// -----------------------------
// WIRE STRUCTURES
// -----------------------------
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type ticker24h struct {
	Symbol             string    `json:"symbol"`
	LastPrice          wireFloat `json:"lastPrice"`
	PriceChangePercent wireFloat `json:"priceChangePercent"`
	QuoteVolume        wireFloat `json:"quoteVolume"`
	Volume             wireFloat `json:"volume"`
}

type premiumIndex struct {
	Symbol          string    `json:"symbol"`
	MarkPrice       wireFloat `json:"markPrice"`
	LastFundingRate wireFloat `json:"lastFundingRate"`
}

type openInterest struct {
	Symbol       string    `json:"symbol"`
	OpenInterest wireFloat `json:"openInterest"`
}

type positionRisk struct {
	Symbol           string    `json:"symbol"`
	PositionAmt      wireFloat `json:"positionAmt"`
	EntryPrice       wireFloat `json:"entryPrice"`
	MarkPrice        wireFloat `json:"markPrice"`
	UnRealizedProfit wireFloat `json:"unRealizedProfit"`
	Leverage         wireFloat `json:"leverage"`
	PositionSide     string    `json:"positionSide"`
}

type accountInfo struct {
	TotalWalletBalance    wireFloat `json:"totalWalletBalance"`
	TotalUnrealizedProfit wireFloat `json:"totalUnrealizedProfit"`
	TotalMarginBalance    wireFloat `json:"totalMarginBalance"`
	AvailableBalance      wireFloat `json:"availableBalance"`
	Assets                []struct {
		Asset            string    `json:"asset"`
		WalletBalance    wireFloat `json:"walletBalance"`
		AvailableBalance wireFloat `json:"availableBalance"`
	} `json:"assets"`
}

type orderResponse struct {
	OrderID       wireID    `json:"orderId"`
	ClientOrderID string    `json:"clientOrderId"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Status        string    `json:"status"`
	ExecutedQty   wireFloat `json:"executedQty"`
	AvgPrice      wireFloat `json:"avgPrice"`
}

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

type Kline struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// -----------------------------
// AUTHENTICATED CLIENT
// -----------------------------
type AsterClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	cfg        Config
	http       *resty.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == http.StatusTooManyRequests {
		return true
	}
	if code == http.StatusRequestTimeout {
		return true
	}
	return false
}

func NewAsterClient(cfg Config) *AsterClient {
	baseURL := cfg.AsterBaseURL
	if baseURL == "" {
		baseURL = defaultAsterBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts-1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 10
	}

	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5000
	}

	return &AsterClient{
		apiKey:     cfg.AsterAPIKey,
		apiSecret:  cfg.AsterAPISecret,
		baseURL:    baseURL,
		recvWindow: recvWindow,
		cfg:        cfg,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps))),
		now:        time.Now,
	}
}

func (c *AsterClient) IsLive() bool {
	return true
}

func signRequest(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest sends one call. Signed calls carry timestamp, recvWindow and the
// HMAC of the full query string; public market data calls are sent unsigned.
func (c *AsterClient) doRequest(ctx context.Context, op, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &GatewayError{Op: op, Endpoint: path, Err: err}
	}

	query := params.Encode()
	req := c.http.R().SetContext(ctx)

	if signed {
		if c.apiKey == "" || c.apiSecret == "" {
			return nil, &GatewayError{Op: op, Endpoint: path, Err: errors.New("missing API credentials")}
		}
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		if query != "" {
			query += "&"
		}
		query += "timestamp=" + ts + "&recvWindow=" + strconv.FormatInt(c.recvWindow, 10)
		query += "&signature=" + signRequest(query, c.apiSecret)
		req = req.SetHeader("X-MBX-APIKEY", c.apiKey)
	}

	// Appended to the path rather than set as query params so resty does not
	// re-sort the keys after signing.
	target := path
	if query != "" {
		target += "?" + query
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return nil, &GatewayError{Op: op, Endpoint: path, Err: err}
	}

	raw := resp.Body()

	if resp.StatusCode() != http.StatusOK {
		gwErr := &GatewayError{
			Op:         op,
			Endpoint:   path,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw)),
		}
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != 0 {
			gwErr.Code = apiErr.Code
			gwErr.Err = errors.New(apiErr.Msg)
		}
		return nil, gwErr
	}

	return raw, nil
}

func (c *AsterClient) getJSON(ctx context.Context, op, path string, params url.Values, signed bool, out interface{}) error {
	raw, err := c.doRequest(ctx, op, http.MethodGet, path, params, signed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &GatewayError{Op: op, Endpoint: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// -----------------------------
// MARKET DATA METHODS
// -----------------------------

func (c *AsterClient) GetMarketData(ctx context.Context, symbols []string) ([]model.MarketData, error) {
	out := make([]model.MarketData, 0, len(symbols))

	for _, symbol := range symbols {
		params := url.Values{}
		params.Set("symbol", symbol)

		var tk ticker24h
		if err := c.getJSON(ctx, "GetMarketData", "/fapi/v1/ticker/24hr", params, false, &tk); err != nil {
			return nil, err
		}

		md := model.MarketData{
			Symbol:    symbol,
			Price:     tk.LastPrice.Float(),
			Change24h: tk.PriceChangePercent.Float(),
			Volume24h: tk.QuoteVolume.Float(),
		}
		md.Sentiment = model.DeriveSentiment(md.Change24h)

		if c.cfg.EnrichFunding {
			var pi premiumIndex
			if err := c.getJSON(ctx, "GetMarketData", "/fapi/v1/premiumIndex", params, false, &pi); err != nil {
				logger.WithError(err).WithField("symbol", symbol).Warn("Funding rate unavailable")
			} else {
				funding := pi.LastFundingRate.Float()
				md.FundingRate = &funding
			}
		}

		if c.cfg.EnrichOpenInter {
			var oi openInterest
			if err := c.getJSON(ctx, "GetMarketData", "/fapi/v1/openInterest", params, false, &oi); err != nil {
				logger.WithError(err).WithField("symbol", symbol).Warn("Open interest unavailable")
			} else {
				v := oi.OpenInterest.Float()
				md.OpenInterest = &v
			}
		}

		out = append(out, md)
	}

	return out, nil
}

func (c *AsterClient) GetOrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw struct {
		Bids [][]wireFloat `json:"bids"`
		Asks [][]wireFloat `json:"asks"`
	}
	if err := c.getJSON(ctx, "GetOrderBook", "/fapi/v1/depth", params, false, &raw); err != nil {
		return nil, err
	}

	toLevels := func(rows [][]wireFloat) []BookLevel {
		levels := make([]BookLevel, 0, len(rows))
		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			levels = append(levels, BookLevel{Price: row[0].Float(), Quantity: row[1].Float()})
		}
		return levels
	}

	return &OrderBook{Symbol: symbol, Bids: toLevels(raw.Bids), Asks: toLevels(raw.Asks)}, nil
}

func (c *AsterClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, "GetKlines", "/fapi/v1/klines", params, false, &rows); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		_ = json.Unmarshal(row[0], &openTime)

		values := make([]wireFloat, 5)
		for i := range values {
			_ = json.Unmarshal(row[i+1], &values[i])
		}

		klines = append(klines, Kline{
			OpenTime: time.UnixMilli(openTime).UTC(),
			Open:     values[0].Float(),
			High:     values[1].Float(),
			Low:      values[2].Float(),
			Close:    values[3].Float(),
			Volume:   values[4].Float(),
		})
	}
	return klines, nil
}

// GetExchangeInfo returns the raw exchange info document.
func (c *AsterClient) GetExchangeInfo(ctx context.Context) (map[string]interface{}, error) {
	var info map[string]interface{}
	if err := c.getJSON(ctx, "GetExchangeInfo", "/fapi/v1/exchangeInfo", nil, false, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// -----------------------------
// ACCOUNT & POSITION METHODS
// -----------------------------

func (c *AsterClient) GetAccount(ctx context.Context) (*Account, error) {
	var info accountInfo
	if err := c.getJSON(ctx, "GetAccount", "/fapi/v2/account", nil, true, &info); err != nil {
		return nil, err
	}

	acc := &Account{
		TotalWalletBalance:    info.TotalWalletBalance.Float(),
		TotalUnrealizedProfit: info.TotalUnrealizedProfit.Float(),
		TotalMarginBalance:    info.TotalMarginBalance.Float(),
		AvailableBalance:      info.AvailableBalance.Float(),
		Balances:              make(map[string]float64, len(info.Assets)),
	}
	for _, a := range info.Assets {
		acc.Balances[a.Asset] = a.WalletBalance.Float()
	}
	return acc, nil
}

func (c *AsterClient) positionRisk(ctx context.Context, symbol string) ([]positionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var rows []positionRisk
	if err := c.getJSON(ctx, "GetPositions", "/fapi/v2/positionRisk", params, true, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *AsterClient) GetPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := c.positionRisk(ctx, "")
	if err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(rows))
	for _, r := range rows {
		amt := r.PositionAmt.Float()
		if amt == 0 {
			continue
		}

		side := model.SideLong
		if amt < 0 {
			side = model.SideShort
		}

		p := model.Position{
			Symbol:     r.Symbol,
			Side:       side,
			Size:       math.Abs(amt),
			EntryPrice: r.EntryPrice.Float(),
			Leverage:   int(r.Leverage.Float()),
		}
		p.Mark(r.MarkPrice.Float())
		positions = append(positions, p)
	}
	return positions, nil
}

// -----------------------------
// TRADING METHODS
// -----------------------------

func (c *AsterClient) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderAck, error) {
	if order.Quantity <= 0 {
		return nil, &GatewayError{Op: "PlaceOrder", Endpoint: "/fapi/v1/order", Code: -4003, Err: errors.New("quantity must be positive")}
	}

	clientID := order.ClientOrderID
	if clientID == "" {
		clientID = "ao-" + uuid.NewString()[:18]
	}

	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", formatQty(order.Quantity))
	params.Set("newClientOrderId", clientID)
	params.Set("newOrderRespType", "RESULT")
	if order.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	logger.WithFields(logger.Fields{
		"symbol":     order.Symbol,
		"side":       order.Side,
		"qty":        order.Quantity,
		"reduceOnly": order.ReduceOnly,
	}).Info("Placing market order")

	raw, err := c.doRequest(ctx, "PlaceOrder", http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &GatewayError{Op: "PlaceOrder", Endpoint: "/fapi/v1/order", Err: fmt.Errorf("decode response: %w", err)}
	}

	return &OrderAck{
		OrderID:       string(resp.OrderID),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          resp.Side,
		FilledQty:     resp.ExecutedQty.Float(),
		AvgPrice:      resp.AvgPrice.Float(),
		Status:        resp.Status,
	}, nil
}

func (c *AsterClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := c.doRequest(ctx, "CancelOrder", http.MethodDelete, "/fapi/v1/order", params, true)
	return err
}

// ClosePosition closes the open position on symbol with a reduce-only MARKET
// order in the opposite direction. A flat symbol returns a NO_POSITION ack.
func (c *AsterClient) ClosePosition(ctx context.Context, symbol string) (*OrderAck, error) {
	rows, err := c.positionRisk(ctx, symbol)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		if r.Symbol != symbol || r.PositionAmt.Float() == 0 {
			continue
		}

		amt := r.PositionAmt.Float()
		closeSide := OrderSell
		if amt < 0 {
			closeSide = OrderBuy
		}

		logger.WithFields(logger.Fields{
			"symbol":    symbol,
			"size":      amt,
			"closeSide": closeSide,
		}).Info("Closing position")

		ack, err := c.PlaceOrder(ctx, OrderRequest{
			Symbol:     symbol,
			Side:       closeSide,
			Quantity:   math.Abs(amt),
			ReduceOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to close position %s: %w", symbol, err)
		}
		if ack.AvgPrice == 0 {
			ack.AvgPrice = r.MarkPrice.Float()
		}
		return ack, nil
	}

	return &OrderAck{Symbol: symbol, Status: "NO_POSITION"}, nil
}

func (c *AsterClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	_, err := c.doRequest(ctx, "SetLeverage", http.MethodPost, "/fapi/v1/leverage", params, true)
	return err
}
