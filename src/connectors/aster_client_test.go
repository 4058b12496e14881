package connectors

// Test index:
//  1. TestIsRetryableResp verifies retry decisions for various response codes and errors.
//  2. TestSignRequest validates HMAC signature generation inputs and output.
//  3. TestGetMarketDataParsesDefensively checks string/number/NaN/missing ticker fields.
//  4. TestSignedRequestCarriesSignature ensures signed endpoints send key header and a valid signature.
//  5. TestUnsignedMarketDataHasNoSignature ensures public endpoints stay unsigned.
//  6. TestAPIErrorBecomesGatewayError maps exchange error payloads to GatewayError codes.
//  7. TestPlaceOrderParams covers the market order payload and ack decoding.
//  8. TestClosePositionSendsOppositeReduceOnly closes a short with a reduce-only BUY.
//  9. TestClosePositionNoPosition returns a NO_POSITION ack without ordering.
// 10. TestGetPositionsSkipsFlat drops zero-size rows and marks PnL.
// 11. TestGetOrderBookAndKlines covers the depth and klines readers.

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(baseURL string, cfg Config) *AsterClient {
	restyClient := resty.New()
	restyClient.SetBaseURL(baseURL)

	return &AsterClient{
		apiKey:     "test-key",
		apiSecret:  "test-secret",
		baseURL:    baseURL,
		recvWindow: 5000,
		cfg:        cfg,
		http:       restyClient,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		now:        func() time.Time { return time.UnixMilli(1700000000000) },
	}
}

func fakeResponse(code int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: code}}
}

type recordedRequest struct {
	method string
	path   string
	query  string
	apiKey string
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{
		method: req.Method,
		path:   req.URL.Path,
		query:  req.URL.RawQuery,
		apiKey: req.Header.Get("X-MBX-APIKEY"),
	})
}

// TestIsRetryableResp verifies retry decisions for assorted errors and HTTP responses.
func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: errors.New("boom"), want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "server error", resp: fakeResponse(500), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "bad request", resp: fakeResponse(400), want: false},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "nil resp", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isRetryableResp(tc.resp, tc.err)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

// TestSignRequest ensures HMAC signing matches the expected digest for a fixed payload and secret.
func TestSignRequest(t *testing.T) {
	payload := "symbol=BTCUSDT&timestamp=1700000000000&recvWindow=5000"
	expectedMac := hmac.New(sha256.New, []byte("secret"))
	expectedMac.Write([]byte(payload))
	expected := hex.EncodeToString(expectedMac.Sum(nil))

	got := signRequest(payload, "secret")
	if got != expected {
		t.Fatalf("expected signature %s, got %s", expected, got)
	}
}

func TestGetMarketDataParsesDefensively(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/ticker/24hr":
			switch r.URL.Query().Get("symbol") {
			case "BTCUSDT":
				_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"65000.5","priceChangePercent":"3.5","quoteVolume":"123456.7"}`))
			case "ETHUSDT":
				_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":3400,"priceChangePercent":"NaN"}`))
			}
		case "/fapi/v1/premiumIndex":
			_, _ = w.Write([]byte(`{"lastFundingRate":"0.0001"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{EnrichFunding: true})
	data, err := client.GetMarketData(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, data, 2)

	assert.Equal(t, 65000.5, data[0].Price)
	assert.Equal(t, 3.5, data[0].Change24h)
	assert.Equal(t, 123456.7, data[0].Volume24h)
	assert.Equal(t, "bullish", string(data[0].Sentiment))
	require.NotNil(t, data[0].FundingRate)
	assert.Equal(t, 0.0001, *data[0].FundingRate)

	assert.Equal(t, 3400.0, data[1].Price)
	assert.Equal(t, 0.0, data[1].Change24h)
	assert.Equal(t, 0.0, data[1].Volume24h)
	assert.Equal(t, "neutral", string(data[1].Sentiment))
}

func TestSignedRequestCarriesSignature(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","leverage":10}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	require.NoError(t, client.SetLeverage(context.Background(), "BTCUSDT", 10))

	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	if req.method != http.MethodPost || req.path != "/fapi/v1/leverage" {
		t.Fatalf("unexpected request %s %s", req.method, req.path)
	}
	if req.apiKey != "test-key" {
		t.Fatalf("expected api key header, got %q", req.apiKey)
	}

	idx := strings.Index(req.query, "&signature=")
	require.True(t, idx > 0, "signature missing from %s", req.query)
	payload := req.query[:idx]
	assert.Contains(t, payload, "timestamp=1700000000000")
	assert.Contains(t, payload, "recvWindow=5000")
	assert.Contains(t, payload, "leverage=10")
	assert.Equal(t, signRequest(payload, "test-secret"), req.query[idx+len("&signature="):])
}

func TestUnsignedMarketDataHasNoSignature(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`{"lastPrice":"1"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	_, err := client.GetMarketData(context.Background(), []string{"SOLUSDT"})
	require.NoError(t, err)

	require.Len(t, rec.requests, 1)
	assert.NotContains(t, rec.requests[0].query, "signature=")
	assert.Empty(t, rec.requests[0].apiKey)
}

func TestAPIErrorBecomesGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	_, err := client.PlaceOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: OrderBuy, Quantity: 1})
	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, -2019, gwErr.Code)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Contains(t, gwErr.Error(), "MARGIN_NOT_SUFFICIENT")
	assert.True(t, IsGatewayError(err))
}

func TestPlaceOrderParams(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`{"orderId":98765,"clientOrderId":"cid-1","symbol":"ETHUSDT","side":"SELL","status":"FILLED","executedQty":"0.5","avgPrice":"3501.25"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	ack, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol:        "ETHUSDT",
		Side:          OrderSell,
		Quantity:      0.5,
		ClientOrderID: "cid-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "98765", ack.OrderID)
	assert.Equal(t, 0.5, ack.FilledQty)
	assert.Equal(t, 3501.25, ack.AvgPrice)
	assert.Equal(t, "FILLED", ack.Status)

	q := rec.requests[0].query
	assert.Contains(t, q, "side=SELL")
	assert.Contains(t, q, "type=MARKET")
	assert.Contains(t, q, "quantity=0.5")
	assert.Contains(t, q, "newClientOrderId=cid-1")
	assert.NotContains(t, q, "reduceOnly")
}

func TestClosePositionSendsOppositeReduceOnly(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		switch r.URL.Path {
		case "/fapi/v2/positionRisk":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"-0.25","entryPrice":"60000","markPrice":"61000","leverage":"5"}]`))
		case "/fapi/v1/order":
			_, _ = w.Write([]byte(`{"orderId":1,"symbol":"BTCUSDT","side":"BUY","status":"FILLED","executedQty":"0.25","avgPrice":"0"}`))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	ack, err := client.ClosePosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	require.Len(t, rec.requests, 2)
	order := rec.requests[1]
	assert.Equal(t, http.MethodPost, order.method)
	assert.Contains(t, order.query, "side=BUY")
	assert.Contains(t, order.query, "reduceOnly=true")
	assert.Contains(t, order.query, "quantity=0.25")
	assert.Equal(t, 61000.0, ack.AvgPrice, "falls back to mark price when avgPrice is empty")
}

func TestClosePositionNoPosition(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"0"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	ack, err := client.ClosePosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "NO_POSITION", ack.Status)
	assert.Len(t, rec.requests, 1)
}

func TestGetPositionsSkipsFlat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"0.1","entryPrice":"60000","markPrice":"61000","leverage":"10"},
			{"symbol":"ETHUSDT","positionAmt":"0","entryPrice":"0","markPrice":"3500","leverage":"20"},
			{"symbol":"SOLUSDT","positionAmt":"-2","entryPrice":"150","markPrice":"140","leverage":"2"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "LONG", string(positions[0].Side))
	assert.InDelta(t, 1000.0, positions[0].PnL, 1e-9)
	assert.Equal(t, "SHORT", string(positions[1].Side))
	assert.InDelta(t, 40.0, positions[1].PnL, 1e-9)
}

func TestGetOrderBookAndKlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/depth":
			_, _ = w.Write([]byte(`{"bids":[["100.5","2"]],"asks":[["101","3"],["bad"]]}`))
		case "/fapi/v1/klines":
			_, _ = w.Write([]byte(`[[1700000000000,"1","2","0.5","1.5","100",1700000059999]]`))
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, Config{})
	book, err := client.GetOrderBook(context.Background(), "BTCUSDT", 5)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 100.5, book.Bids[0].Price)

	klines, err := client.GetKlines(context.Background(), "BTCUSDT", "1m", 1)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, 1.5, klines[0].Close)
	assert.Equal(t, int64(1700000000000), klines[0].OpenTime.UnixMilli())
}
