package connectors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"agentorchestrator/src/model"
)

var fixtureBasePrices = map[string]float64{
	"BTCUSDT":   67000,
	"ETHUSDT":   3500,
	"SOLUSDT":   150,
	"BNBUSDT":   590,
	"ASTERUSDT": 1.2,
	"XRPUSDT":   0.55,
	"DOGEUSDT":  0.12,
}

const fixtureDefaultPrice = 100.0

var fixtureEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixturePosition struct {
	amount     float64
	entryPrice float64
	leverage   int
}

// FixtureGateway is the offline gateway. Prices follow a deterministic wave
// driven by a step counter that advances on every GetMarketData call, so two
// gateways fed the same call sequence return identical data.
type FixtureGateway struct {
	mu        sync.Mutex
	symbols   []string
	balance   float64
	step      int
	prices    map[string]float64
	overrides map[string]float64
	positions map[string]*fixturePosition
	leverage  map[string]int
	orderSeq  int
}

func NewFixtureGateway(symbols []string, balance float64) *FixtureGateway {
	if balance <= 0 {
		balance = 100000
	}
	return &FixtureGateway{
		symbols:   append([]string(nil), symbols...),
		balance:   balance,
		prices:    make(map[string]float64),
		overrides: make(map[string]float64),
		positions: make(map[string]*fixturePosition),
		leverage:  make(map[string]int),
	}
}

func (f *FixtureGateway) IsLive() bool {
	return false
}

// SetPrice pins a symbol's price until ClearPrice is called.
func (f *FixtureGateway) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[symbol] = price
	f.prices[symbol] = price
}

func (f *FixtureGateway) ClearPrice(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, symbol)
}

func symbolPhase(symbol string) float64 {
	h := 0
	for _, r := range symbol {
		h = (h*31 + int(r)) % 997
	}
	return float64(h) / 997 * 2 * math.Pi
}

func basePrice(symbol string) float64 {
	if p, ok := fixtureBasePrices[symbol]; ok {
		return p
	}
	return fixtureDefaultPrice
}

func (f *FixtureGateway) snapshot(symbol string, step int) model.MarketData {
	phase := symbolPhase(symbol)
	s := float64(step)
	base := basePrice(symbol)

	price := base * (1 + 0.03*math.Sin(s*0.7+phase))
	if override, ok := f.overrides[symbol]; ok {
		price = override
	}

	change := 6 * math.Sin(s*0.35+phase*1.3)
	volume := base * 1e4 * (1 + 0.25*math.Cos(s*0.5+phase))
	funding := 0.0001 * math.Sin(s*0.2+phase)
	oi := base * 500 * (1 + 0.1*math.Sin(s*0.15+phase))

	md := model.MarketData{
		Symbol:       symbol,
		Price:        roundTo(price, 6),
		Change24h:    roundTo(change, 4),
		Volume24h:    roundTo(volume, 2),
		FundingRate:  &funding,
		OpenInterest: &oi,
	}
	md.Sentiment = model.DeriveSentiment(md.Change24h)
	return md
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func (f *FixtureGateway) GetMarketData(ctx context.Context, symbols []string) ([]model.MarketData, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "GetMarketData", Err: err}
	}
	if len(symbols) == 0 {
		symbols = f.symbols
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.step++
	out := make([]model.MarketData, 0, len(symbols))
	for _, symbol := range symbols {
		md := f.snapshot(symbol, f.step)
		f.prices[symbol] = md.Price
		out = append(out, md)
	}
	return out, nil
}

func (f *FixtureGateway) priceLocked(symbol string) float64 {
	if p, ok := f.prices[symbol]; ok && p > 0 {
		return p
	}
	return f.snapshot(symbol, f.step).Price
}

func (f *FixtureGateway) GetPositions(ctx context.Context) ([]model.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "GetPositions", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Position, 0, len(f.positions))
	for symbol, fp := range f.positions {
		side := model.SideLong
		if fp.amount < 0 {
			side = model.SideShort
		}
		p := model.Position{
			Symbol:     symbol,
			Side:       side,
			Size:       math.Abs(fp.amount),
			EntryPrice: fp.entryPrice,
			Leverage:   fp.leverage,
		}
		p.Mark(f.priceLocked(symbol))
		out = append(out, p)
	}
	return out, nil
}

func (f *FixtureGateway) GetAccount(ctx context.Context) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "GetAccount", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	margin, unrealized := 0.0, 0.0
	for symbol, fp := range f.positions {
		price := f.priceLocked(symbol)
		lev := math.Max(1, float64(fp.leverage))
		margin += math.Abs(fp.amount) * price / lev
		unrealized += (price - fp.entryPrice) * fp.amount
	}

	return &Account{
		TotalWalletBalance:    f.balance,
		TotalUnrealizedProfit: unrealized,
		TotalMarginBalance:    f.balance + unrealized,
		AvailableBalance:      math.Max(0, f.balance-margin),
		Balances:              map[string]float64{"USDT": f.balance},
	}, nil
}

func (f *FixtureGateway) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "PlaceOrder", Err: err}
	}
	if order.Quantity <= 0 {
		return nil, &GatewayError{Op: "PlaceOrder", Code: -4003, Err: errors.New("quantity must be positive")}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	price := f.priceLocked(order.Symbol)
	signed := order.Quantity
	if order.Side == OrderSell {
		signed = -signed
	}

	fp, ok := f.positions[order.Symbol]
	switch {
	case !ok:
		if !order.ReduceOnly {
			lev := f.leverage[order.Symbol]
			if lev < 1 {
				lev = 1
			}
			f.positions[order.Symbol] = &fixturePosition{amount: signed, entryPrice: price, leverage: lev}
		}
	case math.Signbit(fp.amount) == math.Signbit(signed) && !order.ReduceOnly:
		total := fp.amount + signed
		fp.entryPrice = (fp.entryPrice*math.Abs(fp.amount) + price*math.Abs(signed)) / math.Abs(total)
		fp.amount = total
	default:
		prev := fp.amount
		fp.amount += signed
		switch {
		case math.Abs(fp.amount) < 1e-12:
			delete(f.positions, order.Symbol)
		case math.Signbit(prev) != math.Signbit(fp.amount):
			if order.ReduceOnly {
				delete(f.positions, order.Symbol)
			} else {
				fp.entryPrice = price
			}
		}
	}

	f.orderSeq++
	return &OrderAck{
		OrderID:       fmt.Sprintf("fixture-%d", f.orderSeq),
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		FilledQty:     order.Quantity,
		AvgPrice:      price,
		Status:        "FILLED",
	}, nil
}

func (f *FixtureGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := ctx.Err(); err != nil {
		return &GatewayError{Op: "CancelOrder", Err: err}
	}
	// Fixture orders fill immediately; there is never anything resting to cancel.
	return &GatewayError{Op: "CancelOrder", Code: -2013, Err: fmt.Errorf("order %s on %s not found", orderID, symbol)}
}

func (f *FixtureGateway) ClosePosition(ctx context.Context, symbol string) (*OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "ClosePosition", Err: err}
	}

	f.mu.Lock()
	fp, ok := f.positions[symbol]
	price := f.priceLocked(symbol)
	f.mu.Unlock()

	if !ok {
		return &OrderAck{Symbol: symbol, Status: "NO_POSITION", AvgPrice: price}, nil
	}

	side := OrderSell
	if fp.amount < 0 {
		side = OrderBuy
	}
	ack, err := f.PlaceOrder(ctx, OrderRequest{Symbol: symbol, Side: side, Quantity: math.Abs(fp.amount), ReduceOnly: true})
	if err != nil {
		return nil, newGatewayError("ClosePosition", "", err)
	}
	return ack, nil
}

func (f *FixtureGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := ctx.Err(); err != nil {
		return &GatewayError{Op: "SetLeverage", Err: err}
	}
	if leverage < 1 || leverage > 125 {
		return &GatewayError{Op: "SetLeverage", Code: -4028, Err: fmt.Errorf("invalid leverage %d", leverage)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverage[symbol] = leverage
	return nil
}

// GetKlines synthesizes one-minute candles ending at the current step. Each
// candle opens at the previous close and closes at the price for its step.
func (f *FixtureGateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Op: "GetKlines", Err: err}
	}
	if limit <= 0 {
		limit = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	base := basePrice(symbol)
	phase := symbolPhase(symbol)
	priceAt := func(step int) float64 {
		return base * (1 + 0.03*math.Sin(float64(step)*0.7+phase))
	}

	out := make([]Kline, 0, limit)
	start := f.step - limit + 1
	for step := start; step <= f.step; step++ {
		o, cl := priceAt(step-1), priceAt(step)
		spread := base * 0.002
		out = append(out, Kline{
			OpenTime: fixtureEpoch.Add(time.Duration(step) * time.Minute),
			Open:     roundTo(o, 6),
			High:     roundTo(math.Max(o, cl)+spread, 6),
			Low:      roundTo(math.Min(o, cl)-spread, 6),
			Close:    roundTo(cl, 6),
			Volume:   roundTo(base*10*(1+0.25*math.Cos(float64(step)*0.5+phase)), 2),
		})
	}
	return out, nil
}
