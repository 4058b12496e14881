package connectors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureGatewayIsDeterministic(t *testing.T) {
	symbols := []string{"BTCUSDT", "ETHUSDT", "UNKNOWNUSDT"}
	a := NewFixtureGateway(symbols, 0)
	b := NewFixtureGateway(symbols, 0)

	for i := 0; i < 5; i++ {
		da, err := a.GetMarketData(context.Background(), nil)
		require.NoError(t, err)
		db, err := b.GetMarketData(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, da, db, "step %d diverged", i)
	}
}

func TestFixtureGatewayPricesStayNearBase(t *testing.T) {
	g := NewFixtureGateway([]string{"BTCUSDT", "FOOUSDT"}, 1000)
	for i := 0; i < 20; i++ {
		data, err := g.GetMarketData(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, data, 2)

		assert.InDelta(t, 67000, data[0].Price, 67000*0.031)
		assert.InDelta(t, fixtureDefaultPrice, data[1].Price, fixtureDefaultPrice*0.031)
		assert.LessOrEqual(t, data[0].Change24h, 6.0)
		assert.GreaterOrEqual(t, data[0].Change24h, -6.0)
		require.NotNil(t, data[0].FundingRate)
	}
}

func TestFixtureGatewayKlinesEndAtCurrentPrice(t *testing.T) {
	g := NewFixtureGateway([]string{"ETHUSDT"}, 0)
	var source KlineSource = g

	var last float64
	for i := 0; i < 3; i++ {
		data, err := g.GetMarketData(context.Background(), nil)
		require.NoError(t, err)
		last = data[0].Price
	}

	klines, err := source.GetKlines(context.Background(), "ETHUSDT", "1m", 5)
	require.NoError(t, err)
	require.Len(t, klines, 5)
	assert.Equal(t, last, klines[4].Close)
	for i, k := range klines {
		assert.GreaterOrEqual(t, k.High, k.Open, "candle %d", i)
		assert.LessOrEqual(t, k.Low, k.Close, "candle %d", i)
		if i > 0 {
			assert.Equal(t, klines[i-1].Close, k.Open)
			assert.True(t, k.OpenTime.After(klines[i-1].OpenTime))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.GetKlines(ctx, "ETHUSDT", "1m", 5)
	assert.True(t, IsGatewayError(err))
}

func TestFixtureGatewayIsOffline(t *testing.T) {
	g := NewFixtureGateway(nil, 0)
	assert.False(t, g.IsLive())

	acc, err := g.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100000.0, acc.TotalWalletBalance)
}

func TestFixtureGatewayOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewFixtureGateway([]string{"ETHUSDT"}, 10000)
	g.SetPrice("ETHUSDT", 3000)

	require.NoError(t, g.SetLeverage(ctx, "ETHUSDT", 5))

	ack, err := g.PlaceOrder(ctx, OrderRequest{Symbol: "ETHUSDT", Side: OrderSell, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3000.0, ack.AvgPrice)
	assert.Equal(t, "FILLED", ack.Status)

	positions, err := g.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "SHORT", string(positions[0].Side))
	assert.Equal(t, 2.0, positions[0].Size)
	assert.Equal(t, 5, positions[0].Leverage)

	g.SetPrice("ETHUSDT", 2900)
	closed, err := g.ClosePosition(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BUY", closed.Side)
	assert.Equal(t, 2900.0, closed.AvgPrice)

	positions, err = g.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestFixtureGatewayCloseWithoutPositionIsNoop(t *testing.T) {
	g := NewFixtureGateway([]string{"BTCUSDT"}, 0)
	g.SetPrice("BTCUSDT", 65000)

	ack, err := g.ClosePosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "NO_POSITION", ack.Status)
	assert.Equal(t, 65000.0, ack.AvgPrice)
}

func TestFixtureGatewayRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	g := NewFixtureGateway([]string{"BTCUSDT"}, 0)

	_, err := g.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderBuy, Quantity: 0})
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, -4003, gwErr.Code)

	err = g.SetLeverage(ctx, "BTCUSDT", 500)
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, -4028, gwErr.Code)

	err = g.CancelOrder(ctx, "BTCUSDT", "42")
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, -2013, gwErr.Code)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.GetMarketData(cancelled, nil)
	assert.True(t, IsGatewayError(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWireFloatDecodesLeniently(t *testing.T) {
	cases := map[string]float64{
		`"1.5"`:  1.5,
		`2`:      2,
		`""`:     0,
		`null`:   0,
		`"NaN"`:  0,
		`"+Inf"`: 0,
		`"abc"`:  0,
	}
	for raw, want := range cases {
		var f wireFloat
		require.NoError(t, f.UnmarshalJSON([]byte(raw)))
		if f.Float() != want {
			t.Fatalf("decode %s: expected %v, got %v", raw, want, f.Float())
		}
	}
}
