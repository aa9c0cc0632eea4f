package dex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/venue"
)

type fakeSwapper struct {
	price    float64
	quoteBal float64
	holdings map[string]float64

	swaps []struct {
		coin   string
		in     float64
		minOut float64
		buy    bool
	}
}

func (f *fakeSwapper) QuoteSwap(ctx context.Context, coin string, amountIn float64, buy bool) (Quote, error) {
	out := amountIn / f.price
	if !buy {
		out = amountIn * f.price
	}
	return Quote{Price: f.price, AmountOut: out, Route: "direct"}, nil
}

func (f *fakeSwapper) Swap(ctx context.Context, coin string, amountIn, minOut float64, buy bool) (string, float64, error) {
	f.swaps = append(f.swaps, struct {
		coin   string
		in     float64
		minOut float64
		buy    bool
	}{coin, amountIn, minOut, buy})
	q, _ := f.QuoteSwap(ctx, coin, amountIn, buy)
	return "0xabc", q.AmountOut, nil
}

func (f *fakeSwapper) Balances(ctx context.Context) (float64, map[string]float64, error) {
	return f.quoteBal, f.holdings, nil
}

func req(isBuy, reduceOnly bool, size float64) venue.OrderRequest {
	return venue.OrderRequest{
		Instrument: venue.Instrument{Symbol: "SOL"},
		IsBuy:      isBuy,
		Size:       size,
		ReduceOnly: reduceOnly,
	}
}

func TestBuySwapSetsMinOut(t *testing.T) {
	f := &fakeSwapper{price: 100, quoteBal: 1000}
	a := New("jupiter", f, 0.01)

	res, err := a.PlaceOrder(context.Background(), req(true, false, 2))
	require.NoError(t, err)
	assert.Equal(t, venue.StatusOK, res.Status)
	require.Len(t, f.swaps, 1)
	assert.True(t, f.swaps[0].buy)
	// 2 SOL * 100, then a 1% min-out tolerance on the 2 SOL received.
	assert.InDelta(t, 200, f.swaps[0].in, 1e-9)
	assert.InDelta(t, 1.98, f.swaps[0].minOut, 1e-9)
}

func TestShortWithoutReduceOnlyRejected(t *testing.T) {
	f := &fakeSwapper{price: 100}
	a := New("jupiter", f, 0)

	res, err := a.PlaceOrder(context.Background(), req(false, false, 1))
	assert.True(t, venue.IsFatal(err))
	assert.Equal(t, venue.StatusRejected, res.Status)
	assert.Empty(t, f.swaps)
}

func TestReduceOnlySellAllowed(t *testing.T) {
	f := &fakeSwapper{price: 100}
	a := New("jupiter", f, 0)

	res, err := a.PlaceOrder(context.Background(), req(false, true, 2))
	require.NoError(t, err)
	assert.Equal(t, venue.StatusOK, res.Status)
	require.Len(t, f.swaps, 1)
	assert.False(t, f.swaps[0].buy)
	assert.InDelta(t, 2, f.swaps[0].in, 1e-9)
}

func TestAccountInfoReportsHoldingsAsLongs(t *testing.T) {
	f := &fakeSwapper{price: 100, quoteBal: 500, holdings: map[string]float64{"sol": 3}}
	a := New("jupiter", f, 0)

	info, err := a.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500.0, info.Balance)
	require.Len(t, info.Positions, 1)
	assert.Equal(t, "SOL", info.Positions[0].Symbol)
	assert.Equal(t, "long", info.Positions[0].Side())
	assert.Equal(t, 1.0, info.Positions[0].Leverage)
}

func TestUpdateLeverageRejectsAboveOne(t *testing.T) {
	a := New("jupiter", &fakeSwapper{price: 1}, 0)
	assert.NoError(t, a.UpdateLeverage(context.Background(), "SOL", 1))
	assert.Error(t, a.UpdateLeverage(context.Background(), "SOL", 3))
}
