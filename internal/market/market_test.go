package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/ledger"
	"quorum/internal/venue"
)

type stubAdapter struct {
	md        venue.MarketData
	book      venue.OrderBook
	trades    []venue.RecentTrade
	mdErr     error
	tradesErr error
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	return venue.AccountInfo{}, nil
}

func (s *stubAdapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	return s.md, s.mdErr
}

func (s *stubAdapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	return s.book, nil
}

func (s *stubAdapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	return s.trades, s.tradesErr
}

func (s *stubAdapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}

func (s *stubAdapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func risingTape(n int) []venue.RecentTrade {
	tape := make([]venue.RecentTrade, 0, n)
	for i := 0; i < n; i++ {
		tape = append(tape, venue.RecentTrade{
			Price: 100 + float64(i),
			Size:  0.5,
			IsBuy: i%2 == 0,
		})
	}
	return tape
}

func TestBuildSnapshotIncludesIndicators(t *testing.T) {
	s := &stubAdapter{
		md:     venue.MarketData{Symbol: "ETH", Price: 135},
		book:   venue.OrderBook{Asks: []venue.BookLevel{{Price: 135.1}}, Bids: []venue.BookLevel{{Price: 135}}},
		trades: risingTape(40),
	}
	b := &Builder{Adapter: s}

	snap, err := b.BuildSnapshot(context.Background(), "ETH", nil)
	require.NoError(t, err)
	assert.Equal(t, 135.0, snap.Market.Price)
	assert.Len(t, snap.RecentTrades, 40)
	assert.Contains(t, snap.RecentHistory, "RSI(14)")
	assert.Contains(t, snap.RecentHistory, "trend=up")
	assert.Contains(t, snap.RecentHistory, "40 trades")
}

func TestBuildSnapshotShortTapeSkipsIndicators(t *testing.T) {
	s := &stubAdapter{
		md:     venue.MarketData{Symbol: "ETH", Price: 135},
		trades: risingTape(10),
	}
	b := &Builder{Adapter: s}

	snap, err := b.BuildSnapshot(context.Background(), "ETH", nil)
	require.NoError(t, err)
	assert.Empty(t, snap.RecentHistory)
}

func TestBuildSnapshotTradeErrorIsNotFatal(t *testing.T) {
	s := &stubAdapter{
		md:        venue.MarketData{Symbol: "ETH", Price: 135},
		tradesErr: assert.AnError,
	}
	b := &Builder{Adapter: s}

	snap, err := b.BuildSnapshot(context.Background(), "ETH", nil)
	require.NoError(t, err)
	assert.Empty(t, snap.RecentTrades)
	assert.Empty(t, snap.RecentHistory)
}

func TestBuildSnapshotMarketErrorIsFatal(t *testing.T) {
	s := &stubAdapter{mdErr: assert.AnError}
	b := &Builder{Adapter: s}

	_, err := b.BuildSnapshot(context.Background(), "ETH", nil)
	assert.Error(t, err)
}

func TestPositionContext(t *testing.T) {
	pos := ledger.Position{
		Side:       "short",
		EntryPrice: 2000,
		Size:       0.5,
		Leverage:   3,
		OpenedAt:   time.Now().Add(-90 * time.Minute),
	}
	info := PositionContext(pos, 1900)
	assert.Equal(t, "short", info.Side)
	assert.InDelta(t, 5.0, info.UnrealizedPnLPct, 1e-9)
	assert.Equal(t, 90, info.HoldingMinutes)
}
