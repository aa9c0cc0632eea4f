// Package market assembles the per-instrument context snapshot handed
// to the oracles: price, book, recent flow, and a rendered indicator
// summary.
package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	talib "github.com/markcheno/go-talib"

	"quorum/internal/ledger"
	"quorum/internal/oracle"
	"quorum/internal/venue"
)

// Builder fetches market context from one venue. Any venue works as a
// data source; the snapshot feeds decisions executed on all of them.
type Builder struct {
	Adapter    venue.Adapter
	TradeLimit int // recent trades to fetch, default 50
	RSIPeriod  int // default 14
	EMAFast    int // default 12
	EMASlow    int // default 26
}

func (b *Builder) tradeLimit() int {
	if b.TradeLimit > 0 {
		return b.TradeLimit
	}
	return 50
}

// BuildSnapshot gathers one instrument's context. Trade history and
// indicators are best effort: their absence degrades the prompt, it
// does not abort the cycle. Market data and orderbook are mandatory.
func (b *Builder) BuildSnapshot(ctx context.Context, symbol string, pos *oracle.PositionInfo) (oracle.Snapshot, error) {
	var snap oracle.Snapshot

	md, err := b.Adapter.GetMarketData(ctx, symbol)
	if err != nil {
		return snap, fmt.Errorf("market data for %s: %w", symbol, err)
	}
	book, err := b.Adapter.GetOrderbook(ctx, symbol)
	if err != nil {
		return snap, fmt.Errorf("orderbook for %s: %w", symbol, err)
	}

	trades, err := b.Adapter.GetRecentTrades(ctx, symbol, b.tradeLimit())
	if err != nil {
		trades = nil
	}

	snap.Market = md
	snap.OrderBook = book
	snap.RecentTrades = trades
	snap.RecentHistory = b.renderHistory(trades)
	snap.Position = pos
	return snap, nil
}

// PositionContext converts a tracked position into the oracle's view.
func PositionContext(pos ledger.Position, markPrice float64) *oracle.PositionInfo {
	info := &oracle.PositionInfo{
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		Size:       pos.Size,
		Leverage:   pos.Leverage,
	}
	if pos.EntryPrice > 0 {
		ret := (markPrice - pos.EntryPrice) / pos.EntryPrice
		if pos.Side == "short" {
			ret = -ret
		}
		info.UnrealizedPnLPct = ret * 100
	}
	if !pos.OpenedAt.IsZero() {
		info.HoldingMinutes = int(time.Since(pos.OpenedAt).Minutes())
	}
	return info
}

// renderHistory turns the public trade tape into a compact text block
// with RSI and EMA readings. Returns "" when there is not enough data
// for the slowest indicator.
func (b *Builder) renderHistory(trades []venue.RecentTrade) string {
	rsiPeriod := b.RSIPeriod
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	fast, slow := b.EMAFast, b.EMASlow
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}

	closes := make([]float64, 0, len(trades))
	var buyVol, sellVol float64
	for _, t := range trades {
		closes = append(closes, t.Price)
		if t.IsBuy {
			buyVol += t.Size
		} else {
			sellVol += t.Size
		}
	}
	need := slow
	if rsiPeriod+1 > need {
		need = rsiPeriod + 1
	}
	if len(closes) < need {
		return ""
	}

	rsi := last(talib.Rsi(closes, rsiPeriod))
	emaFast := last(talib.Ema(closes, fast))
	emaSlow := last(talib.Ema(closes, slow))

	var sb strings.Builder
	fmt.Fprintf(&sb, "RSI(%d)=%.1f EMA(%d)=%.4f EMA(%d)=%.4f", rsiPeriod, rsi, fast, emaFast, slow, emaSlow)
	switch {
	case emaFast > emaSlow:
		sb.WriteString(" trend=up")
	case emaFast < emaSlow:
		sb.WriteString(" trend=down")
	default:
		sb.WriteString(" trend=flat")
	}
	fmt.Fprintf(&sb, "\ntape: %d trades, buy_vol=%.4f sell_vol=%.4f", len(trades), buyVol, sellVol)
	return sb.String()
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
