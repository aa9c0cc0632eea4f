package oracle

import (
	"context"

	"quorum/internal/venue"
)

// PositionInfo is the open-position context handed to an oracle so it
// can reason about exits as well as entries.
type PositionInfo struct {
	Side             string
	EntryPrice       float64
	Size             float64
	Leverage         float64
	UnrealizedPnLPct float64
	HoldingMinutes   int
}

// Snapshot bundles the market context for one analysis call.
// RecentHistory is an optional pre-rendered text block (candle/indicator
// summary); an explicit field here instead of any prompt patching.
type Snapshot struct {
	Market        venue.MarketData
	OrderBook     venue.OrderBook
	RecentTrades  []venue.RecentTrade
	RecentHistory string
	Position      *PositionInfo
}

// Oracle is a black-box decision source. Implementations fail closed:
// on any internal error short of transport failure they return a
// hold/0 decision rather than an error. Transport failures and
// timeouts surface as errors so the caller can exclude the vote.
type Oracle interface {
	Name() string
	Analyze(ctx context.Context, inst venue.Instrument, snap Snapshot) (Decision, error)
}
