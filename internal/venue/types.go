// Package venue defines a common abstraction for trading venues.
// This allows the system to execute the same decision on different
// backends (perpetual-futures exchanges, AMM pools) without changing
// the core execution logic.
package venue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes centralized perpetual-futures venues from
// decentralized AMM venues.
type Kind string

const (
	KindCEX Kind = "cex"
	KindDEX Kind = "dex"
)

// Precision holds the order-granularity rules a venue enforces for one
// instrument. Values are kept as decimals because steps like 0.001 are
// not exactly representable as floats.
type Precision struct {
	QuantityStep decimal.Decimal
	PriceTick    decimal.Decimal
	MinQuantity  decimal.Decimal
	MinNotional  decimal.Decimal
}

// Instrument is a tradable symbol on one venue together with the rules
// needed to build a legal order for it. Loaded from venue metadata and
// never mutated by trading logic.
type Instrument struct {
	Symbol      string
	Venue       Kind
	Precision   Precision
	MaxLeverage int
}

// MarketData is a point-in-time market snapshot for one instrument.
type MarketData struct {
	Symbol      string
	Price       float64
	MarkPrice   float64
	FundingRate float64
	Change24h   float64 // fraction, 0.05 = +5%
	Volume      float64
	UpdatedAt   time.Time
}

// BookLevel is one price level of an orderbook side.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook holds the top of book for one instrument, best levels first.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

// BestAsk returns the lowest ask, or 0 when the book side is empty.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// BestBid returns the highest bid, or 0 when the book side is empty.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// RecentTrade is one public fill reported by the venue.
type RecentTrade struct {
	Price float64
	Size  float64
	IsBuy bool
	Time  time.Time
}

// PositionReport is the venue's own view of an open position. Size is
// signed: positive for long, negative for short.
type PositionReport struct {
	Symbol        string
	Size          float64
	EntryPrice    float64
	Leverage      float64
	UnrealizedPnL float64
	LiquidationPx float64
}

// Side maps the signed size to a direction string; empty for flat.
func (p PositionReport) Side() string {
	switch {
	case p.Size > 0:
		return "long"
	case p.Size < 0:
		return "short"
	default:
		return ""
	}
}

// AccountInfo is the venue's account summary.
type AccountInfo struct {
	Balance   float64
	Available float64
	Currency  string
	Positions []PositionReport
	UpdatedAt time.Time
}

// Position returns the venue-reported position for symbol, if any.
func (a AccountInfo) Position(symbol string) (PositionReport, bool) {
	for _, p := range a.Positions {
		if p.Symbol == symbol && p.Size != 0 {
			return p, true
		}
	}
	return PositionReport{}, false
}

// OrderRequest carries an already venue-legal order. Quantity and price
// must have passed precision normalization before reaching an adapter;
// adapters do no rounding of their own.
type OrderRequest struct {
	Instrument    Instrument
	IsBuy         bool
	Size          float64
	Price         float64 // 0 means market execution
	Leverage      int     // 0 means keep the venue's current setting
	ReduceOnly    bool
	TimeInForce   string // "GTC" or "IOC"; empty defaults to GTC
	ClientOrderID string
}

// OrderStatus classifies the synchronous outcome of a placement.
type OrderStatus string

const (
	StatusOK       OrderStatus = "ok"
	StatusRejected OrderStatus = "rejected"
	StatusError    OrderStatus = "error"
)

// OrderResult is returned synchronously to the caller and not retained.
type OrderResult struct {
	Status       OrderStatus
	VenueOrderID string
	FilledSize   float64
	AvgFillPrice float64 // venue-reported average fill, 0 when unknown
	ErrorDetail  string
}
