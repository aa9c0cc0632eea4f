package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Adapter is the closed capability set every venue backend implements.
type Adapter interface {
	Name() string

	GetAccountInfo(ctx context.Context) (AccountInfo, error)

	GetMarketData(ctx context.Context, symbol string) (MarketData, error)

	GetOrderbook(ctx context.Context, symbol string) (OrderBook, error)

	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]RecentTrade, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	UpdateLeverage(ctx context.Context, symbol string, leverage int) error
}

// InstrumentMeta is the subset of precision metadata a venue can
// report live, used to refine profile-file fallbacks for coins the
// file does not list.
type InstrumentMeta struct {
	QuantityStep decimal.Decimal
	MaxLeverage  int
}

// MetadataProvider is implemented by adapters that can query live
// instrument metadata from the venue itself.
type MetadataProvider interface {
	InstrumentMetadata(ctx context.Context, symbol string) (InstrumentMeta, error)
}
