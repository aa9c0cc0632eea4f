// Package dex adapts an on-chain swap venue to the common adapter
// interface. Swaps are spot-style: no leverage, no reduce-only flag,
// slippage protection expressed as a minimum-out amount on the swap
// itself. The chain-specific mechanics (routing, gas, signing) live
// behind the Swapper interface so each chain integration stays a
// plug-in.
package dex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quorum/internal/venue"
)

// Quote is one priced swap route.
type Quote struct {
	Price     float64 // quote tokens per base token
	AmountOut float64
	Route     string
}

// Swapper is the minimal surface an on-chain venue integration
// provides. Implementations wrap a specific router or aggregator.
type Swapper interface {
	// QuoteSwap prices base->quote (sell) or quote->base (buy).
	QuoteSwap(ctx context.Context, coin string, amountIn float64, buy bool) (Quote, error)
	// Swap executes with a minimum acceptable output; the transaction
	// reverts on-chain instead of filling below minOut.
	Swap(ctx context.Context, coin string, amountIn, minOut float64, buy bool) (txID string, amountOut float64, err error)
	// Balances returns quote-token balance and per-coin base holdings.
	Balances(ctx context.Context) (quoteBalance float64, holdings map[string]float64, err error)
}

// Adapter exposes a Swapper as a venue. Long positions are token
// holdings; shorts are not supported.
type Adapter struct {
	name     string
	swapper  Swapper
	slippage float64 // min-out tolerance, default 0.5%

	mu      sync.Mutex
	entries map[string]float64 // coin -> avg entry price, local bookkeeping
}

func New(name string, swapper Swapper, slippage float64) *Adapter {
	if slippage <= 0 {
		slippage = 0.005
	}
	if name == "" {
		name = "dex"
	}
	return &Adapter{
		name:     name,
		swapper:  swapper,
		slippage: slippage,
		entries:  make(map[string]float64),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	var info venue.AccountInfo
	quote, holdings, err := a.swapper.Balances(ctx)
	if err != nil {
		return info, venue.Transient(a.name, "account", err)
	}
	info.Balance = quote
	info.Available = quote
	info.Currency = "USDC"
	info.UpdatedAt = time.Now()
	a.mu.Lock()
	for coin, amount := range holdings {
		if amount <= 0 {
			continue
		}
		coin = strings.ToUpper(coin)
		info.Positions = append(info.Positions, venue.PositionReport{
			Symbol:     coin,
			Size:       amount,
			EntryPrice: a.entries[coin],
			Leverage:   1,
		})
	}
	a.mu.Unlock()
	return info, nil
}

func (a *Adapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	coin := strings.ToUpper(strings.TrimSpace(symbol))
	q, err := a.swapper.QuoteSwap(ctx, coin, 1, false)
	if err != nil {
		return venue.MarketData{}, venue.Transient(a.name, "market_data", err)
	}
	return venue.MarketData{
		Symbol:    coin,
		Price:     q.Price,
		MarkPrice: q.Price,
		UpdatedAt: time.Now(),
	}, nil
}

// GetOrderbook synthesizes a one-level book around the swap quote. AMM
// venues have no resting orders; the quote already embeds the pool
// depth at this size.
func (a *Adapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	md, err := a.GetMarketData(ctx, symbol)
	if err != nil {
		return venue.OrderBook{}, err
	}
	return venue.OrderBook{
		Symbol: md.Symbol,
		Bids:   []venue.BookLevel{{Price: md.Price, Size: 0}},
		Asks:   []venue.BookLevel{{Price: md.Price, Size: 0}},
	}, nil
}

func (a *Adapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	return nil, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	var res venue.OrderResult
	coin := strings.ToUpper(strings.TrimSpace(req.Instrument.Symbol))

	if !req.IsBuy && !req.ReduceOnly {
		res.Status = venue.StatusRejected
		res.ErrorDetail = "short selling is not supported on a spot swap venue"
		return res, venue.Fatal(a.name, "place_order", fmt.Errorf("short selling not supported"))
	}

	// req.Size is always a base amount; a buy spends quote tokens, so
	// the spend is derived from a price probe before the real quote.
	amountIn := req.Size
	if req.IsBuy {
		probe, err := a.swapper.QuoteSwap(ctx, coin, 1, false)
		if err != nil {
			res.Status = venue.StatusError
			res.ErrorDetail = err.Error()
			return res, venue.Transient(a.name, "place_order", err)
		}
		amountIn = req.Size * probe.Price
	}

	q, err := a.swapper.QuoteSwap(ctx, coin, amountIn, req.IsBuy)
	if err != nil {
		res.Status = venue.StatusError
		res.ErrorDetail = err.Error()
		return res, venue.Transient(a.name, "place_order", err)
	}
	minOut := q.AmountOut * (1 - a.slippage)

	txID, amountOut, err := a.swapper.Swap(ctx, coin, amountIn, minOut, req.IsBuy)
	if err != nil {
		res.Status = venue.StatusError
		res.ErrorDetail = err.Error()
		return res, venue.Transient(a.name, "place_order", err)
	}

	a.mu.Lock()
	if req.IsBuy {
		a.entries[coin] = q.Price
		res.FilledSize = amountOut
	} else {
		delete(a.entries, coin)
		res.FilledSize = req.Size
	}
	a.mu.Unlock()
	res.Status = venue.StatusOK
	res.VenueOrderID = txID
	res.AvgFillPrice = q.Price
	return res, nil
}

// UpdateLeverage is a no-op: swaps are unlevered by construction.
func (a *Adapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage > 1 {
		return venue.Fatal(a.name, "leverage", fmt.Errorf("leverage %dx not available on a spot venue", leverage))
	}
	return nil
}
