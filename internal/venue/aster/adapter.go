// Package aster implements the venue adapter for Aster perpetual
// futures. The venue speaks the Binance futures wire protocol, so the
// adapter rides on the go-binance SDK with a swapped base URL.
package aster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"quorum/internal/venue"
)

const defaultBaseURL = "https://fapi.asterdex.com"

func init() {
	venue.Register("aster", func(s venue.Settings) (venue.Adapter, error) {
		return New(s)
	})
}

// Adapter talks to one Aster futures account.
type Adapter struct {
	name   string
	client *futures.Client
}

func New(s venue.Settings) (*Adapter, error) {
	client := futures.NewClient(s.APIKey, s.APISecret)
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	client.BaseURL = base
	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	name := s.Name
	if name == "" {
		name = "aster"
	}
	return &Adapter{name: name, client: client}, nil
}

func (a *Adapter) Name() string { return a.name }

// pairSymbol maps a coin name to the venue's USDT-margined pair.
func pairSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(symbol, "USDT") {
		return symbol
	}
	return symbol + "USDT"
}

// classify wraps SDK errors so the executor can tell retryable venue
// trouble from permanent rejections.
func (a *Adapter) classify(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1021, -1001: // rate limit, timestamp drift, internal error
			return venue.Transient(a.name, op, err)
		default:
			return venue.Fatal(a.name, op, err)
		}
	}
	return venue.Transient(a.name, op, err)
}

func (a *Adapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	var info venue.AccountInfo
	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return info, a.classify("account", err)
	}
	info.Balance = parseFloat(acct.TotalWalletBalance)
	info.Available = parseFloat(acct.AvailableBalance)
	info.Currency = "USDT"
	info.UpdatedAt = time.Now()
	for _, p := range acct.Positions {
		size := parseFloat(p.PositionAmt)
		if size == 0 {
			continue
		}
		info.Positions = append(info.Positions, venue.PositionReport{
			Symbol:        strings.TrimSuffix(p.Symbol, "USDT"),
			Size:          size,
			EntryPrice:    parseFloat(p.EntryPrice),
			Leverage:      parseFloat(p.Leverage),
			UnrealizedPnL: parseFloat(p.UnrealizedProfit),
		})
	}
	return info, nil
}

func (a *Adapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	var md venue.MarketData
	pair := pairSymbol(symbol)

	stats, err := a.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return md, a.classify("market_data", err)
	}
	if len(stats) == 0 {
		return md, venue.Fatal(a.name, "market_data", fmt.Errorf("no ticker for %s", pair))
	}
	md.Symbol = strings.TrimSuffix(pair, "USDT")
	md.Price = parseFloat(stats[0].LastPrice)
	md.Change24h = parseFloat(stats[0].PriceChangePercent) / 100
	md.Volume = parseFloat(stats[0].QuoteVolume)
	md.UpdatedAt = time.Now()

	premium, err := a.client.NewPremiumIndexService().Symbol(pair).Do(ctx)
	if err == nil && len(premium) > 0 {
		md.MarkPrice = parseFloat(premium[0].MarkPrice)
		md.FundingRate = parseFloat(premium[0].LastFundingRate)
	}
	return md, nil
}

func (a *Adapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	pair := pairSymbol(symbol)
	depth, err := a.client.NewDepthService().Symbol(pair).Limit(20).Do(ctx)
	if err != nil {
		return venue.OrderBook{}, a.classify("orderbook", err)
	}
	out := venue.OrderBook{Symbol: strings.TrimSuffix(pair, "USDT")}
	for _, b := range depth.Bids {
		out.Bids = append(out.Bids, venue.BookLevel{Price: parseFloat(b.Price), Size: parseFloat(b.Quantity)})
	}
	for _, s := range depth.Asks {
		out.Asks = append(out.Asks, venue.BookLevel{Price: parseFloat(s.Price), Size: parseFloat(s.Quantity)})
	}
	return out, nil
}

func (a *Adapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	pair := pairSymbol(symbol)
	if limit <= 0 {
		limit = 50
	}
	trades, err := a.client.NewRecentTradesService().Symbol(pair).Limit(limit).Do(ctx)
	if err != nil {
		return nil, a.classify("recent_trades", err)
	}
	out := make([]venue.RecentTrade, 0, len(trades))
	for _, t := range trades {
		out = append(out, venue.RecentTrade{
			Price: parseFloat(t.Price),
			Size:  parseFloat(t.Quantity),
			// Buyer-maker means the aggressor sold into the bid.
			IsBuy: !t.IsBuyerMaker,
			Time:  time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	var res venue.OrderResult
	pair := pairSymbol(req.Instrument.Symbol)

	side := futures.SideTypeSell
	if req.IsBuy {
		side = futures.SideTypeBuy
	}
	svc := a.client.NewCreateOrderService().
		Symbol(pair).
		Side(side).
		Quantity(formatFloat(req.Size))
	if req.Price > 0 {
		tif := futures.TimeInForceTypeGTC
		if strings.EqualFold(req.TimeInForce, "IOC") {
			tif = futures.TimeInForceTypeIOC
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(tif).
			Price(formatFloat(req.Price))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		wrapped := a.classify("place_order", err)
		if venue.IsFatal(wrapped) {
			res.Status = venue.StatusRejected
		} else {
			res.Status = venue.StatusError
		}
		res.ErrorDetail = err.Error()
		return res, wrapped
	}
	res.Status = venue.StatusOK
	res.VenueOrderID = strconv.FormatInt(order.OrderID, 10)
	res.FilledSize = parseFloat(order.ExecutedQuantity)
	res.AvgFillPrice = parseFloat(order.AvgPrice)
	return res, nil
}

func (a *Adapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return nil
	}
	_, err := a.client.NewChangeLeverageService().
		Symbol(pairSymbol(symbol)).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return a.classify("leverage", err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
