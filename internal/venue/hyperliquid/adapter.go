// Package hyperliquid implements the venue adapter for Hyperliquid
// perpetuals. Market and account data come from the public info
// endpoint; orders go through the signed exchange endpoint using an
// API wallet key.
package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"quorum/internal/logger"
	"quorum/internal/venue"
)

const (
	mainnetURL = "https://api.hyperliquid.xyz"
	testnetURL = "https://api.hyperliquid-testnet.xyz"
)

func init() {
	venue.Register("hyperliquid", func(s venue.Settings) (venue.Adapter, error) {
		return New(s)
	})
}

type asset struct {
	index       int
	szDecimals  int
	maxLeverage int
}

// Adapter talks to one Hyperliquid account.
type Adapter struct {
	name    string
	client  *resty.Client
	signer  *signer
	wallet  string
	testnet bool

	mu     sync.Mutex
	assets map[string]asset
	metaAt time.Time
}

func New(s venue.Settings) (*Adapter, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = mainnetURL
		if s.Testnet {
			base = testnetURL
		}
	}
	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	a := &Adapter{
		name:    s.Name,
		client:  client,
		wallet:  strings.TrimSpace(s.WalletAddress),
		testnet: s.Testnet,
		assets:  make(map[string]asset),
	}
	if a.name == "" {
		a.name = "hyperliquid"
	}
	if strings.TrimSpace(s.PrivateKey) != "" {
		sg, err := newSigner(s.PrivateKey, s.Testnet)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: %w", err)
		}
		a.signer = sg
	}
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) info(ctx context.Context, body map[string]any, out any) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Post("/info")
	if err != nil {
		return venue.Transient(a.name, "info", err)
	}
	if resp.IsError() {
		err := fmt.Errorf("%s: http %d", body["type"], resp.StatusCode())
		if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
			return venue.Transient(a.name, "info", err)
		}
		return venue.Fatal(a.name, "info", err)
	}
	return nil
}

// assetFor resolves the coin's asset index and precision metadata,
// refreshing the universe at most once a minute.
func (a *Adapter) assetFor(ctx context.Context, coin string) (asset, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	a.mu.Lock()
	cached, ok := a.assets[coin]
	fresh := time.Since(a.metaAt) < time.Minute
	a.mu.Unlock()
	if ok && fresh {
		return cached, nil
	}

	var meta metaResponse
	if err := a.info(ctx, map[string]any{"type": "meta"}, &meta); err != nil {
		if ok {
			return cached, nil
		}
		return asset{}, err
	}

	a.mu.Lock()
	a.assets = make(map[string]asset, len(meta.Universe))
	for i, u := range meta.Universe {
		a.assets[strings.ToUpper(u.Name)] = asset{
			index:       i,
			szDecimals:  u.SzDecimals,
			maxLeverage: u.MaxLeverage,
		}
	}
	a.metaAt = time.Now()
	got, ok := a.assets[coin]
	a.mu.Unlock()
	if !ok {
		return asset{}, venue.Fatal(a.name, "meta", fmt.Errorf("unknown coin %s", coin))
	}
	return got, nil
}

// InstrumentMetadata reports the venue's live size granularity and
// leverage cap for a coin, so profile-file fallbacks can be refined.
func (a *Adapter) InstrumentMetadata(ctx context.Context, symbol string) (venue.InstrumentMeta, error) {
	ast, err := a.assetFor(ctx, symbol)
	if err != nil {
		return venue.InstrumentMeta{}, err
	}
	return venue.InstrumentMeta{
		QuantityStep: decimal.New(1, int32(-ast.szDecimals)),
		MaxLeverage:  ast.maxLeverage,
	}, nil
}

func (a *Adapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	var md venue.MarketData

	var raw []json.RawMessage
	if err := a.info(ctx, map[string]any{"type": "metaAndAssetCtxs"}, &raw); err != nil {
		return md, err
	}
	if len(raw) < 2 {
		return md, venue.Transient(a.name, "market_data", fmt.Errorf("truncated metaAndAssetCtxs reply"))
	}
	var meta metaResponse
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return md, venue.Transient(a.name, "market_data", fmt.Errorf("bad universe payload: %w", err))
	}
	var ctxs []assetContext
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return md, venue.Transient(a.name, "market_data", fmt.Errorf("bad asset contexts payload: %w", err))
	}

	coin := strings.ToUpper(strings.TrimSpace(symbol))
	for i, u := range meta.Universe {
		if strings.ToUpper(u.Name) != coin || i >= len(ctxs) {
			continue
		}
		c := ctxs[i]
		md.Symbol = coin
		md.Price = parseFloat(c.MidPx)
		md.MarkPrice = parseFloat(c.MarkPx)
		md.FundingRate = parseFloat(c.Funding)
		md.Volume = parseFloat(c.DayNtlVlm)
		if prev := parseFloat(c.PrevDayPx); prev > 0 && md.Price > 0 {
			md.Change24h = (md.Price - prev) / prev
		}
		md.UpdatedAt = time.Now()
		return md, nil
	}
	return md, venue.Fatal(a.name, "market_data", fmt.Errorf("coin %s not in universe", coin))
}

func (a *Adapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	coin := strings.ToUpper(strings.TrimSpace(symbol))
	var book l2Book
	if err := a.info(ctx, map[string]any{"type": "l2Book", "coin": coin}, &book); err != nil {
		return venue.OrderBook{}, err
	}
	out := venue.OrderBook{Symbol: coin}
	for _, lvl := range book.Levels[0] {
		out.Bids = append(out.Bids, venue.BookLevel{Price: parseFloat(lvl.Px), Size: parseFloat(lvl.Sz)})
	}
	for _, lvl := range book.Levels[1] {
		out.Asks = append(out.Asks, venue.BookLevel{Price: parseFloat(lvl.Px), Size: parseFloat(lvl.Sz)})
	}
	return out, nil
}

func (a *Adapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	coin := strings.ToUpper(strings.TrimSpace(symbol))
	var raw []publicTrade
	if err := a.info(ctx, map[string]any{"type": "recentTrades", "coin": coin}, &raw); err != nil {
		return nil, err
	}
	if limit > 0 && len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	out := make([]venue.RecentTrade, 0, len(raw))
	for _, t := range raw {
		out = append(out, venue.RecentTrade{
			Price: parseFloat(t.Px),
			Size:  parseFloat(t.Sz),
			IsBuy: t.Side == "B",
			Time:  time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

func (a *Adapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	var info venue.AccountInfo
	if a.wallet == "" {
		return info, venue.Fatal(a.name, "account", fmt.Errorf("wallet address not configured"))
	}
	var state clearinghouseState
	if err := a.info(ctx, map[string]any{"type": "clearinghouseState", "user": a.wallet}, &state); err != nil {
		return info, err
	}
	info.Balance = parseFloat(state.MarginSummary.AccountValue)
	info.Available = parseFloat(state.Withdrawable)
	info.Currency = "USDC"
	info.UpdatedAt = time.Now()
	for _, ap := range state.AssetPositions {
		p := ap.Position
		size := parseFloat(p.Szi)
		if size == 0 {
			continue
		}
		info.Positions = append(info.Positions, venue.PositionReport{
			Symbol:        strings.ToUpper(p.Coin),
			Size:          size,
			EntryPrice:    parseFloat(p.EntryPx),
			Leverage:      float64(p.Leverage.Value),
			UnrealizedPnL: parseFloat(p.UnrealizedPnl),
			LiquidationPx: parseFloat(p.LiquidationPx),
		})
	}
	return info, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	var res venue.OrderResult
	if a.signer == nil {
		return res, venue.Fatal(a.name, "place_order", fmt.Errorf("no signing key configured"))
	}
	coin := strings.ToUpper(strings.TrimSpace(req.Instrument.Symbol))
	ast, err := a.assetFor(ctx, coin)
	if err != nil {
		return res, err
	}

	price := req.Price
	tif := "Gtc"
	if strings.EqualFold(req.TimeInForce, "IOC") {
		tif = "Ioc"
	}
	if price <= 0 {
		// No native market orders; cross the book with an IOC limit.
		book, err := a.GetOrderbook(ctx, coin)
		if err != nil {
			return res, err
		}
		if req.IsBuy {
			price = book.BestAsk() * 1.005
		} else {
			price = book.BestBid() * 0.995
		}
		tif = "Ioc"
	}

	action := orderAction{
		Type: "order",
		Orders: []wireOrder{{
			Asset:      ast.index,
			IsBuy:      req.IsBuy,
			Price:      formatPrice(price, ast.szDecimals),
			Size:       formatSize(req.Size, ast.szDecimals),
			ReduceOnly: req.ReduceOnly,
			Type:       orderType{Limit: &orderTypeLimit{Tif: tif}},
		}},
		Grouping: "na",
	}
	var reply exchangeResponse
	if err := a.exchange(ctx, action, &reply); err != nil {
		return res, err
	}
	if reply.Status != "ok" {
		res.Status = venue.StatusRejected
		res.ErrorDetail = reply.Status
		return res, venue.Fatal(a.name, "place_order", fmt.Errorf("order rejected: %s", reply.Status))
	}
	for _, st := range reply.Response.Data.Statuses {
		switch {
		case st.Error != "":
			res.Status = venue.StatusRejected
			res.ErrorDetail = st.Error
			return res, venue.Fatal(a.name, "place_order", fmt.Errorf("order rejected: %s", st.Error))
		case st.Filled != nil:
			res.Status = venue.StatusOK
			res.VenueOrderID = strconv.FormatInt(st.Filled.Oid, 10)
			res.FilledSize = parseFloat(st.Filled.TotalSz)
			res.AvgFillPrice = parseFloat(st.Filled.AvgPx)
			return res, nil
		case st.Resting != nil:
			res.Status = venue.StatusOK
			res.VenueOrderID = strconv.FormatInt(st.Resting.Oid, 10)
			return res, nil
		}
	}
	res.Status = venue.StatusError
	res.ErrorDetail = "empty statuses in exchange reply"
	return res, venue.Transient(a.name, "place_order", fmt.Errorf("empty statuses in exchange reply"))
}

func (a *Adapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	if a.signer == nil {
		return venue.Fatal(a.name, "leverage", fmt.Errorf("no signing key configured"))
	}
	if leverage <= 0 {
		return nil
	}
	ast, err := a.assetFor(ctx, symbol)
	if err != nil {
		return err
	}
	if ast.maxLeverage > 0 && leverage > ast.maxLeverage {
		logger.Warnf("hyperliquid: clamping leverage %dx to venue max %dx for %s", leverage, ast.maxLeverage, symbol)
		leverage = ast.maxLeverage
	}
	action := leverageAction{
		Type:     "updateLeverage",
		Asset:    ast.index,
		IsCross:  true,
		Leverage: leverage,
	}
	var reply exchangeResponse
	if err := a.exchange(ctx, action, &reply); err != nil {
		return err
	}
	if reply.Status != "ok" {
		return venue.Fatal(a.name, "leverage", fmt.Errorf("leverage update rejected: %s", reply.Status))
	}
	return nil
}

func (a *Adapter) exchange(ctx context.Context, action any, out *exchangeResponse) error {
	nonce := time.Now().UnixMilli()
	sig, err := a.signer.sign(action, nonce)
	if err != nil {
		return venue.Fatal(a.name, "sign", err)
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(exchangeRequest{Action: action, Nonce: nonce, Signature: sig}).
		SetResult(out).
		Post("/exchange")
	if err != nil {
		return venue.Transient(a.name, "exchange", err)
	}
	if resp.IsError() {
		err := fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
		if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
			return venue.Transient(a.name, "exchange", err)
		}
		return venue.Fatal(a.name, "exchange", err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

// formatSize renders a size with at most szDecimals decimals and no
// trailing zeros, which is what the exchange endpoint accepts.
func formatSize(v float64, szDecimals int) string {
	s := strconv.FormatFloat(v, 'f', szDecimals, 64)
	return trimZeros(s)
}

// formatPrice allows up to (6 - szDecimals) decimals for perps.
func formatPrice(v float64, szDecimals int) string {
	dec := 6 - szDecimals
	if dec < 0 {
		dec = 0
	}
	s := strconv.FormatFloat(v, 'f', dec, 64)
	return trimZeros(s)
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
