package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/consensus"
	"quorum/internal/executor"
	"quorum/internal/exitrule"
	"quorum/internal/ledger"
	"quorum/internal/pkg/circuit"
	"quorum/internal/store"
	"quorum/internal/venue"
)

type fakeAdapter struct {
	name      string
	account   venue.AccountInfo
	market    venue.MarketData
	book      venue.OrderBook
	orders    []venue.OrderRequest
	placeRes  venue.OrderResult
	placeErr  error
	accErr    error
	levCalls  []int
	marketErr error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	return f.account, f.accErr
}

func (f *fakeAdapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	return f.market, f.marketErr
}

func (f *fakeAdapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	return f.book, nil
}

func (f *fakeAdapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	return nil, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	f.orders = append(f.orders, req)
	if f.placeErr != nil {
		return venue.OrderResult{Status: venue.StatusError}, f.placeErr
	}
	res := f.placeRes
	if res.Status == "" {
		res = venue.OrderResult{Status: venue.StatusOK, VenueOrderID: "1", FilledSize: req.Size}
	}
	return res, nil
}

func (f *fakeAdapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	f.levCalls = append(f.levCalls, leverage)
	return nil
}

func testInstrument() venue.Instrument {
	return venue.Instrument{
		Symbol: "BTC",
		Venue:  venue.KindCEX,
		Precision: venue.Precision{
			QuantityStep: decimal.RequireFromString("0.001"),
			PriceTick:    decimal.RequireFromString("0.1"),
			MinQuantity:  decimal.RequireFromString("0.001"),
			MinNotional:  decimal.RequireFromString("10"),
		},
		MaxLeverage: 20,
	}
}

func newRunner(f *fakeAdapter) *Runner {
	led := ledger.New(f.name, f)
	return &Runner{
		Adapter:  f,
		Executor: executor.New(f, led, executor.Config{}),
		Ledger:   led,
		Exits:    exitrule.New(exitrule.Config{StopLossPct: 0.15, TakeProfitPct: 0.30}),
		Sizing: executor.SizingConfig{
			MinMargin: 120, MaxMargin: 240,
			LeverageFloor: 2, LeverageCeiling: 5,
			ConfidenceFloor: 60,
		},
		MinConfidence: 60,
	}
}

func buyResult(conf float64) consensus.Result {
	return consensus.Result{
		Action:         consensus.ActionBuy,
		AgreementCount: 2,
		TotalVoters:    3,
		AvgConfidence:  conf,
	}
}

func TestStepOpensOnBuyConsensus(t *testing.T) {
	f := &fakeAdapter{
		name:   "fake",
		market: venue.MarketData{Symbol: "BTC", Price: 50000},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 50000, Size: 5}},
			Bids: []venue.BookLevel{{Price: 49990, Size: 5}},
		},
	}
	r := newRunner(f)

	out, err := r.Step(context.Background(), testInstrument(), buyResult(80))
	require.NoError(t, err)
	assert.Equal(t, "open", out.Action)
	assert.Equal(t, venue.StatusOK, out.Result.Status)
	require.Len(t, f.orders, 1)
	assert.True(t, f.orders[0].IsBuy)

	pos, ok := r.Ledger.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, "long", pos.Side)
}

func TestStepHoldDoesNothing(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	r := newRunner(f)

	out, err := r.Step(context.Background(), testInstrument(), consensus.Result{Action: consensus.ActionHold})
	require.NoError(t, err)
	assert.Equal(t, "skip", out.Action)
	assert.Empty(t, f.orders)
}

func TestStepSkipsBelowConfidenceFloor(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	r := newRunner(f)

	out, err := r.Step(context.Background(), testInstrument(), buyResult(55))
	require.NoError(t, err)
	assert.Equal(t, "skip", out.Action)
	assert.Contains(t, out.Reason, "confidence")
	assert.Empty(t, f.orders)
}

func TestStepStopLossClosesPosition(t *testing.T) {
	f := &fakeAdapter{
		name: "fake",
		account: venue.AccountInfo{
			Balance: 1000,
			Positions: []venue.PositionReport{
				{Symbol: "BTC", Size: 0.01, EntryPrice: 50000, Leverage: 3},
			},
		},
		// 15% adverse move with the venue reporting a long.
		market: venue.MarketData{Symbol: "BTC", Price: 42500},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 42501, Size: 5}},
			Bids: []venue.BookLevel{{Price: 42500, Size: 5}},
		},
	}
	r := newRunner(f)

	out, err := r.Step(context.Background(), testInstrument(), consensus.Result{Action: consensus.ActionHold})
	require.NoError(t, err)
	assert.Equal(t, "close", out.Action)
	assert.Equal(t, string(exitrule.TriggerStopLoss), out.Reason)
	require.Len(t, f.orders, 1)
	assert.True(t, f.orders[0].ReduceOnly)
	assert.False(t, f.orders[0].IsBuy)

	_, ok := r.Ledger.Get("BTC")
	assert.False(t, ok)
}

func TestStepReversalFlips(t *testing.T) {
	f := &fakeAdapter{
		name: "fake",
		account: venue.AccountInfo{
			Balance: 1000,
			Positions: []venue.PositionReport{
				{Symbol: "BTC", Size: 0.01, EntryPrice: 50000, Leverage: 3},
			},
		},
		market: venue.MarketData{Symbol: "BTC", Price: 50100},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 50101, Size: 5}},
			Bids: []venue.BookLevel{{Price: 50100, Size: 5}},
		},
	}
	r := newRunner(f)

	sell := consensus.Result{Action: consensus.ActionSell, AgreementCount: 3, TotalVoters: 3, AvgConfidence: 85}
	out, err := r.Step(context.Background(), testInstrument(), sell)
	require.NoError(t, err)
	assert.Equal(t, "flip", out.Action)

	// Close of the long, then open of the short.
	require.Len(t, f.orders, 2)
	assert.True(t, f.orders[0].ReduceOnly)
	assert.False(t, f.orders[1].ReduceOnly)
	assert.False(t, f.orders[1].IsBuy)
}

func TestStepRespectsOpenBreaker(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	r := newRunner(f)
	r.Breaker = circuit.NewBreaker("fake", 1, time.Hour)
	r.Breaker.RecordFailure()

	out, err := r.Step(context.Background(), testInstrument(), buyResult(90))
	require.NoError(t, err)
	assert.Equal(t, "skip", out.Action)
	assert.Equal(t, "circuit breaker open", out.Reason)
	assert.Empty(t, f.orders)
}

func TestStepBlocksAfterDailyLossCap(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	r := newRunner(f)
	r.Limits = executor.NewDailyLimits(100)
	r.Limits.RecordTrade(-150)

	out, err := r.Step(context.Background(), testInstrument(), buyResult(90))
	require.NoError(t, err)
	assert.Equal(t, "skip", out.Action)
	assert.Equal(t, "daily loss cap reached", out.Reason)
	assert.True(t, r.Stats().Suspended)
}

func TestExecuteEverywhereIsolatesVenues(t *testing.T) {
	healthy := &fakeAdapter{
		name:   "alpha",
		market: venue.MarketData{Symbol: "BTC", Price: 50000},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 50000, Size: 5}},
			Bids: []venue.BookLevel{{Price: 49990, Size: 5}},
		},
	}
	broken := &fakeAdapter{
		name:   "beta",
		accErr: assert.AnError,
	}
	c := New(newRunner(healthy), newRunner(broken))

	results := c.ExecuteEverywhere(context.Background(), testInstrument(), buyResult(80))
	require.Len(t, results, 2)
	assert.Equal(t, "open", results["alpha"].Action)
	assert.Equal(t, "skip", results["beta"].Action)
	assert.Contains(t, results["beta"].Reason, "reconcile")
}

type captureRecorder struct {
	trades []store.TradeRecord
}

func (c *captureRecorder) AppendTrade(ctx context.Context, rec store.TradeRecord) error {
	c.trades = append(c.trades, rec)
	return nil
}

func (c *captureRecorder) AppendBalance(ctx context.Context, snap store.BalanceSnapshot) error {
	return nil
}

func (c *captureRecorder) AppendDecision(ctx context.Context, log store.DecisionLog) error {
	return nil
}

const crossVenueProfiles = `
hyperliquid:
  BTC:
    quantity_step: "0.00001"
    price_tick: "1"
    min_quantity: "0.00001"
    min_notional: "10"
    max_leverage: 40
aster:
  BTC:
    quantity_step: "0.001"
    price_tick: "0.1"
    min_quantity: "0.001"
    min_notional: "5"
    max_leverage: 20
`

func TestStepUsesOwnVenueProfile(t *testing.T) {
	profiles, err := venue.ParseProfiles([]byte(crossVenueProfiles))
	require.NoError(t, err)

	f := &fakeAdapter{
		name:   "aster",
		market: venue.MarketData{Symbol: "BTC", Price: 50000},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 50000, Size: 5}},
			Bids: []venue.BookLevel{{Price: 49990, Size: 5}},
		},
	}
	r := newRunner(f)
	r.Profiles = profiles

	// The shared decision arrives carrying another venue's rules.
	foreign, ok := profiles.Instrument("hyperliquid", "BTC", venue.KindCEX)
	require.True(t, ok)

	out, err := r.Step(context.Background(), foreign, buyResult(80))
	require.NoError(t, err)
	require.Equal(t, "open", out.Action)
	require.Len(t, f.orders, 1)

	// Sized on aster's own 0.001 step, not hyperliquid's 0.00001.
	step := decimal.RequireFromString("0.001")
	qty := decimal.NewFromFloat(f.orders[0].Size)
	assert.True(t, qty.Mod(step).IsZero(), "size %v not on aster step", f.orders[0].Size)
	assert.InDelta(t, 0.014, f.orders[0].Size, 1e-9)
}

func TestStepWithoutOwnProfileSkips(t *testing.T) {
	profiles, err := venue.ParseProfiles([]byte(crossVenueProfiles))
	require.NoError(t, err)

	f := &fakeAdapter{name: "unknown"}
	r := newRunner(f)
	r.Profiles = profiles

	out, err := r.Step(context.Background(), testInstrument(), buyResult(80))
	require.NoError(t, err)
	assert.Equal(t, "skip", out.Action)
	assert.Contains(t, out.Reason, "no instrument profile")
	assert.Empty(t, f.orders)
}

type metaAdapter struct {
	*fakeAdapter
	meta      venue.InstrumentMeta
	metaCalls int
}

func (m *metaAdapter) InstrumentMetadata(ctx context.Context, symbol string) (venue.InstrumentMeta, error) {
	m.metaCalls++
	return m.meta, nil
}

func TestStepRefinesDefaultProfileFromVenueMetadata(t *testing.T) {
	profiles, err := venue.ParseProfiles([]byte(`
fake:
  default:
    quantity_step: "0.001"
    price_tick: "0.1"
    min_quantity: "0.001"
    min_notional: "5"
    max_leverage: 20
`))
	require.NoError(t, err)

	f := &metaAdapter{
		fakeAdapter: &fakeAdapter{
			name:   "fake",
			market: venue.MarketData{Symbol: "NEW", Price: 50000},
			book: venue.OrderBook{
				Asks: []venue.BookLevel{{Price: 50000, Size: 5}},
				Bids: []venue.BookLevel{{Price: 49990, Size: 5}},
			},
		},
		meta: venue.InstrumentMeta{
			QuantityStep: decimal.RequireFromString("0.01"),
			MaxLeverage:  8,
		},
	}
	r := newRunner(f.fakeAdapter)
	r.Adapter = f
	r.Profiles = profiles

	inst := venue.Instrument{Symbol: "NEW", Venue: venue.KindCEX}
	out, err := r.Step(context.Background(), inst, buyResult(80))
	require.NoError(t, err)
	require.Equal(t, "open", out.Action)

	// Sized on the venue-reported 0.01 step, not the default 0.001.
	require.Len(t, f.orders, 1)
	qty := decimal.NewFromFloat(f.orders[0].Size)
	assert.True(t, qty.Mod(decimal.RequireFromString("0.01")).IsZero())

	// The refined entry is written back: no re-query on the next step.
	assert.True(t, profiles.Exact("fake", "NEW"))
	assert.Equal(t, 1, f.metaCalls)
	_, err = r.Step(context.Background(), inst, consensus.Result{Action: consensus.ActionHold})
	require.NoError(t, err)
	assert.Equal(t, 1, f.metaCalls)
}

func TestStepRecordsRejectedOpen(t *testing.T) {
	f := &fakeAdapter{
		name:   "fake",
		market: venue.MarketData{Symbol: "BTC", Price: 50000},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 50000, Size: 5}},
			Bids: []venue.BookLevel{{Price: 49990, Size: 5}},
		},
		placeRes: venue.OrderResult{Status: venue.StatusRejected, ErrorDetail: "margin insufficient"},
	}
	r := newRunner(f)
	rec := &captureRecorder{}
	r.Recorder = rec

	out, err := r.Step(context.Background(), testInstrument(), buyResult(80))
	require.NoError(t, err)
	assert.Equal(t, "open", out.Action)
	assert.NotEqual(t, venue.StatusOK, out.Result.Status)

	// The rejection leaves a trace in the append-only log.
	require.Len(t, rec.trades, 1)
	assert.Equal(t, "open", rec.trades[0].Action)
	assert.Equal(t, "long", rec.trades[0].Side)
	assert.Contains(t, rec.trades[0].Reason, "margin insufficient")
}

func TestStepRecordsFailedClose(t *testing.T) {
	f := &fakeAdapter{
		name: "fake",
		account: venue.AccountInfo{
			Balance: 1000,
			Positions: []venue.PositionReport{
				{Symbol: "BTC", Size: 0.01, EntryPrice: 50000, Leverage: 3},
			},
		},
		market: venue.MarketData{Symbol: "BTC", Price: 42500},
		book: venue.OrderBook{
			Asks: []venue.BookLevel{{Price: 42501, Size: 5}},
			Bids: []venue.BookLevel{{Price: 42500, Size: 5}},
		},
		placeErr: venue.Fatal("fake", "place_order", errors.New("venue is read only")),
	}
	r := newRunner(f)
	rec := &captureRecorder{}
	r.Recorder = rec

	out, err := r.Step(context.Background(), testInstrument(), consensus.Result{Action: consensus.ActionHold})
	require.NoError(t, err)
	assert.Equal(t, "close", out.Action)

	require.Len(t, rec.trades, 1)
	assert.Equal(t, "close", rec.trades[0].Action)
	assert.Contains(t, rec.trades[0].Reason, "stop_loss")
	assert.Contains(t, rec.trades[0].Reason, "venue is read only")
}
