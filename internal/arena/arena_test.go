package arena

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/consensus"
	"quorum/internal/coordinator"
	"quorum/internal/executor"
	"quorum/internal/exitrule"
	"quorum/internal/ledger"
	"quorum/internal/market"
	"quorum/internal/oracle"
	"quorum/internal/store"
	"quorum/internal/venue"
)

type fakeAdapter struct {
	name   string
	orders []venue.OrderRequest
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	return venue.AccountInfo{Balance: 1000}, nil
}

func (f *fakeAdapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	return venue.MarketData{Symbol: symbol, Price: 50000}, nil
}

func (f *fakeAdapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	return venue.OrderBook{
		Asks: []venue.BookLevel{{Price: 50000, Size: 5}},
		Bids: []venue.BookLevel{{Price: 49990, Size: 5}},
	}, nil
}

func (f *fakeAdapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	return nil, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	f.orders = append(f.orders, req)
	return venue.OrderResult{Status: venue.StatusOK, VenueOrderID: "1", FilledSize: req.Size}, nil
}

func (f *fakeAdapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

type fixedOracle struct {
	name string
	dec  oracle.Decision
}

func (o *fixedOracle) Name() string { return o.name }

func (o *fixedOracle) Analyze(ctx context.Context, inst venue.Instrument, snap oracle.Snapshot) (oracle.Decision, error) {
	d := o.dec
	d.Oracle = o.name
	return d, nil
}

type captureRecorder struct {
	mu        sync.Mutex
	decisions []store.DecisionLog
	trades    []store.TradeRecord
}

func (c *captureRecorder) AppendTrade(ctx context.Context, rec store.TradeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades = append(c.trades, rec)
	return nil
}

func (c *captureRecorder) AppendBalance(ctx context.Context, snap store.BalanceSnapshot) error {
	return nil
}

func (c *captureRecorder) AppendDecision(ctx context.Context, log store.DecisionLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, log)
	return nil
}

const profileYAML = `
fake:
  default:
    quantity_step: "0.001"
    price_tick: "0.1"
    min_quantity: "0.001"
    min_notional: "10"
    max_leverage: 20
`

func newArena(t *testing.T, f *fakeAdapter, oracles []oracle.Oracle, rec *captureRecorder) *Arena {
	t.Helper()
	profiles, err := venue.ParseProfiles([]byte(profileYAML))
	require.NoError(t, err)

	led := ledger.New(f.name, f)
	runner := &coordinator.Runner{
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
		Recorder:      rec,
	}
	return New(
		Config{Symbols: []string{"BTC"}, MinVotes: 2},
		&market.Builder{Adapter: f},
		consensus.NewDispatcher(oracles, 0),
		coordinator.New(runner),
		profiles,
		rec,
	)
}

func TestRunCycleExecutesAgreedBuy(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	rec := &captureRecorder{}
	a := newArena(t, f, []oracle.Oracle{
		&fixedOracle{name: "o1", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 80}},
		&fixedOracle{name: "o2", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 70}},
		&fixedOracle{name: "o3", dec: oracle.Decision{Direction: oracle.Sell, Confidence: 90}},
	}, rec)

	a.RunCycle(context.Background())

	require.Len(t, f.orders, 1)
	assert.True(t, f.orders[0].IsBuy)

	require.Len(t, rec.decisions, 1)
	assert.Equal(t, "buy", rec.decisions[0].Action)
	assert.Equal(t, 2, rec.decisions[0].AgreementCount)
	assert.Len(t, rec.decisions[0].Votes, 3)

	require.Len(t, rec.trades, 1)
	assert.Equal(t, "open", rec.trades[0].Action)
}

func TestRunCycleHoldPlacesNothing(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	rec := &captureRecorder{}
	a := newArena(t, f, []oracle.Oracle{
		&fixedOracle{name: "o1", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 80}},
		&fixedOracle{name: "o2", dec: oracle.Decision{Direction: oracle.Sell, Confidence: 70}},
		&fixedOracle{name: "o3", dec: oracle.Decision{Direction: oracle.Hold, Confidence: 50}},
	}, rec)

	a.RunCycle(context.Background())

	assert.Empty(t, f.orders)
	require.Len(t, rec.decisions, 1)
	assert.Equal(t, "hold", rec.decisions[0].Action)
}

func TestRunCycleSurvivesOraclePanic(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	rec := &captureRecorder{}
	a := newArena(t, f, []oracle.Oracle{
		panicOracle{},
		&fixedOracle{name: "o2", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 75}},
		&fixedOracle{name: "o3", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 65}},
	}, rec)

	a.RunCycle(context.Background())

	require.Len(t, rec.decisions, 1)
	assert.Equal(t, "buy", rec.decisions[0].Action)
	assert.Equal(t, 2, rec.decisions[0].TotalVoters)
}

type panicOracle struct{}

func (panicOracle) Name() string { return "broken" }

func (panicOracle) Analyze(ctx context.Context, inst venue.Instrument, snap oracle.Snapshot) (oracle.Decision, error) {
	panic("boom")
}

func TestTriggerSymbolRunsImmediatePass(t *testing.T) {
	f := &fakeAdapter{name: "fake"}
	rec := &captureRecorder{}
	a := newArena(t, f, []oracle.Oracle{
		&fixedOracle{name: "o1", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 80}},
		&fixedOracle{name: "o2", dec: oracle.Decision{Direction: oracle.Buy, Confidence: 70}},
	}, rec)

	// A listing announcement trades outside the aligned schedule; the
	// coin resolves through the profile file's default entry.
	a.TriggerSymbol(context.Background(), "newcoin")

	require.Len(t, f.orders, 1)
	assert.True(t, f.orders[0].IsBuy)
	require.Len(t, rec.decisions, 1)
	assert.Equal(t, "NEWCOIN", rec.decisions[0].Symbol)
	require.Len(t, rec.trades, 1)
	assert.Equal(t, "open", rec.trades[0].Action)
	assert.Equal(t, "NEWCOIN", rec.trades[0].Symbol)
}
