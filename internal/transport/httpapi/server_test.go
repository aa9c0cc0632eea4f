package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/coordinator"
	"quorum/internal/ledger"
	"quorum/internal/listing"
	"quorum/internal/venue"
)

type nullAdapter struct{ name string }

func (n *nullAdapter) Name() string { return n.name }

func (n *nullAdapter) GetAccountInfo(ctx context.Context) (venue.AccountInfo, error) {
	return venue.AccountInfo{}, nil
}

func (n *nullAdapter) GetMarketData(ctx context.Context, symbol string) (venue.MarketData, error) {
	return venue.MarketData{}, nil
}

func (n *nullAdapter) GetOrderbook(ctx context.Context, symbol string) (venue.OrderBook, error) {
	return venue.OrderBook{}, nil
}

func (n *nullAdapter) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]venue.RecentTrade, error) {
	return nil, nil
}

func (n *nullAdapter) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}

func (n *nullAdapter) UpdateLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ad := &nullAdapter{name: "alpha"}
	led := ledger.New("alpha", ad)
	led.RecordOpen(ledger.Position{
		Instrument: venue.Instrument{Symbol: "BTC", Venue: venue.KindCEX},
		Side:       "long",
		EntryPrice: 50000,
		Size:       0.01,
		Leverage:   3,
		OpenedAt:   time.Now(),
	})
	coord := coordinator.New(&coordinator.Runner{Adapter: ad, Ledger: led})
	srv, err := NewServer(ServerConfig{Coordinator: coord})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusListsVenues(t *testing.T) {
	rec := get(t, newTestServer(t), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Venues []struct {
			Venue string `json:"venue"`
		} `json:"venues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Venues, 1)
	assert.Equal(t, "alpha", body.Venues[0].Venue)
}

func TestPositionsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t), "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []positionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "BTC", out[0].Symbol)
	assert.Equal(t, "long", out[0].Side)
}

func TestTradesWithoutStore(t *testing.T) {
	rec := get(t, newTestServer(t), "/api/trades")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerRequiresCoordinator(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestListingWebhookDeduplicates(t *testing.T) {
	ad := &nullAdapter{name: "alpha"}
	coord := coordinator.New(&coordinator.Runner{Adapter: ad, Ledger: ledger.New("alpha", ad)})
	srv, err := NewServer(ServerConfig{
		Coordinator: coord,
		Listings:    listing.NewTracker(30 * time.Minute),
	})
	require.NoError(t, err)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"coin":"XYZ","source":"feed-a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":true`)

	rec = post(`{"coin":"xyzusdt","source":"feed-b"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":false`)

	rec = post(`{"source":"feed-a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingWebhookTriggersDecisionPass(t *testing.T) {
	ad := &nullAdapter{name: "alpha"}
	coord := coordinator.New(&coordinator.Runner{Adapter: ad, Ledger: ledger.New("alpha", ad)})
	got := make(chan string, 4)
	srv, err := NewServer(ServerConfig{
		Coordinator:        coord,
		Listings:           listing.NewTracker(30 * time.Minute),
		ListingTrigger:     func(ctx context.Context, coin string) { got <- coin },
		ListingReliability: 0.5,
	})
	require.NoError(t, err)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"coin":"NEW","source":"feed-a","reliability":0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"triggered":true`)
	select {
	case coin := <-got:
		assert.Equal(t, "NEW", coin)
	case <-time.After(time.Second):
		t.Fatal("decision pass never triggered")
	}

	// Duplicate inside the cooldown does not trade again.
	rec = post(`{"coin":"NEW","source":"feed-b","reliability":0.9}`)
	assert.Contains(t, rec.Body.String(), `"triggered":false`)

	// Fresh but unreliable events are recorded without trading.
	rec = post(`{"coin":"OTHER","source":"rumor","reliability":0.2}`)
	assert.Contains(t, rec.Body.String(), `"accepted":true`)
	assert.Contains(t, rec.Body.String(), `"triggered":false`)
	select {
	case coin := <-got:
		t.Fatalf("unexpected decision pass for %s", coin)
	case <-time.After(50 * time.Millisecond):
	}
}
