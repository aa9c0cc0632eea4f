// Package httpapi serves the read-only status API: per-venue
// performance, open positions, and the persisted trade log.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"quorum/internal/coordinator"
	"quorum/internal/listing"
	"quorum/internal/logger"
	"quorum/internal/store"
)

// Server exposes the running system over HTTP. All endpoints are
// read-only; trading is driven by the decision loop alone.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr        string
	Coordinator *coordinator.Coordinator
	Store       *store.Store
	Listings    *listing.Tracker // optional, enables the listing webhook

	// ListingTrigger receives the coin of every fresh, sufficiently
	// reliable listing event for an immediate decision pass.
	ListingTrigger     func(ctx context.Context, coin string)
	ListingReliability float64 // minimum reliability to trigger trading
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Coordinator == nil {
		return nil, errors.New("http server requires a coordinator")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{
		coord:          cfg.Coordinator,
		store:          cfg.Store,
		listings:       cfg.Listings,
		trigger:        cfg.ListingTrigger,
		minReliability: cfg.ListingReliability,
	}
	api := router.Group("/api")
	{
		api.GET("/status", h.status)
		api.GET("/venues", h.venues)
		api.GET("/positions", h.positions)
		api.GET("/trades", h.trades)
		api.GET("/balances", h.balances)
		if cfg.Listings != nil {
			api.POST("/listings", h.listingEvent)
		}
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

type handlers struct {
	coord          *coordinator.Coordinator
	store          *store.Store
	listings       *listing.Tracker
	trigger        func(ctx context.Context, coin string)
	minReliability float64
}

type venueStatus struct {
	Venue string            `json:"venue"`
	Stats coordinator.Stats `json:"stats"`
}

func (h *handlers) collectStats() []venueStatus {
	runners := h.coord.Runners()
	out := make([]venueStatus, 0, len(runners))
	for _, r := range runners {
		out = append(out, venueStatus{Venue: r.Adapter.Name(), Stats: r.Stats()})
	}
	return out
}

// status is the venue comparison view: the same decisions executed
// everywhere, ranked by ROI.
func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"time":   time.Now(),
		"venues": h.collectStats(),
	})
}

func (h *handlers) venues(c *gin.Context) {
	c.JSON(http.StatusOK, h.collectStats())
}

type positionView struct {
	Venue      string  `json:"venue"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entry_price"`
	Size       float64 `json:"size"`
	Leverage   float64 `json:"leverage"`
	OpenedAt   string  `json:"opened_at"`
	Synthetic  bool    `json:"synthetic"`
}

func (h *handlers) positions(c *gin.Context) {
	var out []positionView
	for _, r := range h.coord.Runners() {
		for _, p := range r.Ledger.Open() {
			out = append(out, positionView{
				Venue:      r.Adapter.Name(),
				Symbol:     p.Instrument.Symbol,
				Side:       p.Side,
				EntryPrice: p.EntryPrice,
				Size:       p.Size,
				Leverage:   p.Leverage,
				OpenedAt:   p.OpenedAt.Format(time.RFC3339),
				Synthetic:  p.Synthetic,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) trades(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade log not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := h.store.ListTrades(c.Request.Context(), c.Query("venue"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

type listingPayload struct {
	Coin        string  `json:"coin" binding:"required"`
	Source      string  `json:"source"`
	Reliability float64 `json:"reliability"`
	RawText     string  `json:"raw_text"`
}

// listingEvent ingests one listing announcement from an external
// feed. Duplicates inside the cooldown window are acknowledged but
// flagged as already seen. A fresh event from a reliable enough
// source kicks off an immediate decision pass for the coin.
func (h *handlers) listingEvent(c *gin.Context) {
	var p listingPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fresh := h.listings.Observe(listing.Event{
		Coin:        p.Coin,
		Source:      p.Source,
		Reliability: p.Reliability,
		RawText:     p.RawText,
		Timestamp:   time.Now(),
	})
	triggered := fresh && h.trigger != nil && p.Reliability >= h.minReliability
	if triggered {
		// Detached from the request: the decision pass outlives the
		// webhook response.
		go h.trigger(context.Background(), p.Coin)
	}
	c.JSON(http.StatusOK, gin.H{"accepted": fresh, "triggered": triggered})
}

func (h *handlers) balances(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade log not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "288"))
	snaps, err := h.store.ListBalances(c.Request.Context(), c.Query("venue"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snaps)
}
