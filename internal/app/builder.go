package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/arena"
	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/coordinator"
	"quorum/internal/executor"
	"quorum/internal/exitrule"
	"quorum/internal/ledger"
	"quorum/internal/listing"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/oracle"
	"quorum/internal/pkg/circuit"
	"quorum/internal/scheduler"
	"quorum/internal/store"
	"quorum/internal/transport/httpapi"
	"quorum/internal/venue"

	// Venue drivers register themselves with the factory.
	_ "quorum/internal/venue/aster"
	_ "quorum/internal/venue/hyperliquid"
)

// Venue adapters that fail this many reconciles in a row are taken out
// of rotation until the cool-down elapses.
const (
	breakerThreshold = 3
	breakerCooldown  = 2 * time.Minute
)

type AppBuilder struct {
	cfg *config.Config

	storeFn   func(string) (*store.Store, error)
	adapterFn func(venue.Settings) (venue.Adapter, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   store.Open,
		adapterFn: venue.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithStoreOpener overrides trade-log creation, for tests.
func WithStoreOpener(fn func(string) (*store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storeFn = fn
		}
	}
}

// WithAdapterFactory overrides venue adapter construction, for tests.
func WithAdapterFactory(fn func(venue.Settings) (venue.Adapter, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.adapterFn = fn
		}
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	profiles, err := venue.LoadProfiles(strings.TrimSpace(cfg.Instruments))
	if err != nil {
		return nil, err
	}

	st, err := b.storeFn(cfg.App.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening trade log failed: %w", err)
	}

	oracles := oracle.BuildFromConfig(oracleConfigs(cfg.Oracles), time.Duration(cfg.Decision.TimeoutSeconds)*time.Second)
	if len(oracles) == 0 {
		return nil, fmt.Errorf("no enabled oracles")
	}
	logger.Infof("oracles ready: %d of %d configured", len(oracles), len(cfg.Oracles))
	dispatch := consensus.NewDispatcher(oracles, time.Duration(cfg.Decision.TimeoutSeconds)*time.Second)

	runners, marketAdapter, marketKey, err := b.buildRunners(cfg, st, profiles)
	if err != nil {
		return nil, err
	}
	coord := coordinator.New(runners...)

	interval, ok := scheduler.ParseIntervalDuration(cfg.Decision.Interval)
	if !ok {
		return nil, fmt.Errorf("invalid decision.interval %q", cfg.Decision.Interval)
	}
	sched := scheduler.NewAligned(interval, time.Duration(cfg.Decision.OffsetSeconds)*time.Second)
	sched.RunImmediately = cfg.Decision.RunImmediately

	ar := arena.New(arena.Config{
		Symbols:    cfg.Decision.Symbols,
		MinVotes:   cfg.Decision.MinVotes,
		Group:      cfg.App.Env,
		ProfileKey: marketKey,
	}, &market.Builder{Adapter: marketAdapter}, dispatch, coord, profiles, st)

	var tracker *listing.Tracker
	var trigger func(context.Context, string)
	if cfg.Listing.Enabled {
		tracker = listing.NewTracker(time.Duration(cfg.Listing.CooldownMinutes) * time.Minute)
		trigger = ar.TriggerSymbol
	}

	httpSrv, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:               cfg.App.HTTPAddr,
		Coordinator:        coord,
		Store:              st,
		Listings:           tracker,
		ListingTrigger:     trigger,
		ListingReliability: cfg.Listing.MinReliability,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		arena:   ar,
		sched:   sched,
		coord:   coord,
		httpSrv: httpSrv,
		store:   st,
	}, nil
}

func (b *AppBuilder) buildRunners(cfg *config.Config, st *store.Store, profiles *venue.ProfileSet) ([]*coordinator.Runner, venue.Adapter, string, error) {
	exits := exitrule.New(exitrule.Config{
		StopLossPct:   cfg.Risk.StopLossPct,
		TakeProfitPct: cfg.Risk.TakeProfitPct,
	})
	sizing := executor.SizingConfig{
		MinMargin:       cfg.Risk.MinMargin,
		MaxMargin:       cfg.Risk.MaxMargin,
		LeverageFloor:   cfg.Risk.LeverageFloor,
		LeverageCeiling: cfg.Risk.LeverageCeiling,
		ConfidenceFloor: cfg.Risk.ConfidenceFloor,
	}

	runners := make([]*coordinator.Runner, 0, len(cfg.Venues))
	var marketAdapter venue.Adapter
	var marketKey string
	for _, vc := range cfg.Venues {
		name := vc.Name
		if name == "" {
			name = vc.Driver
		}
		// Precision profiles are keyed by driver: two accounts on the
		// same venue share one rule set.
		if !profiles.HasVenue(vc.Driver) {
			return nil, nil, "", fmt.Errorf("no instrument profiles for venue driver %q", vc.Driver)
		}
		ad, err := b.adapterFn(venue.Settings{
			Name:           name,
			Driver:         vc.Driver,
			BaseURL:        vc.BaseURL,
			APIKey:         vc.APIKey,
			APISecret:      vc.APISecret,
			PrivateKey:     vc.PrivateKey,
			WalletAddress:  vc.WalletAddress,
			TimeoutSeconds: vc.TimeoutSeconds,
			Testnet:        vc.Testnet,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("venue %s: %w", name, err)
		}
		led := ledger.New(name, ad)
		runners = append(runners, &coordinator.Runner{
			Adapter:       ad,
			Executor:      executor.New(ad, led, executor.Config{}),
			Ledger:        led,
			Breaker:       circuit.NewBreaker(name, breakerThreshold, breakerCooldown),
			Limits:        executor.NewDailyLimits(cfg.Risk.DailyLossCap),
			Exits:         exits,
			Sizing:        sizing,
			MinConfidence: cfg.Risk.ConfidenceFloor,
			Recorder:      st,
			Group:         cfg.App.Env,
			Profiles:      profiles,
			ProfileKey:    vc.Driver,
		})
		if vc.MarketSource && marketAdapter == nil {
			marketAdapter = ad
			marketKey = vc.Driver
		}
		logger.Infof("venue %s ready (driver=%s)", name, vc.Driver)
	}
	if len(runners) == 0 {
		return nil, nil, "", fmt.Errorf("no venues configured")
	}
	if marketAdapter == nil {
		marketAdapter = runners[0].Adapter
		marketKey = cfg.Venues[0].Driver
		logger.Infof("market data source defaulting to %s", marketAdapter.Name())
	}
	return runners, marketAdapter, marketKey, nil
}

func oracleConfigs(entries []config.OracleConfig) []oracle.Config {
	out := make([]oracle.Config, 0, len(entries))
	for _, e := range entries {
		out = append(out, oracle.Config{
			ID:         e.ID,
			Provider:   e.Provider,
			APIURL:     e.APIURL,
			APIKey:     e.APIKey,
			Model:      e.Model,
			Enabled:    !e.Disabled,
			Timeout:    time.Duration(e.TimeoutSeconds) * time.Second,
			MaxRetries: e.MaxRetries,
		})
	}
	return out
}
