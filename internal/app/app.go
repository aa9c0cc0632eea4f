// Package app assembles the configured components into a runnable
// trading process: venue runners, the oracle dispatcher, the decision
// loop, the status API, and the trade log.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"quorum/internal/arena"
	"quorum/internal/config"
	"quorum/internal/coordinator"
	"quorum/internal/executor"
	"quorum/internal/exitrule"
	"quorum/internal/logger"
	"quorum/internal/scheduler"
	"quorum/internal/store"
	"quorum/internal/transport/httpapi"
)

// App owns the assembled process. Build it with NewApp, drive it with
// Run; Run blocks until ctx is cancelled or a component fails.
type App struct {
	cfg     *config.Config
	arena   *arena.Arena
	sched   *scheduler.Aligned
	coord   *coordinator.Coordinator
	httpSrv *httpapi.Server
	store   *store.Store
}

// NewApp builds the application from a loaded configuration without
// starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the HTTP server, the decision loop, and the optional risk
// watcher, and blocks until the first of them stops.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.arena == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.httpSrv != nil {
		group.Go(func() error {
			logger.Infof("status API listening on %s", a.httpSrv.Addr())
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		a.sched.Start(ctx, func() {
			a.arena.RunCycle(ctx)
		})
		return nil
	})

	if a.cfg.Risk.WatchReload {
		group.Go(func() error {
			// A broken watcher degrades to a fixed risk profile, it
			// does not stop trading.
			if err := config.WatchRisk(ctx, a.cfg.SourcePath(), a.applyRisk); err != nil {
				logger.Warnf("risk watcher stopped: %v", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// Close releases held resources. Safe to call more than once.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("closing trade log failed: %v", err)
		}
		a.store = nil
	}
}

func (a *App) applyRisk(risk config.RiskConfig) {
	exits := exitrule.New(exitrule.Config{
		StopLossPct:   risk.StopLossPct,
		TakeProfitPct: risk.TakeProfitPct,
	})
	sizing := executor.SizingConfig{
		MinMargin:       risk.MinMargin,
		MaxMargin:       risk.MaxMargin,
		LeverageFloor:   risk.LeverageFloor,
		LeverageCeiling: risk.LeverageCeiling,
		ConfidenceFloor: risk.ConfidenceFloor,
	}
	for _, r := range a.coord.Runners() {
		r.ApplyRisk(exits, sizing, risk.ConfidenceFloor)
	}
	logger.Infof("risk profile applied: sl=%.2f tp=%.2f margin=[%.0f,%.0f] lev=[%d,%d] floor=%.0f",
		risk.StopLossPct, risk.TakeProfitPct, risk.MinMargin, risk.MaxMargin,
		risk.LeverageFloor, risk.LeverageCeiling, risk.ConfidenceFloor)
}

// Coordinator exposes the venue coordinator, for testing harnesses.
func (a *App) Coordinator() *coordinator.Coordinator {
	if a == nil {
		return nil
	}
	return a.coord
}
