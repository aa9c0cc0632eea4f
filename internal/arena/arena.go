// Package arena runs the decision loop: build the market snapshot,
// poll every oracle, tally the vote, and hand the winning action to
// the coordinator for execution on every venue.
package arena

import (
	"context"
	"strings"
	"time"

	"quorum/internal/consensus"
	"quorum/internal/coordinator"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/oracle"
	"quorum/internal/store"
	"quorum/internal/venue"
)

// Config is the per-cycle decision policy.
type Config struct {
	Symbols       []string
	MinVotes      int
	Group         string // experiment label recorded on decisions
	StatsInterval int    // balance snapshots every N cycles, default 4

	// ProfileKey selects the profile table for the market-data venue's
	// own instrument view. Defaults to the market adapter's name.
	ProfileKey string
}

// Arena owns one decision loop over a fixed symbol set.
type Arena struct {
	cfg      Config
	builder  *market.Builder
	dispatch *consensus.Dispatcher
	coord    *coordinator.Coordinator
	profiles *venue.ProfileSet
	recorder store.Recorder

	cycles int
}

func New(cfg Config, builder *market.Builder, dispatch *consensus.Dispatcher, coord *coordinator.Coordinator, profiles *venue.ProfileSet, recorder store.Recorder) *Arena {
	if cfg.MinVotes <= 0 {
		cfg.MinVotes = 2
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 4
	}
	return &Arena{
		cfg:      cfg,
		builder:  builder,
		dispatch: dispatch,
		coord:    coord,
		profiles: profiles,
		recorder: recorder,
	}
}

// RunCycle processes every configured symbol once. Panics inside a
// symbol's processing are contained so one poisoned instrument cannot
// kill the loop.
func (a *Arena) RunCycle(ctx context.Context) {
	start := time.Now()
	for _, symbol := range a.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		a.runSymbol(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
	}
	a.cycles++
	if a.cycles%a.cfg.StatsInterval == 0 {
		a.coord.RefreshAll(ctx)
	}
	logger.Infof("cycle complete: %d symbols in %s", len(a.cfg.Symbols), time.Since(start).Truncate(time.Millisecond))
}

// TriggerSymbol runs one immediate decision pass for a single coin,
// outside the aligned schedule. Used for listing announcements.
func (a *Arena) TriggerSymbol(ctx context.Context, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}
	logger.Infof("listing trigger: immediate decision pass for %s", symbol)
	a.runSymbol(ctx, symbol)
}

func (a *Arena) runSymbol(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("cycle for %s panicked: %v", symbol, r)
		}
	}()

	key := a.cfg.ProfileKey
	if key == "" {
		key = a.builder.Adapter.Name()
	}
	inst, ok := a.profiles.Instrument(key, symbol, venue.KindCEX)
	if !ok {
		logger.Warnf("no instrument profile for %s, skipping", symbol)
		return
	}

	snap, err := a.builder.BuildSnapshot(ctx, symbol, nil)
	if err != nil {
		logger.Errorf("snapshot for %s failed: %v", symbol, err)
		return
	}
	snap.Position = a.positionContext(symbol, snap.Market.Price)

	decisions := a.dispatch.Dispatch(ctx, inst, snap)
	result := consensus.Vote(decisions, a.cfg.MinVotes)
	logger.Infof("%s: consensus %s (%d/%d agree, avg confidence %.1f)",
		symbol, result.Action, result.AgreementCount, result.TotalVoters, result.AvgConfidence)

	a.logDecision(ctx, symbol, decisions, result)

	outcomes := a.coord.ExecuteEverywhere(ctx, inst, result)
	for venueName, out := range outcomes {
		if out.Action == "skip" && out.Reason == "consensus hold" {
			continue
		}
		logger.Infof("%s on %s: %s (%s)", symbol, venueName, out.Action, out.Reason)
	}
}

// positionContext reports the first venue's open position for the
// symbol, for the oracle prompt. Positions are near-identical across
// venues because every venue executes the same decisions.
func (a *Arena) positionContext(symbol string, markPrice float64) *oracle.PositionInfo {
	for _, r := range a.coord.Runners() {
		if pos, ok := r.Ledger.Get(symbol); ok {
			return market.PositionContext(pos, markPrice)
		}
	}
	return nil
}

func (a *Arena) logDecision(ctx context.Context, symbol string, decisions []oracle.Decision, result consensus.Result) {
	if a.recorder == nil {
		return
	}
	votes := make([]store.DecisionVote, 0, len(decisions))
	for _, d := range decisions {
		votes = append(votes, store.DecisionVote{
			Oracle:     d.Oracle,
			Direction:  string(d.Direction),
			Confidence: d.Confidence,
		})
	}
	err := a.recorder.AppendDecision(ctx, store.DecisionLog{
		Time:           time.Now(),
		Group:          a.cfg.Group,
		Symbol:         symbol,
		Action:         string(result.Action),
		AgreementCount: result.AgreementCount,
		TotalVoters:    result.TotalVoters,
		AvgConfidence:  result.AvgConfidence,
		Votes:          votes,
	})
	if err != nil {
		logger.Warnf("recording decision for %s failed: %v", symbol, err)
	}
}
