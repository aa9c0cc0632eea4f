// Package coordinator fans one consensus decision out to every
// configured venue. Each venue runs independently: one venue's outage
// or rejection never blocks the others.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quorum/internal/consensus"
	"quorum/internal/executor"
	"quorum/internal/exitrule"
	"quorum/internal/ledger"
	"quorum/internal/logger"
	"quorum/internal/pkg/circuit"
	"quorum/internal/store"
	"quorum/internal/venue"
)

// Stats is a rough per-venue performance snapshot for the status API.
type Stats struct {
	Balance    float64   `json:"balance"`
	TotalPnL   float64   `json:"total_pnl"`
	ROI        float64   `json:"roi"`
	Trades     int       `json:"trades"`
	Wins       int       `json:"wins"`
	WinRate    float64   `json:"win_rate"`
	UpdatedAt  time.Time `json:"updated_at"`
	Suspended  bool      `json:"suspended"`
	LastReason string    `json:"last_reason,omitempty"`
}

// Runner owns everything needed to act on one venue.
type Runner struct {
	Adapter       venue.Adapter
	Executor      *executor.Executor
	Ledger        *ledger.Ledger
	Breaker       *circuit.Breaker
	Limits        *executor.DailyLimits
	Exits         *exitrule.Engine
	Sizing        executor.SizingConfig
	MinConfidence float64
	Recorder      store.Recorder
	Group         string

	// Profiles holds this venue's own precision rules. When set, Step
	// re-resolves the instrument against them so another venue's steps
	// and ticks never shape orders placed here.
	Profiles   *venue.ProfileSet
	ProfileKey string // profile table key, defaults to the adapter name

	initialBalance float64
	mu             sync.Mutex
	stats          Stats
}

// StepResult reports what one venue did for one decision cycle.
type StepResult struct {
	Venue  string
	Action string // "open", "close", "flip", "skip"
	Result venue.OrderResult
	Reason string
}

// Step applies one consensus outcome to this venue for one instrument.
// Checks run in a fixed order: circuit breaker, reconciliation,
// price-level exits, reversal exit, then entry gating. Exits always run
// before entries.
func (r *Runner) Step(ctx context.Context, inst venue.Instrument, res consensus.Result) (StepResult, error) {
	name := r.Adapter.Name()
	out := StepResult{Venue: name, Action: "skip"}

	local, ok := r.localInstrument(ctx, inst)
	if !ok {
		out.Reason = fmt.Sprintf("no instrument profile for %s", inst.Symbol)
		return out, nil
	}
	inst = local

	if r.Breaker != nil && !r.Breaker.Allow() {
		out.Reason = "circuit breaker open"
		return out, nil
	}

	pos, hasPos, err := r.Ledger.Reconcile(ctx, inst)
	if err != nil {
		if r.Breaker != nil {
			r.Breaker.RecordFailure()
		}
		return out, fmt.Errorf("reconcile %s on %s: %w", inst.Symbol, name, err)
	}
	if r.Breaker != nil {
		r.Breaker.RecordSuccess()
	}

	if hasPos {
		md, err := r.Adapter.GetMarketData(ctx, inst.Symbol)
		if err != nil {
			return out, fmt.Errorf("market data %s on %s: %w", inst.Symbol, name, err)
		}
		exits, _, _ := r.riskSnapshot()
		trigger := exits.Evaluate(pos, md.Price, res.Action)
		if trigger != exitrule.TriggerNone {
			return r.closePosition(ctx, inst, pos, trigger, md.Price, res)
		}
	}

	if hasPos {
		out.Reason = "already holding " + pos.Side
		return out, nil
	}
	return r.enter(ctx, inst, res)
}

func (r *Runner) profileKey() string {
	if r.ProfileKey != "" {
		return r.ProfileKey
	}
	return r.Adapter.Name()
}

// localInstrument swaps in this venue's own precision rules for the
// symbol. When the coin only resolves through the profile file's
// default entry and the adapter can report live metadata, the fallback
// is refined once and written back for later steps.
func (r *Runner) localInstrument(ctx context.Context, inst venue.Instrument) (venue.Instrument, bool) {
	if r.Profiles == nil {
		return inst, true
	}
	key := r.profileKey()
	local, ok := r.Profiles.Instrument(key, inst.Symbol, inst.Venue)
	if !ok {
		return venue.Instrument{}, false
	}
	if r.Profiles.Exact(key, inst.Symbol) {
		return local, true
	}
	if mp, has := r.Adapter.(venue.MetadataProvider); has {
		meta, err := mp.InstrumentMetadata(ctx, inst.Symbol)
		if err != nil {
			logger.Debugf("metadata refresh for %s on %s failed: %v", inst.Symbol, r.Adapter.Name(), err)
			return local, true
		}
		if meta.QuantityStep.Sign() > 0 {
			local.Precision.QuantityStep = meta.QuantityStep
			if local.Precision.MinQuantity.Cmp(meta.QuantityStep) < 0 {
				local.Precision.MinQuantity = meta.QuantityStep
			}
		}
		if meta.MaxLeverage > 0 {
			local.MaxLeverage = meta.MaxLeverage
		}
		r.Profiles.Refresh(key, local)
	}
	return local, true
}

// enter opens a new position when the decision and risk gates allow it.
// The caller guarantees the venue is flat for this instrument.
func (r *Runner) enter(ctx context.Context, inst venue.Instrument, res consensus.Result) (StepResult, error) {
	name := r.Adapter.Name()
	out := StepResult{Venue: name, Action: "skip"}

	switch res.Action {
	case consensus.ActionBuy, consensus.ActionSell:
	default:
		out.Reason = "consensus hold"
		return out, nil
	}
	wantSide := "long"
	if res.Action == consensus.ActionSell {
		wantSide = "short"
	}

	_, sizing, minConfidence := r.riskSnapshot()
	if res.AvgConfidence < minConfidence {
		out.Reason = fmt.Sprintf("confidence %.1f below floor %.1f", res.AvgConfidence, minConfidence)
		return out, nil
	}
	if r.Limits != nil && !r.Limits.Allow() {
		r.setSuspended(true, "daily loss cap reached")
		out.Reason = "daily loss cap reached"
		return out, nil
	}

	margin, leverage := sizing.Size(res.AvgConfidence)
	receipt := r.Executor.OpenOrAdjust(ctx, executor.OpenParams{
		Instrument: inst,
		Side:       wantSide,
		Margin:     margin,
		Leverage:   leverage,
		Confidence: res.AvgConfidence,
		Rationale:  res.DissentSummary,
	})
	out.Action = "open"
	out.Result = receipt.Result
	out.Reason = strings.Join(receipt.Notes, "; ")
	if receipt.Result.Status == venue.StatusOK {
		r.recordTrade(ctx, store.TradeRecord{
			Time:     time.Now(),
			Venue:    name,
			Group:    r.Group,
			Symbol:   inst.Symbol,
			Action:   "open",
			Side:     receipt.Position.Side,
			Price:    receipt.Position.EntryPrice,
			Size:     receipt.Position.Size,
			Leverage: receipt.Position.Leverage,
			Reason:   fmt.Sprintf("consensus %s (%d/%d, avg %.1f)", res.Action, res.AgreementCount, res.TotalVoters, res.AvgConfidence),
		})
		return out, nil
	}
	// A failed open still leaves a trace in the append-only log with
	// the venue's rejection reason.
	r.recordTrade(ctx, store.TradeRecord{
		Time:     time.Now(),
		Venue:    name,
		Group:    r.Group,
		Symbol:   inst.Symbol,
		Action:   "open",
		Side:     wantSide,
		Leverage: float64(leverage),
		Reason:   fmt.Sprintf("%s: %s", receipt.Result.Status, receipt.Result.ErrorDetail),
	})
	return out, nil
}

func (r *Runner) closePosition(ctx context.Context, inst venue.Instrument, pos ledger.Position, trigger exitrule.Trigger, price float64, res consensus.Result) (StepResult, error) {
	name := r.Adapter.Name()
	out := StepResult{Venue: name, Action: "close", Reason: string(trigger)}

	receipt := r.Executor.Close(ctx, inst, string(trigger))
	out.Result = receipt.Result
	if !receipt.Closed {
		r.recordTrade(ctx, store.TradeRecord{
			Time:     time.Now(),
			Venue:    name,
			Group:    r.Group,
			Symbol:   inst.Symbol,
			Action:   "close",
			Side:     pos.Side,
			Price:    price,
			Leverage: pos.Leverage,
			Reason:   fmt.Sprintf("%s failed, %s: %s", trigger, receipt.Result.Status, receipt.Result.ErrorDetail),
		})
		return out, nil
	}
	if r.Limits != nil {
		r.Limits.RecordTrade(receipt.PnL)
	}
	r.recordTrade(ctx, store.TradeRecord{
		Time:     time.Now(),
		Venue:    name,
		Group:    r.Group,
		Symbol:   inst.Symbol,
		Action:   "close",
		Side:     pos.Side,
		Price:    price,
		Size:     receipt.Size,
		PnL:      receipt.PnL,
		PnLPct:   receipt.PnLPct,
		Leverage: pos.Leverage,
		Reason:   string(trigger),
	})
	r.tallyClose(receipt.PnL)

	// A reversal exit is immediately followed by an entry in the new
	// direction when confidence clears the floor.
	if trigger == exitrule.TriggerReversal {
		flip, err := r.enter(ctx, inst, res)
		if err != nil {
			logger.Warnf("flip after reversal on %s failed: %v", name, err)
			return out, nil
		}
		if flip.Action == "open" {
			out.Action = "flip"
			out.Result = flip.Result
			out.Reason = flip.Reason
		}
	}
	return out, nil
}

func (r *Runner) recordTrade(ctx context.Context, rec store.TradeRecord) {
	if r.Recorder == nil {
		return
	}
	if err := r.Recorder.AppendTrade(ctx, rec); err != nil {
		logger.Warnf("recording trade on %s failed: %v", rec.Venue, err)
	}
}

// ApplyRisk swaps the risk gates at runtime, used by the config file
// watcher. Takes effect from the next step.
func (r *Runner) ApplyRisk(exits *exitrule.Engine, sizing executor.SizingConfig, minConfidence float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Exits = exits
	r.Sizing = sizing
	r.MinConfidence = minConfidence
}

func (r *Runner) riskSnapshot() (*exitrule.Engine, executor.SizingConfig, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Exits, r.Sizing, r.MinConfidence
}

func (r *Runner) tallyClose(pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Trades++
	r.stats.TotalPnL += pnl
	if pnl > 0 {
		r.stats.Wins++
	}
	r.stats.WinRate = float64(r.stats.Wins) / float64(r.stats.Trades)
	r.stats.UpdatedAt = time.Now()
}

func (r *Runner) setSuspended(v bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Suspended = v
	r.stats.LastReason = reason
}

// RefreshStats polls the venue balance and persists a snapshot.
// Failures leave the previous snapshot in place.
func (r *Runner) RefreshStats(ctx context.Context) {
	info, err := r.Adapter.GetAccountInfo(ctx)
	if err != nil {
		logger.Warnf("refreshing stats on %s failed: %v", r.Adapter.Name(), err)
		return
	}
	r.mu.Lock()
	if r.initialBalance == 0 {
		r.initialBalance = info.Balance
	}
	r.stats.Balance = info.Balance
	if r.initialBalance > 0 {
		r.stats.ROI = (info.Balance - r.initialBalance) / r.initialBalance
	}
	r.stats.UpdatedAt = time.Now()
	snap := store.BalanceSnapshot{
		Time:    time.Now(),
		Venue:   r.Adapter.Name(),
		Group:   r.Group,
		Balance: info.Balance,
		PnL:     r.stats.TotalPnL,
		ROI:     r.stats.ROI,
	}
	r.mu.Unlock()
	if r.Recorder != nil {
		if err := r.Recorder.AppendBalance(ctx, snap); err != nil {
			logger.Warnf("recording balance on %s failed: %v", r.Adapter.Name(), err)
		}
	}
}

// Stats returns a copy of the current per-venue snapshot.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Coordinator holds every venue runner and fans decisions out.
type Coordinator struct {
	runners []*Runner
}

func New(runners ...*Runner) *Coordinator {
	return &Coordinator{runners: runners}
}

// Runners returns the managed runners, for the status API.
func (c *Coordinator) Runners() []*Runner { return c.runners }

// ExecuteEverywhere applies one decision on all venues concurrently and
// returns per-venue outcomes keyed by venue name. Individual failures
// are logged and reported in the map, never as a combined error.
func (c *Coordinator) ExecuteEverywhere(ctx context.Context, inst venue.Instrument, res consensus.Result) map[string]StepResult {
	var mu sync.Mutex
	results := make(map[string]StepResult, len(c.runners))

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range c.runners {
		r := r
		g.Go(func() error {
			out, err := r.Step(ctx, inst, res)
			if err != nil {
				logger.Errorf("venue %s: %v", r.Adapter.Name(), err)
				out.Reason = err.Error()
			}
			mu.Lock()
			results[r.Adapter.Name()] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RefreshAll polls balances for every venue.
func (c *Coordinator) RefreshAll(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range c.runners {
		r := r
		g.Go(func() error {
			r.RefreshStats(ctx)
			return nil
		})
	}
	_ = g.Wait()
}
