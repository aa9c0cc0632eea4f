// Package exitrule evaluates stop-loss, take-profit, and reversal
// conditions for open positions once per decision cycle.
package exitrule

import (
	"math"

	"github.com/shopspring/decimal"

	"quorum/internal/consensus"
	"quorum/internal/ledger"
)

// Trigger is the outcome of one evaluation.
type Trigger string

const (
	TriggerNone       Trigger = "hold"
	TriggerStopLoss   Trigger = "stop_loss"
	TriggerTakeProfit Trigger = "take_profit"
	TriggerReversal   Trigger = "reversal"
)

// Config carries the per-engine exit thresholds, expressed as fractions
// (0.15 = 15%).
type Config struct {
	StopLossPct   float64
	TakeProfitPct float64
}

// Engine is stateless across cycles; positions themselves carry all the
// state an evaluation needs.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// returnPct computes (price-entry)/entry in decimal so an exact
// threshold hit compares equal instead of drifting past it.
func returnPct(entry, price float64) decimal.Decimal {
	e := decFromFloat(entry)
	if e.Sign() <= 0 {
		return decimal.Zero
	}
	return decFromFloat(price).Sub(e).Div(e)
}

// EvaluatePrice runs the price-driven checks. Stop-loss is checked
// before take-profit, so when an extreme intrabar move would fire both
// the stop wins. Comparisons are inclusive: hitting the threshold
// exactly triggers.
func (e *Engine) EvaluatePrice(pos ledger.Position, currentPrice float64) Trigger {
	if pos.Side == "" || pos.EntryPrice <= 0 || currentPrice <= 0 {
		return TriggerNone
	}
	ret := returnPct(pos.EntryPrice, currentPrice)
	sl := decFromFloat(e.cfg.StopLossPct)
	tp := decFromFloat(e.cfg.TakeProfitPct)

	if pos.Side == "short" {
		ret = ret.Neg()
	}
	if sl.Sign() > 0 && ret.Cmp(sl.Neg()) <= 0 {
		return TriggerStopLoss
	}
	if tp.Sign() > 0 && ret.Cmp(tp) >= 0 {
		return TriggerTakeProfit
	}
	return TriggerNone
}

// Reversal reports whether a fresh consensus action opposes the open
// position's side. A strong opposite signal always justifies at least a
// close, even when its confidence would be too low to open fresh, so
// no confidence gate applies here.
func Reversal(pos ledger.Position, action consensus.Action) bool {
	switch pos.Side {
	case "long":
		return action == consensus.ActionSell
	case "short":
		return action == consensus.ActionBuy
	default:
		return false
	}
}

// Evaluate combines both checks in the mandated order: price-driven
// exits are decided before the fresh decision is consulted.
func (e *Engine) Evaluate(pos ledger.Position, currentPrice float64, action consensus.Action) Trigger {
	if trig := e.EvaluatePrice(pos, currentPrice); trig != TriggerNone {
		return trig
	}
	if Reversal(pos, action) {
		return TriggerReversal
	}
	return TriggerNone
}
