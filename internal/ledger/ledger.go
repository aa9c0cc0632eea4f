// Package ledger owns per-instrument position state for one venue.
// All position mutation goes through its methods; no other component
// touches a Position directly.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"quorum/internal/logger"
	"quorum/internal/venue"
)

// Position is one open trade on one venue. Created by RecordOpen (or
// synthesized by Reconcile), destroyed by RecordClose.
type Position struct {
	Instrument       venue.Instrument
	Side             string // "long" or "short"
	EntryPrice       float64
	Size             float64
	Leverage         float64
	Margin           float64
	OpenedAt         time.Time
	SourceConfidence float64
	Synthetic        bool // true when recovered from venue state, not opened by us
}

// AccountSource is the slice of a venue adapter the ledger needs to
// hear the venue's side of the story.
type AccountSource interface {
	GetAccountInfo(ctx context.Context) (venue.AccountInfo, error)
}

const driftEps = 1e-8

// Ledger tracks at most one open position per instrument on a single
// venue. Cross-venue state is partitioned into one Ledger per venue so
// no coordination between venues is ever needed.
type Ledger struct {
	venueName string
	source    AccountSource

	mu        sync.RWMutex
	positions map[string]Position
}

func New(venueName string, source AccountSource) *Ledger {
	return &Ledger{
		venueName: strings.TrimSpace(venueName),
		source:    source,
		positions: make(map[string]Position),
	}
}

// Get returns a copy of the tracked position for symbol, if any.
func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// Open lists copies of all tracked positions.
func (l *Ledger) Open() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	return out
}

// RecordOpen stores a freshly opened position. A leftover entry for the
// same instrument is overwritten; the close-then-reopen rule upstream
// means hitting one indicates an earlier partial failure.
func (l *Ledger) RecordOpen(pos Position) {
	symbol := pos.Instrument.Symbol
	l.mu.Lock()
	if _, exists := l.positions[symbol]; exists {
		logger.Warnf("[%s] ledger: overwriting existing %s position on open", l.venueName, symbol)
	}
	l.positions[symbol] = pos
	l.mu.Unlock()
}

// RecordClose removes the position and returns its realized P&L in
// quote currency and as a fraction of notional. Closing an untracked
// instrument is an error; Reconcile should have run first.
func (l *Ledger) RecordClose(symbol string, exitPrice float64) (pnl, pnlPct float64, err error) {
	l.mu.Lock()
	pos, ok := l.positions[symbol]
	if ok {
		delete(l.positions, symbol)
	}
	l.mu.Unlock()
	if !ok {
		return 0, 0, fmt.Errorf("ledger: no %s position to close on %s", symbol, l.venueName)
	}
	pnl = RealizedPnL(pos.Side, pos.EntryPrice, exitPrice, pos.Size)
	notional := pos.EntryPrice * pos.Size
	if notional > 0 {
		pnlPct = pnl / notional
	}
	return pnl, pnlPct, nil
}

// RealizedPnL computes quote-currency P&L for a closed position.
func RealizedPnL(side string, entryPrice, exitPrice, size float64) float64 {
	if side == "short" {
		return (entryPrice - exitPrice) * size
	}
	return (exitPrice - entryPrice) * size
}

// Reconcile queries the venue's reported position for the instrument
// and makes the local record match it. The venue is the authority in
// both directions: a local record the venue no longer knows about is
// discarded, and a venue position with no local record becomes a
// synthetic entry so exit logic still covers it.
func (l *Ledger) Reconcile(ctx context.Context, inst venue.Instrument) (Position, bool, error) {
	if l.source == nil {
		return Position{}, false, fmt.Errorf("ledger: no account source for %s", l.venueName)
	}
	acct, err := l.source.GetAccountInfo(ctx)
	if err != nil {
		return Position{}, false, fmt.Errorf("ledger: account query failed on %s: %w", l.venueName, err)
	}
	report, onVenue := acct.Position(inst.Symbol)

	l.mu.Lock()
	defer l.mu.Unlock()
	local, tracked := l.positions[inst.Symbol]

	switch {
	case !onVenue && !tracked:
		return Position{}, false, nil

	case !onVenue && tracked:
		// Stale close: manual intervention or a prior partial failure.
		delete(l.positions, inst.Symbol)
		logger.Warnf("[%s] ledger: venue reports no %s position but local record exists (side=%s size=%.8f), discarding",
			l.venueName, inst.Symbol, local.Side, local.Size)
		return Position{}, false, nil

	case onVenue && !tracked:
		pos := Position{
			Instrument: inst,
			Side:       report.Side(),
			EntryPrice: report.EntryPrice,
			Size:       math.Abs(report.Size),
			Leverage:   report.Leverage,
			OpenedAt:   time.Now(),
			Synthetic:  true,
		}
		l.positions[inst.Symbol] = pos
		logger.Warnf("[%s] ledger: venue reports untracked %s position (side=%s size=%.8f entry=%.4f), adopting",
			l.venueName, inst.Symbol, pos.Side, pos.Size, pos.EntryPrice)
		return pos, true, nil

	default:
		reportSize := math.Abs(report.Size)
		if local.Side != report.Side() {
			logger.Warnf("[%s] ledger: %s side drift local=%s venue=%s, venue wins",
				l.venueName, inst.Symbol, local.Side, report.Side())
			local.Side = report.Side()
		}
		if math.Abs(local.Size-reportSize) > driftEps {
			logger.Warnf("[%s] ledger: %s size drift local=%.8f venue=%.8f, venue wins",
				l.venueName, inst.Symbol, local.Size, reportSize)
			local.Size = reportSize
		}
		if report.EntryPrice > 0 && math.Abs(local.EntryPrice-report.EntryPrice) > driftEps {
			local.EntryPrice = report.EntryPrice
		}
		l.positions[inst.Symbol] = local
		return local, true, nil
	}
}
