// Package executor turns abstract trading decisions into submitted,
// venue-legal orders with slippage protection and bounded retries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quorum/internal/ledger"
	"quorum/internal/logger"
	"quorum/internal/precision"
	"quorum/internal/venue"
)

// Config bounds the executor's behavior. Zero values fall back to the
// defaults the constructor applies.
type Config struct {
	MaxAttempts  int           // order submission attempts, default 3
	SlippageBase float64       // first-attempt slippage fraction, default 0.001
	RetryBackoff time.Duration // base wait between attempts, default 500ms
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SlippageBase <= 0 {
		c.SlippageBase = 0.001
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Executor executes against exactly one venue; the coordinator runs one
// per venue. Retries are sequential so the slippage escalation stays
// monotonic.
type Executor struct {
	adapter venue.Adapter
	ledger  *ledger.Ledger
	cfg     Config
	log     logger.VenueLog

	sleep func(context.Context, time.Duration)
}

func New(adapter venue.Adapter, led *ledger.Ledger, cfg Config) *Executor {
	return &Executor{
		adapter: adapter,
		ledger:  led,
		cfg:     cfg.withDefaults(),
		log:     logger.ForVenue(adapter.Name()),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// slippageAt escalates the buffer per attempt: with the 0.1% base that
// is 0.10%, 0.15%, 0.20%. Later attempts trade price for certainty of
// fill.
func (e *Executor) slippageAt(attempt int) float64 {
	return e.cfg.SlippageBase * (1 + 0.5*float64(attempt))
}

func bufferedPrice(base, slippage float64, isBuy bool) float64 {
	if isBuy {
		return base * (1 + slippage)
	}
	return base * (1 - slippage)
}

// resolvePrice picks the book side that guarantees fill priority: asks
// for buys, bids for sells.
func (e *Executor) resolvePrice(ctx context.Context, symbol string, isBuy bool) (float64, error) {
	book, err := e.adapter.GetOrderbook(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("orderbook query failed: %w", err)
	}
	var px float64
	if isBuy {
		px = book.BestAsk()
	} else {
		px = book.BestBid()
	}
	if px <= 0 {
		return 0, fmt.Errorf("empty orderbook side for %s", symbol)
	}
	return px, nil
}

// OpenParams are the inputs for one open attempt, already sized by the
// caller's risk rules.
type OpenParams struct {
	Instrument venue.Instrument
	Side       string // "long" or "short"
	Margin     float64
	Leverage   int
	Confidence float64
	Rationale  string
	Price      float64 // optional explicit base price; 0 means resolve from the book
}

// OpenReceipt is what an open attempt produced.
type OpenReceipt struct {
	Result   venue.OrderResult
	Position ledger.Position
	Notes    []string
}

// OpenOrAdjust sizes, normalizes, and submits an opening order, then
// records the position in the ledger. It never returns an error: every
// failure mode collapses into Result.Status so one venue's trouble
// stays contained.
func (e *Executor) OpenOrAdjust(ctx context.Context, p OpenParams) OpenReceipt {
	rec := OpenReceipt{}
	inst := p.Instrument
	isBuy := p.Side == "long"

	leverage := p.Leverage
	if inst.MaxLeverage > 0 && leverage > inst.MaxLeverage {
		note := fmt.Sprintf("leverage clamped %dx -> %dx (venue max)", leverage, inst.MaxLeverage)
		rec.Notes = append(rec.Notes, note)
		e.log.Warnf("%s: %s", inst.Symbol, note)
		leverage = inst.MaxLeverage
	}
	if leverage < 1 {
		leverage = 1
	}

	if err := e.adapter.UpdateLeverage(ctx, inst.Symbol, leverage); err != nil {
		// Best effort: the venue keeps its current setting.
		e.log.Warnf("%s: leverage update failed, keeping current: %v", inst.Symbol, err)
		rec.Notes = append(rec.Notes, "leverage update failed, venue setting kept")
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			e.sleep(ctx, e.cfg.RetryBackoff*time.Duration(attempt))
		}
		basePx := p.Price
		if basePx <= 0 {
			px, err := e.resolvePrice(ctx, inst.Symbol, isBuy)
			if err != nil {
				lastErr = err
				continue
			}
			basePx = px
		}

		slip := e.slippageAt(attempt)
		limitPx := precision.NormalizePrice(inst, bufferedPrice(basePx, slip, isBuy))
		rawSize := p.Margin * float64(leverage) / bufferedPrice(basePx, slip, isBuy)
		size := precision.NormalizeQuantity(inst, rawSize, true)

		if verr := precision.Validate(inst, size, limitPx); verr != nil {
			// One correction pass from the notional floor, then give up.
			size = precision.CorrectQuantity(inst, limitPx)
			if verr = precision.Validate(inst, size, limitPx); verr != nil {
				rec.Result = venue.OrderResult{Status: venue.StatusRejected, ErrorDetail: verr.Error()}
				return rec
			}
			rec.Notes = append(rec.Notes, "quantity corrected up to clear notional floor")
		}

		req := venue.OrderRequest{
			Instrument:    inst,
			IsBuy:         isBuy,
			Size:          size,
			Price:         limitPx,
			Leverage:      leverage,
			TimeInForce:   "GTC",
			ClientOrderID: uuid.NewString(),
		}
		e.log.Infof("open %s %s size=%.8g limit=%.6g margin=%.2f lev=%dx slip=%.2f%% attempt=%d",
			p.Side, inst.Symbol, size, limitPx, p.Margin, leverage, slip*100, attempt+1)

		res, err := e.adapter.PlaceOrder(ctx, req)
		if err == nil && res.Status == venue.StatusOK {
			entryPx := basePx
			if res.AvgFillPrice > 0 {
				entryPx = res.AvgFillPrice
			}
			pos := ledger.Position{
				Instrument:       inst,
				Side:             p.Side,
				EntryPrice:       entryPx,
				Size:             size,
				Leverage:         float64(leverage),
				Margin:           p.Margin,
				OpenedAt:         time.Now(),
				SourceConfidence: p.Confidence,
			}
			if res.FilledSize > 0 {
				pos.Size = res.FilledSize
			}
			e.ledger.RecordOpen(pos)
			rec.Result = res
			rec.Position = pos
			return rec
		}
		lastErr = errFromResult(res, err)
		// Only venue-tagged transient failures are worth another
		// attempt; rejections and fatal errors surface immediately.
		if !venue.IsTransient(lastErr) {
			break
		}
		e.log.Warnf("open attempt %d/%d failed: %v", attempt+1, e.cfg.MaxAttempts, lastErr)
	}

	rec.Result = venue.OrderResult{Status: venue.StatusError, ErrorDetail: errDetail(lastErr)}
	return rec
}

// CloseReceipt is what a close attempt produced.
type CloseReceipt struct {
	Result venue.OrderResult
	Closed bool
	PnL    float64
	PnLPct float64
	Size   float64
}

// Close flattens the tracked position for the instrument. The size
// comes from the venue's own report via Reconcile, never from local
// memory, so precision differences between open and close cannot leave
// dust behind. The order is reduce-only with IOC so it can never flip
// the position.
func (e *Executor) Close(ctx context.Context, inst venue.Instrument, reason string) CloseReceipt {
	rec := CloseReceipt{}

	pos, ok, err := e.ledger.Reconcile(ctx, inst)
	if err != nil {
		rec.Result = venue.OrderResult{Status: venue.StatusError, ErrorDetail: errDetail(err)}
		return rec
	}
	if !ok {
		rec.Result = venue.OrderResult{Status: venue.StatusRejected, ErrorDetail: "no position on venue"}
		return rec
	}

	isBuy := pos.Side == "short" // closing a short buys it back
	size := precision.NormalizeQuantity(inst, pos.Size, false)

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			e.sleep(ctx, e.cfg.RetryBackoff*time.Duration(attempt))
		}
		basePx, err := e.resolvePrice(ctx, inst.Symbol, isBuy)
		if err != nil {
			lastErr = err
			continue
		}
		slip := e.slippageAt(attempt)
		limitPx := precision.NormalizePrice(inst, bufferedPrice(basePx, slip, isBuy))
		if limitPx <= 0 {
			rec.Result = venue.OrderResult{Status: venue.StatusRejected, ErrorDetail: "price rounds to zero at tick granularity"}
			return rec
		}

		req := venue.OrderRequest{
			Instrument:    inst,
			IsBuy:         isBuy,
			Size:          size,
			Price:         limitPx,
			ReduceOnly:    true,
			TimeInForce:   "IOC",
			ClientOrderID: uuid.NewString(),
		}
		e.log.Infof("close %s %s size=%.8g limit=%.6g reason=%q attempt=%d",
			pos.Side, inst.Symbol, size, limitPx, reason, attempt+1)

		res, err := e.adapter.PlaceOrder(ctx, req)
		if err == nil && res.Status == venue.StatusOK {
			closePx := basePx
			if res.AvgFillPrice > 0 {
				closePx = res.AvgFillPrice
			}
			pnl, pct, cerr := e.ledger.RecordClose(inst.Symbol, closePx)
			if cerr != nil {
				e.log.Warnf("close recorded on venue but not in ledger: %v", cerr)
			}
			rec.Result = res
			rec.Closed = true
			rec.PnL = pnl
			rec.PnLPct = pct
			rec.Size = size
			return rec
		}
		lastErr = errFromResult(res, err)
		if !venue.IsTransient(lastErr) {
			break
		}
		e.log.Warnf("close attempt %d/%d failed: %v", attempt+1, e.cfg.MaxAttempts, lastErr)
	}

	rec.Result = venue.OrderResult{Status: venue.StatusError, ErrorDetail: errDetail(lastErr)}
	return rec
}

func errFromResult(res venue.OrderResult, err error) error {
	if err != nil {
		return err
	}
	detail := strings.TrimSpace(res.ErrorDetail)
	if detail == "" {
		detail = string(res.Status)
	}
	return errors.New(detail)
}

func errDetail(err error) string {
	if err == nil {
		return "order not filled"
	}
	return err.Error()
}
