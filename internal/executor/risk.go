package executor

import (
	"sync"
	"time"

	"quorum/internal/logger"
)

// DailyLimits is a per-venue guard against runaway losing days: once
// realized losses exceed the cap, no new positions open until the next
// calendar day.
type DailyLimits struct {
	LossCap float64 // quote currency; 0 disables the cap

	mu         sync.Mutex
	pnl        float64
	tradeCount int
	day        time.Time
	nowFn      func() time.Time
}

func NewDailyLimits(lossCap float64) *DailyLimits {
	return &DailyLimits{LossCap: lossCap, nowFn: time.Now}
}

func (d *DailyLimits) rollover() {
	today := d.nowFn().Truncate(24 * time.Hour)
	if !today.Equal(d.day) {
		if !d.day.IsZero() {
			logger.Infof("risk: new trading day, yesterday pnl=%.2f trades=%d", d.pnl, d.tradeCount)
		}
		d.pnl = 0
		d.tradeCount = 0
		d.day = today
	}
}

// Allow reports whether a new position may open today.
func (d *DailyLimits) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	if d.LossCap > 0 && d.pnl < -d.LossCap {
		logger.Warnf("risk: daily loss cap reached (pnl=%.2f cap=%.2f), blocking new entries", d.pnl, d.LossCap)
		return false
	}
	return true
}

// RecordTrade accumulates one closed trade's realized pnl.
func (d *DailyLimits) RecordTrade(pnl float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollover()
	d.pnl += pnl
	d.tradeCount++
}
