// Package listing tracks new-instrument listing events and suppresses
// duplicate alerts for the same coin inside a cooldown window.
package listing

import (
	"strings"
	"sync"
	"time"

	"quorum/internal/logger"
)

// Event is one observed listing announcement.
type Event struct {
	Coin        string
	Source      string
	Reliability float64 // 0..1, how much the source is trusted
	RawText     string
	Timestamp   time.Time
}

// Tracker deduplicates events per coin. The same coin reported by a
// second source inside the cooldown is treated as confirmation, not as
// a fresh event.
type Tracker struct {
	cooldown time.Duration
	nowFn    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	return &Tracker{
		cooldown: cooldown,
		nowFn:    time.Now,
		seen:     make(map[string]time.Time),
	}
}

// Observe records an event and reports whether it is the first sighting
// of the coin inside the cooldown window.
func (t *Tracker) Observe(ev Event) bool {
	coin := normalizeCoin(ev.Coin)
	if coin == "" {
		return false
	}
	now := t.nowFn()
	if !ev.Timestamp.IsZero() {
		now = ev.Timestamp
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.gc(now)
	if last, ok := t.seen[coin]; ok && now.Sub(last) < t.cooldown {
		logger.Debugf("listing: %s from %s suppressed, first seen %s ago", coin, ev.Source, now.Sub(last))
		return false
	}
	t.seen[coin] = now
	logger.Infof("listing: new coin %s via %s (reliability %.2f)", coin, ev.Source, ev.Reliability)
	return true
}

func (t *Tracker) gc(now time.Time) {
	for coin, at := range t.seen {
		if now.Sub(at) >= t.cooldown {
			delete(t.seen, coin)
		}
	}
}

func normalizeCoin(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	coin = strings.TrimSuffix(coin, "USDT")
	coin = strings.TrimSuffix(coin, "USD")
	return coin
}
