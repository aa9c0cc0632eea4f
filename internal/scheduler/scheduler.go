// Package scheduler runs the decision loop on a fixed, wall-clock
// aligned cadence.
package scheduler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"quorum/internal/logger"
)

// ParseIntervalDuration parses "30s", "15m", "1h", "4h", "1d" into a
// time.Duration. Returns (0, false) on invalid input.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Aligned fires a task at every UTC boundary of Interval, optionally
// shifted by Offset. Alignment keeps multiple deployments sampling the
// same candle closes instead of drifting with process start time.
type Aligned struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewAligned(interval, offset time.Duration) *Aligned {
	return &Aligned{
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// Start blocks, running task once per aligned interval until ctx is
// cancelled. The task runs inline; a slow task delays the next tick
// rather than overlapping it.
func (s *Aligned) Start(ctx context.Context, task func()) {
	if task == nil || s.Interval <= 0 {
		logger.Warnf("scheduler: nothing to run (interval=%s)", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler: started interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		wakeAt, wait := s.next(now)
		logger.Infof("scheduler: next cycle at %s (in %s)",
			wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait <= 0 {
			task()
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("scheduler: context done, exit")
			return
		case <-timer.C:
		}
		task()
	}
}

func (s *Aligned) next(now time.Time) (wakeAt time.Time, wait time.Duration) {
	wakeAt = now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
	return wakeAt, wakeAt.Sub(now)
}
