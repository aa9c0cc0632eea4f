package consensus

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quorum/internal/logger"
	"quorum/internal/oracle"
	"quorum/internal/venue"
)

// Dispatcher fans one analysis request out to every oracle in parallel
// and collects the answers. Oracles that error, time out, or panic are
// dropped from the result set so an outage never biases the vote.
type Dispatcher struct {
	Oracles []oracle.Oracle
	Timeout time.Duration
}

func NewDispatcher(oracles []oracle.Oracle, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Dispatcher{Oracles: oracles, Timeout: timeout}
}

// Dispatch returns the decisions of every oracle that answered in time.
func (d *Dispatcher) Dispatch(ctx context.Context, inst venue.Instrument, snap oracle.Snapshot) []oracle.Decision {
	if len(d.Oracles) == 0 {
		return nil
	}
	var (
		mu  sync.Mutex
		out = make([]oracle.Decision, 0, len(d.Oracles))
	)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, o := range d.Oracles {
		if o == nil {
			continue
		}
		orc := o
		eg.Go(func() error {
			dec, ok := d.invokeSafe(egCtx, orc, inst, snap)
			if !ok {
				return nil // non-vote, never fail the group
			}
			mu.Lock()
			out = append(out, dec)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (d *Dispatcher) invokeSafe(ctx context.Context, orc oracle.Oracle, inst venue.Instrument, snap oracle.Snapshot) (dec oracle.Decision, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("oracle %s panicked: %v", orc.Name(), r)
			ok = false
		}
	}()
	callCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	dec, err := orc.Analyze(callCtx, inst, snap)
	if err != nil {
		logger.Warnf("oracle %s excluded from vote: %v", orc.Name(), err)
		return oracle.Decision{}, false
	}
	logger.Infof("oracle %s: %s (confidence %.1f%%)", orc.Name(), dec.Direction, dec.Confidence)
	return dec, true
}
