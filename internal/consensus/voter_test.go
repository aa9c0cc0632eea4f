package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/oracle"
	"quorum/internal/venue"
)

func dec(name string, dir oracle.Direction, conf float64) oracle.Decision {
	return oracle.Decision{Oracle: name, Direction: dir, Confidence: conf}
}

func TestVotePluralityWinnerConfidence(t *testing.T) {
	res := Vote([]oracle.Decision{
		dec("a", oracle.Buy, 80),
		dec("b", oracle.StrongBuy, 60),
		dec("c", oracle.Sell, 95),
	}, 2)

	assert.Equal(t, ActionBuy, res.Action)
	assert.Equal(t, 2, res.AgreementCount)
	assert.Equal(t, 3, res.TotalVoters)
	// Mean of the two buy confidences only; the sell vote does not dilute.
	assert.InDelta(t, 70.0, res.AvgConfidence, 1e-9)
}

func TestVoteThreeWayTieBelowThreshold(t *testing.T) {
	res := Vote([]oracle.Decision{
		dec("a", oracle.Buy, 90),
		dec("b", oracle.Sell, 90),
		dec("c", oracle.Hold, 90),
	}, 2)

	assert.Equal(t, ActionHold, res.Action)
	assert.Equal(t, 1, res.AgreementCount)
	assert.Contains(t, res.DissentSummary, "no consensus")
}

func TestVoteTieBreakBuyOverSell(t *testing.T) {
	res := Vote([]oracle.Decision{
		dec("a", oracle.Buy, 55),
		dec("b", oracle.Sell, 99),
	}, 1)
	assert.Equal(t, ActionBuy, res.Action)
}

func TestVoteEmpty(t *testing.T) {
	res := Vote(nil, 2)
	assert.Equal(t, ActionHold, res.Action)
	assert.Zero(t, res.TotalVoters)
	assert.Zero(t, res.AvgConfidence)
}

type fakeOracle struct {
	name  string
	dec   oracle.Decision
	err   error
	delay time.Duration
}

func (f *fakeOracle) Name() string { return f.name }

func (f *fakeOracle) Analyze(ctx context.Context, _ venue.Instrument, _ oracle.Snapshot) (oracle.Decision, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return oracle.Decision{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.dec, f.err
}

func TestDispatcherExcludesFailedOracles(t *testing.T) {
	d := NewDispatcher([]oracle.Oracle{
		&fakeOracle{name: "good", dec: dec("good", oracle.Buy, 70)},
		&fakeOracle{name: "broken", err: errors.New("connection refused")},
		&fakeOracle{name: "slow", dec: dec("slow", oracle.Sell, 80), delay: 500 * time.Millisecond},
	}, 50*time.Millisecond)

	out := d.Dispatch(context.Background(), venue.Instrument{Symbol: "BTC"}, oracle.Snapshot{})

	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].Oracle)

	// Errored and timed-out oracles are non-votes, not implicit holds.
	res := Vote(out, 1)
	assert.Equal(t, 1, res.TotalVoters)
	assert.Equal(t, ActionBuy, res.Action)
}
