// Package consensus aggregates independent oracle decisions into one
// action by plurality vote with a minimum-agreement threshold.
package consensus

import (
	"fmt"

	"quorum/internal/oracle"
)

// Action is the aggregated trading action for one decision cycle.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Result lives only for the duration of one decision cycle.
type Result struct {
	Action         Action
	AgreementCount int
	TotalVoters    int
	AvgConfidence  float64
	DissentSummary string
	Supporting     []oracle.Decision
}

// Vote buckets each decision into buy-like, sell-like, or hold and
// picks the plurality winner. Ties break on the fixed priority
// buy > sell > hold rather than map iteration order. AvgConfidence is
// the mean of the winning bucket only, so losing votes do not dilute
// it. A winner below minAgreement forces hold: insufficient consensus
// defaults to inaction, never to the majority action.
//
// Callers must pass only decisions from oracles that actually answered;
// errored or timed-out oracles contribute no vote at all.
func Vote(decisions []oracle.Decision, minAgreement int) Result {
	var buyVotes, sellVotes, holdVotes []oracle.Decision
	for _, d := range decisions {
		switch {
		case d.Direction.BuyLike():
			buyVotes = append(buyVotes, d)
		case d.Direction.SellLike():
			sellVotes = append(sellVotes, d)
		default:
			holdVotes = append(holdVotes, d)
		}
	}

	// Priority order doubles as the deterministic tie-break.
	buckets := []struct {
		action Action
		votes  []oracle.Decision
	}{
		{ActionBuy, buyVotes},
		{ActionSell, sellVotes},
		{ActionHold, holdVotes},
	}
	winner := buckets[0]
	for _, b := range buckets[1:] {
		if len(b.votes) > len(winner.votes) {
			winner = b
		}
	}

	res := Result{
		Action:         winner.action,
		AgreementCount: len(winner.votes),
		TotalVoters:    len(decisions),
		Supporting:     winner.votes,
		DissentSummary: fmt.Sprintf("buy=%d sell=%d hold=%d", len(buyVotes), len(sellVotes), len(holdVotes)),
	}
	if len(winner.votes) > 0 {
		sum := 0.0
		for _, d := range winner.votes {
			sum += d.Confidence
		}
		res.AvgConfidence = sum / float64(len(winner.votes))
	}

	if res.AgreementCount < minAgreement {
		res.Action = ActionHold
		res.DissentSummary = fmt.Sprintf("no consensus (need %d votes, best bucket has %d); %s",
			minAgreement, res.AgreementCount, res.DissentSummary)
	}
	return res
}
