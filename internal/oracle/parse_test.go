package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionPlainObject(t *testing.T) {
	raw := `{"direction": "strong_buy", "confidence": 82.5, "rationale": "momentum breakout"}`
	dec, err := parseDecision("gpt", raw)
	require.NoError(t, err)
	assert.Equal(t, StrongBuy, dec.Direction)
	assert.Equal(t, 82.5, dec.Confidence)
	assert.Equal(t, "momentum breakout", dec.Rationale)
	assert.Equal(t, "gpt", dec.Oracle)
}

func TestParseDecisionMarkdownFence(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"decision\": \"SELL\", \"confidence\": 61, \"reasoning\": \"lower highs\"}\n```\nGood luck."
	dec, err := parseDecision("claude", raw)
	require.NoError(t, err)
	assert.Equal(t, Sell, dec.Direction)
	assert.Equal(t, 61.0, dec.Confidence)
	assert.Equal(t, "lower highs", dec.Rationale)
}

func TestParseDecisionClampsConfidence(t *testing.T) {
	dec, err := parseDecision("x", `{"direction":"buy","confidence":140}`)
	require.NoError(t, err)
	assert.Equal(t, 100.0, dec.Confidence)

	dec, err = parseDecision("x", `{"direction":"buy","confidence":-5}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dec.Confidence)
}

func TestParseDecisionRejectsGarbage(t *testing.T) {
	_, err := parseDecision("x", "I think the market will go up.")
	require.Error(t, err)

	_, err = parseDecision("x", `{"confidence": 50}`)
	require.Error(t, err)
}

func TestNormalizeDirectionSynonyms(t *testing.T) {
	cases := map[string]Direction{
		"BUY":         Buy,
		"Strong Buy":  StrongBuy,
		"strong-sell": StrongSell,
		"long":        Buy,
		"short":       Sell,
		"WAIT":        Hold,
		"gibberish":   Hold,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDirection(in), "input=%q", in)
	}
}
