// Package oracle defines the decision-oracle contract and the
// OpenAI-compatible chat providers that implement it.
package oracle

import (
	"strings"
	"time"
)

// Direction is a trading signal strength bucket.
type Direction string

const (
	StrongBuy  Direction = "strong_buy"
	Buy        Direction = "buy"
	Hold       Direction = "hold"
	Sell       Direction = "sell"
	StrongSell Direction = "strong_sell"
)

// NormalizeDirection maps the synonyms models actually emit onto the
// five canonical directions. Unknown input falls back to hold.
func NormalizeDirection(s string) Direction {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	s = strings.ToLower(strings.TrimSpace(s))
	s = replacer.Replace(s)
	switch s {
	case "strong_buy", "strongbuy":
		return StrongBuy
	case "buy", "long", "open_long", "go_long", "bullish":
		return Buy
	case "sell", "short", "open_short", "go_short", "bearish":
		return Sell
	case "strong_sell", "strongsell":
		return StrongSell
	case "hold", "wait", "stay", "neutral", "none":
		return Hold
	default:
		return Hold
	}
}

// BuyLike reports whether the direction votes for the buy bucket.
func (d Direction) BuyLike() bool { return d == Buy || d == StrongBuy }

// SellLike reports whether the direction votes for the sell bucket.
func (d Direction) SellLike() bool { return d == Sell || d == StrongSell }

// Decision is one oracle's verdict for one instrument. Immutable once
// created; consumed exactly once by the voter.
type Decision struct {
	Oracle     string
	Direction  Direction
	Confidence float64 // 0..100
	Rationale  string
	ElapsedMs  int64
	CreatedAt  time.Time
}

// FailClosed is the hold-equivalent an oracle returns instead of
// raising on internal errors.
func FailClosed(oracleName, reason string) Decision {
	return Decision{
		Oracle:     oracleName,
		Direction:  Hold,
		Confidence: 0,
		Rationale:  reason,
		CreatedAt:  time.Now(),
	}
}
