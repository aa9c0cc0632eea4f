// Package precision turns raw order quantities and prices into
// venue-legal ones: tick/step rounding, minimum-quantity bumping, and
// minimum-notional validation.
package precision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quorum/internal/venue"
)

// Error reports order parameters that cannot be made venue-legal.
// It is fatal for the order in question; callers must not retry.
type Error struct {
	Symbol string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("precision: %s: %s", e.Symbol, e.Reason)
}

// NormalizeQuantity rounds rawQty to the instrument's quantity step.
// Opening orders round down so the sized position never overshoots the
// margin backing it; closing orders round half-up so no dust is left
// behind. A nonzero result below the minimum quantity is bumped up to
// it rather than dropped to zero.
func NormalizeQuantity(inst venue.Instrument, rawQty float64, roundDown bool) float64 {
	step := inst.Precision.QuantityStep
	if step.Sign() <= 0 || rawQty <= 0 {
		return 0
	}
	qty := decimal.NewFromFloat(rawQty)
	steps := qty.Div(step)
	if roundDown {
		steps = steps.Floor()
	} else {
		steps = steps.Round(0)
	}
	out := steps.Mul(step)
	if out.Sign() > 0 && out.Cmp(inst.Precision.MinQuantity) < 0 {
		out = inst.Precision.MinQuantity
	}
	f, _ := out.Float64()
	return f
}

// NormalizePrice rounds rawPrice half-up to the instrument's tick.
func NormalizePrice(inst venue.Instrument, rawPrice float64) float64 {
	tick := inst.Precision.PriceTick
	if tick.Sign() <= 0 || rawPrice <= 0 {
		return 0
	}
	price := decimal.NewFromFloat(rawPrice)
	out := price.Div(tick).Round(0).Mul(tick)
	f, _ := out.Float64()
	return f
}

// Validate checks an already rounded (qty, price) pair against the
// instrument's floors. Both checks run post-rounding because rounding
// itself can push an order below the notional floor.
func Validate(inst venue.Instrument, qty, price float64) error {
	if price <= 0 {
		return &Error{Symbol: inst.Symbol, Reason: "price rounds to zero at tick granularity"}
	}
	qtyDec := decimal.NewFromFloat(qty)
	if qtyDec.Cmp(inst.Precision.MinQuantity) < 0 {
		return &Error{
			Symbol: inst.Symbol,
			Reason: fmt.Sprintf("quantity %s below minimum %s", qtyDec, inst.Precision.MinQuantity),
		}
	}
	if inst.Precision.MinNotional.Sign() > 0 {
		notional := qtyDec.Mul(decimal.NewFromFloat(price))
		if notional.Cmp(inst.Precision.MinNotional) < 0 {
			return &Error{
				Symbol: inst.Symbol,
				Reason: fmt.Sprintf("notional %s below minimum %s", notional.StringFixed(2), inst.Precision.MinNotional),
			}
		}
	}
	return nil
}

// CorrectQuantity re-derives a quantity from the notional floor when
// validation failed on it: min_notional / price, rounded UP to the
// step so the corrected order clears the floor. The caller re-validates
// once and gives up on a second failure; a single correction pass
// avoids oscillating between the two floors.
func CorrectQuantity(inst venue.Instrument, price float64) float64 {
	if price <= 0 || inst.Precision.MinNotional.Sign() <= 0 {
		return 0
	}
	step := inst.Precision.QuantityStep
	if step.Sign() <= 0 {
		return 0
	}
	needed := inst.Precision.MinNotional.Div(decimal.NewFromFloat(price))
	out := needed.Div(step).Ceil().Mul(step)
	if out.Cmp(inst.Precision.MinQuantity) < 0 {
		out = inst.Precision.MinQuantity
	}
	f, _ := out.Float64()
	return f
}
