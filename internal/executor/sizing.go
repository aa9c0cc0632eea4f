package executor

import "math"

// SizingConfig parameterizes the confidence-driven sizing rule. The
// interpolation breakpoints are configuration, not constants: both
// margin and leverage scale linearly from their floor at ConfidenceFloor
// to their ceiling at confidence 100.
type SizingConfig struct {
	MinMargin       float64
	MaxMargin       float64
	LeverageFloor   int
	LeverageCeiling int
	ConfidenceFloor float64 // below this no position opens at all
}

func lerp(lo, hi, t float64) float64 {
	return lo + (hi-lo)*t
}

// Size maps a confidence value to (margin, leverage). Confidence at or
// below the floor yields the minimums; 100 yields the maximums; the
// result is clamped to both bounds either way.
func (c SizingConfig) Size(confidence float64) (margin float64, leverage int) {
	span := 100 - c.ConfidenceFloor
	t := 0.0
	if span > 0 {
		t = (confidence - c.ConfidenceFloor) / span
	}
	t = math.Max(0, math.Min(1, t))

	margin = lerp(c.MinMargin, c.MaxMargin, t)
	lev := lerp(float64(c.LeverageFloor), float64(c.LeverageCeiling), t)
	leverage = int(math.Round(lev))
	if leverage < c.LeverageFloor {
		leverage = c.LeverageFloor
	}
	if leverage > c.LeverageCeiling {
		leverage = c.LeverageCeiling
	}
	if leverage < 1 {
		leverage = 1
	}
	return margin, leverage
}
