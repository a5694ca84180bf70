// Package curves implements the fan curve interpolation engine: a pure,
// side-effect-free mapping from (curve, temperature, last output) to a
// fan duty percent, plus the validation and normalization helpers used
// by the Configuration Store before a curve is ever evaluated.
package curves

import (
	"fmt"
	"math"
	"sort"

	"github.com/fantuned/fantuned/internal/model"
)

// clamp restricts value to [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Interpolate evaluates a curve at the given temperature using
// cosine-smoothed interpolation between bracketing points, applying
// hysteresis against lastOutput when provided.
func Interpolate(curve model.FanCurve, temperature float64, lastOutput *float64) float64 {
	return interpolate(curve, temperature, lastOutput, smoothCosine)
}

// InterpolateLinear is identical to Interpolate except the bracket
// fraction is used directly instead of being cosine-smoothed.
func InterpolateLinear(curve model.FanCurve, temperature float64, lastOutput *float64) float64 {
	return interpolate(curve, temperature, lastOutput, smoothLinear)
}

func smoothCosine(t float64) float64 {
	return (1 - math.Cos(t*math.Pi)) / 2
}

func smoothLinear(t float64) float64 {
	return t
}

func interpolate(curve model.FanCurve, temperature float64, lastOutput *float64, smooth func(float64) float64) float64 {
	points := sortedPoints(curve.Points)

	switch {
	case len(points) == 0:
		return curve.MinPercent
	case len(points) == 1:
		return clamp(points[0].Percent, curve.MinPercent, curve.MaxPercent)
	case temperature <= points[0].TemperatureC:
		return clamp(points[0].Percent, curve.MinPercent, curve.MaxPercent)
	case temperature >= points[len(points)-1].TemperatureC:
		return clamp(points[len(points)-1].Percent, curve.MinPercent, curve.MaxPercent)
	}

	lo, hi := bracket(points, temperature)
	span := hi.TemperatureC - lo.TemperatureC
	t := (temperature - lo.TemperatureC) / span
	s := smooth(t)
	raw := lo.Percent + (hi.Percent-lo.Percent)*s

	if lastOutput != nil && curve.HysteresisC > 0 {
		if math.Abs(raw-*lastOutput) < curve.HysteresisC {
			return *lastOutput
		}
	}

	return clamp(raw, curve.MinPercent, curve.MaxPercent)
}

// bracket finds the two adjacent points whose temperatures straddle t.
// Callers must ensure points has ≥2 elements and t lies strictly
// between the first and last temperature.
func bracket(points []model.CurvePoint, t float64) (lo, hi model.CurvePoint) {
	for i := 0; i < len(points)-1; i++ {
		if t >= points[i].TemperatureC && t <= points[i+1].TemperatureC {
			return points[i], points[i+1]
		}
	}
	// unreachable given the caller's guard, but fall back to the last segment
	return points[len(points)-2], points[len(points)-1]
}

func sortedPoints(points []model.CurvePoint) []model.CurvePoint {
	sorted := make([]model.CurvePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TemperatureC < sorted[j].TemperatureC
	})
	return sorted
}

// ApplyResponseTime slew-limits the move from current toward target so
// that no more than 100*delta/response percentage points are applied in
// one tick. It never overshoots: if the needed change already fits
// within the per-tick maximum, target is returned exactly.
func ApplyResponseTime(current, target, responseSeconds, deltaSeconds float64) float64 {
	if responseSeconds <= 0 {
		return target
	}

	diff := target - current
	if diff == 0 {
		return current
	}

	maxChange := 100 * deltaSeconds / responseSeconds
	if math.Abs(diff) <= maxChange {
		return target
	}

	sign := 1.0
	if diff < 0 {
		sign = -1.0
	}
	return current + sign*maxChange
}

// ValidateCurve checks the invariants a FanCurve must satisfy: at least
// two points, all temperatures and percents in range, min <= max, and
// no duplicate temperatures. It returns the first violation found.
func ValidateCurve(curve model.FanCurve) error {
	if len(curve.Points) < 2 {
		return fmt.Errorf("curve %q must have at least 2 points, has %d", curve.Id, len(curve.Points))
	}
	if curve.MinPercent < 0 || curve.MinPercent > 100 {
		return fmt.Errorf("curve %q: minPercent %.1f out of range [0,100]", curve.Id, curve.MinPercent)
	}
	if curve.MaxPercent < 0 || curve.MaxPercent > 100 {
		return fmt.Errorf("curve %q: maxPercent %.1f out of range [0,100]", curve.Id, curve.MaxPercent)
	}
	if curve.MinPercent > curve.MaxPercent {
		return fmt.Errorf("curve %q: minPercent %.1f greater than maxPercent %.1f", curve.Id, curve.MinPercent, curve.MaxPercent)
	}

	seenTemps := make(map[float64]bool, len(curve.Points))
	for _, p := range curve.Points {
		if p.TemperatureC < -40 || p.TemperatureC > 150 {
			return fmt.Errorf("curve %q: temperature %.1f out of range [-40,150]", curve.Id, p.TemperatureC)
		}
		if p.Percent < 0 || p.Percent > 100 {
			return fmt.Errorf("curve %q: percent %.1f out of range [0,100]", curve.Id, p.Percent)
		}
		if seenTemps[p.TemperatureC] {
			return fmt.Errorf("curve %q: duplicate temperature %.1f", curve.Id, p.TemperatureC)
		}
		seenTemps[p.TemperatureC] = true
	}

	return nil
}

// NormalizeCurve groups points by temperature (the first point at a
// given temperature wins, preserving insertion order) and sorts the
// result ascending by temperature. All other fields pass through
// unchanged.
func NormalizeCurve(curve model.FanCurve) model.FanCurve {
	seen := make(map[float64]bool, len(curve.Points))
	kept := make([]model.CurvePoint, 0, len(curve.Points))
	for _, p := range curve.Points {
		if seen[p.TemperatureC] {
			continue
		}
		seen[p.TemperatureC] = true
		kept = append(kept, p)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].TemperatureC < kept[j].TemperatureC
	})

	normalized := curve
	normalized.Points = kept
	return normalized
}
