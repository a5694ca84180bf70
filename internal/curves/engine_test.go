package curves

import (
	"math"
	"testing"

	"github.com/fantuned/fantuned/internal/model"
	"github.com/stretchr/testify/assert"
)

func curve(points []model.CurvePoint, min, max, hysteresis float64) model.FanCurve {
	return model.FanCurve{
		Id:          "test",
		Points:      points,
		MinPercent:  min,
		MaxPercent:  max,
		HysteresisC: hysteresis,
	}
}

func pt(t, p float64) model.CurvePoint {
	return model.CurvePoint{TemperatureC: t, Percent: p}
}

// Scenario 1: linear bracket.
func TestInterpolateLinear_Bracket(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30), pt(70, 70)}, 0, 100, 0)

	for _, temp := range []float64{30, 40, 50, 60, 70} {
		assert.Equal(t, temp, InterpolateLinear(c, temp, nil))
	}
}

// Scenario 2: cosine midpoint.
func TestInterpolate_CosineMidpoint(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30), pt(60, 60)}, 0, 100, 0)

	out := Interpolate(c, 45, nil)
	assert.InDelta(t, 45, out, 1)
}

// Scenario 3: clamp below minimum.
func TestInterpolate_ClampBelowMinimum(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 10), pt(60, 60)}, 30, 100, 0)

	out := Interpolate(c, 30, nil)
	assert.Equal(t, 30.0, out)
}

// Scenario 4: hysteresis hold.
func TestInterpolate_HysteresisHold(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30), pt(60, 60)}, 0, 100, 5)
	last := 43.0

	out := Interpolate(c, 45, &last)
	assert.Equal(t, 43.0, out)
}

func TestInterpolate_HysteresisReleasesBeyondThreshold(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30), pt(60, 60)}, 0, 100, 2)
	last := 30.0

	out := Interpolate(c, 50, &last)
	assert.NotEqual(t, 30.0, out)
}

func TestInterpolate_NoPoints(t *testing.T) {
	c := curve(nil, 15, 100, 0)
	assert.Equal(t, 15.0, Interpolate(c, 50, nil))
}

func TestInterpolate_SinglePoint(t *testing.T) {
	c := curve([]model.CurvePoint{pt(40, 120)}, 0, 100, 0)
	assert.Equal(t, 100.0, Interpolate(c, 10, nil))
}

func TestInterpolate_OutputWithinBounds(t *testing.T) {
	c := curve([]model.CurvePoint{pt(20, 0), pt(40, 50), pt(80, 100)}, 10, 90, 0)

	for temp := -10.0; temp <= 160; temp += 1.3 {
		out := Interpolate(c, temp, nil)
		assert.GreaterOrEqual(t, out, c.MinPercent)
		assert.LessOrEqual(t, out, c.MaxPercent)
	}
}

func TestInterpolate_MonotonicForMonotonicCurve(t *testing.T) {
	c := curve([]model.CurvePoint{pt(20, 10), pt(40, 40), pt(60, 70), pt(80, 100)}, 0, 100, 0)

	prev := math.Inf(-1)
	for temp := 0.0; temp <= 100; temp += 0.5 {
		out := Interpolate(c, temp, nil)
		assert.GreaterOrEqual(t, out, prev)
		prev = out
	}
}

func TestApplyResponseTime_InstantWhenZero(t *testing.T) {
	assert.Equal(t, 80.0, ApplyResponseTime(20, 80, 0, 1))
}

func TestApplyResponseTime_NoOvershoot(t *testing.T) {
	// needed change (5) fits within the per-tick max (10) -> exact target
	out := ApplyResponseTime(50, 55, 1, 0.1)
	assert.Equal(t, 55.0, out)
}

func TestApplyResponseTime_ConvergesWithinBound(t *testing.T) {
	current := 0.0
	target := 100.0
	response := 2.0
	delta := 0.2
	maxTicks := int(math.Ceil(response / delta))

	ticks := 0
	for current != target && ticks < maxTicks+1 {
		current = ApplyResponseTime(current, target, response, delta)
		ticks++
	}

	assert.Equal(t, target, current)
	assert.LessOrEqual(t, ticks, maxTicks)
}

func TestValidateCurve_RejectsTooFewPoints(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30)}, 0, 100, 0)
	err := ValidateCurve(c)
	assert.Error(t, err)
}

func TestValidateCurve_RejectsOutOfRangeTemperature(t *testing.T) {
	c := curve([]model.CurvePoint{pt(-50, 0), pt(60, 60)}, 0, 100, 0)
	assert.Error(t, ValidateCurve(c))
}

func TestValidateCurve_RejectsMinGreaterThanMax(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30), pt(60, 60)}, 80, 20, 0)
	assert.Error(t, ValidateCurve(c))
}

func TestValidateCurve_RejectsDuplicateTemperatures(t *testing.T) {
	c := curve([]model.CurvePoint{pt(30, 30), pt(30, 50)}, 0, 100, 0)
	assert.Error(t, ValidateCurve(c))
}

func TestValidateCurve_AcceptsNormalizedValidCurve(t *testing.T) {
	c := curve([]model.CurvePoint{pt(60, 60), pt(30, 30), pt(30, 99)}, 0, 100, 0)
	normalized := NormalizeCurve(c)
	assert.NoError(t, ValidateCurve(normalized))
}

func TestNormalizeCurve_IdempotentAndSorted(t *testing.T) {
	c := curve([]model.CurvePoint{pt(60, 60), pt(30, 30), pt(30, 99), pt(45, 45)}, 0, 100, 0)

	once := NormalizeCurve(c)
	twice := NormalizeCurve(once)

	assert.Equal(t, once.Points, twice.Points)
	assert.Equal(t, []model.CurvePoint{pt(30, 30), pt(45, 45), pt(60, 60)}, once.Points)
}
