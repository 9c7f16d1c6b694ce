package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateEpicenterDeclinesWithoutPoints(t *testing.T) {
	est, ok := EstimateEpicenter(nil, nil, nil, EpicenterOptions{})
	assert.False(t, ok)
	assert.Nil(t, est)
}

func TestEstimateEpicenterSinglePointFallsBack(t *testing.T) {
	est, ok := EstimateEpicenter([]float64{2}, []float64{3}, []float64{70}, EpicenterOptions{})
	require.True(t, ok)
	assert.True(t, est.UsedFallback)
	assert.Equal(t, 2.0, est.X)
	assert.Equal(t, 3.0, est.Y)
	assert.Equal(t, 1, est.SampleCount)
	assert.Equal(t, 70.0, est.MaxSampleValue)
}

func TestEstimateEpicenterDegenerateBoxFallsBack(t *testing.T) {
	est, ok := EstimateEpicenter([]float64{0, 10}, []float64{0, 0}, []float64{40, 80}, EpicenterOptions{})
	require.True(t, ok)
	assert.True(t, est.UsedFallback)
	assert.Equal(t, Point{X: 10, Y: 0}, Point{X: est.X, Y: est.Y})
	assert.Equal(t, Point{X: 10, Y: 0}, est.MaxSamplePosition)
}

func TestEstimateEpicenterEqualPairLiesOnSegment(t *testing.T) {
	est, ok := EstimateEpicenter([]float64{0, 4}, []float64{0, 4}, []float64{50, 50}, EpicenterOptions{})
	require.True(t, ok)
	assert.False(t, est.UsedFallback)
	assert.InDelta(t, est.X, est.Y, 1e-6)
	assert.GreaterOrEqual(t, est.X, 0.0)
	assert.LessOrEqual(t, est.X, 4.0)
	assert.Equal(t, 2, est.SampleCount)
}

func TestEstimateEpicenterFavoursLoudestRegion(t *testing.T) {
	est, ok := EstimateEpicenter(triX, triY, triZ, EpicenterOptions{})
	require.True(t, ok)

	assert.Equal(t, Point{X: 10, Y: 0}, est.MaxSamplePosition)
	assert.Equal(t, 80.0, est.MaxSampleValue)
	assert.Equal(t, 3, est.SampleCount)

	dLoud := math.Hypot(est.X-10, est.Y-0)
	dQuiet := math.Hypot(est.X-0, est.Y-0)
	assert.Less(t, dLoud, dQuiet)
}

func TestEstimateEpicenterStaysInsideBox(t *testing.T) {
	x := []float64{0, 6, 2, 5}
	y := []float64{0, 1, 8, 7}
	z := []float64{45, 72, 50, 66}
	est, ok := EstimateEpicenter(x, y, z, EpicenterOptions{})
	require.True(t, ok)
	assert.GreaterOrEqual(t, est.X, 0.0)
	assert.LessOrEqual(t, est.X, 6.0)
	assert.GreaterOrEqual(t, est.Y, 0.0)
	assert.LessOrEqual(t, est.Y, 8.0)
}

func TestEstimateEpicenterDomainIntersection(t *testing.T) {
	domain := &Bounds{XMin: 20, XMax: 30, YMin: 20, YMax: 30}
	est, ok := EstimateEpicenter(triX, triY, triZ, EpicenterOptions{Domain: domain})
	require.True(t, ok)
	assert.True(t, est.UsedFallback, "disjoint domain leaves no search box")
}

func TestEstimateEpicenterDeterministic(t *testing.T) {
	x := []float64{0, 6, 2, 5}
	y := []float64{0, 1, 8, 7}
	z := []float64{45, 72, 50, 66}
	a, _ := EstimateEpicenter(x, y, z, EpicenterOptions{})
	b, _ := EstimateEpicenter(x, y, z, EpicenterOptions{})
	assert.Equal(t, *a, *b)
}

func TestDecayGradientMatchesFiniteDifference(t *testing.T) {
	obj := decayObjective{x: triX, y: triY, z: triZ}
	px, py := 3.3, 4.1
	gx, gy := obj.gradient(px, py)

	const h = 1e-6
	fx := (obj.value(px+h, py) - obj.value(px-h, py)) / (2 * h)
	fy := (obj.value(px, py+h) - obj.value(px, py-h)) / (2 * h)
	assert.InDelta(t, fx, gx, 1e-3)
	assert.InDelta(t, fy, gy, 1e-3)
}

func TestBoxMapRoundTrip(t *testing.T) {
	m := boxMap{b: Bounds{XMin: -1, XMax: 6, YMin: -2, YMax: 16}}
	px, py := m.toBox(m.fromBox(2.5, 7))
	assert.InDelta(t, 2.5, px, 1e-9)
	assert.InDelta(t, 7.0, py, 1e-9)
}

func TestEstimateEpicenterConvergesOnSensorGrid(t *testing.T) {
	var x, y []float64
	for _, gy := range []float64{0, 10, 20} {
		for _, gx := range []float64{0, 10, 20} {
			x = append(x, gx)
			y = append(y, gy)
		}
	}
	// Fixed per-sensor offsets stand in for measurement noise.
	noise := []float64{0.4, -0.7, 0.1, -0.2, 0.9, -0.5, 0.3, -0.1, 0.6}

	sources := []Point{{X: 13, Y: 7}, {X: 18.56, Y: 3.28}, {X: 4, Y: 16}, {X: 10, Y: 10}, {X: 2.5, Y: 2.5}}
	for _, src := range sources {
		z := make([]float64, len(x))
		for i := range x {
			d := math.Hypot(x[i]-src.X, y[i]-src.Y)
			z[i] = 40 + 30*math.Exp(-d/DecayConstant) + noise[i]
		}

		est, ok := EstimateEpicenter(x, y, z, EpicenterOptions{})
		require.True(t, ok)
		assert.False(t, est.UsedFallback, "source %v", src)
		assert.GreaterOrEqual(t, est.X, 0.0)
		assert.LessOrEqual(t, est.X, 20.0)
		assert.GreaterOrEqual(t, est.Y, 0.0)
		assert.LessOrEqual(t, est.Y, 20.0)

		obj := decayObjective{x: x, y: y, z: z}
		assert.LessOrEqual(t, obj.value(est.X, est.Y), obj.value(10, 10), "source %v", src)
	}
}

func TestLocalMinimumRejectsSlope(t *testing.T) {
	obj := decayObjective{x: triX, y: triY, z: triZ}
	box := Bounds{XMin: 0, XMax: 10, YMin: 0, YMax: 10}
	assert.False(t, localMinimum(obj, box, 3.3, 4.1))
}
