package spatial

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// IDWOptions configures inverse distance weighting.
type IDWOptions struct {
	// GridSize is the number of mesh points per axis; values below 2 use DefaultGridSize.
	GridSize int
	// Power is the integer distance exponent; values below 1 use DefaultPower.
	Power int
}

func (o IDWOptions) normalized() IDWOptions {
	if o.GridSize < 2 {
		o.GridSize = DefaultGridSize
	}
	if o.Power < 1 {
		o.Power = DefaultPower
	}
	return o
}

// Interpolate evaluates the IDW estimator on a GridSize x GridSize mesh spanning
// bounds. It declines (nil, false) with fewer than two points or invalid bounds.
// Mismatched slice lengths panic.
func Interpolate(x, y, z []float64, bounds Bounds, opts IDWOptions) (*Field, bool) {
	checkLengths(len(x), len(y), len(z))
	if len(x) < 2 || !bounds.Valid() {
		return nil, false
	}
	opts = opts.normalized()
	n := opts.GridSize

	xs := linspace(bounds.XMin, bounds.XMax, n)
	ys := linspace(bounds.YMin, bounds.YMax, n)

	field := &Field{
		GridX:    make([][]float64, n),
		GridY:    make([][]float64, n),
		GridZ:    make([][]float64, n),
		Bounds:   bounds,
		GridSize: n,
		Power:    opts.Power,
	}
	for r := 0; r < n; r++ {
		gx := make([]float64, n)
		gy := make([]float64, n)
		gz := make([]float64, n)
		for c := 0; c < n; c++ {
			gx[c] = xs[c]
			gy[c] = ys[r]
			gz[c] = idwAt(xs[c], ys[r], x, y, z, opts.Power)
		}
		field.GridX[r] = gx
		field.GridY[r] = gy
		field.GridZ[r] = gz
	}
	return field, true
}

// InterpolateAt evaluates the IDW estimator at a single point.
func InterpolateAt(px, py float64, x, y, z []float64, power int) (float64, bool) {
	checkLengths(len(x), len(y), len(z))
	if len(x) < 2 {
		return 0, false
	}
	if power < 1 {
		power = DefaultPower
	}
	return idwAt(px, py, x, y, z, power), true
}

// idwAt weights each sample by (dmin/d)^power, the usual 1/d^power scaled by
// the nearest distance so large powers cannot overflow to an all-zero sum.
func idwAt(px, py float64, x, y, z []float64, power int) float64 {
	dmin := math.Inf(1)
	for i := range x {
		dmin = math.Min(dmin, math.Max(math.Hypot(px-x[i], py-y[i]), MinDistance))
	}
	var num, den float64
	for i := range x {
		d := math.Max(math.Hypot(px-x[i], py-y[i]), MinDistance)
		w := intPow(dmin/d, power)
		num += w * z[i]
		den += w
	}
	return num / den
}

// linspace returns n evenly spaced values with both endpoints exact.
func linspace(lo, hi float64, n int) []float64 {
	out := floats.Span(make([]float64, n), lo, hi)
	out[n-1] = hi
	return out
}

func intPow(base float64, exp int) float64 {
	out := 1.0
	for exp > 0 {
		if exp&1 == 1 {
			out *= base
		}
		base *= base
		exp >>= 1
	}
	return out
}
