package spatial

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	// DecayConstant is the distance scale of the single-source decay model.
	DecayConstant = 10.0
	// DefaultMaxIterations bounds the optimizer's major iterations.
	DefaultMaxIterations = 200

	// projectedGradientTolerance and relativeFunctionTolerance match the
	// L-BFGS-B defaults (pgtol 1e-5, factr 1e7 times machine epsilon).
	projectedGradientTolerance = 1e-5
	relativeFunctionTolerance  = 1e7 * 2.220446049250313e-16
	boundaryInset              = 1e-6
	// stallProbeFraction sizes the neighbourhood checked when the line search
	// stalls, as a fraction of the larger box side.
	stallProbeFraction = 1e-4
)

// EpicenterOptions configures the source estimator.
type EpicenterOptions struct {
	// Domain optionally restricts the search box to a deployment plane.
	Domain *Bounds
	// MaxIterations bounds optimizer iterations; zero uses DefaultMaxIterations.
	MaxIterations int
	// Timeout bounds optimizer runtime; zero means unbounded.
	Timeout time.Duration
}

// Epicenter is the estimated single-source location.
type Epicenter struct {
	X                 float64   `json:"x"`
	Y                 float64   `json:"y"`
	MaxSamplePosition Point     `json:"max_sample_position"`
	MaxSampleValue    float64   `json:"max_sample_value"`
	SampleCount       int       `json:"sample_count"`
	UsedFallback      bool      `json:"used_fallback"`
	ComputedAt        time.Time `json:"computed_at"`
}

// EstimateEpicenter locates the point that best explains the readings as one
// source decaying as z*exp(-d/DecayConstant). Any optimizer failure falls back
// to the loudest sample. Zero points decline (nil, false). It never panics on
// well-formed input.
func EstimateEpicenter(x, y, z []float64, opts EpicenterOptions) (*Epicenter, bool) {
	checkLengths(len(x), len(y), len(z))
	if len(x) == 0 {
		return nil, false
	}

	loudest := floats.MaxIdx(z)
	est := &Epicenter{
		MaxSamplePosition: Point{X: x[loudest], Y: y[loudest]},
		MaxSampleValue:    z[loudest],
		SampleCount:       len(x),
	}

	px, py, err := minimizeDecay(x, y, z, opts)
	if err != nil {
		est.X, est.Y = x[loudest], y[loudest]
		est.UsedFallback = true
		return est, true
	}
	est.X, est.Y = px, py
	return est, true
}

// decayObjective is sum((z_i - z_i*exp(-d_i/k))^2).
type decayObjective struct {
	x, y, z []float64
}

func (o decayObjective) value(px, py float64) float64 {
	var sum float64
	for i := range o.x {
		d := math.Hypot(px-o.x[i], py-o.y[i])
		r := o.z[i] - o.z[i]*math.Exp(-d/DecayConstant)
		sum += r * r
	}
	return sum
}

func (o decayObjective) gradient(px, py float64) (gx, gy float64) {
	for i := range o.x {
		dx, dy := px-o.x[i], py-o.y[i]
		d := math.Hypot(dx, dy)
		if d == 0 {
			continue
		}
		e := math.Exp(-d / DecayConstant)
		dFdd := 2 * o.z[i] * o.z[i] * (1 - e) * (e / DecayConstant)
		gx += dFdd * dx / d
		gy += dFdd * dy / d
	}
	return gx, gy
}

// boxMap maps unconstrained u to the box via lo + (hi-lo)(1+sin u)/2.
type boxMap struct {
	b Bounds
}

func (m boxMap) toBox(u []float64) (float64, float64) {
	return m.b.XMin + (m.b.XMax-m.b.XMin)*(1+math.Sin(u[0]))/2,
		m.b.YMin + (m.b.YMax-m.b.YMin)*(1+math.Sin(u[1]))/2
}

func (m boxMap) fromBox(px, py float64) []float64 {
	return []float64{
		inverseAxis(px, m.b.XMin, m.b.XMax),
		inverseAxis(py, m.b.YMin, m.b.YMax),
	}
}

func (m boxMap) jacobian(u []float64) (float64, float64) {
	return (m.b.XMax - m.b.XMin) / 2 * math.Cos(u[0]),
		(m.b.YMax - m.b.YMin) / 2 * math.Cos(u[1])
}

func inverseAxis(p, lo, hi float64) float64 {
	t := (p - lo) / (hi - lo)
	t = math.Min(math.Max(t, boundaryInset), 1-boundaryInset)
	return math.Asin(2*t - 1)
}

func minimizeDecay(x, y, z []float64, opts EpicenterOptions) (px, py float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOptimizerPanic, r)
		}
	}()

	if len(x) < 2 {
		return 0, 0, ErrTooFewPoints
	}
	box := Bounds{XMin: floats.Min(x), XMax: floats.Max(x), YMin: floats.Min(y), YMax: floats.Max(y)}
	if opts.Domain != nil {
		clipped, ok := box.Intersect(*opts.Domain)
		if !ok {
			return 0, 0, ErrDegenerateBox
		}
		box = clipped
	}
	if !box.Valid() {
		return 0, 0, ErrDegenerateBox
	}

	obj := decayObjective{x: x, y: y, z: z}
	cx := clampTo(stat.Mean(x, nil), box.XMin, box.XMax)
	cy := clampTo(stat.Mean(y, nil), box.YMin, box.YMax)

	// L-BFGS reports failure when started on a stationary point.
	gx, gy := obj.gradient(cx, cy)
	if math.Max(math.Abs(gx), math.Abs(gy)) < projectedGradientTolerance {
		return cx, cy, nil
	}

	m := boxMap{b: box}
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			px, py := m.toBox(u)
			return obj.value(px, py)
		},
		Grad: func(grad, u []float64) {
			px, py := m.toBox(u)
			gx, gy := obj.gradient(px, py)
			jx, jy := m.jacobian(u)
			grad[0] = gx * jx
			grad[1] = gy * jy
		},
	}

	iterations := opts.MaxIterations
	if iterations <= 0 {
		iterations = DefaultMaxIterations
	}
	settings := &optimize.Settings{
		MajorIterations:   iterations,
		Runtime:           opts.Timeout,
		GradientThreshold: projectedGradientTolerance,
		Converger:         &optimize.FunctionConverge{Relative: relativeFunctionTolerance, Iterations: 1},
	}

	res, err := optimize.Minimize(problem, m.fromBox(cx, cy), settings, &optimize.LBFGS{})
	if res == nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	px, py = m.toBox(res.X)
	if math.IsNaN(px) || math.IsNaN(py) || math.IsInf(px, 0) || math.IsInf(py, 0) {
		return 0, 0, ErrNotConverged
	}
	if err != nil || res.Status.Early() {
		// A line search that stalls at the precision floor has already found the
		// minimum; accept it when no nearby point in the box does better.
		if stalled(err) && localMinimum(obj, box, px, py) {
			return px, py, nil
		}
		if err == nil {
			err = res.Status.Err()
		}
		return 0, 0, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	return px, py, nil
}

func stalled(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) || errors.Is(err, optimize.ErrNoProgress)
}

// localMinimum reports whether no point on a small ring around (px, py),
// clamped to the box, has a lower objective.
func localMinimum(obj decayObjective, box Bounds, px, py float64) bool {
	f := obj.value(px, py)
	h := stallProbeFraction * math.Max(box.XMax-box.XMin, box.YMax-box.YMin)
	slack := 1e-12 * math.Max(1, math.Abs(f))
	for _, d := range [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}} {
		qx := clampTo(px+d[0]*h, box.XMin, box.XMax)
		qy := clampTo(py+d[1]*h, box.YMin, box.YMax)
		if obj.value(qx, qy) < f-slack {
			return false
		}
	}
	return true
}

func clampTo(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
