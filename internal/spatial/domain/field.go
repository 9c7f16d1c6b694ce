package spatial

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultGridSize is the mesh resolution per axis.
	DefaultGridSize = 50
	// DefaultPower is the IDW distance exponent.
	DefaultPower = 2
	// DefaultMarginPercent pads the sensor extent on each side.
	DefaultMarginPercent = 0.10
	// MinDistance floors sensor-to-cell distances.
	MinDistance = 0.01

	degenerateHalfWidth = 0.5
)

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

// Valid reports whether both axes have positive, finite width.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.XMin, b.XMax, b.YMin, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Intersect returns the overlap of b and other and whether it is non-empty.
func (b Bounds) Intersect(other Bounds) (Bounds, bool) {
	out := Bounds{
		XMin: math.Max(b.XMin, other.XMin),
		XMax: math.Min(b.XMax, other.XMax),
		YMin: math.Max(b.YMin, other.YMin),
		YMax: math.Min(b.YMax, other.YMax),
	}
	return out, out.XMin <= out.XMax && out.YMin <= out.YMax
}

// Point is a position on the plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Field is an interpolated grid. GridZ[r][c] is the value at (GridX[r][c], GridY[r][c]);
// rows follow y, columns follow x.
type Field struct {
	GridX      [][]float64 `json:"grid_x"`
	GridY      [][]float64 `json:"grid_y"`
	GridZ      [][]float64 `json:"grid_z"`
	Bounds     Bounds      `json:"bounds"`
	GridSize   int         `json:"grid_size"`
	Power      int         `json:"power"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	out := *f
	out.GridX = cloneGrid(f.GridX)
	out.GridY = cloneGrid(f.GridY)
	out.GridZ = cloneGrid(f.GridZ)
	return &out
}

// Range returns the minimum and maximum interpolated value.
func (f *Field) Range() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range f.GridZ {
		if len(row) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(row))
		hi = math.Max(hi, floats.Max(row))
	}
	return lo, hi
}

func cloneGrid(grid [][]float64) [][]float64 {
	if grid == nil {
		return nil
	}
	out := make([][]float64, len(grid))
	for i, row := range grid {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// PadBounds derives the interpolation rectangle from sensor positions: the extent
// padded by marginPercent of its range on each side, widened when an axis has
// zero extent, and optionally clamped to a physical plane.
func PadBounds(x, y []float64, marginPercent float64, clamp *Bounds) Bounds {
	checkLengths(len(x), len(y), len(y))
	if len(x) == 0 {
		panic("spatial: PadBounds needs at least one position")
	}
	if marginPercent < 0 {
		marginPercent = 0
	}

	xMin, xMax := padAxis(floats.Min(x), floats.Max(x), marginPercent)
	yMin, yMax := padAxis(floats.Min(y), floats.Max(y), marginPercent)
	b := Bounds{XMin: xMin, XMax: xMax, YMin: yMin, YMax: yMax}
	if clamp == nil || !clamp.Valid() {
		return b
	}

	// Clamp each axis independently and keep the padded axis if clamping empties it.
	if lo, hi := math.Max(b.XMin, clamp.XMin), math.Min(b.XMax, clamp.XMax); lo < hi {
		b.XMin, b.XMax = lo, hi
	}
	if lo, hi := math.Max(b.YMin, clamp.YMin), math.Min(b.YMax, clamp.YMax); lo < hi {
		b.YMin, b.YMax = lo, hi
	}
	return b
}

func padAxis(lo, hi, margin float64) (float64, float64) {
	span := hi - lo
	if span <= 0 {
		return lo - degenerateHalfWidth, hi + degenerateHalfWidth
	}
	return lo - span*margin, hi + span*margin
}

func checkLengths(nx, ny, nz int) {
	if nx != ny || nx != nz {
		panic(fmt.Sprintf("spatial: mismatched input lengths x=%d y=%d z=%d", nx, ny, nz))
	}
}
