package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	spatial "noisemap/internal/spatial/domain"
)

const (
	// DefaultSize is the rendered image edge length.
	DefaultSize = 16 * vg.Centimeter

	paletteColors = 64
)

// ErrNoField is returned when there is nothing to render.
var ErrNoField = errors.New("render: no field")

// fieldGrid adapts a Field to plotter.GridXYZ.
type fieldGrid struct {
	field  *spatial.Field
	lo, hi float64
}

func (g fieldGrid) Dims() (c, r int)   { return len(g.field.GridZ[0]), len(g.field.GridZ) }
func (g fieldGrid) Z(c, r int) float64 { return g.field.GridZ[r][c] }
func (g fieldGrid) X(c int) float64    { return g.field.GridX[0][c] }
func (g fieldGrid) Y(r int) float64    { return g.field.GridY[r][0] }
func (g fieldGrid) Min() float64       { return g.lo }
func (g fieldGrid) Max() float64       { return g.hi }

// Options controls rendering.
type Options struct {
	Title     string
	Sensors   []spatial.Point
	Epicenter *spatial.Epicenter
	Width     vg.Length
	Height    vg.Length
}

// FieldPNG renders the field as a heat map with sensor and epicenter markers.
func FieldPNG(field *spatial.Field, opts Options) ([]byte, error) {
	if field == nil || len(field.GridZ) == 0 || len(field.GridZ[0]) == 0 {
		return nil, ErrNoField
	}
	if opts.Width <= 0 {
		opts.Width = DefaultSize
	}
	if opts.Height <= 0 {
		opts.Height = DefaultSize
	}

	lo, hi := field.Range()
	if hi <= lo {
		lo, hi = lo-0.5, hi+0.5
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = "Noise level (dB)"
	}
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	heat := plotter.NewHeatMap(fieldGrid{field: field, lo: lo, hi: hi}, palette.Heat(paletteColors, 1))
	p.Add(heat)

	if len(opts.Sensors) > 0 {
		pts := make(plotter.XYs, len(opts.Sensors))
		for i, s := range opts.Sensors {
			pts[i] = plotter.XY{X: s.X, Y: s.Y}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("render: sensors: %w", err)
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)
		scatter.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
		p.Add(scatter)
		p.Legend.Add("sensors", scatter)
	}

	if opts.Epicenter != nil {
		epi, err := plotter.NewScatter(plotter.XYs{{X: opts.Epicenter.X, Y: opts.Epicenter.Y}})
		if err != nil {
			return nil, fmt.Errorf("render: epicenter: %w", err)
		}
		epi.GlyphStyle.Shape = draw.CrossGlyph{}
		epi.GlyphStyle.Radius = vg.Points(7)
		epi.GlyphStyle.Color = color.Black
		p.Add(epi)
		p.Legend.Add("epicenter", epi)
	}

	writer, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("render: writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}
	return buf.Bytes(), nil
}
