package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PNG canvas size.
const (
	pngWidth  = 10 * vg.Inch
	pngHeight = 8 * vg.Inch
)

var noData = color.Gray{Y: 200}

// WritePNG draws every cell as a filled polygon coloured by value.
func WritePNG(w io.Writer, cells []Cell, o Options) error {
	p := plot.New()
	p.Title.Text = o.title()
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	sum := Summarize(cells)
	if o.Variable != "" {
		p.Title.Text = fmt.Sprintf("%s: %s (%s)", o.title(), o.Variable, sum)
	}

	cm := moreland.Kindlmann()
	lo, hi := sum.valueRange()
	cm.SetMin(lo)
	cm.SetMax(hi)

	for _, c := range cells {
		for _, poly := range splitPolygons(c) {
			rings := make([]plotter.XYer, 0, len(poly))
			for _, ring := range poly {
				xys := make(plotter.XYs, len(ring))
				for i, pt := range ring {
					xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
				}
				rings = append(rings, xys)
			}
			if len(rings) == 0 {
				continue
			}
			shape, err := plotter.NewPolygon(rings...)
			if err != nil {
				return fmt.Errorf("cell %s: %w", c.ID, err)
			}
			if math.IsNaN(c.Value) {
				shape.Color = noData
			} else {
				col, err := cm.At(clamp(c.Value, lo, hi))
				if err != nil {
					return fmt.Errorf("cell %s: %w", c.ID, err)
				}
				shape.Color = col
			}
			shape.LineStyle.Width = vg.Points(0.2)
			p.Add(shape)
		}
	}

	wt, err := p.WriterTo(pngWidth, pngHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// splitPolygons returns the outer-ring groups of a cell geometry. Cells are
// single polygons; clipped or dissolved inputs may be multipart.
func splitPolygons(c Cell) []geom.Polygon {
	if c.Geometry == nil {
		return nil
	}
	return c.Geometry.Polygons()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
