// Package hexgrid tessellates an area of interest into hexagon or square
// cells on a planar lattice.
//
// Hexagons are pointy-top and laid out in odd-r offset rows: odd rows are
// shifted right by half a cell width. Rows run south to north and columns
// west to east from the south-west corner of the area's bounds, and cells
// are emitted in that row-major order.
package hexgrid

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/geo"
)

// CellType selects the cell shape and how its size is derived.
type CellType string

const (
	// H3Hexagon sizes hexagons from the H3 average edge length at a resolution.
	H3Hexagon CellType = "H3_HEXAGON"
	// Hexagon sizes hexagons from a cell area.
	Hexagon CellType = "HEXAGON"
	// Square sizes squares from a cell area.
	Square CellType = "SQUARE"
)

// MaxCells bounds the candidate lattice so a mis-sized request fails fast
// instead of exhausting memory.
const MaxCells = 20_000_000

var ErrTooManyCells = errors.New("grid too large")

// ParseCellType accepts a cell type name in any case.
func ParseCellType(s string) (CellType, error) {
	switch t := CellType(strings.ToUpper(strings.TrimSpace(s))); t {
	case H3Hexagon, Hexagon, Square:
		return t, nil
	}
	return "", fmt.Errorf("unknown cell type %q (valid: %s, %s, %s)", s, H3Hexagon, Hexagon, Square)
}

// h3EdgeKm is the average hexagon edge length in kilometres for H3
// resolutions 0 through 15.
var h3EdgeKm = [16]float64{
	1107.712591, 418.6760055, 158.2446558, 59.81085794,
	22.6063794, 8.544408276, 3.229482772, 1.220629759,
	0.461354684, 0.174375668, 0.065907807, 0.024910561,
	0.009415526, 0.003559893, 0.001348575, 0.000509713,
}

// H3EdgeLength returns the average H3 hexagon edge length in meters.
func H3EdgeLength(resolution int) (float64, error) {
	if resolution < 0 || resolution >= len(h3EdgeKm) {
		return 0, fmt.Errorf("h3 resolution %d out of range 0..%d", resolution, len(h3EdgeKm)-1)
	}
	return h3EdgeKm[resolution] * 1000, nil
}

// HexagonArea returns the area of a regular hexagon with edge length s.
func HexagonArea(s float64) float64 {
	return 3 * math.Sqrt(3) / 2 * s * s
}

// HexagonEdge returns the edge length of a regular hexagon of the given area.
func HexagonEdge(area float64) float64 {
	return math.Sqrt(2 * area / (3 * math.Sqrt(3)))
}

// Spec describes the cells to generate.
type Spec struct {
	Type CellType
	// CellArea is the cell area in square meters (Hexagon and Square).
	CellArea float64
	// Resolution is the H3 resolution (H3Hexagon).
	Resolution int
}

// Size returns the hexagon edge length or the square side, in meters.
func (s Spec) Size() (float64, error) {
	switch s.Type {
	case H3Hexagon:
		return H3EdgeLength(s.Resolution)
	case Hexagon, Square:
		if !(s.CellArea > 0) || math.IsInf(s.CellArea, 0) {
			return 0, fmt.Errorf("cell area must be positive, got %g", s.CellArea)
		}
		if s.Type == Square {
			return math.Sqrt(s.CellArea), nil
		}
		return HexagonEdge(s.CellArea), nil
	}
	return 0, fmt.Errorf("unknown cell type %q", s.Type)
}

// Cell is one generated grid cell.
type Cell struct {
	ID      string
	Row     int
	Col     int
	Polygon geom.Polygon
}

// Generate returns every cell of the lattice described by spec that shares
// a positive area with aoi.
func Generate(spec Spec, aoi geom.Polygonal) ([]Cell, error) {
	if aoi == nil {
		return nil, fmt.Errorf("missing area of interest")
	}
	size, err := spec.Size()
	if err != nil {
		return nil, err
	}

	ix := geo.NewEdgeIndex(aoi)
	b := ix.Bounds()
	if b == nil || len(ix.Polygon()) == 0 {
		return []Cell{}, nil
	}

	l := newLattice(spec, size, b)
	if n := l.rows * l.cols; n > MaxCells || n < 0 {
		return nil, fmt.Errorf("%w: %d x %d candidate cells of size %.3f m exceeds %d", ErrTooManyCells, l.rows, l.cols, size, MaxCells)
	}

	cells := []Cell{}
	for r := 0; r < l.rows; r++ {
		for c := 0; c < l.cols; c++ {
			poly := l.cell(r, c)
			if !ix.Intersects(poly) {
				continue
			}
			cells = append(cells, Cell{ID: l.id(r, c), Row: r, Col: c, Polygon: poly})
		}
	}
	return cells, nil
}

type lattice struct {
	spec       Spec
	size       float64
	origin     geom.Point
	dx, dy     float64
	rows, cols int
}

func newLattice(spec Spec, size float64, b *geom.Bounds) lattice {
	l := lattice{spec: spec, size: size, origin: b.Min}
	width, height := b.Max.X-b.Min.X, b.Max.Y-b.Min.Y
	if spec.Type == Square {
		l.dx, l.dy = size, size
		l.cols = int(math.Ceil(width/size)) + 1
		l.rows = int(math.Ceil(height/size)) + 1
		return l
	}
	l.dx = math.Sqrt(3) * size
	l.dy = 1.5 * size
	// Vertex x coordinates repeat every dx/2 and y coordinates every
	// size/2. Shifting the origin by a quarter of each keeps vertices off
	// the AOI's bounding edges. One extra row and column cover the half
	// cells the offset layout leaves at the far edges.
	l.origin = geom.Point{X: b.Min.X - l.dx/4, Y: b.Min.Y - size/4}
	l.cols = int(math.Ceil(width/l.dx)) + 2
	l.rows = int(math.Ceil(height/l.dy)) + 2
	return l
}

func (l lattice) cell(r, c int) geom.Polygon {
	if l.spec.Type == Square {
		x0 := l.origin.X + float64(c)*l.dx
		y0 := l.origin.Y + float64(r)*l.dy
		return geom.Polygon{{
			{X: x0, Y: y0},
			{X: x0 + l.dx, Y: y0},
			{X: x0 + l.dx, Y: y0 + l.dy},
			{X: x0, Y: y0 + l.dy},
			{X: x0, Y: y0},
		}}
	}
	cx := l.origin.X + float64(c)*l.dx
	if r%2 == 1 {
		cx += l.dx / 2
	}
	cy := l.origin.Y + float64(r)*l.dy
	return hexagon(geom.Point{X: cx, Y: cy}, l.size)
}

func (l lattice) id(r, c int) string {
	switch l.spec.Type {
	case H3Hexagon:
		return fmt.Sprintf("H%02d-%d-%d", l.spec.Resolution, r, c)
	case Square:
		return fmt.Sprintf("SQ-%d-%d", r, c)
	default:
		return fmt.Sprintf("HX-%d-%d", r, c)
	}
}

// hexagon returns a closed counter-clockwise pointy-top hexagon ring.
func hexagon(center geom.Point, s float64) geom.Polygon {
	ring := make([]geom.Point, 7)
	for i := 0; i < 6; i++ {
		a := math.Pi/6 + float64(i)*math.Pi/3
		ring[i] = geom.Point{X: center.X + s*math.Cos(a), Y: center.Y + s*math.Sin(a)}
	}
	ring[6] = ring[0]
	return geom.Polygon{ring}
}
