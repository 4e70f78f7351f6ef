package hexgrid

import (
	"errors"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hexenrich/internal/geo"
)

func box(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func TestParseCellType(t *testing.T) {
	for in, want := range map[string]CellType{
		"H3_HEXAGON": H3Hexagon,
		"hexagon":    Hexagon,
		" Square ":   Square,
	} {
		got, err := ParseCellType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCellType("TRIANGLE")
	assert.Error(t, err)
}

func TestH3EdgeLength(t *testing.T) {
	got, err := H3EdgeLength(7)
	require.NoError(t, err)
	assert.InDelta(t, 1220.629759, got, 1e-6)

	prev := math.Inf(1)
	for r := 0; r <= 15; r++ {
		e, err := H3EdgeLength(r)
		require.NoError(t, err)
		assert.Less(t, e, prev, "edge length must shrink with resolution")
		prev = e
	}

	_, err = H3EdgeLength(16)
	assert.Error(t, err)
	_, err = H3EdgeLength(-1)
	assert.Error(t, err)
}

func TestHexagonAreaEdgeInverse(t *testing.T) {
	for _, s := range []float64{1, 17.5, 1220.629759} {
		assert.InDelta(t, s, HexagonEdge(HexagonArea(s)), 1e-9*s)
	}
}

func TestSpecSize(t *testing.T) {
	const squareMile = 1609.344 * 1609.344
	tests := []struct {
		spec Spec
		want float64
	}{
		{Spec{Type: H3Hexagon, Resolution: 7}, 1220.629759},
		{Spec{Type: Square, CellArea: squareMile}, 1609.344},
		{Spec{Type: Hexagon, CellArea: HexagonArea(250)}, 250},
	}
	for _, tt := range tests {
		got, err := tt.spec.Size()
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-6, "%+v", tt.spec)
	}

	for _, bad := range []Spec{
		{Type: Hexagon},
		{Type: Square, CellArea: -1},
		{Type: Square, CellArea: math.NaN()},
		{Type: H3Hexagon, Resolution: 99},
		{Type: "CIRCLE", CellArea: 1},
	} {
		_, err := bad.Size()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestGenerate_SquareLatticeExact(t *testing.T) {
	cells, err := Generate(Spec{Type: Square, CellArea: 1}, box(0, 0, 4, 4))
	require.NoError(t, err)
	require.Len(t, cells, 16, "cells touching only the far edges must be dropped")

	assert.Equal(t, "SQ-0-0", cells[0].ID)
	assert.Equal(t, "SQ-3-3", cells[15].ID)
	for _, c := range cells {
		assert.InDelta(t, 1.0, c.Polygon.Area(), 1e-12)
	}
}

func TestGenerate_HexagonsCoverArea(t *testing.T) {
	aoi := box(0, 0, 10_000, 10_000)
	spec := Spec{Type: H3Hexagon, Resolution: 7}

	cells, err := Generate(spec, aoi)
	require.NoError(t, err)
	require.NotEmpty(t, cells)

	edge, _ := H3EdgeLength(7)
	var covered float64
	seen := map[string]bool{}
	for i, c := range cells {
		assert.InDelta(t, HexagonArea(edge), c.Polygon.Area(), 1e-6*HexagonArea(edge))
		assert.Greater(t, geo.IntersectionArea(c.Polygon, aoi), 0.0, "cell %s", c.ID)
		covered += geo.IntersectionArea(c.Polygon, aoi)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
		if i > 0 {
			p := cells[i-1]
			assert.True(t, p.Row < c.Row || (p.Row == c.Row && p.Col < c.Col), "cells out of row-major order at %d", i)
		}
	}
	// Cells tile the plane, so their clipped areas add up to the AOI.
	assert.InDelta(t, 1e8, covered, 1e8*1e-6)
	assert.Regexp(t, `^H07-\d+-\d+$`, cells[0].ID)
}

func TestGenerate_Deterministic(t *testing.T) {
	aoi := geom.Polygon{{
		{X: 0, Y: 0}, {X: 5000, Y: 1000}, {X: 7000, Y: 6000}, {X: 1000, Y: 8000}, {X: 0, Y: 0},
	}}
	spec := Spec{Type: Hexagon, CellArea: 500_000}

	ids := func() []string {
		cells, err := Generate(spec, aoi)
		require.NoError(t, err)
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = c.ID
		}
		return out
	}
	first := ids()
	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, ids()); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestGenerate_SmallAreaSingleCell(t *testing.T) {
	cells, err := Generate(Spec{Type: Hexagon, CellArea: HexagonArea(1000)}, box(0, 0, 1, 1))
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, "HX-0-0", cells[0].ID)
}

func TestGenerate_SkipsHoles(t *testing.T) {
	donut := geom.Polygon{
		box(0, 0, 10, 10)[0],
		{{X: 2, Y: 2}, {X: 2, Y: 8}, {X: 8, Y: 8}, {X: 8, Y: 2}, {X: 2, Y: 2}},
	}
	cells, err := Generate(Spec{Type: Square, CellArea: 1}, donut)
	require.NoError(t, err)
	assert.Len(t, cells, 100-36)
	for _, c := range cells {
		assert.NotEqual(t, "SQ-5-5", c.ID, "hole cell emitted")
	}
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(Spec{Type: Square, CellArea: 1}, nil)
	assert.Error(t, err)

	_, err = Generate(Spec{Type: Square, CellArea: 1}, box(0, 0, 1e6, 1e6))
	assert.True(t, errors.Is(err, ErrTooManyCells), "got %v", err)

	_, err = Generate(Spec{Type: Hexagon}, box(0, 0, 1, 1))
	assert.Error(t, err)
}

func TestGenerate_HexagonVerticesOffBoundsEdges(t *testing.T) {
	aoi := box(0, 0, 10_000, 10_000)
	cells, err := Generate(Spec{Type: H3Hexagon, Resolution: 7}, aoi)
	require.NoError(t, err)

	for _, c := range cells {
		for _, pt := range c.Polygon[0] {
			assert.NotEqual(t, 0.0, pt.X, "cell %s has a vertex on the west edge", c.ID)
			assert.NotEqual(t, 0.0, pt.Y, "cell %s has a vertex on the south edge", c.ID)
		}
	}
	// Cell 0-0 overlaps the south-west corner.
	assert.Equal(t, "H07-0-0", cells[0].ID)
	assert.Greater(t, geo.IntersectionArea(cells[0].Polygon, aoi), 0.0)
}
