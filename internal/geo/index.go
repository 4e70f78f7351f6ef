package geo

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// EdgeIndex answers containment and boundary-proximity queries against a
// polygon by indexing its ring segments in an R-tree.
type EdgeIndex struct {
	tree   *rtree.Rtree
	bounds *geom.Bounds
	poly   geom.Polygon
}

// NewEdgeIndex indexes every ring segment of p.
func NewEdgeIndex(p geom.Polygonal) *EdgeIndex {
	poly := AsPolygon(p)
	ix := &EdgeIndex{tree: rtree.NewTree(25, 50), poly: poly, bounds: poly.Bounds()}
	for _, ring := range poly {
		for i := 1; i < len(ring); i++ {
			ix.tree.Insert(geom.LineString{ring[i-1], ring[i]})
		}
		// Rings are normally closed; close them here when they are not.
		if n := len(ring); n > 2 && ring[0] != ring[n-1] {
			ix.tree.Insert(geom.LineString{ring[n-1], ring[0]})
		}
	}
	return ix
}

// Bounds returns the bounds of the indexed polygon.
func (ix *EdgeIndex) Bounds() *geom.Bounds {
	return ix.bounds
}

// Polygon returns the indexed polygon.
func (ix *EdgeIndex) Polygon() geom.Polygon {
	return ix.poly
}

// NearBoundary reports whether any polygon edge has a bounding box that
// overlaps b.
func (ix *EdgeIndex) NearBoundary(b *geom.Bounds) bool {
	return len(ix.tree.SearchIntersect(b)) > 0
}

// Contains reports whether pt lies inside the polygon using the even-odd
// rule, so holes are excluded.
func (ix *EdgeIndex) Contains(pt geom.Point) bool {
	if !ix.bounds.Overlaps(&geom.Bounds{Min: pt, Max: pt}) {
		return false
	}
	ray := &geom.Bounds{Min: pt, Max: geom.Point{X: ix.bounds.Max.X + 1, Y: pt.Y}}
	inside := false
	for _, g := range ix.tree.SearchIntersect(ray) {
		seg := g.(geom.LineString)
		a, b := seg[0], seg[1]
		if (a.Y > pt.Y) != (b.Y > pt.Y) {
			x := a.X + (pt.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if pt.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Intersects reports whether cell shares a positive area with the polygon.
// Cells away from the boundary are decided by containment of their centre;
// only boundary cells are clipped. Clipping reports no overlap when vertices
// fall exactly on the other polygon's edges, so a zero clip is confirmed by
// looking for a vertex strictly inside either polygon.
func (ix *EdgeIndex) Intersects(cell geom.Polygonal) bool {
	cb := cell.Bounds()
	if !ix.bounds.Overlaps(cb) {
		return false
	}
	if !ix.NearBoundary(cb) {
		return ix.Contains(Center(cb))
	}
	if IntersectionArea(cell, ix.poly) > 0 {
		return true
	}
	cp := AsPolygon(cell)
	for _, ring := range cp {
		for _, pt := range ring {
			if ix.strictlyContains(pt) {
				return true
			}
		}
	}
	if ix.strictlyContains(Center(cb)) {
		return true
	}
	cix := NewEdgeIndex(cp)
	for _, g := range ix.tree.SearchIntersect(cb) {
		for _, pt := range g.(geom.LineString) {
			if cix.strictlyContains(pt) {
				return true
			}
		}
	}
	return false
}

// strictlyContains reports whether pt is inside the polygon and not on any
// of its edges.
func (ix *EdgeIndex) strictlyContains(pt geom.Point) bool {
	return ix.Contains(pt) && !ix.onBoundary(pt)
}

func (ix *EdgeIndex) onBoundary(pt geom.Point) bool {
	eps := boundaryEpsilon * math.Max(1, math.Max(ix.bounds.Max.X-ix.bounds.Min.X, ix.bounds.Max.Y-ix.bounds.Min.Y))
	around := &geom.Bounds{
		Min: geom.Point{X: pt.X - eps, Y: pt.Y - eps},
		Max: geom.Point{X: pt.X + eps, Y: pt.Y + eps},
	}
	for _, g := range ix.tree.SearchIntersect(around) {
		seg := g.(geom.LineString)
		if segmentDistance(pt, seg[0], seg[1]) <= eps {
			return true
		}
	}
	return false
}

// boundaryEpsilon is relative to the larger side of the polygon's bounds.
const boundaryEpsilon = 1e-9

func segmentDistance(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
