// Package geo holds the planar geometry operations used by the pipeline:
// union, simplification, bounds and projection between spatial references.
package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// AsPolygon flattens any polygonal geometry into a single ring list.
func AsPolygon(g geom.Polygonal) geom.Polygon {
	if p, ok := g.(geom.Polygon); ok {
		return p
	}
	if b, ok := g.(*geom.Bounds); ok {
		return BoundsPolygon(b)
	}
	var out geom.Polygon
	for _, p := range g.Polygons() {
		out = append(out, p...)
	}
	return out
}

// BoundsPolygon returns b as a closed counter-clockwise ring.
func BoundsPolygon(b *geom.Bounds) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Min.Y},
	}}
}

// UnionAll merges geoms into one multipart polygon. It returns nil when
// geoms is empty.
func UnionAll(geoms []geom.Polygonal) geom.Polygon {
	var out geom.Polygon
	for _, g := range geoms {
		if g == nil {
			continue
		}
		p := AsPolygon(g)
		if out == nil {
			out = p
			continue
		}
		out = AsPolygon(out.Union(p))
	}
	return out
}

// Simplify applies Douglas-Peucker simplification to g with the given
// tolerance in the units of g's coordinates.
func Simplify(g geom.Polygonal, tolerance float64) (geom.Polygonal, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("negative simplify tolerance %g", tolerance)
	}
	if tolerance == 0 {
		return g, nil
	}
	s := AsPolygon(g).Simplify(tolerance)
	p, ok := s.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("simplify returned %T, not polygonal", s)
	}
	return p, nil
}

// Center returns the midpoint of b.
func Center(b *geom.Bounds) geom.Point {
	return geom.Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

// IntersectionArea returns the area shared by a and b, or 0 when they do
// not overlap.
func IntersectionArea(a, b geom.Polygonal) float64 {
	if !a.Bounds().Overlaps(b.Bounds()) {
		return 0
	}
	isect := a.Intersection(b)
	if isect == nil {
		return 0
	}
	return math.Abs(isect.Area())
}
