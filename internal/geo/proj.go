package geo

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// LonLat is the geographic spatial reference boundaries are usually
// delivered in.
const LonLat = "+proj=longlat"

// Projector converts geometries from one spatial reference to another.
// The zero value, and any Projector built with an empty source or target,
// passes geometries through unchanged.
type Projector struct {
	trans proj.Transformer
}

// NewProjector builds a Projector from proj4 definitions.
func NewProjector(from, to string) (*Projector, error) {
	if from == "" || to == "" || from == to {
		return &Projector{}, nil
	}
	src, err := proj.Parse(from)
	if err != nil {
		return nil, fmt.Errorf("invalid source projection %q: %w", from, err)
	}
	dst, err := proj.Parse(to)
	if err != nil {
		return nil, fmt.Errorf("invalid target projection %q: %w", to, err)
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to build transform: %w", err)
	}
	return &Projector{trans: trans}, nil
}

// Identity reports whether the projector leaves geometries unchanged.
func (p *Projector) Identity() bool {
	return p == nil || p.trans == nil
}

// Project transforms g.
func (p *Projector) Project(g geom.Polygonal) (geom.Polygonal, error) {
	if p.Identity() || g == nil {
		return g, nil
	}
	out, err := g.Transform(p.trans)
	if err != nil {
		return nil, fmt.Errorf("failed to project geometry: %w", err)
	}
	poly, ok := out.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("projection returned %T, not polygonal", out)
	}
	return poly, nil
}

// NewProjectorFromSR builds a Projector from an already parsed source
// reference, such as one read from a shapefile .prj.
func NewProjectorFromSR(src *proj.SR, to string) (*Projector, error) {
	if src == nil || to == "" {
		return &Projector{}, nil
	}
	dst, err := proj.Parse(to)
	if err != nil {
		return nil, fmt.Errorf("invalid target projection %q: %w", to, err)
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to build transform: %w", err)
	}
	return &Projector{trans: trans}, nil
}
