package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/geo"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/units"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// metersPerDegree approximates a degree of arc at the equator, used when a
// linear tolerance has to be applied to geographic coordinates.
const metersPerDegree = 111_320.0

// Dissolve unions the features of opts.InLayer into opts.OutLayer, one
// multipart feature per distinct value of opts.Field, or a single feature
// when no field is given.
func (p *Provider) Dissolve(ctx context.Context, opts provider.DissolveOptions) error {
	return p.run("Dissolve", func() error {
		if err := p.prepareOutput(ctx, opts.OutLayer); err != nil {
			return err
		}
		in, err := p.ws.ReadLayer(ctx, opts.InLayer)
		if err != nil {
			return err
		}

		out := &workspace.Layer{SRS: in.SRS}
		var (
			keys   []any
			groups = map[any][]geom.Polygonal{}
		)
		if opts.Field != "" {
			f, ok := in.Field(opts.Field)
			if !ok {
				return fmt.Errorf("%w: %s in %s", workspace.ErrFieldNotFound, opts.Field, opts.InLayer)
			}
			out.Fields = []workspace.Field{f}
		}
		for _, feat := range in.Features {
			var key any
			if opts.Field != "" {
				key = feat.Attrs[opts.Field]
			}
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], feat.Geometry)
		}

		for _, key := range keys {
			feat := workspace.Feature{Geometry: geo.UnionAll(groups[key])}
			if opts.Field != "" {
				feat.Attrs = map[string]any{opts.Field: key}
			}
			out.Features = append(out.Features, feat)
		}

		if err := p.ws.CreateLayer(ctx, opts.OutLayer, out); err != nil {
			return err
		}
		p.note("Dissolved %d features into %d", len(in.Features), len(out.Features))
		return nil
	})
}

// Generalize simplifies every feature of layer in place with the
// Douglas-Peucker algorithm.
func (p *Provider) Generalize(ctx context.Context, layer, tolerance string) error {
	return p.run("Generalize", func() error {
		meters, err := units.ParseDistance(tolerance)
		if err != nil {
			return err
		}
		desc, err := p.ws.Describe(ctx, layer)
		if err != nil {
			return err
		}
		tol := meters
		if geographic(desc.SRS) {
			tol = meters / metersPerDegree
			p.note("Layer is geographic; tolerance %s applied as %.6f degrees", tolerance, tol)
		}

		var before, after int
		err = p.ws.UpdateGeometries(ctx, layer, func(f workspace.Feature) (geom.Polygonal, error) {
			before += vertexCount(f.Geometry)
			g, err := geo.Simplify(f.Geometry, tol)
			if err != nil {
				return nil, err
			}
			after += vertexCount(g)
			return g, nil
		})
		if err != nil {
			return err
		}
		p.note("Generalized %s from %d to %d vertices", layer, before, after)
		return nil
	})
}

func geographic(srs string) bool {
	return strings.Contains(srs, "+proj=longlat") || strings.Contains(srs, "+proj=latlong")
}

func vertexCount(g geom.Polygonal) int {
	n := 0
	for _, ring := range geo.AsPolygon(g) {
		n += len(ring)
	}
	return n
}
