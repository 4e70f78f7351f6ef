package local

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/geo"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// sourceBlock is a demographic polygon in the R-tree with its values in
// variable order.
type sourceBlock struct {
	geom.Polygonal
	area   float64
	values []float64
}

// Enrich copies opts.InLayer to opts.OutLayer and adds one attribute per
// enrichment variable. Each cell receives the sum over intersecting source
// blocks of value * (intersection area / block area).
func (p *Provider) Enrich(ctx context.Context, opts provider.EnrichOptions) error {
	return p.run("EnrichLayer", func() error {
		if err := p.prepareOutput(ctx, opts.OutLayer); err != nil {
			return err
		}
		src, err := p.source()
		if err != nil {
			return err
		}

		names := catalog.SplitEnrichNames(opts.Variables)
		vars := make([]catalog.Variable, len(names))
		for i, n := range names {
			v, ok, err := src.VariableByEnrichName(ctx, n)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", provider.ErrUnknownVariable, n)
			}
			vars[i] = v
		}

		in, err := p.ws.ReadLayer(ctx, opts.InLayer)
		if err != nil {
			return err
		}
		out := &workspace.Layer{SRS: in.SRS, Fields: append([]workspace.Field{}, in.Fields...)}
		for _, v := range vars {
			if _, dup := out.Field(v.FieldName); dup {
				return fmt.Errorf("enrichment field %s already exists in %s", v.FieldName, opts.InLayer)
			}
			out.Fields = append(out.Fields, workspace.Field{Name: v.FieldName, Type: workspace.FieldDouble})
		}

		tree, n, err := p.blockIndex(ctx, names, in.SRS)
		if err != nil {
			return err
		}

		weights := make([]float64, 0, 16)
		column := make([]float64, 0, 16)
		for _, feat := range in.Features {
			if err := ctx.Err(); err != nil {
				return err
			}
			attrs := make(map[string]any, len(out.Fields))
			for k, v := range feat.Attrs {
				attrs[k] = v
			}

			var hits []*sourceBlock
			weights = weights[:0]
			if len(vars) > 0 {
				for _, g := range tree.SearchIntersect(feat.Geometry.Bounds()) {
					b := g.(*sourceBlock)
					a := geo.IntersectionArea(feat.Geometry, b.Polygonal)
					if a <= 0 {
						continue
					}
					hits = append(hits, b)
					weights = append(weights, a/b.area)
				}
			}
			for j, v := range vars {
				column = column[:0]
				for _, b := range hits {
					column = append(column, b.values[j])
				}
				total := 0.0
				if len(hits) > 0 {
					total = floats.Dot(weights, column)
				}
				attrs[v.FieldName] = total
			}
			out.Features = append(out.Features, workspace.Feature{Geometry: feat.Geometry, Attrs: attrs})
		}

		if err := p.ws.CreateLayer(ctx, opts.OutLayer, out); err != nil {
			return err
		}
		p.note("Enriched %d features with %d variables from %d source blocks", len(out.Features), len(vars), n)
		return nil
	})
}

// blockIndex loads the data source blocks, projects them into srs and
// indexes them.
func (p *Provider) blockIndex(ctx context.Context, names []string, srs string) (*rtree.Rtree, int, error) {
	tree := rtree.NewTree(25, 50)
	if len(names) == 0 {
		return tree, 0, nil
	}
	src, err := p.source()
	if err != nil {
		return nil, 0, err
	}
	meta, err := src.Metadata(ctx)
	if err != nil {
		return nil, 0, err
	}
	projector, err := geo.NewProjector(meta.SRS, srs)
	if err != nil {
		return nil, 0, err
	}
	blocks, err := src.Blocks(ctx, names)
	if err != nil {
		return nil, 0, err
	}

	n := 0
	for _, b := range blocks {
		g, err := projector.Project(b.Geometry)
		if err != nil {
			return nil, 0, fmt.Errorf("block %s: %w", b.ID, err)
		}
		area := math.Abs(g.Area())
		if area <= 0 {
			continue
		}
		sb := &sourceBlock{Polygonal: g, area: area, values: make([]float64, len(names))}
		for j, name := range names {
			sb.values[j] = b.Values[name]
		}
		tree.Insert(sb)
		n++
	}
	return tree, n, nil
}
