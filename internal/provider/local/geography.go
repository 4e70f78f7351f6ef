package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/datasource"
	"github.com/banshee-data/hexenrich/internal/geo"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// Variables returns the catalog of the current data source, which must
// cover country.
func (p *Provider) Variables(ctx context.Context, country string) ([]catalog.Variable, error) {
	var vars []catalog.Variable
	err := p.run("ListVariables", func() error {
		src, err := p.source()
		if err != nil {
			return err
		}
		meta, err := src.Metadata(ctx)
		if err != nil {
			return err
		}
		if !strings.EqualFold(meta.Country, country) {
			return fmt.Errorf("%w: %s covers %q, not %q", provider.ErrCountryMismatch, src.Path(), meta.Country, country)
		}
		if vars, err = src.Variables(ctx); err != nil {
			return err
		}
		p.note("%d variables available for %s", len(vars), meta.Country)
		return nil
	})
	return vars, err
}

// StandardGeography writes the requested regions to opts.OutLayer, one
// feature per ID in request order, projected into the processing projection.
func (p *Provider) StandardGeography(ctx context.Context, opts provider.GeographyOptions) error {
	return p.run("StandardGeographyTA", func() error {
		summarize := strings.ToUpper(opts.SummarizeDuplicates)
		if summarize == "" {
			summarize = provider.UseFirst
		}
		if summarize != provider.UseFirst && summarize != provider.UseAll {
			return fmt.Errorf("invalid summarize duplicates %q", opts.SummarizeDuplicates)
		}
		dissolve := strings.ToUpper(opts.Dissolve)
		if dissolve == "" {
			dissolve = provider.DontDissolve
		}
		if dissolve != provider.DontDissolve && dissolve != provider.Dissolve {
			return fmt.Errorf("invalid dissolve option %q", opts.Dissolve)
		}
		if len(opts.IDs) == 0 {
			return fmt.Errorf("%w: no region identifiers given", provider.ErrUnknownGeography)
		}
		if err := p.prepareOutput(ctx, opts.OutLayer); err != nil {
			return err
		}

		src, err := p.source()
		if err != nil {
			return err
		}
		ok, err := src.HasLevel(ctx, opts.Level)
		if err != nil {
			return err
		}
		if !ok {
			levels, err := src.Levels(ctx)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: level %q (available: %s)", provider.ErrUnknownGeography, opts.Level, strings.Join(levels, ", "))
		}

		geos, err := src.Geographies(ctx, opts.Level, opts.IDs)
		if err != nil {
			return err
		}
		geos, err = selectGeographies(geos, opts.IDs, summarize)
		if err != nil {
			return fmt.Errorf("%w: level %s: %v", provider.ErrUnknownGeography, opts.Level, err)
		}

		meta, err := src.Metadata(ctx)
		if err != nil {
			return err
		}
		projector, err := geo.NewProjector(meta.SRS, p.projection)
		if err != nil {
			return err
		}
		srs := meta.SRS
		if !projector.Identity() {
			srs = p.projection
		}

		layer := &workspace.Layer{
			SRS:    srs,
			Fields: []workspace.Field{{Name: "ID", Type: workspace.FieldText}, {Name: "NAME", Type: workspace.FieldText}},
		}
		for _, g := range geos {
			poly, err := projector.Project(g.Geometry)
			if err != nil {
				return fmt.Errorf("region %s: %w", g.ID, err)
			}
			layer.Features = append(layer.Features, workspace.Feature{
				Geometry: poly,
				Attrs:    map[string]any{"ID": g.ID, "NAME": g.Name},
			})
		}

		if dissolve == provider.Dissolve {
			polys := make([]geom.Polygonal, len(layer.Features))
			for i, f := range layer.Features {
				polys[i] = f.Geometry
			}
			layer.Features = []workspace.Feature{{
				Geometry: geo.UnionAll(polys),
				Attrs:    map[string]any{"ID": strings.Join(opts.IDs, ","), "NAME": opts.Level},
			}}
		}

		if err := p.ws.CreateLayer(ctx, opts.OutLayer, layer); err != nil {
			return err
		}
		p.note("Resolved %d %s features into %s", len(layer.Features), opts.Level, opts.OutLayer)
		return nil
	})
}

// selectGeographies checks every requested ID was found and applies the
// duplicate policy: the first part of each ID, or all of them.
func selectGeographies(geos []datasource.Geography, ids []string, summarize string) ([]datasource.Geography, error) {
	found := make(map[string]bool, len(geos))
	out := make([]datasource.Geography, 0, len(geos))
	for _, g := range geos {
		if found[g.ID] && summarize == provider.UseFirst {
			continue
		}
		found[g.ID] = true
		out = append(out, g)
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown ids %s", strings.Join(missing, ", "))
	}
	return out, nil
}
