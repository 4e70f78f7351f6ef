package local

import (
	"context"
	"fmt"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/geo"
	"github.com/banshee-data/hexenrich/internal/hexgrid"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/units"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// GridIDField is the cell identifier attribute written by GenerateGrid.
const GridIDField = "GRID_ID"

// GenerateGrid tessellates the union of the AOI layer's features into cells
// and writes those intersecting it to opts.OutLayer.
func (p *Provider) GenerateGrid(ctx context.Context, opts provider.GridOptions) error {
	return p.run("GenerateTessellation", func() error {
		spec, err := gridSpec(opts)
		if err != nil {
			return err
		}
		if err := p.prepareOutput(ctx, opts.OutLayer); err != nil {
			return err
		}
		aoi, err := p.ws.ReadLayer(ctx, opts.AOILayer)
		if err != nil {
			return err
		}
		if geographic(aoi.SRS) {
			return fmt.Errorf("grid generation needs a projected coordinate system; %s is geographic", opts.AOILayer)
		}

		polys := make([]geom.Polygonal, len(aoi.Features))
		for i, f := range aoi.Features {
			polys[i] = f.Geometry
		}
		area := geo.UnionAll(polys)
		if area == nil {
			return fmt.Errorf("area of interest %s has no features", opts.AOILayer)
		}

		cells, err := hexgrid.Generate(spec, area)
		if err != nil {
			return err
		}
		out := &workspace.Layer{
			SRS:      aoi.SRS,
			Fields:   []workspace.Field{{Name: GridIDField, Type: workspace.FieldText}},
			Features: make([]workspace.Feature, len(cells)),
		}
		for i, c := range cells {
			out.Features[i] = workspace.Feature{
				Geometry: c.Polygon,
				Attrs:    map[string]any{GridIDField: c.ID},
			}
		}
		if err := p.ws.CreateLayer(ctx, opts.OutLayer, out); err != nil {
			return err
		}

		size, _ := spec.Size()
		p.note("Generated %d %s cells (size %.3f m) into %s", len(cells), spec.Type, size, opts.OutLayer)
		return nil
	})
}

func gridSpec(opts provider.GridOptions) (hexgrid.Spec, error) {
	t, err := hexgrid.ParseCellType(opts.CellType)
	if err != nil {
		return hexgrid.Spec{}, err
	}
	spec := hexgrid.Spec{Type: t, Resolution: opts.H3Resolution}
	if t == hexgrid.H3Hexagon {
		_, err := hexgrid.H3EdgeLength(opts.H3Resolution)
		return spec, err
	}
	if spec.CellArea, err = units.ParseArea(opts.CellSize); err != nil {
		return hexgrid.Spec{}, fmt.Errorf("cell size: %w", err)
	}
	return spec, nil
}
