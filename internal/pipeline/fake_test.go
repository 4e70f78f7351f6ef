package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/geo"
	"github.com/banshee-data/hexenrich/internal/hexgrid"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

var errInjected = errors.New("injected failure")

// fakeProvider builds deterministic layers over unit squares so pipeline
// behaviour can be observed without a data source.
type fakeProvider struct {
	ws  *workspace.Manager
	env provider.MemoryEnv

	mu       sync.Mutex
	calls    []string
	sources  []string
	messages []string
	enriched string
	failOn   string
	hook     func(call string)
}

var _ provider.Provider = (*fakeProvider)(nil)

var fakeCatalog = []catalog.Variable{
	{Name: "TOTPOP", EnrichName: "population.TOTPOP", FieldName: "TOTPOP"},
	{Name: "THH01", EnrichName: "householdincome.THH01", FieldName: "THH01"},
	{Name: "XTHH02", EnrichName: "householdincome.XTHH02", FieldName: "XTHH02"},
	{Name: "THH02", EnrichName: "householdincome.THH02", FieldName: "THH02"},
}

func newFakeProvider(ws *workspace.Manager) *fakeProvider {
	return &fakeProvider{ws: ws}
}

func (f *fakeProvider) call(name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.sources = append(f.sources, f.env.DataSource())
	f.messages = []string{"Start Time: fake", "Running " + name}
	hook, fail := f.hook, f.failOn == name
	f.mu.Unlock()
	if hook != nil {
		hook(name)
	}
	if fail {
		return fmt.Errorf("%s: %w", name, errInjected)
	}
	return nil
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) Env() provider.Env { return &f.env }

func (f *fakeProvider) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func (f *fakeProvider) Variables(ctx context.Context, country string) ([]catalog.Variable, error) {
	if err := f.call("Variables"); err != nil {
		return nil, err
	}
	return append([]catalog.Variable(nil), fakeCatalog...), nil
}

func unitSquare(x0 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: 0}, {X: x0 + 1, Y: 0}, {X: x0 + 1, Y: 1}, {X: x0, Y: 1}, {X: x0, Y: 0}}}
}

func (f *fakeProvider) StandardGeography(ctx context.Context, opts provider.GeographyOptions) error {
	if err := f.call("StandardGeography"); err != nil {
		return err
	}
	layer := &workspace.Layer{Fields: []workspace.Field{{Name: "ID", Type: workspace.FieldText}, {Name: "NAME", Type: workspace.FieldText}}}
	for i, id := range opts.IDs {
		layer.Features = append(layer.Features, workspace.Feature{
			Geometry: unitSquare(float64(i)),
			Attrs:    map[string]any{"ID": id, "NAME": "Region " + id},
		})
	}
	return f.ws.CreateLayer(ctx, opts.OutLayer, layer)
}

func (f *fakeProvider) Dissolve(ctx context.Context, opts provider.DissolveOptions) error {
	if err := f.call("Dissolve"); err != nil {
		return err
	}
	in, err := f.ws.ReadLayer(ctx, opts.InLayer)
	if err != nil {
		return err
	}
	polys := make([]geom.Polygonal, len(in.Features))
	for i, feat := range in.Features {
		polys[i] = feat.Geometry
	}
	return f.ws.CreateLayer(ctx, opts.OutLayer, &workspace.Layer{
		Features: []workspace.Feature{{Geometry: geo.UnionAll(polys)}},
	})
}

func (f *fakeProvider) Generalize(ctx context.Context, layer, tolerance string) error {
	if err := f.call("Generalize"); err != nil {
		return err
	}
	_, err := f.ws.Describe(ctx, layer)
	return err
}

func (f *fakeProvider) GenerateGrid(ctx context.Context, opts provider.GridOptions) error {
	if err := f.call("GenerateGrid"); err != nil {
		return err
	}
	aoi, err := f.ws.ReadLayer(ctx, opts.AOILayer)
	if err != nil {
		return err
	}
	polys := make([]geom.Polygonal, len(aoi.Features))
	for i, feat := range aoi.Features {
		polys[i] = feat.Geometry
	}
	cells, err := hexgrid.Generate(hexgrid.Spec{Type: hexgrid.Hexagon, CellArea: 0.05}, geo.UnionAll(polys))
	if err != nil {
		return err
	}
	out := &workspace.Layer{Fields: []workspace.Field{{Name: GridIDField, Type: workspace.FieldText}}}
	for _, c := range cells {
		out.Features = append(out.Features, workspace.Feature{Geometry: c.Polygon, Attrs: map[string]any{GridIDField: c.ID}})
	}
	return f.ws.CreateLayer(ctx, opts.OutLayer, out)
}

func (f *fakeProvider) Enrich(ctx context.Context, opts provider.EnrichOptions) error {
	f.mu.Lock()
	f.enriched = opts.Variables
	f.mu.Unlock()
	if err := f.call("Enrich"); err != nil {
		return err
	}
	in, err := f.ws.ReadLayer(ctx, opts.InLayer)
	if err != nil {
		return err
	}
	out := &workspace.Layer{SRS: in.SRS, Fields: in.Fields}
	names := catalog.SplitEnrichNames(opts.Variables)
	for _, n := range names {
		v, ok := lookup(n)
		if !ok {
			return fmt.Errorf("%w: %s", provider.ErrUnknownVariable, n)
		}
		out.Fields = append(out.Fields, workspace.Field{Name: v.FieldName, Type: workspace.FieldDouble})
	}
	for i, feat := range in.Features {
		attrs := map[string]any{GridIDField: feat.Attrs[GridIDField]}
		for j, n := range names {
			v, _ := lookup(n)
			attrs[v.FieldName] = float64(i*10 + j)
		}
		out.Features = append(out.Features, workspace.Feature{Geometry: feat.Geometry, Attrs: attrs})
	}
	return f.ws.CreateLayer(ctx, opts.OutLayer, out)
}

func lookup(enrichName string) (catalog.Variable, bool) {
	for _, v := range fakeCatalog {
		if v.EnrichName == enrichName {
			return v, true
		}
	}
	return catalog.Variable{}, false
}
