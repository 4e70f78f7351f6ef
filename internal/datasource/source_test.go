package datasource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hexenrich/internal/catalog"
)

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0},
	}}
}

func newTestSource(t *testing.T) *Source {
	t.Helper()
	src, err := Create(filepath.Join(t.TempDir(), "TEST_2022"+Extension))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.sqlite"))
	assert.Error(t, err)
}

func TestCreateThenOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "USA_TEST"+Extension)

	src, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, src.SetMetadata(ctx, Metadata{Country: "USA", Vintage: "2022"}))
	require.NoError(t, src.Close())

	src, err = Open(path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, path, src.Path())

	meta, err := src.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, Metadata{Country: "USA", Vintage: "2022"}, meta)
}

func TestSetMetadata_Overwrites(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	require.NoError(t, src.SetMetadata(ctx, Metadata{Country: "USA", SRS: "+proj=longlat"}))
	require.NoError(t, src.SetMetadata(ctx, Metadata{Country: "CAN"}))
	meta, err := src.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, Metadata{Country: "CAN"}, meta)
}

func TestVariables(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	vars, err := src.Variables(ctx)
	require.NoError(t, err)
	assert.NotNil(t, vars)
	assert.Empty(t, vars)

	first := []catalog.Variable{
		{Name: "THH01", EnrichName: "householdincome.THH01", FieldName: "THH01", Alias: "HH Income <$10K"},
		{Name: "THH02", EnrichName: "householdincome.THH02", FieldName: "THH02"},
	}
	second := []catalog.Variable{
		{Name: "TOTPOP", EnrichName: "population.TOTPOP", FieldName: "TOTPOP", DataCollection: "population"},
	}
	require.NoError(t, src.AddVariables(ctx, first))
	require.NoError(t, src.AddVariables(ctx, second))

	vars, err = src.Variables(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(append(first, second...), vars); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}

	v, ok, err := src.VariableByEnrichName(ctx, "population.TOTPOP")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "TOTPOP", v.FieldName)

	_, ok, err = src.VariableByEnrichName(ctx, "population.NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	// Duplicate enrich names are rejected and the batch rolled back.
	err = src.AddVariables(ctx, []catalog.Variable{
		{Name: "A", EnrichName: "x.A", FieldName: "A"},
		{Name: "THH01", EnrichName: "householdincome.THH01", FieldName: "THH01b"},
	})
	assert.Error(t, err)
	vars, err = src.Variables(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 3)

	assert.Error(t, src.AddVariables(ctx, []catalog.Variable{{Name: "B"}}))
}

func TestGeographies(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	for _, g := range []Geography{
		{Level: "US.States", ID: "06", Name: "California", Geometry: square(0, 0, 2)},
		{Level: "US.States", ID: "41", Name: "Oregon", Geometry: square(0, 2, 1)},
		{Level: "US.States", ID: "06", Name: "California", Geometry: square(5, 5, 1)},
		{Level: "US.Counties", ID: "06001", Name: "Alameda", Geometry: square(0, 0, 1)},
	} {
		require.NoError(t, src.AddGeography(ctx, g))
	}

	levels, err := src.Levels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"US.Counties", "US.States"}, levels)

	ok, err := src.HasLevel(ctx, "US.States")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = src.HasLevel(ctx, "US.Tracts")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := src.Geographies(ctx, "US.States", []string{"41", "06", "99", "41"})
	require.NoError(t, err)
	var ids []string
	var areas []float64
	for _, g := range got {
		ids = append(ids, g.ID)
		areas = append(areas, g.Geometry.Area())
	}
	assert.Equal(t, []string{"41", "06", "06"}, ids, "grouped by requested order, parts in insertion order")
	assert.InDeltaSlice(t, []float64{1, 4, 1}, areas, 1e-12)
	assert.Equal(t, "Oregon", got[0].Name)

	got, err = src.Geographies(ctx, "US.States", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, src.AddGeography(ctx, Geography{Level: "US.States", ID: "01"}), "nil geometry")
}

func TestBlocks(t *testing.T) {
	ctx := context.Background()
	src := newTestSource(t)

	require.NoError(t, src.AddBlock(ctx, Block{
		ID: "b1", Geometry: square(0, 0, 1),
		Values: map[string]float64{"hh.THH01": 10, "hh.THH02": 4},
	}))
	require.NoError(t, src.AddBlock(ctx, Block{
		ID: "b2", Geometry: square(1, 0, 1),
		Values: map[string]float64{"hh.THH01": 6},
	}))
	assert.Error(t, src.AddBlock(ctx, Block{ID: "b1", Geometry: square(0, 0, 1)}), "duplicate block id")

	blocks, err := src.Blocks(ctx, []string{"hh.THH02", "hh.THH01"})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, map[string]float64{"hh.THH01": 10, "hh.THH02": 4}, blocks[0].Values)
	assert.Equal(t, map[string]float64{"hh.THH01": 6, "hh.THH02": 0}, blocks[1].Values)

	blocks, err = src.Blocks(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
	assert.Empty(t, blocks[0].Values)
}
