package workspace

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitSquare(x0, y0 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0 + 1, Y: y0}, {X: x0 + 1, Y: y0 + 1}, {X: x0, Y: y0 + 1}, {X: x0, Y: y0},
	}}
}

func sampleLayer() *Layer {
	return &Layer{
		SRS: "+proj=longlat",
		Fields: []Field{
			{Name: "ID", Type: FieldText},
			{Name: "POP", Type: FieldDouble},
		},
		Features: []Feature{
			{Geometry: unitSquare(0, 0), Attrs: map[string]any{"ID": "01", "POP": 10.5}},
			{Geometry: unitSquare(1, 0), Attrs: map[string]any{"ID": "04", "POP": 3}},
			{Geometry: unitSquare(2, 0), Attrs: map[string]any{"ID": "05"}},
		},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateAndReadLayer_Memory(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	ok, err := m.Exists(ctx, "memory/States")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.CreateLayer(ctx, "memory/States", sampleLayer()))

	ok, err = m.Exists(ctx, "memory/States")
	require.NoError(t, err)
	assert.True(t, ok)

	layer, err := m.ReadLayer(ctx, "memory/States")
	require.NoError(t, err)
	assert.Equal(t, "States", layer.Name)
	assert.Equal(t, "+proj=longlat", layer.SRS)
	assert.Equal(t, []string{"ID", "POP"}, layer.FieldNames())
	require.Len(t, layer.Features, 3)

	var fids []int64
	var attrs []map[string]any
	for _, f := range layer.Features {
		fids = append(fids, f.FID)
		attrs = append(attrs, f.Attrs)
		assert.InDelta(t, 1.0, f.Geometry.Area(), 1e-12)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, fids); diff != "" {
		t.Errorf("fids mismatch (-want +got):\n%s", diff)
	}
	wantAttrs := []map[string]any{
		{"ID": "01", "POP": 10.5},
		{"ID": "04", "POP": 3.0},
		{"ID": "05", "POP": nil},
	}
	if diff := cmp.Diff(wantAttrs, attrs); diff != "" {
		t.Errorf("attrs mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateLayer_RefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.CreateLayer(ctx, "memory/Grid", sampleLayer()))
	err := m.CreateLayer(ctx, "memory/Grid", sampleLayer())
	assert.True(t, errors.Is(err, ErrLayerExists), "got %v", err)

	require.NoError(t, m.Delete(ctx, "memory/Grid"))
	require.NoError(t, m.CreateLayer(ctx, "memory/Grid", sampleLayer()))
}

func TestCreateLayer_FailureLeavesNoLayer(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	layer := sampleLayer()
	layer.Features[2].Geometry = nil

	err := m.CreateLayer(ctx, "memory/Broken", layer)
	require.Error(t, err)

	ok, err := m.Exists(ctx, "memory/Broken")
	require.NoError(t, err)
	assert.False(t, ok, "a failed create must not leave a partial layer")
}

func TestCreateLayer_RejectsBadSchema(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	tests := []struct {
		name   string
		fields []Field
		attrs  map[string]any
	}{
		{"duplicate field", []Field{{"A", FieldText}, {"A", FieldDouble}}, nil},
		{"bad type", []Field{{"A", FieldType("BLOB")}}, nil},
		{"bad name", []Field{{"1A", FieldText}}, nil},
		{"text in double", []Field{{"A", FieldDouble}}, map[string]any{"A": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := &Layer{Fields: tt.fields, Features: []Feature{{Geometry: unitSquare(0, 0), Attrs: tt.attrs}}}
			assert.Error(t, m.CreateLayer(ctx, "memory/Bad", layer))
			ok, err := m.Exists(ctx, "memory/Bad")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	assert.NoError(t, m.Delete(ctx, "memory/Nothing"))

	path := filepath.Join(t.TempDir(), "missing.gdb", "Layer")
	assert.NoError(t, m.Delete(ctx, path))
	_, err := os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(err), "Delete must not create the workspace")
}

func TestFileWorkspace_PersistsAcrossManagers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "demo.gdb", "hexbins")

	m1 := NewManager()
	require.NoError(t, m1.CreateLayer(ctx, path, sampleLayer()))
	require.NoError(t, m1.Close())

	m2 := newTestManager(t)
	ok, err := m2.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := m2.Layers(ctx, filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"hexbins"}, names)

	layer, err := m2.ReadLayer(ctx, path)
	require.NoError(t, err)
	assert.Len(t, layer.Features, 3)
}

func TestMemoryWorkspace_ScopedToManager(t *testing.T) {
	ctx := context.Background()
	m1 := newTestManager(t)
	m2 := newTestManager(t)

	require.NoError(t, m1.CreateLayer(ctx, "memory/States", sampleLayer()))
	ok, err := m2.Exists(ctx, "memory/States")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadLayer_NotFound(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.ReadLayer(ctx, "memory/Missing")
	assert.True(t, errors.Is(err, ErrLayerNotFound), "got %v", err)

	_, err = m.ReadLayer(ctx, filepath.Join(t.TempDir(), "none.gdb", "Missing"))
	assert.True(t, errors.Is(err, ErrLayerNotFound), "got %v", err)
}

func TestUpdateGeometries(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	require.NoError(t, m.CreateLayer(ctx, "memory/States", sampleLayer()))

	// Double every square in place.
	err := m.UpdateGeometries(ctx, "memory/States", func(f Feature) (geom.Polygonal, error) {
		b := f.Geometry.Bounds()
		return geom.Polygon{{
			{X: b.Min.X, Y: b.Min.Y}, {X: b.Min.X + 2, Y: b.Min.Y},
			{X: b.Min.X + 2, Y: b.Min.Y + 1}, {X: b.Min.X, Y: b.Min.Y + 1}, {X: b.Min.X, Y: b.Min.Y},
		}}, nil
	})
	require.NoError(t, err)

	layer, err := m.ReadLayer(ctx, "memory/States")
	require.NoError(t, err)
	for _, f := range layer.Features {
		assert.InDelta(t, 2.0, f.Geometry.Area(), 1e-12)
	}
	assert.Equal(t, "04", layer.Features[1].Attrs["ID"], "attributes survive geometry updates")

	failing := errors.New("boom")
	err = m.UpdateGeometries(ctx, "memory/States", func(Feature) (geom.Polygonal, error) { return nil, failing })
	assert.True(t, errors.Is(err, failing))
}

func TestSearchCursor(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	require.NoError(t, m.CreateLayer(ctx, "memory/States", sampleLayer()))

	cur, err := m.SearchCursor(ctx, "memory/States", []string{"POP", "ID"})
	require.NoError(t, err)

	var rows [][]any
	for cur.Next() {
		rows = append(rows, cur.Values())
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close())

	want := [][]any{{10.5, "01"}, {3.0, "04"}, {nil, "05"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []Field{{"POP", FieldDouble}, {"ID", FieldText}}, cur.Fields())

	_, err = m.SearchCursor(ctx, "memory/States", []string{"ID", "NOPE"})
	assert.True(t, errors.Is(err, ErrFieldNotFound), "got %v", err)
}

func TestCoerce(t *testing.T) {
	v, err := coerce(FieldDouble, math.NaN())
	require.NoError(t, err)
	assert.Nil(t, v, "NaN stored as null")

	v, err = coerce(FieldText, 7)
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	v, err = coerce(FieldDouble, int64(4))
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}
