// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the fixture data source used by the provider,
// pipeline and command tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/datasource"
)

// FixtureDataset is the dataset name of the fixture data source; the
// matching data source setting is "LOCAL;;" + FixtureDataset.
const FixtureDataset = "USA_TEST_2022"

// FixtureStateSize is the side of each fixture state, in meters.
const FixtureStateSize = 20_000.0

// FixtureStateIDs are the geography IDs present at level US.States.
var FixtureStateIDs = []string{"06", "41", "53"}

// FixtureVariables is the fixture catalog in stored order.
var FixtureVariables = []catalog.Variable{
	{Name: "TOTPOP", EnrichName: "population.TOTPOP", FieldName: "TOTPOP", Alias: "Total Population", DataCollection: "population"},
	{Name: "THH01", EnrichName: "householdincome.THH01", FieldName: "THH01", Alias: "HH Income <$15000", DataCollection: "householdincome"},
	{Name: "THH02", EnrichName: "householdincome.THH02", FieldName: "THH02", Alias: "HH Income $15000-$24999", DataCollection: "householdincome"},
	{Name: "THHBASE", EnrichName: "householdincome.THHBASE", FieldName: "THHBASE", Alias: "Household Income Base", DataCollection: "householdincome"},
}

// Per-block values of the fixture blocks.
const (
	FixtureTOTPOP = 1000.0
	FixtureTHH01  = 100.0
	FixtureTHH02  = 50.0
)

// Box returns an axis-aligned closed rectangle.
func Box(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

// WriteFixtureDataSource creates the fixture data source in dir and returns
// its path. Coordinates are planar meters: three adjacent 20 km states, one
// demographic block per state and one block far outside them.
func WriteFixtureDataSource(t testing.TB, dir string) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(dir, FixtureDataset+datasource.Extension)

	src, err := datasource.Create(path)
	AssertNoError(t, err)
	defer src.Close()

	AssertNoError(t, src.SetMetadata(ctx, datasource.Metadata{Country: "USA", Vintage: "2022"}))
	AssertNoError(t, src.AddVariables(ctx, FixtureVariables))

	s := FixtureStateSize
	states := []struct {
		id, name string
		poly     geom.Polygon
	}{
		{"06", "California", Box(0, 0, s, s)},
		{"41", "Oregon", Box(s, 0, 2*s, s)},
		{"53", "Washington", Box(0, s, s, 2*s)},
	}
	for _, st := range states {
		AssertNoError(t, src.AddGeography(ctx, datasource.Geography{
			Level: "US.States", ID: st.id, Name: st.name, Geometry: st.poly,
		}))
		AssertNoError(t, src.AddBlock(ctx, datasource.Block{
			ID:       "blk" + st.id,
			Geometry: st.poly,
			Values: map[string]float64{
				"population.TOTPOP":     FixtureTOTPOP,
				"householdincome.THH01": FixtureTHH01,
				"householdincome.THH02": FixtureTHH02,
			},
		}))
	}
	AssertNoError(t, src.AddBlock(ctx, datasource.Block{
		ID:       "blk_far",
		Geometry: Box(10*s, 10*s, 11*s, 11*s),
		Values:   map[string]float64{"population.TOTPOP": 5000, "householdincome.THH01": 999},
	}))
	return path
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
