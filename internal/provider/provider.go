// Package provider defines the geoprocessing toolkit the pipeline drives.
//
// Each stage of a run is one Provider call. Calls are synchronous, return an
// error on failure and leave status messages behind for Messages. The
// data source a provider reads from is set through its Env, scoped to a run.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/hexenrich/internal/catalog"
)

var (
	ErrUnknownVariable       = errors.New("unknown enrichment variable")
	ErrUnknownGeography      = errors.New("unknown geography")
	ErrCountryMismatch       = errors.New("country not covered by data source")
	ErrUnsupportedDataSource = errors.New("unsupported data source")
	ErrNoDataSource          = errors.New("no data source set")
)

// Duplicate handling for StandardGeography.
const (
	UseFirst = "USE_FIRST"
	UseAll   = "USE_ALL"
)

// Dissolve modes for StandardGeography.
const (
	DontDissolve = "DONT_DISSOLVE"
	Dissolve     = "DISSOLVE"
)

// Provider is a geoprocessing toolkit. Layer arguments are workspace paths
// such as "memory/States" or "output/demo.gdb/hexbins".
type Provider interface {
	// Env returns the provider's environment settings.
	Env() Env
	// Variables returns the variable catalog for a country.
	Variables(ctx context.Context, country string) ([]catalog.Variable, error)
	// StandardGeography resolves region identifiers into a new layer with
	// ID and NAME attributes.
	StandardGeography(ctx context.Context, opts GeographyOptions) error
	// Dissolve merges the features of a layer into a new layer.
	Dissolve(ctx context.Context, opts DissolveOptions) error
	// Generalize simplifies the features of a layer in place. tolerance is
	// a linear quantity such as "2 Kilometers".
	Generalize(ctx context.Context, layer, tolerance string) error
	// GenerateGrid tessellates the features of an AOI layer into a new
	// layer of cells carrying a GRID_ID attribute.
	GenerateGrid(ctx context.Context, opts GridOptions) error
	// Enrich copies a layer, adding one numeric attribute per variable.
	Enrich(ctx context.Context, opts EnrichOptions) error
	// Messages returns the status messages of the most recent call.
	Messages() []string
}

// Env holds provider settings that outlive a single call.
type Env interface {
	// DataSource returns the current data source setting.
	DataSource() string
	// Scope sets the data source and returns a func that restores the
	// previous value.
	Scope(dataSource string) (restore func())
}

type GeographyOptions struct {
	Level               string
	IDs                 []string
	OutLayer            string
	SummarizeDuplicates string
	Dissolve            string
}

type DissolveOptions struct {
	InLayer  string
	OutLayer string
	// Field groups features by an attribute; empty merges everything.
	Field string
}

type GridOptions struct {
	AOILayer     string
	OutLayer     string
	CellType     string
	CellSize     string
	H3Resolution int
}

type EnrichOptions struct {
	InLayer  string
	OutLayer string
	// Variables is the semicolon-joined list of enrichment identifiers.
	Variables string
}

// DataSource is a parsed data source setting of the form
// "<KIND>;<options>;<dataset>", e.g. "LOCAL;;USA_ESRI_2022".
type DataSource struct {
	Kind    string
	Options string
	Dataset string
}

// ParseDataSource parses a data source setting.
func ParseDataSource(s string) (DataSource, error) {
	parts := strings.Split(strings.TrimSpace(s), ";")
	if len(parts) != 3 {
		return DataSource{}, fmt.Errorf("%w: %q must have the form KIND;options;dataset", ErrUnsupportedDataSource, s)
	}
	ds := DataSource{
		Kind:    strings.ToUpper(strings.TrimSpace(parts[0])),
		Options: strings.TrimSpace(parts[1]),
		Dataset: strings.TrimSpace(parts[2]),
	}
	if ds.Kind == "" || ds.Dataset == "" {
		return DataSource{}, fmt.Errorf("%w: %q is missing a kind or dataset", ErrUnsupportedDataSource, s)
	}
	return ds, nil
}

func (d DataSource) String() string {
	return d.Kind + ";" + d.Options + ";" + d.Dataset
}
