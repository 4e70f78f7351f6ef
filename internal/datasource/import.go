package datasource

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/banshee-data/hexenrich/internal/geo"
	"github.com/banshee-data/hexenrich/internal/monitoring"
)

// Import kinds.
const (
	KindGeography = "geography"
	KindBlocks    = "blocks"
)

// ImportOptions selects what a shapefile import loads.
type ImportOptions struct {
	Kind string
	// Level is the geography level features are stored under (geography only).
	Level string
	// IDField names the shapefile column holding the feature identifier.
	IDField string
	// NameField names the column holding the display name (geography only).
	NameField string
	// ValueFields maps shapefile columns to enrichment identifiers (blocks only).
	ValueFields map[string]string
}

func (o ImportOptions) columns() []string {
	cols := []string{o.IDField}
	if o.NameField != "" {
		cols = append(cols, o.NameField)
	}
	for col := range o.ValueFields {
		cols = append(cols, col)
	}
	return cols
}

func (o ImportOptions) validate() error {
	if o.IDField == "" {
		return fmt.Errorf("import: id field is required")
	}
	switch o.Kind {
	case KindGeography:
		if o.Level == "" {
			return fmt.Errorf("import: geography level is required")
		}
	case KindBlocks:
		if len(o.ValueFields) == 0 {
			return fmt.Errorf("import: at least one value field is required for blocks")
		}
	default:
		return fmt.Errorf("import: unknown kind %q (valid: %s, %s)", o.Kind, KindGeography, KindBlocks)
	}
	return nil
}

// ImportShapefile loads the polygons of a shapefile into the data source,
// reprojecting them into the data source SRS when the shapefile carries a
// .prj. It returns the number of features imported.
func (s *Source) ImportShapefile(ctx context.Context, path string, opts ImportOptions) (int, error) {
	if err := opts.validate(); err != nil {
		return 0, err
	}
	meta, err := s.Metadata(ctx)
	if err != nil {
		return 0, err
	}

	dec, err := shp.NewDecoder(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer dec.Close()

	projector := &geo.Projector{}
	if meta.SRS != "" {
		sr, err := dec.SR()
		if err != nil {
			monitoring.Logf("import: %s has no usable .prj (%v); assuming %s", path, err, meta.SRS)
		} else if projector, err = geo.NewProjectorFromSR(sr, meta.SRS); err != nil {
			return 0, err
		}
	}

	cols := opts.columns()
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		g, fields, more := dec.DecodeRowFields(cols...)
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			return n, fmt.Errorf("import: feature %d is %T; only polygons can be imported", n+1, g)
		}
		if poly, err = projector.Project(poly); err != nil {
			return n, fmt.Errorf("import: feature %d: %w", n+1, err)
		}
		id, err := field(fields, opts.IDField)
		if err != nil {
			return n, err
		}

		switch opts.Kind {
		case KindGeography:
			name := ""
			if opts.NameField != "" {
				if name, err = field(fields, opts.NameField); err != nil {
					return n, err
				}
			}
			err = s.AddGeography(ctx, Geography{Level: opts.Level, ID: id, Name: name, Geometry: poly})
		case KindBlocks:
			b := Block{ID: id, Geometry: poly, Values: make(map[string]float64, len(opts.ValueFields))}
			for col, enrichName := range opts.ValueFields {
				raw, ferr := field(fields, col)
				if ferr != nil {
					return n, ferr
				}
				v, perr := parseValue(raw)
				if perr != nil {
					return n, fmt.Errorf("import: block %s column %s: %w", id, col, perr)
				}
				b.Values[enrichName] = v
			}
			err = s.AddBlock(ctx, b)
		}
		if err != nil {
			return n, err
		}
		n++
	}
	if err := dec.Error(); err != nil {
		return n, fmt.Errorf("failed to read shapefile %s: %w", path, err)
	}
	return n, nil
}

func field(fields map[string]string, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("import: missing attribute column %s", name)
	}
	return strings.Trim(v, " \t\r\n\x00"), nil
}

// parseValue reads a numeric attribute; blank means zero.
func parseValue(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
