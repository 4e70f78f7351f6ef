package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/hexenrich/internal/config"
	"github.com/banshee-data/hexenrich/internal/datasource"
	"github.com/banshee-data/hexenrich/internal/db"
	"github.com/banshee-data/hexenrich/internal/pipeline"
	"github.com/banshee-data/hexenrich/internal/provider/local"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// newPipeline wires the local provider and a workspace manager for cfg. The
// returned close func releases both.
func newPipeline(cfg *config.PipelineConfig) (*pipeline.Pipeline, *local.Provider, func()) {
	ws := workspace.NewManager()
	prov := local.New(ws, cfg.GetDataRoot(), local.WithProjection(cfg.GetProcessingProjection()))
	return pipeline.New(cfg, prov, ws), prov, func() {
		prov.Close()
		ws.Close()
	}
}

func runPipeline(ctx context.Context, cfg *config.PipelineConfig, out io.Writer) error {
	p, _, closeAll := newPipeline(cfg)
	defer closeAll()

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d rows x %d columns to %s (run %s, %.3fs)\n",
		res.Rows, len(res.Columns), res.OutputPath, res.RunID, res.Elapsed.Seconds())
	return nil
}

func listVariables(ctx context.Context, cfg *config.PipelineConfig, out io.Writer) error {
	p, _, closeAll := newPipeline(cfg)
	defer closeAll()

	vars, err := p.Variables(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENRICH NAME\tFIELD\tALIAS")
	for _, v := range vars {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, v.EnrichName, v.FieldName, v.Alias)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d variables match %q\n", len(vars), cfg.GetVariablePattern())
	return nil
}

func importShapefile(ctx context.Context, cfg *config.PipelineConfig, args []string, out io.Writer) error {
	fset := flag.NewFlagSet("import", flag.ContinueOnError)
	fset.SetOutput(out)
	kind := fset.String("kind", datasource.KindGeography, "What to import: geography or blocks")
	level := fset.String("level", cfg.GetGeographyLevel(), "Geography level (geography only)")
	idField := fset.String("id-field", "", "Shapefile column holding the feature ID (required)")
	nameField := fset.String("name-field", "", "Shapefile column holding the display name (geography only)")
	fields := fset.String("fields", "", "Value columns as COL=enrich.name pairs, comma separated (blocks only)")
	srs := fset.String("srs", "", "proj4 definition stored geometries use when creating a data source")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("usage: hexenrich import [options] <file.shp>")
	}

	valueFields, err := parseValueFields(*fields)
	if err != nil {
		return err
	}

	_, prov, closeAll := newPipeline(cfg)
	defer closeAll()
	path, err := prov.DataSourcePath(cfg.GetDataSource())
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, fs.ErrNotExist)
	if created {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}

	src, err := datasource.Create(path)
	if err != nil {
		return err
	}
	defer src.Close()
	if created {
		if err := src.SetMetadata(ctx, datasource.Metadata{Country: cfg.GetCountry(), SRS: *srs}); err != nil {
			return err
		}
	}

	n, err := src.ImportShapefile(ctx, fset.Arg(0), datasource.ImportOptions{
		Kind:        *kind,
		Level:       *level,
		IDField:     *idField,
		NameField:   *nameField,
		ValueFields: valueFields,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d %s features into %s\n", n, *kind, path)
	return nil
}

// parseValueFields parses "COL=enrich.name,COL2=enrich.name2".
func parseValueFields(s string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		col, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		col, name = strings.TrimSpace(col), strings.TrimSpace(name)
		if !ok || col == "" || name == "" {
			return nil, fmt.Errorf("invalid field mapping %q, want COL=enrich.name", pair)
		}
		if _, dup := out[col]; dup {
			return nil, fmt.Errorf("column %s mapped twice", col)
		}
		out[col] = name
	}
	return out, nil
}

// migrate runs a migrate action against a workspace (.gdb) or data source
// (.sqlite) file.
func migrate(args []string, out io.Writer) error {
	if len(args) < 1 {
		db.PrintMigrateHelp(out)
		return fmt.Errorf("usage: hexenrich migrate <file.gdb|file.sqlite> <action>")
	}
	path := args[0]

	var migrations fs.FS
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gdb":
		migrations = workspace.Migrations()
	case datasource.Extension:
		migrations = datasource.Migrations()
	default:
		return fmt.Errorf("cannot tell the schema of %s: want a .gdb workspace or %s data source", path, datasource.Extension)
	}

	database, err := db.Open(path)
	if err != nil {
		return err
	}
	defer database.Close()
	return db.RunMigrateCommand(args[1:], database, migrations, out)
}
