package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/fsutil"
	"github.com/banshee-data/hexenrich/internal/monitoring"
	"github.com/banshee-data/hexenrich/internal/report"
	"github.com/banshee-data/hexenrich/internal/table"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// export reads GRID_ID and the enriched fields of every cell and writes
// them to the output file. It returns the number of rows written.
func (r *run) export(ctx context.Context, vars []catalog.Variable) (int, error) {
	format, err := table.ParseFormat(r.cfg.GetOutputFormat())
	if err != nil {
		return 0, err
	}
	fields := append([]string{GridIDField}, catalog.FieldNames(vars)...)
	cols, rows, err := r.readRows(ctx, r.cfg.GetEnrichedLayer(), fields)
	if err != nil {
		return 0, err
	}

	tbl, err := table.FromRows(cols, rows)
	if err != nil {
		return 0, err
	}
	defer tbl.Release()

	if err := table.Export(r.fs, r.cfg.GetOutputPath(), format, tbl); err != nil {
		return 0, err
	}
	return tbl.NumRows(), nil
}

// readRows pulls fields from every feature of layer into memory.
func (r *run) readRows(ctx context.Context, layer string, fields []string) ([]table.Column, [][]any, error) {
	cur, err := r.ws.SearchCursor(ctx, layer, fields)
	if err != nil {
		return nil, nil, err
	}
	defer cur.Close()

	cols := make([]table.Column, len(fields))
	for i, f := range cur.Fields() {
		cols[i] = table.Column{Name: f.Name, Type: columnType(f.Type)}
	}
	var rows [][]any
	for cur.Next() {
		rows = append(rows, cur.Values())
	}
	if err := cur.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", layer, err)
	}
	return cols, rows, nil
}

func columnType(t workspace.FieldType) table.ColumnType {
	if t == workspace.FieldDouble {
		return table.Float64
	}
	return table.String
}

// writePreviews renders the optional PNG and HTML previews of the enriched
// grid, coloured by the first variable.
func (r *run) writePreviews(ctx context.Context, vars []catalog.Variable) error {
	pngPath, htmlPath := r.cfg.GetPreviewPNG(), r.cfg.GetPreviewHTML()
	if pngPath == "" && htmlPath == "" {
		return nil
	}

	layer, err := r.ws.ReadLayer(ctx, r.cfg.GetEnrichedLayer())
	if err != nil {
		return err
	}
	o := report.Options{Title: layer.Name}
	if len(vars) > 0 {
		o.Variable = vars[0].FieldName
	}
	cells := make([]report.Cell, len(layer.Features))
	for i, f := range layer.Features {
		id, _ := f.Attrs[GridIDField].(string)
		v := math.NaN()
		if x, ok := f.Attrs[o.Variable].(float64); ok {
			v = x
		}
		cells[i] = report.Cell{ID: id, Geometry: f.Geometry, Value: v}
	}

	if pngPath != "" {
		err := writeFile(r.fs, pngPath, func(w io.Writer) error { return report.WritePNG(w, cells, o) })
		if err != nil {
			return err
		}
		monitoring.Logf("Wrote preview %s", pngPath)
	}
	if htmlPath != "" {
		err := writeFile(r.fs, htmlPath, func(w io.Writer) error { return report.WriteHTML(w, cells, o) })
		if err != nil {
			return err
		}
		monitoring.Logf("Wrote preview %s", htmlPath)
	}
	return nil
}

// writeFile replaces path with the output of fn.
func writeFile(fsys fsutil.FileSystem, path string, fn func(io.Writer) error) error {
	if _, err := fsutil.RemoveIfExists(fsys, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
