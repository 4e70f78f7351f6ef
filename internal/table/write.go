package table

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/hexenrich/internal/fsutil"
)

// Format is an output file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
)

// rowGroupSize caps the rows per Parquet row group.
const rowGroupSize = 128 * 1024

// XLSXSheet is the worksheet rows are written to.
const XLSXSheet = "result"

// xlsxMaxRows is the worksheet row limit, header included.
const xlsxMaxRows = 1_048_576

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatParquet, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (want parquet, csv or xlsx)", s)
}

// Write encodes t to w in format.
func Write(w io.Writer, t *Table, format Format) error {
	switch format {
	case FormatParquet:
		return WriteParquet(w, t)
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// WriteParquet writes t as a Snappy-compressed Parquet file.
func WriteParquet(w io.Writer, t *Table) error {
	tbl := array.NewTableFromRecords(t.rec.Schema(), []arrow.Record{t.rec})
	defer tbl.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	// The parquet writer closes sinks that implement io.Closer; the caller
	// owns w.
	sink := struct{ io.Writer }{w}
	if err := pqarrow.WriteTable(tbl, sink, rowGroupSize, props, pqarrow.DefaultWriterProps()); err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}
	return nil
}

// WriteCSV writes t as CSV with a header row; nulls are empty cells.
func WriteCSV(w io.Writer, t *Table) error {
	cw := arrowcsv.NewWriter(w, t.rec.Schema(), arrowcsv.WithHeader(true), arrowcsv.WithNullWriter(""))
	if err := cw.Write(t.rec); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return cw.Error()
}

// WriteXLSX writes t to a single worksheet with a header row.
func WriteXLSX(w io.Writer, t *Table) error {
	if t.NumRows()+1 > xlsxMaxRows {
		return fmt.Errorf("%d rows exceed the worksheet limit of %d", t.NumRows(), xlsxMaxRows-1)
	}
	x := excelize.NewFile()
	defer x.Close()
	if err := x.SetSheetName("Sheet1", XLSXSheet); err != nil {
		return err
	}

	header := make([]any, len(t.columns))
	for i, c := range t.columns {
		header[i] = c.Name
	}
	if err := x.SetSheetRow(XLSXSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write xlsx header: %w", err)
	}
	for r := 0; r < t.NumRows(); r++ {
		for c := range t.columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			switch v := t.Value(r, c).(type) {
			case string:
				err = x.SetCellStr(XLSXSheet, cell, v)
			case float64:
				err = x.SetCellFloat(XLSXSheet, cell, v, -1, 64)
			}
			if err != nil {
				return fmt.Errorf("failed to write xlsx cell %s: %w", cell, err)
			}
		}
	}
	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// Export replaces path with t encoded in format. An existing file is
// deleted first; the write is not atomic.
func Export(fsys fsutil.FileSystem, path string, format Format, t *Table) error {
	if _, err := fsutil.RemoveIfExists(fsys, path); err != nil {
		return fmt.Errorf("failed to delete existing output %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output %s: %w", path, err)
	}
	if err := Write(f, t, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output %s: %w", path, err)
	}
	return nil
}
