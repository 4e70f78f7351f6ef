// Package table holds extracted rows in an Apache Arrow record and writes
// them out as Parquet, CSV or XLSX.
package table

import (
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrColumnCount is returned when a row does not match the table's columns.
var ErrColumnCount = errors.New("row does not match column count")

// ColumnType is the value type of a column.
type ColumnType string

const (
	String  ColumnType = "string"
	Float64 ColumnType = "float64"
)

// Column describes one output column.
type Column struct {
	Name string
	Type ColumnType
}

func (c Column) arrowType() (arrow.DataType, error) {
	switch c.Type {
	case String:
		return arrow.BinaryTypes.String, nil
	case Float64:
		return arrow.PrimitiveTypes.Float64, nil
	default:
		return nil, fmt.Errorf("column %s: unsupported type %q", c.Name, c.Type)
	}
}

// Option configures a Builder.
type Option func(*Builder)

// WithAllocator sets the Arrow allocator backing the table's buffers.
func WithAllocator(mem memory.Allocator) Option {
	return func(b *Builder) { b.mem = mem }
}

// Builder accumulates rows column by column.
type Builder struct {
	mem     memory.Allocator
	columns []Column
	schema  *arrow.Schema
	rb      *array.RecordBuilder
}

// NewBuilder returns a Builder for columns, in order. Column names must be
// non-empty and unique.
func NewBuilder(columns []Column, opts ...Option) (*Builder, error) {
	b := &Builder{mem: memory.DefaultAllocator, columns: append([]Column(nil), columns...)}
	for _, o := range opts {
		o(b)
	}

	fields := make([]arrow.Field, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		dt, err := c.arrowType()
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: true}
	}
	b.schema = arrow.NewSchema(fields, nil)
	b.rb = array.NewRecordBuilder(b.mem, b.schema)
	return b, nil
}

// Append adds one row. values must hold one entry per column; nil is
// stored as null.
func (b *Builder) Append(values []any) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrColumnCount, len(values), len(b.columns))
	}
	// Check every value before touching the builders so a bad row leaves
	// the columns aligned.
	for i, v := range values {
		if b.columns[i].Type == Float64 && v != nil {
			if _, err := toFloat(v); err != nil {
				return fmt.Errorf("column %s: %w", b.columns[i].Name, err)
			}
		}
	}
	for i, v := range values {
		switch fb := b.rb.Field(i).(type) {
		case *array.StringBuilder:
			if v == nil {
				fb.AppendNull()
				continue
			}
			if s, ok := v.(string); ok {
				fb.Append(s)
			} else {
				fb.Append(fmt.Sprint(v))
			}
		case *array.Float64Builder:
			if v == nil {
				fb.AppendNull()
				continue
			}
			f, _ := toFloat(v)
			fb.Append(f)
		}
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return math.NaN(), fmt.Errorf("%T is not numeric", v)
	}
}

// Table finishes the builder. The builder can be reused for a new table.
func (b *Builder) Table() *Table {
	return &Table{columns: b.columns, rec: b.rb.NewRecord()}
}

// Release frees the builder's buffers.
func (b *Builder) Release() {
	b.rb.Release()
}

// Table is an immutable set of rows. Call Release when done.
type Table struct {
	columns []Column
	rec     arrow.Record
}

// FromRows builds a table from rows in one call.
func FromRows(columns []Column, rows [][]any, opts ...Option) (*Table, error) {
	b, err := NewBuilder(columns, opts...)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	for i, row := range rows {
		if err := b.Append(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.Table(), nil
}

func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) NumRows() int {
	return int(t.rec.NumRows())
}

// Record returns the underlying Arrow record. It stays owned by t.
func (t *Table) Record() arrow.Record {
	return t.rec
}

// Value returns the value at row, col as a string, float64 or nil.
func (t *Table) Value(row, col int) any {
	arr := t.rec.Column(col)
	if arr.IsNull(row) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	}
	return nil
}

func (t *Table) Release() {
	if t.rec != nil {
		t.rec.Release()
		t.rec = nil
	}
}
