// Package workspace stores feature layers in SQLite geodatabases.
//
// A workspace is either the process-wide in-memory database addressed as
// "memory" or a SQLite file with a .gdb extension. Layers are addressed as
// "<workspace>/<layer>". Geometries are stored as WKB and attributes as a
// JSON object keyed by field name.
package workspace

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

var (
	ErrLayerExists   = errors.New("layer already exists")
	ErrLayerNotFound = errors.New("layer not found")
	ErrFieldNotFound = errors.New("field not found")
	ErrInvalidPath   = errors.New("invalid layer path")
)

// FieldType is the storage type of an attribute.
type FieldType string

const (
	FieldText   FieldType = "TEXT"
	FieldDouble FieldType = "DOUBLE"
)

type Field struct {
	Name string
	Type FieldType
}

// Feature is a polygonal geometry with attributes. FID is assigned on
// creation, starting at 1 in insertion order.
type Feature struct {
	FID      int64
	Geometry geom.Polygonal
	Attrs    map[string]any
}

// Layer is an ordered collection of features sharing a field schema.
type Layer struct {
	Name     string
	SRS      string
	Fields   []Field
	Features []Feature
}

// Field returns the field named name.
func (l *Layer) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in schema order.
func (l *Layer) FieldNames() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

func (l *Layer) validate() error {
	seen := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		if !layerNamePattern.MatchString(f.Name) {
			return fmt.Errorf("invalid field name %q", f.Name)
		}
		if f.Type != FieldText && f.Type != FieldDouble {
			return fmt.Errorf("field %s: unsupported type %q", f.Name, f.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// coerce converts v to the storage representation of t. nil passes through.
func coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case FieldDouble:
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		case int32:
			f = float64(n)
		default:
			return nil, fmt.Errorf("cannot store %T in a DOUBLE field", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		return f, nil
	case FieldText:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	}
	return nil, fmt.Errorf("unsupported field type %q", t)
}
