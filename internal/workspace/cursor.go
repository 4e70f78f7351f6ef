package workspace

import (
	"context"
	"database/sql"
	"fmt"
)

// Cursor iterates the features of a layer in FID order, yielding the
// requested attribute values.
//
// The workspace connection is held until Close, so no other workspace call
// on the same workspace may be made while a cursor is open.
type Cursor struct {
	rows   *sql.Rows
	fields []Field
	values []any
	err    error
}

// SearchCursor opens a cursor over the layer at path that yields fields in
// the order given. Double fields yield float64 or nil, text fields string or
// nil. A field missing from the layer fails with ErrFieldNotFound.
func (m *Manager) SearchCursor(ctx context.Context, path string, fields []string) (*Cursor, error) {
	layer, err := m.Describe(ctx, path)
	if err != nil {
		return nil, err
	}
	selected := make([]Field, len(fields))
	for i, name := range fields {
		f, ok := layer.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrFieldNotFound, name, path)
		}
		selected[i] = f
	}

	p, s, err := m.resolve(path, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT attrs FROM features WHERE layer = ? ORDER BY fid`, p.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor on %s: %w", path, err)
	}
	return &Cursor{rows: rows, fields: selected}, nil
}

// Fields returns the cursor's fields in row order.
func (c *Cursor) Fields() []Field {
	return c.fields
}

// Next advances to the next row. It returns false at the end of the layer or
// on error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var raw string
	if err := c.rows.Scan(&raw); err != nil {
		c.err = err
		return false
	}
	attrs, err := decodeAttrs(c.fields, raw)
	if err != nil {
		c.err = err
		return false
	}
	c.values = make([]any, len(c.fields))
	for i, f := range c.fields {
		c.values[i] = attrs[f.Name]
	}
	return true
}

// Values returns the current row.
func (c *Cursor) Values() []any {
	return c.values
}

func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *Cursor) Close() error {
	return c.rows.Close()
}
