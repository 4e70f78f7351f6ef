package workspace

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/db"
	"github.com/banshee-data/hexenrich/internal/geo"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the workspace schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// store holds the layers of one workspace database.
type store struct {
	db *db.DB
}

func openStore(path string) (*store, error) {
	var (
		d   *db.DB
		err error
	)
	if path == MemoryWorkspace {
		d, err = db.OpenMemory()
	} else {
		d, err = db.Open(path)
	}
	if err != nil {
		return nil, err
	}
	if err := d.MigrateUp(Migrations()); err != nil {
		d.Close()
		return nil, fmt.Errorf("workspace %s: %w", path, err)
	}
	return &store{db: d}, nil
}

func (s *store) exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up layer %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *store) names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM layers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list layers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *store) delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete layer %s: %w", name, err)
	}
	return nil
}

// create writes layer in a single transaction; any failure leaves no trace
// of the layer.
func (s *store) create(ctx context.Context, layer *Layer) (err error) {
	if err := layer.validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var n int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers WHERE name = ?`, layer.Name).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up layer %s: %w", layer.Name, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrLayerExists, layer.Name)
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO layers (name, srs) VALUES (?, ?)`, layer.Name, layer.SRS); err != nil {
		return fmt.Errorf("failed to insert layer %s: %w", layer.Name, err)
	}
	for i, f := range layer.Fields {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO layer_fields (layer, position, name, type) VALUES (?, ?, ?, ?)`,
			layer.Name, i, f.Name, string(f.Type)); err != nil {
			return fmt.Errorf("failed to insert field %s: %w", f.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO features (layer, fid, geom, attrs) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare feature insert: %w", err)
	}
	defer stmt.Close()

	for i, feat := range layer.Features {
		fid := int64(i + 1)
		blob, attrs, encErr := encodeFeature(layer.Fields, feat)
		if encErr != nil {
			err = fmt.Errorf("layer %s feature %d: %w", layer.Name, fid, encErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, layer.Name, fid, blob, attrs); err != nil {
			return fmt.Errorf("failed to insert feature %d: %w", fid, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit layer %s: %w", layer.Name, err)
	}
	return nil
}

func (s *store) schema(ctx context.Context, name string) (*Layer, error) {
	layer := &Layer{Name: name}
	err := s.db.QueryRowContext(ctx, `SELECT srs FROM layers WHERE name = ?`, name).Scan(&layer.SRS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layer %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM layer_fields WHERE layer = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read fields of %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var f Field
		var t string
		if err := rows.Scan(&f.Name, &t); err != nil {
			return nil, err
		}
		f.Type = FieldType(t)
		layer.Fields = append(layer.Fields, f)
	}
	return layer, rows.Err()
}

func (s *store) read(ctx context.Context, name string) (*Layer, error) {
	layer, err := s.schema(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT fid, geom, attrs FROM features WHERE layer = ? ORDER BY fid`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read features of %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			feat  Feature
			blob  []byte
			attrs string
		)
		if err := rows.Scan(&feat.FID, &blob, &attrs); err != nil {
			return nil, err
		}
		if feat.Geometry, err = geo.DecodeWKB(blob); err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", name, feat.FID, err)
		}
		if feat.Attrs, err = decodeAttrs(layer.Fields, attrs); err != nil {
			return nil, fmt.Errorf("layer %s feature %d: %w", name, feat.FID, err)
		}
		layer.Features = append(layer.Features, feat)
	}
	return layer, rows.Err()
}

func (s *store) updateGeometries(ctx context.Context, name string, geoms map[int64]geom.Polygonal) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `UPDATE features SET geom = ? WHERE layer = ? AND fid = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare geometry update: %w", err)
	}
	defer stmt.Close()

	for fid, g := range geoms {
		blob, encErr := geo.EncodeWKB(g)
		if encErr != nil {
			err = fmt.Errorf("layer %s feature %d: %w", name, fid, encErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, blob, name, fid); err != nil {
			return fmt.Errorf("failed to update feature %d: %w", fid, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit geometry update: %w", err)
	}
	return nil
}

func (s *store) close() error {
	return s.db.Close()
}

func encodeFeature(fields []Field, feat Feature) ([]byte, string, error) {
	blob, err := geo.EncodeWKB(feat.Geometry)
	if err != nil {
		return nil, "", err
	}
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := coerce(f.Type, feat.Attrs[f.Name])
		if err != nil {
			return nil, "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		values[f.Name] = v
	}
	attrs, err := json.Marshal(values)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return blob, string(attrs), nil
}

func decodeAttrs(fields []Field, raw string) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := coerce(f.Type, values[f.Name])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}
