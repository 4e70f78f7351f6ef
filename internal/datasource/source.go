// Package datasource reads and writes the SQLite files that back the local
// provider: a variable catalog, standard geography boundaries and the
// demographic block polygons enrichment apportions from.
package datasource

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ctessum/geom"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/db"
	"github.com/banshee-data/hexenrich/internal/geo"
)

// Extension is the file extension of data source files.
const Extension = ".sqlite"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the data source schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Metadata describes the coverage of a data source.
type Metadata struct {
	Country string
	// SRS is the proj4 definition of stored geometries; empty means planar
	// coordinates used as-is.
	SRS     string
	Vintage string
}

// Geography is one standard geography feature.
type Geography struct {
	Level    string
	ID       string
	Name     string
	Geometry geom.Polygonal
}

// Block is a demographic source polygon with its variable values keyed by
// enrichment identifier.
type Block struct {
	ID       string
	Geometry geom.Polygonal
	Values   map[string]float64
}

type Source struct {
	db *db.DB
}

// Open opens an existing data source and brings its schema up to date.
func Open(path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("data source %s: %w", path, err)
	}
	return open(path)
}

// Create opens the data source at path, creating it if needed.
func Create(path string) (*Source, error) {
	return open(path)
}

func open(path string) (*Source, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.MigrateUp(Migrations()); err != nil {
		d.Close()
		return nil, fmt.Errorf("data source %s: %w", path, err)
	}
	return &Source{db: d}, nil
}

func (s *Source) Close() error {
	return s.db.Close()
}

// Path returns the file the data source was opened from.
func (s *Source) Path() string {
	return s.db.Path()
}

// Metadata returns the stored coverage description.
func (s *Source) Metadata(ctx context.Context) (Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	var m Metadata
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Metadata{}, err
		}
		switch k {
		case "country":
			m.Country = v
		case "srs":
			m.SRS = v
		case "vintage":
			m.Vintage = v
		}
	}
	return m, rows.Err()
}

// SetMetadata replaces the stored coverage description.
func (s *Source) SetMetadata(ctx context.Context, m Metadata) error {
	for k, v := range map[string]string{"country": m.Country, "srs": m.SRS, "vintage": m.Vintage} {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO metadata (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}
	return nil
}

// Variables returns the catalog in stored order.
func (s *Source) Variables(ctx context.Context) ([]catalog.Variable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, enrich_name, field_name, alias, data_collection FROM variables ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables: %w", err)
	}
	defer rows.Close()

	vars := []catalog.Variable{}
	for rows.Next() {
		var v catalog.Variable
		if err := rows.Scan(&v.Name, &v.EnrichName, &v.FieldName, &v.Alias, &v.DataCollection); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

// AddVariables appends vars to the catalog.
func (s *Source) AddVariables(ctx context.Context, vars []catalog.Variable) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var next int
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM variables`).Scan(&next); err != nil {
		return fmt.Errorf("failed to read catalog size: %w", err)
	}
	for _, v := range vars {
		if v.Name == "" || v.EnrichName == "" || v.FieldName == "" {
			err = fmt.Errorf("variable %+v: name, enrich name and field name are required", v)
			return err
		}
		next++
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO variables (position, name, enrich_name, field_name, alias, data_collection)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			next, v.Name, v.EnrichName, v.FieldName, v.Alias, v.DataCollection); err != nil {
			return fmt.Errorf("failed to add variable %s: %w", v.EnrichName, err)
		}
	}
	return tx.Commit()
}

// Levels returns the geography levels present, sorted.
func (s *Source) Levels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT level FROM geographies ORDER BY level`)
	if err != nil {
		return nil, fmt.Errorf("failed to read levels: %w", err)
	}
	defer rows.Close()

	var levels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// HasLevel reports whether any geography of level is stored.
func (s *Source) HasLevel(ctx context.Context, level string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geographies WHERE level = ?`, level).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up level %s: %w", level, err)
	}
	return n > 0, nil
}

// AddGeography stores g as the next part of its (level, ID).
func (s *Source) AddGeography(ctx context.Context, g Geography) error {
	if g.Level == "" || g.ID == "" {
		return fmt.Errorf("geography level and id are required")
	}
	blob, err := geo.EncodeWKB(g.Geometry)
	if err != nil {
		return fmt.Errorf("geography %s/%s: %w", g.Level, g.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO geographies (level, geo_id, part, name, geom)
		VALUES (?, ?, (SELECT COALESCE(MAX(part), 0) + 1 FROM geographies WHERE level = ? AND geo_id = ?), ?, ?)`,
		g.Level, g.ID, g.Level, g.ID, g.Name, blob)
	if err != nil {
		return fmt.Errorf("failed to add geography %s/%s: %w", g.Level, g.ID, err)
	}
	return nil
}

// Geographies returns every stored feature of level whose ID is in ids,
// grouped by ID in the order of ids and by part within an ID. IDs with no
// stored feature are absent from the result.
func (s *Source) Geographies(ctx context.Context, level string, ids []string) ([]Geography, error) {
	if len(ids) == 0 {
		return []Geography{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, level)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT geo_id, name, geom FROM geographies
		WHERE level = ? AND geo_id IN (`+placeholders+`)
		ORDER BY geo_id, part`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read geographies: %w", err)
	}
	defer rows.Close()

	byID := make(map[string][]Geography, len(ids))
	for rows.Next() {
		var (
			g    = Geography{Level: level}
			blob []byte
		)
		if err := rows.Scan(&g.ID, &g.Name, &blob); err != nil {
			return nil, err
		}
		if g.Geometry, err = geo.DecodeWKB(blob); err != nil {
			return nil, fmt.Errorf("geography %s/%s: %w", level, g.ID, err)
		}
		byID[g.ID] = append(byID[g.ID], g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Geography, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, byID[id]...)
	}
	return out, nil
}

// AddBlock stores a demographic block and its values.
func (s *Source) AddBlock(ctx context.Context, b Block) (err error) {
	blob, err := geo.EncodeWKB(b.Geometry)
	if err != nil {
		return fmt.Errorf("block %s: %w", b.ID, err)
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

	if _, err = tx.ExecContext(ctx, `INSERT INTO blocks (block_id, geom) VALUES (?, ?)`, b.ID, blob); err != nil {
		return fmt.Errorf("failed to add block %s: %w", b.ID, err)
	}
	for name, v := range b.Values {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO block_values (block_id, enrich_name, value) VALUES (?, ?, ?)`,
			b.ID, name, v); err != nil {
			return fmt.Errorf("failed to add value %s of block %s: %w", name, b.ID, err)
		}
	}
	return tx.Commit()
}

// Blocks returns every block with the values of enrichNames. A block with no
// stored value for a name reports 0 for it.
func (s *Source) Blocks(ctx context.Context, enrichNames []string) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT block_id, geom FROM blocks ORDER BY block_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocks: %w", err)
	}
	var blocks []Block
	index := make(map[string]int)
	for rows.Next() {
		var (
			b    Block
			blob []byte
		)
		if err := rows.Scan(&b.ID, &blob); err != nil {
			rows.Close()
			return nil, err
		}
		if b.Geometry, err = geo.DecodeWKB(blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		b.Values = make(map[string]float64, len(enrichNames))
		for _, n := range enrichNames {
			b.Values[n] = 0
		}
		index[b.ID] = len(blocks)
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, name := range enrichNames {
		if err := s.loadValues(ctx, name, blocks, index); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

func (s *Source) loadValues(ctx context.Context, name string, blocks []Block, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `SELECT block_id, value FROM block_values WHERE enrich_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to read values of %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			v  float64
		)
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		if i, ok := index[id]; ok {
			blocks[i].Values[name] = v
		}
	}
	return rows.Err()
}

// VariableByEnrichName looks up a catalog entry.
func (s *Source) VariableByEnrichName(ctx context.Context, enrichName string) (catalog.Variable, bool, error) {
	var v catalog.Variable
	err := s.db.QueryRowContext(ctx,
		`SELECT name, enrich_name, field_name, alias, data_collection FROM variables WHERE enrich_name = ?`,
		enrichName).Scan(&v.Name, &v.EnrichName, &v.FieldName, &v.Alias, &v.DataCollection)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Variable{}, false, nil
	}
	if err != nil {
		return catalog.Variable{}, false, fmt.Errorf("failed to look up variable %s: %w", enrichName, err)
	}
	return v, true, nil
}
