package db

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000001_create_test_table.up.sql": {Data: []byte(`
			CREATE TABLE IF NOT EXISTS test_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
		`)},
		"000001_create_test_table.down.sql": {Data: []byte(`DROP TABLE IF EXISTS test_table;`)},
		"000002_add_test_column.up.sql": {Data: []byte(`
			ALTER TABLE test_table ADD COLUMN description TEXT;
		`)},
		"000002_add_test_column.down.sql": {Data: []byte(`
			CREATE TABLE test_table_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
			INSERT INTO test_table_new (id, name) SELECT id, name FROM test_table;
			DROP TABLE test_table;
			ALTER TABLE test_table_new RENAME TO test_table;
		`)},
	}
}

func setupMigrationTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpAndDown(t *testing.T) {
	db := setupMigrationTestDB(t)
	migrations := testMigrations()

	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations))
	version, dirty, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	_, err = db.Exec(`INSERT INTO test_table (name, description) VALUES ('a', 'b')`)
	require.NoError(t, err)

	// Second run is a no-op.
	require.NoError(t, db.MigrateUp(migrations))

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, err = db.Exec(`INSERT INTO test_table (name, description) VALUES ('a', 'b')`)
	assert.Error(t, err, "description column should be gone after rollback")
}

func TestMigrateToAndForce(t *testing.T) {
	db := setupMigrationTestDB(t)
	migrations := testMigrations()

	require.NoError(t, db.MigrateTo(migrations, 1))
	version, _, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, db.MigrateForce(migrations, 2))
	version, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestMigrationStatus(t *testing.T) {
	db := setupMigrationTestDB(t)
	migrations := testMigrations()

	require.NoError(t, db.MigrateTo(migrations, 1))
	status, err := db.MigrationStatus(migrations)
	require.NoError(t, err)
	assert.True(t, status.SchemaMigrationsExists)
	assert.Equal(t, uint(1), status.CurrentVersion)
	assert.Equal(t, uint(2), status.LatestVersion)
	assert.False(t, status.UpToDate())

	require.NoError(t, db.MigrateUp(migrations))
	status, err = db.MigrationStatus(migrations)
	require.NoError(t, err)
	assert.True(t, status.UpToDate())
}

func TestLatestMigrationVersion(t *testing.T) {
	v, err := LatestMigrationVersion(testMigrations())
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	_, err = LatestMigrationVersion(fstest.MapFS{})
	assert.Error(t, err)

	_, err = LatestMigrationVersion(fstest.MapFS{"bogus.up.sql": {Data: []byte("")}})
	assert.Error(t, err)
}

func TestNewMigrate_NilFS(t *testing.T) {
	db := setupMigrationTestDB(t)
	assert.Error(t, db.MigrateUp(nil))
}

func TestRunMigrateCommand(t *testing.T) {
	db := setupMigrationTestDB(t)
	migrations := testMigrations()

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"status"}, db, migrations, &out))
	assert.Contains(t, out.String(), "behind")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, db, migrations, &out))
	assert.Contains(t, out.String(), "Current version: 2")
	assert.Contains(t, out.String(), "up to date")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"version", "1"}, db, migrations, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no action", nil, "missing migrate action"},
		{"unknown", []string{"sideways"}, "unknown migrate action"},
		{"version missing arg", []string{"version"}, "usage"},
		{"force bad arg", []string{"force", "x"}, "invalid version number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := RunMigrateCommand(tt.args, db, migrations, &buf)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q", err)
		})
	}
}
