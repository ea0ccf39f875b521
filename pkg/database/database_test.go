package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/migrations"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/app.db")
	assert.Contains(t, dsn, "file:/tmp/app.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_foreign_keys=on")
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql":      {Data: []byte("CREATE INDEX idx ON t(a);")},
		"001_initial_schema.sql": {Data: []byte("CREATE TABLE t (a INTEGER);")},
		"README.md":              {Data: []byte("ignored")},
	}

	got, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "initial_schema", got[0].Name)
	assert.Equal(t, 2, got[1].Version)
}

func TestLoadMigrations_Invalid(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"schema.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("")},
		"001_b.sql": {Data: []byte("")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestMigrator_RunMigrations(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	applied, err := m.RunMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Positive(t, applied)

	again, err := m.RunMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Zero(t, again, "second run applies nothing")

	versions, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.True(t, versions[1])

	for _, table := range []string{"users", "workflow_templates", "template_versions", "workflow_steps",
		"process_instances", "process_step_instances", "audit_log", "notifications"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestMigrator_FailedMigrationIsRolledBack(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	fsys := fstest.MapFS{
		"001_ok.sql":  {Data: []byte("CREATE TABLE ok (a INTEGER);")},
		"002_bad.sql": {Data: []byte("CREATE TABLE broken (")},
	}

	applied, err := m.RunMigrations(fsys)
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	versions, err := m.AppliedVersions()
	require.NoError(t, err)
	assert.True(t, versions[1])
	assert.False(t, versions[2])
}
