package engine_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/relstack-labs/relq/internal/config"
	"github.com/relstack-labs/relq/internal/engine"
	"github.com/relstack-labs/relq/internal/testutil"
	"github.com/relstack-labs/relq/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestFromConfigSQLiteSource(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := &config.Config{
		Dialect:           "duckdb",
		Conformance:       "default",
		MaxStatementBytes: config.DefaultMaxStatementBytes,
		StatePath:         filepath.Join(dir, "state.db"),
		DefaultSource:     "db",
		Sources: map[string]config.SourceConfig{
			"db": {Type: "sqlite", Path: filepath.Join(dir, "data.db")},
		},
	}
	require.NoError(t, cfg.Validate())

	eng, err := engine.FromConfig(ctx, cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	// Seed a table through a side connection: the engine's own front-end
	// is read-only, so DDL goes straight to the file.
	seed, err := sql.Open("sqlite", cfg.Sources["db"].Path)
	require.NoError(t, err)
	_, err = seed.ExecContext(ctx, `CREATE TABLE t (a INTEGER, b TEXT)`)
	require.NoError(t, err)
	_, err = seed.ExecContext(ctx, `INSERT INTO t VALUES (1, 'x'), (2, 'y'), (3, 'z')`)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	res, err := eng.Run(ctx, query.SQL("SELECT a, b FROM t WHERE a > 1 ORDER BY a"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(2), res.Rows[0][0])
	assert.Equal(t, "z", res.Rows[1][1])

	// History was recorded in the configured state database.
	recs, err := eng.History().List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "SELECT a, b FROM t WHERE a > 1 ORDER BY a", recs[0].SQL)
}

func TestFromConfigPropertiesScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "properties.star")
	require.NoError(t, os.WriteFile(script, []byte(
		"properties = {\"strategy\": \"hash\" if target.dialect == \"duckdb\" else \"loop\"}\n",
	), 0o644))

	cfg := &config.Config{
		Dialect:           "duckdb",
		Conformance:       "default",
		MaxStatementBytes: config.DefaultMaxStatementBytes,
		StatePath:         filepath.Join(dir, "state.db"),
		PropertiesScript:  script,
	}

	eng, err := engine.FromConfig(context.Background(), cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	assert.Equal(t, "hash", eng.Properties()["strategy"])
}

func TestFromConfigBadConformance(t *testing.T) {
	cfg := &config.Config{
		Dialect:           "ansi",
		Conformance:       "lenient-ish",
		MaxStatementBytes: config.DefaultMaxStatementBytes,
		StatePath:         filepath.Join(t.TempDir(), "state.db"),
	}

	_, err := engine.FromConfig(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, query.IsKind(err, query.KindConfiguration))
}
