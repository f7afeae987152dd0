package migrations

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_trades.sql", "002_quote_observations.sql"}, files)

	files, err = sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_quote_observations.sql"}, files)
}

func TestLoad_SortsAndSkipsBlank(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql": {Data: []byte("CREATE TABLE b ();")},
		"pg/001_a.sql": {Data: []byte("CREATE TABLE a ();")},
		"pg/003_c.sql": {Data: []byte("  \n")},
		"pg/README.md": {Data: []byte("docs")},
		"pg/sub/x.sql": {Data: []byte("ignored")},
	}

	got, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a.sql", got[0].name)
	assert.Equal(t, "002_b.sql", got[1].name)
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := load(fstest.MapFS{}, "absent")
	assert.Error(t, err)
}

func TestClickhouseMigrations_Split(t *testing.T) {
	files, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)

	for _, m := range files {
		stmts := splitStatements(m.sql)
		require.NotEmpty(t, stmts, m.name)
		for _, stmt := range stmts {
			assert.NotContains(t, stmt, "--", "comment leaked into %s", m.name)
			assert.True(t, strings.HasPrefix(stmt, "CREATE"), "unexpected statement in %s: %s", m.name, stmt)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	input := `
-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y UInt8) ENGINE = Memory; -- trailing
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y UInt8) ENGINE = Memory", stmts[1])
}

func TestSplitStatements_QuotedText(t *testing.T) {
	stmts := splitStatements("SELECT 'a;b -- c'; SELECT 'it''s;'; SELECT 1")
	assert.Equal(t, []string{
		"SELECT 'a;b -- c'",
		"SELECT 'it''s;'",
		"SELECT 1",
	}, stmts)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/trader")
	require.NoError(t, err)
	assert.Equal(t, "trader", db)

	for _, dsn := range []string{
		"clickhouse://default@localhost:9000",
		"clickhouse://default@localhost:9000/trader;DROP",
		"clickhouse://default@localhost:9000/1db",
	} {
		_, err := databaseFromDSN(dsn)
		assert.ErrorIs(t, err, ErrInvalidDatabase, dsn)
	}
}
