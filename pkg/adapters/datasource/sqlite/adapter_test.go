package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/testhelpers"
)

func resolve(t *testing.T, connString string) *datasource.Handle {
	t.Helper()
	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	t.Cleanup(func() { cm.Close() })

	h, err := cm.Resolve(context.Background(), connString)
	require.NoError(t, err)
	t.Cleanup(h.Release)
	return h
}

func TestToDSN(t *testing.T) {
	assert.Equal(t, "file:./app.db?"+dsnParams, ToDSN("./app.db"))
	assert.Equal(t, "file:/data/app.sqlite?"+dsnParams, ToDSN("sqlite:///data/app.sqlite"))
	assert.Equal(t, "file:app.db?cache=shared&"+dsnParams, ToDSN("file:app.db?cache=shared"))
}

func TestRegistered(t *testing.T) {
	assert.True(t, datasource.IsRegistered(datasource.DialectSQLite))
}

func TestResolve_MissingFileFails(t *testing.T) {
	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	_, err := cm.Resolve(context.Background(), t.TempDir()+"/missing.db")
	assert.Error(t, err, "opening must not create a new database file")
}

func TestQueryExecutor_RoundTrip(t *testing.T) {
	h := resolve(t, testhelpers.NewSQLiteDB(t))
	ctx := context.Background()

	result, err := h.Executor.Query(ctx,
		`SELECT id, name, active, created_at FROM "users" WHERE id = ?`, int64(1))
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)

	row := result.Rows[0]
	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, "Ada", row["name"])
	assert.Equal(t, true, row["active"])
	assert.NotNil(t, row["created_at"])

	res, err := h.Executor.Exec(ctx, `INSERT INTO "tags" (code, label) VALUES (?, ?)`, "db", "Databases")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	returned, err := h.Executor.Query(ctx, `DELETE FROM "tags" WHERE code = ? RETURNING *`, "db")
	require.NoError(t, err)
	require.Len(t, returned.Rows, 1)
	assert.Equal(t, "Databases", returned.Rows[0]["label"])
}

func TestQueryExecutor_ForeignKeysEnforced(t *testing.T) {
	h := resolve(t, testhelpers.NewSQLiteDB(t))

	_, err := h.Executor.Exec(context.Background(),
		`INSERT INTO "posts" (title, author_id) VALUES (?, ?)`, "Orphan", int64(999))
	assert.Error(t, err)
}

func TestQueryExecutor_QuoteIdentifier(t *testing.T) {
	h := resolve(t, "sqlite://"+testhelpers.NewSQLiteDB(t))
	assert.Equal(t, `"users"`, h.Executor.QuoteIdentifier("users"))
	assert.Equal(t, `"a""b"`, h.Executor.QuoteIdentifier(`a"b`))
}

func TestSchemaDiscoverer(t *testing.T) {
	h := resolve(t, testhelpers.NewSQLiteDB(t))
	ctx := context.Background()

	tables, err := h.Discoverer.DiscoverTables(ctx)
	require.NoError(t, err)
	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.TableName
	}
	assert.Equal(t, []string{"posts", "tags", "users"}, names)

	cols, err := h.Discoverer.DiscoverColumns(ctx, "main", "users")
	require.NoError(t, err)
	require.Len(t, cols, 5)
	assert.Equal(t, "id", cols[0].ColumnName)
	assert.True(t, cols[0].IsPrimaryKey)
	assert.True(t, cols[0].IsAutoIncrement)
	assert.False(t, cols[1].IsNullable)
	require.NotNil(t, cols[4].DefaultValue)
	assert.Equal(t, "CURRENT_TIMESTAMP", *cols[4].DefaultValue)

	tagCols, err := h.Discoverer.DiscoverColumns(ctx, "main", "tags")
	require.NoError(t, err)
	assert.True(t, tagCols[0].IsPrimaryKey)
	assert.False(t, tagCols[0].IsAutoIncrement, "text keys are not rowid aliases")

	fks, err := h.Discoverer.DiscoverForeignKeys(ctx)
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "posts", fks[0].SourceTable)
	assert.Equal(t, "author_id", fks[0].SourceColumn)
	assert.Equal(t, "users", fks[0].TargetTable)
	assert.Equal(t, "id", fks[0].TargetColumn)
}

func TestSchemaDiscoverer_SkipsCompositeForeignKeys(t *testing.T) {
	h := resolve(t, testhelpers.NewSQLiteDB(t))
	ctx := context.Background()

	for _, stmt := range []string{
		`CREATE TABLE regions (country TEXT NOT NULL, code TEXT NOT NULL, PRIMARY KEY (country, code))`,
		`CREATE TABLE offices (
			id INTEGER PRIMARY KEY,
			country TEXT,
			code TEXT,
			manager_id INTEGER REFERENCES users,
			FOREIGN KEY (country, code) REFERENCES regions (country, code)
		)`,
	} {
		_, err := h.Executor.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	fks, err := h.Discoverer.DiscoverForeignKeys(ctx)
	require.NoError(t, err)

	var offices []string
	for _, fk := range fks {
		if fk.SourceTable == "offices" {
			offices = append(offices, fk.SourceColumn+"->"+fk.TargetTable+"."+fk.TargetColumn)
		}
	}
	assert.Equal(t, []string{"manager_id->users.id"}, offices)
	assert.Len(t, fks, 2)
}
