package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
	"github.com/ekaya-inc/ekaya-studio/pkg/testhelpers"
)

func TestSQLColumnType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int4", models.ColumnTypeInteger},
		{"INTEGER", models.ColumnTypeInteger},
		{"int(10) unsigned", models.ColumnTypeInteger},
		{"bigint", models.ColumnTypeBigint},
		{"int8", models.ColumnTypeBigint},
		{"tinyint(1)", models.ColumnTypeBoolean},
		{"bool", models.ColumnTypeBoolean},
		{"numeric(10,2)", models.ColumnTypeDecimal},
		{"double precision", models.ColumnTypeReal},
		{"timestamptz", models.ColumnTypeTimestamp},
		{"datetime", models.ColumnTypeTimestamp},
		{"jsonb", models.ColumnTypeJSON},
		{"bytea", models.ColumnTypeBlob},
		{"varchar(255)", models.ColumnTypeVarchar},
		{"uuid", models.ColumnTypeVarchar},
		{"enum('draft','live')", models.ColumnTypeEnum},
		{"UNSIGNED BIG INT", models.ColumnTypeInteger},
		{"NATIVE CHARACTER(70)", models.ColumnTypeVarchar},
		{"tsvector", "tsvector"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLColumnType(tt.in))
		})
	}
}

func TestEnumValues(t *testing.T) {
	assert.Equal(t, []string{"draft", "it's live"}, enumValues("enum('draft','it''s live')"))
}

func TestCatalogDefault(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"null", "NULL", nil},
		{"sequence", "nextval('users_id_seq'::regclass)", models.DefaultAutoincrement},
		{"now", "now()", models.DefaultNow},
		{"current timestamp", "CURRENT_TIMESTAMP", models.DefaultNow},
		{"mysql current timestamp with precision", "CURRENT_TIMESTAMP(3)", models.DefaultNow},
		{"postgres cast literal", "'draft'::character varying", "draft"},
		{"escaped quote", "'it''s'", "it's"},
		{"bool", "true", true},
		{"integer", "42", int64(42)},
		{"parenthesised integer", "(0)", int64(0)},
		{"float", "1.5", 1.5},
		{"negative", "-3", int64(-3)},
		{"function expression", "gen_random_uuid()", nil},
		{"mysql bare string", "pending", "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalogDefault(tt.in))
		})
	}
}

func TestApplyForeignKeys(t *testing.T) {
	tables := []models.TableMeta{
		{Name: "users", Columns: []models.ColumnMeta{{Name: "id"}}},
		{Name: "posts", Columns: []models.ColumnMeta{{Name: "id"}, {Name: "author_id"}}},
	}
	index := map[string]int{"users": 0, "posts": 1}

	applyForeignKeys(tables, index, []datasource.ForeignKeyMetadata{
		{SourceTable: "posts", SourceColumn: "author_id", TargetTable: "users", TargetColumn: "id"},
		{SourceTable: "posts", SourceColumn: "author_id", TargetTable: "missing", TargetColumn: "id"},
	})

	col, ok := tables[1].Column("author_id")
	require.True(t, ok)
	require.NotNil(t, col.ForeignKey)
	assert.Equal(t, models.ForeignKeyRef{Table: "users", Column: "id"}, *col.ForeignKey)

	assert.Equal(t, []models.Relation{{Type: models.RelationBelongsTo, Table: "users", LocalField: "author_id", ForeignField: "id"}}, tables[1].Relations)
	assert.Equal(t, []models.Relation{{Type: models.RelationHasMany, Table: "posts", LocalField: "id", ForeignField: "author_id"}}, tables[0].Relations)
}

func TestCatalogIntrospector_SQLite(t *testing.T) {
	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zap.NewNop())
	t.Cleanup(func() { _ = manager.Close() })

	intro := NewCatalogIntrospector(manager, zap.NewNop())
	tables, err := intro.Introspect(context.Background(), testhelpers.NewSQLiteDB(t))
	require.NoError(t, err)

	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"posts", "tags", "users"}, names)

	users, ok := models.FindTable(tables, "users")
	require.True(t, ok)

	id, ok := users.Column("id")
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.Equal(t, models.ColumnTypeInteger, id.Type)
	assert.Equal(t, models.DefaultAutoincrement, id.DefaultValue)

	active, _ := users.Column("active")
	assert.Equal(t, models.ColumnTypeBoolean, active.Type)
	assert.Equal(t, int64(1), active.DefaultValue)

	created, _ := users.Column("created_at")
	assert.Equal(t, models.ColumnTypeTimestamp, created.Type)
	assert.Equal(t, models.DefaultNow, created.DefaultValue)

	posts, _ := models.FindTable(tables, "posts")
	body, _ := posts.Column("body")
	assert.True(t, body.Nullable)
	author, _ := posts.Column("author_id")
	require.NotNil(t, author.ForeignKey)
	assert.Equal(t, "users", author.ForeignKey.Table)
	assert.Equal(t, "id", author.ForeignKey.Column)

	assert.Contains(t, users.Relations, models.Relation{Type: models.RelationHasMany, Table: "posts", LocalField: "id", ForeignField: "author_id"})
	assert.Contains(t, posts.Relations, models.Relation{Type: models.RelationBelongsTo, Table: "users", LocalField: "author_id", ForeignField: "id"})

	tags, _ := models.FindTable(tables, "tags")
	assert.Equal(t, "code", tags.PrimaryKey())
}

func TestCatalogIntrospector_UnsupportedDialect(t *testing.T) {
	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zap.NewNop())
	t.Cleanup(func() { _ = manager.Close() })

	_, err := NewCatalogIntrospector(manager, zap.NewNop()).Introspect(context.Background(), "mongodb://localhost/app")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedDialect)
}
