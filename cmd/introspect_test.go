package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

func sampleTables() []models.TableMeta {
	return []models.TableMeta{
		{
			Name: "posts",
			Columns: []models.ColumnMeta{
				{Name: "id", Type: models.ColumnTypeInteger, PrimaryKey: true, DefaultValue: models.DefaultAutoincrement},
				{Name: "title", Type: models.ColumnTypeVarchar},
				{Name: "author_id", Type: models.ColumnTypeInteger, Nullable: true, ForeignKey: &models.ForeignKeyRef{Table: "users", Column: "id"}},
				{Name: "status", Type: models.ColumnTypeEnum, EnumValues: []string{"draft", "live"}},
			},
			Relations: []models.Relation{
				{Type: models.RelationBelongsTo, Table: "users", LocalField: "author_id", ForeignField: "id"},
			},
		},
	}
}

func TestWriteTables_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTables(&buf, sampleTables(), "json"))

	var got []models.TableMeta
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "posts", got[0].Name)
	assert.Contains(t, buf.String(), `"primaryKey": true`)
}

func TestWriteTables_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTables(&buf, sampleTables(), "yaml"))

	out := buf.String()
	assert.Contains(t, out, "primaryKey: true")
	assert.Contains(t, out, "localField: author_id")

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "posts", got[0]["name"])
}

func TestWriteTables_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTables(&buf, sampleTables(), "text"))

	out := buf.String()
	assert.Contains(t, out, "posts")
	assert.Contains(t, out, "integer, pk, not null, default autoincrement")
	assert.Contains(t, out, "references users.id")
	assert.Contains(t, out, "[draft|live]")
	assert.Contains(t, out, "belongsTo users (author_id -> id)")
	assert.Contains(t, out, "1 tables")
}

func TestWriteTables_UnknownFormat(t *testing.T) {
	err := writeTables(&bytes.Buffer{}, sampleTables(), "xml")
	assert.ErrorContains(t, err, `unknown format "xml"`)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Equal(t, "ekaya-studio version "+Version+"\n", buf.String())
}
