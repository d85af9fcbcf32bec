package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// CatalogIntrospector reads metadata straight from the database catalog
// through the handle's SchemaDiscoverer. It needs no external tooling.
type CatalogIntrospector struct {
	resolver ConnectionResolver
	logger   *zap.Logger
}

// NewCatalogIntrospector creates a catalog-backed introspector.
func NewCatalogIntrospector(resolver ConnectionResolver, logger *zap.Logger) *CatalogIntrospector {
	return &CatalogIntrospector{
		resolver: resolver,
		logger:   logger.Named("catalog-introspector"),
	}
}

// Introspect implements SchemaIntrospector.
func (c *CatalogIntrospector) Introspect(ctx context.Context, connString string) ([]models.TableMeta, error) {
	handle, err := c.resolver.Resolve(ctx, connString)
	if err != nil {
		return nil, introspectionError(err)
	}
	defer handle.Release()
	if handle.Discoverer == nil {
		return nil, introspectionError(fmt.Errorf("no schema discoverer for %s", handle.Dialect))
	}

	tables, err := handle.Discoverer.DiscoverTables(ctx)
	if err != nil {
		return nil, introspectionError(err)
	}

	result := make([]models.TableMeta, 0, len(tables))
	index := make(map[string]int, len(tables))

	for _, t := range tables {
		cols, err := handle.Discoverer.DiscoverColumns(ctx, t.SchemaName, t.TableName)
		if err != nil {
			return nil, introspectionError(fmt.Errorf("columns of %s: %w", t.TableName, err))
		}

		meta := models.TableMeta{
			Name:      t.TableName,
			Columns:   make([]models.ColumnMeta, 0, len(cols)),
			Relations: []models.Relation{},
		}
		for _, col := range cols {
			meta.Columns = append(meta.Columns, catalogColumn(col))
		}

		index[t.TableName] = len(result)
		result = append(result, meta)
	}

	if handle.Discoverer.SupportsForeignKeys() {
		fks, err := handle.Discoverer.DiscoverForeignKeys(ctx)
		if err != nil {
			return nil, introspectionError(fmt.Errorf("foreign keys: %w", err))
		}
		applyForeignKeys(result, index, fks)
	}

	c.logger.Debug("Introspected database catalog",
		zap.String("dialect", string(handle.Dialect)),
		zap.String("url", logging.SanitizeConnectionString(connString)),
		zap.Int("tables", len(result)))

	return result, nil
}

// applyForeignKeys annotates source columns and adds the belongsTo relation on
// the source table plus the mirrored hasMany on the target table.
func applyForeignKeys(tables []models.TableMeta, index map[string]int, fks []datasource.ForeignKeyMetadata) {
	for _, fk := range fks {
		si, ok := index[fk.SourceTable]
		if !ok {
			continue
		}
		ti, ok := index[fk.TargetTable]
		if !ok {
			continue
		}
		source, target := &tables[si], &tables[ti]

		col, ok := source.Column(fk.SourceColumn)
		if !ok {
			continue
		}
		if col.ForeignKey == nil {
			col.ForeignKey = &models.ForeignKeyRef{Table: fk.TargetTable, Column: fk.TargetColumn}
		}

		source.Relations = append(source.Relations, models.Relation{
			Type:         models.RelationBelongsTo,
			Table:        fk.TargetTable,
			LocalField:   fk.SourceColumn,
			ForeignField: fk.TargetColumn,
		})
		target.Relations = append(target.Relations, models.Relation{
			Type:         models.RelationHasMany,
			Table:        fk.SourceTable,
			LocalField:   fk.TargetColumn,
			ForeignField: fk.SourceColumn,
		})
	}
}

func catalogColumn(col datasource.ColumnMetadata) models.ColumnMeta {
	meta := models.ColumnMeta{
		Name:       col.ColumnName,
		Type:       SQLColumnType(col.DataType),
		Nullable:   col.IsNullable,
		PrimaryKey: col.IsPrimaryKey,
	}
	if meta.Type == models.ColumnTypeEnum {
		meta.EnumValues = enumValues(col.DataType)
	}
	if col.IsAutoIncrement {
		meta.DefaultValue = models.DefaultAutoincrement
	} else if col.DefaultValue != nil {
		meta.DefaultValue = catalogDefault(*col.DefaultValue)
	}
	return meta
}

// SQLColumnType maps a catalog type name (postgres udt_name, MySQL
// column_type, SQLite declared type) to a column type tag. Unknown types are
// returned lower-cased.
func SQLColumnType(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if t == "tinyint(1)" {
		return models.ColumnTypeBoolean
	}

	base := t
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(base), "unsigned"))

	switch base {
	case "int", "int2", "int4", "integer", "smallint", "mediumint", "tinyint", "serial", "smallserial", "serial4", "year":
		return models.ColumnTypeInteger
	case "int8", "bigint", "bigserial", "serial8":
		return models.ColumnTypeBigint
	case "real", "float", "float4", "float8", "double", "double precision":
		return models.ColumnTypeReal
	case "numeric", "decimal", "money":
		return models.ColumnTypeDecimal
	case "bool", "boolean", "bit":
		return models.ColumnTypeBoolean
	case "timestamp", "timestamptz", "datetime", "date", "time", "timetz",
		"timestamp with time zone", "timestamp without time zone":
		return models.ColumnTypeTimestamp
	case "json", "jsonb":
		return models.ColumnTypeJSON
	case "bytea", "blob", "tinyblob", "mediumblob", "longblob", "binary", "varbinary":
		return models.ColumnTypeBlob
	case "varchar", "char", "bpchar", "text", "tinytext", "mediumtext", "longtext",
		"character varying", "character", "citext", "uuid", "clob", "nvarchar", "nchar":
		return models.ColumnTypeVarchar
	case "enum":
		return models.ColumnTypeEnum
	}

	// SQLite declared types follow affinity rules
	switch {
	case strings.Contains(base, "int"):
		return models.ColumnTypeInteger
	case strings.Contains(base, "char"), strings.Contains(base, "text"):
		return models.ColumnTypeVarchar
	case strings.HasPrefix(base, "timestamp"):
		return models.ColumnTypeTimestamp
	}
	return t
}

var enumMemberPattern = regexp.MustCompile(`'((?:[^']|'')*)'`)

// enumValues extracts the members of a MySQL enum('a','b') column type.
func enumValues(columnType string) []string {
	matches := enumMemberPattern.FindAllStringSubmatch(columnType, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, strings.ReplaceAll(m[1], "''", "'"))
	}
	return values
}

// catalogDefault turns a catalog default expression into the same shapes the
// Prisma path produces: now(), literal values, or nil for database-side
// expressions.
func catalogDefault(raw string) any {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	// postgres casts: 'draft'::character varying
	if i := strings.Index(s, "::"); i > 0 {
		s = s[:i]
	}

	upper := strings.ToUpper(s)
	switch {
	case s == "", upper == "NULL":
		return nil
	case strings.HasPrefix(upper, "NEXTVAL("):
		return models.DefaultAutoincrement
	case upper == "NOW()", strings.HasPrefix(upper, "CURRENT_TIMESTAMP"), upper == "LOCALTIMESTAMP",
		upper == "DATETIME('NOW')":
		return models.DefaultNow
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	case upper == "TRUE", upper == "FALSE":
		return upper == "TRUE"
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if looksNumber(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if strings.Contains(s, "(") {
		return nil
	}
	// MySQL reports string defaults unquoted
	return s
}

func looksNumber(s string) bool {
	return s != "" && (s[0] == '-' || s[0] == '.' || s[0] >= '0' && s[0] <= '9')
}
