package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

// SchemaDiscoverer reads SQLite metadata through the pragma table-valued functions.
type SchemaDiscoverer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaDiscoverer creates a SQLite schema discoverer on a borrowed pool.
func NewSchemaDiscoverer(connector datasource.PoolConnector, logger *zap.Logger) (*SchemaDiscoverer, error) {
	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract sqlite pool: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaDiscoverer{db: db, logger: logger.Named("sqlite-discovery")}, nil
}

func (d *SchemaDiscoverer) SupportsForeignKeys() bool {
	return true
}

// DiscoverTables returns user tables, skipping sqlite_ internals.
func (d *SchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	const query = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		t := datasource.TableMetadata{SchemaName: "main"}
		if err := rows.Scan(&t.TableName); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	d.logger.Debug("discovered tables", zap.Int("count", len(tables)))
	return tables, nil
}

// DiscoverColumns returns columns for a table. A single INTEGER primary key
// aliases the rowid and is reported as auto-incrementing.
func (d *SchemaDiscoverer) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	const query = `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`

	rows, err := d.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var (
		columns []datasource.ColumnMetadata
		pkCount int
		pkIndex = -1
	)
	for rows.Next() {
		var (
			cid        int
			name       string
			dataType   string
			notNull    bool
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		c := datasource.ColumnMetadata{
			ColumnName:      name,
			DataType:        strings.ToLower(dataType),
			IsNullable:      !notNull && pk == 0,
			IsPrimaryKey:    pk > 0,
			OrdinalPosition: cid + 1,
		}
		if defaultVal.Valid {
			v := defaultVal.String
			c.DefaultValue = &v
		}
		if pk > 0 {
			pkCount++
			pkIndex = len(columns)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	if pkCount == 1 && columns[pkIndex].DataType == "integer" {
		columns[pkIndex].IsAutoIncrement = true
	}

	return columns, nil
}

// DiscoverForeignKeys returns single-column foreign keys of every user table.
// Composite keys are skipped. A reference without an explicit target column
// points at the target's primary key.
func (d *SchemaDiscoverer) DiscoverForeignKeys(ctx context.Context) ([]datasource.ForeignKeyMetadata, error) {
	tables, err := d.DiscoverTables(ctx)
	if err != nil {
		return nil, err
	}

	const query = `SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`

	var fks []datasource.ForeignKeyMetadata
	for _, t := range tables {
		rows, err := d.db.QueryContext(ctx, query, t.TableName)
		if err != nil {
			return nil, fmt.Errorf("query foreign keys of %s: %w", t.TableName, err)
		}

		var (
			tableFKs []datasource.ForeignKeyMetadata
			keyIDs   []int
		)
		columnsPerKey := make(map[int]int)
		for rows.Next() {
			var (
				id     int
				target string
				from   string
				to     sql.NullString
			)
			if err := rows.Scan(&id, &target, &from, &to); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan foreign key: %w", err)
			}
			columnsPerKey[id]++
			keyIDs = append(keyIDs, id)
			tableFKs = append(tableFKs, datasource.ForeignKeyMetadata{
				ConstraintName: fmt.Sprintf("%s_fk_%d", t.TableName, id),
				SourceSchema:   "main",
				SourceTable:    t.TableName,
				SourceColumn:   from,
				TargetSchema:   "main",
				TargetTable:    target,
				TargetColumn:   to.String,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate foreign keys: %w", err)
		}

		for i, fk := range tableFKs {
			if columnsPerKey[keyIDs[i]] == 1 {
				fks = append(fks, fk)
			}
		}
	}

	for i := range fks {
		if fks[i].TargetColumn != "" {
			continue
		}
		pk, err := d.primaryKeyOf(ctx, fks[i].TargetTable)
		if err != nil {
			return nil, err
		}
		fks[i].TargetColumn = pk
	}

	return fks, nil
}

func (d *SchemaDiscoverer) primaryKeyOf(ctx context.Context, table string) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx,
		`SELECT name FROM pragma_table_info(?) WHERE pk = 1`, table).Scan(&name)
	if err == sql.ErrNoRows {
		return "rowid", nil
	}
	if err != nil {
		return "", fmt.Errorf("query primary key of %s: %w", table, err)
	}
	return name, nil
}

// Ensure SchemaDiscoverer implements datasource.SchemaDiscoverer at compile time.
var _ datasource.SchemaDiscoverer = (*SchemaDiscoverer)(nil)
