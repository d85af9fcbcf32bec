package datasource

import "context"

// QueryExecutor runs parameterized SQL against one resolved datasource.
// Implementations borrow the handle's pool and never close it.
type QueryExecutor interface {
	// Query runs a statement that yields rows: SELECT, or INSERT/UPDATE/DELETE
	// with a RETURNING clause. Values are normalized for JSON encoding.
	Query(ctx context.Context, sqlQuery string, args ...any) (*QueryResult, error)

	// Exec runs a statement that yields no rows and reports its effect.
	Exec(ctx context.Context, sqlStatement string, args ...any) (*ExecuteResult, error)

	// QuoteIdentifier quotes a table or column name for the dialect.
	// Callers must still check the name against introspected metadata.
	QuoteIdentifier(name string) string
}

// SchemaDiscoverer reads table, column and foreign key metadata from the
// database catalog.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables (excludes system schemas).
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns columns for a specific table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns all foreign key relationships.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)

	// SupportsForeignKeys returns true if the database supports FK discovery.
	SupportsForeignKeys() bool
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "text", "int4", "VARCHAR")
}

// QueryResult holds the rows produced by Query.
type QueryResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ExecuteResult holds the effect of Exec.
type ExecuteResult struct {
	RowsAffected int64 `json:"rows_affected"`
	// LastInsertID is only reported by drivers that support it (MySQL, SQLite).
	LastInsertID int64 `json:"last_insert_id,omitempty"`
}
