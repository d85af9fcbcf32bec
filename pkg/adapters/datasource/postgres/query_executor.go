package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

// QueryExecutor provides PostgreSQL query execution on a borrowed pool.
type QueryExecutor struct {
	pool *pgxpool.Pool
}

// NewQueryExecutor creates a PostgreSQL query executor for a pool opened by OpenPool.
func NewQueryExecutor(connector datasource.PoolConnector) (*QueryExecutor, error) {
	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract postgres pool: %w", err)
	}
	return &QueryExecutor{pool: pool}, nil
}

// Query runs a statement that returns rows.
// pgx handles parameterized queries natively ($1, $2, ...).
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, args ...any) (*datasource.QueryResult, error) {
	rows, err := e.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	typeMap := rows.Conn().TypeMap()
	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		typeName := "unknown"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = t.Name
		}
		columns[i] = datasource.ColumnInfo{Name: fd.Name, Type: typeName}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = datasource.NormalizeValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &datasource.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// Exec runs a statement that returns no rows.
func (e *QueryExecutor) Exec(ctx context.Context, sqlStatement string, args ...any) (*datasource.ExecuteResult, error) {
	tag, err := e.pool.Exec(ctx, sqlStatement, args...)
	if err != nil {
		return nil, err
	}
	return &datasource.ExecuteResult{RowsAffected: tag.RowsAffected()}, nil
}

// QuoteIdentifier safely quotes a SQL identifier to prevent SQL injection.
// Uses PostgreSQL's standard double-quote quoting.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
