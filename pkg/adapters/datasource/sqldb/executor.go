// Package sqldb implements datasource.QueryExecutor on top of database/sql
// for the MySQL and SQLite adapters.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

// QueryExecutor runs statements on a borrowed *sql.DB.
type QueryExecutor struct {
	db    *sql.DB
	quote func(string) string
}

// NewQueryExecutor creates an executor for a database/sql pool.
// quote is the dialect's identifier quoting function.
func NewQueryExecutor(connector datasource.PoolConnector, quote func(string) string) (*QueryExecutor, error) {
	db, err := datasource.GetSQLDB(connector)
	if err != nil {
		return nil, fmt.Errorf("failed to extract database/sql pool: %w", err)
	}
	return &QueryExecutor{db: db, quote: quote}, nil
}

// Query runs a statement that returns rows.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, args ...any) (*datasource.QueryResult, error) {
	rows, err := e.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = datasource.ColumnInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col.Name] = ConvertValue(col.Type, values[i])
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
	res, err := e.db.ExecContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, err
	}

	result := &datasource.ExecuteResult{}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	return result, nil
}

// QuoteIdentifier quotes name with the dialect's quoting function.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return e.quote(name)
}

var integerTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true,
	"INT": true, "INTEGER": true, "BIGINT": true, "YEAR": true,
}

var floatTypes = map[string]bool{
	"FLOAT": true, "DOUBLE": true, "REAL": true,
}

// ConvertValue normalizes a scanned value. MySQL's text protocol returns
// every column as []byte, so numeric columns are parsed back by type name.
func ConvertValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return datasource.NormalizeValue(v)
	}

	s := string(b)
	t := strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ")
	switch {
	case integerTypes[t]:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	case floatTypes[t]:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return datasource.NormalizeValue(b)
}

// QuoteBacktick quotes a MySQL identifier, doubling embedded backticks.
func QuoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteDouble quotes an ANSI identifier, doubling embedded double quotes.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Ensure QueryExecutor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*QueryExecutor)(nil)
