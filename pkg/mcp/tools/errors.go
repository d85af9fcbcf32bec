package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-sqlite3"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
)

// ErrorResponse represents a structured error in tool results.
// It is returned as a successful tool result so the client sees the
// details instead of a bare protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for recoverable errors the caller can fix (bad arguments, unknown
// table, missing record). System failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorResult converts a service error into a tool result.
// Caller mistakes become structured error results; anything else is returned
// as a Go error with credentials scrubbed from the message.
func serviceErrorResult(err error, table string) (*mcp.CallToolResult, error) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		if ve.Field != "" {
			return NewErrorResultWithDetails("invalid_argument", ve.Message, map[string]any{"field": ve.Field}), nil
		}
		return NewErrorResult("invalid_argument", ve.Message), nil
	case errors.Is(err, apperrors.ErrTableNotFound):
		return NewErrorResult("table_not_found", fmt.Sprintf("Table %q not found", table)), nil
	case errors.Is(err, apperrors.ErrRecordNotFound):
		return NewErrorResult("record_not_found", "Record not found"), nil
	case errors.Is(err, apperrors.ErrUnsupportedDialect):
		return NewErrorResult("unsupported_dialect", logging.SanitizeError(err)), nil
	case apperrors.IsQueryError(err):
		return NewErrorResult(QueryErrorCode(err), ExtractSQLErrorMessage(err)), nil
	}
	return nil, errors.New(logging.SanitizeError(err))
}

// QueryErrorCode classifies a driver error raised by any supported dialect.
// Unknown errors map to "query_failed".
func QueryErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapSQLStateToCode(pgErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return "unique_violation"
		case 1451, 1452:
			return "foreign_key_violation"
		case 1048, 1364:
			return "not_null_violation"
		case 1406:
			return "value_too_long"
		case 1264:
			return "numeric_out_of_range"
		case 1292, 1366:
			return "invalid_input"
		}
		return "query_failed"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return "unique_violation"
		case sqlite3.ErrConstraintForeignKey:
			return "foreign_key_violation"
		case sqlite3.ErrConstraintNotNull:
			return "not_null_violation"
		case sqlite3.ErrConstraintCheck:
			return "check_violation"
		}
		return "query_failed"
	}

	return "query_failed"
}

// mapSQLStateToCode maps a PostgreSQL SQLSTATE code to an error code.
func mapSQLStateToCode(sqlState string) string {
	switch sqlState {
	case "42703":
		return "undefined_column"
	case "42P01":
		return "undefined_table"
	case "23505":
		return "unique_violation"
	case "23503":
		return "foreign_key_violation"
	case "23502":
		return "not_null_violation"
	case "23514":
		return "check_violation"
	case "22001":
		return "value_too_long"
	case "22003":
		return "numeric_out_of_range"
	case "22007", "22008":
		return "invalid_datetime"
	case "22P02":
		return "invalid_input"
	}

	if len(sqlState) < 2 {
		return "query_failed"
	}
	switch sqlState[:2] {
	case "22":
		return "data_exception"
	case "23":
		return "constraint_violation"
	case "42":
		return "sql_error"
	}
	return "query_failed"
}

// ExtractSQLErrorMessage returns the driver message without SQLSTATE suffixes
// or "ERROR: " prefixes, with credentials scrubbed.
func ExtractSQLErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Message
	}

	msg := logging.SanitizeError(err)
	if idx := strings.Index(msg, " (SQLSTATE"); idx != -1 {
		msg = msg[:idx]
	}
	return strings.TrimPrefix(msg, "ERROR: ")
}
