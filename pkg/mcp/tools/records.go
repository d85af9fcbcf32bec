package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
	"github.com/ekaya-inc/ekaya-studio/pkg/services"
)

// RecordToolDeps contains dependencies for the read-only database browsing tools.
type RecordToolDeps struct {
	Tables  services.TableService
	Records services.RecordService
	// Redactor masks sensitive column values in returned records. Nil disables masking.
	Redactor *SensitiveDetector
	Logger   *zap.Logger
}

const urlDescription = "Database connection URL (postgresql://, mysql://, sqlite:// or a .db file path). Optional when a connection is already selected."

// RegisterRecordTools registers list_tables, get_table_meta, list_records and get_record.
// Every tool is read-only; mutations stay behind the HTTP API.
func RegisterRecordTools(s *server.MCPServer, deps *RecordToolDeps) {
	registerListTablesTool(s, deps)
	registerGetTableMetaTool(s, deps)
	registerListRecordsTool(s, deps)
	registerGetRecordTool(s, deps)
}

func readOnlyHints() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func registerListTablesTool(s *server.MCPServer, deps *RecordToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("List every table of the database with its columns, primary key and relations."),
		mcp.WithString("url", mcp.Description(urlDescription)),
	}, readOnlyHints()...)
	tool := mcp.NewTool("list_tables", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conn := connectionFor(ctx, req)
		if conn == "" {
			return NewErrorResult("invalid_argument", "Database URL is required"), nil
		}

		tables, err := deps.Tables.ListTables(ctx, conn)
		if err != nil {
			deps.logFailure("list_tables", conn, err)
			return serviceErrorResult(err, "")
		}

		names := make([]string, 0, len(tables))
		for _, t := range tables {
			names = append(names, t.Name)
		}
		return jsonResult(struct {
			Tables []models.TableMeta `json:"tables"`
			Names  []string           `json:"names"`
			Count  int                `json:"count"`
		}{tables, names, len(tables)})
	})
}

func registerGetTableMetaTool(s *server.MCPServer, deps *RecordToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Describe one table: columns with types, nullability and defaults, primary key, and relations to other tables."),
		mcp.WithString("url", mcp.Description(urlDescription)),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name as returned by list_tables")),
	}, readOnlyHints()...)
	tool := mcp.NewTool("get_table_meta", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conn := connectionFor(ctx, req)
		if conn == "" {
			return NewErrorResult("invalid_argument", "Database URL is required"), nil
		}
		table, err := req.RequireString("table")
		if err != nil || trimString(table) == "" {
			return NewErrorResult("invalid_argument", "table is required"), nil
		}
		table = trimString(table)

		meta, err := deps.Tables.GetTableMeta(ctx, conn, table)
		if err != nil {
			deps.logFailure("get_table_meta", conn, err)
			return serviceErrorResult(err, table)
		}
		return jsonResult(meta)
	})
}

func registerListRecordsTool(s *server.MCPServer, deps *RecordToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Page through the records of a table. Pages start at 1 and hold at most 100 records. " +
				"Sorting is limited to the table's own columns.",
		),
		mcp.WithString("url", mcp.Description(urlDescription)),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name as returned by list_tables")),
		mcp.WithNumber("page", mcp.Description("Page number, default 1")),
		mcp.WithNumber("limit", mcp.Description("Records per page, 1-100, default 50")),
		mcp.WithString("sort_by", mcp.Description("Column to sort by, default primary key")),
		mcp.WithString("sort_order", mcp.Description("asc or desc, default asc"), mcp.Enum("asc", "desc")),
		mcp.WithBoolean("include_relations", mcp.Description("Embed related records (default false)")),
	}, readOnlyHints()...)
	tool := mcp.NewTool("list_records", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conn := connectionFor(ctx, req)
		if conn == "" {
			return NewErrorResult("invalid_argument", "Database URL is required"), nil
		}
		table, err := req.RequireString("table")
		if err != nil || trimString(table) == "" {
			return NewErrorResult("invalid_argument", "table is required"), nil
		}
		table = trimString(table)

		params := models.ListParams{
			Page:      models.DefaultPage,
			Limit:     models.DefaultLimit,
			SortBy:    trimString(getOptionalString(req, "sort_by")),
			SortOrder: models.SortAsc,
		}
		if page, ok, err := getOptionalInt(req, "page"); err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		} else if ok {
			params.Page = page
		}
		if limit, ok, err := getOptionalInt(req, "limit"); err != nil {
			return NewErrorResult("invalid_argument", err.Error()), nil
		} else if ok {
			params.Limit = limit
		}
		switch order := strings.ToLower(trimString(getOptionalString(req, "sort_order"))); order {
		case "", string(models.SortAsc):
		case string(models.SortDesc):
			params.SortOrder = models.SortDesc
		default:
			return NewErrorResult("invalid_argument", "sort_order must be 'asc' or 'desc'"), nil
		}
		if include, ok := getOptionalBool(req, "include_relations"); ok {
			params.IncludeRelations = include
		}

		result, err := deps.Records.List(ctx, conn, table, params)
		if err != nil {
			deps.logFailure("list_records", conn, err)
			return serviceErrorResult(err, table)
		}
		page := *result
		page.Data = deps.Redactor.RedactRecords(result.Data)
		return jsonResult(page)
	})
}

func registerGetRecordTool(s *server.MCPServer, deps *RecordToolDeps) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Fetch one record by primary key, with its related records embedded."),
		mcp.WithString("url", mcp.Description(urlDescription)),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name as returned by list_tables")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Primary key value")),
	}, readOnlyHints()...)
	tool := mcp.NewTool("get_record", opts...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conn := connectionFor(ctx, req)
		if conn == "" {
			return NewErrorResult("invalid_argument", "Database URL is required"), nil
		}
		table, err := req.RequireString("table")
		if err != nil || trimString(table) == "" {
			return NewErrorResult("invalid_argument", "table is required"), nil
		}
		table = trimString(table)
		id, ok := requireID(req)
		if !ok {
			return NewErrorResult("invalid_argument", "id is required"), nil
		}

		record, err := deps.Records.Get(ctx, conn, table, id, true)
		if err != nil {
			deps.logFailure("get_record", conn, err)
			return serviceErrorResult(err, table)
		}
		return jsonResult(struct {
			Record models.Record `json:"record"`
		}{deps.Redactor.RedactRecord(record)})
	})
}

func (d *RecordToolDeps) logFailure(tool, conn string, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.Debug("MCP tool failed",
		zap.String("tool", tool),
		zap.String("url", logging.SanitizeConnectionString(conn)),
		zap.String("error", logging.SanitizeError(err)))
}
