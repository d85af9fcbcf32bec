package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

// StatsProvider reports connection registry statistics.
type StatsProvider interface {
	GetStats() datasource.ConnectionStats
}

type healthResult struct {
	Status      string                      `json:"status"`
	Version     string                      `json:"version"`
	Connections *datasource.ConnectionStats `json:"connections,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// stats may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, stats StatsProvider) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and open connection counts"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if stats != nil {
			s := stats.GetStats()
			result.Connections = &s
		}
		return jsonResult(result)
	})
}
