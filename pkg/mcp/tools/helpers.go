package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive
// as float64; numeric strings are accepted too.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool, error) {
	raw, ok := arguments(req)[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false, fmt.Errorf("%s must be an integer", key)
		}
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer", key)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%s must be an integer", key)
}

// getOptionalBool extracts an optional boolean argument from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	val, ok := arguments(req)[key].(bool)
	return val, ok
}

// requireID reads a record id given as a string or a number.
func requireID(req mcp.CallToolRequest) (string, bool) {
	switch v := arguments(req)["id"].(type) {
	case string:
		id := trimString(v)
		return id, id != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

type connectionKey struct{}

// WithConnection stores the caller's saved connection string in ctx so tools
// can run without an explicit url argument.
func WithConnection(ctx context.Context, connString string) context.Context {
	if connString == "" {
		return ctx
	}
	return context.WithValue(ctx, connectionKey{}, connString)
}

// connectionFor returns the url argument, falling back to the saved connection.
func connectionFor(ctx context.Context, req mcp.CallToolRequest) string {
	if u := trimString(getOptionalString(req, "url")); u != "" {
		return u
	}
	return ConnectionFromContext(ctx)
}

// ConnectionFromContext returns the connection string stored by WithConnection.
func ConnectionFromContext(ctx context.Context) string {
	conn, _ := ctx.Value(connectionKey{}).(string)
	return conn
}
