package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/mcp"
	"github.com/ekaya-inc/ekaya-studio/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-studio/pkg/middleware"
)

// MCPHandler handles MCP protocol requests over HTTP.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	source     ConnectionSource
	logger     *zap.Logger
}

// NewMCPHandler creates a new MCP handler from an MCP server. source may be
// nil, in which case every tool call must pass its own url.
func NewMCPHandler(mcpServer *mcp.Server, source ConnectionSource, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		source:     source,
		logger:     logger,
	}
}

// RegisterRoutes registers the /mcp endpoint.
// Layers from the outside in: method check, session guard, JSON-RPC logging.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux, guard RouteGuard) {
	logged := middleware.MCPRequestLogger(h.logger)(h.withConnection(h.httpServer))
	guarded := guard(logged.ServeHTTP)
	mux.Handle("/mcp", h.requirePOST(guarded))
}

// withConnection exposes the saved connection to tool handlers.
func (h *MCPHandler) withConnection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.source != nil {
			if conn, _, err := h.source.Get(r); err == nil {
				r = r.WithContext(tools.WithConnection(r.Context(), conn))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requirePOST returns 405 Method Not Allowed for non-POST requests.
// MCP over HTTP Streaming requires POST for JSON-RPC requests.
func (h *MCPHandler) requirePOST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}
