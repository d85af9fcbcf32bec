package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/services"
)

// ConnectionRegistry opens and releases datasource handles.
// *datasource.ConnectionManager implements it.
type ConnectionRegistry interface {
	Resolve(ctx context.Context, connString string) (*datasource.Handle, error)
	Evict(connString string) bool
}

// ConnectionStore persists the connection context between requests.
// *auth.ConnectionStore implements it.
type ConnectionStore interface {
	ConnectionSource
	Save(w http.ResponseWriter, r *http.Request, connString, dialect string) error
	Clear(w http.ResponseWriter, r *http.Request) error
}

// ConnectRequest is the POST /connection body: either a full url or the
// discrete fields of a connection form.
type ConnectRequest struct {
	URL string `json:"url"`
	datasource.ConnectionCredentials
}

// ConnectionStatus describes the stored connection context.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Dialect   string `json:"dialect,omitempty"`
	URL       string `json:"url,omitempty"` // redacted
}

// ConnectionHandler selects, reports and releases the connection context.
type ConnectionHandler struct {
	registry ConnectionRegistry
	store    ConnectionStore
	tables   services.TableService
	logger   *zap.Logger
}

// NewConnectionHandler creates a new connection handler.
func NewConnectionHandler(registry ConnectionRegistry, store ConnectionStore, tables services.TableService, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		registry: registry,
		store:    store,
		tables:   tables,
		logger:   logger,
	}
}

// RegisterRoutes registers the connection handler's routes on the given mux.
func (h *ConnectionHandler) RegisterRoutes(mux *http.ServeMux, guard RouteGuard) {
	mux.HandleFunc("POST /connection", guard(h.Connect))
	mux.HandleFunc("GET /connection", guard(h.Status))
	mux.HandleFunc("DELETE /connection", guard(h.Disconnect))
}

// Connect handles POST /connection.
// The database is opened before the context is stored, so a bad string
// never reaches the cookie.
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	connString := strings.TrimSpace(req.URL)
	if connString == "" {
		if req.Type == "" {
			writeServiceError(w, r, h.logger, apperrors.NewValidationError("url", "Database URL is required"), true)
			return
		}
		built, err := datasource.BuildConnectionURL(req.ConnectionCredentials)
		if err != nil {
			writeServiceError(w, r, h.logger, err, true)
			return
		}
		connString = built
	}

	dialect, err := datasource.DetectDialect(connString)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "unsupported_dialect", logging.SanitizeError(err)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	handle, err := h.registry.Resolve(r.Context(), connString)
	if err != nil {
		h.logger.Warn("Failed to connect to database",
			zap.String("url", logging.SanitizeConnectionString(connString)),
			zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusBadRequest, "connection_failed", "Failed to connect to database: "+logging.SanitizeError(err)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	handle.Release()

	if err := h.store.Save(w, r, connString, string(dialect)); err != nil {
		h.logger.Error("Failed to save connection context", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to save connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.logger.Info("Connection selected",
		zap.String("dialect", string(dialect)),
		zap.String("url", logging.SanitizeConnectionString(connString)))

	response := ApiResponse{
		Success: true,
		Message: "Connected successfully",
		Data: ConnectionStatus{
			Connected: true,
			Dialect:   string(dialect),
			URL:       logging.SanitizeConnectionString(connString),
		},
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Status handles GET /connection.
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := ConnectionStatus{}
	if conn, dialect, err := h.store.Get(r); err == nil {
		status = ConnectionStatus{
			Connected: true,
			Dialect:   dialect,
			URL:       logging.SanitizeConnectionString(conn),
		}
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Disconnect handles DELETE /connection.
// The pooled handle and cached metadata for the string are released too.
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if conn, _, err := h.store.Get(r); err == nil {
		h.registry.Evict(conn)
		h.tables.Invalidate(conn)
	}

	if err := h.store.Clear(w, r); err != nil {
		h.logger.Error("Failed to clear connection context", zap.Error(err))
	}

	response := ApiResponse{Success: true, Message: "Disconnected successfully"}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
