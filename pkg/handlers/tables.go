package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
	"github.com/ekaya-inc/ekaya-studio/pkg/services"
)

// maxBodyBytes bounds create and update payloads.
const maxBodyBytes = 1 << 20

// TablesResponse lists every table of a database.
type TablesResponse struct {
	Success bool               `json:"success"`
	Data    []models.TableMeta `json:"data"`
	Count   int                `json:"count"`
}

// ListRecordsResponse is one page of records.
type ListRecordsResponse struct {
	Success bool `json:"success"`
	models.ListResult
}

// RecordResponse carries a single record.
type RecordResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    models.Record `json:"data"`
}

// DeleteResponse reports a deleted record.
type DeleteResponse struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	DeletedID any           `json:"deletedId"`
	Data      models.Record `json:"data,omitempty"`
}

// BatchDeleteResponse reports a batch deletion.
type BatchDeleteResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

// TableMetaResponse carries one table's metadata.
type TableMetaResponse struct {
	Success bool              `json:"success"`
	Data    *models.TableMeta `json:"data"`
}

// TablesHandler serves table metadata and generic record CRUD.
type TablesHandler struct {
	tables  services.TableService
	records services.RecordService
	source  ConnectionSource
	logger  *zap.Logger
}

// NewTablesHandler creates a new tables handler. source may be nil, in which
// case every request must carry the url query parameter.
func NewTablesHandler(tables services.TableService, records services.RecordService, source ConnectionSource, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{
		tables:  tables,
		records: records,
		source:  source,
		logger:  logger,
	}
}

// RegisterRoutes registers the tables handler's routes on the given mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux, guard RouteGuard) {
	mux.HandleFunc("GET /tables", guard(h.ListTables))
	mux.HandleFunc("GET /tables/{table}", guard(h.List))
	mux.HandleFunc("POST /tables/{table}", guard(h.Create))
	mux.HandleFunc("DELETE /tables/{table}", guard(h.BatchDelete))
	mux.HandleFunc("GET /tables/{table}/meta", guard(h.Meta))
	mux.HandleFunc("GET /tables/{table}/{id}", guard(h.Get))
	mux.HandleFunc("PUT /tables/{table}/{id}", guard(h.Update))
	mux.HandleFunc("PATCH /tables/{table}/{id}", guard(h.Update))
	mux.HandleFunc("DELETE /tables/{table}/{id}", guard(h.Delete))
}

// ListTables handles GET /tables.
func (h *TablesHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}

	tables, err := h.tables.ListTables(r.Context(), conn)
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return
	}
	if tables == nil {
		tables = []models.TableMeta{}
	}

	response := TablesResponse{Success: true, Data: tables, Count: len(tables)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Meta handles GET /tables/{table}/meta.
func (h *TablesHandler) Meta(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}

	meta, err := h.tables.GetTableMeta(r.Context(), conn, r.PathValue("table"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return
	}

	if err := WriteJSON(w, http.StatusOK, TableMetaResponse{Success: true, Data: meta}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /tables/{table}.
// Query: page, limit, sortBy, sortOrder, include=relations.
func (h *TablesHandler) List(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}

	params, err := parseListParams(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return
	}

	result, err := h.records.List(r.Context(), conn, r.PathValue("table"), params)
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ListRecordsResponse{Success: true, ListResult: *result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /tables/{table}/{id}.
func (h *TablesHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}

	record, err := h.records.Get(r.Context(), conn, r.PathValue("table"), r.PathValue("id"), includeRelations(r.URL.Query()))
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return
	}

	if err := WriteJSON(w, http.StatusOK, RecordResponse{Success: true, Data: record}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /tables/{table}.
func (h *TablesHandler) Create(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	record, err := h.records.Create(r.Context(), conn, r.PathValue("table"), payload)
	if err != nil {
		writeServiceError(w, r, h.logger, err, true)
		return
	}

	response := RecordResponse{Success: true, Message: "Record created successfully", Data: record}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT and PATCH /tables/{table}/{id}. Both are partial updates.
func (h *TablesHandler) Update(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	record, err := h.records.Update(r.Context(), conn, r.PathValue("table"), r.PathValue("id"), payload)
	if err != nil {
		writeServiceError(w, r, h.logger, err, true)
		return
	}

	response := RecordResponse{Success: true, Message: "Record updated successfully", Data: record}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /tables/{table}/{id}.
func (h *TablesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}

	result, err := h.records.Delete(r.Context(), conn, r.PathValue("table"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, true)
		return
	}

	response := DeleteResponse{
		Success:   true,
		Message:   "Record deleted successfully",
		DeletedID: result.DeletedID,
		Data:      result.Record,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// BatchDelete handles DELETE /tables/{table}?ids=1,2,3.
func (h *TablesHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connection(w, r)
	if !ok {
		return
	}

	count, err := h.records.BatchDelete(r.Context(), conn, r.PathValue("table"), parseIDs(r.URL.Query()))
	if err != nil {
		writeServiceError(w, r, h.logger, err, true)
		return
	}

	response := BatchDeleteResponse{
		Success:      true,
		Message:      "Records deleted successfully",
		DeletedCount: count,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *TablesHandler) connection(w http.ResponseWriter, r *http.Request) (string, bool) {
	conn, err := connectionString(r, h.source)
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return "", false
	}
	return conn, true
}

// decodePayload reads a non-empty JSON object. Numbers stay json.Number so
// integer precision survives until the column type is known.
func (h *TablesHandler) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		writeServiceError(w, r, h.logger, apperrors.NewValidationError("body", "Invalid request body"), true)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeServiceError(w, r, h.logger, apperrors.NewValidationError("body", "Request body is required"), true)
		return nil, false
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		writeServiceError(w, r, h.logger, apperrors.NewValidationError("body", "Request body must be a JSON object"), true)
		return nil, false
	}
	if len(payload) == 0 {
		writeServiceError(w, r, h.logger, apperrors.NewValidationError("body", "Request body is required"), true)
		return nil, false
	}
	return payload, true
}
