package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
)

// ApiResponse is the uniform response envelope.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{
		Success: false,
		Error:   errorCode,
		Message: message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// methodNotAllowed answers a GET on a POST-only route.
func methodNotAllowed(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", http.MethodPost)
		_ = WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"message": fmt.Sprintf("Method not allowed. Use POST to %s.", action),
		})
	}
}

// errorStatus classifies a service error. mutation selects the status for
// driver errors: a rejected write is the caller's fault, a failed read is not.
func errorStatus(err error, table string, mutation bool) (int, string, string) {
	var ve *apperrors.ValidationError
	var qe *apperrors.QueryError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "invalid_request", ve.Message
	case errors.Is(err, apperrors.ErrTableNotFound):
		return http.StatusNotFound, "table_not_found", fmt.Sprintf("Table %q not found", table)
	case errors.Is(err, apperrors.ErrRecordNotFound):
		return http.StatusNotFound, "not_found", "Record not found"
	case errors.Is(err, apperrors.ErrNoFieldsToUpdate):
		return http.StatusBadRequest, "no_fields", "No fields to update"
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid username or password"
	case errors.Is(err, apperrors.ErrInvalidSession):
		return http.StatusUnauthorized, "unauthorized", "Authentication required"
	case errors.As(err, &qe):
		if mutation {
			return http.StatusBadRequest, "query_failed", logging.SanitizeError(qe.Err)
		}
		return http.StatusInternalServerError, "query_failed", logging.SanitizeError(qe.Err)
	case errors.Is(err, apperrors.ErrUnsupportedDialect):
		return http.StatusInternalServerError, "unsupported_dialect", logging.SanitizeError(err)
	case errors.Is(err, apperrors.ErrIntrospectionFailed):
		return http.StatusInternalServerError, "introspection_failed", logging.SanitizeError(err)
	default:
		return http.StatusInternalServerError, "internal_error", logging.SanitizeError(err)
	}
}

// writeServiceError maps err onto the response and logs server-side failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, mutation bool) {
	status, code, message := errorStatus(err, r.PathValue("table"), mutation)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
