package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid_request", "invalid input"},
		{"not found", http.StatusNotFound, "not_found", "Record not found"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			if err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message); err != nil {
				t.Fatalf("ErrorResponse returned error: %v", err)
			}

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body ApiResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body.Success {
				t.Error("success = true, want false")
			}
			if body.Error != tt.errorCode {
				t.Errorf("error = %q, want %q", body.Error, tt.errorCode)
			}
			if body.Message != tt.message {
				t.Errorf("message = %q, want %q", body.Message, tt.message)
			}
		})
	}
}

func TestWriteJSON_OmitsExplicitOK(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusOK, map[string]int{"count": 2}); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "{\"count\":2}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	methodNotAllowed("login")(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["message"] != "Method not allowed. Use POST to login." {
		t.Errorf("message = %q", body["message"])
	}
}

func TestErrorStatus(t *testing.T) {
	queryErr := apperrors.NewQueryError("insert", errors.New(`duplicate key value violates unique constraint "users_email_key"`))

	tests := []struct {
		name     string
		err      error
		mutation bool
		status   int
		code     string
		message  string
	}{
		{"validation", apperrors.NewValidationError("page", "Page must be a positive integer"), false, http.StatusBadRequest, "invalid_request", "Page must be a positive integer"},
		{"table not found", fmt.Errorf("lookup: %w", apperrors.ErrTableNotFound), false, http.StatusNotFound, "table_not_found", `Table "orders" not found`},
		{"record not found", apperrors.ErrRecordNotFound, false, http.StatusNotFound, "not_found", "Record not found"},
		{"no fields", apperrors.ErrNoFieldsToUpdate, true, http.StatusBadRequest, "no_fields", "No fields to update"},
		{"bad credentials", apperrors.ErrInvalidCredentials, false, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password"},
		{"query on write", queryErr, true, http.StatusBadRequest, "query_failed", `duplicate key value violates unique constraint "users_email_key"`},
		{"query on read", queryErr, false, http.StatusInternalServerError, "query_failed", `duplicate key value violates unique constraint "users_email_key"`},
		{"unsupported dialect", fmt.Errorf("%w: mongodb", apperrors.ErrUnsupportedDialect), false, http.StatusInternalServerError, "unsupported_dialect", "unsupported database dialect: mongodb"},
		{"unknown", errors.New("dial postgres://u:pw@db/app failed"), false, http.StatusInternalServerError, "internal_error", "dial postgres://u:[REDACTED]@db/app failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message := errorStatus(tt.err, "orders", tt.mutation)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
			if message != tt.message {
				t.Errorf("message = %q, want %q", message, tt.message)
			}
		})
	}
}
