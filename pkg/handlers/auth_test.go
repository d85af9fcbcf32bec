package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
	"github.com/ekaya-inc/ekaya-studio/pkg/services"
)

func newTestAuthMux(t *testing.T) (*http.ServeMux, *auth.SessionManager, string) {
	t.Helper()
	sessions, token := newTestSessions(t)
	authService := services.NewAuthService("admin", "hunter2", sessions, zap.NewNop())
	handler := NewAuthHandler(authService, auth.NewMiddleware(sessions, zap.NewNop()), time.Hour, auth.CookieSettings{Secure: true}, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, sessions, token
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Login_Success(t *testing.T) {
	mux, sessions, _ := newTestAuthMux(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"hunter2"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var response LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.Success || response.Message != "Login successful" {
		t.Errorf("unexpected response: %+v", response)
	}
	if response.User.Username != "admin" {
		t.Errorf("expected user admin, got %q", response.User.Username)
	}

	cookie := findCookie(rec.Result(), auth.SessionCookieName)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie flags: %+v", cookie)
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("expected max age 3600, got %d", cookie.MaxAge)
	}
	if _, err := sessions.Validate(cookie.Value); err != nil {
		t.Errorf("expected a valid session token: %v", err)
	}
}

func TestAuthHandler_Login_Failures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, "Invalid username or password"},
		{"unknown user", `{"username":"root","password":"hunter2"}`, http.StatusUnauthorized, "Invalid username or password"},
		{"missing username", `{"password":"hunter2"}`, http.StatusBadRequest, "Username is required"},
		{"malformed", `{"username":`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _, _ := newTestAuthMux(t)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}

			var response ApiResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Success {
				t.Error("expected success=false")
			}
			if response.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, response.Message)
			}
			if findCookie(rec.Result(), auth.SessionCookieName) != nil {
				t.Error("expected no session cookie")
			}
		})
	}
}

func TestAuthHandler_GetIsNotAllowed(t *testing.T) {
	mux, _, _ := newTestAuthMux(t)

	for path, message := range map[string]string{
		"/auth/login":  "Method not allowed. Use POST to login.",
		"/auth/logout": "Method not allowed. Use POST to logout.",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusMethodNotAllowed, rec.Code)
		}
		var body map[string]string
		_ = json.NewDecoder(rec.Body).Decode(&body)
		if body["message"] != message {
			t.Errorf("%s: expected message %q, got %q", path, message, body["message"])
		}
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	mux, _, _ := newTestAuthMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response ApiResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Message != "Logged out successfully" {
		t.Errorf("unexpected message %q", response.Message)
	}

	cookie := findCookie(rec.Result(), auth.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("expected an expired session cookie, got %+v", cookie)
	}
}

func TestAuthHandler_Session(t *testing.T) {
	mux, _, token := newTestAuthMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, withSessionCookie(httptest.NewRequest(http.MethodGet, "/auth/session", nil), token))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.User.Username != "admin" {
		t.Errorf("expected admin, got %q", response.User.Username)
	}
	if response.ExpiresAt.IsZero() {
		t.Error("expected expiry to be set")
	}
}

func TestAuthHandler_Session_Anonymous(t *testing.T) {
	mux, _, _ := newTestAuthMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, withSessionCookie(httptest.NewRequest(http.MethodGet, "/auth/session", nil), "not-a-token"))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
