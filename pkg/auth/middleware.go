package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates token checks to SessionManager.
type Middleware struct {
	sessions *SessionManager
	logger   *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(sessions *SessionManager, logger *zap.Logger) *Middleware {
	return &Middleware{
		sessions: sessions,
		logger:   logger,
	}
}

// RequireSession rejects requests without a valid session with 401 JSON.
// The verified session and token are stored in the request context.
func (m *Middleware) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, token, err := m.sessions.ValidateRequest(r)
		if err != nil {
			m.logger.Debug("Unauthenticated request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("reason", err.Error()))
			m.unauthorized(w, "Authentication required")
			return
		}

		next(w, r.WithContext(WithSession(r.Context(), session, token)))
	}
}

// OptionalSession attaches a valid session to the context when present and
// never rejects the request.
func (m *Middleware) OptionalSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session, token, err := m.sessions.ValidateRequest(r); err == nil {
			r = r.WithContext(WithSession(r.Context(), session, token))
		}
		next(w, r)
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "unauthorized",
		"message": message,
	})
}
