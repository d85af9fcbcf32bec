// Package auth issues and verifies admin session tokens and keeps the
// per-browser connection context in an encrypted cookie.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// SessionKey is the context key for the verified session.
	SessionKey contextKey = "session"
	// TokenKey is the context key for the raw session token.
	TokenKey contextKey = "token"
)

// SessionClaims is the payload of a session token: sub, iat and exp from the
// registered claims plus the username.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// SessionData converts verified claims into the session model.
func (c *SessionClaims) SessionData() *models.SessionData {
	s := &models.SessionData{
		UserID:   c.Subject,
		Username: c.Username,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

// WithSession stores a verified session and its token in ctx.
func WithSession(ctx context.Context, session *models.SessionData, token string) context.Context {
	ctx = context.WithValue(ctx, SessionKey, session)
	return context.WithValue(ctx, TokenKey, token)
}

// GetSession retrieves the verified session from the request context.
// Returns nil and false if the request is not authenticated.
func GetSession(ctx context.Context) (*models.SessionData, bool) {
	session, ok := ctx.Value(SessionKey).(*models.SessionData)
	return session, ok && session != nil
}

// GetToken retrieves the raw session token from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
