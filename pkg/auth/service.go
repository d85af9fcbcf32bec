package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// DefaultSessionTTL is the lifetime of a session token.
const DefaultSessionTTL = 24 * time.Hour

// Common authentication errors.
var (
	ErrMissingSession    = errors.New("missing session")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
)

// SessionManager signs and verifies HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewSessionManager creates a session manager. When secret is empty a random
// per-process secret is generated, so sessions do not survive a restart.
func NewSessionManager(secret string, ttl time.Duration, logger *zap.Logger) (*SessionManager, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	key := []byte(secret)
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		key = []byte(hex.EncodeToString(buf))
		logger.Warn("SESSION_SECRET is not set; using a random per-process secret. Sessions will not survive a restart.")
	}

	return &SessionManager{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Secret returns the signing secret. The connection cookie store derives
// its keys from it.
func (m *SessionManager) Secret() []byte {
	return m.secret
}

// TTL returns the session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a session token for user.
func (m *SessionManager) Issue(user models.User) (string, *models.SessionData, error) {
	issuedAt := m.now().Truncate(time.Second)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
		},
		Username: user.Username,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	return token, claims.SessionData(), nil
}

// Validate verifies the signature, the algorithm and the expiry of token.
// Any failure is reported as ErrInvalidSession.
func (m *SessionManager) Validate(token string) (*models.SessionData, error) {
	if token == "" {
		return nil, ErrMissingSession
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		m.logger.Debug("Session token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperrors.ErrInvalidSession)
	}

	return claims.SessionData(), nil
}

// ValidateRequest extracts and verifies the session token of a request.
// It checks for the token in:
//  1. Cookie named admin_session (browser clients)
//  2. Authorization header with "Bearer" scheme (API and MCP clients)
func (m *SessionManager) ValidateRequest(r *http.Request) (*models.SessionData, string, error) {
	token, err := SessionTokenFromRequest(r)
	if err != nil {
		return nil, "", err
	}
	session, err := m.Validate(token)
	if err != nil {
		return nil, "", err
	}
	return session, token, nil
}

// SessionTokenFromRequest returns the raw token from the session cookie or
// the Authorization header.
func SessionTokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingSession
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrInvalidAuthFormat
	}
	return parts[1], nil
}
