package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/audit"
	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// AdminUserID is the id of the single admin account.
const AdminUserID = "1"

// LoginResult is a successful login.
type LoginResult struct {
	User    models.User
	Token   string
	Session *models.SessionData
}

// AuthService checks admin credentials and issues sessions.
type AuthService interface {
	// Login verifies the credentials and signs a session token.
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

type authService struct {
	username string
	password string
	sessions *auth.SessionManager
	security *audit.SecurityAuditor
}

var _ AuthService = (*authService)(nil)

// NewAuthService creates an AuthService for the configured admin account.
func NewAuthService(username, password string, sessions *auth.SessionManager, logger *zap.Logger) AuthService {
	return &authService{
		username: strings.TrimSpace(username),
		password: strings.TrimSpace(password),
		sessions: sessions,
		security: audit.NewSecurityAuditor(logger),
	}
}

// Login implements AuthService.
func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" {
		return nil, apperrors.NewValidationError("username", "Username is required")
	}
	if password == "" {
		return nil, apperrors.NewValidationError("password", "Password is required")
	}
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	// Evaluate both comparisons so timing does not reveal which one failed.
	userOK := constantTimeEqual(username, s.username)
	passOK := constantTimeEqual(password, s.password)
	if !userOK || !passOK {
		s.security.LogLoginFailure(username)
		return nil, apperrors.ErrInvalidCredentials
	}

	user := models.User{ID: AdminUserID, Username: s.username}
	token, session, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}

	s.security.LogLoginSuccess(user.Username)
	return &LoginResult{User: user, Token: token, Session: session}, nil
}

// constantTimeEqual compares fixed-size digests so input length is not leaked.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
