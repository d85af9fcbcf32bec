package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
)

func newTestAuthService(t *testing.T) (AuthService, *auth.SessionManager) {
	t.Helper()
	sessions, err := auth.NewSessionManager("test-secret", time.Hour, zap.NewNop())
	require.NoError(t, err)
	return NewAuthService(" admin ", "hunter2", sessions, zap.NewNop()), sessions
}

func TestAuthService_Login(t *testing.T) {
	svc, sessions := newTestAuthService(t)

	res, err := svc.Login(context.Background(), "admin", " hunter2 ")
	require.NoError(t, err)

	assert.Equal(t, AdminUserID, res.User.ID)
	assert.Equal(t, "admin", res.User.Username)
	require.NotEmpty(t, res.Token)

	session, err := sessions.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", session.Username)
	assert.Equal(t, res.Session.ExpiresAt.Unix(), session.ExpiresAt.Unix())
}

func TestAuthService_Login_Invalid(t *testing.T) {
	svc, _ := newTestAuthService(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "hunter3"},
		{"wrong username", "root", "hunter2"},
		{"whitespace only", "  ", "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		})
	}
}

func TestAuthService_Login_Required(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Login(context.Background(), "", "hunter2")
	require.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "Username is required")

	_, err = svc.Login(context.Background(), "admin", "")
	require.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "Password is required")
}
