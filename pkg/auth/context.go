package auth

import (
	"context"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// GetUserFromContext returns the session user, or the zero User when the
// request is not authenticated.
func GetUserFromContext(ctx context.Context) models.User {
	session, ok := GetSession(ctx)
	if !ok {
		return models.User{}
	}
	return session.User()
}

// RequireUserFromContext returns the session user or ErrInvalidSession.
func RequireUserFromContext(ctx context.Context) (models.User, error) {
	session, ok := GetSession(ctx)
	if !ok || session.UserID == "" {
		return models.User{}, apperrors.ErrInvalidSession
	}
	return session.User(), nil
}
