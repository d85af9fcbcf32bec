package handlers

import (
	"net/http"

	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
)

// RouteGuard wraps API handlers that may require a session.
type RouteGuard func(http.HandlerFunc) http.HandlerFunc

// NewRouteGuard returns the session check when required is set, otherwise a
// pass-through that still attaches a session when one is present.
func NewRouteGuard(m *auth.Middleware, required bool) RouteGuard {
	if required {
		return m.RequireSession
	}
	return m.OptionalSession
}
