package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// SessionValidator checks the session carried by a request.
// *auth.SessionManager implements it.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (*models.SessionData, string, error)
}

// RouteGateConfig names the page paths the gate redirects between.
type RouteGateConfig struct {
	ProtectedPrefixes []string
	LoginPath         string
	HomePath          string
}

// RouteGate redirects page navigations based on the session:
// protected pages send anonymous users to the login page with a redirect
// parameter, and the login page sends signed-in users home. Every other path
// passes through untouched, so JSON APIs keep answering with 401 bodies.
func RouteGate(sessions SessionValidator, cfg RouteGateConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			switch {
			case cfg.LoginPath != "" && matchesPrefix(path, cfg.LoginPath):
				if _, _, err := sessions.ValidateRequest(r); err == nil && cfg.HomePath != "" {
					http.Redirect(w, r, cfg.HomePath, http.StatusFound)
					return
				}
			case isProtected(path, cfg.ProtectedPrefixes):
				if _, _, err := sessions.ValidateRequest(r); err != nil {
					target := path
					if r.URL.RawQuery != "" {
						target += "?" + r.URL.RawQuery
					}
					if logger != nil {
						logger.Debug("Redirecting anonymous request to login", zap.String("path", path))
					}
					http.Redirect(w, r, cfg.LoginPath+"?redirect="+url.QueryEscape(target), http.StatusFound)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isProtected(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && matchesPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// matchesPrefix matches whole path segments: /dashboard covers
// /dashboard/users but not /dashboards.
func matchesPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return path == "/"
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
