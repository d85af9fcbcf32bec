package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
	"github.com/ekaya-inc/ekaya-studio/pkg/services"
)

// LoginRequest is the POST /auth/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	Success   bool        `json:"success"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// AuthHandler handles login, logout and session lookups.
type AuthHandler struct {
	authService    services.AuthService
	middleware     *auth.Middleware
	sessionTTL     time.Duration
	cookieSettings auth.CookieSettings
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService services.AuthService, middleware *auth.Middleware, sessionTTL time.Duration, cookieSettings auth.CookieSettings, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		middleware:     middleware,
		sessionTTL:     sessionTTL,
		cookieSettings: cookieSettings,
		logger:         logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("GET /auth/login", methodNotAllowed("login"))
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/logout", methodNotAllowed("logout"))
	mux.HandleFunc("GET /auth/session", h.middleware.OptionalSession(h.Session))
}

// Login handles POST /auth/login.
// It verifies the admin credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, false)
		return
	}

	auth.SetSessionCookie(w, result.Token, h.sessionTTL, h.cookieSettings)

	response := LoginResponse{
		Success: true,
		Message: "Login successful",
		User:    result.User,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookieSettings)

	response := ApiResponse{Success: true, Message: "Logged out successfully"}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Session handles GET /auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSession(r.Context())
	if !ok {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Not authenticated"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := SessionResponse{
		Success:   true,
		User:      session.User(),
		ExpiresAt: session.ExpiresAt,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
