package models

import "time"

// User is the authenticated admin.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SessionData is the verified content of a session token.
type SessionData struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// User returns the session's user.
func (s *SessionData) User() User {
	return User{ID: s.UserID, Username: s.Username}
}
