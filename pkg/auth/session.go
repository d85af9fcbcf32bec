package auth

import (
	"crypto/sha256"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
)

// ConnectionSessionName is the name of the connection context cookie.
const ConnectionSessionName = "admin_connection"

// Session value keys.
const (
	SessionKeyConnString = "conn"
	SessionKeyDialect    = "dialect"
)

// ErrNoConnection is returned when no connection context is stored.
var ErrNoConnection = errors.New("no connection selected")

// ConnectionStore keeps the selected connection string in a signed and
// encrypted cookie, so it never reaches the browser in clear text.
type ConnectionStore struct {
	store *sessions.CookieStore
}

// NewConnectionStore creates a store keyed from secret. The secret can be any
// passphrase; it is SHA-256 hashed into separate 32-byte signing and
// AES-256 encryption keys.
//
// Security settings:
// - HttpOnly: true (inaccessible to JavaScript)
// - Secure: derived from the base URL
// - SameSite: Lax (sent on top-level navigation back to the panel)
func NewConnectionStore(secret []byte, maxAge int, settings CookieSettings) *ConnectionStore {
	hashKey := sha256.Sum256(append([]byte("connection-sign:"), secret...))
	blockKey := sha256.Sum256(append([]byte("connection-encrypt:"), secret...))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   settings.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &ConnectionStore{store: store}
}

// Get returns the stored connection string and dialect.
func (c *ConnectionStore) Get(r *http.Request) (connString, dialect string, err error) {
	session, err := c.store.Get(r, ConnectionSessionName)
	if err != nil {
		// A cookie signed with another secret decodes as an error; treat it as absent.
		return "", "", ErrNoConnection
	}
	connString, _ = session.Values[SessionKeyConnString].(string)
	if connString == "" {
		return "", "", ErrNoConnection
	}
	dialect, _ = session.Values[SessionKeyDialect].(string)
	return connString, dialect, nil
}

// Save stores connString and dialect in the response cookie.
func (c *ConnectionStore) Save(w http.ResponseWriter, r *http.Request, connString, dialect string) error {
	session, _ := c.store.Get(r, ConnectionSessionName)
	session.Values[SessionKeyConnString] = connString
	session.Values[SessionKeyDialect] = dialect
	return session.Save(r, w)
}

// Clear expires the connection cookie.
func (c *ConnectionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := c.store.Get(r, ConnectionSessionName)
	delete(session.Values, SessionKeyConnString)
	delete(session.Values, SessionKeyDialect)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
