package datasource

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/config"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
)

// Dialect identifies the SQL flavor behind a connection string.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

const sqliteScheme = "sqlite://"

// DetectDialect classifies a connection string by its scheme or file suffix.
// Schemes and suffixes match case-sensitively.
func DetectDialect(connString string) (Dialect, error) {
	s := strings.TrimSpace(connString)

	switch {
	case strings.HasPrefix(s, "postgres://"), strings.HasPrefix(s, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(s, "mysql://"), strings.HasPrefix(s, "mariadb://"):
		return DialectMySQL, nil
	case strings.HasPrefix(s, sqliteScheme),
		strings.HasSuffix(s, ".sqlite"),
		strings.HasSuffix(s, ".db"):
		return DialectSQLite, nil
	}

	return "", fmt.Errorf("%w for URL: %s", apperrors.ErrUnsupportedDialect, logging.SanitizeConnectionString(s))
}

// PrismaProvider returns the provider name used in a Prisma datasource block.
func (d Dialect) PrismaProvider() string {
	switch d {
	case DialectPostgres:
		return "postgresql"
	default:
		return string(d)
	}
}

// PlaceholderFormat returns the squirrel bind variable style for the dialect.
func (d Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// SupportsReturning reports whether INSERT/UPDATE/DELETE ... RETURNING * is available.
// SQLite has it since 3.35, which every bundled go-sqlite3 release ships.
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres || d == DialectSQLite
}

// StripSQLitePrefix turns "sqlite://path" into a plain file path.
func StripSQLitePrefix(connString string) string {
	s := strings.TrimSpace(connString)
	if len(s) >= len(sqliteScheme) && strings.EqualFold(s[:len(sqliteScheme)], sqliteScheme) {
		return s[len(sqliteScheme):]
	}
	return s
}

// ConnectionCredentials are discrete connection details entered in a form.
type ConnectionCredentials struct {
	Type     string `json:"type"` // postgresql, postgres, mysql, mariadb, sqlite
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	Path     string `json:"path"` // SQLite file
}

// DefaultPort returns the conventional port for a credential type.
func DefaultPort(kind string) int {
	switch strings.ToLower(kind) {
	case "mysql", "mariadb":
		return 3306
	case "sqlite":
		return 0
	default:
		return 5432
	}
}

// BuildConnectionURL assembles a connection string from discrete credentials.
// User and password are URL-escaped. Loopback hosts are rewritten when the
// server runs inside Docker.
func BuildConnectionURL(creds ConnectionCredentials) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(creds.Type))

	if kind == "sqlite" {
		path := strings.TrimSpace(creds.Path)
		if path == "" {
			path = strings.TrimSpace(creds.Database)
		}
		if path == "" {
			return "", apperrors.NewValidationError("path", "Database file path is required")
		}
		if _, err := DetectDialect(path); err != nil {
			return sqliteScheme + path, nil
		}
		return path, nil
	}

	var scheme string
	switch kind {
	case "postgresql", "postgres":
		scheme = "postgresql"
	case "mysql", "mariadb":
		scheme = "mysql"
	default:
		return "", apperrors.NewValidationError("type", "Unsupported database type: %s", creds.Type)
	}

	switch {
	case strings.TrimSpace(creds.Host) == "":
		return "", apperrors.NewValidationError("host", "Host is required")
	case creds.User == "":
		return "", apperrors.NewValidationError("user", "User is required")
	case strings.TrimSpace(creds.Database) == "":
		return "", apperrors.NewValidationError("database", "Database name is required")
	case creds.Port < 0:
		return "", apperrors.NewValidationError("port", "Port must be a positive number")
	}

	port := creds.Port
	if port == 0 {
		port = DefaultPort(kind)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   url.UserPassword(creds.User, creds.Password),
		Host:   net.JoinHostPort(config.ResolveHostForDocker(strings.TrimSpace(creds.Host)), strconv.Itoa(port)),
		Path:   "/" + strings.TrimSpace(creds.Database),
	}
	if creds.Password == "" {
		u.User = url.User(creds.User)
	}
	return u.String(), nil
}
