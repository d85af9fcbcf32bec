package mysql

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	driver "github.com/go-sql-driver/mysql"
)

const defaultPort = "3306"

// ToDSN converts a mysql:// or mariadb:// URL into a go-sql-driver DSN.
// Timestamps are parsed into time.Time and UPDATE reports matched rows,
// so an update that changes nothing is not mistaken for a missing record.
func ToDSN(connString string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(connString))
	if err != nil {
		return "", fmt.Errorf("invalid mysql URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "mysql" && scheme != "mariadb" {
		return "", fmt.Errorf("invalid mysql URL: unexpected scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid mysql URL: host is required")
	}

	cfg := driver.NewConfig()
	cfg.Net = "tcp"
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	cfg.Addr = net.JoinHostPort(u.Hostname(), port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	cfg.ClientFoundRows = true

	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		switch strings.ToLower(key) {
		case "ssl-mode", "sslmode", "ssl_mode":
			cfg.TLSConfig = tlsConfigForSSLMode(value)
		case "tls":
			cfg.TLSConfig = value
		case "charset":
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params["charset"] = value
		}
	}

	return cfg.FormatDSN(), nil
}

// tlsConfigForSSLMode maps MySQL client ssl-mode values to driver tls names.
func tlsConfigForSSLMode(mode string) string {
	switch strings.ToUpper(mode) {
	case "DISABLED", "DISABLE", "FALSE":
		return "false"
	case "VERIFY_CA", "VERIFY_IDENTITY", "VERIFY-FULL", "TRUE":
		return "true"
	case "REQUIRED", "REQUIRE":
		return "skip-verify"
	default:
		return "preferred"
	}
}
