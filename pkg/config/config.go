package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-studio.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth          AuthConfig          `yaml:"auth"`
	Datasource    DatasourceConfig    `yaml:"datasource"`
	Introspection IntrospectionConfig `yaml:"introspection"`
	Security      SecurityConfig      `yaml:"security"`
	MCP           MCPConfig           `yaml:"mcp"`
	UI            UIConfig            `yaml:"ui"`
}

// AuthConfig holds the admin credential, session signing and route gating settings.
type AuthConfig struct {
	Username string `yaml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
	Password string `yaml:"-" env:"ADMIN_PASSWORD" env-default:"admin123"` // Secret - not in YAML

	// SessionSecret signs session tokens and encrypts the connection cookie.
	// When empty a random per-process secret is generated at startup.
	SessionSecret   string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	SessionTTLHours int    `yaml:"session_ttl_hours" env:"SESSION_TTL_HOURS" env-default:"24"`

	// CookieDomain is the domain for auth cookies (optional).
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN" env-default:""`

	// RequireAPISession rejects /tables, /connection and /mcp calls without a valid session.
	RequireAPISession bool `yaml:"require_api_session" env:"REQUIRE_API_SESSION" env-default:"true"`

	// ProtectedPrefixesStr is a comma-separated list of page prefixes that
	// redirect to LoginPath when no session is present.
	ProtectedPrefixesStr string   `yaml:"protected_prefixes" env:"PROTECTED_PREFIXES" env-default:"/dashboard"`
	ProtectedPrefixes    []string `yaml:"-"`
	LoginPath            string   `yaml:"login_path" env:"LOGIN_PATH" env-default:"/login"`
	HomePath             string   `yaml:"home_path" env:"HOME_PATH" env-default:"/dashboard"`
}

// SessionTTL returns the configured session lifetime.
func (c *AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// DatasourceConfig holds connection registry settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"30"`
	// MaxConnections caps the number of distinct connection strings held open.
	// The least recently used handle is evicted when the cap is reached.
	MaxConnections int `yaml:"max_connections" env:"DATASOURCE_MAX_CONNECTIONS" env-default:"20"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
	// HealthCheckIntervalSeconds is how stale a handle may be before it is pinged on reuse.
	HealthCheckIntervalSeconds int `yaml:"health_check_interval_seconds" env:"DATASOURCE_HEALTH_CHECK_INTERVAL_SECONDS" env-default:"30"`
}

// IntrospectionConfig controls how table metadata is derived.
type IntrospectionConfig struct {
	// Mode is "prisma" (shell out to the Prisma CLI) or "catalog" (query the database catalog).
	Mode string `yaml:"mode" env:"INTROSPECTION_MODE" env-default:"prisma"`
	// Command is the pull command; --schema and --force are appended.
	Command         string `yaml:"command" env:"INTROSPECTION_COMMAND" env-default:"npx prisma db pull"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" env:"INTROSPECTION_TIMEOUT_SECONDS" env-default:"120"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" env:"INTROSPECTION_CACHE_TTL_SECONDS" env-default:"30"`
}

// CommandArgs splits Command into argv form.
func (c *IntrospectionConfig) CommandArgs() []string {
	return strings.Fields(c.Command)
}

// SecurityConfig holds request value auditing settings.
type SecurityConfig struct {
	// InjectionCheck is "off", "warn" or "reject".
	InjectionCheck string `yaml:"injection_check" env:"INJECTION_CHECK" env-default:"warn"`
}

// MCPConfig holds MCP endpoint settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
	// RedactSensitive masks password, token and key columns in MCP tool results.
	RedactSensitive bool `yaml:"redact_sensitive" env:"MCP_REDACT_SENSITIVE" env-default:"true"`
}

// UIConfig points at the prebuilt static UI bundle.
type UIConfig struct {
	Dir string `yaml:"dir" env:"UI_DIR" env-default:"./ui/dist"`
}

// Load reads configuration from path (config.yaml when empty) with environment
// variable overrides. A missing file is not an error: defaults and environment
// variables are used instead. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := &Config{
		Version: version,
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.ProtectedPrefixes = parseList(c.Auth.ProtectedPrefixesStr)
	c.Introspection.Mode = strings.ToLower(strings.TrimSpace(c.Introspection.Mode))
	c.Security.InjectionCheck = strings.ToLower(strings.TrimSpace(c.Security.InjectionCheck))
}

func (c *Config) validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	switch c.Introspection.Mode {
	case "prisma":
		if len(c.Introspection.CommandArgs()) == 0 {
			return fmt.Errorf("introspection.command must not be empty in prisma mode")
		}
	case "catalog":
	default:
		return fmt.Errorf("introspection.mode must be \"prisma\" or \"catalog\", got %q", c.Introspection.Mode)
	}

	switch c.Security.InjectionCheck {
	case "off", "warn", "reject":
	default:
		return fmt.Errorf("security.injection_check must be off, warn or reject, got %q", c.Security.InjectionCheck)
	}

	if c.Auth.SessionTTLHours <= 0 {
		return fmt.Errorf("auth.session_ttl_hours must be positive")
	}

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseList splits a comma-separated value, dropping blanks.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
