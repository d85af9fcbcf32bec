package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource/mysql"    // Register MySQL adapter
	_ "github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource/postgres" // Register PostgreSQL adapter
	_ "github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource/sqlite"   // Register SQLite adapter
	"github.com/ekaya-inc/ekaya-studio/pkg/auth"
	"github.com/ekaya-inc/ekaya-studio/pkg/config"
	"github.com/ekaya-inc/ekaya-studio/pkg/handlers"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/mcp"
	"github.com/ekaya-inc/ekaya-studio/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-studio/pkg/middleware"
	"github.com/ekaya-inc/ekaya-studio/pkg/services"
	sqlaudit "github.com/ekaya-inc/ekaya-studio/pkg/sql"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin panel HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, Version)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServer wires every component and serves until ctx is cancelled.
func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("introspection_mode", cfg.Introspection.Mode),
		zap.String("injection_check", cfg.Security.InjectionCheck),
		zap.Bool("require_api_session", cfg.Auth.RequireAPISession),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled),
	)

	handler, cleanup, err := buildHandler(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		tlsEnabled := cfg.TLSCertPath != ""
		logger.Info("Starting ekaya-studio",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", tlsEnabled),
		)
		color.Green("ekaya-studio listening on %s", cfg.BaseURL)

		if tlsEnabled {
			serveErr <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("Server exited")
	return nil
}

// buildHandler assembles the HTTP surface. The returned cleanup closes every
// open datasource handle.
func buildHandler(cfg *config.Config, logger *zap.Logger) (http.Handler, func(), error) {
	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:          cfg.Datasource.ConnectionTTLMinutes,
		MaxConnections:      cfg.Datasource.MaxConnections,
		PoolMaxConns:        cfg.Datasource.PoolMaxConns,
		PoolMinConns:        cfg.Datasource.PoolMinConns,
		HealthCheckInterval: time.Duration(cfg.Datasource.HealthCheckIntervalSeconds) * time.Second,
	}, logger)
	cleanup := func() {
		if err := manager.Close(); err != nil {
			logger.Error("Failed to close connection manager", zap.Error(err))
		}
	}

	introspector, err := services.NewSchemaIntrospector(cfg.Introspection, manager, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create introspector: %w", err)
	}
	cacheTTL := time.Duration(cfg.Introspection.CacheTTLSeconds) * time.Second
	tableService := services.NewTableService(introspector, cacheTTL, logger)
	auditor := sqlaudit.NewInjectionAuditor(cfg.Security.InjectionCheck, logger)
	recordService := services.NewRecordService(tableService, manager, auditor, logger)

	sessionTTL := cfg.Auth.SessionTTL()
	sessions, err := auth.NewSessionManager(cfg.Auth.SessionSecret, sessionTTL, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	authService := services.NewAuthService(cfg.Auth.Username, cfg.Auth.Password, sessions, logger)

	cookieSettings := auth.DeriveCookieSettings(cfg.BaseURL, cfg.Auth.CookieDomain, cfg.IsProduction())
	connStore := auth.NewConnectionStore(sessions.Secret(), int(sessionTTL.Seconds()), cookieSettings)
	authMiddleware := auth.NewMiddleware(sessions, logger)
	guard := handlers.NewRouteGuard(authMiddleware, cfg.Auth.RequireAPISession)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, manager, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(authService, authMiddleware, sessionTTL, cookieSettings, logger).RegisterRoutes(mux)
	handlers.NewConnectionHandler(manager, connStore, tableService, logger).RegisterRoutes(mux, guard)
	handlers.NewTablesHandler(tableService, recordService, connStore, logger).RegisterRoutes(mux, guard)

	if cfg.MCP.Enabled {
		deps := &tools.RecordToolDeps{
			Tables:  tableService,
			Records: recordService,
			Logger:  logger,
		}
		if cfg.MCP.RedactSensitive {
			deps.Redactor = tools.NewSensitiveDetector()
		}
		mcpServer := mcp.NewStudioServer(cfg.Version, deps, manager, logger)
		handlers.NewMCPHandler(mcpServer, connStore, logger).RegisterRoutes(mux, guard)
	}

	if ui := newUIHandler(cfg.UI.Dir); ui != nil {
		mux.Handle("/", ui)
	} else {
		logger.Info("UI bundle not found; serving API only", zap.String("dir", cfg.UI.Dir))
	}

	var handler http.Handler = mux
	handler = middleware.RouteGate(sessions, middleware.RouteGateConfig{
		ProtectedPrefixes: cfg.Auth.ProtectedPrefixes,
		LoginPath:         cfg.Auth.LoginPath,
		HomePath:          cfg.Auth.HomePath,
	}, logger)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	return handler, cleanup, nil
}

// newUIHandler serves the static bundle in dir, falling back to index.html
// for client-side routes. Returns nil when dir has no index.html.
func newUIHandler(dir string) http.Handler {
	if dir == "" {
		return nil
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return nil
	}

	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + strings.TrimPrefix(r.URL.Path, "/"))
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean))); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		if filepath.Ext(clean) != "" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}
