package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

// OpenPool creates a pgx pool for connString and verifies it reaches the
// database named in the URL.
func OpenPool(ctx context.Context, connString string, cfg datasource.ConnectionManagerConfig) (datasource.PoolConnector, error) {
	connector, err := datasource.CreatePostgresPool(ctx, connString, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	pool, err := datasource.GetPostgresPool(connector)
	if err != nil {
		connector.Close()
		return nil, err
	}

	if err := TestConnection(ctx, pool, expectedDatabase(connString)); err != nil {
		connector.Close()
		return nil, err
	}

	return connector, nil
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Database access (simple query)
// 2. Correct database name, when one is expected
func TestConnection(ctx context.Context, pool *pgxpool.Pool, expectedDB string) error {
	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	if expectedDB == "" {
		return nil
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	if !strings.EqualFold(currentDB, expectedDB) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", expectedDB, currentDB)
	}

	return nil
}

// expectedDatabase returns the database name from a postgres URL path.
func expectedDatabase(connString string) string {
	u, err := url.Parse(connString)
	if err != nil {
		return ""
	}
	name, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return ""
	}
	return name
}
