package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource/sqldb"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        datasource.DialectSQLite,
			DisplayName: "SQLite",
			Description: "Open a local SQLite 3 database file",
		},
		PoolFactory: func(ctx context.Context, connString string, cfg datasource.ConnectionManagerConfig) (datasource.PoolConnector, error) {
			return datasource.OpenSQLDB(ctx, "sqlite3", ToDSN(connString), datasource.DialectSQLite, cfg)
		},
		QueryExecutorFactory: func(pool datasource.PoolConnector) (datasource.QueryExecutor, error) {
			return sqldb.NewQueryExecutor(pool, sqldb.QuoteDouble)
		},
		SchemaDiscovererFactory: func(pool datasource.PoolConnector, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
			return NewSchemaDiscoverer(pool, logger)
		},
	})
}
