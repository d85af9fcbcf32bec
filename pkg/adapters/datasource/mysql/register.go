package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource/sqldb"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        datasource.DialectMySQL,
			DisplayName: "MySQL / MariaDB",
			Description: "Connect to MySQL 5.7+ or MariaDB 10.5+",
		},
		PoolFactory: func(ctx context.Context, connString string, cfg datasource.ConnectionManagerConfig) (datasource.PoolConnector, error) {
			dsn, err := ToDSN(connString)
			if err != nil {
				return nil, err
			}
			return datasource.OpenSQLDB(ctx, "mysql", dsn, datasource.DialectMySQL, cfg)
		},
		QueryExecutorFactory: func(pool datasource.PoolConnector) (datasource.QueryExecutor, error) {
			return sqldb.NewQueryExecutor(pool, sqldb.QuoteBacktick)
		},
		SchemaDiscovererFactory: func(pool datasource.PoolConnector, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
			return NewSchemaDiscoverer(pool, logger)
		},
	})
}
