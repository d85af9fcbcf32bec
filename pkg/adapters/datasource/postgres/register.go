package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        datasource.DialectPostgres,
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		PoolFactory: func(ctx context.Context, connString string, cfg datasource.ConnectionManagerConfig) (datasource.PoolConnector, error) {
			return OpenPool(ctx, connString, cfg)
		},
		QueryExecutorFactory: func(pool datasource.PoolConnector) (datasource.QueryExecutor, error) {
			return NewQueryExecutor(pool)
		},
		SchemaDiscovererFactory: func(pool datasource.PoolConnector, logger *zap.Logger) (datasource.SchemaDiscoverer, error) {
			return NewSchemaDiscoverer(pool, logger)
		},
	})
}
