package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// PoolConnector abstracts connection pool operations across
// PostgreSQL (pgxpool) and database/sql based drivers.
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string
}

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        Dialect `json:"type"`
	DisplayName string  `json:"display_name"` // "PostgreSQL", "MySQL / MariaDB"
	Description string  `json:"description"`
}

// DatasourceAdapterRegistration contains info + factories for one dialect.
// PoolFactory opens and verifies a pool; the other factories borrow it.
type DatasourceAdapterRegistration struct {
	Info                    DatasourceAdapterInfo
	PoolFactory             func(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error)
	QueryExecutorFactory    func(pool PoolConnector) (QueryExecutor, error)
	SchemaDiscovererFactory func(pool PoolConnector, logger *zap.Logger) (SchemaDiscoverer, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Dialect]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetRegistration returns the registration for a dialect.
func GetRegistration(d Dialect) (DatasourceAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[d]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(d Dialect) bool {
	_, ok := GetRegistration(d)
	return ok
}
