package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 30
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxConnections       = 20
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
	DefaultHealthCheckInterval  = 30 * time.Second

	healthCheckTimeout = 5 * time.Second
	openTimeout        = 30 * time.Second

	// A freshly opened handle can be evicted again before the caller leases
	// it when many strings race for few slots.
	maxResolveAttempts = 3
)

var errManagerClosed = errors.New("connection manager is closed")

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes          int
	MaxConnections      int
	PoolMaxConns        int32
	PoolMinConns        int32
	HealthCheckInterval time.Duration
}

// Handle is a live connection to one connection string: the pool plus the
// dialect-specific executor and discoverer borrowing it.
//
// Handles returned by Resolve are leased and must be given back with
// Release. An evicted handle keeps its pool open until the last lease ends.
type Handle struct {
	Dialect    Dialect
	ConnString string
	Pool       PoolConnector
	Executor   QueryExecutor
	Discoverer SchemaDiscoverer

	mu          sync.Mutex // guards the fields below
	lastUsed    time.Time
	lastChecked time.Time
	refs        int
	retired     bool
	closed      bool
	logger      *zap.Logger
}

// Release ends a lease taken by Resolve. Safe on nil and on handles that
// were never leased.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if h.refs > 0 {
		h.refs--
	}
	closeNow := h.closableLocked()
	h.mu.Unlock()

	if closeNow {
		h.closePool()
	}
}

// retire marks a handle that the manager no longer tracks. The pool closes
// now if nobody holds a lease, otherwise on the last Release.
func (h *Handle) retire() {
	h.mu.Lock()
	h.retired = true
	closeNow := h.closableLocked()
	h.mu.Unlock()

	if closeNow {
		h.closePool()
	}
}

func (h *Handle) closableLocked() bool {
	if !h.retired || h.refs > 0 || h.closed {
		return false
	}
	h.closed = true
	return true
}

func (h *Handle) closePool() {
	if h.Pool == nil {
		return
	}
	if err := h.Pool.Close(); err != nil && h.logger != nil {
		h.logger.Warn("failed to close connection pool",
			zap.String("dialect", string(h.Dialect)),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

// ConnectionManager owns every open datasource handle, keyed by the exact
// connection string. It verifies stale handles before reuse, closes handles
// idle past the TTL and evicts the least recently used handle at capacity.
//
// Pools are opened outside the manager lock, so a slow or unreachable
// server only delays requests for its own connection string.
type ConnectionManager struct {
	mu             sync.RWMutex
	handles        map[string]*Handle
	opening        singleflight.Group
	cfg            ConnectionManagerConfig
	ttl            time.Duration
	healthInterval time.Duration
	stopped        bool
	stopChan       chan struct{}
	logger         *zap.Logger

	// lookup resolves adapter registrations; replaced in tests.
	lookup func(Dialect) (DatasourceAdapterRegistration, bool)
	now    func() time.Time
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &ConnectionManager{
		handles:        make(map[string]*Handle),
		cfg:            cfg,
		ttl:            time.Duration(cfg.TTLMinutes) * time.Minute,
		healthInterval: cfg.HealthCheckInterval,
		stopChan:       make(chan struct{}),
		logger:         logger.Named("connections"),
		lookup:         GetRegistration,
		now:            time.Now,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// Resolve leases the live handle for connString, creating it on first use.
// Repeated calls with the same string return the same *Handle while it stays
// registered. A handle not verified within the health interval is pinged;
// if the ping fails it is retired and replaced.
//
// Every successful call must be paired with h.Release().
func (m *ConnectionManager) Resolve(ctx context.Context, connString string) (*Handle, error) {
	dialect, err := DetectDialect(connString)
	if err != nil {
		return nil, err
	}
	reg, ok := m.lookup(dialect)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %s", apperrors.ErrUnsupportedDialect, dialect)
	}

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		h, err := m.acquire(connString)
		if err != nil {
			return nil, err
		}
		if h != nil {
			err := m.verify(ctx, h)
			if err == nil {
				return h, nil
			}
			h.Release()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("dialect", string(dialect)),
				zap.String("url", logging.SanitizeConnectionString(connString)),
				zap.String("error", logging.SanitizeError(err)),
			)
			m.removeHandle(connString, h)
		}

		if err := m.open(ctx, connString, dialect, reg); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to connect to %s database: connection evicted before use", dialect)
}

// acquire leases the registered handle for connString, or returns nil when
// none is registered. Leases are taken under the read lock so eviction,
// which needs the write lock, cannot interleave.
func (m *ConnectionManager) acquire(connString string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return nil, errManagerClosed
	}
	h, ok := m.handles[connString]
	if !ok {
		return nil, nil
	}

	h.mu.Lock()
	h.refs++
	h.lastUsed = m.now()
	h.mu.Unlock()
	return h, nil
}

// verify pings h when it was last checked longer ago than the health interval.
func (m *ConnectionManager) verify(ctx context.Context, h *Handle) error {
	now := m.now()
	h.mu.Lock()
	due := now.Sub(h.lastChecked) > m.healthInterval
	h.mu.Unlock()
	if !due {
		return nil
	}

	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := retry.Do(healthCtx, retry.HealthCheckConfig(), func() error {
		return h.Pool.Ping(healthCtx)
	}); err != nil {
		return err
	}

	h.mu.Lock()
	h.lastChecked = now
	h.mu.Unlock()
	return nil
}

// open creates and registers the handle for connString. Concurrent callers
// for the same string share one attempt; it runs detached from any single
// caller's cancellation, while each caller still stops waiting on its own ctx.
func (m *ConnectionManager) open(ctx context.Context, connString string, dialect Dialect, reg DatasourceAdapterRegistration) error {
	ch := m.opening.DoChan(connString, func() (any, error) {
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
		defer cancel()
		return nil, m.openHandle(openCtx, connString, dialect, reg)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openHandle opens a pool with retry logic and registers the handle.
// No manager lock is held while dialing.
func (m *ConnectionManager) openHandle(ctx context.Context, connString string, dialect Dialect, reg DatasourceAdapterRegistration) error {
	m.mu.RLock()
	_, exists := m.handles[connString]
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return errManagerClosed
	}
	if exists {
		return nil
	}

	// Create pool with retry logic for transient failures
	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return reg.PoolFactory(ctx, connString, m.cfg)
	})
	if err != nil {
		m.logger.Error("failed to open connection after retries",
			zap.String("dialect", string(dialect)),
			zap.String("url", logging.SanitizeConnectionString(connString)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}

	executor, err := reg.QueryExecutorFactory(pool)
	if err != nil {
		pool.Close()
		return fmt.Errorf("failed to create query executor: %w", err)
	}

	var discoverer SchemaDiscoverer
	if reg.SchemaDiscovererFactory != nil {
		discoverer, err = reg.SchemaDiscovererFactory(pool, m.logger)
		if err != nil {
			pool.Close()
			return fmt.Errorf("failed to create schema discoverer: %w", err)
		}
	}

	now := m.now()
	h := &Handle{
		Dialect:     dialect,
		ConnString:  connString,
		Pool:        pool,
		Executor:    executor,
		Discoverer:  discoverer,
		lastUsed:    now,
		lastChecked: now,
		logger:      m.logger,
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		pool.Close()
		return errManagerClosed
	}
	var victim *Handle
	if len(m.handles) >= m.cfg.MaxConnections {
		victim = m.evictLeastRecentlyUsed()
	}
	m.handles[connString] = h
	total := len(m.handles)
	m.mu.Unlock()

	if victim != nil {
		victim.retire()
	}

	m.logger.Info("opened datasource connection",
		zap.String("dialect", string(dialect)),
		zap.String("url", logging.SanitizeConnectionString(connString)),
		zap.Int("totalConnections", total),
	)
	return nil
}

// evictLeastRecentlyUsed unregisters the handle with the oldest lastUsed,
// preferring handles no request holds. The caller retires the returned
// handle after releasing the lock. Caller must hold m.mu write lock.
func (m *ConnectionManager) evictLeastRecentlyUsed() *Handle {
	var (
		victim     *Handle
		victimIdle bool
		oldest     time.Time
	)

	for _, h := range m.handles {
		h.mu.Lock()
		used, idle := h.lastUsed, h.refs == 0
		h.mu.Unlock()

		if victim == nil || (idle && !victimIdle) || (idle == victimIdle && used.Before(oldest)) {
			victim, victimIdle, oldest = h, idle, used
		}
	}

	if victim == nil {
		return nil
	}

	delete(m.handles, victim.ConnString)
	m.logger.Info("evicted least recently used connection",
		zap.String("dialect", string(victim.Dialect)),
		zap.String("url", logging.SanitizeConnectionString(victim.ConnString)),
		zap.Duration("idleTime", m.now().Sub(oldest)),
		zap.Bool("inUse", !victimIdle),
		zap.Int("max", m.cfg.MaxConnections),
	)
	return victim
}

// Evict forgets the handle for connString. Its pool closes once in-flight
// requests release it; later resolutions open a fresh handle.
// Returns false when no handle was registered.
func (m *ConnectionManager) Evict(connString string) bool {
	m.mu.Lock()
	h, exists := m.handles[connString]
	if exists {
		delete(m.handles, connString)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}
	h.retire()
	m.logger.Debug("evicted connection",
		zap.String("url", logging.SanitizeConnectionString(connString)),
	)
	return true
}

// removeHandle retires h if it is still the registered handle for key.
func (m *ConnectionManager) removeHandle(key string, h *Handle) {
	m.mu.Lock()
	current, exists := m.handles[key]
	if exists && current == h {
		delete(m.handles, key)
	}
	m.mu.Unlock()

	if exists && current == h {
		h.retire()
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup retires handles that haven't been used within TTL.
// Lock ordering: manager lock, then handle lock.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	now := m.now()
	var expired []*Handle

	for key, h := range m.handles {
		h.mu.Lock()
		idleTime := now.Sub(h.lastUsed)
		h.mu.Unlock()

		if idleTime > m.ttl {
			expired = append(expired, h)
			delete(m.handles, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("url", logging.SanitizeConnectionString(key)),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}
	remaining := len(m.handles)
	m.mu.Unlock()

	for _, h := range expired {
		h.retire()
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", remaining),
		)
	}
}

// Close retires all handles and stops the cleanup goroutine. Handles still
// leased close on their last Release.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	handles := m.handles
	m.handles = make(map[string]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.retire()
	}
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	stats := ConnectionStats{
		TotalConnections:     len(m.handles),
		MaxConnections:       m.cfg.MaxConnections,
		TTLMinutes:           int(m.ttl.Minutes()),
		ConnectionsByDialect: make(map[string]int),
		OldestIdleSeconds:    0,
	}

	for _, h := range m.handles {
		stats.ConnectionsByDialect[string(h.Dialect)]++

		h.mu.Lock()
		idleSeconds := int(now.Sub(h.lastUsed).Seconds())
		inUse := h.refs > 0
		h.mu.Unlock()
		if inUse {
			stats.InUseConnections++
		}
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections     int            `json:"total_connections"`
	InUseConnections     int            `json:"in_use_connections"`
	MaxConnections       int            `json:"max_connections"`
	TTLMinutes           int            `json:"ttl_minutes"`
	ConnectionsByDialect map[string]int `json:"connections_by_dialect"`
	OldestIdleSeconds    int            `json:"oldest_idle_seconds"`
}
