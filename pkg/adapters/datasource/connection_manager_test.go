package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
)

type fakePool struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
	pings   int
}

func (p *fakePool) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	return p.pingErr
}

func (p *fakePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePool) GetType() string { return "fake" }

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePool) setPingErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingErr = err
}

type fakeExecutor struct{}

func (fakeExecutor) Query(ctx context.Context, sqlQuery string, args ...any) (*QueryResult, error) {
	return &QueryResult{}, nil
}

func (fakeExecutor) Exec(ctx context.Context, sqlStatement string, args ...any) (*ExecuteResult, error) {
	return &ExecuteResult{}, nil
}

func (fakeExecutor) QuoteIdentifier(name string) string { return `"` + name + `"` }

// fakeAdapter records every pool it opens.
type fakeAdapter struct {
	mu      sync.Mutex
	pools   []*fakePool
	opens   atomic.Int32
	openErr error

	// gates holds PoolFactory for a connection string until the channel is
	// closed; entered is signalled when the factory starts waiting.
	gates   map[string]chan struct{}
	entered chan string
}

func (a *fakeAdapter) registration() DatasourceAdapterRegistration {
	return DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{Type: DialectSQLite, DisplayName: "Fake"},
		PoolFactory: func(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error) {
			a.opens.Add(1)
			a.mu.Lock()
			gate := a.gates[connString]
			a.mu.Unlock()
			if gate != nil {
				a.entered <- connString
				<-gate
			}
			if a.openErr != nil {
				return nil, a.openErr
			}
			p := &fakePool{}
			a.mu.Lock()
			a.pools = append(a.pools, p)
			a.mu.Unlock()
			return p, nil
		},
		QueryExecutorFactory: func(pool PoolConnector) (QueryExecutor, error) {
			return fakeExecutor{}, nil
		},
	}
}

func (a *fakeAdapter) hold(connString string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gates == nil {
		a.gates = make(map[string]chan struct{})
		a.entered = make(chan string, 1)
	}
	gate := make(chan struct{})
	a.gates[connString] = gate
	return gate
}

func (a *fakeAdapter) pool(i int) *fakePool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pools[i]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, cfg ConnectionManagerConfig) (*ConnectionManager, *fakeAdapter, *fakeClock) {
	t.Helper()
	adapter := &fakeAdapter{}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	cm := NewConnectionManager(cfg, zaptest.NewLogger(t))
	cm.lookup = func(d Dialect) (DatasourceAdapterRegistration, bool) {
		if d != DialectSQLite {
			return DatasourceAdapterRegistration{}, false
		}
		return adapter.registration(), true
	}
	cm.now = clock.Now
	t.Cleanup(func() { cm.Close() })
	return cm, adapter, clock
}

func TestConnectionManager_Resolve_Reuse(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	h1, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	h2, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)

	assert.Same(t, h1, h2, "should reuse same handle")
	assert.Equal(t, DialectSQLite, h1.Dialect)
	assert.Equal(t, "app.db", h1.ConnString)
	assert.Equal(t, int32(1), adapter.opens.Load())

	stats := cm.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectionsByDialect["sqlite"])
}

func TestConnectionManager_Resolve_KeyedByExactString(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	h1, err := cm.Resolve(ctx, "sqlite://app.db")
	require.NoError(t, err)
	h2, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, int32(2), adapter.opens.Load())
}

func TestConnectionManager_Resolve_UnsupportedDialect(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})

	_, err := cm.Resolve(context.Background(), "oracle://scott:tiger@db/orcl")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedDialect)
	assert.NotContains(t, err.Error(), "tiger")
	assert.Equal(t, int32(0), adapter.opens.Load())
}

func TestConnectionManager_Resolve_UnregisteredAdapter(t *testing.T) {
	cm, _, _ := newTestManager(t, ConnectionManagerConfig{})

	_, err := cm.Resolve(context.Background(), "postgres://u:p@localhost/db")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedDialect)
}

func TestConnectionManager_Resolve_OpenFailure(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	adapter.openErr = errors.New("unable to open database file")

	_, err := cm.Resolve(context.Background(), "missing.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to open database file")
	assert.Equal(t, int32(1), adapter.opens.Load(), "permanent errors are not retried")
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestConnectionManager_EvictsLeastRecentlyUsed(t *testing.T) {
	cm, adapter, clock := newTestManager(t, ConnectionManagerConfig{MaxConnections: 2})
	ctx := context.Background()

	for _, key := range []string{"a.db", "b.db", "a.db", "c.db"} {
		// Touching a.db again makes b.db the least recently used
		h, err := cm.Resolve(ctx, key)
		require.NoError(t, err)
		h.Release()
		clock.Advance(time.Second)
	}

	stats := cm.GetStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.False(t, adapter.pool(0).isClosed(), "a.db was used recently")
	assert.True(t, adapter.pool(1).isClosed(), "b.db should be evicted")
}

func TestConnectionManager_Evict(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	h1, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	h1.Release()

	assert.True(t, cm.Evict("app.db"))
	assert.False(t, cm.Evict("app.db"), "second evict is a no-op")
	assert.True(t, adapter.pool(0).isClosed())

	h2, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
}

func TestConnectionManager_HealthCheck_RecreatesUnhealthyHandle(t *testing.T) {
	cm, adapter, clock := newTestManager(t, ConnectionManagerConfig{HealthCheckInterval: time.Minute})
	ctx := context.Background()

	h1, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	h1.Release()

	// Within the interval no ping happens
	h, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	h.Release()
	assert.Equal(t, 0, adapter.pool(0).pings)

	adapter.pool(0).setPingErr(errors.New("database is closed"))
	clock.Advance(2 * time.Minute)

	h2, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.True(t, adapter.pool(0).isClosed())
	assert.Equal(t, int32(2), adapter.opens.Load())
}

func TestConnectionManager_HealthCheck_KeepsHealthyHandle(t *testing.T) {
	cm, adapter, clock := newTestManager(t, ConnectionManagerConfig{HealthCheckInterval: time.Minute})
	ctx := context.Background()

	h1, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	h2, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, adapter.pool(0).pings)
}

func TestConnectionManager_PerformCleanup(t *testing.T) {
	cm, adapter, clock := newTestManager(t, ConnectionManagerConfig{TTLMinutes: 5})
	ctx := context.Background()

	old, err := cm.Resolve(ctx, "old.db")
	require.NoError(t, err)
	old.Release()
	clock.Advance(4 * time.Minute)
	fresh, err := cm.Resolve(ctx, "fresh.db")
	require.NoError(t, err)
	fresh.Release()
	clock.Advance(2 * time.Minute)

	cm.performCleanup()

	stats := cm.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 120, stats.OldestIdleSeconds)
	assert.True(t, adapter.pool(0).isClosed())
	assert.False(t, adapter.pool(1).isClosed())
}

func TestConnectionManager_ConcurrentResolve(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	const workers = 16
	handles := make([]*Handle, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cm.Resolve(ctx, "shared.db")
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), adapter.opens.Load(), "double-checked creation opens one pool")
	for i := range handles {
		require.NotNil(t, handles[i])
		assert.Equal(t, fmt.Sprintf("%p", handles[0]), fmt.Sprintf("%p", handles[i]))
	}
}

func TestConnectionManager_Close(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	h, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)
	h.Release()

	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close(), "close is idempotent")
	assert.True(t, adapter.pool(0).isClosed())

	_, err = cm.Resolve(ctx, "app.db")
	assert.Error(t, err)
}

func TestNewConnectionManager_Defaults(t *testing.T) {
	cm := NewConnectionManager(ConnectionManagerConfig{}, zap.NewNop())
	defer cm.Close()

	stats := cm.GetStats()
	assert.Equal(t, DefaultMaxConnections, stats.MaxConnections)
	assert.Equal(t, DefaultConnectionTTLMinutes, stats.TTLMinutes)
	assert.Equal(t, DefaultHealthCheckInterval, cm.healthInterval)
}

func TestConnectionManager_EvictionWaitsForInFlightRequests(t *testing.T) {
	cm, adapter, clock := newTestManager(t, ConnectionManagerConfig{MaxConnections: 1})
	ctx := context.Background()

	a, err := cm.Resolve(ctx, "a.db")
	require.NoError(t, err)
	clock.Advance(time.Second)

	b, err := cm.Resolve(ctx, "b.db")
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, 1, cm.GetStats().TotalConnections)
	assert.False(t, adapter.pool(0).isClosed(), "a.db is still leased")

	a.Release()
	assert.True(t, adapter.pool(0).isClosed(), "last release closes the evicted pool")
	a.Release()
}

func TestConnectionManager_EvictPrefersIdleHandles(t *testing.T) {
	cm, adapter, clock := newTestManager(t, ConnectionManagerConfig{MaxConnections: 2})
	ctx := context.Background()

	busy, err := cm.Resolve(ctx, "busy.db")
	require.NoError(t, err)
	defer busy.Release()
	clock.Advance(time.Second)

	idle, err := cm.Resolve(ctx, "idle.db")
	require.NoError(t, err)
	idle.Release()
	clock.Advance(time.Second)

	c, err := cm.Resolve(ctx, "c.db")
	require.NoError(t, err)
	defer c.Release()

	assert.False(t, adapter.pool(0).isClosed())
	assert.True(t, adapter.pool(1).isClosed(), "the idle handle goes first even though busy.db is older")
}

func TestConnectionManager_EvictAndCloseDeferWhileLeased(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	h, err := cm.Resolve(ctx, "app.db")
	require.NoError(t, err)

	assert.True(t, cm.Evict("app.db"))
	assert.False(t, adapter.pool(0).isClosed())
	assert.Equal(t, 0, cm.GetStats().TotalConnections)

	other, err := cm.Resolve(ctx, "other.db")
	require.NoError(t, err)
	require.NoError(t, cm.Close())
	assert.False(t, adapter.pool(1).isClosed())

	h.Release()
	other.Release()
	assert.True(t, adapter.pool(0).isClosed())
	assert.True(t, adapter.pool(1).isClosed())
}

func TestConnectionManager_SlowOpenDoesNotBlockOtherStrings(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})
	ctx := context.Background()

	fast, err := cm.Resolve(ctx, "fast.db")
	require.NoError(t, err)
	fast.Release()

	gate := adapter.hold("slow.db")
	slowDone := make(chan error, 1)
	go func() {
		h, err := cm.Resolve(ctx, "slow.db")
		h.Release()
		slowDone <- err
	}()
	require.Equal(t, "slow.db", <-adapter.entered)

	resolved := make(chan error, 2)
	go func() {
		for _, key := range []string{"fast.db", "new.db"} {
			h, err := cm.Resolve(ctx, key)
			h.Release()
			resolved <- err
		}
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-resolved:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("resolve blocked behind a slow connection open")
		}
	}
	assert.Equal(t, 2, cm.GetStats().TotalConnections, "slow.db is not registered yet")

	close(gate)
	require.NoError(t, <-slowDone)
}

func TestConnectionManager_WaiterCancellationDoesNotAbortSharedOpen(t *testing.T) {
	cm, adapter, _ := newTestManager(t, ConnectionManagerConfig{})

	gate := adapter.hold("slow.db")
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cm.Resolve(ctx, "slow.db")
		first <- err
	}()
	require.Equal(t, "slow.db", <-adapter.entered)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	second := make(chan error, 1)
	go func() {
		h, err := cm.Resolve(context.Background(), "slow.db")
		h.Release()
		second <- err
	}()
	close(gate)

	require.NoError(t, <-second)
	assert.Equal(t, int32(1), adapter.opens.Load(), "the cancelled caller's open is reused")
}
