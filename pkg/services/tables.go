package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/logging"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// TableService serves introspected table metadata.
type TableService interface {
	// ListTables returns the metadata of every table behind connString.
	ListTables(ctx context.Context, connString string) ([]models.TableMeta, error)

	// GetTableMeta returns one table. Unknown tables yield ErrTableNotFound.
	GetTableMeta(ctx context.Context, connString, table string) (*models.TableMeta, error)

	// Invalidate drops cached metadata for connString.
	Invalidate(connString string)
}

// sharedIntrospectionTimeout bounds a detached introspection run. The prisma
// introspector applies its own, usually shorter, configured timeout inside it.
const sharedIntrospectionTimeout = 10 * time.Minute

type cachedTables struct {
	tables    []models.TableMeta
	fetchedAt time.Time
}

type tableService struct {
	introspector SchemaIntrospector
	ttl          time.Duration
	now          func() time.Time
	logger       *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedTables // keyed by the exact connection string
	group singleflight.Group
}

var _ TableService = (*tableService)(nil)

// NewTableService creates a metadata service. A ttl of zero disables caching.
func NewTableService(introspector SchemaIntrospector, ttl time.Duration, logger *zap.Logger) TableService {
	return &tableService{
		introspector: introspector,
		ttl:          ttl,
		now:          time.Now,
		logger:       logger.Named("tables"),
		cache:        make(map[string]cachedTables),
	}
}

// ListTables implements TableService.
func (s *tableService) ListTables(ctx context.Context, connString string) ([]models.TableMeta, error) {
	if strings.TrimSpace(connString) == "" {
		return nil, apperrors.NewValidationError("url", "Database URL is required")
	}

	if tables, ok := s.cached(connString); ok {
		return tables, nil
	}

	// Concurrent requests for the same string share one introspection run.
	// It is detached from the first caller's cancellation so one aborted
	// request does not fail the others; each caller stops waiting on its own ctx.
	ch := s.group.DoChan(connString, func() (any, error) {
		if tables, ok := s.cached(connString); ok {
			return tables, nil
		}
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedIntrospectionTimeout)
		defer cancel()
		tables, err := s.introspector.Introspect(runCtx, connString)
		if err != nil {
			return nil, err
		}
		s.store(connString, tables)
		return tables, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		s.logger.Warn("Introspection failed",
			zap.String("url", logging.SanitizeConnectionString(connString)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}
	return v.([]models.TableMeta), nil
}

// GetTableMeta implements TableService.
func (s *tableService) GetTableMeta(ctx context.Context, connString, table string) (*models.TableMeta, error) {
	tables, err := s.ListTables(ctx, connString)
	if err != nil {
		return nil, err
	}
	meta, ok := models.FindTable(tables, table)
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrTableNotFound, table)
	}
	return meta, nil
}

// Invalidate implements TableService.
func (s *tableService) Invalidate(connString string) {
	s.mu.Lock()
	delete(s.cache, connString)
	s.mu.Unlock()
	s.group.Forget(connString)
}

func (s *tableService) cached(connString string) ([]models.TableMeta, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[connString]
	if !ok || s.now().Sub(entry.fetchedAt) >= s.ttl {
		return nil, false
	}
	return entry.tables, true
}

func (s *tableService) store(connString string, tables []models.TableMeta) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop expired entries so abandoned connection strings do not accumulate.
	now := s.now()
	for key, entry := range s.cache {
		if now.Sub(entry.fetchedAt) >= s.ttl {
			delete(s.cache, key)
		}
	}
	s.cache[connString] = cachedTables{tables: tables, fetchedAt: now}
}
