package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-studio/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-studio/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-studio/pkg/config"
	"github.com/ekaya-inc/ekaya-studio/pkg/models"
)

// Introspection modes.
const (
	IntrospectionModePrisma  = "prisma"
	IntrospectionModeCatalog = "catalog"
)

// SchemaIntrospector derives table metadata from a live database.
type SchemaIntrospector interface {
	// Introspect returns every table of the database behind connString.
	// Partial results are never returned.
	Introspect(ctx context.Context, connString string) ([]models.TableMeta, error)
}

// ConnectionResolver resolves a connection string to a leased live handle.
// Callers Release the handle when done. *datasource.ConnectionManager
// implements it.
type ConnectionResolver interface {
	Resolve(ctx context.Context, connString string) (*datasource.Handle, error)
}

// NewSchemaIntrospector returns the introspector selected by cfg.Mode.
func NewSchemaIntrospector(cfg config.IntrospectionConfig, resolver ConnectionResolver, logger *zap.Logger) (SchemaIntrospector, error) {
	switch cfg.Mode {
	case IntrospectionModePrisma, "":
		return NewPrismaIntrospector(cfg, logger), nil
	case IntrospectionModeCatalog:
		return NewCatalogIntrospector(resolver, logger), nil
	default:
		return nil, fmt.Errorf("unknown introspection mode %q", cfg.Mode)
	}
}

// introspectionError wraps cause as "failed to introspect database: <cause>".
// Dialect errors pass through untouched so callers can still classify them.
func introspectionError(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, apperrors.ErrUnsupportedDialect) || errors.Is(cause, apperrors.ErrIntrospectionFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", apperrors.ErrIntrospectionFailed, cause)
}
