package repositories

import (
	"context"

	"github.com/harrissondutra/fitOS-sub014/internal/logging"

	"go.uber.org/zap"
)

// Invalidator drops cached state derived from a tenant's registry row.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string) error
}

type invalidatingTenantRepo struct {
	TenantRepository
	invalidators []Invalidator
	logger       *zap.Logger
}

// NewInvalidatingTenantRepo wraps repo so every successful SetStatus and
// SetSchemaName notifies the invalidators before returning. Invalidation
// failures are logged; the registry write has already committed.
func NewInvalidatingTenantRepo(repo TenantRepository, logger *zap.Logger, invalidators ...Invalidator) TenantRepository {
	return &invalidatingTenantRepo{
		TenantRepository: repo,
		invalidators:     invalidators,
		logger:           logging.OrNop(logger),
	}
}

func (r *invalidatingTenantRepo) SetSchemaName(ctx context.Context, id, schemaName string) error {
	if err := r.TenantRepository.SetSchemaName(ctx, id, schemaName); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *invalidatingTenantRepo) SetStatus(ctx context.Context, id, status string) error {
	if err := r.TenantRepository.SetStatus(ctx, id, status); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *invalidatingTenantRepo) invalidate(ctx context.Context, id string) {
	for _, inv := range r.invalidators {
		if err := inv.InvalidateTenant(ctx, id); err != nil {
			r.logger.Warn("tenant cache invalidation failed", zap.String("tenant_id", id), zap.Error(err))
		}
	}
}
