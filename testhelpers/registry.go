package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
)

// MemoryTenantRepository is an in-memory tenant registry with the same
// visibility and write-once rules as the Postgres one. Lookups counts every
// read so tests can observe cache hits.
type MemoryTenantRepository struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	order   []string
	Lookups atomic.Int64
}

func NewMemoryTenantRepository(tenants ...*models.Tenant) *MemoryTenantRepository {
	r := &MemoryTenantRepository{tenants: map[string]*models.Tenant{}}
	for _, t := range tenants {
		_ = r.Create(context.Background(), t)
	}
	return r
}

func (r *MemoryTenantRepository) Create(_ context.Context, tenant *models.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}
	if _, ok := r.tenants[tenant.ID]; ok {
		return uniqueViolation("tenants_pkey", tenant.ID)
	}
	for _, t := range r.tenants {
		if sameValue(t.Subdomain, tenant.Subdomain) {
			return uniqueViolation("tenants_subdomain_key", tenant.ID)
		}
		if sameValue(t.CustomDomain, tenant.CustomDomain) {
			return uniqueViolation("tenants_custom_domain_key", tenant.ID)
		}
	}
	cp := *tenant
	r.tenants[tenant.ID] = &cp
	r.order = append(r.order, tenant.ID)
	return nil
}

func (r *MemoryTenantRepository) GetByID(_ context.Context, id string) (*models.Tenant, error) {
	r.Lookups.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %q: %w", id, common.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTenantRepository) GetBySubdomain(_ context.Context, subdomain string) (*models.Tenant, error) {
	return r.findActive(func(t *models.Tenant) *string { return t.Subdomain }, subdomain)
}

func (r *MemoryTenantRepository) GetByCustomDomain(_ context.Context, domain string) (*models.Tenant, error) {
	return r.findActive(func(t *models.Tenant) *string { return t.CustomDomain }, domain)
}

func (r *MemoryTenantRepository) GetBySchemaName(_ context.Context, schemaName string) (*models.Tenant, error) {
	r.Lookups.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		t := r.tenants[id]
		if t.SchemaName != nil && *t.SchemaName == schemaName {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("schema %q: %w", schemaName, common.ErrNotFound)
}

func (r *MemoryTenantRepository) ListActive(_ context.Context) ([]*models.Tenant, error) {
	r.Lookups.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Tenant
	for _, id := range r.order {
		if t := r.tenants[id]; t.IsActive() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryTenantRepository) SetSchemaName(_ context.Context, id, schemaName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %s: %w", id, common.ErrNotFound)
	}
	if t.SchemaName != nil {
		if *t.SchemaName == schemaName {
			return nil
		}
		return fmt.Errorf("tenant %s already has schema %q: %w", id, *t.SchemaName, common.ErrAlreadyMigrated)
	}
	t.SchemaName = &schemaName
	return nil
}

func (r *MemoryTenantRepository) SetStatus(_ context.Context, id, status string) error {
	if !models.ValidTenantStatus(status) {
		return fmt.Errorf("tenant %s status %q: %w", id, status, common.ErrInvalidStatus)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %s: %w", id, common.ErrNotFound)
	}
	t.Status = status
	return nil
}

// SchemaNames returns every assigned schema name, sorted.
func (r *MemoryTenantRepository) SchemaNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, t := range r.tenants {
		if t.SchemaName != nil {
			names = append(names, *t.SchemaName)
		}
	}
	sort.Strings(names)
	return names
}

func (r *MemoryTenantRepository) findActive(field func(*models.Tenant) *string, value string) (*models.Tenant, error) {
	r.Lookups.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		t := r.tenants[id]
		if v := field(t); v != nil && strings.EqualFold(*v, value) && t.IsActive() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tenant %q: %w", value, common.ErrNotFound)
}

func sameValue(a, b *string) bool {
	return a != nil && b != nil && *a != "" && strings.EqualFold(*a, *b)
}

// uniqueViolation mirrors the error Postgres raises on a duplicate key.
func uniqueViolation(constraint, id string) error {
	return fmt.Errorf("create tenant %s: %w", id, &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: constraint,
	})
}
