package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"github.com/jackc/pgx/v5"
)

// TenantRepository is the global tenant registry. Lookups by host only see
// active tenants; GetByID sees every tenant.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error)
	// GetBySchemaName returns the tenant, of any status, that owns schemaName.
	GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error)
	ListActive(ctx context.Context) ([]*models.Tenant, error)
	SetSchemaName(ctx context.Context, id, schemaName string) error
	SetStatus(ctx context.Context, id, status string) error
}

const tenantColumns = `id, name, subdomain, custom_domain, status, schema_name, plan, created_at, updated_at`

const (
	insertTenantSQL = `
		INSERT INTO public.tenants (id, name, subdomain, custom_domain, status, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	getTenantByIDSQL = `
		SELECT ` + tenantColumns + `
		FROM public.tenants
		WHERE id = $1
	`
	getTenantBySubdomainSQL = `
		SELECT ` + tenantColumns + `
		FROM public.tenants
		WHERE lower(subdomain) = lower($1) AND status = 'active'
	`
	getTenantByCustomDomainSQL = `
		SELECT ` + tenantColumns + `
		FROM public.tenants
		WHERE lower(custom_domain) = lower($1) AND status = 'active'
	`
	getTenantBySchemaNameSQL = `
		SELECT ` + tenantColumns + `
		FROM public.tenants
		WHERE schema_name = $1
	`
	listActiveTenantsSQL = `
		SELECT ` + tenantColumns + `
		FROM public.tenants
		WHERE status = 'active'
		ORDER BY created_at, id
	`
	setSchemaNameSQL = `
		UPDATE public.tenants
		SET schema_name = $2, updated_at = NOW()
		WHERE id = $1 AND schema_name IS NULL
	`
	getSchemaNameSQL = `SELECT schema_name FROM public.tenants WHERE id = $1`
	setStatusSQL     = `
		UPDATE public.tenants
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
)

type tenantRepo struct {
	db database.DB
}

func NewTenantRepo(db database.DB) TenantRepository {
	return &tenantRepo{db: db}
}

func (r *tenantRepo) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant.Status == "" {
		tenant.Status = models.TenantStatusActive
	}
	if !models.ValidTenantStatus(tenant.Status) {
		return fmt.Errorf("tenant %s status %q: %w", tenant.ID, tenant.Status, common.ErrInvalidStatus)
	}
	_, err := r.db.Exec(ctx, insertTenantSQL,
		tenant.ID, tenant.Name, tenant.Subdomain, tenant.CustomDomain, tenant.Status, tenant.Plan)
	if err != nil {
		return fmt.Errorf("create tenant %s: %w", tenant.ID, err)
	}
	return nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	return r.getOne(ctx, getTenantByIDSQL, id)
}

func (r *tenantRepo) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return r.getOne(ctx, getTenantBySubdomainSQL, subdomain)
}

func (r *tenantRepo) GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return r.getOne(ctx, getTenantByCustomDomainSQL, domain)
}

func (r *tenantRepo) GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error) {
	return r.getOne(ctx, getTenantBySchemaNameSQL, schemaName)
}

func (r *tenantRepo) ListActive(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := r.db.Query(ctx, listActiveTenantsSQL)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

// SetSchemaName records the tenant's schema exactly once. Writing the value
// already stored is a no-op; any other value yields ErrAlreadyMigrated.
func (r *tenantRepo) SetSchemaName(ctx context.Context, id, schemaName string) error {
	tag, err := r.db.Exec(ctx, setSchemaNameSQL, id, schemaName)
	if err != nil {
		if database.ErrorCode(err) == database.CodeUniqueViolation {
			return fmt.Errorf("schema %s is assigned to another tenant: %w", schemaName, err)
		}
		return fmt.Errorf("set schema name for tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current *string
	if err := r.db.QueryRow(ctx, getSchemaNameSQL, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("tenant %s: %w", id, common.ErrNotFound)
		}
		return fmt.Errorf("read schema name for tenant %s: %w", id, err)
	}
	if current != nil && *current == schemaName {
		return nil
	}
	existing := ""
	if current != nil {
		existing = *current
	}
	return fmt.Errorf("tenant %s already has schema %q: %w", id, existing, common.ErrAlreadyMigrated)
}

func (r *tenantRepo) SetStatus(ctx context.Context, id, status string) error {
	if !models.ValidTenantStatus(status) {
		return fmt.Errorf("tenant %s status %q: %w", id, status, common.ErrInvalidStatus)
	}
	tag, err := r.db.Exec(ctx, setStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("set status for tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *tenantRepo) getOne(ctx context.Context, query, arg string) (*models.Tenant, error) {
	tenant, err := scanTenant(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenant %q: %w", arg, common.ErrNotFound)
		}
		return nil, fmt.Errorf("get tenant %q: %w", arg, err)
	}
	return tenant, nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := row.Scan(
		&tenant.ID, &tenant.Name, &tenant.Subdomain, &tenant.CustomDomain, &tenant.Status,
		&tenant.SchemaName, &tenant.Plan, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tenant, nil
}
