package testhelpers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB holds the database connection for integration tests.
type TestDB struct {
	Pool         *pgxpool.Pool
	LegacySchema string
	Cleanup      func()

	tenantPrefix string
}

const createTenantsTableSQL = `
	CREATE TABLE IF NOT EXISTS public.tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subdomain TEXT UNIQUE,
		custom_domain TEXT UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		schema_name TEXT UNIQUE,
		plan TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// SetupTestDB connects to TEST_DATABASE_URL and creates a throwaway legacy
// schema holding the shared tables of set. The test is skipped when no
// database is configured or in short mode. Cleanup drops the legacy schema
// and every tenant schema registered through SetupTestTenant.
func SetupTestDB(t *testing.T, set *schema.TableDefinitionSet) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	legacy := "legacy_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	if _, err := pool.Exec(ctx, createTenantsTableSQL); err != nil {
		t.Fatalf("Failed to create tenants table: %v", err)
	}
	if _, err := pool.Exec(ctx, "CREATE SCHEMA "+database.QuoteIdent(legacy)); err != nil {
		t.Fatalf("Failed to create legacy schema: %v", err)
	}
	for _, tbl := range set.Tables() {
		if _, err := pool.Exec(ctx, legacyTableSQL(legacy, tbl)); err != nil {
			t.Fatalf("Failed to create legacy table %s: %v", tbl.Name, err)
		}
	}

	db := &TestDB{Pool: pool, LegacySchema: legacy, tenantPrefix: strings.ReplaceAll(legacy, "_", "-") + "-"}
	db.Cleanup = func() {
		ctx := context.Background()
		rows, err := pool.Query(ctx, `SELECT id, schema_name FROM public.tenants WHERE id LIKE $1`, db.tenantPrefix+"%")
		if err == nil {
			var ids, schemas []string
			for rows.Next() {
				var id string
				var s *string
				if rows.Scan(&id, &s) == nil {
					ids = append(ids, id)
					if s != nil {
						schemas = append(schemas, *s)
					}
				}
			}
			rows.Close()
			for _, id := range ids {
				if name, err := schema.Name(id); err == nil {
					schemas = append(schemas, name)
				}
			}
			for _, s := range schemas {
				_, _ = pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+database.QuoteIdent(s)+" CASCADE")
			}
			_, _ = pool.Exec(ctx, `DELETE FROM public.tenants WHERE id LIKE $1`, db.tenantPrefix+"%")
		}
		_, _ = pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+database.QuoteIdent(legacy)+" CASCADE")
		pool.Close()
	}
	return db
}

// TenantID scopes a tenant id to this database so parallel runs never share
// tenant rows.
func (db *TestDB) TenantID(suffix string) string {
	return db.tenantPrefix + suffix
}

// SetupTestTenant registers an active tenant in public.tenants.
func SetupTestTenant(t *testing.T, db *TestDB, id, subdomain string) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{ID: id, Name: "Tenant " + id, Subdomain: &subdomain, Status: models.TenantStatusActive, Plan: "pro"}
	_, err := db.Pool.Exec(context.Background(),
		`INSERT INTO public.tenants (id, name, subdomain, status, plan) VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, subdomain, tenant.Status, tenant.Plan)
	if err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}
	return tenant
}

// InsertLegacyRow writes one row into a legacy shared table. values maps
// legacy column names to values; tenant_id is filled in.
func InsertLegacyRow(t *testing.T, db *TestDB, table, tenantID string, values map[string]any) {
	t.Helper()

	cols := []string{database.QuoteIdent(schema.DefaultTenantColumn)}
	args := []any{tenantID}
	params := []string{"$1"}
	for col, v := range values {
		cols = append(cols, database.QuoteIdent(col))
		args = append(args, v)
		params = append(params, fmt.Sprintf("$%d", len(args)))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		database.QuoteIdent(db.LegacySchema, table), strings.Join(cols, ", "), strings.Join(params, ", "))
	if _, err := db.Pool.Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("Failed to insert legacy %s row: %v", table, err)
	}
}

// legacyTableSQL renders the shared-table shape: legacy column names, a
// tenant column, no foreign keys, so orphaned rows can exist.
func legacyTableSQL(legacySchema string, tbl schema.TableDefinition) string {
	lines := []string{"\t" + database.QuoteIdent(tbl.TenantColumn) + " TEXT NOT NULL"}
	for _, c := range tbl.Columns {
		line := "\t" + database.QuoteIdent(c.SourceName()) + " " + c.Type
		if c.Name == tbl.PrimaryKey {
			line += " PRIMARY KEY"
		}
		lines = append(lines, line)
	}
	return "CREATE TABLE " + database.QuoteIdent(legacySchema, tbl.SourceName()) + " (\n" + strings.Join(lines, ",\n") + "\n)"
}
