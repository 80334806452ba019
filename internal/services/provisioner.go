package services

import (
	"context"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"go.uber.org/zap"
)

// SchemaProvisioner creates a tenant schema and its table set. Every step can
// be repeated any number of times against a partially or fully provisioned
// schema.
type SchemaProvisioner interface {
	Provision(ctx context.Context, tenantID, schemaName string) error
	EnsureSchema(ctx context.Context, tenantID, schemaName string) error
	EnsureTables(ctx context.Context, tenantID, schemaName string) error
	EnsureIndexes(ctx context.Context, tenantID, schemaName string) error
}

type schemaProvisioner struct {
	db     database.DB
	tables *schema.TableDefinitionSet
	logger *zap.Logger
}

func NewSchemaProvisioner(db database.DB, tables *schema.TableDefinitionSet, logger *zap.Logger) SchemaProvisioner {
	return &schemaProvisioner{db: db, tables: tables, logger: logging.OrNop(logger)}
}

func (p *schemaProvisioner) Provision(ctx context.Context, tenantID, schemaName string) error {
	if err := p.EnsureSchema(ctx, tenantID, schemaName); err != nil {
		return err
	}
	if err := p.EnsureTables(ctx, tenantID, schemaName); err != nil {
		return err
	}
	return p.EnsureIndexes(ctx, tenantID, schemaName)
}

func (p *schemaProvisioner) EnsureSchema(ctx context.Context, tenantID, schemaName string) error {
	if err := schema.ValidateName(schemaName); err != nil {
		return &common.ProvisionError{TenantID: tenantID, Stage: common.StageSchema, Object: schemaName, Err: err}
	}
	return p.exec(ctx, tenantID, common.StageSchema, schemaName, schema.CreateSchemaSQL(schemaName))
}

// EnsureTables creates tables parents first so every foreign key target
// already exists.
func (p *schemaProvisioner) EnsureTables(ctx context.Context, tenantID, schemaName string) error {
	if err := schema.ValidateName(schemaName); err != nil {
		return &common.ProvisionError{TenantID: tenantID, Stage: common.StageTables, Object: schemaName, Err: err}
	}
	for _, tbl := range p.tables.Tables() {
		if err := p.exec(ctx, tenantID, common.StageTables, tbl.Name, tbl.CreateTableSQL(schemaName)); err != nil {
			return err
		}
	}
	return nil
}

func (p *schemaProvisioner) EnsureIndexes(ctx context.Context, tenantID, schemaName string) error {
	if err := schema.ValidateName(schemaName); err != nil {
		return &common.ProvisionError{TenantID: tenantID, Stage: common.StageIndexes, Object: schemaName, Err: err}
	}
	for _, tbl := range p.tables.Tables() {
		for _, ix := range tbl.Indexes {
			if err := p.exec(ctx, tenantID, common.StageIndexes, ix.Name, ix.CreateIndexSQL(schemaName, tbl.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// exec runs one IF NOT EXISTS statement. Two provisioners racing on the same
// object can still see a duplicate-object error or a unique violation on the
// catalog; both mean the object exists.
func (p *schemaProvisioner) exec(ctx context.Context, tenantID, stage, object, sql string) error {
	_, err := p.db.Exec(ctx, sql)
	if err == nil {
		return nil
	}
	if database.IsAlreadyExists(err) || database.ErrorCode(err) == database.CodeUniqueViolation {
		p.logger.Debug("object already exists",
			zap.String("tenant_id", tenantID), zap.String("stage", stage), zap.String("object", object))
		return nil
	}
	return &common.ProvisionError{TenantID: tenantID, Stage: stage, Object: object, Err: err}
}
