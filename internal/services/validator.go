package services

import (
	"context"
	"fmt"

	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"go.uber.org/zap"
)

const (
	schemaExistsSQL = `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`
	tableCountSQL   = `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE' AND table_name = ANY($2)
	`
	indexCountSQL = `SELECT count(*) FROM pg_indexes WHERE schemaname = $1 AND indexname = ANY($2)`
)

// MigrationValidator compares a tenant schema against the table set and the
// legacy source. It only reads.
type MigrationValidator interface {
	Validate(ctx context.Context, tenantID, schemaName string) (*models.ValidationReport, error)
}

type migrationValidator struct {
	db           database.DB
	tables       *schema.TableDefinitionSet
	legacySchema string
	logger       *zap.Logger
}

func NewMigrationValidator(db database.DB, tables *schema.TableDefinitionSet, legacySchema string, logger *zap.Logger) MigrationValidator {
	if legacySchema == "" {
		legacySchema = DefaultLegacySchema
	}
	return &migrationValidator{db: db, tables: tables, legacySchema: legacySchema, logger: logging.OrNop(logger)}
}

// Validate returns an error only when a check could not run. Discrepancies
// are listed in the report; report.Err() turns them into an error.
func (v *migrationValidator) Validate(ctx context.Context, tenantID, schemaName string) (*models.ValidationReport, error) {
	if err := schema.ValidateName(schemaName); err != nil {
		return nil, err
	}

	tableNames := v.tables.Names()
	indexNames := v.tables.IndexNames()
	report := &models.ValidationReport{
		TenantID:        tenantID,
		SchemaName:      schemaName,
		ExpectedTables:  len(tableNames),
		ExpectedIndexes: len(indexNames),
	}

	if err := v.db.QueryRow(ctx, schemaExistsSQL, schemaName).Scan(&report.SchemaExists); err != nil {
		return nil, fmt.Errorf("check schema %s: %w", schemaName, err)
	}
	if !report.SchemaExists {
		report.Mismatches = append(report.Mismatches, fmt.Sprintf("schema %s does not exist", schemaName))
		return report, nil
	}

	var tables, indexes int64
	if err := v.db.QueryRow(ctx, tableCountSQL, schemaName, tableNames).Scan(&tables); err != nil {
		return nil, fmt.Errorf("count tables in %s: %w", schemaName, err)
	}
	if err := v.db.QueryRow(ctx, indexCountSQL, schemaName, indexNames).Scan(&indexes); err != nil {
		return nil, fmt.Errorf("count indexes in %s: %w", schemaName, err)
	}
	report.FoundTables, report.FoundIndexes = int(tables), int(indexes)
	if report.FoundTables != report.ExpectedTables {
		report.Mismatches = append(report.Mismatches,
			fmt.Sprintf("tables: expected %d, found %d", report.ExpectedTables, report.FoundTables))
		return report, nil
	}
	if report.FoundIndexes != report.ExpectedIndexes {
		report.Mismatches = append(report.Mismatches,
			fmt.Sprintf("indexes: expected %d, found %d", report.ExpectedIndexes, report.FoundIndexes))
	}

	for _, tbl := range v.tables.Tables() {
		tc := models.TableCount{Table: tbl.Name}
		if err := v.db.QueryRow(ctx, tbl.CountSourceSQL(v.legacySchema), tenantID).Scan(&tc.Source); err != nil {
			return nil, fmt.Errorf("count source %s: %w", tbl.Name, err)
		}
		if err := v.db.QueryRow(ctx, tbl.CountDestinationSQL(schemaName)).Scan(&tc.Destination); err != nil {
			return nil, fmt.Errorf("count destination %s: %w", tbl.Name, err)
		}
		report.Tables = append(report.Tables, tc)
		if !tc.Match() {
			report.Mismatches = append(report.Mismatches,
				fmt.Sprintf("%s: source %d, destination %d", tbl.Name, tc.Source, tc.Destination))
		}
	}

	if !report.OK() {
		v.logger.Warn("validation mismatch",
			zap.String("tenant_id", tenantID), zap.Strings("mismatches", report.Mismatches))
	}
	return report, nil
}
