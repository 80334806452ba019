package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RowPolicy decides what a failing row does to its page.
type RowPolicy string

const (
	// RowPolicySkip rolls the row back to a savepoint, records it and keeps
	// going with the rest of the page.
	RowPolicySkip RowPolicy = "skip"
	// RowPolicyAbort rolls the whole page back and fails the tenant.
	RowPolicyAbort RowPolicy = "abort"
)

func ParseRowPolicy(s string) (RowPolicy, error) {
	switch RowPolicy(s) {
	case RowPolicySkip, RowPolicyAbort:
		return RowPolicy(s), nil
	case "":
		return RowPolicySkip, nil
	}
	return "", fmt.Errorf("unknown row policy %q", s)
}

const (
	DefaultBatchSize    = 500
	DefaultLegacySchema = "public"

	savepointSQL         = "SAVEPOINT migrate_row"
	rollbackSavepointSQL = "ROLLBACK TO SAVEPOINT migrate_row"
	releaseSavepointSQL  = "RELEASE SAVEPOINT migrate_row"
)

type MigratorOptions struct {
	BatchSize    int
	LegacySchema string
	RowPolicy    RowPolicy
}

// DataMigrator copies one tenant's rows from the shared legacy tables into
// its schema. Running it again converges on the same destination state.
type DataMigrator interface {
	Migrate(ctx context.Context, tenantID, schemaName string) (*models.MigrationReport, error)
}

type dataMigrator struct {
	db     database.DB
	tables *schema.TableDefinitionSet
	opts   MigratorOptions
	logger *zap.Logger
}

func NewDataMigrator(db database.DB, tables *schema.TableDefinitionSet, opts MigratorOptions, logger *zap.Logger) DataMigrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LegacySchema == "" {
		opts.LegacySchema = DefaultLegacySchema
	}
	if opts.RowPolicy == "" {
		opts.RowPolicy = RowPolicySkip
	}
	return &dataMigrator{db: db, tables: tables, opts: opts, logger: logging.OrNop(logger)}
}

// Migrate walks the tables in dependency order. The report covers every table
// attempted, including the one that failed.
func (m *dataMigrator) Migrate(ctx context.Context, tenantID, schemaName string) (*models.MigrationReport, error) {
	if err := schema.ValidateName(schemaName); err != nil {
		return nil, &common.MigrateError{TenantID: tenantID, Err: err}
	}

	report := &models.MigrationReport{TenantID: tenantID, SchemaName: schemaName}
	for _, tbl := range m.tables.Tables() {
		tm, rowErrs, err := m.migrateTable(ctx, tenantID, schemaName, tbl)
		report.Tables = append(report.Tables, tm)
		report.Errors = append(report.Errors, rowErrs...)
		if err != nil {
			return report, err
		}
		m.logger.Info("table migrated",
			zap.String("tenant_id", tenantID),
			zap.String("table", tbl.Name),
			zap.Int64("rows_read", tm.RowsRead),
			zap.Int64("rows_written", tm.RowsWritten),
			zap.Int64("rows_skipped", tm.RowsSkipped),
			zap.Int("batches", tm.Batches),
		)
	}
	return report, nil
}

func (m *dataMigrator) migrateTable(ctx context.Context, tenantID, schemaName string, tbl schema.TableDefinition) (models.TableMigration, []models.RowError, error) {
	tm := models.TableMigration{Table: tbl.Name}
	var rowErrs []models.RowError

	firstPage := tbl.SelectSQL(m.opts.LegacySchema, false)
	nextPage := tbl.SelectSQL(m.opts.LegacySchema, true)
	upsert := tbl.UpsertSQL(schemaName)
	pk := tbl.PrimaryKeyIndex()

	var cursor any
	for {
		var (
			page [][]any
			err  error
		)
		if cursor == nil {
			page, err = m.readPage(ctx, firstPage, tenantID, m.opts.BatchSize)
		} else {
			page, err = m.readPage(ctx, nextPage, tenantID, cursor, m.opts.BatchSize)
		}
		if err != nil {
			return tm, rowErrs, &common.MigrateError{TenantID: tenantID, Table: tbl.Name, Err: fmt.Errorf("read page: %w", err)}
		}
		if len(page) == 0 {
			return tm, rowErrs, nil
		}

		tm.RowsRead += int64(len(page))
		tm.Batches++

		written, failed, err := m.writePage(ctx, tenantID, tbl.Name, upsert, pk, page)
		if err != nil {
			return tm, rowErrs, err
		}
		tm.RowsWritten += written
		tm.RowsSkipped += int64(len(failed))
		rowErrs = append(rowErrs, failed...)

		if len(page) < m.opts.BatchSize {
			return tm, rowErrs, nil
		}
		cursor = page[len(page)-1][pk]
	}
}

func (m *dataMigrator) readPage(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := m.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var page [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		page = append(page, values)
	}
	return page, rows.Err()
}

// writePage upserts a page in one transaction. Under RowPolicySkip each row
// sits behind a savepoint so a failure only discards that row.
func (m *dataMigrator) writePage(ctx context.Context, tenantID, table, upsert string, pk int, page [][]any) (int64, []models.RowError, error) {
	var (
		written int64
		failed  []models.RowError
	)

	err := database.WithTx(ctx, m.db, func(ctx context.Context, tx pgx.Tx) error {
		for _, row := range page {
			rowID := fmt.Sprint(row[pk])

			if m.opts.RowPolicy == RowPolicyAbort {
				if _, err := tx.Exec(ctx, upsert, row...); err != nil {
					return &common.MigrateError{TenantID: tenantID, Table: table, RowID: rowID, Err: err}
				}
				written++
				continue
			}

			if _, err := tx.Exec(ctx, savepointSQL); err != nil {
				return &common.MigrateError{TenantID: tenantID, Table: table, RowID: rowID, Err: fmt.Errorf("savepoint: %w", err)}
			}
			if _, err := tx.Exec(ctx, upsert, row...); err != nil {
				if _, rbErr := tx.Exec(ctx, rollbackSavepointSQL); rbErr != nil {
					return &common.MigrateError{TenantID: tenantID, Table: table, RowID: rowID, Err: errors.Join(err, rbErr)}
				}
				failed = append(failed, rowError(table, rowID, err))
				m.logger.Warn("row skipped",
					zap.String("tenant_id", tenantID), zap.String("table", table),
					zap.String("row_id", rowID), zap.Error(err))
				continue
			}
			if _, err := tx.Exec(ctx, releaseSavepointSQL); err != nil {
				return &common.MigrateError{TenantID: tenantID, Table: table, RowID: rowID, Err: fmt.Errorf("release savepoint: %w", err)}
			}
			written++
		}
		return nil
	})
	if err != nil {
		var me *common.MigrateError
		if !errors.As(err, &me) {
			err = &common.MigrateError{TenantID: tenantID, Table: table, Err: err}
		}
		return 0, nil, err
	}
	return written, failed, nil
}

func rowError(table, rowID string, err error) models.RowError {
	re := models.RowError{Table: table, RowID: rowID, Message: err.Error()}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		re.Code = pgErr.Code
		re.Message = pgErr.Message
		if pgErr.Detail != "" {
			re.Message += ": " + pgErr.Detail
		}
	}
	return re
}
