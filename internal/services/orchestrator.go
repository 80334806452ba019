package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/repositories"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

type OrchestratorOptions struct {
	// Workers bounds how many tenants migrate at once.
	Workers int
	// TenantIDs restricts the run to these tenants. Empty means every active tenant.
	TenantIDs []string
}

// Orchestrator drives every eligible tenant through provision, migrate and
// validate. A tenant's failure is recorded on its MigrationRecord and never
// stops the others.
type Orchestrator struct {
	registry    repositories.TenantRepository
	provisioner SchemaProvisioner
	migrator    DataMigrator
	validator   MigrationValidator
	opts        OrchestratorOptions
	logger      *zap.Logger
}

func NewOrchestrator(
	registry repositories.TenantRepository,
	provisioner SchemaProvisioner,
	migrator DataMigrator,
	validator MigrationValidator,
	opts OrchestratorOptions,
	logger *zap.Logger,
) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Orchestrator{
		registry:    registry,
		provisioner: provisioner,
		migrator:    migrator,
		validator:   validator,
		opts:        opts,
		logger:      logging.OrNop(logger),
	}
}

// Run migrates all eligible tenants. Cancelling ctx stops new tenants from
// starting; tenants already in flight finish. The returned error is only for
// failures to build the work list.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	log := o.logger.With(zap.String("run_id", summary.RunID))

	tenants, missing, err := o.eligible(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		rec := models.NewMigrationRecord(summary.RunID, &models.Tenant{ID: id})
		_ = rec.Skip("tenant is not active or does not exist")
		summary.Records = append(summary.Records, rec)
	}

	log.Info("migration run started", zap.Int("tenants", len(tenants)), zap.Int("workers", o.opts.Workers))

	records := make([]*models.MigrationRecord, len(tenants))
	for i, t := range tenants {
		records[i] = models.NewMigrationRecord(summary.RunID, t)
	}

	// Work detached from ctx runs to completion once started.
	work := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Workers)
	for i, t := range tenants {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		rec := records[i]
		if t.IsMigrated() {
			rec.SchemaName = *t.SchemaName
			_ = rec.Skip("already migrated")
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o.migrate(work, t, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range records {
		if rec.Phase == models.PhaseUnmigrated {
			summary.NotStarted++
			summary.Cancelled = true
		}
	}
	summary.Records = append(summary.Records, records...)
	summary.FinishedAt = time.Now().UTC()
	summary.Tally()

	log.Info("migration run finished",
		zap.Int("migrated", summary.Migrated),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("not_started", summary.NotStarted),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// MigrateTenant runs the full pipeline for one tenant, outside of a batch.
func (o *Orchestrator) MigrateTenant(ctx context.Context, tenant *models.Tenant) *models.MigrationRecord {
	rec := models.NewMigrationRecord(uuid.NewString(), tenant)
	if tenant.IsMigrated() {
		rec.SchemaName = *tenant.SchemaName
		_ = rec.Skip("already migrated")
		return rec
	}
	o.migrate(ctx, tenant, rec)
	return rec
}

// ValidateAll re-validates every eligible tenant that already has a schema.
// Per-tenant check failures are joined into the returned error; the reports
// cover every tenant that could be checked.
func (o *Orchestrator) ValidateAll(ctx context.Context) ([]*models.ValidationReport, error) {
	tenants, _, err := o.eligible(ctx)
	if err != nil {
		return nil, err
	}

	var migrated []*models.Tenant
	for _, t := range tenants {
		if t.IsMigrated() {
			migrated = append(migrated, t)
		}
	}

	reports := make([]*models.ValidationReport, len(migrated))
	errs := make([]error, len(migrated))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, t := range migrated {
		g.Go(func() error {
			report, err := o.validator.Validate(gctx, t.ID, *t.SchemaName)
			if err != nil {
				errs[i] = fmt.Errorf("tenant %s: %w", t.ID, err)
				return nil
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	out := reports[:0]
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errors.Join(errs...)
}

func (o *Orchestrator) eligible(ctx context.Context) ([]*models.Tenant, []string, error) {
	tenants, err := o.registry.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active tenants: %w", err)
	}
	if len(o.opts.TenantIDs) == 0 {
		return tenants, nil, nil
	}

	byID := make(map[string]*models.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	var (
		selected []*models.Tenant
		missing  []string
		seen     = map[string]bool{}
	)
	for _, id := range o.opts.TenantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := byID[id]; ok {
			selected = append(selected, t)
		} else {
			missing = append(missing, id)
		}
	}
	return selected, missing, nil
}

// migrate walks one tenant through the phases in order, stopping at the first
// failure.
func (o *Orchestrator) migrate(ctx context.Context, tenant *models.Tenant, rec *models.MigrationRecord) {
	log := o.logger.With(zap.String("run_id", rec.RunID), zap.String("tenant_id", tenant.ID))

	fail := func(err error) {
		_ = rec.Fail(err)
		log.Error("tenant migration failed", zap.String("phase", string(rec.FailedPhase)), zap.Error(err))
	}
	advance := func(next models.Phase) bool {
		if err := rec.Advance(next); err != nil {
			fail(err)
			return false
		}
		log.Debug("phase", zap.String("phase", string(next)))
		return true
	}

	name, err := schema.Name(tenant.ID)
	if err != nil {
		fail(err)
		return
	}
	rec.SchemaName = name

	if err := o.claimSchema(ctx, tenant.ID, name); err != nil {
		fail(err)
		return
	}

	if !advance(models.PhaseSchemaCreating) {
		return
	}
	if err := o.provisioner.EnsureSchema(ctx, tenant.ID, name); err != nil {
		fail(err)
		return
	}

	if !advance(models.PhaseTablesCreating) {
		return
	}
	if err := o.provisioner.EnsureTables(ctx, tenant.ID, name); err != nil {
		fail(err)
		return
	}
	if err := o.provisioner.EnsureIndexes(ctx, tenant.ID, name); err != nil {
		fail(err)
		return
	}

	if !advance(models.PhaseDataMigrating) {
		return
	}
	report, err := o.migrator.Migrate(ctx, tenant.ID, name)
	rec.Migration = report
	if err != nil {
		fail(err)
		return
	}

	if !advance(models.PhaseValidating) {
		return
	}
	validation, err := o.validator.Validate(ctx, tenant.ID, name)
	if err != nil {
		fail(fmt.Errorf("validate tenant %s: %w", tenant.ID, err))
		return
	}
	rec.Validation = validation
	if err := validation.Err(); err != nil {
		fail(err)
		return
	}

	if err := o.registry.SetSchemaName(ctx, tenant.ID, name); err != nil {
		fail(err)
		return
	}
	if !advance(models.PhaseMigrated) {
		return
	}

	read, written, skipped := report.Totals()
	log.Info("tenant migrated",
		zap.String("schema", name),
		zap.Int64("rows_read", read),
		zap.Int64("rows_written", written),
		zap.Int64("rows_skipped", skipped),
		zap.Duration("duration", rec.Duration()),
	)
}

// claimSchema refuses a schema name the registry has already assigned to a
// different tenant, before any DDL or data touches it.
func (o *Orchestrator) claimSchema(ctx context.Context, tenantID, name string) error {
	owner, err := o.registry.GetBySchemaName(ctx, name)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check owner of schema %s: %w", name, err)
	case owner.ID != tenantID:
		return fmt.Errorf("schema %s already belongs to tenant %s: %w", name, owner.ID, common.ErrInvalidIdentifier)
	}
	return nil
}
