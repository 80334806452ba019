// Command migrate moves tenants from the shared-table layout into one schema
// per tenant and prints a per-tenant report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/caching"
	"github.com/harrissondutra/fitOS-sub014/internal/config"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/repositories"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"
	"github.com/harrissondutra/fitOS-sub014/internal/services"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitSetup   = 2
	serviceName = "fitos-migrate"

	archiveTimeout = 30 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// bindFlags registers the migrate-only flags. Tenant ids are comma separated.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.Migration.Workers, "workers", cfg.Migration.Workers, "tenants migrated concurrently")
	fs.IntVar(&cfg.Migration.BatchSize, "batch-size", cfg.Migration.BatchSize, "rows copied per transaction")
	fs.StringVar(&cfg.Migration.RowPolicy, "row-policy", cfg.Migration.RowPolicy, "on a bad row: skip or abort")
	fs.StringVar(&cfg.Migration.LegacySchema, "legacy-schema", cfg.Migration.LegacySchema, "schema holding the shared tables")
	fs.BoolVar(&cfg.Migration.ValidateOnly, "validate-only", cfg.Migration.ValidateOnly, "only validate already migrated tenants")
	fs.BoolVar(&cfg.Migration.JSON, "json", cfg.Migration.JSON, "print the report as JSON")
	fs.StringVar(&cfg.MinIO.Bucket, "archive-bucket", cfg.MinIO.Bucket, "MinIO bucket for the JSON run summary")
	fs.Func("tenants", "comma separated tenant ids to migrate", func(v string) error {
		cfg.Migration.Tenants = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Migration.Tenants = append(cfg.Migration.Tenants, id)
			}
		}
		return nil
	})
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load("migrate", args, bindFlags)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitSetup
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return exitSetup
	}
	defer logger.Sync()

	policy, err := services.ParseRowPolicy(cfg.Migration.RowPolicy)
	if err != nil {
		logger.Error("invalid row policy", zap.Error(err))
		return exitSetup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Each worker holds at most one connection; two more cover registry writes.
	pool, err := database.NewPool(ctx, cfg.Database.URL, database.PoolOptions{
		MaxConns:        int32(cfg.Migration.Workers + 2),
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return exitSetup
	}
	defer database.ClosePool(pool, logger)

	registry := repositories.NewTenantRepo(pool)
	if bus := invalidationBus(ctx, cfg, logger); bus != nil {
		registry = repositories.NewInvalidatingTenantRepo(registry, logger, bus)
	}

	tables := schema.Canonical()
	orchestrator := services.NewOrchestrator(
		registry,
		services.NewSchemaProvisioner(pool, tables, logger),
		services.NewDataMigrator(pool, tables, services.MigratorOptions{
			BatchSize:    cfg.Migration.BatchSize,
			LegacySchema: cfg.Migration.LegacySchema,
			RowPolicy:    policy,
		}, logger),
		services.NewMigrationValidator(pool, tables, cfg.Migration.LegacySchema, logger),
		services.OrchestratorOptions{Workers: cfg.Migration.Workers, TenantIDs: cfg.Migration.Tenants},
		logger,
	)

	if cfg.Migration.ValidateOnly {
		return validate(ctx, orchestrator, cfg, stdout, logger)
	}

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		logger.Error("migration run could not start", zap.Error(err))
		return exitSetup
	}
	if err := services.WriteSummary(stdout, summary, cfg.Migration.JSON); err != nil {
		logger.Error("failed to write report", zap.Error(err))
	}

	if cfg.MinIO.Bucket != "" {
		archiveSummary(cfg, summary, logger)
	}

	if summary.Failed > 0 || summary.Cancelled {
		return exitFailed
	}
	return exitOK
}

func validate(ctx context.Context, o *services.Orchestrator, cfg *config.Config, stdout io.Writer, logger *zap.Logger) int {
	reports, err := o.ValidateAll(ctx)
	if werr := services.WriteValidation(stdout, reports, cfg.Migration.JSON); werr != nil {
		logger.Error("failed to write report", zap.Error(werr))
	}
	if err != nil {
		logger.Error("validation failed", zap.Error(err))
		return exitFailed
	}
	for _, r := range reports {
		if !r.OK() {
			return exitFailed
		}
	}
	return exitOK
}

// invalidationBus returns a bus publishing registry changes to running
// gateways, or nil when Redis is not configured or not reachable.
func invalidationBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) *caching.InvalidationBus {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	bus := caching.NewInvalidationBus(client, cfg.Redis.Channel, logger)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := bus.Ping(pingCtx); err != nil {
		logger.Warn("gateway caches will not be notified; they refresh on ttl", zap.Error(err))
		_ = client.Close()
		return nil
	}
	return bus
}

// archiveSummary uploads the run summary. It runs after cancellation too, so
// it uses its own deadline.
func archiveSummary(cfg *config.Config, summary *models.RunSummary, logger *zap.Logger) {
	archive, err := services.NewMinioReportArchive(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
	if err != nil {
		logger.Warn("failed to create report archive", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	name, err := archive.Archive(ctx, summary)
	if err != nil {
		logger.Warn("failed to archive run summary", zap.String("run_id", summary.RunID), zap.Error(err))
		return
	}
	logger.Info("run summary archived", zap.String("bucket", cfg.MinIO.Bucket), zap.String("object", name))
}
