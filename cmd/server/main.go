// Command server is the tenant gateway: it resolves every request host to a
// tenant schema and serves the operator endpoints for the tenant registry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/caching"
	"github.com/harrissondutra/fitOS-sub014/internal/config"
	"github.com/harrissondutra/fitOS-sub014/internal/handlers"
	"github.com/harrissondutra/fitOS-sub014/internal/jobs/background"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/middleware"
	"github.com/harrissondutra/fitOS-sub014/internal/repositories"
	"github.com/harrissondutra/fitOS-sub014/internal/resolver"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	version         = "1.0.0"
	serviceName     = "fitos-gateway"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP listen port")
	fs.StringVar(&cfg.Resolver.BaseDomain, "base-domain", cfg.Resolver.BaseDomain, "domain tenant subdomains live under")
}

func run(args []string) error {
	cfg, err := config.Load("server", args, bindFlags)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database.URL, database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.ClosePool(pool, logger)

	baseRegistry := repositories.NewTenantRepo(pool)
	tenantResolver := resolver.NewResolver(baseRegistry, pool, resolver.Options{
		BaseDomain:   cfg.Resolver.BaseDomain,
		TTL:          cfg.Resolver.TTL,
		RefreshAfter: cfg.Resolver.RefreshAfter,
		NegativeTTL:  cfg.Resolver.NegativeTTL,
		MaxEntries:   cfg.Resolver.MaxEntries,
	}, logger)

	// Local invalidation first, then the bus so other gateways follow.
	invalidators := []repositories.Invalidator{tenantResolver}
	var redisPinger handlers.Pinger
	if cfg.Redis.Addr != "" {
		client := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		defer client.Close()

		bus := caching.NewInvalidationBus(client, cfg.Redis.Channel, logger)
		if _, err := bus.Subscribe(ctx, tenantResolver.Invalidate); err != nil {
			logger.Warn("cross-process invalidation disabled; caches refresh on ttl", zap.Error(err))
		}
		invalidators = append(invalidators, bus)
		redisPinger = bus
	}
	registry := repositories.NewInvalidatingTenantRepo(baseRegistry, logger, invalidators...)

	scheduler, err := background.NewJobScheduler(tenantResolver, cfg.Resolver.WarmInterval, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			logger.Warn("failed to stop job scheduler", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echoMiddleware.CORS())
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	handlers.RegisterRoutes(e, handlers.Routes{
		Health:     handlers.NewHealthHandlers(pool, redisPinger, tenantResolver, version),
		Tenants:    handlers.NewTenantHandlers(registry, logger, invalidators...),
		Resolver:   tenantResolver,
		AdminToken: cfg.Server.AdminToken,
		Logger:     logger,
	})
	if cfg.Server.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is not set; admin endpoints reject every request")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("version", version), zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	tenantResolver.Wait()
	return nil
}
