package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/repositories"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL           = 5 * time.Minute
	DefaultNegativeTTL   = 30 * time.Second
	DefaultLookupTimeout = 5 * time.Second
	DefaultMaxEntries    = 10000
)

type Options struct {
	// BaseDomain, when set, restricts subdomain matching to direct children
	// of it ("acme.example.com" for base "example.com").
	BaseDomain string
	TTL        time.Duration
	// RefreshAfter is the age after which a hit is still served but a
	// background re-read is started. Zero disables early refresh.
	RefreshAfter  time.Duration
	NegativeTTL   time.Duration
	LookupTimeout time.Duration
	// MaxEntries caps the number of cached keys, positive and negative.
	MaxEntries int
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Resolver maps request hosts to tenants and hands out schema-scoped handles.
// Registry rows are cached; misses for the same key are coalesced into one
// registry read.
type Resolver struct {
	registry repositories.TenantRepository
	db       database.DB
	opts     Options
	cache    *tenantCache
	group    singleflight.Group
	logger   *zap.Logger

	refreshing sync.Map
	wg         sync.WaitGroup
}

func NewResolver(registry repositories.TenantRepository, db database.DB, opts Options, logger *zap.Logger) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if opts.RefreshAfter >= opts.TTL {
		opts.RefreshAfter = 0
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.BaseDomain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(opts.BaseDomain)), ".")

	return &Resolver{
		registry: registry,
		db:       db,
		opts:     opts,
		cache:    newTenantCache(opts.MaxEntries),
		logger:   logging.OrNop(logger),
	}
}

// Resolve returns a handle scoped to the schema of the tenant serving host.
// It fails with common.ErrTenantNotFound when no active tenant matches and
// with common.ErrTenantNotReady when the tenant has no schema yet.
func (r *Resolver) Resolve(ctx context.Context, host string) (*ScopedHandle, error) {
	tenant, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if !tenant.IsMigrated() {
		return nil, fmt.Errorf("tenant %s: %w", tenant.ID, common.ErrTenantNotReady)
	}
	return newScopedHandle(r.db, tenant), nil
}

// Lookup returns the active tenant serving host without checking migration
// state. Custom domains match first, then the leading label as a subdomain.
func (r *Resolver) Lookup(ctx context.Context, host string) (*models.Tenant, error) {
	normalized := NormalizeHost(host)
	if normalized == "" {
		return nil, fmt.Errorf("empty host: %w", common.ErrTenantNotFound)
	}

	tenant, err := r.lookupKey(ctx, domainKeyPrefix+normalized)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, common.ErrTenantNotFound) {
		return nil, err
	}

	sub, ok := r.subdomain(normalized)
	if !ok {
		return nil, fmt.Errorf("host %q: %w", normalized, common.ErrTenantNotFound)
	}
	tenant, err = r.lookupKey(ctx, subdomainKeyPrefix+sub)
	if err != nil {
		if errors.Is(err, common.ErrTenantNotFound) {
			return nil, fmt.Errorf("host %q: %w", normalized, common.ErrTenantNotFound)
		}
		return nil, err
	}
	return tenant, nil
}

// Invalidate drops cached state for tenantID so the next resolution re-reads
// the registry.
func (r *Resolver) Invalidate(tenantID string) {
	dropped := r.cache.invalidateTenant(tenantID)
	r.logger.Debug("tenant cache invalidated", zap.String("tenant_id", tenantID), zap.Int("dropped", dropped))
}

// InvalidateTenant lets the resolver sit behind the invalidating registry.
func (r *Resolver) InvalidateTenant(_ context.Context, tenantID string) error {
	r.Invalidate(tenantID)
	return nil
}

// Purge drops every cached entry.
func (r *Resolver) Purge() {
	r.cache.purge()
}

// Warm drops expired entries and loads every active tenant into the cache.
func (r *Resolver) Warm(ctx context.Context) (int, error) {
	swept := r.Sweep()
	epoch := r.cache.currentEpoch()
	tenants, err := r.registry.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active tenants: %w", err)
	}

	warmed := 0
	for _, t := range tenants {
		stored := false
		if t.CustomDomain != nil && *t.CustomDomain != "" {
			stored = r.cache.put(domainKeyPrefix+NormalizeHost(*t.CustomDomain), r.positive(t), epoch) || stored
		}
		if t.Subdomain != nil && *t.Subdomain != "" {
			stored = r.cache.put(subdomainKeyPrefix+strings.ToLower(*t.Subdomain), r.positive(t), epoch) || stored
		}
		if stored {
			warmed++
		}
	}
	r.logger.Debug("tenant cache warmed", zap.Int("tenants", warmed), zap.Int("swept", swept))
	return warmed, nil
}

// Sweep drops every expired entry and reports how many were removed.
func (r *Resolver) Sweep() int {
	return r.cache.sweep(r.opts.Now())
}

func (r *Resolver) Stats() CacheStats {
	return r.cache.stats()
}

// Wait blocks until background refreshes have finished.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) lookupKey(ctx context.Context, key string) (*models.Tenant, error) {
	now := r.opts.Now()
	if entry, ok := r.cache.get(key); ok && now.Before(entry.expiresAt) {
		r.cache.recordHit()
		if !entry.negative() && !entry.refreshAt.IsZero() && !now.Before(entry.refreshAt) {
			r.refreshAsync(key)
		}
		if entry.negative() {
			return nil, common.ErrTenantNotFound
		}
		return entry.tenant, nil
	}

	r.cache.recordMiss()

	ch := r.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.LookupTimeout)
		defer cancel()
		return r.fetch(lookupCtx, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Tenant), nil
	}
}

// fetch reads key from the registry and caches the outcome. Registry errors
// other than not-found are returned without being cached.
func (r *Resolver) fetch(ctx context.Context, key string) (*models.Tenant, error) {
	epoch := r.cache.currentEpoch()

	var (
		tenant *models.Tenant
		err    error
	)
	value := strings.SplitN(key, ":", 2)[1]
	if strings.HasPrefix(key, domainKeyPrefix) {
		tenant, err = r.registry.GetByCustomDomain(ctx, value)
	} else {
		tenant, err = r.registry.GetBySubdomain(ctx, value)
	}

	switch {
	case err == nil:
		r.cache.put(key, r.positive(tenant), epoch)
		return tenant, nil
	case errors.Is(err, common.ErrNotFound):
		now := r.opts.Now()
		r.cache.put(key, &cacheEntry{storedAt: now, expiresAt: now.Add(r.opts.NegativeTTL)}, epoch)
		return nil, common.ErrTenantNotFound
	default:
		r.logger.Error("tenant lookup failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}
}

func (r *Resolver) refreshAsync(key string) {
	if _, loaded := r.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), r.opts.LookupTimeout)
		defer cancel()
		_, err, _ := r.group.Do(key, func() (any, error) {
			return r.fetch(ctx, key)
		})
		if err != nil && !errors.Is(err, common.ErrTenantNotFound) {
			r.logger.Warn("background tenant refresh failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

func (r *Resolver) positive(t *models.Tenant) *cacheEntry {
	now := r.opts.Now()
	entry := &cacheEntry{tenant: t, storedAt: now, expiresAt: now.Add(r.opts.TTL)}
	if r.opts.RefreshAfter > 0 {
		entry.refreshAt = now.Add(r.opts.RefreshAfter)
	}
	return entry
}

// subdomain extracts the tenant label from host. Without a base domain any
// multi-label host yields its first label.
func (r *Resolver) subdomain(host string) (string, bool) {
	if r.opts.BaseDomain != "" {
		label, ok := strings.CutSuffix(host, "."+r.opts.BaseDomain)
		if !ok || label == "" || strings.Contains(label, ".") {
			return "", false
		}
		return label, true
	}

	label, rest, ok := strings.Cut(host, ".")
	if !ok || label == "" || rest == "" {
		return "", false
	}
	return label, true
}

// NormalizeHost lowercases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	return strings.TrimSuffix(host, ".")
}
