package middleware

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/resolver"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const tenantHandleKey = "tenant_handle"

// HostResolver maps a request host to a tenant-scoped database handle.
type HostResolver interface {
	Resolve(ctx context.Context, host string) (*resolver.ScopedHandle, error)
}

// TenantResolver resolves the tenant from the Host header and stores its
// handle in the echo and request contexts. Unknown hosts get 404 and tenants
// whose schema is not ready get 503.
func TenantResolver(res HostResolver, logger *zap.Logger) echo.MiddlewareFunc {
	logger = logging.OrNop(logger)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			host := stripPort(c.Request().Host)

			handle, err := res.Resolve(c.Request().Context(), host)
			switch {
			case err == nil:
			case errors.Is(err, common.ErrTenantNotFound):
				return common.SendNotFoundError(c, "Tenant")
			case errors.Is(err, common.ErrTenantNotReady):
				return common.SendTenantNotReady(c)
			default:
				logger.Error("tenant resolution failed", zap.String("host", host), zap.Error(err))
				return common.SendServerError(c, "Failed to resolve tenant")
			}

			tenant := handle.Tenant()
			ctx := context.WithValue(c.Request().Context(), common.TenantIDKey, tenant.ID)
			ctx = context.WithValue(ctx, common.TenantSchemaKey, handle.Schema())
			c.SetRequest(c.Request().WithContext(ctx))

			c.Set(tenantHandleKey, handle)
			c.Set(string(common.TenantIDKey), tenant.ID)

			return next(c)
		}
	}
}

// TenantHandle returns the handle stored by TenantResolver.
func TenantHandle(c echo.Context) (*resolver.ScopedHandle, bool) {
	handle, ok := c.Get(tenantHandleKey).(*resolver.ScopedHandle)
	return handle, ok && handle != nil
}

func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}
