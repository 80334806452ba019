package handlers

import (
	"github.com/harrissondutra/fitOS-sub014/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Routes bundles what RegisterRoutes needs to wire the gateway.
type Routes struct {
	Health     *HealthHandlers
	Tenants    *TenantHandlers
	Resolver   middleware.HostResolver
	AdminToken string
	Logger     *zap.Logger
}

// RegisterRoutes mounts health probes at the root, tenant-scoped routes under
// /v1 behind host resolution, and operator routes under /admin.
func RegisterRoutes(e *echo.Echo, r Routes) {
	e.GET("/health", r.Health.LivenessCheck)
	e.GET("/health/ready", r.Health.ReadinessCheck)

	v1 := middleware.VersionRoute(e, "v1")
	v1.Use(middleware.TenantResolver(r.Resolver, r.Logger))
	v1.GET("/tenant", r.Tenants.CurrentTenant)

	admin := e.Group("/admin", middleware.AdminToken(r.AdminToken))
	admin.POST("/tenants", r.Tenants.CreateTenant)
	admin.GET("/tenants/:id", r.Tenants.GetTenant)
	admin.PUT("/tenants/:id/status", r.Tenants.UpdateTenantStatus)
	admin.POST("/tenants/:id/invalidate", r.Tenants.InvalidateTenant)
}
