package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/resolver"

	"github.com/labstack/echo/v4"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatser exposes resolver cache counters.
type CacheStatser interface {
	Stats() resolver.CacheStats
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db        Pinger
	redis     Pinger
	cache     CacheStatser
	version   string
	startedAt time.Time
}

// NewHealthHandlers creates a new health handlers instance. redis and cache
// may be nil.
func NewHealthHandlers(db Pinger, redis Pinger, cache CacheStatser, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		redis:     redis,
		cache:     cache,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     string               `json:"status"`
	Timestamp  string               `json:"timestamp"`
	Services   map[string]string    `json:"services,omitempty"`
	Uptime     string               `json:"uptime"`
	Version    string               `json:"version"`
	Goroutines int                  `json:"goroutines"`
	Cache      *resolver.CacheStats `json:"cache,omitempty"`
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status("alive"))
}

// ReadinessCheck reports whether the gateway can serve tenant traffic. The
// database is required; Redis only degrades cross-process invalidation.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	health := h.status("ready")
	health.Services = make(map[string]string)

	statusCode := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		health.Services["database"] = "unhealthy"
		health.Status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	} else {
		health.Services["database"] = "healthy"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			health.Services["redis"] = "unhealthy"
			if statusCode == http.StatusOK {
				health.Status = "degraded"
			}
		} else {
			health.Services["redis"] = "healthy"
		}
	}

	if h.cache != nil {
		stats := h.cache.Stats()
		health.Cache = &stats
	}

	return c.JSON(statusCode, health)
}

func (h *HealthHandlers) status(status string) *HealthStatus {
	return &HealthStatus{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Version:    h.version,
		Goroutines: runtime.NumGoroutine(),
	}
}
