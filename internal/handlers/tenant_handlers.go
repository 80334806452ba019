package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/logging"
	"github.com/harrissondutra/fitOS-sub014/internal/middleware"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/internal/repositories"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"
	"github.com/harrissondutra/fitOS-sub014/pkg/database"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantHandlers handles tenant-related HTTP requests
type TenantHandlers struct {
	registry     repositories.TenantRepository
	invalidators []repositories.Invalidator
	logger       *zap.Logger
}

// NewTenantHandlers creates a new tenant handlers instance. registry should
// be the invalidating registry so status changes reach every resolver cache.
func NewTenantHandlers(registry repositories.TenantRepository, logger *zap.Logger, invalidators ...repositories.Invalidator) *TenantHandlers {
	return &TenantHandlers{
		registry:     registry,
		invalidators: invalidators,
		logger:       logging.OrNop(logger),
	}
}

// TenantResponse is the public view of a registry row.
type TenantResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Subdomain    *string `json:"subdomain,omitempty"`
	CustomDomain *string `json:"custom_domain,omitempty"`
	Status       string  `json:"status"`
	Plan         string  `json:"plan"`
	SchemaName   *string `json:"schema_name,omitempty"`
	Migrated     bool    `json:"migrated"`
}

func toTenantResponse(t *models.Tenant) TenantResponse {
	return TenantResponse{
		ID:           t.ID,
		Name:         t.Name,
		Subdomain:    t.Subdomain,
		CustomDomain: t.CustomDomain,
		Status:       t.Status,
		Plan:         t.Plan,
		SchemaName:   t.SchemaName,
		Migrated:     t.IsMigrated(),
	}
}

// CurrentTenant returns the tenant resolved from the request host.
func (h *TenantHandlers) CurrentTenant(c echo.Context) error {
	handle, ok := middleware.TenantHandle(c)
	if !ok {
		return common.SendNotFoundError(c, "Tenant")
	}
	tenant := handle.Tenant()
	return c.JSON(http.StatusOK, toTenantResponse(&tenant))
}

// GetTenant returns any tenant by id, whatever its status.
func (h *TenantHandlers) GetTenant(c echo.Context) error {
	tenant, err := h.registry.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.registryError(c, err)
	}
	return c.JSON(http.StatusOK, toTenantResponse(tenant))
}

// CreateTenantRequest represents the tenant creation request payload
type CreateTenantRequest struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Subdomain    string  `json:"subdomain"`
	CustomDomain *string `json:"custom_domain"`
	Plan         string  `json:"plan"`
}

// CreateTenant registers a tenant. New tenants are active but not migrated,
// so they resolve as not ready until the migrator assigns their schema.
func (h *TenantHandlers) CreateTenant(c echo.Context) error {
	var req CreateTenantRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request body")
	}
	if err := common.ValidateRequiredString(req.Name, "name"); err != nil {
		return common.SendValidationError(c, "name", err.Error())
	}
	if err := common.ValidateRequiredString(req.Subdomain, "subdomain"); err != nil {
		return common.SendValidationError(c, "subdomain", err.Error())
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, err := schema.Name(req.ID); err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if req.Plan == "" {
		req.Plan = "free"
	}

	subdomain := strings.ToLower(strings.TrimSpace(req.Subdomain))
	tenant := &models.Tenant{
		ID:           req.ID,
		Name:         strings.TrimSpace(req.Name),
		Subdomain:    &subdomain,
		CustomDomain: req.CustomDomain,
		Status:       models.TenantStatusActive,
		Plan:         req.Plan,
	}
	if err := h.registry.Create(c.Request().Context(), tenant); err != nil {
		if database.ErrorCode(err) == database.CodeUniqueViolation {
			h.logger.Warn("tenant already registered", zap.String("tenant_id", tenant.ID), zap.Error(err))
			return common.SendConflictError(c, "Tenant id, subdomain or custom domain already in use")
		}
		h.logger.Error("failed to create tenant", zap.String("tenant_id", tenant.ID), zap.Error(err))
		return common.SendServerError(c, "Failed to create tenant")
	}
	h.logger.Info("tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("subdomain", subdomain),
		zap.String("custom_domain", common.SafeString(tenant.CustomDomain)),
	)

	// Negative cache entries may still hide the new host.
	h.invalidate(c, tenant.ID)

	return c.JSON(http.StatusCreated, toTenantResponse(tenant))
}

// UpdateStatusRequest is the payload of PUT /admin/tenants/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateTenantStatus activates or deactivates a tenant. Resolution reflects
// the change as soon as the call returns.
func (h *TenantHandlers) UpdateTenantStatus(c echo.Context) error {
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "body", "Invalid request body")
	}
	if !models.ValidTenantStatus(req.Status) {
		return common.SendValidationError(c, "status", "status must be active or inactive")
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.registry.SetStatus(ctx, id, req.Status); err != nil {
		return h.registryError(c, err)
	}

	tenant, err := h.registry.GetByID(ctx, id)
	if err != nil {
		return h.registryError(c, err)
	}
	h.logger.Info("tenant status changed", zap.String("tenant_id", id), zap.String("status", req.Status))
	return c.JSON(http.StatusOK, toTenantResponse(tenant))
}

// InvalidateTenant drops cached resolution state for a tenant on every
// gateway without touching the registry.
func (h *TenantHandlers) InvalidateTenant(c echo.Context) error {
	h.invalidate(c, c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *TenantHandlers) invalidate(c echo.Context, id string) {
	for _, inv := range h.invalidators {
		if err := inv.InvalidateTenant(c.Request().Context(), id); err != nil {
			h.logger.Warn("tenant cache invalidation failed", zap.String("tenant_id", id), zap.Error(err))
		}
	}
}

func (h *TenantHandlers) registryError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return common.SendNotFoundError(c, "Tenant")
	case errors.Is(err, common.ErrInvalidStatus):
		return common.SendValidationError(c, "status", err.Error())
	default:
		h.logger.Error("tenant registry error", zap.String("tenant_id", c.Param("id")), zap.Error(err))
		return common.SendServerError(c, "Failed to access tenant registry")
	}
}
