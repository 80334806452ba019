package models

import (
	"time"
)

const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)

type Tenant struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Subdomain    *string   `json:"subdomain,omitempty" db:"subdomain"`
	CustomDomain *string   `json:"custom_domain,omitempty" db:"custom_domain"`
	Status       string    `json:"status" db:"status"`
	SchemaName   *string   `json:"schema_name,omitempty" db:"schema_name"`
	Plan         string    `json:"plan" db:"plan"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsMigrated reports whether the tenant has been assigned its isolated schema.
func (t *Tenant) IsMigrated() bool {
	return t.SchemaName != nil && *t.SchemaName != ""
}

func ValidTenantStatus(status string) bool {
	return status == TenantStatusActive || status == TenantStatusInactive
}
