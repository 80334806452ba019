package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Naming errors.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// Registry errors.
	ErrNotFound        = errors.New("not found")
	ErrAlreadyMigrated = errors.New("tenant already migrated")
	ErrInvalidStatus   = errors.New("invalid tenant status")

	// Resolution outcomes. These are ordinary control flow on the request path.
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantNotReady = errors.New("tenant not ready")

	ErrValidationMismatch = errors.New("validation mismatch")
)

// Provisioning stages reported in ProvisionError.
const (
	StageSchema  = "schema"
	StageTables  = "tables"
	StageIndexes = "indexes"
)

// ProvisionError is a DDL failure while creating a tenant schema.
type ProvisionError struct {
	TenantID string
	Stage    string
	Object   string
	Err      error
}

func (e *ProvisionError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("provision tenant %s: %s %s: %v", e.TenantID, e.Stage, e.Object, e.Err)
	}
	return fmt.Sprintf("provision tenant %s: %s: %v", e.TenantID, e.Stage, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// MigrateError is a failure reading, transforming or writing tenant rows.
type MigrateError struct {
	TenantID string
	Table    string
	RowID    string
	Err      error
}

func (e *MigrateError) Error() string {
	if e.RowID != "" {
		return fmt.Sprintf("migrate tenant %s: table %s row %s: %v", e.TenantID, e.Table, e.RowID, e.Err)
	}
	return fmt.Sprintf("migrate tenant %s: table %s: %v", e.TenantID, e.Table, e.Err)
}

func (e *MigrateError) Unwrap() error { return e.Err }

// ValidationError lists row-count or structural discrepancies for one tenant.
type ValidationError struct {
	TenantID   string
	Mismatches []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate tenant %s: %d mismatch(es): %s", e.TenantID, len(e.Mismatches), strings.Join(e.Mismatches, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationMismatch }
