package models

import (
	"errors"
	"testing"

	"github.com/harrissondutra/fitOS-sub014/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationRecord_HappyPath(t *testing.T) {
	rec := NewMigrationRecord("run-1", &Tenant{ID: "t1", Name: "Acme Gym"})
	assert.Equal(t, PhaseUnmigrated, rec.Phase)

	for _, p := range []Phase{PhaseSchemaCreating, PhaseTablesCreating, PhaseDataMigrating, PhaseValidating, PhaseMigrated} {
		require.NoError(t, rec.Advance(p))
		assert.Equal(t, p, rec.Phase)
	}
	assert.True(t, rec.Phase.Terminal())
	assert.False(t, rec.FinishedAt.IsZero())
}

func TestMigrationRecord_RejectsSkippingPhases(t *testing.T) {
	rec := NewMigrationRecord("run-1", &Tenant{ID: "t1"})

	err := rec.Advance(PhaseDataMigrating)
	assert.Error(t, err)
	assert.Equal(t, PhaseUnmigrated, rec.Phase)

	require.NoError(t, rec.Advance(PhaseSchemaCreating))
	assert.Error(t, rec.Advance(PhaseMigrated))
}

func TestMigrationRecord_FailKeepsPhase(t *testing.T) {
	rec := NewMigrationRecord("run-1", &Tenant{ID: "t1"})
	require.NoError(t, rec.Advance(PhaseSchemaCreating))
	require.NoError(t, rec.Advance(PhaseTablesCreating))

	cause := errors.New("permission denied")
	require.NoError(t, rec.Fail(cause))

	assert.Equal(t, PhaseFailed, rec.Phase)
	assert.Equal(t, PhaseTablesCreating, rec.FailedPhase)
	assert.Equal(t, "permission denied", rec.Error)
	assert.ErrorIs(t, rec.Err(), cause)

	assert.Error(t, rec.Fail(cause), "failed is terminal")
	assert.Error(t, rec.Advance(PhaseDataMigrating))
}

func TestMigrationRecord_Skip(t *testing.T) {
	rec := NewMigrationRecord("run-1", &Tenant{ID: "t1"})
	require.NoError(t, rec.Skip("already migrated"))
	assert.Equal(t, PhaseSkipped, rec.Phase)

	rec = NewMigrationRecord("run-1", &Tenant{ID: "t2"})
	require.NoError(t, rec.Advance(PhaseSchemaCreating))
	assert.Error(t, rec.Skip("late"))
}

func TestRunSummary_Tally(t *testing.T) {
	s := &RunSummary{Records: []*MigrationRecord{
		{Phase: PhaseMigrated},
		{Phase: PhaseMigrated},
		{Phase: PhaseFailed},
		{Phase: PhaseSkipped},
	}}
	s.Tally()

	assert.Equal(t, 2, s.Migrated)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.True(t, s.HasFailures())
}

func TestMigrationReport_Totals(t *testing.T) {
	r := &MigrationReport{Tables: []TableMigration{
		{Table: "users", RowsRead: 3, RowsWritten: 3},
		{Table: "workouts", RowsRead: 5, RowsWritten: 4, RowsSkipped: 1},
	}}
	read, written, skipped := r.Totals()
	assert.Equal(t, int64(8), read)
	assert.Equal(t, int64(7), written)
	assert.Equal(t, int64(1), skipped)
}

func TestTenant_Helpers(t *testing.T) {
	schema := "tenant_t1"
	tenant := &Tenant{Status: TenantStatusActive, SchemaName: &schema}
	assert.True(t, tenant.IsActive())
	assert.True(t, tenant.IsMigrated())

	empty := ""
	tenant = &Tenant{Status: TenantStatusInactive, SchemaName: &empty}
	assert.False(t, tenant.IsActive())
	assert.False(t, tenant.IsMigrated())

	assert.True(t, ValidTenantStatus("inactive"))
	assert.False(t, ValidTenantStatus("suspended"))
}

func TestValidationReport_Err(t *testing.T) {
	r := &ValidationReport{TenantID: "t1"}
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())

	r.Mismatches = []string{"workouts: source 3, destination 2"}
	err := r.Err()
	assert.ErrorIs(t, err, common.ErrValidationMismatch)

	var ve *common.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "t1", ve.TenantID)
}
