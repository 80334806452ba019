package services

import (
	"context"
	"errors"
	"testing"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/models"
	"github.com/harrissondutra/fitOS-sub014/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Provision(ctx context.Context, tenantID, schemaName string) error {
	return m.Called(ctx, tenantID, schemaName).Error(0)
}

func (m *MockProvisioner) EnsureSchema(ctx context.Context, tenantID, schemaName string) error {
	return m.Called(ctx, tenantID, schemaName).Error(0)
}

func (m *MockProvisioner) EnsureTables(ctx context.Context, tenantID, schemaName string) error {
	return m.Called(ctx, tenantID, schemaName).Error(0)
}

func (m *MockProvisioner) EnsureIndexes(ctx context.Context, tenantID, schemaName string) error {
	return m.Called(ctx, tenantID, schemaName).Error(0)
}

type MockMigrator struct {
	mock.Mock
}

func (m *MockMigrator) Migrate(ctx context.Context, tenantID, schemaName string) (*models.MigrationReport, error) {
	args := m.Called(ctx, tenantID, schemaName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MigrationReport), args.Error(1)
}

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, tenantID, schemaName string) (*models.ValidationReport, error) {
	args := m.Called(ctx, tenantID, schemaName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ValidationReport), args.Error(1)
}

type OrchestratorTestSuite struct {
	suite.Suite
	registry    *testhelpers.MemoryTenantRepository
	provisioner *MockProvisioner
	migrator    *MockMigrator
	validator   *MockValidator
}

func (suite *OrchestratorTestSuite) SetupTest() {
	suite.registry = testhelpers.NewMemoryTenantRepository(
		&models.Tenant{ID: "t1", Name: "Acme", Subdomain: testhelpers.StringPtr("acme")},
		&models.Tenant{ID: "t2", Name: "Zen", Subdomain: testhelpers.StringPtr("zen"), SchemaName: testhelpers.StringPtr("tenant_t2")},
		&models.Tenant{ID: "t3", Name: "Iron", Subdomain: testhelpers.StringPtr("iron")},
		&models.Tenant{ID: "t4", Name: "Gone", Status: models.TenantStatusInactive},
	)
	suite.provisioner = &MockProvisioner{}
	suite.migrator = &MockMigrator{}
	suite.validator = &MockValidator{}
	suite.provisioner.Test(suite.T())
	suite.migrator.Test(suite.T())
	suite.validator.Test(suite.T())
}

func (suite *OrchestratorTestSuite) TearDownTest() {
	suite.provisioner.AssertExpectations(suite.T())
	suite.migrator.AssertExpectations(suite.T())
	suite.validator.AssertExpectations(suite.T())
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (suite *OrchestratorTestSuite) orchestrator(opts OrchestratorOptions) *Orchestrator {
	return NewOrchestrator(suite.registry, suite.provisioner, suite.migrator, suite.validator, opts, nil)
}

func (suite *OrchestratorTestSuite) expectHappy(tenantID string) {
	schemaName := "tenant_" + tenantID
	suite.provisioner.On("EnsureSchema", mock.Anything, tenantID, schemaName).Return(nil).Once()
	suite.provisioner.On("EnsureTables", mock.Anything, tenantID, schemaName).Return(nil).Once()
	suite.provisioner.On("EnsureIndexes", mock.Anything, tenantID, schemaName).Return(nil).Once()
	suite.migrator.On("Migrate", mock.Anything, tenantID, schemaName).
		Return(&models.MigrationReport{TenantID: tenantID, SchemaName: schemaName, Tables: []models.TableMigration{{Table: "users", RowsRead: 2, RowsWritten: 2}}}, nil).Once()
	suite.validator.On("Validate", mock.Anything, tenantID, schemaName).
		Return(&models.ValidationReport{TenantID: tenantID, SchemaName: schemaName, SchemaExists: true}, nil).Once()
}

func record(summary *models.RunSummary, tenantID string) *models.MigrationRecord {
	for _, r := range summary.Records {
		if r.TenantID == tenantID {
			return r
		}
	}
	return nil
}

func (suite *OrchestratorTestSuite) TestRun_IsolatesFailures() {
	suite.expectHappy("t1")
	suite.provisioner.On("EnsureSchema", mock.Anything, "t3", "tenant_t3").Return(nil).Once()
	suite.provisioner.On("EnsureTables", mock.Anything, "t3", "tenant_t3").
		Return(&common.ProvisionError{TenantID: "t3", Stage: common.StageTables, Object: "members", Err: errors.New("disk full")}).Once()

	summary, err := suite.orchestrator(OrchestratorOptions{Workers: 2}).Run(context.Background())
	require.NoError(suite.T(), err)

	assert.NotEmpty(suite.T(), summary.RunID)
	assert.Len(suite.T(), summary.Records, 3, "inactive tenants are not listed")
	assert.Equal(suite.T(), 1, summary.Migrated)
	assert.Equal(suite.T(), 1, summary.Failed)
	assert.Equal(suite.T(), 1, summary.Skipped)
	assert.False(suite.T(), summary.Cancelled)
	assert.True(suite.T(), summary.HasFailures())

	t1 := record(summary, "t1")
	assert.Equal(suite.T(), models.PhaseMigrated, t1.Phase)
	assert.Equal(suite.T(), "tenant_t1", t1.SchemaName)
	assert.NotNil(suite.T(), t1.Migration)

	t3 := record(summary, "t3")
	assert.Equal(suite.T(), models.PhaseFailed, t3.Phase)
	assert.Equal(suite.T(), models.PhaseTablesCreating, t3.FailedPhase)
	var pe *common.ProvisionError
	assert.ErrorAs(suite.T(), t3.Err(), &pe)

	assert.Equal(suite.T(), models.PhaseSkipped, record(summary, "t2").Phase)
	assert.Equal(suite.T(), []string{"tenant_t1", "tenant_t2"}, suite.registry.SchemaNames())
}

func (suite *OrchestratorTestSuite) TestRun_ValidationMismatchLeavesTenantUnmigrated() {
	suite.provisioner.On("EnsureSchema", mock.Anything, "t1", "tenant_t1").Return(nil)
	suite.provisioner.On("EnsureTables", mock.Anything, "t1", "tenant_t1").Return(nil)
	suite.provisioner.On("EnsureIndexes", mock.Anything, "t1", "tenant_t1").Return(nil)
	suite.migrator.On("Migrate", mock.Anything, "t1", "tenant_t1").
		Return(&models.MigrationReport{TenantID: "t1", Errors: []models.RowError{{Table: "workouts", RowID: "w2", Code: "23503"}}}, nil)
	suite.validator.On("Validate", mock.Anything, "t1", "tenant_t1").
		Return(&models.ValidationReport{TenantID: "t1", SchemaExists: true, Mismatches: []string{"workouts: source 2, destination 1"}}, nil)

	summary, err := suite.orchestrator(OrchestratorOptions{TenantIDs: []string{"t1"}}).Run(context.Background())
	require.NoError(suite.T(), err)

	t1 := record(summary, "t1")
	assert.Equal(suite.T(), models.PhaseFailed, t1.Phase)
	assert.Equal(suite.T(), models.PhaseValidating, t1.FailedPhase)
	assert.ErrorIs(suite.T(), t1.Err(), common.ErrValidationMismatch)
	assert.NotNil(suite.T(), t1.Validation)

	tenant, err := suite.registry.GetByID(context.Background(), "t1")
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), tenant.SchemaName)
}

func (suite *OrchestratorTestSuite) TestRun_MigrateErrorKeepsPartialReport() {
	suite.provisioner.On("EnsureSchema", mock.Anything, "t1", "tenant_t1").Return(nil)
	suite.provisioner.On("EnsureTables", mock.Anything, "t1", "tenant_t1").Return(nil)
	suite.provisioner.On("EnsureIndexes", mock.Anything, "t1", "tenant_t1").Return(nil)
	partial := &models.MigrationReport{TenantID: "t1", Tables: []models.TableMigration{{Table: "users", RowsRead: 1}}}
	suite.migrator.On("Migrate", mock.Anything, "t1", "tenant_t1").
		Return(partial, &common.MigrateError{TenantID: "t1", Table: "users", RowID: "u1", Err: errors.New("boom")})

	summary, err := suite.orchestrator(OrchestratorOptions{TenantIDs: []string{"t1"}}).Run(context.Background())
	require.NoError(suite.T(), err)

	t1 := record(summary, "t1")
	assert.Equal(suite.T(), models.PhaseDataMigrating, t1.FailedPhase)
	assert.Same(suite.T(), partial, t1.Migration)
	suite.validator.AssertNotCalled(suite.T(), "Validate", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *OrchestratorTestSuite) TestRun_FilterReportsUnknownTenants() {
	summary, err := suite.orchestrator(OrchestratorOptions{TenantIDs: []string{"t2", "t4", "nope", "t2"}}).Run(context.Background())
	require.NoError(suite.T(), err)

	assert.Len(suite.T(), summary.Records, 3)
	assert.Equal(suite.T(), 3, summary.Skipped)
	assert.Contains(suite.T(), record(summary, "t4").Error, "not active")
	assert.Contains(suite.T(), record(summary, "nope").Error, "not active")
}

func (suite *OrchestratorTestSuite) TestRun_CancelledBeforeStart() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := suite.orchestrator(OrchestratorOptions{}).Run(ctx)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), summary.Cancelled)
	assert.Equal(suite.T(), 3, summary.NotStarted)
	assert.Equal(suite.T(), 0, summary.Migrated+summary.Failed+summary.Skipped)
}

func (suite *OrchestratorTestSuite) TestRun_CancelMidRunFinishesInFlightTenant() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	suite.provisioner.On("EnsureSchema", mock.Anything, "t1", "tenant_t1").Return(nil).Once()
	suite.provisioner.On("EnsureTables", mock.Anything, "t1", "tenant_t1").Return(nil).Once()
	suite.provisioner.On("EnsureIndexes", mock.Anything, "t1", "tenant_t1").Return(nil).Once()
	suite.migrator.On("Migrate", mock.Anything, "t1", "tenant_t1").
		Run(func(args mock.Arguments) {
			cancel()
			assert.NoError(suite.T(), args.Get(0).(context.Context).Err(), "in-flight tenant keeps its context")
		}).
		Return(&models.MigrationReport{TenantID: "t1"}, nil).Once()
	suite.validator.On("Validate", mock.Anything, "t1", "tenant_t1").
		Return(&models.ValidationReport{TenantID: "t1", SchemaExists: true}, nil).Once()

	o := suite.orchestrator(OrchestratorOptions{Workers: 1, TenantIDs: []string{"t1", "t3"}})
	summary, err := o.Run(ctx)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), models.PhaseMigrated, record(summary, "t1").Phase)
	assert.Equal(suite.T(), models.PhaseUnmigrated, record(summary, "t3").Phase)
	assert.True(suite.T(), summary.Cancelled)
	assert.Equal(suite.T(), 1, summary.NotStarted)
	assert.Equal(suite.T(), 1, summary.Migrated)
}

func (suite *OrchestratorTestSuite) TestRun_ListFailure() {
	registry := &testhelpers.MockTenantRepository{}
	registry.On("ListActive", mock.Anything).Return(nil, errors.New("db down"))

	o := NewOrchestrator(registry, suite.provisioner, suite.migrator, suite.validator, OrchestratorOptions{}, nil)
	summary, err := o.Run(context.Background())
	assert.Nil(suite.T(), summary)
	assert.Error(suite.T(), err)
}

func (suite *OrchestratorTestSuite) TestMigrateTenant() {
	suite.expectHappy("t1")
	tenant, err := suite.registry.GetByID(context.Background(), "t1")
	require.NoError(suite.T(), err)

	rec := suite.orchestrator(OrchestratorOptions{}).MigrateTenant(context.Background(), tenant)
	assert.Equal(suite.T(), models.PhaseMigrated, rec.Phase)
	assert.NoError(suite.T(), rec.Err())

	again, err := suite.registry.GetByID(context.Background(), "t1")
	require.NoError(suite.T(), err)
	rec = suite.orchestrator(OrchestratorOptions{}).MigrateTenant(context.Background(), again)
	assert.Equal(suite.T(), models.PhaseSkipped, rec.Phase)
}

func (suite *OrchestratorTestSuite) TestMigrateTenant_RefusesSchemaOwnedByAnotherTenant() {
	require.NoError(suite.T(), suite.registry.Create(context.Background(), &models.Tenant{
		ID: "legacy", Name: "Legacy", SchemaName: testhelpers.StringPtr("tenant_t1"),
	}))
	tenant, err := suite.registry.GetByID(context.Background(), "t1")
	require.NoError(suite.T(), err)

	rec := suite.orchestrator(OrchestratorOptions{}).MigrateTenant(context.Background(), tenant)

	assert.Equal(suite.T(), models.PhaseFailed, rec.Phase)
	assert.Equal(suite.T(), models.PhaseUnmigrated, rec.FailedPhase)
	assert.ErrorIs(suite.T(), rec.Err(), common.ErrInvalidIdentifier)
	assert.ErrorContains(suite.T(), rec.Err(), "already belongs to tenant legacy")
	suite.provisioner.AssertNotCalled(suite.T(), "EnsureSchema", mock.Anything, mock.Anything, mock.Anything)

	again, err := suite.registry.GetByID(context.Background(), "t1")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), again.IsMigrated())
}

func (suite *OrchestratorTestSuite) TestMigrateTenant_OwnerLookupFailure() {
	registry := &testhelpers.MockTenantRepository{}
	registry.On("GetBySchemaName", mock.Anything, "tenant_t1").Return(nil, errors.New("db down"))

	o := NewOrchestrator(registry, suite.provisioner, suite.migrator, suite.validator, OrchestratorOptions{}, nil)
	rec := o.MigrateTenant(context.Background(), &models.Tenant{ID: "t1", Status: models.TenantStatusActive})

	assert.Equal(suite.T(), models.PhaseFailed, rec.Phase)
	assert.ErrorContains(suite.T(), rec.Err(), "check owner of schema tenant_t1")
	registry.AssertExpectations(suite.T())
}

func (suite *OrchestratorTestSuite) TestValidateAll_OnlyMigratedTenants() {
	suite.validator.On("Validate", mock.Anything, "t2", "tenant_t2").
		Return(&models.ValidationReport{TenantID: "t2", SchemaExists: true}, nil).Once()

	reports, err := suite.orchestrator(OrchestratorOptions{}).ValidateAll(context.Background())
	require.NoError(suite.T(), err)
	require.Len(suite.T(), reports, 1)
	assert.Equal(suite.T(), "t2", reports[0].TenantID)
}

func (suite *OrchestratorTestSuite) TestValidateAll_JoinsErrors() {
	suite.validator.On("Validate", mock.Anything, "t2", "tenant_t2").
		Return(nil, errors.New("timeout")).Once()

	reports, err := suite.orchestrator(OrchestratorOptions{}).ValidateAll(context.Background())
	assert.Empty(suite.T(), reports)
	assert.ErrorContains(suite.T(), err, "tenant t2")
}
