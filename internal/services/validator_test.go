package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/internal/schema"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ValidatorTestSuite struct {
	suite.Suite
	mock      pgxmock.PgxPoolIface
	tables    *schema.TableDefinitionSet
	validator MigrationValidator
	context   context.Context
}

func (suite *ValidatorTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock
	suite.tables = fitnessSubset()
	suite.validator = NewMigrationValidator(mock, suite.tables, "", nil)
	suite.context = context.Background()
}

func (suite *ValidatorTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestValidatorTestSuite(t *testing.T) {
	suite.Run(t, new(ValidatorTestSuite))
}

func count(n int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"count"}).AddRow(n)
}

func (suite *ValidatorTestSuite) expectStructure(exists bool, tables, indexes int64) {
	suite.mock.ExpectQuery(regexp.QuoteMeta(schemaExistsSQL)).
		WithArgs("tenant_t1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(exists))
	if !exists {
		return
	}
	suite.mock.ExpectQuery(regexp.QuoteMeta(tableCountSQL)).
		WithArgs("tenant_t1", suite.tables.Names()).
		WillReturnRows(count(tables))
	suite.mock.ExpectQuery(regexp.QuoteMeta(indexCountSQL)).
		WithArgs("tenant_t1", suite.tables.IndexNames()).
		WillReturnRows(count(indexes))
}

func (suite *ValidatorTestSuite) expectCounts(table string, source, destination int64) {
	tbl, _ := suite.tables.Table(table)
	suite.mock.ExpectQuery(regexp.QuoteMeta(tbl.CountSourceSQL("public"))).
		WithArgs("t1").
		WillReturnRows(count(source))
	suite.mock.ExpectQuery(regexp.QuoteMeta(tbl.CountDestinationSQL("tenant_t1"))).
		WillReturnRows(count(destination))
}

func (suite *ValidatorTestSuite) TestValidate_AllMatch() {
	suite.expectStructure(true, 3, 0)
	suite.expectCounts("users", 2, 2)
	suite.expectCounts("members", 1, 1)
	suite.expectCounts("workouts", 0, 0)

	report, err := suite.validator.Validate(suite.context, "t1", "tenant_t1")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), report.OK())
	assert.NoError(suite.T(), report.Err())
	assert.Len(suite.T(), report.Tables, 3)
	assert.Equal(suite.T(), 3, report.FoundTables)
}

func (suite *ValidatorTestSuite) TestValidate_RowCountMismatch() {
	suite.expectStructure(true, 3, 0)
	suite.expectCounts("users", 2, 2)
	suite.expectCounts("members", 1, 1)
	suite.expectCounts("workouts", 2, 1)

	report, err := suite.validator.Validate(suite.context, "t1", "tenant_t1")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), report.OK())
	assert.Equal(suite.T(), []string{"workouts: source 2, destination 1"}, report.Mismatches)
	assert.ErrorIs(suite.T(), report.Err(), common.ErrValidationMismatch)
}

func (suite *ValidatorTestSuite) TestValidate_MissingSchemaShortCircuits() {
	suite.expectStructure(false, 0, 0)

	report, err := suite.validator.Validate(suite.context, "t1", "tenant_t1")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), report.SchemaExists)
	assert.Empty(suite.T(), report.Tables)
	assert.ErrorIs(suite.T(), report.Err(), common.ErrValidationMismatch)
}

func (suite *ValidatorTestSuite) TestValidate_MissingTableShortCircuits() {
	suite.expectStructure(true, 2, 0)

	report, err := suite.validator.Validate(suite.context, "t1", "tenant_t1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"tables: expected 3, found 2"}, report.Mismatches)
}

func (suite *ValidatorTestSuite) TestValidate_QueryError() {
	suite.mock.ExpectQuery(regexp.QuoteMeta(schemaExistsSQL)).
		WithArgs("tenant_t1").
		WillReturnError(errors.New("timeout"))

	report, err := suite.validator.Validate(suite.context, "t1", "tenant_t1")
	assert.Nil(suite.T(), report)
	assert.Error(suite.T(), err)
	assert.NotErrorIs(suite.T(), err, common.ErrValidationMismatch)
}
