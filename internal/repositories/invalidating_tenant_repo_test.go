package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
	"github.com/harrissondutra/fitOS-sub014/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestInvalidatingTenantRepo_InvalidatesAfterWrites(t *testing.T) {
	ctx := context.Background()
	inner := &testhelpers.MockTenantRepository{}
	local := &testhelpers.MockInvalidator{}
	remote := &testhelpers.MockInvalidator{}

	inner.On("SetStatus", ctx, "t1", "inactive").Return(nil)
	inner.On("SetSchemaName", ctx, "t1", "tenant_t1").Return(nil)
	local.On("InvalidateTenant", ctx, "t1").Return(nil).Twice()
	remote.On("InvalidateTenant", ctx, "t1").Return(errors.New("redis down")).Twice()

	repo := NewInvalidatingTenantRepo(inner, nil, local, remote)

	assert.NoError(t, repo.SetStatus(ctx, "t1", "inactive"))
	assert.NoError(t, repo.SetSchemaName(ctx, "t1", "tenant_t1"))

	inner.AssertExpectations(t)
	local.AssertExpectations(t)
	remote.AssertExpectations(t)
}

func TestInvalidatingTenantRepo_SkipsInvalidationOnFailure(t *testing.T) {
	ctx := context.Background()
	inner := &testhelpers.MockTenantRepository{}
	inv := &testhelpers.MockInvalidator{}

	inner.On("SetSchemaName", ctx, "t1", "tenant_x").Return(common.ErrAlreadyMigrated)

	repo := NewInvalidatingTenantRepo(inner, nil, inv)
	err := repo.SetSchemaName(ctx, "t1", "tenant_x")

	assert.ErrorIs(t, err, common.ErrAlreadyMigrated)
	inv.AssertNotCalled(t, "InvalidateTenant", mock.Anything, mock.Anything)
}

func TestInvalidatingTenantRepo_PassesReadsThrough(t *testing.T) {
	ctx := context.Background()
	inner := &testhelpers.MockTenantRepository{}
	inner.On("GetBySubdomain", ctx, "acme").Return(nil, common.ErrNotFound)

	repo := NewInvalidatingTenantRepo(inner, nil)
	_, err := repo.GetBySubdomain(ctx, "acme")

	assert.ErrorIs(t, err, common.ErrNotFound)
	inner.AssertExpectations(t)
}
