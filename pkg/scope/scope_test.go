package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(Entity{Name: "products", TenantColumn: "company_id", SoftDeleteColumn: "is_deleted"})
	reg.MustRegister(Entity{Name: "companies", SoftDeleteColumn: "is_deleted"})
	reg.Seal()
	return reg
}

func TestClauseBoundTenant(t *testing.T) {
	reg := testRegistry(t)
	ctx := WithTenant(context.Background(), 42)

	clause, args, err := reg.Clause(ctx, "products", "p", 3)
	require.NoError(t, err)
	assert.Equal(t, "p.is_deleted = FALSE AND p.company_id = $3", clause)
	require.Len(t, args, 1)
	assert.Equal(t, int64(42), args[0])
}

func TestClauseNoAlias(t *testing.T) {
	reg := testRegistry(t)
	ctx := WithTenant(context.Background(), 42)

	clause, _, err := reg.Clause(ctx, "products", "", 1)
	require.NoError(t, err)
	assert.Equal(t, "is_deleted = FALSE AND company_id = $1", clause)
}

func TestClauseFailsClosedWithoutScope(t *testing.T) {
	reg := testRegistry(t)

	_, _, err := reg.Clause(context.Background(), "products", "p", 1)
	assert.ErrorIs(t, err, ErrNoTenantScope)
}

func TestClauseUnscopedKeepsSoftDelete(t *testing.T) {
	reg := testRegistry(t)
	ctx := WithUnscoped(context.Background())

	clause, args, err := reg.Clause(ctx, "products", "p", 1)
	require.NoError(t, err)
	assert.Equal(t, "p.is_deleted = FALSE", clause)
	assert.Empty(t, args)
}

func TestClauseNonTenantEntityNeedsNoScope(t *testing.T) {
	reg := testRegistry(t)

	// Companies are soft-deletable but not tenant-scoped; querying them does
	// not require a bound tenant.
	clause, args, err := reg.Clause(context.Background(), "companies", "c", 1)
	require.NoError(t, err)
	assert.Equal(t, "c.is_deleted = FALSE", clause)
	assert.Empty(t, args)
}

func TestClauseUnregisteredEntity(t *testing.T) {
	reg := testRegistry(t)
	ctx := WithTenant(context.Background(), 42)

	_, _, err := reg.Clause(ctx, "orders", "o", 1)
	assert.ErrorIs(t, err, ErrEntityNotRegistered)
}

func TestRegisterAfterSeal(t *testing.T) {
	reg := testRegistry(t)
	err := reg.Register(Entity{Name: "late", TenantColumn: "company_id"})
	assert.Error(t, err)
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{Name: "products", TenantColumn: "company_id"}))
	assert.Error(t, reg.Register(Entity{Name: "products", TenantColumn: "company_id"}))
}

func TestTenantID(t *testing.T) {
	ctx := WithTenant(context.Background(), 42)
	id, err := TenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = TenantID(context.Background())
	assert.ErrorIs(t, err, ErrNoTenantScope)

	// Unscoped contexts cannot stamp rows with a tenant.
	_, err = TenantID(WithUnscoped(context.Background()))
	assert.ErrorIs(t, err, ErrNoTenantScope)
}
