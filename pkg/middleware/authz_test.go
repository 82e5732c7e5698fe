package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/permissions"
	"github.com/caravelhq/storefront/pkg/scope"
)

func newAuthzMiddleware(t *testing.T) *AuthzMiddleware {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := scope.NewRegistry()
	membership.RegisterScope(reg)
	reg.Seal()

	cache, err := permissions.NewSetCache(nil, 16, time.Minute)
	require.NoError(t, err)

	members := membership.NewService(membership.NewStore(db, reg),
		permissions.NewRegistry(permissions.DefaultRoleMap()), cache)
	return NewAuthzMiddleware(members, audit.NopLogger{}, nil)
}

func requestWith(ac *auth.Context) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	if ac != nil {
		r = r.WithContext(contextkeys.WithAuth(r.Context(), ac))
	}
	return r
}

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestRequirePermissionAnonymousIs401(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePermission(permissions.PermProductRead)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, requestWith(nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestRequirePermissionMissingIs403(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePermission(permissions.PermProductDelete)(okHandler(&called))

	ac := &auth.Context{
		UserID: 7,
		Membership: &membership.Membership{
			ID: 1, UserID: 7, CompanyID: 42,
			Roles: []permissions.Role{permissions.RoleEmployee},
		},
	}

	rec := httptest.NewRecorder()
	handler(rec, requestWith(ac))

	// A verified caller lacking the permission is forbidden, never
	// unauthenticated. The envelope carries the denial from the permission
	// check itself, not a message composed in the middleware.
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `missing permission \"product:delete\"`)
	assert.False(t, called)
}

func TestRequirePermissionGrantedPasses(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePermission(permissions.PermProductRead)(okHandler(&called))

	ac := &auth.Context{
		UserID: 7,
		Membership: &membership.Membership{
			ID: 1, UserID: 7, CompanyID: 42,
			Roles: []permissions.Role{permissions.RoleEmployee},
		},
	}

	rec := httptest.NewRecorder()
	handler(rec, requestWith(ac))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequirePermissionDirectGrant(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePermission(permissions.PermAuditRead)(okHandler(&called))

	ac := &auth.Context{
		UserID: 7,
		Membership: &membership.Membership{
			ID: 2, UserID: 7, CompanyID: 42,
			Roles:       []permissions.Role{permissions.RoleCustomer},
			Permissions: []permissions.Permission{permissions.PermAuditRead},
		},
	}

	rec := httptest.NewRecorder()
	handler(rec, requestWith(ac))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequirePermissionPlatformAdminBypasses(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePermission(permissions.PermProductDelete)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, requestWith(&auth.Context{UserID: 1, PlatformAdmin: true}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequirePermissionNoMembershipIs403(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePermission(permissions.PermProductRead)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, requestWith(&auth.Context{UserID: 7}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}

func TestRequireAuth(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequireAuth(okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, requestWith(nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, requestWith(&auth.Context{UserID: 7}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequirePlatformAdmin(t *testing.T) {
	mw := newAuthzMiddleware(t)
	var called bool
	handler := mw.RequirePlatformAdmin(okHandler(&called))

	rec := httptest.NewRecorder()
	handler(rec, requestWith(&auth.Context{UserID: 7}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	rec = httptest.NewRecorder()
	handler(rec, requestWith(&auth.Context{UserID: 1, PlatformAdmin: true}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
