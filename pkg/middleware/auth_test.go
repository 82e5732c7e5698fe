package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/scope"
)

func newAuthMiddleware(t *testing.T) (*AuthMiddleware, *auth.Issuer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := scope.NewRegistry()
	membership.RegisterScope(reg)
	reg.Seal()

	issuer, err := auth.NewIssuer(map[string][]byte{"k1": []byte("test-secret")}, "k1", "storefront-test", 15*time.Minute)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewAuthMiddleware(issuer, membership.NewStore(db, reg), logger), issuer, mock
}

func passthrough(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareUnknownUserIs401(t *testing.T) {
	mw, issuer, mock := newAuthMiddleware(t)

	token, err := issuer.Issue(7, "gone@example.com", "", nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var called bool
	r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(passthrough(&called)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthMiddlewareStoreFailureIs500(t *testing.T) {
	mw, issuer, mock := newAuthMiddleware(t)

	token, err := issuer.Issue(7, "user@example.com", "", nil)
	require.NoError(t, err)

	// An unreachable user store is an outage, not a bad credential; the
	// caller must not be told to re-authenticate.
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(int64(7)).
		WillReturnError(assert.AnError)

	var called bool
	r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(passthrough(&called)).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}
