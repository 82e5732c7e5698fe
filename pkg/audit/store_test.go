package audit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/scope"
)

func newTestStore(t *testing.T) (*Store, *DBLogger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := scope.NewRegistry()
	RegisterScope(reg)
	reg.Seal()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewStore(db, reg), NewDBLogger(db, logger), mock
}

func TestRecordInsertsEvent(t *testing.T) {
	_, dbLogger, mock := newTestStore(t)

	userID := int64(7)
	companyID := int64(42)
	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(sqlmock.AnyArg(), "auth.login", "success", userID, companyID, "req-1", "", "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	dbLogger.Record(Event{
		EventType: EventTypeAuthLogin,
		Status:    EventStatusSuccess,
		UserID:    &userID,
		CompanyID: &companyID,
		RequestID: "req-1",
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	_, dbLogger, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO audit_events").
		WillReturnError(assert.AnError)

	// Must not panic or propagate: an audit write never fails the request.
	dbLogger.Record(Event{EventType: EventTypeAuthLogout, Status: EventStatusSuccess})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListScopedToTenant(t *testing.T) {
	store, _, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status", "user_id", "company_id",
		"request_id", "ip_address", "message", "token_prefix",
	}).AddRow(1, time.Now(), "authz.access_denied", "denied", 7, 42, "req-1", "", "product:delete required", "")

	mock.ExpectQuery("SELECT (.+) FROM audit_events a").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	events, err := store.List(scope.WithTenant(context.Background(), 42), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAuthzDenied, events[0].EventType)
	require.NotNil(t, events[0].CompanyID)
	assert.Equal(t, int64(42), *events[0].CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFailsClosedWithoutScope(t *testing.T) {
	store, _, mock := newTestStore(t)

	_, err := store.List(context.Background(), 100)
	assert.ErrorIs(t, err, scope.ErrNoTenantScope)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeOlderThan(t *testing.T) {
	store, _, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM audit_events").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 17))

	n, err := store.PurgeOlderThan(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
