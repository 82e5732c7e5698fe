package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*TokenStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewTokenStore(db), mock, func() { db.Close() }
}

func refreshRows(t *RefreshToken) *sqlmock.Rows {
	var revokedAt interface{}
	if t.RevokedAt != nil {
		revokedAt = *t.RevokedAt
	}
	var replacedBy interface{}
	if t.ReplacedByHash != nil {
		replacedBy = *t.ReplacedByHash
	}
	return sqlmock.NewRows([]string{
		"id", "user_id", "membership_id", "code_hash", "code_prefix",
		"issued_at", "expires_at", "revoked_at", "replaced_by_hash",
	}).AddRow(t.ID, t.UserID, t.MembershipID, t.CodeHash, t.CodePrefix,
		t.IssuedAt, t.ExpiresAt, revokedAt, replacedBy)
}

func TestGetByHashNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens").
		WithArgs("deadbeef").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByHash(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByHashStates(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	successor := "hash-b"
	stored := &RefreshToken{
		ID: 1, UserID: 7, MembershipID: 3,
		CodeHash: "hash-a", CodePrefix: "sfr_aaaa",
		IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour),
		RevokedAt: &now, ReplacedByHash: &successor,
	}

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens").
		WithArgs("hash-a").
		WillReturnRows(refreshRows(stored))

	got, err := store.GetByHash(context.Background(), "hash-a")
	require.NoError(t, err)
	assert.True(t, got.Rotated())
	assert.False(t, got.Active(now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateCommitsBothStatements(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	successor := &RefreshToken{
		UserID: 7, MembershipID: 3,
		CodeHash: "hash-b", CodePrefix: "sfr_bbbb",
		IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "hash-b", "hash-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WithArgs(int64(7), int64(3), "hash-b", "sfr_bbbb", successor.IssuedAt, successor.ExpiresAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))
	mock.ExpectCommit()

	require.NoError(t, store.Rotate(context.Background(), "hash-a", successor))
	assert.Equal(t, int64(99), successor.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateLosesRaceRollsBack(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	successor := &RefreshToken{
		UserID: 7, MembershipID: 3,
		CodeHash: "hash-b", CodePrefix: "sfr_bbbb",
		IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}

	// Concurrent rotation already consumed the token: zero rows match.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "hash-b", "hash-a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Rotate(context.Background(), "hash-a", successor)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateInsertFailureRollsBackRevocation(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	successor := &RefreshToken{
		UserID: 7, MembershipID: 3,
		CodeHash: "hash-b", CodePrefix: "sfr_bbbb",
		IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}

	// If the successor cannot be persisted the revocation must not commit,
	// otherwise the chain ends in a revoked token with no live successor.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "hash-b", "hash-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO refresh_tokens").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.Rotate(context.Background(), "hash-a", successor)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeChain(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("WITH RECURSIVE chain").
		WithArgs("hash-a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.RevokeChain(context.Background(), "hash-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAlreadyRevoked(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "hash-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Revoke(context.Background(), "hash-a")
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUser(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.RevokeAllForUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpired(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := store.PurgeExpired(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
