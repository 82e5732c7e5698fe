package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RefreshToken is the persisted server-side state of one refresh credential.
// States: Active (RevokedAt nil, unexpired), Rotated (RevokedAt set with a
// successor), RevokedExplicitly (RevokedAt set, no successor), Expired.
type RefreshToken struct {
	ID           int64
	UserID       int64
	MembershipID int64
	CodeHash     string
	CodePrefix   string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	// ReplacedByHash points at the successor credential once rotated
	ReplacedByHash *string
}

// Active reports whether the token may still be presented
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Rotated reports whether the token was consumed by a successful rotation
func (t *RefreshToken) Rotated() bool {
	return t.RevokedAt != nil && t.ReplacedByHash != nil
}

// TokenStore persists refresh tokens
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a refresh token store
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

const refreshColumns = "id, user_id, membership_id, code_hash, code_prefix, issued_at, expires_at, revoked_at, replaced_by_hash"

func scanRefreshToken(scanner interface {
	Scan(dest ...interface{}) error
}) (*RefreshToken, error) {
	var t RefreshToken
	var revokedAt sql.NullTime
	var replacedBy sql.NullString

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.MembershipID, &t.CodeHash, &t.CodePrefix,
		&t.IssuedAt, &t.ExpiresAt, &revokedAt, &replacedBy,
	)
	if err != nil {
		return nil, err
	}

	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	if replacedBy.Valid {
		h := replacedBy.String
		t.ReplacedByHash = &h
	}
	return &t, nil
}

// Create persists a brand-new Active token
func (s *TokenStore) Create(ctx context.Context, t *RefreshToken) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, membership_id, code_hash, code_prefix, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.UserID, t.MembershipID, t.CodeHash, t.CodePrefix, t.IssuedAt, t.ExpiresAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// GetByHash looks up a token by the hash of its opaque code
func (s *TokenStore) GetByHash(ctx context.Context, codeHash string) (*RefreshToken, error) {
	t, err := scanRefreshToken(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM refresh_tokens WHERE code_hash = $1
	`, refreshColumns), codeHash))
	if err == sql.ErrNoRows {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return t, nil
}

// Rotate atomically retires the old token and persists its successor in one
// transaction. The UPDATE only matches a still-active row; when a concurrent
// rotation already consumed the token, zero rows match and the whole
// operation rolls back with ErrRefreshInvalid. A crash between the two
// statements leaves the transaction uncommitted, so the old token stays
// usable; there is never a revoked-with-no-successor committed state.
func (s *TokenStore) Rotate(ctx context.Context, oldHash string, successor *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $1, replaced_by_hash = $2
		WHERE code_hash = $3 AND revoked_at IS NULL
	`, time.Now(), successor.CodeHash, oldHash)
	if err != nil {
		return fmt.Errorf("failed to retire refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rotation result: %w", err)
	}
	if n == 0 {
		return ErrRefreshInvalid
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO refresh_tokens (user_id, membership_id, code_hash, code_prefix, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, successor.UserID, successor.MembershipID, successor.CodeHash, successor.CodePrefix,
		successor.IssuedAt, successor.ExpiresAt).Scan(&successor.ID)
	if err != nil {
		return fmt.Errorf("failed to persist successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	return nil
}

// RevokeChain revokes every descendant of a token, following successor
// pointers. Used when a rotated token is presented again: the live end of the
// chain is assumed compromised along with the duplicate.
func (s *TokenStore) RevokeChain(ctx context.Context, codeHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT code_hash, replaced_by_hash FROM refresh_tokens WHERE code_hash = $1
			UNION ALL
			SELECT t.code_hash, t.replaced_by_hash
			FROM refresh_tokens t
			JOIN chain c ON t.code_hash = c.replaced_by_hash
		)
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE code_hash IN (SELECT code_hash FROM chain) AND revoked_at IS NULL
	`, codeHash, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke token chain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check chain revocation: %w", err)
	}
	return n, nil
}

// RevokeAllForUser invalidates every active token of a user in one statement.
// Backs logout-everywhere and password reset.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, time.Now(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check revocation result: %w", err)
	}
	return n, nil
}

// Revoke invalidates one token (single-session logout)
func (s *TokenStore) Revoke(ctx context.Context, codeHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = $1
		WHERE code_hash = $2 AND revoked_at IS NULL
	`, time.Now(), codeHash)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revocation result: %w", err)
	}
	if n == 0 {
		return ErrRefreshInvalid
	}
	return nil
}

// PurgeExpired deletes tokens past expiry plus a grace window. Rotated tokens
// are kept through the grace window so reuse of a recent chain still trips
// detection.
func (s *TokenStore) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, time.Now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check purge result: %w", err)
	}
	return n, nil
}
