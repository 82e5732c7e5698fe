package auth

import (
	"context"
	"database/sql"

	"golang.org/x/crypto/bcrypt"
)

// BcryptVerifier checks primary credentials against bcrypt hashes stored on
// the users table. It is the default CredentialVerifier; deployments with an
// external identity provider substitute their own.
type BcryptVerifier struct {
	db *sql.DB
}

// dummyHash is compared against when no account matches, keeping the
// response time of unknown and known emails indistinguishable.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// NewBcryptVerifier creates a database-backed credential verifier
func NewBcryptVerifier(db *sql.DB) *BcryptVerifier {
	return &BcryptVerifier{db: db}
}

// Verify returns the user ID for valid credentials. All failure modes read
// identically as ErrUnauthenticated, so callers cannot probe which emails
// exist.
func (v *BcryptVerifier) Verify(ctx context.Context, email, password string) (int64, error) {
	var userID int64
	var hash string
	err := v.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM users WHERE email = $1 AND is_active = TRUE
	`, email).Scan(&userID, &hash)
	if err != nil {
		// Burn a comparison anyway to keep timing flat across the two paths.
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return 0, ErrUnauthenticated
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return 0, ErrUnauthenticated
	}
	return userID, nil
}

// HashPassword produces a bcrypt hash for account provisioning tooling
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}
