package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// refreshPrefix identifies storefront refresh tokens
	refreshPrefix = "sfr_"
	// refreshLength is the number of random bytes (32 bytes = 256 bits)
	refreshLength = 32
)

// GenerateRefreshToken creates a new opaque refresh credential.
// Format: sfr_<base64url(32 random bytes)>. The plaintext is returned to the
// caller exactly once; only the SHA-256 hash is ever stored.
func GenerateRefreshToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, refreshLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := refreshPrefix + encoded

	hash := sha256.Sum256([]byte(fullToken))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix, for log/display identification
	prefix := refreshPrefix + encoded[:8]

	return fullToken, hashStr, prefix, nil
}

// HashRefreshToken computes the lookup hash of a presented refresh token
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateRefreshFormat checks a presented token's shape before any store
// lookup, so obviously malformed input never reaches the database.
func ValidateRefreshFormat(token string) error {
	if !strings.HasPrefix(token, refreshPrefix) {
		return fmt.Errorf("token must start with %q", refreshPrefix)
	}
	encoded := strings.TrimPrefix(token, refreshPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}
