// Package auth issues access and refresh credentials and implements the
// refresh rotation protocol.
package auth

import "errors"

var (
	// ErrUnauthenticated means the request carried no valid access credential
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRefreshInvalid covers every caller-recoverable refresh failure:
	// unknown, expired, or already rotated/revoked tokens. Reuse of a rotated
	// token is reported with this same error so callers learn nothing extra,
	// while the audit trail records it distinctly.
	ErrRefreshInvalid = errors.New("refresh token invalid")

	// ErrSessionIntegrity means a refresh token reached rotation with no
	// bound membership. That state cannot arise through the API; it is a
	// server-side defect and is logged as one.
	ErrSessionIntegrity = errors.New("session has no tenant membership")
)
