// Package middleware contains the request pipeline: identity verification,
// tenant resolution, and permission enforcement, in that order.
package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/observability"
)

// AuthMiddleware verifies the bearer access token and attaches the caller
// identity to the context. Requests without a valid token proceed anonymous;
// enforcement happens downstream in RequirePermission, which keeps the
// missing-credential and insufficient-permission responses distinct.
type AuthMiddleware struct {
	issuer *auth.Issuer
	users  *membership.Store
	logger *observability.Logger
}

// NewAuthMiddleware creates the auth middleware
func NewAuthMiddleware(issuer *auth.Issuer, users *membership.Store, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{issuer: issuer, users: users, logger: logger}
}

// Handler wraps next with token verification
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := httputil.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.issuer.Verify(token)
		if err != nil {
			// A present-but-bad token is rejected outright rather than
			// downgraded to anonymous.
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "invalid access token")
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "invalid access token")
			return
		}

		user, err := m.users.GetUser(r.Context(), userID)
		if err != nil {
			// Only a confirmed missing user reads as a credential failure.
			// An unreachable store must not masquerade as token rejection.
			if !errors.Is(err, membership.ErrNotFound) {
				m.logger.WithError(err).Error("failed to load user for access token")
				httputil.WriteErrorCode(w, http.StatusInternalServerError, "internal_error", "could not verify credentials")
				return
			}
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "invalid access token")
			return
		}
		if !user.IsActive {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "invalid access token")
			return
		}

		ac := &auth.Context{
			UserID:        user.ID,
			Email:         user.Email,
			Name:          user.DisplayName,
			CompanyID:     claims.CompanyID,
			PlatformAdmin: user.PlatformAdmin,
		}

		ctx := contextkeys.WithAuth(r.Context(), ac)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
