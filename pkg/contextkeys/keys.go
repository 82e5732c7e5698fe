// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/caravelhq/storefront/pkg/contextkeys"
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx := ctx.Value(contextkeys.AuthKey).(*auth.Context)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Context
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: all protected endpoints, permission middleware
	AuthKey Key = "auth_context"

	// TenantScopeKey contains scope.TenantScope
	// Set by: middleware.TenantMiddleware after tenant resolution
	// Required by: every store issuing tenant-scoped queries
	TenantScopeKey Key = "tenant_scope"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail, tracing
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: middleware.AuthMiddleware after token verification
	// Used by: logger, audit trail
	UserIDKey Key = "user_id"
)

// Helper functions for type-safe context operations

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithTenantScope adds the resolved tenant scope to the context
func WithTenantScope(ctx context.Context, ts interface{}) context.Context {
	return context.WithValue(ctx, TenantScopeKey, ts)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
