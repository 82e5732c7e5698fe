package auth

import (
	"context"

	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/membership"
)

// Context carries the verified caller identity through a request. The auth
// middleware populates identity from the access token; the tenant middleware
// fills Membership once the tenant is resolved.
type Context struct {
	UserID        int64
	Email         string
	Name          string
	CompanyID     *int64
	PlatformAdmin bool

	// Membership is the caller's membership in the resolved company, nil for
	// unscoped platform admins.
	Membership *membership.Membership
}

// FromContext retrieves the auth context, nil when the request is anonymous
func FromContext(ctx context.Context) *Context {
	ac, _ := ctx.Value(contextkeys.AuthKey).(*Context)
	return ac
}
