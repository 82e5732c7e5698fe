package middleware

import (
	"net/http"

	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/permissions"
)

// AuthzMiddleware enforces permissions on individual routes. The two failure
// modes stay distinct: no verified identity is 401, a verified identity
// without the permission is 403.
type AuthzMiddleware struct {
	members  *membership.Service
	auditLog audit.Logger
	metrics  *observability.Metrics
}

// NewAuthzMiddleware creates the authorization middleware
func NewAuthzMiddleware(members *membership.Service, auditLog audit.Logger, metrics *observability.Metrics) *AuthzMiddleware {
	return &AuthzMiddleware{members: members, auditLog: auditLog, metrics: metrics}
}

// RequireAuth admits any verified identity. Used for endpoints like the
// permission catalog that need a caller but no particular permission.
func (m *AuthzMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next(w, r)
	}
}

// RequirePermission admits callers holding the given permission in the
// resolved tenant. Platform admins pass every check.
func (m *AuthzMiddleware) RequirePermission(p permissions.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ac := auth.FromContext(r.Context())
			if ac == nil {
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}

			if m.metrics != nil {
				m.metrics.AuthzChecksTotal.WithLabelValues(string(p)).Inc()
			}

			if ac.PlatformAdmin {
				next(w, r)
				return
			}

			// A caller without a bound membership holds the empty set.
			var set permissions.Set
			if ac.Membership != nil {
				set = m.members.EffectiveSet(r.Context(), ac.Membership)
			}
			if err := permissions.Authorize(set, p); err != nil {
				m.deny(r, ac, p)
				httputil.WriteErrorCode(w, http.StatusForbidden, "forbidden", err.Error())
				return
			}

			next(w, r)
		}
	}
}

// RequirePlatformAdmin admits platform operators only
func (m *AuthzMiddleware) RequirePlatformAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac := auth.FromContext(r.Context())
		if ac == nil {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if !ac.PlatformAdmin {
			m.deny(r, ac, permissions.PermPlatformAdmin)
			httputil.WriteErrorCode(w, http.StatusForbidden, "forbidden", "platform operator access required")
			return
		}
		next(w, r)
	}
}

func (m *AuthzMiddleware) deny(r *http.Request, ac *auth.Context, p permissions.Permission) {
	var companyID *int64
	if ac.Membership != nil {
		companyID = &ac.Membership.CompanyID
	}
	m.auditLog.Record(audit.Event{
		EventType: audit.EventTypeAuthzDenied,
		Status:    audit.EventStatusDenied,
		UserID:    &ac.UserID,
		CompanyID: companyID,
		RequestID: contextkeys.GetRequestID(r.Context()),
		Message:   string(p) + " required for " + r.Method + " " + r.URL.Path,
	})
	if m.metrics != nil {
		m.metrics.AuthzDeniedTotal.WithLabelValues(string(p)).Inc()
	}
}
