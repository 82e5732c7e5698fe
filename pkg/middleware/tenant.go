package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/scope"
	"github.com/caravelhq/storefront/pkg/tenant"
)

// TenantMiddleware resolves the tenant for authenticated requests and binds
// the resulting scope to the context. Anonymous requests pass through with no
// scope bound, so any tenant-scoped query they reach fails closed.
type TenantMiddleware struct {
	memberships *membership.Store
	auditLog    audit.Logger
	logger      *observability.Logger
}

// NewTenantMiddleware creates the tenant middleware
func NewTenantMiddleware(memberships *membership.Store, auditLog audit.Logger, logger *observability.Logger) *TenantMiddleware {
	return &TenantMiddleware{memberships: memberships, auditLog: auditLog, logger: logger}
}

// Handler wraps next with tenant resolution
func (m *TenantMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac := auth.FromContext(r.Context())
		if ac == nil {
			next.ServeHTTP(w, r)
			return
		}

		headerCompany, err := parseTenantHeader(r)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid "+tenant.Header+" header")
			return
		}

		members, err := m.memberships.ListByUser(r.Context(), ac.UserID)
		if err != nil {
			m.logger.WithError(err).Error("failed to load memberships for tenant resolution")
			httputil.WriteInternalError(w, err)
			return
		}

		companies := make([]int64, 0, len(members))
		for _, mem := range members {
			companies = append(companies, mem.CompanyID)
		}

		resolved, err := tenant.Resolve(ac.CompanyID, headerCompany, companies, ac.PlatformAdmin)
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrAmbiguous):
				httputil.WriteErrorCode(w, http.StatusBadRequest, "tenant_ambiguous",
					"several companies available, select one with the "+tenant.Header+" header")
			case errors.Is(err, tenant.ErrMismatch):
				httputil.WriteErrorCode(w, http.StatusForbidden, "tenant_mismatch",
					"no access to the requested company")
			default:
				httputil.WriteInternalError(w, err)
			}
			return
		}

		ctx := r.Context()
		if resolved == nil {
			// Platform admin with no tenant pinned: cross-tenant scope. Every
			// such request leaves an audit record.
			ctx = scope.WithUnscoped(ctx)
			m.auditLog.Record(audit.Event{
				EventType: audit.EventTypeScopeUnscoped,
				Status:    audit.EventStatusSuccess,
				UserID:    &ac.UserID,
				RequestID: contextkeys.GetRequestID(ctx),
				Message:   r.Method + " " + r.URL.Path,
			})
		} else {
			ctx = scope.WithTenant(ctx, *resolved)
			for _, mem := range members {
				if mem.CompanyID == *resolved {
					ac.Membership = mem
					break
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseTenantHeader(r *http.Request) (*int64, error) {
	raw := r.Header.Get(tenant.Header)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
