package api

import (
	"errors"
	"net/http"

	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/contextkeys"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/permissions"
	"github.com/caravelhq/storefront/pkg/scope"
)

type enrollRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type grantRequest struct {
	Permission string `json:"permission"`
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.members.Store().ListByCompany(r.Context())
	if err != nil {
		s.writeScopeError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) handleEnrollMember(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 || req.Role == "" {
		httputil.WriteBadRequest(w, "user_id and role are required")
		return
	}

	companyID, err := scope.TenantID(r.Context())
	if err != nil {
		s.writeScopeError(w, err)
		return
	}

	m, err := s.members.Enroll(r.Context(), req.UserID, companyID, permissions.Role(req.Role))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.recordMemberEvent(r, audit.EventTypeAuthzRoleChange, m, "enrolled with role "+req.Role)
	httputil.WriteCreated(w, m)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	m, ok := s.memberInScope(w, r, id)
	if !ok {
		return
	}

	ac := auth.FromContext(r.Context())
	if err := s.members.Remove(r.Context(), id, ac.UserID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.recordMemberEvent(r, audit.EventTypeAuthzRoleChange, m, "membership removed")
	httputil.WriteNoContent(w)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, ok := s.memberInScope(w, r, id)
	if !ok {
		return
	}

	if err := s.members.AssignRole(r.Context(), id, permissions.Role(req.Role)); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.recordMemberEvent(r, audit.EventTypeAuthzRoleChange, m, "assigned role "+req.Role)
	httputil.WriteNoContent(w)
}

func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role := httputil.GetPathVars(r)["role"]

	m, ok := s.memberInScope(w, r, id)
	if !ok {
		return
	}

	if err := s.members.RemoveRole(r.Context(), id, permissions.Role(role)); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.recordMemberEvent(r, audit.EventTypeAuthzRoleChange, m, "removed role "+role)
	httputil.WriteNoContent(w)
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, ok := s.memberInScope(w, r, id)
	if !ok {
		return
	}

	if err := s.members.GrantPermission(r.Context(), id, permissions.Permission(req.Permission)); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.recordMemberEvent(r, audit.EventTypeAuthzPermissionGrant, m, "granted "+req.Permission)
	httputil.WriteNoContent(w)
}

func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	perm := httputil.GetPathVars(r)["permission"]

	m, ok := s.memberInScope(w, r, id)
	if !ok {
		return
	}

	if err := s.members.RevokePermission(r.Context(), id, permissions.Permission(perm)); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.recordMemberEvent(r, audit.EventTypeAuthzPermissionRevoke, m, "revoked "+perm)
	httputil.WriteNoContent(w)
}

func (s *Server) handlePermissionCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, permissions.Catalog())
}

// memberInScope loads a membership and verifies it belongs to the caller's
// resolved company. Cross-tenant membership IDs read as not found.
func (s *Server) memberInScope(w http.ResponseWriter, r *http.Request, id int64) (*membership.Membership, bool) {
	m, err := s.members.Store().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, membership.ErrNotFound) {
			httputil.WriteNotFoundError(w, "membership not found")
		} else {
			httputil.WriteInternalError(w, err)
		}
		return nil, false
	}

	ts, ok := scope.FromContext(r.Context())
	if !ok {
		s.writeScopeError(w, scope.ErrNoTenantScope)
		return nil, false
	}
	if !ts.Unscoped && (ts.CompanyID == nil || m.CompanyID != *ts.CompanyID) {
		httputil.WriteNotFoundError(w, "membership not found")
		return nil, false
	}
	return m, true
}

func (s *Server) recordMemberEvent(r *http.Request, eventType audit.EventType, m *membership.Membership, message string) {
	ac := auth.FromContext(r.Context())
	s.auditLog.Record(audit.Event{
		EventType: eventType,
		Status:    audit.EventStatusSuccess,
		UserID:    &ac.UserID,
		CompanyID: &m.CompanyID,
		RequestID: contextkeys.GetRequestID(r.Context()),
		Message:   message,
	})
}

func (s *Server) writeScopeError(w http.ResponseWriter, err error) {
	if errors.Is(err, scope.ErrNoTenantScope) {
		httputil.WriteErrorCode(w, http.StatusForbidden, "no_tenant_scope", "request is not bound to a company")
		return
	}
	httputil.WriteInternalError(w, err)
}
