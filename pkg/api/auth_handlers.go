package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/tenant"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	headerCompany, err := tenantHeader(r)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid "+tenant.Header+" header")
		return
	}

	pair, err := s.authSvc.Login(r.Context(), req.Email, req.Password, headerCompany)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	httputil.WriteSuccess(w, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteBadRequest(w, "refresh_token is required")
		return
	}
	if err := s.authSvc.Logout(r.Context(), req.RefreshToken); err != nil {
		// Revoking an already-dead token is not an error worth surfacing.
		if !errors.Is(err, auth.ErrRefreshInvalid) {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())
	n, err := s.authSvc.LogoutEverywhere(r.Context(), ac.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"revoked_sessions": n})
}

// handleMe reports the caller's identity, resolved company, and effective
// permission set; the debugging endpoint for "why was I denied".
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ac := auth.FromContext(r.Context())

	resp := map[string]interface{}{
		"user_id":        ac.UserID,
		"email":          ac.Email,
		"name":           ac.Name,
		"platform_admin": ac.PlatformAdmin,
	}
	if ac.Membership != nil {
		resp["company_id"] = ac.Membership.CompanyID
		resp["roles"] = ac.Membership.Roles
		resp["permissions"] = s.members.EffectiveSet(r.Context(), ac.Membership).Codes()
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		httputil.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
	case errors.Is(err, auth.ErrRefreshInvalid):
		httputil.WriteErrorCode(w, http.StatusUnauthorized, "refresh_invalid", "refresh token is not valid")
	case errors.Is(err, auth.ErrSessionIntegrity):
		httputil.WriteErrorCode(w, http.StatusInternalServerError, "session_integrity", "session state is inconsistent")
	case errors.Is(err, tenant.ErrAmbiguous):
		httputil.WriteErrorCode(w, http.StatusBadRequest, "tenant_ambiguous",
			"several companies available, select one with the "+tenant.Header+" header")
	case errors.Is(err, tenant.ErrMismatch):
		httputil.WriteErrorCode(w, http.StatusForbidden, "tenant_mismatch", "no access to the requested company")
	default:
		s.logger.WithError(err).Error("auth request failed")
		httputil.WriteInternalError(w, err)
	}
}

func tenantHeader(r *http.Request) (*int64, error) {
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
