package api

import (
	"net/http"

	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/tenant"
)

type companyRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	c := &tenant.Company{Name: req.Name, DisplayName: req.DisplayName}
	if err := s.companies.Create(r.Context(), c); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, c)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	c, err := s.companies.Get(r.Context(), id)
	if err != nil {
		httputil.WriteNotFoundError(w, "company not found")
		return
	}
	httputil.WriteSuccess(w, c)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	ac := auth.FromContext(r.Context())
	if err := s.companies.SoftDelete(r.Context(), id, ac.UserID); err != nil {
		httputil.WriteNotFoundError(w, "company not found")
		return
	}
	httputil.WriteNoContent(w)
}
