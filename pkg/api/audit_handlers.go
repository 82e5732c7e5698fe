package api

import (
	"net/http"

	"github.com/caravelhq/storefront/pkg/httputil"
)

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	events, err := s.audits.List(r.Context(), limit)
	if err != nil {
		s.writeScopeError(w, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
