// Package api exposes the HTTP surface: authentication, membership
// administration, the tenant-scoped catalog, and the audit trail.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caravelhq/storefront/pkg/audit"
	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/catalog"
	"github.com/caravelhq/storefront/pkg/config"
	"github.com/caravelhq/storefront/pkg/httputil"
	"github.com/caravelhq/storefront/pkg/membership"
	"github.com/caravelhq/storefront/pkg/middleware"
	"github.com/caravelhq/storefront/pkg/observability"
	"github.com/caravelhq/storefront/pkg/permissions"
	"github.com/caravelhq/storefront/pkg/tenant"
)

// Server wires handlers, middleware, and the HTTP listener
type Server struct {
	cfg       config.ServerConfig
	logger    *observability.Logger
	metrics   *observability.Metrics
	authSvc   *auth.Service
	members   *membership.Service
	companies *tenant.Store
	catalog   *catalog.Store
	auditLog  audit.Logger
	audits    *audit.Store
	authMW    *middleware.AuthMiddleware
	tenantMW  *middleware.TenantMiddleware
	authzMW   *middleware.AuthzMiddleware
	httpSrv   *http.Server
}

// NewServer creates the API server
func NewServer(
	cfg config.ServerConfig,
	logger *observability.Logger,
	metrics *observability.Metrics,
	authSvc *auth.Service,
	members *membership.Service,
	companies *tenant.Store,
	catalogStore *catalog.Store,
	auditLog audit.Logger,
	audits *audit.Store,
	authMW *middleware.AuthMiddleware,
	tenantMW *middleware.TenantMiddleware,
	authzMW *middleware.AuthzMiddleware,
) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		authSvc:   authSvc,
		members:   members,
		companies: companies,
		catalog:   catalogStore,
		auditLog:  auditLog,
		audits:    audits,
		authMW:    authMW,
		tenantMW:  tenantMW,
		authzMW:   authzMW,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(httputil.RequestIDMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.HTTPMiddleware)
	}
	r.Use(s.authMW.Handler)
	r.Use(s.tenantMW.Handler)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Authentication. Login and refresh are the only anonymous endpoints.
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.authzMW.RequireAuth(s.handleLogout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout_all", s.authzMW.RequireAuth(s.handleLogoutAll)).Methods(http.MethodPost)

	// Permission catalog, for building role-editing UIs.
	api.HandleFunc("/permissions", s.authzMW.RequireAuth(s.handlePermissionCatalog)).Methods(http.MethodGet)
	api.HandleFunc("/me", s.authzMW.RequireAuth(s.handleMe)).Methods(http.MethodGet)

	// Companies.
	api.HandleFunc("/companies", s.authzMW.RequirePlatformAdmin(s.handleCreateCompany)).Methods(http.MethodPost)
	api.HandleFunc("/companies/{id}", s.authzMW.RequireAuth(s.handleGetCompany)).Methods(http.MethodGet)
	api.HandleFunc("/companies/{id}", s.authzMW.RequirePlatformAdmin(s.handleDeleteCompany)).Methods(http.MethodDelete)

	// Membership administration within the resolved company.
	requireInvite := s.authzMW.RequirePermission(permissions.PermMemberInvite)
	requireRemove := s.authzMW.RequirePermission(permissions.PermMemberRemove)
	requireRole := s.authzMW.RequirePermission(permissions.PermMemberUpdateRole)
	requireGrant := s.authzMW.RequirePermission(permissions.PermPermissionGrant)

	api.HandleFunc("/members", s.authzMW.RequireAuth(s.handleListMembers)).Methods(http.MethodGet)
	api.HandleFunc("/members", requireInvite(s.handleEnrollMember)).Methods(http.MethodPost)
	api.HandleFunc("/members/{id}", requireRemove(s.handleRemoveMember)).Methods(http.MethodDelete)
	api.HandleFunc("/members/{id}/roles", requireRole(s.handleAssignRole)).Methods(http.MethodPost)
	api.HandleFunc("/members/{id}/roles/{role}", requireRole(s.handleRemoveRole)).Methods(http.MethodDelete)
	api.HandleFunc("/members/{id}/permissions", requireGrant(s.handleGrantPermission)).Methods(http.MethodPost)
	api.HandleFunc("/members/{id}/permissions/{permission}", requireGrant(s.handleRevokePermission)).Methods(http.MethodDelete)

	// Catalog.
	api.HandleFunc("/products", s.authzMW.RequirePermission(permissions.PermProductRead)(s.handleListProducts)).Methods(http.MethodGet)
	api.HandleFunc("/products", s.authzMW.RequirePermission(permissions.PermProductCreate)(s.handleCreateProduct)).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", s.authzMW.RequirePermission(permissions.PermProductRead)(s.handleGetProduct)).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.authzMW.RequirePermission(permissions.PermProductUpdate)(s.handleUpdateProduct)).Methods(http.MethodPut)
	api.HandleFunc("/products/{id}", s.authzMW.RequirePermission(permissions.PermProductDelete)(s.handleDeleteProduct)).Methods(http.MethodDelete)
	api.HandleFunc("/categories", s.authzMW.RequirePermission(permissions.PermCategoryRead)(s.handleListCategories)).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.authzMW.RequirePermission(permissions.PermCategoryCreate)(s.handleCreateCategory)).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", s.authzMW.RequirePermission(permissions.PermCategoryRead)(s.handleGetCategory)).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", s.authzMW.RequirePermission(permissions.PermCategoryDelete)(s.handleDeleteCategory)).Methods(http.MethodDelete)

	// Audit trail.
	api.HandleFunc("/audit", s.authzMW.RequirePermission(permissions.PermAuditRead)(s.handleListAudit)).Methods(http.MethodGet)

	return r
}

// Start begins serving; blocks until the listener stops
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      observability.TraceHandler(s.Router(), "storefront-api"),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.WithField("addr", s.httpSrv.Addr).Info("api server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
