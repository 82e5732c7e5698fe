package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/caravelhq/storefront/pkg/auth"
	"github.com/caravelhq/storefront/pkg/catalog"
	"github.com/caravelhq/storefront/pkg/httputil"
)

type productRequest struct {
	CategoryID  *int64 `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int64  `json:"stock"`
}

type categoryRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	products, err := s.catalog.ListProducts(r.Context(), limit, offset)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteSuccess(w, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.PriceCents < 0 {
		httputil.WriteBadRequest(w, "price_cents must not be negative")
		return
	}

	p := &catalog.Product{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
	}
	if err := s.catalog.CreateProduct(r.Context(), p); err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteCreated(w, p)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	p, err := s.catalog.GetProduct(r.Context(), id)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req productRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	p := &catalog.Product{
		ID:          id,
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
	}
	if err := s.catalog.UpdateProduct(r.Context(), p); err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	ac := auth.FromContext(r.Context())
	if err := s.catalog.SoftDeleteProduct(r.Context(), id, ac.UserID); err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteSuccess(w, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Slug == "" {
		httputil.WriteBadRequest(w, "name and slug are required")
		return
	}

	c := &catalog.Category{Name: req.Name, Slug: req.Slug}
	if err := s.catalog.CreateCategory(r.Context(), c); err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteCreated(w, c)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	c, err := s.catalog.GetCategory(r.Context(), id)
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	ac := auth.FromContext(r.Context())
	if err := s.catalog.SoftDeleteCategory(r.Context(), id, ac.UserID); err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		httputil.WriteNotFoundError(w, "not found")
		return
	}
	s.writeScopeError(w, err)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return i
}
