package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/caravelhq/storefront/pkg/scope"
)

const (
	// ProductEntity is the scope-registry name for products
	ProductEntity = "products"
	// CategoryEntity is the scope-registry name for categories
	CategoryEntity = "categories"
)

// ErrNotFound is returned when a row does not exist or is outside the
// caller's tenant scope. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("catalog item not found")

// RegisterScope registers catalog entities with the scope registry
func RegisterScope(reg *scope.Registry) {
	reg.MustRegister(scope.Entity{
		Name:             ProductEntity,
		TenantColumn:     "company_id",
		SoftDeleteColumn: "is_deleted",
	})
	reg.MustRegister(scope.Entity{
		Name:             CategoryEntity,
		TenantColumn:     "company_id",
		SoftDeleteColumn: "is_deleted",
	})
}

// Store persists products and categories. Every read goes through the scope
// registry, so a query without a tenant bound in the context fails instead
// of returning cross-tenant rows.
type Store struct {
	db    *sql.DB
	scope *scope.Registry
}

// NewStore creates a catalog store
func NewStore(db *sql.DB, reg *scope.Registry) *Store {
	return &Store{db: db, scope: reg}
}

// CreateProduct inserts a product stamped with the context's tenant
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	companyID, err := scope.TenantID(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO products (company_id, category_id, name, description, price_cents, stock, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
		RETURNING id
	`, companyID, p.CategoryID, p.Name, p.Description, p.PriceCents, p.Stock, now, now).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	p.CompanyID = companyID
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetProduct retrieves a product within the caller's tenant scope
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	clause, args, err := s.scope.Clause(ctx, ProductEntity, "p", 2)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.company_id, p.category_id, p.name, p.description, p.price_cents, p.stock, p.created_at, p.updated_at
		FROM products p
		WHERE p.id = $1 AND %s
	`, clause)

	var p Product
	var categoryID sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, append([]interface{}{id}, args...)...).Scan(
		&p.ID, &p.CompanyID, &categoryID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	return &p, nil
}

// ListProducts returns the tenant's live products, newest first
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]*Product, error) {
	clause, args, err := s.scope.Clause(ctx, ProductEntity, "p", 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.company_id, p.category_id, p.name, p.description, p.price_cents, p.stock, p.created_at, p.updated_at
		FROM products p
		WHERE %s
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		var p Product
		var categoryID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.CompanyID, &categoryID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if categoryID.Valid {
			p.CategoryID = &categoryID.Int64
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdateProduct updates mutable fields of a product in scope
func (s *Store) UpdateProduct(ctx context.Context, p *Product) error {
	clause, args, err := s.scope.Clause(ctx, ProductEntity, "", 7)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE products
		SET category_id = $1, name = $2, description = $3, price_cents = $4, stock = $5, updated_at = $6
		WHERE id = $%d AND %s
	`, 7+len(args), clause)

	now := time.Now()
	queryArgs := []interface{}{p.CategoryID, p.Name, p.Description, p.PriceCents, p.Stock, now}
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, p.ID)

	res, err := s.db.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	p.UpdatedAt = now
	return nil
}

// SoftDeleteProduct marks a product deleted without removing the row
func (s *Store) SoftDeleteProduct(ctx context.Context, id, deletedBy int64) error {
	clause, args, err := s.scope.Clause(ctx, ProductEntity, "", 4)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE products
		SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2, updated_at = $1
		WHERE id = $3 AND %s
	`, clause)

	res, err := s.db.ExecContext(ctx, query, append([]interface{}{time.Now(), deletedBy, id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCategory inserts a category stamped with the context's tenant
func (s *Store) CreateCategory(ctx context.Context, c *Category) error {
	companyID, err := scope.TenantID(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO categories (company_id, name, slug, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		RETURNING id
	`, companyID, c.Name, c.Slug, now, now).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	c.CompanyID = companyID
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetCategory retrieves a category within the caller's tenant scope
func (s *Store) GetCategory(ctx context.Context, id int64) (*Category, error) {
	clause, args, err := s.scope.Clause(ctx, CategoryEntity, "c", 2)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.company_id, c.name, c.slug, c.created_at, c.updated_at
		FROM categories c
		WHERE c.id = $1 AND %s
	`, clause)

	var c Category
	err = s.db.QueryRowContext(ctx, query, append([]interface{}{id}, args...)...).Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// ListCategories returns the tenant's live categories ordered by name
func (s *Store) ListCategories(ctx context.Context) ([]*Category, error) {
	clause, args, err := s.scope.Clause(ctx, CategoryEntity, "c", 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.company_id, c.name, c.slug, c.created_at, c.updated_at
		FROM categories c
		WHERE %s
		ORDER BY c.name ASC
	`, clause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SoftDeleteCategory marks a category deleted; products keep their
// category_id and surface it as dangling until reassigned.
func (s *Store) SoftDeleteCategory(ctx context.Context, id, deletedBy int64) error {
	clause, args, err := s.scope.Clause(ctx, CategoryEntity, "", 4)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE categories
		SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2, updated_at = $1
		WHERE id = $3 AND %s
	`, clause)

	res, err := s.db.ExecContext(ctx, query, append([]interface{}{time.Now(), deletedBy, id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
