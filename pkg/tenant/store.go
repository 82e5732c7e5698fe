package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caravelhq/storefront/pkg/scope"
)

// EntityName is the scope-registry name for companies. Companies are
// soft-deletable but not tenant-scoped: they are the tenants.
const EntityName = "companies"

// RegisterScope registers the company entity with the scope registry
func RegisterScope(reg *scope.Registry) {
	reg.MustRegister(scope.Entity{
		Name:             EntityName,
		SoftDeleteColumn: "is_deleted",
	})
}

// Store persists companies
type Store struct {
	db    *sql.DB
	scope *scope.Registry
}

// NewStore creates a company store
func NewStore(db *sql.DB, reg *scope.Registry) *Store {
	return &Store{db: db, scope: reg}
}

// Create inserts a company
func (s *Store) Create(ctx context.Context, c *Company) error {
	now := time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO companies (name, display_name, is_deleted, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $4)
		RETURNING id
	`, c.Name, c.DisplayName, now, now).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// Get retrieves a company by ID, excluding soft-deleted rows
func (s *Store) Get(ctx context.Context, id int64) (*Company, error) {
	clause, args, err := s.scope.Clause(ctx, EntityName, "c", 2)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.name, c.display_name, c.created_at, c.updated_at
		FROM companies c
		WHERE c.id = $1 AND %s
	`, clause)

	var c Company
	err = s.db.QueryRowContext(ctx, query, append([]interface{}{id}, args...)...).Scan(
		&c.ID, &c.Name, &c.DisplayName, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("company not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// SoftDelete marks a company deleted without removing the row. Memberships of
// the company are soft-deleted in the same transaction so no caller keeps a
// live binding to a dead tenant.
func (s *Store) SoftDelete(ctx context.Context, id, deletedBy int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE companies
		SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2, updated_at = $1
		WHERE id = $3 AND is_deleted = FALSE
	`, now, deletedBy, id)
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("company not found: %d", id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships
		SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2, updated_at = $1
		WHERE company_id = $3 AND is_deleted = FALSE
	`, now, deletedBy, id)
	if err != nil {
		return fmt.Errorf("failed to delete company memberships: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit company delete: %w", err)
	}
	return nil
}
