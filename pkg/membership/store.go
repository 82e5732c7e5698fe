package membership

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caravelhq/storefront/pkg/permissions"
	"github.com/caravelhq/storefront/pkg/scope"
)

// EntityName is the scope-registry name for memberships
const EntityName = "memberships"

// ErrNotFound is returned when no visible membership or user matches. Callers
// branch on it with errors.Is to keep missing rows distinct from
// infrastructure failures.
var ErrNotFound = fmt.Errorf("not found")

// RegisterScope registers the membership entity with the scope registry
func RegisterScope(reg *scope.Registry) {
	reg.MustRegister(scope.Entity{
		Name:             EntityName,
		TenantColumn:     "company_id",
		SoftDeleteColumn: "is_deleted",
	})
}

// Store persists memberships over database/sql
type Store struct {
	db    *sql.DB
	scope *scope.Registry
}

// NewStore creates a membership store
func NewStore(db *sql.DB, reg *scope.Registry) *Store {
	return &Store{db: db, scope: reg}
}

const membershipColumns = "id, user_id, company_id, roles, permissions, is_deleted, deleted_at, deleted_by, created_at, updated_at"

func scanMembership(scanner interface {
	Scan(dest ...interface{}) error
}) (*Membership, error) {
	var m Membership
	var rolesJSON, permsJSON []byte
	var deletedAt sql.NullTime
	var deletedBy sql.NullInt64

	err := scanner.Scan(
		&m.ID, &m.UserID, &m.CompanyID, &rolesJSON, &permsJSON,
		&m.IsDeleted, &deletedAt, &deletedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rolesJSON, &m.Roles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
	}
	if err := json.Unmarshal(permsJSON, &m.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}

	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	if deletedBy.Valid {
		id := deletedBy.Int64
		m.DeletedBy = &id
	}

	return &m, nil
}

// Create inserts a membership. The unique (user_id, company_id) constraint
// rejects duplicates.
func (s *Store) Create(ctx context.Context, m *Membership) error {
	rolesJSON, err := json.Marshal(m.Roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	permsJSON, err := json.Marshal(m.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	now := time.Now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO memberships (user_id, company_id, roles, permissions, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		RETURNING id
	`, m.UserID, m.CompanyID, rolesJSON, permsJSON, now, now).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetByID retrieves a membership by primary key. Identity path: runs during
// authentication before any tenant is bound, so it filters soft-deleted rows
// directly instead of through the scope registry.
func (s *Store) GetByID(ctx context.Context, id int64) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memberships WHERE id = $1 AND is_deleted = FALSE
	`, membershipColumns), id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListByUser returns all live memberships of a user across companies.
// Identity path: feeds the tenant resolver, so it cannot be tenant-filtered.
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]*Membership, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memberships WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY company_id ASC
	`, membershipColumns), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// GetByUserAndCompany returns the membership binding a user to a company.
// Identity path, same reasoning as GetByID.
func (s *Store) GetByUserAndCompany(ctx context.Context, userID, companyID int64) (*Membership, error) {
	m, err := scanMembership(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM memberships
		WHERE user_id = $1 AND company_id = $2 AND is_deleted = FALSE
	`, membershipColumns), userID, companyID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListByCompany returns the memberships visible in the caller's tenant scope
func (s *Store) ListByCompany(ctx context.Context) ([]*Membership, error) {
	clause, args, err := s.scope.Clause(ctx, EntityName, "m", 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.user_id, m.company_id, m.roles, m.permissions,
		       m.is_deleted, m.deleted_at, m.deleted_by, m.created_at, m.updated_at
		FROM memberships m
		WHERE %s
		ORDER BY m.created_at ASC
	`, clause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list company memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// SetRoles replaces the membership's role set
func (s *Store) SetRoles(ctx context.Context, id int64, roles []permissions.Role) error {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	return s.update(ctx, id, "roles", rolesJSON)
}

// SetDirectPermissions replaces the membership's direct permission grants
func (s *Store) SetDirectPermissions(ctx context.Context, id int64, perms []permissions.Permission) error {
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return s.update(ctx, id, "permissions", permsJSON)
}

func (s *Store) update(ctx context.Context, id int64, column string, value []byte) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE memberships SET %s = $1, updated_at = $2
		WHERE id = $3 AND is_deleted = FALSE
	`, column), value, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks a membership deleted. The row stays for as long as the
// tenant relationship is kept on record.
func (s *Store) SoftDelete(ctx context.Context, id, deletedBy int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships
		SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2, updated_at = $1
		WHERE id = $3 AND is_deleted = FALSE
	`, time.Now(), deletedBy, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
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

// GetUser loads a user account by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, platform_admin, is_active, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PlatformAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail loads a user account by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, platform_admin, is_active, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PlatformAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
