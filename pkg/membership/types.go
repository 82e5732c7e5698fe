// Package membership ties users to companies with roles and direct
// permission grants.
package membership

import (
	"time"

	"github.com/caravelhq/storefront/pkg/permissions"
)

// Membership binds one user to one company. At most one membership exists per
// (UserID, CompanyID) pair; the store enforces this with a unique constraint.
type Membership struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"user_id"`
	CompanyID int64 `json:"company_id"`

	// Roles assigned to this membership. Order never matters.
	Roles []permissions.Role `json:"roles"`

	// Permissions granted directly, independent of role. Used for
	// fine-grained exceptions to the role baselines.
	Permissions []permissions.Permission `json:"permissions"`

	IsDeleted bool       `json:"-"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *int64     `json:"deleted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// HasRole reports whether the membership holds a role
func (m *Membership) HasRole(role permissions.Role) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// User is the account a membership belongs to. Password verification is an
// external collaborator; this core only reads identity fields.
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	PlatformAdmin bool      `json:"platform_admin"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
