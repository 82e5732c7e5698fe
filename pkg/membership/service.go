package membership

import (
	"context"
	"fmt"

	"github.com/caravelhq/storefront/pkg/permissions"
)

// Service manages memberships and their effective permissions. Every mutation
// that can change a membership's effective set invalidates the permission
// cache before returning.
type Service struct {
	store *Store
	roles *permissions.Registry
	cache *permissions.SetCache
}

// NewService creates a membership service. cache may be nil.
func NewService(store *Store, roles *permissions.Registry, cache *permissions.SetCache) *Service {
	return &Service{
		store: store,
		roles: roles,
		cache: cache,
	}
}

// Store exposes the underlying store for read paths
func (s *Service) Store() *Store {
	return s.store
}

// EffectiveSet computes (or fetches) the membership's effective permission set
func (s *Service) EffectiveSet(ctx context.Context, m *Membership) permissions.Set {
	if s.cache != nil {
		if set, ok := s.cache.Get(ctx, m.ID); ok {
			return set
		}
	}

	set := permissions.EffectiveSet(s.roles, m.Roles, m.Permissions)

	if s.cache != nil {
		s.cache.Put(ctx, m.ID, set)
	}
	return set
}

// Enroll creates a membership with a primary role
func (s *Service) Enroll(ctx context.Context, userID, companyID int64, role permissions.Role) (*Membership, error) {
	if !s.roles.Known(role) {
		return nil, fmt.Errorf("unknown role: %s", role)
	}

	m := &Membership{
		UserID:      userID,
		CompanyID:   companyID,
		Roles:       []permissions.Role{role},
		Permissions: []permissions.Permission{},
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AssignRole adds a role to a membership. The role must exist in the current
// role map; an unknown name would otherwise contribute an empty baseline
// silently.
func (s *Service) AssignRole(ctx context.Context, membershipID int64, role permissions.Role) error {
	if !s.roles.Known(role) {
		return fmt.Errorf("unknown role: %s", role)
	}

	m, err := s.store.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.HasRole(role) {
		return nil
	}

	roles := append(append([]permissions.Role{}, m.Roles...), role)
	if err := s.store.SetRoles(ctx, membershipID, roles); err != nil {
		return err
	}
	return s.invalidate(ctx, membershipID)
}

// RemoveRole removes a role from a membership
func (s *Service) RemoveRole(ctx context.Context, membershipID int64, role permissions.Role) error {
	m, err := s.store.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}

	roles := make([]permissions.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		if r != role {
			roles = append(roles, r)
		}
	}
	if len(roles) == len(m.Roles) {
		return nil
	}

	if err := s.store.SetRoles(ctx, membershipID, roles); err != nil {
		return err
	}
	return s.invalidate(ctx, membershipID)
}

// GrantPermission adds a direct permission grant
func (s *Service) GrantPermission(ctx context.Context, membershipID int64, p permissions.Permission) error {
	if !permissions.IsKnown(p) {
		return fmt.Errorf("unknown permission code: %s", p)
	}

	m, err := s.store.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}

	for _, existing := range m.Permissions {
		if existing == p {
			return nil
		}
	}

	perms := append(append([]permissions.Permission{}, m.Permissions...), p)
	if err := s.store.SetDirectPermissions(ctx, membershipID, perms); err != nil {
		return err
	}
	return s.invalidate(ctx, membershipID)
}

// RevokePermission removes a direct permission grant. Revoking a permission
// that was never granted directly is a no-op; role baselines are untouched.
func (s *Service) RevokePermission(ctx context.Context, membershipID int64, p permissions.Permission) error {
	m, err := s.store.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}

	perms := make([]permissions.Permission, 0, len(m.Permissions))
	for _, existing := range m.Permissions {
		if existing != p {
			perms = append(perms, existing)
		}
	}
	if len(perms) == len(m.Permissions) {
		return nil
	}

	if err := s.store.SetDirectPermissions(ctx, membershipID, perms); err != nil {
		return err
	}
	return s.invalidate(ctx, membershipID)
}

// Remove soft-deletes a membership and drops its cached permissions
func (s *Service) Remove(ctx context.Context, membershipID, removedBy int64) error {
	if err := s.store.SoftDelete(ctx, membershipID, removedBy); err != nil {
		return err
	}
	return s.invalidate(ctx, membershipID)
}

func (s *Service) invalidate(ctx context.Context, membershipID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, membershipID); err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	return nil
}
