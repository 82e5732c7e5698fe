// Package permissions defines the storefront permission catalog, the static
// role baseline table, and the effective-permission computation used by the
// authorization gate.
package permissions

// Permission is a single permission code (resource:action)
type Permission string

const (
	PermProductRead   Permission = "product:read"
	PermProductCreate Permission = "product:create"
	PermProductUpdate Permission = "product:update"
	PermProductDelete Permission = "product:delete"

	PermCategoryRead   Permission = "category:read"
	PermCategoryCreate Permission = "category:create"
	PermCategoryUpdate Permission = "category:update"
	PermCategoryDelete Permission = "category:delete"

	PermOrderRead   Permission = "order:read"
	PermOrderUpdate Permission = "order:update"
	PermOrderDelete Permission = "order:delete"
	PermOrderPlace  Permission = "order:place"

	PermReviewManage Permission = "review:manage"

	PermMemberInvite     Permission = "member:invite"
	PermMemberRemove     Permission = "member:remove"
	PermMemberUpdateRole Permission = "member:update_role"
	PermPermissionGrant  Permission = "permission:grant"

	PermCompanyUpdate Permission = "company:update"
	PermAuditRead     Permission = "audit:read"

	// PermPlatformAdmin gates the unscoped query escape hatch and
	// cross-tenant administration. Only platform operators hold it.
	PermPlatformAdmin Permission = "platform:admin"
)

// CatalogEntry describes one permission for admin UI checklists.
// The catalog is metadata only; authorization decisions use the codes.
type CatalogEntry struct {
	Code  Permission `json:"code"`
	Label string     `json:"label"`
	Group string     `json:"group"`
}

// Catalog returns the full permission catalog
func Catalog() []CatalogEntry {
	return []CatalogEntry{
		{PermProductRead, "View products", "Products"},
		{PermProductCreate, "Create products", "Products"},
		{PermProductUpdate, "Edit products", "Products"},
		{PermProductDelete, "Delete products", "Products"},
		{PermCategoryRead, "View categories", "Categories"},
		{PermCategoryCreate, "Create categories", "Categories"},
		{PermCategoryUpdate, "Edit categories", "Categories"},
		{PermCategoryDelete, "Delete categories", "Categories"},
		{PermOrderRead, "View orders", "Orders"},
		{PermOrderUpdate, "Update orders", "Orders"},
		{PermOrderDelete, "Delete orders", "Orders"},
		{PermOrderPlace, "Place orders", "Orders"},
		{PermReviewManage, "Manage reviews", "Reviews"},
		{PermMemberInvite, "Invite members", "Members"},
		{PermMemberRemove, "Remove members", "Members"},
		{PermMemberUpdateRole, "Change member roles", "Members"},
		{PermPermissionGrant, "Grant member permissions", "Members"},
		{PermCompanyUpdate, "Edit company settings", "Company"},
		{PermAuditRead, "View audit trail", "Company"},
		{PermPlatformAdmin, "Platform administration", "Platform"},
	}
}

var known = buildKnown()

func buildKnown() map[Permission]struct{} {
	m := make(map[Permission]struct{})
	for _, e := range Catalog() {
		m[e.Code] = struct{}{}
	}
	return m
}

// IsKnown reports whether a code exists in the catalog
func IsKnown(p Permission) bool {
	_, ok := known[p]
	return ok
}
