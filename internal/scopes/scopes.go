// Package scopes wires the built-in entity graph to the access core:
// permission slugs, narrowing rules, the default scope tree and the
// directory used at sign-in.
package scopes

// ScopeSlug names a permission a session can hold. Every user can read
// and manage their own account; the slugs below gate everything else.
type ScopeSlug string

const (
	// ScopeReadGroups read groups and their membership.
	ScopeReadGroups ScopeSlug = "read_groups"
	// ScopeWriteGroups manage groups and their membership.
	ScopeWriteGroups ScopeSlug = "write_groups"

	// ScopeReadUsers read users beyond the caller's own record.
	ScopeReadUsers ScopeSlug = "read_users"
	// ScopeWriteUsers manage users.
	ScopeWriteUsers ScopeSlug = "write_users"

	// ScopeReadRoles read roles and their permission grants.
	ScopeReadRoles ScopeSlug = "read_roles"
	// ScopeWriteRoles manage roles and their permission grants.
	ScopeWriteRoles ScopeSlug = "write_roles"

	// ScopeReadPermissions read the permission catalog.
	ScopeReadPermissions ScopeSlug = "read_permissions"
	// ScopeWritePermissions manage the permission catalog.
	ScopeWritePermissions ScopeSlug = "write_permissions"

	// ScopeReadHistory read audit trails of any exposed model.
	ScopeReadHistory ScopeSlug = "read_history"
)

// Scope couples a slug with its catalog description.
type Scope struct {
	Slug        ScopeSlug
	Description string
}

var scopeConfigs = []Scope{
	{Slug: ScopeReadGroups, Description: "View groups and membership"},
	{Slug: ScopeWriteGroups, Description: "Manage groups and membership"},
	{Slug: ScopeReadUsers, Description: "View user information"},
	{Slug: ScopeWriteUsers, Description: "Manage users"},
	{Slug: ScopeReadRoles, Description: "View roles and grants"},
	{Slug: ScopeWriteRoles, Description: "Manage roles and grants"},
	{Slug: ScopeReadPermissions, Description: "View the permission catalog"},
	{Slug: ScopeWritePermissions, Description: "Manage the permission catalog"},
	{Slug: ScopeReadHistory, Description: "View audit trails"},
}

// AllScopes returns the full scope catalog.
func AllScopes() []Scope {
	return scopeConfigs
}

// IsValidScope checks whether a slug is part of the catalog.
func IsValidScope(slug string) bool {
	for _, s := range scopeConfigs {
		if string(s.Slug) == slug {
			return true
		}
	}
	return false
}
