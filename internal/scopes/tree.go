package scopes

import "entgate.dev/internal/access"

// PermAuthenticated is granted implicitly to every issued session, so
// conditions can distinguish "any signed-in caller" from public.
const PermAuthenticated = "authenticated"

// Repos resolves the repository accessor for a model. Both the
// in-memory pool and the Postgres store satisfy it.
type Repos interface {
	Accessor(modelName string) access.RepoAccessor
}

// Root pairs a scope tree with the model and base path it serves.
type Root struct {
	Model    string
	BasePath string
	Scope    *access.Scope
}

// DefaultRoots builds the scope trees for the built-in entity graph.
// Access kinds left nil here are not exposed at all: the controller
// generator emits no operation for them.
func DefaultRoots(repos Repos) []Root {
	cond := func(c access.Condition) *access.Condition { return &c }

	readRoles := access.Any(access.Atom(string(ScopeReadRoles)), access.Atom(string(ScopeWriteRoles)))
	readGroups := access.Any(access.Atom(string(ScopeReadGroups)), access.Atom(string(ScopeWriteGroups)))
	readPerms := access.Any(access.Atom(string(ScopeReadPermissions)), access.Atom(string(ScopeWritePermissions)), readRoles)
	history := access.Atom(string(ScopeReadHistory))

	permissionScope := &access.Scope{
		Model: "Permission",
		Repo:  repos.Accessor("Permission"),
		Read:  &access.Rule{Cond: readPerms, Filter: PassThrough()},
	}

	rolePermissionScope := &access.Scope{
		Model:   "RolePermission",
		Repo:    repos.Accessor("RolePermission"),
		Create:  cond(access.Atom(string(ScopeWriteRoles))),
		Read:    &access.Rule{Cond: readRoles, Filter: PassThrough()},
		Delete:  &access.Rule{Cond: access.Atom(string(ScopeWriteRoles)), Filter: PassThrough()},
		History: &access.Rule{Cond: history, Filter: PassThrough()},
		Include: map[string]*access.Scope{
			"permission": permissionScope,
		},
	}

	roleScope := &access.Scope{
		Model:   "Role",
		Repo:    repos.Accessor("Role"),
		Create:  cond(access.Atom(string(ScopeWriteRoles))),
		Read:    &access.Rule{Cond: readRoles, Filter: PassThrough()},
		Update:  &access.Rule{Cond: access.Atom(string(ScopeWriteRoles)), Filter: PassThrough()},
		Delete:  &access.Rule{Cond: access.Atom(string(ScopeWriteRoles)), Filter: PassThrough()},
		History: &access.Rule{Cond: history, Filter: PassThrough()},
		Include: map[string]*access.Scope{
			"permissions": rolePermissionScope,
		},
	}
	// Hierarchical roles: the scope tree mirrors the relation graph's
	// cycle; inclusion depth stays finite because it is caller-driven.
	roleScope.Include["parent"] = roleScope
	roleScope.Include["children"] = roleScope

	userRoleScope := &access.Scope{
		Model:   "UserRole",
		Repo:    repos.Accessor("UserRole"),
		Create:  cond(access.Atom(string(ScopeWriteUsers))),
		Read:    &access.Rule{Cond: readRoles, Filter: PassThrough()},
		Delete:  &access.Rule{Cond: access.Atom(string(ScopeWriteUsers)), Filter: PassThrough()},
		History: &access.Rule{Cond: history, Filter: PassThrough()},
		Include: map[string]*access.Scope{
			"role": roleScope,
		},
	}

	userScope := &access.Scope{
		Model:  "User",
		Repo:   repos.Accessor("User"),
		Create: cond(access.Atom(string(ScopeWriteUsers))),
		Read: &access.Rule{
			Cond:   access.Atom(PermAuthenticated),
			Filter: SelfOrScope(ScopeReadUsers, "id"),
		},
		Update: &access.Rule{
			Cond:   access.Atom(PermAuthenticated),
			Filter: SelfOrScope(ScopeWriteUsers, "id"),
			// Activation state and credentials change only through the
			// account flows, never through a patch.
			Deny: []string{"status", "passwordHash"},
		},
		Delete:  &access.Rule{Cond: access.Atom(string(ScopeWriteUsers)), Filter: PassThrough()},
		History: &access.Rule{Cond: history, Filter: PassThrough()},
		Include: map[string]*access.Scope{
			"roles": userRoleScope,
		},
	}

	groupScope := &access.Scope{
		Model:   "Group",
		Repo:    repos.Accessor("Group"),
		Create:  cond(access.Atom(string(ScopeWriteGroups))),
		Read:    &access.Rule{Cond: readGroups, Filter: PassThrough()},
		Update:  &access.Rule{Cond: access.Atom(string(ScopeWriteGroups)), Filter: PassThrough()},
		Delete:  &access.Rule{Cond: access.Atom(string(ScopeWriteGroups)), Filter: PassThrough()},
		History: &access.Rule{Cond: history, Filter: PassThrough()},
		Include: map[string]*access.Scope{
			"users": userScope,
		},
	}

	permissionRoot := &access.Scope{
		Model:   "Permission",
		Repo:    repos.Accessor("Permission"),
		Create:  cond(access.Atom(string(ScopeWritePermissions))),
		Read:    &access.Rule{Cond: readPerms, Filter: PassThrough()},
		Update:  &access.Rule{Cond: access.Atom(string(ScopeWritePermissions)), Filter: PassThrough()},
		Delete:  &access.Rule{Cond: access.Atom(string(ScopeWritePermissions)), Filter: PassThrough()},
		History: &access.Rule{Cond: history, Filter: PassThrough()},
		Include: map[string]*access.Scope{
			"rolePermissions": rolePermissionScope,
		},
	}

	return []Root{
		{Model: "Group", BasePath: "/v1/groups", Scope: groupScope},
		{Model: "User", BasePath: "/v1/users", Scope: userScope},
		{Model: "Role", BasePath: "/v1/roles", Scope: roleScope},
		{Model: "Permission", BasePath: "/v1/permissions", Scope: permissionRoot},
	}
}
