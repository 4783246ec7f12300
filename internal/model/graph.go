package model

// BuiltinRegistry returns the registry for the default entity graph:
// groups own users, users hold roles through UserRole, roles grant
// permissions through RolePermission, and roles form a hierarchy via
// parentId (the relation graph may contain cycles; inclusion requests
// remain finite because their depth is caller-driven).
func BuiltinRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister(&Descriptor{
		Name: "Group",
		Properties: []Property{
			{Name: "id"},
			{Name: "name", Required: true},
			{Name: "description"},
		},
		UniqueFields: []string{"name"},
		Relations: map[string]Relation{
			"users": {Name: "users", Target: "User", Kind: HasMany, ForeignKey: "groupId"},
		},
	})

	r.MustRegister(&Descriptor{
		Name: "User",
		Properties: []Property{
			{Name: "id"},
			{Name: "email", Required: true},
			{Name: "passwordHash"},
			{Name: "status"},
			{Name: "groupId"},
		},
		UniqueFields: []string{"email"},
		Relations: map[string]Relation{
			"group": {Name: "group", Target: "Group", Kind: BelongsTo, ForeignKey: "groupId"},
			"roles": {Name: "roles", Target: "UserRole", Kind: HasMany, ForeignKey: "userId"},
		},
	})

	r.MustRegister(&Descriptor{
		Name: "UserRole",
		Properties: []Property{
			{Name: "id"},
			{Name: "userId", Required: true},
			{Name: "roleId", Required: true},
		},
		UniqueIndexes: [][]string{{"userId", "roleId"}},
		Relations: map[string]Relation{
			"user": {Name: "user", Target: "User", Kind: BelongsTo, ForeignKey: "userId"},
			"role": {Name: "role", Target: "Role", Kind: BelongsTo, ForeignKey: "roleId"},
		},
	})

	r.MustRegister(&Descriptor{
		Name: "Role",
		Properties: []Property{
			{Name: "id"},
			{Name: "name", Required: true},
			{Name: "description"},
			{Name: "parentId"},
		},
		UniqueFields: []string{"name"},
		Relations: map[string]Relation{
			"parent":      {Name: "parent", Target: "Role", Kind: BelongsTo, ForeignKey: "parentId"},
			"children":    {Name: "children", Target: "Role", Kind: HasMany, ForeignKey: "parentId"},
			"permissions": {Name: "permissions", Target: "RolePermission", Kind: HasMany, ForeignKey: "roleId"},
		},
	})

	r.MustRegister(&Descriptor{
		Name: "RolePermission",
		Properties: []Property{
			{Name: "id"},
			{Name: "roleId", Required: true},
			{Name: "permissionId", Required: true},
		},
		UniqueIndexes: [][]string{{"roleId", "permissionId"}},
		Relations: map[string]Relation{
			"role":       {Name: "role", Target: "Role", Kind: BelongsTo, ForeignKey: "roleId"},
			"permission": {Name: "permission", Target: "Permission", Kind: BelongsTo, ForeignKey: "permissionId"},
		},
	})

	r.MustRegister(&Descriptor{
		Name: "Permission",
		Properties: []Property{
			{Name: "id"},
			{Name: "key", Required: true},
			{Name: "description"},
		},
		UniqueFields: []string{"key"},
		Relations: map[string]Relation{
			"rolePermissions": {Name: "rolePermissions", Target: "RolePermission", Kind: HasMany, ForeignKey: "permissionId"},
		},
	})

	return r
}
