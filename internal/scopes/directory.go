package scopes

import (
	"context"

	"entgate.dev/internal/access"
	"entgate.dev/internal/account"
	"entgate.dev/internal/session"
)

// Directory resolves sign-in credentials and computes the permission
// snapshot stored into a session: the union of permission keys granted
// through the user's roles, including inherited parent roles.
type Directory struct {
	accounts        account.Store
	userRoles       access.Repository
	roles           access.Repository
	rolePermissions access.Repository
	permissions     access.Repository
}

var _ session.Directory = (*Directory)(nil)

// NewDirectory wires the directory over the graph's repositories.
func NewDirectory(accounts account.Store, repos Repos) *Directory {
	ctx := context.Background()
	return &Directory{
		accounts:        accounts,
		userRoles:       repos.Accessor("UserRole")(ctx),
		roles:           repos.Accessor("Role")(ctx),
		rolePermissions: repos.Accessor("RolePermission")(ctx),
		permissions:     repos.Accessor("Permission")(ctx),
	}
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (session.Credential, error) {
	acct, err := d.accounts.FindByEmail(ctx, email)
	if err != nil {
		return session.Credential{}, err
	}
	return session.Credential{
		SubjectID:    acct.ID,
		PasswordHash: acct.PasswordHash,
		Active:       acct.Status == account.StatusActive,
	}, nil
}

// PermissionsFor computes the permission set once, at token issue time.
// Role hierarchies are followed through parentId with a visited set, so
// accidental cycles cannot loop.
func (d *Directory) PermissionsFor(ctx context.Context, subjectID string) ([]string, error) {
	assignments, err := d.userRoles.Find(ctx, &access.Filter{Where: access.Where{"userId": subjectID}})
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	var queue []string
	for _, a := range assignments {
		if id, _ := a["roleId"].(string); id != "" && !visited[id] {
			visited[id] = true
			queue = append(queue, id)
		}
	}

	permSet := map[string]struct{}{PermAuthenticated: {}}
	for len(queue) > 0 {
		roleID := queue[0]
		queue = queue[1:]

		grants, err := d.rolePermissions.Find(ctx, &access.Filter{Where: access.Where{"roleId": roleID}})
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			permID, _ := g["permissionId"].(string)
			if permID == "" {
				continue
			}
			perm, err := d.permissions.FindByID(ctx, permID)
			if err != nil {
				continue
			}
			if key, _ := perm["key"].(string); key != "" {
				permSet[key] = struct{}{}
			}
		}

		role, err := d.roles.FindByID(ctx, roleID)
		if err != nil {
			continue
		}
		if parentID, _ := role["parentId"].(string); parentID != "" && !visited[parentID] {
			visited[parentID] = true
			queue = append(queue, parentID)
		}
	}

	out := make([]string, 0, len(permSet))
	for p := range permSet {
		out = append(out, p)
	}
	return out, nil
}
