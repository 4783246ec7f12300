package scopes

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"entgate.dev/internal/access"
	"entgate.dev/internal/account"
	"entgate.dev/internal/model"
	"entgate.dev/internal/repo"
)

func TestScopeCatalog(t *testing.T) {
	require.Len(t, AllScopes(), 9)
	require.True(t, IsValidScope("read_users"))
	require.True(t, IsValidScope("write_permissions"))
	require.False(t, IsValidScope("read_everything"))
	require.False(t, IsValidScope(""))
}

func TestPassThroughClones(t *testing.T) {
	in := access.Where{"a": 1}
	out := PassThrough()(access.StaticCaller{}, in)
	out["b"] = 2
	_, leaked := in["b"]
	require.False(t, leaked)
}

func TestSelfOrScope(t *testing.T) {
	fm := SelfOrScope(ScopeReadUsers, "id")

	narrow := fm(access.StaticCaller{Subject: "u1"}, access.Where{})
	require.Equal(t, "u1", narrow["id"])

	broad := fm(access.StaticCaller{Subject: "u1", Perms: []string{string(ScopeReadUsers)}}, access.Where{})
	_, pinned := broad["id"]
	require.False(t, pinned, "broad scope sees everything")
}

func TestByArg(t *testing.T) {
	fm := ByArg("groupId", 0)

	pinned := fm(access.StaticCaller{Args: []string{"g7"}}, access.Where{})
	require.Equal(t, "g7", pinned["groupId"])

	unpinned := fm(access.StaticCaller{}, access.Where{})
	_, ok := unpinned["groupId"]
	require.False(t, ok)
}

func TestEnsureBuiltinsIdempotent(t *testing.T) {
	pool := repo.NewPool(model.BuiltinRegistry())
	ctx := context.Background()

	require.NoError(t, EnsureBuiltins(ctx, pool))
	require.NoError(t, EnsureBuiltins(ctx, pool))

	n, err := pool.Repo("Permission").Count(ctx, access.Where{})
	require.NoError(t, err)
	require.Equal(t, len(AllScopes()), n)
}

func TestDefaultRootsShape(t *testing.T) {
	pool := repo.NewPool(model.BuiltinRegistry())
	roots := DefaultRoots(pool)
	require.Len(t, roots, 4)

	byModel := map[string]Root{}
	for _, r := range roots {
		byModel[r.Model] = r
	}

	group := byModel["Group"]
	require.Equal(t, "/v1/groups", group.BasePath)
	require.True(t, group.Scope.Exposes(access.KindCreate))
	require.True(t, group.Scope.Exposes(access.KindHistory))

	user := byModel["User"]
	require.True(t, user.Scope.Exposes(access.KindRead))
	require.NotNil(t, user.Scope.Include["roles"])

	// The permission collection under roles is read-only plus delete,
	// never update: grants are replaced, not edited.
	rp := byModel["Role"].Scope.Include["permissions"]
	require.NotNil(t, rp)
	require.False(t, rp.Exposes(access.KindUpdate))

	// Role hierarchy points back at itself.
	role := byModel["Role"].Scope
	require.Same(t, role, role.Include["parent"])
	require.Same(t, role, role.Include["children"])
}

func seedGraph(t *testing.T) (*repo.Pool, *Directory) {
	t.Helper()
	pool := repo.NewPool(model.BuiltinRegistry())
	ctx := context.Background()

	_, err := pool.Repo("Permission").CreateAll(ctx, []access.Record{
		{"id": "p-read", "key": "read_users"},
		{"id": "p-write", "key": "write_users"},
		{"id": "p-roles", "key": "read_roles"},
	})
	require.NoError(t, err)

	_, err = pool.Repo("Role").CreateAll(ctx, []access.Record{
		{"id": "r-admin", "name": "admin", "parentId": "r-viewer"},
		{"id": "r-viewer", "name": "viewer"},
	})
	require.NoError(t, err)

	_, err = pool.Repo("RolePermission").CreateAll(ctx, []access.Record{
		{"id": "rp1", "roleId": "r-admin", "permissionId": "p-write"},
		{"id": "rp2", "roleId": "r-viewer", "permissionId": "p-read"},
	})
	require.NoError(t, err)

	_, err = pool.Repo("User").Create(ctx, access.Record{
		"id": "u1", "email": "a@x", "status": account.StatusActive,
	})
	require.NoError(t, err)
	_, err = pool.Repo("UserRole").Create(ctx, access.Record{
		"id": "ur1", "userId": "u1", "roleId": "r-admin",
	})
	require.NoError(t, err)

	dir := NewDirectory(account.NewRepoStore(pool.Repo("User")), pool)
	return pool, dir
}

func TestPermissionsForInheritsParentRoles(t *testing.T) {
	_, dir := seedGraph(t)

	perms, err := dir.PermissionsFor(context.Background(), "u1")
	require.NoError(t, err)
	sort.Strings(perms)
	require.Equal(t, []string{PermAuthenticated, "read_users", "write_users"}, perms)
}

func TestPermissionsForNoRoles(t *testing.T) {
	_, dir := seedGraph(t)

	perms, err := dir.PermissionsFor(context.Background(), "u-unassigned")
	require.NoError(t, err)
	require.Equal(t, []string{PermAuthenticated}, perms)
}

func TestPermissionsForSurvivesRoleCycle(t *testing.T) {
	pool, dir := seedGraph(t)
	ctx := context.Background()

	// Close the hierarchy into a loop; resolution must still halt.
	_, err := pool.Repo("Role").UpdateByID(ctx, "r-viewer", access.Record{"parentId": "r-admin"})
	require.NoError(t, err)

	perms, err := dir.PermissionsFor(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, perms, "read_users")
	require.Contains(t, perms, "write_users")
}

func TestDirectoryFindByEmail(t *testing.T) {
	_, dir := seedGraph(t)
	ctx := context.Background()

	cred, err := dir.FindByEmail(ctx, "a@x")
	require.NoError(t, err)
	require.Equal(t, "u1", cred.SubjectID)
	require.True(t, cred.Active)

	_, err = dir.FindByEmail(ctx, "nobody@x")
	require.ErrorIs(t, err, access.ErrNotFound)
}
