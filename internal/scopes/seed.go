package scopes

import (
	"context"

	"entgate.dev/internal/access"
)

// EnsureBuiltins makes sure the permission catalog contains a row for
// every scope slug. Existing rows are left untouched.
func EnsureBuiltins(ctx context.Context, repos Repos) error {
	perms := repos.Accessor("Permission")(ctx)
	for _, s := range AllScopes() {
		existing, err := perms.FindOne(ctx, &access.Filter{Where: access.Where{"key": string(s.Slug)}})
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := perms.Create(ctx, access.Record{
			"key":         string(s.Slug),
			"description": s.Description,
		}); err != nil {
			return err
		}
	}
	return nil
}
