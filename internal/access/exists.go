package access

import "context"

// CheckExists verifies that every ancestor id in a nested resource path
// resolves to a record visible under that level's read scope. It runs
// before mutating operations so children are never created under a
// missing or inaccessible parent.
//
// pathIDs[i] is checked against the model reached by following
// relationPath[:i] from the root. Any failure is ErrNotFound: the
// caller learns nothing about whether the record exists but is hidden.
func (e *Engine) CheckExists(ctx context.Context, pathIDs []string, rootModel string, rootScope *Scope, relationPath []string, caller Caller) error {
	modelName := rootModel
	scope := rootScope

	for i, id := range pathIDs {
		if id == "" {
			return ErrNotFound
		}
		rule, ok := scope.rule(KindRead)
		if !ok {
			return ErrNotFound
		}

		where := Where{}
		if rule.Filter != nil {
			where = rule.Filter(caller, where)
		}
		where = where.Clone()
		where["id"] = id

		if scope.Repo == nil {
			return ErrNotFound
		}
		n, err := scope.Repo(ctx).Count(ctx, where)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		// Descend toward the target collection.
		if i < len(relationPath) {
			desc, ok := e.reg.Lookup(modelName)
			if !ok {
				return ErrNotFound
			}
			rel, ok := desc.Relation(relationPath[i])
			if !ok {
				return ErrNotFound
			}
			child, ok := scope.Include[relationPath[i]]
			if !ok {
				return ErrNotFound
			}
			modelName = rel.Target
			scope = child
		}
	}

	return nil
}
