package access

import (
	"context"

	"entgate.dev/internal/model"
)

// CheckUnique rejects candidate records that would violate the model's
// declared uniqueness constraints. It issues a single repository
// round-trip (an OR over every assigned unique field/value pair) so
// bulk creates stay one query, and additionally rejects duplicate
// values within the candidate batch itself.
//
// excludeSelfOnUpdate selects the bulk-update path, where the target
// rows are not known ahead of the update. There conflict detection is
// approximated by counting unique-field assignments across the
// candidate set; two candidates assigning the same unique field
// conflict regardless of value. This is a deliberately weaker
// guarantee than the create path, preserved as specified.
func CheckUnique(ctx context.Context, desc *model.Descriptor, candidates []Record, excludeSelfOnUpdate bool, repo Repository) error {
	unique := desc.Unique()
	if len(unique) == 0 || len(candidates) == 0 {
		return nil
	}

	if excludeSelfOnUpdate {
		var offending []string
		for _, field := range unique {
			assigned := 0
			for _, rec := range candidates {
				if hasValue(rec, field) {
					assigned++
				}
			}
			if assigned > 1 {
				offending = append(offending, field)
			}
		}
		if len(offending) > 0 {
			return &ConflictError{Model: desc.Name, Fields: offending}
		}
		return nil
	}

	var (
		clauses  []Where
		assigned []string
		seen     = map[string]map[any]struct{}{}
		batchDup []string
	)
	for _, rec := range candidates {
		for _, field := range unique {
			if !hasValue(rec, field) {
				continue
			}
			v := rec[field]
			clauses = append(clauses, Where{field: v})
			if !contains(assigned, field) {
				assigned = append(assigned, field)
			}
			if seen[field] == nil {
				seen[field] = map[any]struct{}{}
			}
			if _, dup := seen[field][v]; dup {
				if !contains(batchDup, field) {
					batchDup = append(batchDup, field)
				}
			}
			seen[field][v] = struct{}{}
		}
	}

	if len(batchDup) > 0 {
		return &ConflictError{Model: desc.Name, Fields: batchDup}
	}
	if len(clauses) == 0 {
		return nil
	}

	where := Where{"or": clauses}
	if len(clauses) == 1 {
		where = clauses[0]
	}

	n, err := repo.Count(ctx, where)
	if err != nil {
		return err
	}
	if n > 0 {
		return &ConflictError{Model: desc.Name, Fields: assigned}
	}
	return nil
}

func hasValue(rec Record, field string) bool {
	v, ok := rec[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
