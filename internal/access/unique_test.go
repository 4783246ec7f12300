package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"entgate.dev/internal/model"
)

// fakeRepo is a minimal in-package repository double. Tests that need
// real storage semantics live next to the repo implementations.
type fakeRepo struct {
	rows       []Record
	countCalls []Where
}

func (f *fakeRepo) Create(_ context.Context, rec Record) (Record, error) { return rec, nil }

func (f *fakeRepo) CreateAll(_ context.Context, recs []Record) ([]Record, error) {
	return recs, nil
}

func (f *fakeRepo) Find(_ context.Context, filter *Filter) ([]Record, error) {
	var out []Record
	for _, rec := range f.rows {
		if filter == nil || matches(rec, filter.Where) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByID(_ context.Context, id string) (Record, error) {
	for _, rec := range f.rows {
		if rec["id"] == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) FindOne(ctx context.Context, filter *Filter) (Record, error) {
	rows, err := f.Find(ctx, filter)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakeRepo) Count(_ context.Context, where Where) (int, error) {
	f.countCalls = append(f.countCalls, where)
	n := 0
	for _, rec := range f.rows {
		if matches(rec, where) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) UpdateAll(_ context.Context, patch Record, where Where) (int, error) {
	n := 0
	for _, rec := range f.rows {
		if matches(rec, where) {
			for k, v := range patch {
				if k != "id" {
					rec[k] = v
				}
			}
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) UpdateByID(_ context.Context, id string, patch Record) (Record, error) {
	rec, err := f.FindByID(context.Background(), id)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		if k != "id" {
			rec[k] = v
		}
	}
	return rec, nil
}

func (f *fakeRepo) DeleteAll(_ context.Context, where Where) (int, error) {
	var kept []Record
	n := 0
	for _, rec := range f.rows {
		if matches(rec, where) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeRepo) DeleteByID(_ context.Context, id string) error {
	n, err := f.DeleteAll(context.Background(), Where{"id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (f *fakeRepo) Exists(_ context.Context, id string) (bool, error) {
	_, err := f.FindByID(context.Background(), id)
	return err == nil, nil
}

func matches(rec Record, where Where) bool {
	for k, v := range where {
		switch k {
		case "or":
			clauses, _ := v.([]Where)
			hit := false
			for _, c := range clauses {
				if matches(rec, c) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		case "and":
			clauses, _ := v.([]Where)
			for _, c := range clauses {
				if !matches(rec, c) {
					return false
				}
			}
		default:
			if rec[k] != v {
				return false
			}
		}
	}
	return true
}

func memberDesc(t *testing.T) *model.Descriptor {
	t.Helper()
	reg := testRegistry(t)
	desc, ok := reg.Lookup("Member")
	require.True(t, ok)
	return desc
}

func TestCheckUniqueNoConflict(t *testing.T) {
	repo := &fakeRepo{rows: []Record{{"id": "m1", "email": "a@x"}}}
	desc := memberDesc(t)

	err := CheckUnique(context.Background(), desc, []Record{{"email": "b@x"}}, false, repo)
	require.NoError(t, err)
}

func TestCheckUniqueExistingValueConflicts(t *testing.T) {
	repo := &fakeRepo{rows: []Record{{"id": "m1", "email": "a@x"}}}
	desc := memberDesc(t)

	err := CheckUnique(context.Background(), desc, []Record{{"email": "a@x"}}, false, repo)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "Member", conflict.Model)
	require.Contains(t, conflict.Fields, "email")
	require.ErrorIs(t, err, ErrConflict)
}

func TestCheckUniqueBatchIsSingleQuery(t *testing.T) {
	repo := &fakeRepo{}
	desc := memberDesc(t)

	batch := []Record{
		{"email": "a@x"},
		{"email": "b@x"},
		{"email": "c@x"},
	}
	err := CheckUnique(context.Background(), desc, batch, false, repo)
	require.NoError(t, err)
	require.Len(t, repo.countCalls, 1, "bulk create must stay one round-trip")
	_, isOr := repo.countCalls[0]["or"]
	require.True(t, isOr)
}

func TestCheckUniqueIntraBatchDuplicate(t *testing.T) {
	repo := &fakeRepo{}
	desc := memberDesc(t)

	batch := []Record{
		{"email": "dup@x"},
		{"email": "dup@x"},
	}
	err := CheckUnique(context.Background(), desc, batch, false, repo)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Contains(t, conflict.Fields, "email")
	require.Empty(t, repo.countCalls, "duplicates inside the batch are caught before querying")
}

func TestCheckUniqueUnassignedFieldsSkipped(t *testing.T) {
	repo := &fakeRepo{rows: []Record{{"id": "m1", "email": "a@x"}}}
	desc := memberDesc(t)

	// Empty and nil values do not participate in uniqueness.
	err := CheckUnique(context.Background(), desc, []Record{{"email": ""}, {"teamId": "t1"}}, false, repo)
	require.NoError(t, err)
	require.Empty(t, repo.countCalls)
}

func TestCheckUniqueUpdatePathCountsAssignments(t *testing.T) {
	repo := &fakeRepo{rows: []Record{{"id": "m1", "email": "a@x"}}}
	desc := memberDesc(t)

	// One patch assigning a unique field is fine even if the value is
	// already taken: target rows are unknown at this point.
	err := CheckUnique(context.Background(), desc, []Record{{"email": "a@x"}}, true, repo)
	require.NoError(t, err)
	require.Empty(t, repo.countCalls)

	// Two candidates assigning the same unique field conflict
	// regardless of value.
	err = CheckUnique(context.Background(), desc, []Record{{"email": "a@x"}, {"email": "b@x"}}, true, repo)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Contains(t, conflict.Fields, "email")
}

func TestCheckUniqueRepeatableAgainstUnchangedState(t *testing.T) {
	repo := &fakeRepo{rows: []Record{{"id": "m1", "email": "a@x"}}}
	desc := memberDesc(t)

	// The check writes nothing: repeated runs over the same state give
	// the same verdict.
	for i := 0; i < 2; i++ {
		err := CheckUnique(context.Background(), desc, []Record{{"email": "b@x"}}, false, repo)
		require.NoError(t, err, "run %d", i)
	}
	for i := 0; i < 2; i++ {
		err := CheckUnique(context.Background(), desc, []Record{{"email": "a@x"}}, false, repo)
		require.ErrorIs(t, err, ErrConflict, "run %d", i)
	}
	require.Len(t, repo.rows, 1)
}

func TestCheckUniqueNoUniqueFields(t *testing.T) {
	repo := &fakeRepo{}
	desc := &model.Descriptor{Name: "Note", Properties: []model.Property{{Name: "body"}}}

	err := CheckUnique(context.Background(), desc, []Record{{"body": "x"}}, false, repo)
	require.NoError(t, err)
	require.Empty(t, repo.countCalls)
}
