package access

import "context"

// Repository is the persistence contract the access core requires from
// a storage collaborator. Implementations live outside this package;
// the core issues filtered queries and propagates storage failures
// unchanged (no retries here).
type Repository interface {
	Create(ctx context.Context, rec Record) (Record, error)
	CreateAll(ctx context.Context, recs []Record) ([]Record, error)
	Find(ctx context.Context, f *Filter) ([]Record, error)
	FindByID(ctx context.Context, id string) (Record, error)
	FindOne(ctx context.Context, f *Filter) (Record, error)
	Count(ctx context.Context, where Where) (int, error)
	UpdateAll(ctx context.Context, patch Record, where Where) (int, error)
	UpdateByID(ctx context.Context, id string, patch Record) (Record, error)
	DeleteAll(ctx context.Context, where Where) (int, error)
	DeleteByID(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// HistoryQuerier is implemented by repositories that retain an audit
// trail of mutations. The history access kind is served through it.
type HistoryQuerier interface {
	History(ctx context.Context, f *Filter) ([]Record, error)
}

// RepoAccessor resolves the repository backing a scope at request time.
type RepoAccessor func(ctx context.Context) Repository
