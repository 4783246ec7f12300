// Package pg implements the access repository contract on Postgres.
// Records are stored as JSONB documents in one table per concern
// (live rows and history), keyed by model name and id.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"entgate.dev/internal/access"
	"entgate.dev/internal/model"
)

// Store owns the connection pool and hands out per-model repositories.
type Store struct {
	db  *sql.DB
	reg *model.Registry
}

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string, reg *model.Registry) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, reg: reg}, nil
}

// NewStore wraps an existing handle (used by tests with sqlmock).
func NewStore(db *sql.DB, reg *model.Registry) *Store {
	return &Store{db: db, reg: reg}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the document tables when absent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`create table if not exists records (
			model text not null,
			id text not null,
			doc jsonb not null,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now(),
			primary key (model, id)
		)`,
		`create table if not exists records_history (
			model text not null,
			record_id text not null,
			doc jsonb not null,
			op text not null,
			at timestamptz not null default now()
		)`,
		`create index if not exists records_history_model_idx
			on records_history (model, record_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Repo returns the repository serving one model.
func (s *Store) Repo(modelName string) *Repo {
	return &Repo{store: s, model: modelName}
}

// Accessor adapts the store to the scope tree's repository accessor.
func (s *Store) Accessor(modelName string) access.RepoAccessor {
	return func(context.Context) access.Repository {
		return s.Repo(modelName)
	}
}
