package account

import (
	"context"

	"entgate.dev/internal/access"
)

// RepoStore backs the account store with the User model repository, so
// lifecycle flows and the generated User operations share one source
// of truth.
type RepoStore struct {
	users access.Repository
}

var _ Store = (*RepoStore)(nil)

// NewRepoStore wraps the User repository.
func NewRepoStore(users access.Repository) *RepoStore {
	return &RepoStore{users: users}
}

func (s *RepoStore) Create(ctx context.Context, acct Account) (Account, error) {
	rec := access.Record{
		"email":        acct.Email,
		"passwordHash": acct.PasswordHash,
		"status":       acct.Status,
	}
	if acct.ID != "" {
		rec["id"] = acct.ID
	}
	if acct.GroupID != "" {
		rec["groupId"] = acct.GroupID
	}
	created, err := s.users.Create(ctx, rec)
	if err != nil {
		return Account{}, err
	}
	return fromRecord(created), nil
}

func (s *RepoStore) FindByID(ctx context.Context, id string) (Account, error) {
	rec, err := s.users.FindByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	return fromRecord(rec), nil
}

func (s *RepoStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	rec, err := s.users.FindOne(ctx, &access.Filter{Where: access.Where{"email": email}})
	if err != nil {
		return Account{}, err
	}
	if rec == nil {
		return Account{}, access.ErrNotFound
	}
	return fromRecord(rec), nil
}

func (s *RepoStore) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.users.UpdateByID(ctx, id, access.Record{"status": status})
	return err
}

func (s *RepoStore) SetPassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.users.UpdateByID(ctx, id, access.Record{"passwordHash": passwordHash})
	return err
}

func fromRecord(rec access.Record) Account {
	str := func(k string) string {
		v, _ := rec[k].(string)
		return v
	}
	return Account{
		ID:           str("id"),
		Email:        str("email"),
		PasswordHash: str("passwordHash"),
		Status:       str("status"),
		GroupID:      str("groupId"),
	}
}
