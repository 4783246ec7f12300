// Package account covers the account lifecycle: registration,
// activation, password reset and credential verification.
package account

import "context"

// Statuses an account moves through. Only Active accounts can sign in.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDisabled = "disabled"
)

// Account is the credential-bearing view of a User record.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Status       string
	GroupID      string
}

// Store is the persistence the lifecycle flows require.
type Store interface {
	Create(ctx context.Context, acct Account) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	SetStatus(ctx context.Context, id, status string) error
	SetPassword(ctx context.Context, id, passwordHash string) error
}

// Mailer delivers lifecycle notifications. Delivery is an external
// collaborator; the default implementation only logs.
type Mailer interface {
	SendActivationCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}
