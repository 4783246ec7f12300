package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"entgate.dev/internal/access"
	"entgate.dev/internal/log"
	"entgate.dev/internal/session"
)

// Codes is the one-time code collaborator (the session service).
type Codes interface {
	IssueCode(ctx context.Context, kind session.CodeKind, subjectID string) (string, error)
	ConsumeCode(ctx context.Context, code string, kind session.CodeKind) (string, error)
}

// Service implements the account lifecycle flows.
type Service struct {
	store  Store
	codes  Codes
	mailer Mailer
}

// NewService wires the lifecycle service. A nil mailer falls back to
// the logging mailer.
func NewService(store Store, codes Codes, mailer Mailer) *Service {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Service{store: store, codes: codes, mailer: mailer}
}

// Register creates an Inactive account and emails an activation code.
func (s *Service) Register(ctx context.Context, email, password string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Account{}, fmt.Errorf("%w: valid email is required", access.ErrValidation)
	}
	if strings.TrimSpace(password) == "" {
		return Account{}, fmt.Errorf("%w: password is required", access.ErrValidation)
	}

	// One account per email, matching the model's unique constraint.
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return Account{}, &access.ConflictError{Model: "User", Fields: []string{"email"}}
	} else if !errors.Is(err, access.ErrNotFound) {
		return Account{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}
	acct, err := s.store.Create(ctx, Account{
		Email:        email,
		PasswordHash: hash,
		Status:       StatusInactive,
	})
	if err != nil {
		return Account{}, err
	}

	code, err := s.codes.IssueCode(ctx, session.CodeKindAccount, acct.ID)
	if err != nil {
		return Account{}, err
	}
	if err := s.mailer.SendActivationCode(ctx, acct.Email, code); err != nil {
		// The code is still stored; the account can re-request it.
		log.Warn(ctx, "activation mail failed", log.String("email", acct.Email), log.Err(err))
	}
	return acct, nil
}

// Activate consumes an activation code and marks the account Active.
func (s *Service) Activate(ctx context.Context, code string) error {
	subjectID, err := s.codes.ConsumeCode(ctx, code, session.CodeKindAccount)
	if err != nil {
		return err
	}
	return s.store.SetStatus(ctx, subjectID, StatusActive)
}

// RequestPasswordReset issues a reset code for the account holding the
// email. An unknown email is reported as not found to the transport
// layer, which may choose to mask it.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	code, err := s.codes.IssueCode(ctx, session.CodeKindPassword, acct.ID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordResetCode(ctx, acct.Email, code); err != nil {
		log.Warn(ctx, "reset mail failed", log.String("email", acct.Email), log.Err(err))
	}
	return nil
}

// ResetPassword consumes a reset code and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, code, password string) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: password is required", access.ErrValidation)
	}
	subjectID, err := s.codes.ConsumeCode(ctx, code, session.CodeKindPassword)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.SetPassword(ctx, subjectID, hash)
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, subjectID, current, next string) error {
	acct, err := s.store.FindByID(ctx, subjectID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(acct.PasswordHash, current); err != nil {
		return access.ErrUnauthorized
	}
	if strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: password is required", access.ErrValidation)
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.SetPassword(ctx, subjectID, hash)
}
