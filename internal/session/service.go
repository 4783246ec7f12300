package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"entgate.dev/internal/access"
	"entgate.dev/internal/log"
	"entgate.dev/internal/obs"
)

const (
	// DefaultTTL is the sliding session lifetime.
	DefaultTTL = 300 * time.Second

	// DefaultCodeTTL bounds one-time code validity.
	DefaultCodeTTL = 300 * time.Second
)

// CodeKind distinguishes one-time code purposes.
type CodeKind string

const (
	CodeKindAccount  CodeKind = "account"
	CodeKindPassword CodeKind = "password"
)

// Session is the stored authentication state behind a bearer token.
// The permission set is a snapshot computed once at issue time; role
// changes take effect on next sign-in.
type Session struct {
	Token       string        `json:"token"`
	SubjectID   string        `json:"subject_id"`
	Permissions []string      `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	TTL         time.Duration `json:"ttl"`
	Device      string        `json:"device,omitempty"`
	IP          string        `json:"ip,omitempty"`
}

// PermissionSet returns the snapshot as a lookup set.
func (s Session) PermissionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Permissions))
	for _, p := range s.Permissions {
		set[p] = struct{}{}
	}
	return set
}

// Code is a stored one-time code.
type Code struct {
	Code      string   `json:"code"`
	Kind      CodeKind `json:"kind"`
	SubjectID string   `json:"subject_id"`
}

// Credential is the directory's answer to a sign-in attempt: the
// subject, its stored password hash and whether the account is Active.
type Credential struct {
	SubjectID    string
	PasswordHash string
	Active       bool
}

// Directory resolves accounts and their effective permissions for
// token issuance.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (Credential, error)
	PermissionsFor(ctx context.Context, subjectID string) ([]string, error)
}

// Metadata is optional per-session request context.
type Metadata struct {
	Device string
	IP     string
}

// Service issues, verifies and revokes sessions and one-time codes.
type Service struct {
	sessions KV
	codes    KV
	dir      Directory
	tokens   TokenProvider
	ttl      time.Duration
	codeTTL  time.Duration
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the sliding session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCodeTTL overrides one-time code validity.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithTokenProvider overrides the default opaque random tokens.
func WithTokenProvider(p TokenProvider) Option {
	return func(s *Service) {
		if p != nil {
			s.tokens = p
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authentication boundary service.
func NewService(sessions, codes KV, dir Directory, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		codes:    codes,
		dir:      dir,
		tokens:   RandomTokenProvider{},
		ttl:      DefaultTTL,
		codeTTL:  DefaultCodeTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify resolves a bearer token to its session and refreshes the TTL
// to the full duration as a side effect (sliding expiration).
func (s *Service) Verify(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, access.ErrUnauthorized
	}
	raw, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, access.ErrUnauthorized
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, access.ErrUnauthorized
	}
	if err := s.sessions.Expire(ctx, token, s.ttl); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Issue verifies credentials against an Active account, computes the
// permission set once, stores the session and returns the token.
func (s *Service) Issue(ctx context.Context, email, password string, meta Metadata) (string, Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", Session{}, access.ErrUnauthorized
	}
	cred, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		return "", Session{}, access.ErrUnauthorized
	}
	if !cred.Active {
		return "", Session{}, access.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", Session{}, access.ErrUnauthorized
	}

	perms, err := s.dir.PermissionsFor(ctx, cred.SubjectID)
	if err != nil {
		return "", Session{}, err
	}
	token, err := s.tokens.New(cred.SubjectID)
	if err != nil {
		return "", Session{}, err
	}

	sess := Session{
		Token:       token,
		SubjectID:   cred.SubjectID,
		Permissions: perms,
		CreatedAt:   s.now().UTC(),
		TTL:         s.ttl,
		Device:      meta.Device,
		IP:          meta.IP,
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", Session{}, err
	}
	if err := s.sessions.Set(ctx, token, raw, s.ttl); err != nil {
		return "", Session{}, err
	}

	obs.SessionIssued()
	log.Debug(ctx, "session issued", log.String("subject", cred.SubjectID))

	return token, sess, nil
}

// Revoke destroys a session (explicit sign-out).
func (s *Service) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return access.ErrUnauthorized
	}
	return s.sessions.Delete(ctx, token)
}

// IssueCode stores a fresh one-time code for a subject after deleting
// any prior un-consumed code of the same kind. The scan-and-delete is
// not atomic; a race yields at most a harmless duplicate code.
func (s *Service) IssueCode(ctx context.Context, kind CodeKind, subjectID string) (string, error) {
	keys, err := s.codes.Keys(ctx)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		raw, ok, err := s.codes.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		var c Code
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		if c.Kind == kind && c.SubjectID == subjectID {
			if err := s.codes.Delete(ctx, key); err != nil {
				return "", err
			}
		}
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(Code{Code: code, Kind: kind, SubjectID: subjectID})
	if err != nil {
		return "", err
	}
	if err := s.codes.Set(ctx, code, raw, s.codeTTL); err != nil {
		return "", err
	}
	return code, nil
}

// ConsumeCode redeems a code exactly once: a successful consumption
// deletes it, and kind mismatches are indistinguishable from absence.
func (s *Service) ConsumeCode(ctx context.Context, code string, kind CodeKind) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", access.ErrNotFound
	}
	raw, ok, err := s.codes.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", access.ErrNotFound
	}
	var c Code
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", access.ErrNotFound
	}
	if c.Kind != kind {
		return "", access.ErrNotFound
	}
	if err := s.codes.Delete(ctx, code); err != nil {
		return "", err
	}
	return c.SubjectID, nil
}
