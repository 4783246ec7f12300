package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenProvider generates bearer token strings. Sessions are always
// resolved through the store; the provider only controls the token
// format.
type TokenProvider interface {
	New(subjectID string) (string, error)
}

// RandomTokenProvider issues opaque 256-bit random tokens. This is the
// default.
type RandomTokenProvider struct{}

func (RandomTokenProvider) New(string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// JWTTokenProvider issues HS256-signed JWTs carrying the subject and a
// unique jti. Verification still goes through the session store, so
// revocation and sliding expiry behave identically to opaque tokens.
type JWTTokenProvider struct {
	Secret []byte
	Issuer string
}

func (p JWTTokenProvider) New(subjectID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:   p.Issuer,
		Subject:  subjectID,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.Secret)
}

// newCode returns a short random one-time code.
func newCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
