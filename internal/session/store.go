// Package session implements the authentication boundary: a TTL-keyed
// store of active sessions and one-time codes, and the service that
// issues, verifies and revokes them.
package session

import (
	"context"
	"time"
)

// KV is the key-value contract the session and code stores require:
// atomic per-key get/set/expire/delete plus a finite, restartable key
// scan. No multi-key transactions are needed; every session and code
// is independent.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Keys(ctx context.Context) ([]string, error)
}
