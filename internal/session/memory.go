package session

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryKV is an in-process KV on patrickmn/go-cache with passive
// TTL eviction.
type MemoryKV struct {
	cache *gocache.Cache
}

var _ KV = (*MemoryKV)(nil)

// NewMemoryKV builds a store that sweeps expired entries at the given
// interval.
func NewMemoryKV(cleanupInterval time.Duration) *MemoryKV {
	return &MemoryKV{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.cache.Set(key, value, ttl)
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Expire resets the entry's TTL to the full duration (sliding
// expiration). A missing key is a no-op.
func (m *MemoryKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil
	}
	m.cache.Set(key, v, ttl)
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context) ([]string, error) {
	items := m.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}
