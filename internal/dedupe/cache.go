// Package dedupe provides the first-writer-wins cache used to reject replayed
// nonces and re-submitted transaction messages.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"solrelay/internal/platform/kv"
)

// KeyedCache records keys for a TTL. An entry is never removed before it
// expires, so a key can be claimed at most once per TTL.
type KeyedCache struct {
	backend kv.Backend
}

func New(backend kv.Backend) (*KeyedCache, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	return &KeyedCache{backend: backend}, nil
}

// SetIfAbsent returns true if this call created the entry for key and false if
// an unexpired entry already existed. Concurrent callers for the same key see
// exactly one true.
func (c *KeyedCache) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	created, err := c.backend.SetIfAbsent(ctx, key, ttl)
	if err != nil {
		return false, fmt.Errorf("set %q: %w", key, err)
	}
	return created, nil
}

// NonceKey and MessageKey namespace the two kinds of claim so a nonce can
// never collide with a message digest.
func NonceKey(nonce string) string { return "nonce:" + nonce }

func MessageKey(digest string) string { return "msg:" + digest }
