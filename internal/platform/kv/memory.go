package kv

import (
	"context"
	"strconv"
	"sync"
	"time"

	"solrelay/pkg/platform/sentinel"
)

// defaultMaxEntries bounds the key space of a MemoryBackend. When a write
// would exceed it, expired entries are swept and, failing that, the entry
// closest to expiry is evicted.
const defaultMaxEntries = 100_000

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend implements Backend for a single process. State is lost on
// restart and is not shared between instances.
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	lists      map[string][]string
	maxEntries int
	now        func() time.Time
}

type MemoryOption func(*MemoryBackend)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithMaxEntries overrides the bound on stored keys.
func WithMaxEntries(n int) MemoryOption {
	return func(b *MemoryBackend) {
		if n > 0 {
			b.maxEntries = n
		}
	}
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		entries:    make(map[string]memoryEntry),
		lists:      make(map[string][]string),
		maxEntries: defaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if e, ok := b.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	b.put(key, memoryEntry{value: "1", expiresAt: now.Add(ttl)}, now)
	return true, nil
}

func (b *MemoryBackend) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	e, ok := b.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		b.put(key, memoryEntry{value: "1", expiresAt: now.Add(ttl)}, now)
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	b.entries[key] = e
	return n, nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if !b.now().Before(e.expiresAt) {
		delete(b.entries, key)
		return "", sentinel.ErrNotFound
	}
	return e.value, nil
}

func (b *MemoryBackend) PushHead(_ context.Context, list, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.lists[list]
	next := make([]string, 0, len(cur)+1)
	next = append(next, value)
	b.lists[list] = append(next, cur...)
	return nil
}

func (b *MemoryBackend) Trim(_ context.Context, list string, size int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if size <= 0 {
		delete(b.lists, list)
		return nil
	}
	if cur := b.lists[list]; len(cur) > size {
		b.lists[list] = cur[:size:size]
	}
	return nil
}

func (b *MemoryBackend) Range(_ context.Context, list string, n int) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.lists[list]
	if n > len(cur) {
		n = len(cur)
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]string, n)
	copy(out, cur[:n])
	return out, nil
}

func (b *MemoryBackend) Status(context.Context) string {
	return StatusDisabled
}

// put stores e under key, making room first if the bound is reached.
// Must be called while holding b.mu.
func (b *MemoryBackend) put(key string, e memoryEntry, now time.Time) {
	if _, exists := b.entries[key]; !exists && len(b.entries) >= b.maxEntries {
		b.sweep(now)
		if len(b.entries) >= b.maxEntries {
			b.evictSoonest()
		}
	}
	b.entries[key] = e
}

// sweep removes expired entries. Must be called while holding b.mu.
func (b *MemoryBackend) sweep(now time.Time) {
	for k, e := range b.entries {
		if !now.Before(e.expiresAt) {
			delete(b.entries, k)
		}
	}
}

// evictSoonest drops the entry nearest to expiry. Must be called while holding b.mu.
func (b *MemoryBackend) evictSoonest() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for k, e := range b.entries {
		if !found || e.expiresAt.Before(soonest) {
			victim, soonest, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(b.entries, victim)
	}
}
