// Package kv is the relay's storage capability layer.
//
// Every stateful component (dedup cache, rate limiter, activity ledger) talks
// to a Backend. Two concrete implementations exist: RedisBackend, shared across
// relay instances, and MemoryBackend, local to one process. FallbackBackend
// composes them so that a Redis outage degrades to per-process state instead of
// failing requests. The choice is made once at startup by Select.
package kv

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"solrelay/internal/platform/metrics"
	"solrelay/pkg/platform/circuit"
)

// Backend is the set of primitives the relay needs from its store.
type Backend interface {
	// SetIfAbsent records key for ttl and returns true only if it was not
	// already present. Exactly one concurrent caller per key wins.
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Incr increments the counter at key, creating it with ttl if absent,
	// and returns the post-increment value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the value at key or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// PushHead prepends value to the list at list.
	PushHead(ctx context.Context, list, value string) error

	// Trim keeps only the first size elements of list.
	Trim(ctx context.Context, list string, size int) error

	// Range returns up to n elements from the head of list.
	Range(ctx context.Context, list string, n int) ([]string, error)

	// Status reports "ready", "degraded" or "disabled" for health output.
	Status(ctx context.Context) string
}

// Status values reported by backends.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusDisabled = "disabled"
)

// Select returns the in-memory backend when redis is nil, otherwise Redis with
// an in-memory fallback.
func Select(client *redis.Client, logger *slog.Logger, m *metrics.Metrics) Backend {
	memory := NewMemoryBackend()
	if client == nil {
		if logger != nil {
			logger.Info("durable backend not configured, using in-memory state")
		}
		return memory
	}
	return NewFallbackBackend(
		NewRedisBackend(client),
		memory,
		circuit.New("redis",
			circuit.WithFailureThreshold(3),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(5*time.Second),
		),
		logger,
		m,
	)
}
