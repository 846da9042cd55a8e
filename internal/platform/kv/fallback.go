package kv

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"solrelay/internal/platform/metrics"
	"solrelay/pkg/platform/circuit"
	"solrelay/pkg/platform/sentinel"
)

// FallbackBackend serves every operation from primary while it is healthy and
// from fallback when primary errors or the breaker is open. While open, the
// primary is probed at most once per breaker cooldown.
//
// Fallback state is per process: a nonce accepted by one instance during an
// outage is not visible to another.
type FallbackBackend struct {
	primary  Backend
	fallback Backend
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewFallbackBackend(primary, fallback Backend, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *FallbackBackend {
	if breaker == nil {
		breaker = circuit.New("kv")
	}
	return &FallbackBackend{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
	}
}

// run executes op against the primary when the breaker allows it and against
// the fallback otherwise. Only sentinel.ErrNotFound from the primary counts as
// a successful call. An error caused by the caller's own context is returned
// as is: the primary may already hold the key, so the memory tier cannot
// answer for it, and the breaker does not count it.
func run[T any](ctx context.Context, b *FallbackBackend, name string, op func(Backend) (T, error)) (T, error) {
	if !b.breaker.AllowProbe() {
		b.metrics.IncBackendFallback(name)
		return op(b.fallback)
	}

	v, err := op(b.primary)
	if err != nil && callerGone(ctx, err) {
		return v, err
	}
	if err == nil || errors.Is(err, sentinel.ErrNotFound) {
		if _, change := b.breaker.RecordSuccess(); change.Closed && b.logger != nil {
			b.logger.InfoContext(ctx, "durable backend recovered", "backend", b.breaker.Name())
		}
		return v, err
	}

	_, change := b.breaker.RecordFailure()
	if b.logger != nil {
		b.logger.WarnContext(ctx, "durable backend failed, serving from memory",
			"backend", b.breaker.Name(),
			"op", name,
			"error", err,
			"circuit_opened", change.Opened,
		)
	}
	b.metrics.IncBackendFallback(name)
	return op(b.fallback)
}

func callerGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (b *FallbackBackend) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return run(ctx, b, "set_if_absent", func(be Backend) (bool, error) {
		return be.SetIfAbsent(ctx, key, ttl)
	})
}

func (b *FallbackBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return run(ctx, b, "incr", func(be Backend) (int64, error) {
		return be.Incr(ctx, key, ttl)
	})
}

func (b *FallbackBackend) Get(ctx context.Context, key string) (string, error) {
	return run(ctx, b, "get", func(be Backend) (string, error) {
		return be.Get(ctx, key)
	})
}

func (b *FallbackBackend) PushHead(ctx context.Context, list, value string) error {
	_, err := run(ctx, b, "push_head", func(be Backend) (struct{}, error) {
		return struct{}{}, be.PushHead(ctx, list, value)
	})
	return err
}

func (b *FallbackBackend) Trim(ctx context.Context, list string, size int) error {
	_, err := run(ctx, b, "trim", func(be Backend) (struct{}, error) {
		return struct{}{}, be.Trim(ctx, list, size)
	})
	return err
}

func (b *FallbackBackend) Range(ctx context.Context, list string, n int) ([]string, error) {
	return run(ctx, b, "range", func(be Backend) ([]string, error) {
		return be.Range(ctx, list, n)
	})
}

// Status is "degraded" while the breaker is open or the primary fails a ping.
func (b *FallbackBackend) Status(ctx context.Context) string {
	if b.breaker.IsOpen() {
		return StatusDegraded
	}
	return b.primary.Status(ctx)
}
