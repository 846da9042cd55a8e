package kv

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"solrelay/internal/platform/logger"
	"solrelay/internal/platform/metrics"
	"solrelay/pkg/platform/circuit"
)

var errBackendDown = errors.New("connection refused")

// flakyBackend wraps a MemoryBackend and fails every call while down is set.
type flakyBackend struct {
	*MemoryBackend
	down  atomic.Bool
	calls atomic.Int32
}

func (f *flakyBackend) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return false, errBackendDown
	}
	return f.MemoryBackend.SetIfAbsent(ctx, key, ttl)
}

func (f *flakyBackend) PushHead(ctx context.Context, list, value string) error {
	f.calls.Add(1)
	if f.down.Load() {
		return errBackendDown
	}
	return f.MemoryBackend.PushHead(ctx, list, value)
}

func (f *flakyBackend) Status(context.Context) string {
	if f.down.Load() {
		return StatusDegraded
	}
	return StatusReady
}

type FallbackBackendSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	primary *flakyBackend
	memory  *MemoryBackend
	metrics *metrics.Metrics
	backend *FallbackBackend
}

func TestFallbackBackendSuite(t *testing.T) {
	suite.Run(t, new(FallbackBackendSuite))
}

func (s *FallbackBackendSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	s.primary = &flakyBackend{MemoryBackend: NewMemoryBackend()}
	s.memory = NewMemoryBackend()
	s.metrics = metrics.New(prometheus.NewRegistry())
	breaker := circuit.New("redis",
		circuit.WithFailureThreshold(3),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(5*time.Second),
		circuit.WithClock(clock),
	)
	s.backend = NewFallbackBackend(s.primary, s.memory, breaker, logger.Discard(), s.metrics)
}

func (s *FallbackBackendSuite) TestHealthyPrimaryIsAuthoritative() {
	ok, err := s.backend.SetIfAbsent(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.primary.MemoryBackend.SetIfAbsent(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.False(ok, "write landed on the primary")
	s.Equal(StatusReady, s.backend.Status(s.ctx))
}

func (s *FallbackBackendSuite) TestFailingPrimaryServesFromMemory() {
	s.primary.down.Store(true)

	ok, err := s.backend.SetIfAbsent(s.ctx, "nonce", time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.backend.SetIfAbsent(s.ctx, "nonce", time.Minute)
	s.Require().NoError(err)
	s.False(ok, "memory tier still rejects replays during the outage")

	s.Equal(2.0, testutil.ToFloat64(s.metrics.BackendFallbacks.WithLabelValues("set_if_absent")))
}

func (s *FallbackBackendSuite) TestOpenBreakerSkipsPrimaryUntilCooldown() {
	s.primary.down.Store(true)
	for range 3 {
		s.Require().NoError(s.backend.PushHead(s.ctx, "l", "v"))
	}
	s.Equal(StatusDegraded, s.backend.Status(s.ctx))
	calls := s.primary.calls.Load()

	s.Require().NoError(s.backend.PushHead(s.ctx, "l", "v"))
	s.Equal(calls, s.primary.calls.Load(), "no probe before cooldown")

	s.primary.down.Store(false)
	s.now = s.now.Add(5 * time.Second)
	s.Require().NoError(s.backend.PushHead(s.ctx, "l", "v"))
	s.Equal(calls+1, s.primary.calls.Load(), "one probe after cooldown")
	s.Equal(StatusReady, s.backend.Status(s.ctx), "successful probe closes the breaker")
}

func (s *FallbackBackendSuite) TestNotFoundIsNotAFailure() {
	_, err := s.backend.Get(s.ctx, "absent")
	s.Error(err)
	s.Equal(0.0, testutil.ToFloat64(s.metrics.BackendFallbacks.WithLabelValues("get")))
}

func (s *FallbackBackendSuite) TestCallerCancellationIsNotAnOutage() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.primary.down.Store(true)

	for range 3 {
		_, err := s.backend.SetIfAbsent(ctx, "nonce:gone", time.Minute)
		s.ErrorIs(err, errBackendDown)
	}
	s.False(s.backend.breaker.IsOpen(), "cancelled callers do not trip the breaker")
	s.Equal(0.0, testutil.ToFloat64(s.metrics.BackendFallbacks.WithLabelValues("set_if_absent")))

	ok, err := s.memory.SetIfAbsent(s.ctx, "nonce:gone", time.Minute)
	s.Require().NoError(err)
	s.True(ok, "memory tier never saw the cancelled claims")
}

func TestCancelledClaimDoesNotBypassRedis(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := metrics.New(prometheus.NewRegistry())
	backend := Select(client, logger.Discard(), m)

	ok, err := backend.SetIfAbsent(context.Background(), "nonce:abc123", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 3 {
		ok, err = backend.SetIfAbsent(ctx, "nonce:abc123", time.Minute)
		require.Error(t, err)
		assert.False(t, ok)
	}

	assert.Equal(t, StatusReady, backend.Status(context.Background()))
	ok, err = backend.SetIfAbsent(context.Background(), "nonce:abc123", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "redis still owns the claim")
}
