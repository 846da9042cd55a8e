// Package ratelimit admits at most a fixed number of requests per client per
// window.
//
// Windows are aligned to the epoch: a request at time t falls in window
// floor(t/window). Each (client, window) pair is one counter in the kv
// backend with a TTL of one window, so counters expire on their own.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"solrelay/internal/platform/kv"
	"solrelay/internal/platform/metrics"
	"solrelay/pkg/requestcontext"
)

const (
	defaultWindow = time.Minute
	defaultMax    = 60
	keyPrefix     = "rl:"
	maxKeyLength  = 128
)

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds until the window rolls over
}

// Limiter is a fixed-window counter keyed by client.
type Limiter struct {
	backend kv.Backend
	window  time.Duration
	max     int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window >= time.Millisecond {
			l.window = window
		}
	}
}

func WithMax(max int) Option {
	return func(l *Limiter) {
		if max > 0 {
			l.max = max
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(backend kv.Backend, opts ...Option) (*Limiter, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	l := &Limiter{
		backend: backend,
		window:  defaultWindow,
		max:     defaultMax,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow counts one request for clientKey in the current window and reports
// whether it is within the limit. The window is taken from the request time
// in ctx.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (*Result, error) {
	now := requestcontext.Now(ctx)
	windowMs := l.window.Milliseconds()
	index := now.UnixMilli() / windowMs
	resetAt := time.UnixMilli((index + 1) * windowMs)

	key := keyPrefix + SanitizeKeySegment(clientKey) + ":" + strconv.FormatInt(index, 10)
	count, err := l.backend.Incr(ctx, key, l.window)
	if err != nil {
		return nil, fmt.Errorf("increment %s: %w", key, err)
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := &Result{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = int((resetAt.Sub(now) + time.Second - 1) / time.Second)
		l.metrics.IncRateLimitRejection()
	}
	return res, nil
}

// SanitizeKeySegment makes an arbitrary client identifier safe to embed in a
// backend key: anything outside [A-Za-z0-9._:-] becomes '_' and the result is
// length-capped. An empty identifier maps to "unknown".
func SanitizeKeySegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	if len(s) > maxKeyLength {
		s = s[:maxKeyLength]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == ':', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
