// Package credential verifies SAS attestation tokens presented by callers of
// privileged routes.
//
// A token is accepted when its signature verifies against the issuer's JWKS
// and its scope claim contains the required attestation (KYC_PASS by default).
// Accepted tokens are remembered for a short TTL so repeat requests skip
// signature verification.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"solrelay/internal/platform/config"
	"solrelay/internal/platform/kv"
	"solrelay/internal/platform/metrics"
	dErrors "solrelay/pkg/domain-errors"
)

const (
	defaultRequirement = "KYC_PASS"
	defaultCacheTTL    = 60 * time.Second
	defaultCacheSize   = 1000
)

// Asymmetric algorithms an issuer JWKS may publish. HMAC is excluded so a
// public key can never be used as a shared secret.
var allowedMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}

// Reason explains a Decision. It doubles as the metrics label.
type Reason string

const (
	ReasonBypass        Reason = "bypass"
	ReasonCached        Reason = "cached"
	ReasonVerified      Reason = "verified"
	ReasonMissingToken  Reason = "missing_token"
	ReasonInvalidToken  Reason = "invalid_token"
	ReasonMissingScope  Reason = "missing_scope"
	ReasonNotConfigured Reason = "not_configured"
)

// Decision is the outcome of verifying one token.
type Decision struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

// Err converts a rejection into the domain error the HTTP layer renders.
// It returns nil for an accepted decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonMissingScope:
		return dErrors.New(dErrors.CodeForbidden, d.Detail)
	case ReasonNotConfigured:
		return dErrors.New(dErrors.CodeNotConfigured, d.Detail)
	default:
		return dErrors.New(dErrors.CodeUnauthorized, d.Detail)
	}
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }

func deny(r Reason, detail string) Decision { return Decision{Reason: r, Detail: detail} }

// Verifier checks SAS tokens. It never returns an error: every failure is a
// rejecting Decision.
type Verifier struct {
	keyfunc     jwt.Keyfunc
	devBypass   bool
	requirement string
	cacheTTL    time.Duration
	cache       *kv.MemoryBackend
	flight      singleflight.Group
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Verifier)

// WithKeyfunc sets the key lookup used to verify signatures. Without one,
// every non-bypassed token is rejected as not configured.
func WithKeyfunc(kf jwt.Keyfunc) Option {
	return func(v *Verifier) { v.keyfunc = kf }
}

// WithDevBypass accepts every request without inspecting it.
func WithDevBypass(enabled bool) Option {
	return func(v *Verifier) { v.devBypass = enabled }
}

func WithRequirement(scope string) Option {
	return func(v *Verifier) {
		if scope != "" {
			v.requirement = scope
		}
	}
}

func WithCache(size int, ttl time.Duration) Option {
	return func(v *Verifier) {
		if size > 0 {
			v.cache = kv.NewMemoryBackend(kv.WithMaxEntries(size), kv.WithClock(v.clock))
		}
		if ttl > 0 {
			v.cacheTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		requirement: defaultRequirement,
		cacheTTL:    defaultCacheTTL,
		now:         time.Now,
		logger:      slog.Default(),
	}
	v.cache = kv.NewMemoryBackend(kv.WithMaxEntries(defaultCacheSize), kv.WithClock(v.clock))
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewFromConfig builds a Verifier whose keys come from the remote JWKS at
// cfg.JWKSURL. The key set is refreshed in the background until ctx ends.
// An empty URL yields a Verifier that rejects every token as not configured
// unless the dev bypass is on.
func NewFromConfig(ctx context.Context, cfg config.Credential, opts ...Option) (*Verifier, error) {
	base := []Option{
		WithDevBypass(cfg.DevBypass),
		WithRequirement(cfg.Requirement),
		WithCache(cfg.CacheSize, cfg.CacheTTL),
	}
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("load jwks from %s: %w", cfg.JWKSURL, err)
		}
		base = append(base, WithKeyfunc(jwks.Keyfunc))
	}
	return New(append(base, opts...)...), nil
}

// clock indirects through v.now so options applied after WithCache still
// affect cache expiry.
func (v *Verifier) clock() time.Time { return v.now() }

// DevBypass reports whether verification is disabled.
func (v *Verifier) DevBypass() bool { return v.devBypass }

// Verify decides whether raw is an acceptable credential.
func (v *Verifier) Verify(ctx context.Context, raw string) Decision {
	d := v.verify(ctx, raw)
	v.metrics.ObserveCredentialDecision(string(d.Reason))
	return d
}

func (v *Verifier) verify(ctx context.Context, raw string) Decision {
	if v.devBypass {
		return allow(ReasonBypass)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return deny(ReasonMissingToken, "missing credential")
	}

	key := cacheKey(raw)
	if _, err := v.cache.Get(ctx, key); err == nil {
		return allow(ReasonCached)
	}
	if v.keyfunc == nil {
		return deny(ReasonNotConfigured, "credential verification is not configured")
	}

	res, _, _ := v.flight.Do(key, func() (any, error) {
		d := v.check(raw)
		if d.Allowed {
			_, _ = v.cache.SetIfAbsent(ctx, key, v.cacheTTL)
		}
		return d, nil
	})
	d := res.(Decision)
	if !d.Allowed && d.Reason == ReasonInvalidToken {
		v.logger.DebugContext(ctx, "credential rejected", "reason", d.Reason, "detail", d.Detail)
	}
	return d
}

func (v *Verifier) check(raw string) Decision {
	token, err := jwt.Parse(raw, v.keyfunc,
		jwt.WithValidMethods(allowedMethods),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return deny(ReasonInvalidToken, "credential has expired")
		}
		return deny(ReasonInvalidToken, "invalid credential")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return deny(ReasonInvalidToken, "invalid credential")
	}
	if !slices.Contains(Scopes(claims["scope"]), v.requirement) {
		return deny(ReasonMissingScope, "credential lacks "+v.requirement)
	}
	return allow(ReasonVerified)
}

// Scopes normalizes a scope claim, which issuers encode either as a JSON array
// of strings or as one space-delimited string.
func Scopes(claim any) []string {
	switch s := claim.(type) {
	case string:
		return strings.Fields(s)
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func cacheKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
