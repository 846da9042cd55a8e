package credential

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"solrelay/internal/platform/config"
	dErrors "solrelay/pkg/domain-errors"
)

type VerifierSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	key      *rsa.PrivateKey
	lookups  atomic.Int32
	verifier *Verifier
}

func TestVerifierSuite(t *testing.T) {
	suite.Run(t, new(VerifierSuite))
}

func (s *VerifierSuite) SetupSuite() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.key = key
}

func (s *VerifierSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.lookups.Store(0)
	s.verifier = New(
		WithKeyfunc(s.keyfunc(&s.key.PublicKey)),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *VerifierSuite) keyfunc(pub *rsa.PublicKey) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		s.lookups.Add(1)
		return pub, nil
	}
}

func (s *VerifierSuite) token(claims jwt.MapClaims) string {
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = s.now.Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	s.Require().NoError(err)
	return signed
}

func (s *VerifierSuite) TestAcceptsRequiredScope() {
	s.Run("array scope", func() {
		d := s.verifier.Verify(s.ctx, s.token(jwt.MapClaims{"scope": []string{"EMAIL", "KYC_PASS"}}))
		s.True(d.Allowed)
		s.Equal(ReasonVerified, d.Reason)
		s.NoError(d.Err())
	})

	s.Run("space-delimited scope", func() {
		d := s.verifier.Verify(s.ctx, s.token(jwt.MapClaims{"scope": "EMAIL KYC_PASS", "sub": "other"}))
		s.True(d.Allowed)
	})
}

func (s *VerifierSuite) TestRejections() {
	s.Run("missing token is unauthorized", func() {
		d := s.verifier.Verify(s.ctx, "  ")
		s.False(d.Allowed)
		s.Equal(ReasonMissingToken, d.Reason)
		s.True(dErrors.Is(d.Err(), dErrors.CodeUnauthorized))
	})

	s.Run("missing scope is forbidden", func() {
		d := s.verifier.Verify(s.ctx, s.token(jwt.MapClaims{"scope": "EMAIL"}))
		s.False(d.Allowed)
		s.True(dErrors.Is(d.Err(), dErrors.CodeForbidden))
	})

	s.Run("expired token is unauthorized", func() {
		d := s.verifier.Verify(s.ctx, s.token(jwt.MapClaims{"scope": "KYC_PASS", "exp": s.now.Add(-time.Minute).Unix()}))
		s.False(d.Allowed)
		s.Equal(ReasonInvalidToken, d.Reason)
		s.True(dErrors.Is(d.Err(), dErrors.CodeUnauthorized))
	})

	s.Run("foreign signature is unauthorized", func() {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		s.Require().NoError(err)
		v := New(WithKeyfunc(s.keyfunc(&other.PublicKey)), WithClock(func() time.Time { return s.now }))
		d := v.Verify(s.ctx, s.token(jwt.MapClaims{"scope": "KYC_PASS"}))
		s.False(d.Allowed)
		s.Equal(ReasonInvalidToken, d.Reason)
	})

	s.Run("garbage is unauthorized", func() {
		d := s.verifier.Verify(s.ctx, "not-a-jwt")
		s.False(d.Allowed)
		s.Equal(ReasonInvalidToken, d.Reason)
	})
}

func (s *VerifierSuite) TestNoKeySetIsNotConfigured() {
	v := New()
	d := v.Verify(s.ctx, s.token(jwt.MapClaims{"scope": "KYC_PASS"}))
	s.False(d.Allowed)
	s.True(dErrors.Is(d.Err(), dErrors.CodeNotConfigured))
}

func (s *VerifierSuite) TestDevBypassAcceptsAnything() {
	v := New(WithDevBypass(true))
	d := v.Verify(s.ctx, "")
	s.True(d.Allowed)
	s.Equal(ReasonBypass, d.Reason)
	s.True(v.DevBypass())
}

func (s *VerifierSuite) TestAcceptedTokensAreCached() {
	raw := s.token(jwt.MapClaims{"scope": "KYC_PASS"})

	s.Equal(ReasonVerified, s.verifier.Verify(s.ctx, raw).Reason)
	s.Equal(ReasonCached, s.verifier.Verify(s.ctx, raw).Reason)
	s.Equal(int32(1), s.lookups.Load())

	s.now = s.now.Add(defaultCacheTTL)
	s.Equal(ReasonVerified, s.verifier.Verify(s.ctx, raw).Reason, "cache entry expires after its ttl")
	s.Equal(int32(2), s.lookups.Load())
}

func (s *VerifierSuite) TestRejectedTokensAreNotCached() {
	raw := s.token(jwt.MapClaims{"scope": "EMAIL"})
	s.False(s.verifier.Verify(s.ctx, raw).Allowed)
	s.False(s.verifier.Verify(s.ctx, raw).Allowed)
	s.Equal(int32(2), s.lookups.Load())
}

func (s *VerifierSuite) TestConcurrentVerificationOfSameToken() {
	raw := s.token(jwt.MapClaims{"scope": "KYC_PASS"})
	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.verifier.Verify(s.ctx, raw).Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(16), allowed.Load())
	s.LessOrEqual(s.lookups.Load(), int32(16))
}

func TestScopes(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Scopes("A  B"))
	assert.Equal(t, []string{"A", "B"}, Scopes([]any{"A", 7, "B"}))
	assert.Equal(t, []string{"C"}, Scopes([]string{"C"}))
	assert.Nil(t, Scopes(nil))
	assert.Nil(t, Scopes(42.0))
}

func TestNewFromConfigUsesRemoteKeySet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": "sas-1",
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewFromConfig(ctx, config.Credential{
		JWKSURL:     srv.URL,
		CacheSize:   10,
		CacheTTL:    time.Minute,
		Requirement: "KYC_PASS",
	})
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"scope": []string{"KYC_PASS"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "sas-1"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)

	d := v.Verify(ctx, raw)
	assert.True(t, d.Allowed, "detail: %s", d.Detail)
}
